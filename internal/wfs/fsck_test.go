// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wfs

import (
	"testing"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompactDropsTombstonedInodes(t *testing.T) {
	disk := make([]byte, 4096)
	require.NoError(t, Format(disk, timeutil.RealClock(), 0, 0))
	sb, err := ReadSuperblock(disk)
	require.NoError(t, err)

	sb, err = Append(disk, sb, InodeRecord{InodeNumber: 1, Mode: ModeRegular}, []byte("x"))
	require.NoError(t, err)
	sb, err = Append(disk, sb, InodeRecord{InodeNumber: 1, Deleted: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, WriteSuperblock(disk, sb))

	scratch := make([]byte, len(disk))
	stats, err := Compact(disk, scratch)
	require.NoError(t, err)

	assert.EqualValues(t, 1, stats.TombstonedOrNew) // inode 1's latest record is a tombstone
	assert.EqualValues(t, 1, stats.LiveInodes)       // root only

	newSB, err := ReadSuperblock(disk)
	require.NoError(t, err)
	_, ok, err := LatestLiveInode(disk, newSB, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompactKeepsLatestVersionOfEachInode(t *testing.T) {
	disk := make([]byte, 4096)
	require.NoError(t, Format(disk, timeutil.RealClock(), 0, 0))
	sb, err := ReadSuperblock(disk)
	require.NoError(t, err)

	sb, err = Append(disk, sb, InodeRecord{InodeNumber: 1, Mode: ModeRegular}, []byte("v1"))
	require.NoError(t, err)
	sb, err = Append(disk, sb, InodeRecord{InodeNumber: 1, Mode: ModeRegular}, []byte("v2-final"))
	require.NoError(t, err)
	require.NoError(t, WriteSuperblock(disk, sb))

	scratch := make([]byte, len(disk))
	_, err = Compact(disk, scratch)
	require.NoError(t, err)

	newSB, err := ReadSuperblock(disk)
	require.NoError(t, err)
	entry, ok, err := LatestLiveInode(disk, newSB, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v2-final", string(entry.Payload))
}

func TestCompactIsIdempotent(t *testing.T) {
	disk := make([]byte, 4096)
	require.NoError(t, Format(disk, timeutil.RealClock(), 0, 0))
	sb, err := ReadSuperblock(disk)
	require.NoError(t, err)
	sb, err = Append(disk, sb, InodeRecord{InodeNumber: 1, Mode: ModeRegular}, []byte("a"))
	require.NoError(t, err)
	sb, err = Append(disk, sb, InodeRecord{InodeNumber: 1, Mode: ModeRegular}, []byte("b"))
	require.NoError(t, err)
	require.NoError(t, WriteSuperblock(disk, sb))

	scratch := make([]byte, len(disk))
	_, err = Compact(disk, scratch)
	require.NoError(t, err)
	onceCompacted := append([]byte(nil), disk...)

	_, err = Compact(disk, scratch)
	require.NoError(t, err)
	assert.Equal(t, onceCompacted, disk)
}

// S6: a file built from 100 one-byte writes compacts to exactly
// sizeof(superblock) + sizeof(root entry) + sizeof(file entry), with the
// file's content preserved byte for byte.
func TestCompactAfterManySmallWrites(t *testing.T) {
	disk := make([]byte, 1<<16)
	require.NoError(t, Format(disk, timeutil.RealClock(), 501, 20))
	sb, err := ReadSuperblock(disk)
	require.NoError(t, err)

	const fileInode = 1
	var want []byte
	for i := 0; i < 100; i++ {
		want = append(want, byte('a'+i%26))
		sb, err = Append(disk, sb, InodeRecord{InodeNumber: fileInode, Mode: ModeRegular | 0o644}, want)
		require.NoError(t, err)
	}

	dentry, err := NewDirEntry("grown.txt", fileInode)
	require.NoError(t, err)
	payload, err := EncodeDirEntry(dentry)
	require.NoError(t, err)
	sb, err = Append(disk, sb, InodeRecord{InodeNumber: RootInodeNumber, Mode: ModeDir | 0o755}, payload)
	require.NoError(t, err)

	require.NoError(t, WriteSuperblock(disk, sb))

	scratch := make([]byte, len(disk))
	stats, err := Compact(disk, scratch)
	require.NoError(t, err)

	wantHead := uint32(SuperblockSize + EntrySize(DirEntrySize) + EntrySize(100))
	assert.Equal(t, wantHead, stats.NewHead)

	newSB, err := ReadSuperblock(disk)
	require.NoError(t, err)
	entry, ok, err := LatestLiveInode(disk, newSB, fileInode)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, entry.Payload)
}

func TestCompactRejectsUndersizedScratch(t *testing.T) {
	disk := make([]byte, 4096)
	require.NoError(t, Format(disk, timeutil.RealClock(), 0, 0))
	_, err := Compact(disk, make([]byte, len(disk)-1))
	assert.Error(t, err)
}
