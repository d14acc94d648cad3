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
	"fmt"

	"github.com/jacobsa/timeutil"
)

// Format stamps a fresh superblock and root directory record into disk: a
// superblock with head pointing just past a single zero-size root inode
// record, followed by that record itself. disk must already be at least
// DefaultDiskSize bytes (or whatever size the caller intends the
// filesystem to have); Format does not resize it.
//
// uid/gid are the root directory's owner, taken from the calling process
// by the CLI layer rather than hardcoded here.
func Format(disk []byte, clock timeutil.Clock, uid, gid uint32) error {
	if len(disk) < SuperblockSize+InodeRecordSize {
		return fmt.Errorf("wfs: disk of %d bytes too small to hold an empty filesystem", len(disk))
	}

	now := uint32(clock.Now().Unix())

	sb := Superblock{
		Magic: Magic,
		Head:  SuperblockSize,
	}

	root := InodeRecord{
		InodeNumber: RootInodeNumber,
		Deleted:     0,
		Mode:        ModeDir | 0o755,
		UID:         uid,
		GID:         gid,
		Flags:       0,
		Size:        0,
		Atime:       now,
		Mtime:       now,
		Ctime:       now,
		Links:       1,
	}

	sb, err := Append(disk, sb, root, nil)
	if err != nil {
		return err
	}
	return WriteSuperblock(disk, sb)
}
