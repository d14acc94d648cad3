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
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
)

// dirHandle buffers the directory entry listing for one open directory
// handle, built fresh from the directory's live payload on the first read
// and sliced out page by page as the kernel asks for more, the way
// GoogleCloudPlatform-gcsfuse's fs/dir_handle.go buffers a GCS listing.
// WFS directories have no continuation token: the whole entry array lives
// in one payload, so "read more" here just means "re-decode the payload",
// which happens once per ReadDir call with a zero offset.
type dirHandle struct {
	inode fuseops.InodeID

	// entries buffered from the directory's payload as of the last time it
	// was decoded. No "." or ".." entries are synthesized.
	entries []fuseops.Dirent
}

func newDirHandle(inode fuseops.InodeID) *dirHandle {
	return &dirHandle{inode: inode}
}

// ReadDir serves a ReadDirOp against the directory's live entry: decode
// the dir's dirent array once (for offset 0, i.e. the start of a fresh
// listing or a rewinddir), then copy entries into op.Dst starting at
// op.Offset until it or the entry list is exhausted.
func (dh *dirHandle) ReadDir(disk []byte, sb Superblock, dir LogEntry, op *fuseops.ReadDirOp) error {
	if op.Offset == 0 {
		dh.entries = buildEntries(dir)
	}

	index := int(op.Offset)
	if index > len(dh.entries) {
		return fuse.EINVAL
	}

	for i := index; i < len(dh.entries); i++ {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], dh.entries[i])
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

// buildEntries decodes dir's payload into one fuseops.Dirent per directory
// entry record, assigning sequential offsets the kernel echoes back in
// future ReadDirOp.Offset values. No "." or ".." entries are synthesized.
func buildEntries(dir LogEntry) []fuseops.Dirent {
	n := dir.Inode.Size / DirEntrySize
	entries := make([]fuseops.Dirent, 0, n)

	for i := uint32(0); i < n; i++ {
		d, err := ReadDirEntryAt(dir.Payload, i*DirEntrySize)
		if err != nil {
			break
		}
		entries = append(entries, fuseops.Dirent{
			Offset: fuseops.DirOffset(len(entries) + 1),
			Inode:  inodeIDFor(uint32(d.InodeNumber)),
			Name:   d.NameString(),
			// The type bit isn't carried by the directory entry record itself;
			// the kernel treats DT_Unknown as "stat it yourself", which is
			// always correct, just an extra round trip.
			Type: fuseops.DT_Unknown,
		})
	}

	return entries
}
