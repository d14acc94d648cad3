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

import "fmt"

// CompactionStats summarizes what a Compact pass did, for the fsck CLI to
// report.
type CompactionStats struct {
	ScannedEntries  int
	LiveInodes      int
	TombstonedOrNew uint32
	OldHead         uint32
	NewHead         uint32
}

// Compact rewrites disk in place to hold only the latest live record for
// each inode number 0..max_inode_number, dropping every superseded or
// tombstoned record. Compact skips an inode number entirely when its
// latest record is tombstoned: a deleted file has no state worth keeping.
//
// scratch must be at least len(disk) bytes; the caller owns its lifetime
// so repeated fsck runs can reuse one buffer instead of allocating per
// call.
func Compact(disk []byte, scratch []byte) (CompactionStats, error) {
	if len(scratch) < len(disk) {
		return CompactionStats{}, fmt.Errorf("wfs: scratch buffer of %d bytes too small for disk of %d bytes", len(scratch), len(disk))
	}

	sb, err := ReadSuperblock(disk)
	if err != nil {
		return CompactionStats{}, err
	}

	var stats CompactionStats
	maxInode := RootInodeNumber
	err = Scan(disk, sb, func(e LogEntry) error {
		stats.ScannedEntries++
		if e.Inode.InodeNumber > maxInode {
			maxInode = e.Inode.InodeNumber
		}
		return nil
	})
	if err != nil {
		return CompactionStats{}, err
	}

	stats.OldHead = sb.Head

	for i := range scratch[:len(disk)] {
		scratch[i] = 0
	}
	newSB := Superblock{Magic: Magic, Head: SuperblockSize}

	for inodeNumber := RootInodeNumber; inodeNumber <= maxInode; inodeNumber++ {
		latest, ok, err := LatestLiveInode(disk, sb, inodeNumber)
		if err != nil {
			return CompactionStats{}, err
		}
		if !ok {
			stats.TombstonedOrNew++
			continue
		}
		newSB, err = Append(scratch, newSB, latest.Inode, latest.Payload)
		if err != nil {
			return CompactionStats{}, err
		}
		stats.LiveInodes++
	}

	if err := WriteSuperblock(scratch, newSB); err != nil {
		return CompactionStats{}, err
	}

	copy(disk, scratch[:len(disk)])
	stats.NewHead = newSB.Head
	return stats, nil
}
