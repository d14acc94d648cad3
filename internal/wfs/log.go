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

// LogEntry is one (offset, inode record, payload) triple yielded while
// walking the log.
type LogEntry struct {
	Offset  uint32
	Inode   InodeRecord
	Payload []byte
}

// Scan walks the log from sizeof(superblock) to sb.Head in order, calling fn
// once per record. It stops early, returning fn's error unwrapped, the
// first time fn returns a non-nil error.
func Scan(disk []byte, sb Superblock, fn func(LogEntry) error) error {
	off := uint32(SuperblockSize)
	for off < sb.Head {
		in, err := ReadInodeAt(disk, off)
		if err != nil {
			return err
		}
		payload, err := ReadPayloadAt(disk, off, in.Size)
		if err != nil {
			return err
		}
		if err := fn(LogEntry{Offset: off, Inode: in, Payload: payload}); err != nil {
			return err
		}
		off = AdvancePastEntry(off, in)
	}
	return nil
}

// LatestLiveInode scans the log for the most recently appended record with
// the given inode number and returns it if its Deleted flag is clear. It
// returns ok=false if no record for that inode number exists, or if the
// most recent one is a tombstone: a tombstone hides every earlier live
// record of the same inode number.
func LatestLiveInode(disk []byte, sb Superblock, inodeNumber uint32) (LogEntry, bool, error) {
	var (
		found LogEntry
		ok    bool
	)
	err := Scan(disk, sb, func(e LogEntry) error {
		if e.Inode.InodeNumber == inodeNumber {
			if e.Inode.IsLive() {
				found, ok = e, true
			} else {
				ok = false
			}
		}
		return nil
	})
	if err != nil {
		return LogEntry{}, false, err
	}
	return found, ok, nil
}

// MaxInodeNumber scans the log and returns the largest inode number seen,
// including tombstoned records. It returns RootInodeNumber if the log holds
// only the root.
func MaxInodeNumber(disk []byte, sb Superblock) (uint32, error) {
	max := RootInodeNumber
	err := Scan(disk, sb, func(e LogEntry) error {
		if e.Inode.InodeNumber > max {
			max = e.Inode.InodeNumber
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return max, nil
}

// Append writes a new log entry (in, payload) at sb.Head, failing with a
// NoSpace error if it would not fit before the end of disk. It returns the
// updated superblock; the caller is responsible for persisting it with
// WriteSuperblock.
func Append(disk []byte, sb Superblock, in InodeRecord, payload []byte) (Superblock, error) {
	in.Size = uint32(len(payload))
	need := uint64(sb.Head) + uint64(EntrySize(in.Size))
	if need > uint64(len(disk)) {
		return sb, &Error{Kind: NoSpace, msg: fmt.Sprintf("need %d bytes past offset %d, disk is %d bytes", EntrySize(in.Size), sb.Head, len(disk))}
	}

	if err := WriteInodeAt(disk, sb.Head, in); err != nil {
		return sb, err
	}
	dst, err := ReadPayloadAt(disk, sb.Head, in.Size)
	if err != nil {
		return sb, err
	}
	copy(dst, payload)

	sb.Head = uint32(need)
	return sb, nil
}
