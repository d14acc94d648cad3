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

import "strings"

// SplitPath breaks an absolute slash-separated path into its non-empty
// components. "/" splits to an empty slice.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// lookupChild finds the directory entry named name inside the directory
// whose live record is dir, returning NotFound if it isn't present.
func lookupChild(disk []byte, sb Superblock, dir LogEntry, name string) (DirEntry, error) {
	n := dir.Inode.Size / DirEntrySize
	for i := uint32(0); i < n; i++ {
		d, err := ReadDirEntryAt(dir.Payload, i*DirEntrySize)
		if err != nil {
			return DirEntry{}, err
		}
		if d.NameString() == name {
			return d, nil
		}
	}
	return DirEntry{}, &Error{Kind: NotFound, msg: name}
}

// Resolve walks path from the root, resolving one component at a time
// through live directory entries. It returns the live log entry for the
// final component. Every intermediate component that is not itself a live
// directory yields NotDir; a missing component at any depth yields
// NotFound.
func Resolve(disk []byte, sb Superblock, path string) (LogEntry, error) {
	root, ok, err := LatestLiveInode(disk, sb, RootInodeNumber)
	if err != nil {
		return LogEntry{}, err
	}
	if !ok {
		return LogEntry{}, &Error{Kind: NotFound, msg: "root"}
	}

	cur := root
	for _, name := range SplitPath(path) {
		if !cur.Inode.IsDir() {
			return LogEntry{}, &Error{Kind: NotDir, msg: name}
		}
		child, err := lookupChild(disk, sb, cur, name)
		if err != nil {
			return LogEntry{}, err
		}
		next, ok, err := LatestLiveInode(disk, sb, uint32(child.InodeNumber))
		if err != nil {
			return LogEntry{}, err
		}
		if !ok {
			return LogEntry{}, &Error{Kind: NotFound, msg: name}
		}
		cur = next
	}
	return cur, nil
}

// ResolveParent splits path into (parent directory entry, final component
// name) and resolves the parent, for operations (mknod, mkdir, unlink,
// rmdir) that need to mutate the containing directory rather than the
// target itself.
func ResolveParent(disk []byte, sb Superblock, path string) (LogEntry, string, error) {
	parts := SplitPath(path)
	if len(parts) == 0 {
		return LogEntry{}, "", &Error{Kind: Exists, msg: "root"}
	}
	parentPath := "/" + strings.Join(parts[:len(parts)-1], "/")
	parent, err := Resolve(disk, sb, parentPath)
	if err != nil {
		return LogEntry{}, "", err
	}
	if !parent.Inode.IsDir() {
		return LogEntry{}, "", &Error{Kind: NotDir, msg: parentPath}
	}
	return parent, parts[len(parts)-1], nil
}
