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

import "errors"

// Kind classifies the errors a WFS operation can fail with.
type Kind int

const (
	// NotFound means path resolution failed at some component.
	NotFound Kind = iota
	// Exists means a create targeted an already-present name.
	Exists
	// NotDir means a path component, or a readdir target, was not a directory.
	NotDir
	// IsDir means a read/write target was a directory.
	IsDir
	// NoSpace means an append would cross DISK_SIZE.
	NoSpace
	// BadMagic means the disk's superblock magic didn't match.
	BadMagic
	// BadFd means a handle-based operation was given an unknown ID.
	BadFd
	// NotEmpty means rmdir was attempted on a directory with live children.
	NotEmpty
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Exists:
		return "already exists"
	case NotDir:
		return "not a directory"
	case IsDir:
		return "is a directory"
	case NoSpace:
		return "no space left on device"
	case BadMagic:
		return "bad magic"
	case BadFd:
		return "bad handle"
	case NotEmpty:
		return "directory not empty"
	default:
		return "unknown error"
	}
}

// Error is the error type returned by every wfs operation that can fail
// for a classified reason.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.msg
}

// asKind returns err's Kind if err (or something it wraps) is a *Error, and
// ok=false otherwise.
func asKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
