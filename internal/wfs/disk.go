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
	"os"

	"golang.org/x/sys/unix"
)

// Disk is a bounded byte buffer backing a WFS log, plus whatever handle is
// needed to release it. It replaces a raw mmap'd char* with a
// length-checked slice: every record access in this package bounds-checks
// against len(Bytes()) before dereferencing.
type Disk struct {
	bytes  []byte
	file   *os.File
	mapped bool
}

// Bytes returns the disk's backing slice. Mutating it is how WFS appends
// and compacts; there is no other write path.
func (d *Disk) Bytes() []byte {
	return d.bytes
}

// Len returns the disk's fixed total size (DISK_SIZE).
func (d *Disk) Len() int {
	return len(d.bytes)
}

// OpenMapped memory-maps path read/write for use by mount or fsck. The
// whole file is mapped, so the file's current length becomes the disk
// size; this function does not create or grow it, so the caller (mkfs)
// owns sizing the backing file.
func OpenMapped(path string) (*Disk, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("wfs: opening disk %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wfs: stat disk %q: %w", path, err)
	}

	b, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wfs: mmap disk %q: %w", path, err)
	}

	return &Disk{bytes: b, file: f, mapped: true}, nil
}

// Close unmaps and closes the disk, if it was opened with OpenMapped. It is
// a no-op for disks built with NewMemDisk.
func (d *Disk) Close() error {
	if !d.mapped {
		return nil
	}
	if err := unix.Munmap(d.bytes); err != nil {
		return fmt.Errorf("wfs: munmap: %w", err)
	}
	return d.file.Close()
}

// NewMemDisk wraps an in-memory buffer of the given size as a Disk, used by
// mkfs (which only needs to stamp the leading bytes of a file it then
// writes out with os.WriteFile) and by tests.
func NewMemDisk(size int) *Disk {
	return &Disk{bytes: make([]byte, size)}
}
