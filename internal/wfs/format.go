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

// Package wfs implements the on-disk format, log engine, path resolution and
// fuse.FileSystem operations of the log-structured WFS filesystem.
package wfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Disk layout constants, bit-exact with the wire format.
const (
	// Magic identifies a valid WFS superblock.
	Magic uint32 = 0xDEADBEEF

	// MaxFileNameLen is the maximum length of a directory entry name,
	// including the null terminator.
	MaxFileNameLen = 32

	// DefaultDiskSize is the disk size mkfs uses when none is requested.
	DefaultDiskSize = 1 << 20 // 1 MiB

	// RootInodeNumber is always the first record appended to a fresh log.
	RootInodeNumber uint32 = 0
)

// Mode bits. WFS persists POSIX-style st_mode values on disk: S_IFDIR /
// S_IFREG plus permission bits.
const (
	ModeTypeMask = unix.S_IFMT
	ModeDir      = unix.S_IFDIR
	ModeRegular  = unix.S_IFREG
)

// SuperblockSize is sizeof(struct wfs_sb): two little-endian uint32s.
const SuperblockSize = 4 + 4

// Superblock is the fixed 8-byte disk prefix.
type Superblock struct {
	Magic uint32
	Head  uint32
}

// InodeRecordSize is sizeof(struct wfs_inode): eleven little-endian uint32s,
// no padding.
const InodeRecordSize = 11 * 4

// InodeRecord is the fixed-size on-disk inode record, field for field.
type InodeRecord struct {
	InodeNumber uint32
	Deleted     uint32
	Mode        uint32
	UID         uint32
	GID         uint32
	Flags       uint32
	Size        uint32
	Atime       uint32
	Mtime       uint32
	Ctime       uint32
	Links       uint32
}

// IsDir reports whether the record's mode bits mark it a directory.
func (in *InodeRecord) IsDir() bool {
	return in.Mode&ModeTypeMask == ModeDir
}

// IsRegular reports whether the record's mode bits mark it a regular file.
func (in *InodeRecord) IsRegular() bool {
	return in.Mode&ModeTypeMask == ModeRegular
}

// IsLive reports whether this is a non-tombstoned record.
func (in *InodeRecord) IsLive() bool {
	return in.Deleted == 0
}

// DirEntrySize is sizeof(struct wfs_dentry): a 32-byte name field followed
// by an 8-byte little-endian inode number.
const DirEntrySize = MaxFileNameLen + 8

// DirEntry is the fixed-size on-disk directory entry.
type DirEntry struct {
	Name        [MaxFileNameLen]byte
	InodeNumber uint64
}

// NameString returns the entry's name with the null terminator (and
// anything after it) stripped.
func (d *DirEntry) NameString() string {
	n := bytes.IndexByte(d.Name[:], 0)
	if n < 0 {
		n = len(d.Name)
	}
	return string(d.Name[:n])
}

// SetName copies name into the fixed-size field, null-terminating it. It
// fails if name (plus terminator) would not fit in MaxFileNameLen bytes.
func (d *DirEntry) SetName(name string) error {
	if len(name)+1 > MaxFileNameLen {
		return fmt.Errorf("wfs: name %q exceeds %d bytes", name, MaxFileNameLen-1)
	}
	d.Name = [MaxFileNameLen]byte{}
	copy(d.Name[:], name)
	return nil
}

// NewDirEntry builds a directory entry for name/inode, failing if the name
// is too long to encode.
func NewDirEntry(name string, inode uint64) (DirEntry, error) {
	var d DirEntry
	d.InodeNumber = inode
	if err := d.SetName(name); err != nil {
		return DirEntry{}, err
	}
	return d, nil
}

// ReadSuperblock decodes the leading SuperblockSize bytes of disk, failing
// with a BadMagic error if the magic number doesn't match.
func ReadSuperblock(disk []byte) (Superblock, error) {
	if len(disk) < SuperblockSize {
		return Superblock{}, fmt.Errorf("wfs: disk too small for superblock")
	}
	var sb Superblock
	if err := binary.Read(bytes.NewReader(disk[:SuperblockSize]), binary.LittleEndian, &sb); err != nil {
		return Superblock{}, fmt.Errorf("wfs: decoding superblock: %w", err)
	}
	if sb.Magic != Magic {
		return Superblock{}, &Error{Kind: BadMagic, msg: fmt.Sprintf("got magic %#x, want %#x", sb.Magic, Magic)}
	}
	return sb, nil
}

// WriteSuperblock encodes sb into the leading SuperblockSize bytes of disk.
func WriteSuperblock(disk []byte, sb Superblock) error {
	if len(disk) < SuperblockSize {
		return fmt.Errorf("wfs: disk too small for superblock")
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, sb); err != nil {
		return fmt.Errorf("wfs: encoding superblock: %w", err)
	}
	copy(disk[:SuperblockSize], buf.Bytes())
	return nil
}

// ReadInodeAt decodes the InodeRecord at byte offset off. It performs no
// validation of the trailing payload; callers must bounds-check off+size
// against the disk length before calling ReadPayloadAt.
func ReadInodeAt(disk []byte, off uint32) (InodeRecord, error) {
	end := uint64(off) + InodeRecordSize
	if end > uint64(len(disk)) {
		return InodeRecord{}, fmt.Errorf("wfs: inode record at %d exceeds disk bounds", off)
	}
	var in InodeRecord
	if err := binary.Read(bytes.NewReader(disk[off:end]), binary.LittleEndian, &in); err != nil {
		return InodeRecord{}, fmt.Errorf("wfs: decoding inode at %d: %w", off, err)
	}
	return in, nil
}

// WriteInodeAt encodes in at byte offset off.
func WriteInodeAt(disk []byte, off uint32, in InodeRecord) error {
	end := uint64(off) + InodeRecordSize
	if end > uint64(len(disk)) {
		return fmt.Errorf("wfs: inode record at %d exceeds disk bounds", off)
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, in); err != nil {
		return fmt.Errorf("wfs: encoding inode: %w", err)
	}
	copy(disk[off:end], buf.Bytes())
	return nil
}

// ReadPayloadAt returns the size-byte payload slice immediately following
// the inode header at off. The returned slice aliases disk.
func ReadPayloadAt(disk []byte, off uint32, size uint32) ([]byte, error) {
	start := uint64(off) + InodeRecordSize
	end := start + uint64(size)
	if end > uint64(len(disk)) {
		return nil, fmt.Errorf("wfs: payload at %d (len %d) exceeds disk bounds", off, size)
	}
	return disk[start:end], nil
}

// EntrySize returns the total on-disk size of a log entry whose inode
// header reports the given payload size.
func EntrySize(payloadSize uint32) uint32 {
	return InodeRecordSize + payloadSize
}

// AdvancePastEntry returns the offset of the log entry following the one
// whose header is at off, given its already-decoded inode record.
func AdvancePastEntry(off uint32, in InodeRecord) uint32 {
	return off + EntrySize(in.Size)
}

// ReadDirEntryAt decodes one directory entry from payload at byte index i.
func ReadDirEntryAt(payload []byte, i uint32) (DirEntry, error) {
	end := uint64(i) + DirEntrySize
	if end > uint64(len(payload)) {
		return DirEntry{}, fmt.Errorf("wfs: dirent at %d exceeds payload bounds", i)
	}
	var d DirEntry
	if err := binary.Read(bytes.NewReader(payload[i:end]), binary.LittleEndian, &d); err != nil {
		return DirEntry{}, fmt.Errorf("wfs: decoding dirent at %d: %w", i, err)
	}
	return d, nil
}

// EncodeDirEntry serializes d to its on-disk byte representation.
func EncodeDirEntry(d DirEntry) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, d); err != nil {
		return nil, fmt.Errorf("wfs: encoding dirent: %w", err)
	}
	return buf.Bytes(), nil
}

// goModeToPosix converts a Go os.FileMode to the on-disk POSIX-style mode
// word: S_IFDIR/S_IFREG type bits plus the low 9 permission bits. This is
// pure bit arithmetic at the boundary between jacobsa/fuse's os.FileMode
// convention and WFS's on-disk POSIX mode word; no library owns it.
func goModeToPosix(m os.FileMode) uint32 {
	perm := uint32(m.Perm())
	if m&os.ModeDir != 0 {
		return ModeDir | perm
	}
	return ModeRegular | perm
}

// posixModeToGo is the inverse of goModeToPosix.
func posixModeToGo(m uint32) os.FileMode {
	perm := os.FileMode(m & 0o777)
	if m&ModeTypeMask == ModeDir {
		return perm | os.ModeDir
	}
	return perm
}
