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
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"
)

// ServerConfig collects everything NewServer needs to mount a WFS disk.
type ServerConfig struct {
	// The backing disk, already formatted by Format.
	Disk *Disk

	// A clock used for atime/mtime/ctime stamps on writes.
	Clock timeutil.Clock

	// Whether ReadFile should update the inode's atime. Left configurable
	// because doing so turns every read into a log append.
	UpdateAtimeOnRead bool
}

// NewServer builds a fuse.Server backed by the WFS log on cfg.Disk.
func NewServer(cfg *ServerConfig) (fuse.Server, error) {
	if cfg.Disk == nil {
		return nil, fmt.Errorf("wfs: ServerConfig.Disk is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock()
	}

	fs := &fileSystem{
		disk:              cfg.Disk,
		clock:             cfg.Clock,
		updateAtimeOnRead: cfg.UpdateAtimeOnRead,
		dirHandles:        make(map[fuseops.HandleID]*dirHandle),
		fileHandles:       make(map[fuseops.HandleID]fuseops.InodeID),
		nextHandleID:      1,
	}
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)

	return fuseutil.NewFileSystemServer(fs), nil
}

// inodeIDFor converts a WFS on-disk inode number to the fuseops.InodeID
// space, which reserves 0 and starts the root at 1.
func inodeIDFor(n uint32) fuseops.InodeID {
	return fuseops.InodeID(n) + 1
}

// inodeNumberFor is the inverse of inodeIDFor.
func inodeNumberFor(id fuseops.InodeID) uint32 {
	return uint32(id - 1)
}

// fileSystem implements fuseutil.FileSystem directly against the WFS log:
// every operation re-resolves paths and inode state from the disk rather
// than keeping a parallel in-memory tree.
type fileSystem struct {
	disk              *Disk
	clock             timeutil.Clock
	updateAtimeOnRead bool

	// GUARDS the entire log: WFS's append-only format has no way to let two
	// operations proceed concurrently without one clobbering the other's
	// idea of where the log head is, so every op takes this exclusively.
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	dirHandles map[fuseops.HandleID]*dirHandle
	// GUARDED_BY(mu)
	fileHandles map[fuseops.HandleID]fuseops.InodeID
	// GUARDED_BY(mu)
	nextHandleID fuseops.HandleID
}

func (fs *fileSystem) checkInvariants() {
	if _, err := ReadSuperblock(fs.disk.Bytes()); err != nil {
		panic(fmt.Sprintf("wfs: corrupt superblock: %v", err))
	}
}

func (fs *fileSystem) superblock() (Superblock, error) {
	return ReadSuperblock(fs.disk.Bytes())
}

// attributesFor converts a live log entry into the attribute struct fuse
// expects, translating the on-disk POSIX mode word into a Go os.FileMode.
func attributesFor(e LogEntry) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:  uint64(e.Inode.Size),
		Nlink: e.Inode.Links,
		Mode:  posixModeToGo(e.Inode.Mode),
		Atime: time.Unix(int64(e.Inode.Atime), 0),
		Mtime: time.Unix(int64(e.Inode.Mtime), 0),
		Ctime: time.Unix(int64(e.Inode.Ctime), 0),
		Uid:   e.Inode.UID,
		Gid:   e.Inode.GID,
	}
}

// errno maps a wfs.Error's Kind to the fuse errno the kernel expects, per
// the error classification.
func errno(err error) error {
	if err == nil {
		return nil
	}
	kind, ok := asKind(err)
	if !ok {
		return err
	}
	switch kind {
	case NotFound:
		return fuse.ENOENT
	case Exists:
		return fuse.EEXIST
	case NotDir:
		return fuse.ENOTDIR
	case IsDir:
		return fuse.EISDIR
	case NoSpace:
		return fuse.ENOSPC
	case NotEmpty:
		return fuse.ENOTEMPTY
	case BadFd:
		return fuse.EIO
	case BadMagic:
		return fuse.EIO
	default:
		return fuse.EIO
	}
}

func (fs *fileSystem) Init(op *fuseops.InitOp) error {
	return nil
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) LookUpInode(op *fuseops.LookUpInodeOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sb, err := fs.superblock()
	if err != nil {
		return errno(err)
	}

	parent, ok, err := LatestLiveInode(fs.disk.Bytes(), sb, inodeNumberFor(op.Parent))
	if err != nil {
		return errno(err)
	}
	if !ok {
		return fuse.ENOENT
	}

	child, err := lookupChild(fs.disk.Bytes(), sb, parent, op.Name)
	if err != nil {
		return errno(err)
	}

	entry, ok, err := LatestLiveInode(fs.disk.Bytes(), sb, uint32(child.InodeNumber))
	if err != nil {
		return errno(err)
	}
	if !ok {
		return fuse.ENOENT
	}

	op.Entry.Child = inodeIDFor(entry.Inode.InodeNumber)
	op.Entry.Attributes = attributesFor(entry)
	return nil
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) GetInodeAttributes(op *fuseops.GetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sb, err := fs.superblock()
	if err != nil {
		return errno(err)
	}

	entry, ok, err := LatestLiveInode(fs.disk.Bytes(), sb, inodeNumberFor(op.Inode))
	if err != nil {
		return errno(err)
	}
	if !ok {
		return fuse.ENOENT
	}

	op.Attributes = attributesFor(entry)
	return nil
}

// SetInodeAttributes applies a size change (ftruncate/O_TRUNC), a mode
// change and atime/mtime changes by appending a new record; ctime is always
// set to now. Ownership (uid/gid) is not changed.
//
// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) SetInodeAttributes(op *fuseops.SetInodeAttributesOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sb, err := fs.superblock()
	if err != nil {
		return errno(err)
	}

	entry, ok, err := LatestLiveInode(fs.disk.Bytes(), sb, inodeNumberFor(op.Inode))
	if err != nil {
		return errno(err)
	}
	if !ok {
		return fuse.ENOENT
	}

	payload := entry.Payload
	in := entry.Inode
	if op.Size != nil {
		payload = resizePayload(payload, uint32(*op.Size))
		in.Size = uint32(*op.Size)
	}
	if op.Mode != nil {
		in.Mode = goModeToPosix(*op.Mode)
	}
	now := uint32(fs.clock.Now().Unix())
	in.Ctime = now
	if op.Mtime != nil {
		in.Mtime = uint32(op.Mtime.Unix())
	}
	if op.Atime != nil {
		in.Atime = uint32(op.Atime.Unix())
	}

	sb, err = Append(fs.disk.Bytes(), sb, in, payload)
	if err != nil {
		return errno(err)
	}
	if err := WriteSuperblock(fs.disk.Bytes(), sb); err != nil {
		return err
	}

	updated, _, err := LatestLiveInode(fs.disk.Bytes(), sb, inodeNumberFor(op.Inode))
	if err != nil {
		return errno(err)
	}
	op.Attributes = attributesFor(updated)
	return nil
}

// resizePayload grows or shrinks payload to exactly size bytes, zero-filling
// any newly exposed range the way a lseek-past-end-then-write hole would
// have to (spec's new_size handling for writes past the current end).
func resizePayload(payload []byte, size uint32) []byte {
	if uint32(len(payload)) == size {
		return payload
	}
	out := make([]byte, size)
	copy(out, payload)
	return out
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) ForgetInode(op *fuseops.ForgetInodeOp) error {
	// Nothing to release: every operation resolves straight from the log, so
	// there is no per-lookup refcounted cache entry to drop.
	return nil
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) MkDir(op *fuseops.MkDirOp) error {
	return fs.createChild(op.Parent, op.Name, op.Mode|os.ModeDir, op.Header.Uid, op.Header.Gid, &op.Entry)
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) CreateFile(op *fuseops.CreateFileOp) error {
	if err := fs.createChild(op.Parent, op.Name, op.Mode, op.Header.Uid, op.Header.Gid, &op.Entry); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	op.Handle = fs.nextHandleID
	fs.nextHandleID++
	fs.fileHandles[op.Handle] = op.Entry.Child
	return nil
}

// CreateSymlink is not supported: WFS's on-disk inode record has no field
// for a link target, and adding one is out of scope.
func (fs *fileSystem) CreateSymlink(op *fuseops.CreateSymlinkOp) error {
	return fuse.ENOSYS
}

// ReadSymlink is unreachable since CreateSymlink never succeeds, but is
// required to satisfy fuseutil.FileSystem.
func (fs *fileSystem) ReadSymlink(op *fuseops.ReadSymlinkOp) error {
	return fuse.ENOSYS
}

func (fs *fileSystem) createChild(parentID fuseops.InodeID, name string, mode os.FileMode, uid, gid uint32, out *fuseops.ChildInodeEntry) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sb, err := fs.superblock()
	if err != nil {
		return errno(err)
	}

	parent, ok, err := LatestLiveInode(fs.disk.Bytes(), sb, inodeNumberFor(parentID))
	if err != nil {
		return errno(err)
	}
	if !ok {
		return fuse.ENOENT
	}
	if !parent.Inode.IsDir() {
		return fuse.ENOTDIR
	}

	if _, err := lookupChild(fs.disk.Bytes(), sb, parent, name); err == nil {
		return fuse.EEXIST
	} else if kind, ok := asKind(err); !ok || kind != NotFound {
		return err
	}

	maxInode, err := MaxInodeNumber(fs.disk.Bytes(), sb)
	if err != nil {
		return errno(err)
	}
	childNumber := maxInode + 1

	now := uint32(fs.clock.Now().Unix())

	child := InodeRecord{
		InodeNumber: childNumber,
		Deleted:     0,
		Mode:        goModeToPosix(mode),
		UID:         uid,
		GID:         gid,
		Flags:       0,
		Size:        0,
		Atime:       now,
		Mtime:       now,
		Ctime:       now,
		Links:       1,
	}
	sb, err = Append(fs.disk.Bytes(), sb, child, nil)
	if err != nil {
		return errno(err)
	}

	dentry, err := NewDirEntry(name, uint64(childNumber))
	if err != nil {
		return fmt.Errorf("wfs: %w", err)
	}
	encoded, err := EncodeDirEntry(dentry)
	if err != nil {
		return err
	}
	newParentPayload := append(append([]byte{}, parent.Payload...), encoded...)

	parentIn := parent.Inode
	parentIn.Size = uint32(len(newParentPayload))
	parentIn.Mtime = now
	parentIn.Ctime = now
	sb, err = Append(fs.disk.Bytes(), sb, parentIn, newParentPayload)
	if err != nil {
		return errno(err)
	}

	if err := WriteSuperblock(fs.disk.Bytes(), sb); err != nil {
		return err
	}

	entry, _, err := LatestLiveInode(fs.disk.Bytes(), sb, childNumber)
	if err != nil {
		return errno(err)
	}
	out.Child = inodeIDFor(childNumber)
	out.Attributes = attributesFor(entry)
	return nil
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) RmDir(op *fuseops.RmDirOp) error {
	return fs.removeChild(op.Parent, op.Name, true)
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) Unlink(op *fuseops.UnlinkOp) error {
	return fs.removeChild(op.Parent, op.Name, false)
}

func (fs *fileSystem) removeChild(parentID fuseops.InodeID, name string, wantDir bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sb, err := fs.superblock()
	if err != nil {
		return errno(err)
	}

	parent, ok, err := LatestLiveInode(fs.disk.Bytes(), sb, inodeNumberFor(parentID))
	if err != nil {
		return errno(err)
	}
	if !ok {
		return fuse.ENOENT
	}

	child, err := lookupChild(fs.disk.Bytes(), sb, parent, name)
	if err != nil {
		return errno(err)
	}

	target, ok, err := LatestLiveInode(fs.disk.Bytes(), sb, uint32(child.InodeNumber))
	if err != nil {
		return errno(err)
	}
	if !ok {
		return fuse.ENOENT
	}

	if wantDir && !target.Inode.IsDir() {
		return fuse.ENOTDIR
	}
	if !wantDir && target.Inode.IsDir() {
		return fuse.EISDIR
	}
	if wantDir && target.Inode.Size/DirEntrySize != 0 {
		return fuse.ENOTEMPTY
	}

	now := uint32(fs.clock.Now().Unix())

	tombstone := target.Inode
	tombstone.Deleted = 1
	tombstone.Ctime = now
	sb, err = Append(fs.disk.Bytes(), sb, tombstone, target.Payload)
	if err != nil {
		return errno(err)
	}

	newPayload := removeDirEntry(parent.Payload, name)
	parentIn := parent.Inode
	parentIn.Size = uint32(len(newPayload))
	parentIn.Mtime = now
	parentIn.Ctime = now
	sb, err = Append(fs.disk.Bytes(), sb, parentIn, newPayload)
	if err != nil {
		return errno(err)
	}

	return WriteSuperblock(fs.disk.Bytes(), sb)
}

// removeDirEntry returns a copy of payload with the entry named name
// dropped.
func removeDirEntry(payload []byte, name string) []byte {
	n := uint32(len(payload)) / DirEntrySize
	out := make([]byte, 0, len(payload))
	for i := uint32(0); i < n; i++ {
		start := i * DirEntrySize
		d, err := ReadDirEntryAt(payload, start)
		if err != nil {
			continue
		}
		if d.NameString() == name {
			continue
		}
		out = append(out, payload[start:start+DirEntrySize]...)
	}
	return out
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) OpenDir(op *fuseops.OpenDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sb, err := fs.superblock()
	if err != nil {
		return errno(err)
	}
	entry, ok, err := LatestLiveInode(fs.disk.Bytes(), sb, inodeNumberFor(op.Inode))
	if err != nil {
		return errno(err)
	}
	if !ok {
		return fuse.ENOENT
	}
	if !entry.Inode.IsDir() {
		return fuse.ENOTDIR
	}

	op.Handle = fs.nextHandleID
	fs.nextHandleID++
	fs.dirHandles[op.Handle] = newDirHandle(op.Inode)
	return nil
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) ReadDir(op *fuseops.ReadDirOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dh, ok := fs.dirHandles[op.Handle]
	if !ok {
		return fuse.EIO
	}

	sb, err := fs.superblock()
	if err != nil {
		return errno(err)
	}
	entry, ok, err := LatestLiveInode(fs.disk.Bytes(), sb, inodeNumberFor(dh.inode))
	if err != nil {
		return errno(err)
	}
	if !ok {
		return fuse.ENOENT
	}

	return dh.ReadDir(fs.disk.Bytes(), sb, entry, op)
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) ReleaseDirHandle(op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.dirHandles, op.Handle)
	return nil
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) OpenFile(op *fuseops.OpenFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sb, err := fs.superblock()
	if err != nil {
		return errno(err)
	}
	entry, ok, err := LatestLiveInode(fs.disk.Bytes(), sb, inodeNumberFor(op.Inode))
	if err != nil {
		return errno(err)
	}
	if !ok {
		return fuse.ENOENT
	}
	if entry.Inode.IsDir() {
		return fuse.EISDIR
	}

	op.Handle = fs.nextHandleID
	fs.nextHandleID++
	fs.fileHandles[op.Handle] = op.Inode
	return nil
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) ReadFile(op *fuseops.ReadFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inodeID, ok := fs.fileHandles[op.Handle]
	if !ok {
		return fuse.EIO
	}

	sb, err := fs.superblock()
	if err != nil {
		return errno(err)
	}
	entry, ok, err := LatestLiveInode(fs.disk.Bytes(), sb, inodeNumberFor(inodeID))
	if err != nil {
		return errno(err)
	}
	if !ok {
		return fuse.ENOENT
	}

	if op.Offset >= int64(len(entry.Payload)) {
		op.BytesRead = 0
		return fs.maybeUpdateAtime(sb, entry)
	}

	end := int(op.Offset) + len(op.Dst)
	if end > len(entry.Payload) {
		end = len(entry.Payload)
	}
	n := copy(op.Dst, entry.Payload[op.Offset:end])
	op.BytesRead = n

	return fs.maybeUpdateAtime(sb, entry)
}

// maybeUpdateAtime re-appends entry with a bumped atime when configured to
// do so. This is optional because it turns every read into a log append.
func (fs *fileSystem) maybeUpdateAtime(sb Superblock, entry LogEntry) error {
	if !fs.updateAtimeOnRead {
		return nil
	}
	in := entry.Inode
	in.Atime = uint32(fs.clock.Now().Unix())
	sb, err := Append(fs.disk.Bytes(), sb, in, entry.Payload)
	if err != nil {
		return errno(err)
	}
	return WriteSuperblock(fs.disk.Bytes(), sb)
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) WriteFile(op *fuseops.WriteFileOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inodeID, ok := fs.fileHandles[op.Handle]
	if !ok {
		return fuse.EIO
	}

	sb, err := fs.superblock()
	if err != nil {
		return errno(err)
	}
	entry, ok, err := LatestLiveInode(fs.disk.Bytes(), sb, inodeNumberFor(inodeID))
	if err != nil {
		return errno(err)
	}
	if !ok {
		return fuse.ENOENT
	}

	// new_size = max(old_size, offset+len(data)), computed with unsigned-safe
	// arithmetic since offset and size individually fit well within the
	// backing disk but their naive sum in a narrower type could wrap.
	oldSize := uint64(entry.Inode.Size)
	newEnd := uint64(op.Offset) + uint64(len(op.Data))
	newSize := oldSize
	if newEnd > newSize {
		newSize = newEnd
	}

	// entry.Payload aliases the disk's already-superseded-on-append record;
	// resizePayload only allocates when the size actually changes, so copy
	// unconditionally here rather than mutating that past entry in place.
	payload := make([]byte, newSize)
	copy(payload, entry.Payload)
	copy(payload[op.Offset:], op.Data)

	in := entry.Inode
	in.Size = uint32(newSize)
	in.Mtime = uint32(fs.clock.Now().Unix())
	in.Ctime = in.Mtime

	sb, err = Append(fs.disk.Bytes(), sb, in, payload)
	if err != nil {
		return errno(err)
	}
	return WriteSuperblock(fs.disk.Bytes(), sb)
}

// SyncFile is a no-op: every write is already an append to the mmap'd log,
// which the kernel's own page writeback (or an explicit msync) is what
// actually makes durable.
func (fs *fileSystem) SyncFile(op *fuseops.SyncFileOp) error {
	return nil
}

// FlushFile is a no-op for the same reason SyncFile is.
func (fs *fileSystem) FlushFile(op *fuseops.FlushFileOp) error {
	return nil
}

// LOCKS_EXCLUDED(fs.mu)
func (fs *fileSystem) ReleaseFileHandle(op *fuseops.ReleaseFileHandleOp) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.fileHandles, op.Handle)
	return nil
}

