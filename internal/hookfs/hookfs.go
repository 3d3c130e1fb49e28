// Copyright 2024 Google Inc. All Rights Reserved.
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

// Package hookfs implements the interposing filesystem: every FUSE
// operation is served from a shadow backing directory, with the
// configured injectors given a chance to delay, fail, or rewrite the
// reply before it reaches the caller.
//
// LOCK ORDERING: callers that need more than one of this package's locks
// at once must acquire them in this order and release in the reverse
// order: dirs/files handle-table lock < inode-map lock < fs-wide lock.
// Never acquire two locks of the same kind at once.
package hookfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jacobsa/syncutil"
	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/chaosfs/internal/chaos/filter"
	"github.com/chaos-mesh/chaosfs/internal/chaos/injector"
	"github.com/chaos-mesh/chaosfs/internal/chaos/reply"
	"github.com/chaos-mesh/chaosfs/internal/logger"
)

// DirEntry is one entry returned by ReadDir.
type DirEntry struct {
	Ino    uint64
	Offset int64
	Mode   uint32
	Name   string
}

// SetAttrRequest carries only the fields the caller actually asked to
// change; nil/false fields must not be touched, mirroring FUSE's
// attribute-to-set bitmask.
type SetAttrRequest struct {
	Mode  *uint32
	UID   *uint32
	GID   *uint32
	Size  *uint64
	Atime *time.Time
	Mtime *time.Time
}

// HookFs is the interposing filesystem. Every exported method corresponds
// 1:1 to a FUSE operation in the lexicon named in SPEC_FULL.md §4.E.
type HookFs struct {
	// mountRoot is the path the target process still sees: the original
	// directory, now backed by this filesystem instead of the real one.
	mountRoot string
	// backingRoot is the shadow directory the original contents were
	// moved into; every real syscall HookFs issues targets a path under
	// here.
	backingRoot string

	enableInjection atomic.Bool

	injector *injector.MultiInjector

	// fsLock is the fs-wide lock, built around checkInvariants; see package
	// doc for ordering relative to the handle-table and inode-map locks
	// below. No operation currently acquires it.
	fsLock syncutil.InvariantMutex

	inodeMu sync.RWMutex
	inodes  inodeMap

	filesMu sync.RWMutex
	files   *handleTable[os.File]

	dirsMu sync.RWMutex
	dirs   *handleTable[openDir]
}

type openDir struct {
	path    string
	entries []os.DirEntry
}

// New builds a HookFs that will serve mountRoot's contents from
// backingRoot, running multi through every operation.
func New(mountRoot, backingRoot string, multi *injector.MultiInjector) *HookFs {
	fs := &HookFs{
		mountRoot:   mountRoot,
		backingRoot: backingRoot,
		injector:    multi,
		inodes:      newInodeMap(backingRoot),
		files:       newHandleTable[os.File](),
		dirs:        newHandleTable[openDir](),
	}
	fs.fsLock = syncutil.NewInvariantMutex(fs.checkInvariants)
	return fs
}

func (fs *HookFs) checkInvariants() {
	// The invariant callback for fsLock. It checks nothing: neither the
	// handle tables nor the inode map are validated against backingRoot.
}

// EnableInjection flips the process-wide injection toggle on. Its effect
// is observed by every in-flight and future request via a single atomic
// load, so no request sees injectors half-enabled.
func (fs *HookFs) EnableInjection() { fs.enableInjection.Store(true) }

// DisableInjection flips the toggle back off.
func (fs *HookFs) DisableInjection() { fs.enableInjection.Store(false) }

// rebuildPath converts an absolute backing-store path into the logical
// path a Filter config is written against: the path as seen at mountRoot.
func (fs *HookFs) rebuildPath(backingPath string) (string, error) {
	rel, err := filepath.Rel(fs.backingRoot, backingPath)
	if err != nil {
		return "", fmt.Errorf("rebuilding logical path for %q: %w", backingPath, err)
	}
	if rel == "." {
		return fs.mountRoot, nil
	}
	return filepath.Join(fs.mountRoot, rel), nil
}

func (fs *HookFs) inject(ctx context.Context, method filter.Method, backingPath string) error {
	if !fs.enableInjection.Load() {
		return nil
	}
	logical, err := fs.rebuildPath(backingPath)
	if err != nil {
		return err
	}
	return fs.injector.Inject(ctx, method, logical)
}

func (fs *HookFs) injectReply(method filter.Method, backingPath string, r *reply.Reply) error {
	if !fs.enableInjection.Load() {
		return nil
	}
	logical, err := fs.rebuildPath(backingPath)
	if err != nil {
		return err
	}
	return fs.injector.InjectReply(method, logical, r)
}

func (fs *HookFs) path(ino uint64) (string, error) {
	fs.inodeMu.RLock()
	defer fs.inodeMu.RUnlock()
	return fs.inodes.path(ino)
}

func (fs *HookFs) remember(ino uint64, path string) {
	fs.inodeMu.Lock()
	defer fs.inodeMu.Unlock()
	fs.inodes.insert(ino, path)
}

func statAttr(info os.FileInfo) reply.Attr {
	st := info.Sys().(*syscall.Stat_t)
	return reply.Attr{
		Ino:    st.Ino,
		Size:   uint64(st.Size),
		Blocks: uint64(st.Blocks),
		Atime:  time.Unix(st.Atim.Sec, st.Atim.Nsec),
		Mtime:  time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		Ctime:  time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
		Mode:   st.Mode,
		Nlink:  uint32(st.Nlink),
		UID:    st.Uid,
		GID:    st.Gid,
		Rdev:   uint32(st.Rdev),
	}
}

// Lookup resolves name under parentIno, mints/caches an inode mapping from
// the backing store's own st_ino, and returns its attributes.
func (fs *HookFs) Lookup(ctx context.Context, parentIno uint64, name string) (*reply.Entry, error) {
	parentPath, err := fs.path(parentIno)
	if err != nil {
		return nil, err
	}
	childPath := filepath.Join(parentPath, name)

	if err := fs.inject(ctx, filter.Lookup, childPath); err != nil {
		return nil, err
	}

	info, err := os.Lstat(childPath)
	if err != nil {
		return nil, err
	}
	attr := statAttr(info)
	fs.remember(attr.Ino, childPath)

	entry := reply.NewEntry(attr, 0)
	r := reply.OfEntry(entry)
	if err := fs.injectReply(filter.Lookup, childPath, &r); err != nil {
		return nil, err
	}
	return entry, nil
}

// Forget is a hint only; HookFs keeps every inode it has ever minted for
// the lifetime of the mount, so there is nothing to release here.
func (fs *HookFs) Forget(ino uint64, nlookup uint64) {
	logger.Tracef("forget ino=%d nlookup=%d (no-op)", ino, nlookup)
}

func (fs *HookFs) GetAttr(ctx context.Context, ino uint64) (*reply.AttrReply, error) {
	path, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	if err := fs.inject(ctx, filter.GetAttr, path); err != nil {
		return nil, err
	}

	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	attrReply := reply.NewAttr(statAttr(info))
	r := reply.OfAttr(attrReply)
	if err := fs.injectReply(filter.GetAttr, path, &r); err != nil {
		return nil, err
	}
	return attrReply, nil
}

// SetAttr applies only the fields actually present on req. Chown is only
// issued when uid or gid is present — a request setting neither is a
// no-op, unlike the latent source behavior this fixes (see SPEC_FULL.md
// §4.E).
func (fs *HookFs) SetAttr(ctx context.Context, ino uint64, req SetAttrRequest) (*reply.AttrReply, error) {
	path, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	if err := fs.inject(ctx, filter.SetAttr, path); err != nil {
		return nil, err
	}

	if req.Mode != nil {
		if err := os.Chmod(path, os.FileMode(*req.Mode&07777)); err != nil {
			return nil, err
		}
	}
	if req.UID != nil || req.GID != nil {
		uid, gid := -1, -1
		if req.UID != nil {
			uid = int(*req.UID)
		}
		if req.GID != nil {
			gid = int(*req.GID)
		}
		if err := os.Lchown(path, uid, gid); err != nil {
			return nil, err
		}
	}
	if req.Size != nil {
		if err := os.Truncate(path, int64(*req.Size)); err != nil {
			return nil, err
		}
	}
	if req.Atime != nil || req.Mtime != nil {
		atime, mtime := time.Now(), time.Now()
		if req.Atime != nil {
			atime = *req.Atime
		}
		if req.Mtime != nil {
			mtime = *req.Mtime
		}
		if err := os.Chtimes(path, atime, mtime); err != nil {
			return nil, err
		}
	}

	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	attrReply := reply.NewAttr(statAttr(info))
	r := reply.OfAttr(attrReply)
	if err := fs.injectReply(filter.SetAttr, path, &r); err != nil {
		return nil, err
	}
	return attrReply, nil
}

func (fs *HookFs) Readlink(ctx context.Context, ino uint64) (*reply.Data, error) {
	path, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	if err := fs.inject(ctx, filter.Readlink, path); err != nil {
		return nil, err
	}
	target, err := os.Readlink(path)
	if err != nil {
		return nil, err
	}
	return reply.NewData([]byte(target)), nil
}

func (fs *HookFs) Mknod(ctx context.Context, parentIno uint64, name string, mode uint32, rdev uint32) (*reply.Entry, error) {
	parentPath, err := fs.path(parentIno)
	if err != nil {
		return nil, err
	}
	childPath := filepath.Join(parentPath, name)
	if err := fs.inject(ctx, filter.Mknod, childPath); err != nil {
		return nil, err
	}
	if err := unix.Mknod(childPath, mode, int(rdev)); err != nil {
		return nil, err
	}
	return fs.lookupAfterCreate(childPath, filter.Mknod)
}

func (fs *HookFs) Mkdir(ctx context.Context, parentIno uint64, name string, mode uint32) (*reply.Entry, error) {
	parentPath, err := fs.path(parentIno)
	if err != nil {
		return nil, err
	}
	childPath := filepath.Join(parentPath, name)
	if err := fs.inject(ctx, filter.Mkdir, childPath); err != nil {
		return nil, err
	}
	if err := os.Mkdir(childPath, os.FileMode(mode&07777)); err != nil {
		return nil, err
	}
	return fs.lookupAfterCreate(childPath, filter.Mkdir)
}

func (fs *HookFs) lookupAfterCreate(path string, method filter.Method) (*reply.Entry, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	attr := statAttr(info)
	fs.remember(attr.Ino, path)
	entry := reply.NewEntry(attr, 0)
	r := reply.OfEntry(entry)
	if err := fs.injectReply(method, path, &r); err != nil {
		return nil, err
	}
	return entry, nil
}

func (fs *HookFs) Unlink(ctx context.Context, parentIno uint64, name string) error {
	parentPath, err := fs.path(parentIno)
	if err != nil {
		return err
	}
	childPath := filepath.Join(parentPath, name)
	if err := fs.inject(ctx, filter.Unlink, childPath); err != nil {
		return err
	}
	return os.Remove(childPath)
}

func (fs *HookFs) Rmdir(ctx context.Context, parentIno uint64, name string) error {
	parentPath, err := fs.path(parentIno)
	if err != nil {
		return err
	}
	childPath := filepath.Join(parentPath, name)
	if err := fs.inject(ctx, filter.Rmdir, childPath); err != nil {
		return err
	}
	return os.Remove(childPath)
}

func (fs *HookFs) Symlink(ctx context.Context, parentIno uint64, name string, target string) (*reply.Entry, error) {
	parentPath, err := fs.path(parentIno)
	if err != nil {
		return nil, err
	}
	childPath := filepath.Join(parentPath, name)
	if err := fs.inject(ctx, filter.Symlink, childPath); err != nil {
		return nil, err
	}
	if err := os.Symlink(target, childPath); err != nil {
		return nil, err
	}
	return fs.lookupAfterCreate(childPath, filter.Symlink)
}

func (fs *HookFs) Rename(ctx context.Context, oldParentIno uint64, oldName string, newParentIno uint64, newName string) error {
	oldParentPath, err := fs.path(oldParentIno)
	if err != nil {
		return err
	}
	newParentPath, err := fs.path(newParentIno)
	if err != nil {
		return err
	}
	oldPath := filepath.Join(oldParentPath, oldName)
	newPath := filepath.Join(newParentPath, newName)

	if err := fs.inject(ctx, filter.Rename, oldPath); err != nil {
		return err
	}
	return os.Rename(oldPath, newPath)
}

func (fs *HookFs) Link(ctx context.Context, ino uint64, newParentIno uint64, newName string) (*reply.Entry, error) {
	path, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	newParentPath, err := fs.path(newParentIno)
	if err != nil {
		return nil, err
	}
	newPath := filepath.Join(newParentPath, newName)

	if err := fs.inject(ctx, filter.Link, path); err != nil {
		return nil, err
	}
	if err := os.Link(path, newPath); err != nil {
		return nil, err
	}
	return fs.lookupAfterCreate(newPath, filter.Link)
}

func (fs *HookFs) Open(ctx context.Context, ino uint64, flags uint32) (*reply.Open, error) {
	path, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	if err := fs.inject(ctx, filter.Open, path); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, int(flags), 0)
	if err != nil {
		return nil, err
	}

	fs.filesMu.Lock()
	fh := fs.files.insert(*f)
	fs.filesMu.Unlock()

	open := reply.NewOpen(fh, flags)
	r := reply.OfOpen(open)
	if err := fs.injectReply(filter.Open, path, &r); err != nil {
		return nil, err
	}
	return open, nil
}

func (fs *HookFs) Read(ctx context.Context, ino, fh uint64, offset int64, size uint32) (*reply.Data, error) {
	path, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	if err := fs.inject(ctx, filter.Read, path); err != nil {
		return nil, err
	}

	fs.filesMu.RLock()
	f, err := fs.files.get(fh)
	fs.filesMu.RUnlock()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	n, err := f.ReadAt(buf, offset)
	if err != nil && n == 0 {
		return nil, err
	}
	data := reply.NewData(buf[:n])
	r := reply.OfData(data)
	if err := fs.injectReply(filter.Read, path, &r); err != nil {
		return nil, err
	}
	return data, nil
}

func (fs *HookFs) Write(ctx context.Context, ino, fh uint64, offset int64, data []byte) (*reply.Write, error) {
	path, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	if err := fs.inject(ctx, filter.Write, path); err != nil {
		return nil, err
	}

	fs.filesMu.RLock()
	f, err := fs.files.get(fh)
	fs.filesMu.RUnlock()
	if err != nil {
		return nil, err
	}

	n, err := f.WriteAt(data, offset)
	if err != nil {
		return nil, err
	}
	write := reply.NewWrite(uint32(n))
	r := reply.OfWrite(write)
	if err := fs.injectReply(filter.Write, path, &r); err != nil {
		return nil, err
	}
	return write, nil
}

func (fs *HookFs) Flush(ctx context.Context, ino, fh uint64) error {
	path, err := fs.path(ino)
	if err != nil {
		return err
	}
	if err := fs.inject(ctx, filter.Flush, path); err != nil {
		return err
	}

	fs.filesMu.RLock()
	f, err := fs.files.get(fh)
	fs.filesMu.RUnlock()
	if err != nil {
		return err
	}
	// Flush has no direct POSIX equivalent; fsync is the closest
	// approximation, matching the original's own comment on this point.
	return f.Sync()
}

// Release closes and frees the file handle. Always removes the handle-
// table entry, even on a close error, so the slot is never leaked.
func (fs *HookFs) Release(ctx context.Context, ino, fh uint64) error {
	path, err := fs.path(ino)
	if err != nil {
		return err
	}
	_ = fs.inject(ctx, filter.Release, path)

	fs.filesMu.Lock()
	f, getErr := fs.files.get(fh)
	fs.files.remove(fh)
	fs.filesMu.Unlock()

	if getErr != nil {
		return getErr
	}
	return f.Close()
}

func (fs *HookFs) Fsync(ctx context.Context, ino, fh uint64, datasync bool) error {
	path, err := fs.path(ino)
	if err != nil {
		return err
	}
	if err := fs.inject(ctx, filter.Fsync, path); err != nil {
		return err
	}

	fs.filesMu.RLock()
	f, err := fs.files.get(fh)
	fs.filesMu.RUnlock()
	if err != nil {
		return err
	}
	if datasync {
		return unix.Fdatasync(int(f.Fd()))
	}
	return f.Sync()
}

func (fs *HookFs) OpenDir(ctx context.Context, ino uint64, flags uint32) (*reply.Open, error) {
	path, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	if err := fs.inject(ctx, filter.OpenDir, path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	entries, err := f.ReadDir(-1)
	f.Close()
	if err != nil {
		return nil, err
	}

	fs.dirsMu.Lock()
	fh := fs.dirs.insert(openDir{path: path, entries: entries})
	fs.dirsMu.Unlock()

	open := reply.NewOpen(fh, flags)
	r := reply.OfOpen(open)
	if err := fs.injectReply(filter.OpenDir, path, &r); err != nil {
		return nil, err
	}
	return open, nil
}

// ReadDir returns every entry at or after offset (the count of entries
// already emitted to the caller), inserting each into the inode map as it
// goes. A single bulk materialization per handle is an allowed
// implementation choice (SPEC_FULL.md §11.1); offset semantics are
// preserved either way.
func (fs *HookFs) ReadDir(ctx context.Context, ino, fh uint64, offset int64) ([]DirEntry, error) {
	parentPath, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	if err := fs.inject(ctx, filter.ReadDir, parentPath); err != nil {
		return nil, err
	}

	fs.dirsMu.RLock()
	dir, err := fs.dirs.get(fh)
	fs.dirsMu.RUnlock()
	if err != nil {
		return nil, err
	}

	if offset >= int64(len(dir.entries)) {
		return nil, nil
	}

	out := make([]DirEntry, 0, len(dir.entries)-int(offset))
	for i := int(offset); i < len(dir.entries); i++ {
		entry := dir.entries[i]
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		st, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			continue
		}
		childPath := filepath.Join(dir.path, entry.Name())
		fs.remember(st.Ino, childPath)

		out = append(out, DirEntry{
			Ino:    st.Ino,
			Offset: int64(i + 1),
			Mode:   st.Mode,
			Name:   entry.Name(),
		})
	}
	return out, nil
}

// ReleaseDir frees the directory handle's table slot. The original left
// this handle leaked (a latent FIXME); this is the fix required by
// SPEC_FULL.md §4.E / §11.2.
func (fs *HookFs) ReleaseDir(ctx context.Context, ino, fh uint64) error {
	path, err := fs.path(ino)
	if err != nil {
		return err
	}
	_ = fs.inject(ctx, filter.ReleaseDir, path)

	fs.dirsMu.Lock()
	fs.dirs.remove(fh)
	fs.dirsMu.Unlock()
	return nil
}

func (fs *HookFs) FsyncDir(ctx context.Context, ino, fh uint64, datasync bool) error {
	path, err := fs.path(ino)
	if err != nil {
		return err
	}
	if err := fs.inject(ctx, filter.FsyncDir, path); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if datasync {
		return unix.Fdatasync(int(f.Fd()))
	}
	return f.Sync()
}

func (fs *HookFs) StatFs(ctx context.Context, ino uint64) (*reply.StatFs, error) {
	path, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	if err := fs.inject(ctx, filter.StatFs, path); err != nil {
		return nil, err
	}

	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return nil, err
	}
	return &reply.StatFs{
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Bsize:   uint32(st.Bsize),
		NameLen: uint32(st.Namelen),
		Frsize:  uint32(st.Frsize),
	}, nil
}

func (fs *HookFs) SetXattr(ctx context.Context, ino uint64, name string, data []byte, flags uint32) error {
	path, err := fs.path(ino)
	if err != nil {
		return err
	}
	if err := fs.inject(ctx, filter.SetXattr, path); err != nil {
		return err
	}
	return unix.Lsetxattr(path, name, data, int(flags))
}

func (fs *HookFs) GetXattr(ctx context.Context, ino uint64, name string, size uint32) (*reply.Xattr, error) {
	path, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	if err := fs.inject(ctx, filter.GetXattr, path); err != nil {
		return nil, err
	}

	if size == 0 {
		n, err := unix.Lgetxattr(path, name, nil)
		if err != nil {
			return nil, err
		}
		return reply.NewXattrSize(uint32(n)), nil
	}

	buf := make([]byte, size)
	n, err := unix.Lgetxattr(path, name, buf)
	if err != nil {
		return nil, err
	}
	return reply.NewXattrData(buf[:n]), nil
}

func (fs *HookFs) ListXattr(ctx context.Context, ino uint64, size uint32) (*reply.Xattr, error) {
	path, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	if err := fs.inject(ctx, filter.ListXattr, path); err != nil {
		return nil, err
	}

	if size == 0 {
		n, err := unix.Llistxattr(path, nil)
		if err != nil {
			return nil, err
		}
		return reply.NewXattrSize(uint32(n)), nil
	}

	buf := make([]byte, size)
	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		return nil, err
	}
	return reply.NewXattrData(buf[:n]), nil
}

func (fs *HookFs) RemoveXattr(ctx context.Context, ino uint64, name string) error {
	path, err := fs.path(ino)
	if err != nil {
		return err
	}
	if err := fs.inject(ctx, filter.RemoveXattr, path); err != nil {
		return err
	}
	return unix.Lremovexattr(path, name)
}

func (fs *HookFs) Access(ctx context.Context, ino uint64, mask uint32) error {
	path, err := fs.path(ino)
	if err != nil {
		return err
	}
	if err := fs.inject(ctx, filter.Access, path); err != nil {
		return err
	}
	return unix.Access(path, mask)
}

func (fs *HookFs) Create(ctx context.Context, parentIno uint64, name string, mode uint32, flags uint32) (*reply.Create, error) {
	parentPath, err := fs.path(parentIno)
	if err != nil {
		return nil, err
	}
	childPath := filepath.Join(parentPath, name)
	if err := fs.inject(ctx, filter.Create, childPath); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(childPath, int(flags)|os.O_CREATE, os.FileMode(mode&07777))
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	attr := statAttr(info)
	fs.remember(attr.Ino, childPath)

	fs.filesMu.Lock()
	fh := fs.files.insert(*f)
	fs.filesMu.Unlock()

	create := reply.NewCreate(attr, 0, fh, flags)
	r := reply.OfCreate(create)
	if err := fs.injectReply(filter.Create, childPath, &r); err != nil {
		return nil, err
	}
	return create, nil
}

func (fs *HookFs) GetLk(ctx context.Context, ino uint64, lk reply.Lock) (*reply.Lock, error) {
	path, err := fs.path(ino)
	if err != nil {
		return nil, err
	}
	_ = fs.inject(ctx, filter.GetLk, path)
	return nil, syscall.ENOSYS
}

func (fs *HookFs) SetLk(ctx context.Context, ino uint64, _ reply.Lock) error {
	path, err := fs.path(ino)
	if err != nil {
		return err
	}
	_ = fs.inject(ctx, filter.SetLk, path)
	return syscall.ENOSYS
}

func (fs *HookFs) Bmap(ctx context.Context, ino uint64, blockSize uint32, idx uint64) (uint64, error) {
	path, err := fs.path(ino)
	if err != nil {
		return 0, err
	}
	_ = fs.inject(ctx, filter.Bmap, path)
	return 0, syscall.ENOSYS
}

// Strip returns path relative to root, or an error when path is not under
// root: the reverse direction of rebuildPath, usable without HookFs's
// internal locks. Nothing in this repository calls it; fdrebind computes
// its relative paths with filepath.Rel directly.
func Strip(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%q is not under %q", path, root)
	}
	return rel, nil
}
