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

// This file is the only place HookFs's clean, Go-native operation methods
// meet go-fuse's wire types; every other file in this package is
// transport-agnostic and testable against plain Go values.
package hookfs

import (
	"context"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/chaos-mesh/chaosfs/internal/logger"
)

// Server adapts a *HookFs to go-fuse's fuse.RawFileSystem, translating each
// wire request into a call against HookFs's own method set and each clean
// reply back into the corresponding *Out struct. Operations this package
// does not implement (Bmap's "real" mapping, record locking) fall back to
// the embedded default, which reports ENOSYS.
type Server struct {
	fuse.RawFileSystem
	fs *HookFs
}

// NewServer wraps fs for mounting with go-fuse.
func NewServer(fs *HookFs) *Server {
	return &Server{RawFileSystem: fuse.NewDefaultRawFileSystem(), fs: fs}
}

func ctxFromCancel(cancel <-chan struct{}) context.Context {
	ctx, cancelFn := context.WithCancel(context.Background())
	go func() {
		select {
		case <-cancel:
			cancelFn()
		case <-ctx.Done():
		}
	}()
	return ctx
}

func statusOf(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	return fuse.Status(errnoOf(err))
}

func (s *Server) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	entry, err := s.fs.Lookup(ctxFromCancel(cancel), header.NodeId, name)
	if err != nil {
		return statusOf(err)
	}
	out.NodeId = entry.Attr.Ino
	out.Generation = entry.Generation
	out.Attr.Ino = entry.Attr.Ino
	out.Attr.Size = entry.Attr.Size
	out.Attr.Blocks = entry.Attr.Blocks
	out.Attr.Mode = entry.Attr.Mode
	out.Attr.Nlink = entry.Attr.Nlink
	out.Attr.Uid = entry.Attr.UID
	out.Attr.Gid = entry.Attr.GID
	out.Attr.Rdev = entry.Attr.Rdev
	return fuse.OK
}

func (s *Server) Forget(nodeid, nlookup uint64) {
	s.fs.Forget(nodeid, nlookup)
}

func (s *Server) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	attrReply, err := s.fs.GetAttr(ctxFromCancel(cancel), input.NodeId)
	if err != nil {
		return statusOf(err)
	}
	out.Attr.Ino = attrReply.Attr.Ino
	out.Attr.Size = attrReply.Attr.Size
	out.Attr.Blocks = attrReply.Attr.Blocks
	out.Attr.Mode = attrReply.Attr.Mode
	out.Attr.Nlink = attrReply.Attr.Nlink
	out.Attr.Uid = attrReply.Attr.UID
	out.Attr.Gid = attrReply.Attr.GID
	out.Attr.Rdev = attrReply.Attr.Rdev
	return fuse.OK
}

func (s *Server) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	req := SetAttrRequest{}
	if input.Valid&fuse.FATTR_MODE != 0 {
		mode := input.Mode
		req.Mode = &mode
	}
	if input.Valid&fuse.FATTR_UID != 0 {
		uid := input.Uid
		req.UID = &uid
	}
	if input.Valid&fuse.FATTR_GID != 0 {
		gid := input.Gid
		req.GID = &gid
	}
	if input.Valid&fuse.FATTR_SIZE != 0 {
		size := input.Size
		req.Size = &size
	}

	attrReply, err := s.fs.SetAttr(ctxFromCancel(cancel), input.NodeId, req)
	if err != nil {
		return statusOf(err)
	}
	out.Attr.Ino = attrReply.Attr.Ino
	out.Attr.Size = attrReply.Attr.Size
	out.Attr.Mode = attrReply.Attr.Mode
	out.Attr.Uid = attrReply.Attr.UID
	out.Attr.Gid = attrReply.Attr.GID
	return fuse.OK
}

func (s *Server) Readlink(cancel <-chan struct{}, header *fuse.InHeader) ([]byte, fuse.Status) {
	data, err := s.fs.Readlink(ctxFromCancel(cancel), header.NodeId)
	if err != nil {
		return nil, statusOf(err)
	}
	return data.Bytes, fuse.OK
}

func (s *Server) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	entry, err := s.fs.Mkdir(ctxFromCancel(cancel), input.NodeId, name, input.Mode)
	if err != nil {
		return statusOf(err)
	}
	out.NodeId = entry.Attr.Ino
	out.Attr.Ino = entry.Attr.Ino
	out.Attr.Mode = entry.Attr.Mode
	return fuse.OK
}

func (s *Server) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	entry, err := s.fs.Mknod(ctxFromCancel(cancel), input.NodeId, name, input.Mode, input.Rdev)
	if err != nil {
		return statusOf(err)
	}
	out.NodeId = entry.Attr.Ino
	out.Attr.Ino = entry.Attr.Ino
	out.Attr.Mode = entry.Attr.Mode
	return fuse.OK
}

func (s *Server) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return statusOf(s.fs.Unlink(ctxFromCancel(cancel), header.NodeId, name))
}

func (s *Server) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return statusOf(s.fs.Rmdir(ctxFromCancel(cancel), header.NodeId, name))
}

func (s *Server) Symlink(cancel <-chan struct{}, header *fuse.InHeader, target, name string, out *fuse.EntryOut) fuse.Status {
	entry, err := s.fs.Symlink(ctxFromCancel(cancel), header.NodeId, name, target)
	if err != nil {
		return statusOf(err)
	}
	out.NodeId = entry.Attr.Ino
	return fuse.OK
}

func (s *Server) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName, newName string) fuse.Status {
	return statusOf(s.fs.Rename(ctxFromCancel(cancel), input.NodeId, oldName, input.Newdir, newName))
}

func (s *Server) Link(cancel <-chan struct{}, input *fuse.LinkIn, name string, out *fuse.EntryOut) fuse.Status {
	entry, err := s.fs.Link(ctxFromCancel(cancel), input.Oldnodeid, input.NodeId, name)
	if err != nil {
		return statusOf(err)
	}
	out.NodeId = entry.Attr.Ino
	return fuse.OK
}

func (s *Server) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	open, err := s.fs.Open(ctxFromCancel(cancel), input.NodeId, input.Flags)
	if err != nil {
		return statusOf(err)
	}
	out.Fh = open.Fh
	return fuse.OK
}

func (s *Server) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	data, err := s.fs.Read(ctxFromCancel(cancel), input.NodeId, input.Fh, int64(input.Offset), uint32(len(buf)))
	if err != nil {
		return nil, statusOf(err)
	}
	return fuse.ReadResultData(data.Bytes), fuse.OK
}

func (s *Server) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	write, err := s.fs.Write(ctxFromCancel(cancel), input.NodeId, input.Fh, int64(input.Offset), data)
	if err != nil {
		return 0, statusOf(err)
	}
	return write.Size, fuse.OK
}

func (s *Server) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	return statusOf(s.fs.Flush(ctxFromCancel(cancel), input.NodeId, input.Fh))
}

func (s *Server) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	if err := s.fs.Release(ctxFromCancel(cancel), input.NodeId, input.Fh); err != nil {
		logger.Warnf("release ino=%d fh=%d: %v", input.NodeId, input.Fh, err)
	}
}

func (s *Server) Fsync(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	return statusOf(s.fs.Fsync(ctxFromCancel(cancel), input.NodeId, input.Fh, input.FsyncFlags&1 != 0))
}

func (s *Server) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	open, err := s.fs.OpenDir(ctxFromCancel(cancel), input.NodeId, input.Flags)
	if err != nil {
		return statusOf(err)
	}
	out.Fh = open.Fh
	return fuse.OK
}

func (s *Server) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	entries, err := s.fs.ReadDir(ctxFromCancel(cancel), input.NodeId, input.Fh, int64(input.Offset))
	if err != nil {
		return statusOf(err)
	}
	for _, e := range entries {
		if !out.AddDirEntry(fuse.DirEntry{Ino: e.Ino, Off: uint64(e.Offset), Mode: e.Mode, Name: e.Name}) {
			break
		}
	}
	return fuse.OK
}

func (s *Server) ReleaseDir(input *fuse.ReleaseIn) {
	if err := s.fs.ReleaseDir(context.Background(), input.NodeId, input.Fh); err != nil {
		logger.Warnf("releasedir ino=%d fh=%d: %v", input.NodeId, input.Fh, err)
	}
}

func (s *Server) FsyncDir(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	return statusOf(s.fs.FsyncDir(ctxFromCancel(cancel), input.NodeId, input.Fh, input.FsyncFlags&1 != 0))
}

func (s *Server) StatFs(cancel <-chan struct{}, header *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	st, err := s.fs.StatFs(ctxFromCancel(cancel), header.NodeId)
	if err != nil {
		return statusOf(err)
	}
	out.Blocks = st.Blocks
	out.Bfree = st.Bfree
	out.Bavail = st.Bavail
	out.Files = st.Files
	out.Ffree = st.Ffree
	out.Bsize = st.Bsize
	out.NameLen = st.NameLen
	out.Frsize = st.Frsize
	return fuse.OK
}

func (s *Server) SetXAttr(cancel <-chan struct{}, input *fuse.SetXAttrIn, attr string, data []byte) fuse.Status {
	return statusOf(s.fs.SetXattr(ctxFromCancel(cancel), input.NodeId, attr, data, input.Flags))
}

func (s *Server) GetXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string, dest []byte) (uint32, fuse.Status) {
	x, err := s.fs.GetXattr(ctxFromCancel(cancel), header.NodeId, attr, uint32(len(dest)))
	if err != nil {
		return 0, statusOf(err)
	}
	if len(dest) == 0 {
		return x.Size, fuse.OK
	}
	copy(dest, x.Data)
	return uint32(len(x.Data)), fuse.OK
}

func (s *Server) ListXAttr(cancel <-chan struct{}, header *fuse.InHeader, dest []byte) (uint32, fuse.Status) {
	x, err := s.fs.ListXattr(ctxFromCancel(cancel), header.NodeId, uint32(len(dest)))
	if err != nil {
		return 0, statusOf(err)
	}
	if len(dest) == 0 {
		return x.Size, fuse.OK
	}
	copy(dest, x.Data)
	return uint32(len(x.Data)), fuse.OK
}

func (s *Server) RemoveXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string) fuse.Status {
	return statusOf(s.fs.RemoveXattr(ctxFromCancel(cancel), header.NodeId, attr))
}

func (s *Server) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	return statusOf(s.fs.Access(ctxFromCancel(cancel), input.NodeId, input.Mask))
}

func (s *Server) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	create, err := s.fs.Create(ctxFromCancel(cancel), input.NodeId, name, input.Mode, input.Flags)
	if err != nil {
		return statusOf(err)
	}
	out.NodeId = create.Attr.Ino
	out.Attr.Ino = create.Attr.Ino
	out.Attr.Mode = create.Attr.Mode
	out.Fh = create.Fh
	out.OpenFlags = create.Flags
	return fuse.OK
}
