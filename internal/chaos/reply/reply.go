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

// Package reply holds the mutable reply payloads HookFs builds for each
// FUSE operation, before they are injected (attribute overrides) and
// finally written onto the wire.
package reply

import (
	"time"

	"github.com/jacobsa/timeutil"
)

var clock timeutil.Clock = timeutil.RealClock()

// Attr is the attribute set every Entry/Attr reply carries, modeled
// directly on a backing syscall.Stat_t.
type Attr struct {
	Ino   uint64
	Size  uint64
	Blocks uint64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Mode  uint32 // includes the file-type bits, e.g. syscall.S_IFREG|perm
	Nlink uint32
	UID   uint32
	GID   uint32
	Rdev  uint32
}

// Entry is the reply to Lookup/Mkdir/Mknod/Symlink/Link.
type Entry struct {
	Attr       Attr
	Generation uint64
	TTL        time.Time
}

func NewEntry(attr Attr, generation uint64) *Entry {
	return &Entry{Attr: attr, Generation: generation, TTL: clock.Now()}
}

// AttrReply is the reply to GetAttr/SetAttr.
type AttrReply struct {
	Attr Attr
	TTL  time.Time
}

func NewAttr(attr Attr) *AttrReply {
	return &AttrReply{Attr: attr, TTL: clock.Now()}
}

// Open is the reply to Open/OpenDir, carrying the allocated handle.
type Open struct {
	Fh    uint64
	Flags uint32
}

func NewOpen(fh uint64, flags uint32) *Open {
	return &Open{Fh: fh, Flags: flags}
}

// Data is the reply to Read/Readlink.
type Data struct {
	Bytes []byte
}

func NewData(b []byte) *Data {
	return &Data{Bytes: b}
}

// Write is the reply to Write.
type Write struct {
	Size uint32
}

func NewWrite(size uint32) *Write {
	return &Write{Size: size}
}

// Create is the reply to Create, combining an Entry with an Open handle.
type Create struct {
	Attr       Attr
	Generation uint64
	TTL        time.Time
	Fh         uint64
	Flags      uint32
}

func NewCreate(attr Attr, generation uint64, fh uint64, flags uint32) *Create {
	return &Create{Attr: attr, Generation: generation, TTL: clock.Now(), Fh: fh, Flags: flags}
}

// StatFs is the reply to StatFs.
type StatFs struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	NameLen uint32
	Frsize  uint32
}

// Xattr is the reply to GetXattr/ListXattr: either the raw data (when the
// caller's buffer was big enough) or just the required size (when it
// asked with a zero-sized buffer).
type Xattr struct {
	Data []byte
	Size uint32
}

func NewXattrData(data []byte) *Xattr { return &Xattr{Data: data} }
func NewXattrSize(size uint32) *Xattr { return &Xattr{Size: size} }

// Lock is the reply to GetLk.
type Lock struct {
	Start uint64
	End   uint64
	Type  uint32
	Pid   uint32
}

// Reply is a tagged union over every shape above, the same role the
// original's `enum Reply<'a>` plays: a single value an injector's
// InjectReply can type-switch on without knowing which FUSE op produced it.
type Reply struct {
	Entry  *Entry
	Attr   *AttrReply
	Open   *Open
	Data   *Data
	Write  *Write
	Create *Create
	StatFs *StatFs
	Xattr  *Xattr
	Lock   *Lock
}

func OfEntry(e *Entry) Reply   { return Reply{Entry: e} }
func OfAttr(a *AttrReply) Reply { return Reply{Attr: a} }
func OfOpen(o *Open) Reply     { return Reply{Open: o} }
func OfData(d *Data) Reply     { return Reply{Data: d} }
func OfWrite(w *Write) Reply   { return Reply{Write: w} }
func OfCreate(c *Create) Reply { return Reply{Create: c} }
func OfStatFs(s *StatFs) Reply { return Reply{StatFs: s} }
func OfXattr(x *Xattr) Reply   { return Reply{Xattr: x} }
func OfLock(l *Lock) Reply     { return Reply{Lock: l} }
