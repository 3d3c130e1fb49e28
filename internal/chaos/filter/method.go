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

// Package filter implements the path/op-set/probability matching used to
// decide whether an injector fires for a given FUSE operation.
package filter

import (
	"fmt"
	"strings"
)

// Method is a bitset over the full FUSE operation lexicon. Multiple methods
// are ORed together to build a filter's configured operation set.
type Method uint32

const (
	Lookup Method = 1 << iota
	Forget
	GetAttr
	SetAttr
	Readlink
	Mknod
	Mkdir
	Unlink
	Rmdir
	Symlink
	Rename
	Link
	Open
	Read
	Write
	Flush
	Release
	Fsync
	OpenDir
	ReadDir
	ReleaseDir
	FsyncDir
	StatFs
	SetXattr
	GetXattr
	ListXattr
	RemoveXattr
	Access
	Create
	GetLk
	SetLk
	Bmap
)

// All is the full operation set, used when a filter's config omits
// "methods" entirely.
const All = Lookup | Forget | GetAttr | SetAttr | Readlink | Mknod | Mkdir |
	Unlink | Rmdir | Symlink | Rename | Link | Open | Read | Write | Flush |
	Release | Fsync | OpenDir | ReadDir | ReleaseDir | FsyncDir | StatFs |
	SetXattr | GetXattr | ListXattr | RemoveXattr | Access | Create | GetLk |
	SetLk | Bmap

var byName = map[string]Method{
	"lookup":      Lookup,
	"forget":      Forget,
	"getattr":     GetAttr,
	"setattr":     SetAttr,
	"readlink":    Readlink,
	"mknod":       Mknod,
	"mkdir":       Mkdir,
	"unlink":      Unlink,
	"rmdir":       Rmdir,
	"symlink":     Symlink,
	"rename":      Rename,
	"link":        Link,
	"open":        Open,
	"read":        Read,
	"write":       Write,
	"flush":       Flush,
	"release":     Release,
	"fsync":       Fsync,
	"opendir":     OpenDir,
	"readdir":     ReadDir,
	"releasedir":  ReleaseDir,
	"fsyncdir":    FsyncDir,
	"statfs":      StatFs,
	"setxattr":    SetXattr,
	"getxattr":    GetXattr,
	"listxattr":   ListXattr,
	"removexattr": RemoveXattr,
	"access":      Access,
	"create":      Create,
	"getlk":       GetLk,
	"setlk":       SetLk,
	"bmap":        Bmap,
}

// ParseMethod maps a case-insensitive operation name onto its Method bit.
func ParseMethod(name string) (Method, error) {
	m, ok := byName[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown fuse operation %q", name)
	}
	return m, nil
}

// Has reports whether any bit of want is set in m.
func (m Method) Has(want Method) bool {
	return m&want != 0
}

// String renders a single-bit Method as its canonical lowercase name, for
// use as a metrics label; a multi-bit or zero value renders as "unknown".
func (m Method) String() string {
	for name, bit := range byName {
		if bit == m {
			return name
		}
	}
	return "unknown"
}
