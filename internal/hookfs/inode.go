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

package hookfs

// RootInode is the fixed inode number FUSE reserves for a mount's root
// directory; it is seeded in the inode map at construction time and is
// never reassigned.
const RootInode = 1

// inodeMap maps a synthetic inode number onto the absolute backing path it
// currently denotes. Entries are seeded from the real st_ino returned by
// the backing filesystem (see hookfs.go's lookup/readdir), so IDs are
// never minted and never reassigned once observed — only ever added.
type inodeMap map[uint64]string

func newInodeMap(rootPath string) inodeMap {
	m := make(inodeMap)
	m[RootInode] = rootPath
	return m
}

func (m inodeMap) path(inode uint64) (string, error) {
	p, ok := m[inode]
	if !ok {
		return "", &ErrInodeNotFound{Inode: inode}
	}
	return p, nil
}

// insert records inode -> path, but only if the inode hasn't been seen
// before, matching the original's `.entry(ino).or_insert(path)` semantics:
// the first path we observe for an inode wins, later lookups of the same
// inode do not overwrite it.
func (m inodeMap) insert(inode uint64, path string) {
	if _, ok := m[inode]; !ok {
		m[inode] = path
	}
}
