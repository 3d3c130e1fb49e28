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

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrInodeNotFound is returned when an inode number has no entry in the
// inode map, e.g. because it was never minted or was looked up after the
// backing file disappeared.
type ErrInodeNotFound struct{ Inode uint64 }

func (e *ErrInodeNotFound) Error() string { return fmt.Sprintf("inode %d not found", e.Inode) }

// ErrHandleNotFound is returned when a file or directory handle number has
// no live entry in the corresponding handle table.
type ErrHandleNotFound struct{ Fh uint64 }

func (e *ErrHandleNotFound) Error() string { return fmt.Sprintf("handle %d not found", e.Fh) }

// errnoOf maps any error HookFs produces onto the syscall.Errno its caller
// (the FUSE transport) should report, preferring a wrapped syscall.Errno
// when present (the common case: the backing operation itself failed) and
// falling back to EFAULT for anything else we cannot classify.
func errnoOf(err error) syscall.Errno {
	if err == nil {
		return 0
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	var notFound *ErrInodeNotFound
	if errors.As(err, &notFound) {
		return syscall.EFAULT
	}
	var handleNotFound *ErrHandleNotFound
	if errors.As(err, &handleNotFound) {
		return syscall.EFAULT
	}

	return syscall.EFAULT
}
