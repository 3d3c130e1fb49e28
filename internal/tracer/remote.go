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

package tracer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const (
	sysClose  = 3
	sysOpen   = 2
	sysMmap   = 9
	sysMunmap = 11
	sysDup2   = 33
	sysFcntl  = 72
)

// Dup2 runs dup2(oldFd, newFd) inside the thread.
func (t *Thread) Dup2(oldFd, newFd int) error {
	ret, err := t.Syscall(sysDup2, uint64(oldFd), uint64(newFd))
	if err != nil {
		return err
	}
	return Errno(ret)
}

// Close runs close(fd) inside the thread.
func (t *Thread) Close(fd int) error {
	ret, err := t.Syscall(sysClose, uint64(fd))
	if err != nil {
		return err
	}
	return Errno(ret)
}

// FcntlGetFd/FcntlGetFl are the only fcntl commands the original needs
// from a traced thread (both read-only queries); anything beyond these
// two is intentionally unimplemented.
func (t *Thread) FcntlGetFd(fd int) (int, error) {
	return t.fcntl(fd, unix.F_GETFD, 0)
}

func (t *Thread) FcntlGetFl(fd int) (int, error) {
	return t.fcntl(fd, unix.F_GETFL, 0)
}

func (t *Thread) fcntl(fd int, cmd int, arg int) (int, error) {
	ret, err := t.Syscall(sysFcntl, uint64(fd), uint64(cmd), uint64(arg))
	if err != nil {
		return 0, err
	}
	if errno := Errno(ret); errno != nil {
		return 0, errno
	}
	return int(ret), nil
}

// mmap allocates an anonymous rwx scratch page inside the thread; it is
// used only to marshal a path string for a remote open(2), so read+write
// is all it ever needs, but the original maps PROT_EXEC too and there is
// no correctness reason to diverge.
func (t *Thread) mmap(length uint64) (uint64, error) {
	const (
		prot  = unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
		flags = unix.MAP_PRIVATE | unix.MAP_ANON
	)
	ret, err := t.Syscall(sysMmap, 0, length, uint64(prot), uint64(flags), ^uint64(0), 0)
	if err != nil {
		return 0, err
	}
	if errno := Errno(ret); errno != nil {
		return 0, errno
	}
	return ret, nil
}

func (t *Thread) munmap(addr, length uint64) error {
	ret, err := t.Syscall(sysMunmap, addr, length)
	if err != nil {
		return err
	}
	return Errno(ret)
}

// scratchPageSize bounds the path length Open can marshal remotely; paths
// longer than this are rejected rather than silently truncated.
const scratchPageSize = 4096

// Open marshals path into a scratch page mmap'd inside the thread, then
// runs open(path, flags, mode) against it. The scratch page is always
// unmapped before returning, success or failure.
func (t *Thread) Open(path string, flags int, mode uint32) (int, error) {
	data := append([]byte(path), 0)
	if len(data) > scratchPageSize {
		return 0, fmt.Errorf("path %q exceeds the %d-byte remote scratch page", path, scratchPageSize)
	}

	addr, err := t.mmap(scratchPageSize)
	if err != nil {
		return 0, fmt.Errorf("allocating remote scratch page on tid %d: %w", t.tid, err)
	}
	defer func() {
		if err := t.munmap(addr, scratchPageSize); err != nil {
			// Neither returned nor logged: a leaked single page in the
			// target is recoverable, unlike a wedged thread.
			_ = err
		}
	}()

	if err := t.writeRemote(uintptr(addr), data); err != nil {
		return 0, fmt.Errorf("writing path into tid %d: %w", t.tid, err)
	}

	ret, err := t.Syscall(sysOpen, addr, uint64(flags), uint64(mode))
	if err != nil {
		return 0, err
	}
	if errno := Errno(ret); errno != nil {
		return 0, errno
	}
	return int(ret), nil
}

// writeRemote copies data into the target process's address space at
// addr via process_vm_writev, the same primitive the original uses to
// marshal the path for a remote open(2) without touching the target's
// own memory allocator.
func (t *Thread) writeRemote(addr uintptr, data []byte) error {
	local := []unix.Iovec{{Base: &data[0], Len: uint64(len(data))}}
	remote := []unix.RemoteIovec{{Base: addr, Len: len(data)}}

	n, err := unix.ProcessVMWritev(t.tid, local, remote, 0)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("short remote write: wrote %d of %d bytes", n, len(data))
	}
	return nil
}
