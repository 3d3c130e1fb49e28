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

// Package nsenter runs a closure with the target process's mount
// namespace entered, so mount/mkdir/mknod calls it makes land in the
// target's view of the filesystem rather than the orchestrator's own.
//
// setns(CLONE_NEWNS) only affects the calling OS thread, so the closure
// must run on a thread that (a) is locked to the goroutine running it and
// (b) is never returned to the runtime's thread pool afterward — once a
// thread has entered another mount namespace there is no way back short
// of exiting it. We run it on a freshly locked goroutine/thread pair and
// let the goroutine (and thread) die with it.
package nsenter

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Run opens /proc/<pid>/ns/mnt, enters it on a dedicated, never-reused OS
// thread, and runs f. The result is delivered over a buffered channel
// that Run blocks on — unlike the busy-spin polling loop this replaces,
// the caller's goroutine is fully parked until f finishes, costing no
// CPU while it waits.
func Run(pid int, f func() error) error {
	result := make(chan error, 1)

	go func() {
		runtime.LockOSThread()
		// Deliberately never UnlockOSThread: this thread's mount
		// namespace is now permanently different from every other
		// thread's, so it must never go back into the goroutine
		// scheduler's pool. It exits along with this goroutine.

		result <- enterAndRun(pid, f)
	}()

	return <-result
}

func enterAndRun(pid int, f func() error) error {
	nsPath := fmt.Sprintf("/proc/%d/ns/mnt", pid)
	fd, err := unix.Open(nsPath, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", nsPath, err)
	}
	defer unix.Close(fd)

	if err := unix.Setns(fd, unix.CLONE_NEWNS); err != nil {
		return fmt.Errorf("entering mount namespace of pid %d: %w", pid, err)
	}

	return f()
}
