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

// Package fdrebind rewrites a traced process's already-open file
// descriptors in place so they point at a different backing file,
// without the process itself ever calling close/open: every fd whose
// current target falls under one directory is reopened against the
// corresponding path under another, then dup2'd back onto the same fd
// number so its identity (and any fcntl state a caller keeps by number)
// survives the swap.
package fdrebind

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chaos-mesh/chaosfs/internal/logger"
	"github.com/chaos-mesh/chaosfs/internal/tracer"
)

// Direction selects which half of the path swap is "where fds currently
// point" versus "where they should point afterward".
type Direction int

const (
	// EnableChaos rebinds fds currently open under the shadow (backing)
	// directory onto the original path — used right after the mount
	// move, before the interposing filesystem takes over.
	EnableChaos Direction = iota
	// DisableChaos reverses it: fds open under the original path are
	// rebound back onto the shadow directory, the last step before the
	// mount is moved back and the shadow directory is removed.
	DisableChaos
)

// Replacer rebinds every fd of pid that currently points under one of
// originalPath/shadowPath onto the corresponding path under the other.
type Replacer struct {
	pid          int
	originalPath string
	shadowPath   string
	direction    Direction
	process      *tracer.Process
}

// New attaches to pid and prepares to rebind its fds under originalPath
// (the mount point the interposing filesystem will occupy) to/from
// shadowPath (where the real files live while it is mounted).
func New(pid int, originalPath, shadowPath string, direction Direction) (*Replacer, error) {
	process, err := tracer.Attach(pid)
	if err != nil {
		return nil, fmt.Errorf("attaching to pid %d: %w", pid, err)
	}
	return &Replacer{
		pid:          pid,
		originalPath: originalPath,
		shadowPath:   shadowPath,
		direction:    direction,
		process:      process,
	}, nil
}

// Close detaches from every traced thread. Safe to call once after
// Reopen, success or failure.
func (r *Replacer) Close() {
	r.process.Detach()
}

func (r *Replacer) fromTo() (from, to string) {
	if r.direction == EnableChaos {
		return r.shadowPath, r.originalPath
	}
	return r.originalPath, r.shadowPath
}

// Reopen walks every attached thread's /proc/<tid>/fd, finds every fd
// whose target is under the "from" directory, and rebinds it onto the
// equivalent path under "to".
func (r *Replacer) Reopen() error {
	from, _ := r.fromTo()
	logger.Infof("rebinding fds for pid %d: %s -> %s", r.pid, from, r.directionTarget())

	for _, thread := range r.process.Threads() {
		fdDir := fmt.Sprintf("/proc/%d/fd", thread.Tid())
		entries, err := os.ReadDir(fdDir)
		if err != nil {
			return fmt.Errorf("listing fds of tid %d: %w", thread.Tid(), err)
		}

		for _, entry := range entries {
			fd, err := strconv.Atoi(entry.Name())
			if err != nil {
				return fmt.Errorf("unexpected fd entry %q: %w", entry.Name(), err)
			}

			target, err := os.Readlink(filepath.Join(fdDir, entry.Name()))
			if err != nil {
				// The fd vanished between ReadDir and Readlink, or it is
				// not a path-backed fd (a socket, a pipe); either way
				// there is nothing to rebind.
				continue
			}
			if !strings.HasPrefix(target, from) {
				continue
			}

			logger.Infof("reopen fd %d on tid %d: %s", fd, thread.Tid(), target)
			if err := r.reopenOne(thread, fd, target); err != nil {
				return fmt.Errorf("reopening fd %d on tid %d: %w", fd, thread.Tid(), err)
			}
		}
	}
	return nil
}

func (r *Replacer) directionTarget() string {
	_, to := r.fromTo()
	return to
}

func (r *Replacer) reopenOne(thread *tracer.Thread, fd int, currentTarget string) error {
	from, to := r.fromTo()

	rel, err := filepath.Rel(from, currentTarget)
	if err != nil {
		return fmt.Errorf("%q is not under %q: %w", currentTarget, from, err)
	}
	newTarget := filepath.Join(to, rel)

	flags, err := thread.FcntlGetFl(fd)
	if err != nil {
		return fmt.Errorf("fcntl(F_GETFL) on fd %d: %w", fd, err)
	}

	newFd, err := thread.Open(newTarget, flags, 0)
	if err != nil {
		return fmt.Errorf("remote open %q: %w", newTarget, err)
	}
	if err := thread.Dup2(newFd, fd); err != nil {
		return fmt.Errorf("remote dup2(%d, %d): %w", newFd, fd, err)
	}
	return thread.Close(newFd)
}
