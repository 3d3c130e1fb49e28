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

// Package mount does the filesystem choreography around an injection: it
// names the shadow directory the original contents move into, refuses to
// operate on a root mount point, and bind-moves a directory's mount from
// one path to another in either direction.
package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// ShadowPath returns the sibling directory an injection on path moves the
// real contents into while the interposing filesystem occupies path
// itself. The "__chaosfs__<name>__" naming is unchanged from the
// original so operators recognize it across tooling.
func ShadowPath(path string) (string, error) {
	base := filepath.Dir(path)
	name := filepath.Base(path)
	if base == path || name == "." || name == "/" {
		return "", fmt.Errorf("%q is the root and cannot be injected", path)
	}
	return filepath.Join(base, fmt.Sprintf("__chaosfs__%s__", name)), nil
}

// Info is the target process's mount table, read once at injection start
// so NonRoot checks don't race a mount table that the move itself is
// about to change.
type Info struct {
	mountPoints []string
}

// ParseMounts reads /proc/<pid>/mounts and keeps only the second
// whitespace-separated field of each line, the mount point itself — the
// same parse the original does.
func ParseMounts(pid int) (*Info, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/mounts", pid))
	if err != nil {
		return nil, fmt.Errorf("reading mounts of pid %d: %w", pid, err)
	}

	var points []string
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Split(line, " ")
		if len(fields) > 1 {
			points = append(points, fields[1])
		} else {
			points = append(points, "")
		}
	}
	return &Info{mountPoints: points}, nil
}

// NonRoot reports whether path is safe to inject: true when some mounted
// volume contains path, which is exactly the case this tool exists for
// (the target directory itself being a mounted volume). The relationship
// is deliberately "contains", not exact-match: a mount point such as
// /a/b/c also permits injecting on /a/b, while a mount point at /a alone
// does not.
func (i *Info) NonRoot(path string) bool {
	for _, mp := range i.mountPoints {
		if mp != "" && strings.Contains(mp, path) {
			return true
		}
	}
	return false
}

// Move bind-moves the mount at originalPath onto targetPath (MS_MOVE),
// creating targetPath first if needed.
func Move(originalPath, targetPath string) error {
	if err := os.MkdirAll(targetPath, 0o755); err != nil {
		return fmt.Errorf("creating %q: %w", targetPath, err)
	}
	if err := unix.Mount(originalPath, targetPath, "", unix.MS_MOVE, ""); err != nil {
		return fmt.Errorf("moving mount %q -> %q: %w", originalPath, targetPath, err)
	}
	return nil
}
