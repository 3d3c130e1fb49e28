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

// Package fusedev makes /dev/fuse available inside a target's mount
// namespace: the device node's identity (major/minor) is read from the
// host, then recreated inside the namespace the orchestrator has entered,
// since a fresh mount namespace does not inherit device nodes.
package fusedev

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ReadDevT stats the host's /dev/fuse and returns its device number, to
// be recreated with MkNode inside the target's namespace.
func ReadDevT() (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat("/dev/fuse", &st); err != nil {
		return 0, fmt.Errorf("stat /dev/fuse: %w", err)
	}
	return uint64(st.Rdev), nil
}

// MkNode creates /dev/fuse as a character device with the given device
// number, tolerating EEXIST (the node may already exist if the mount
// namespace wasn't actually fresh).
func MkNode(dev uint64) error {
	err := unix.Mknod("/dev/fuse", unix.S_IFCHR|0o666, int(dev))
	if err != nil && !errors.Is(err, os.ErrExist) && err != unix.EEXIST {
		return fmt.Errorf("mknod /dev/fuse: %w", err)
	}
	return nil
}
