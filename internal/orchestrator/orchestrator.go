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

// Package orchestrator sequences a whole injection's lifecycle: fd
// rebind, mount choreography, injector activation, and their exact
// reverse on the way out. Every step that succeeds pushes its own undo
// onto a stack that unwinds automatically if a later step fails, so a
// partial failure never leaves the target wedged half-migrated.
package orchestrator

import (
	"fmt"
	"os"

	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/chaosfs/internal/chaos/injector"
	"github.com/chaos-mesh/chaosfs/internal/fdrebind"
	"github.com/chaos-mesh/chaosfs/internal/fusedev"
	"github.com/chaos-mesh/chaosfs/internal/hookfs"
	"github.com/chaos-mesh/chaosfs/internal/logger"
	"github.com/chaos-mesh/chaosfs/internal/mount"
	"github.com/chaos-mesh/chaosfs/internal/nsenter"
)

// Config is everything an injection needs to start.
type Config struct {
	PID       int
	Path      string
	Injectors []injector.Config
}

var mountOptions = []string{"allow_other", "nonempty", "fsname=toda", "default_permissions"}

// Orchestrator owns one injection's whole lifecycle from mount to
// teardown.
type Orchestrator struct {
	cfg        Config
	shadowPath string

	hookFs     *hookfs.HookFs
	fuseServer *fuse.Server

	undo []func()
}

// New validates cfg and resolves the shadow path the original contents
// will be moved into, but does not touch the target process yet.
func New(cfg Config) (*Orchestrator, error) {
	shadow, err := mount.ShadowPath(cfg.Path)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{cfg: cfg, shadowPath: shadow}, nil
}

func (o *Orchestrator) pushUndo(f func()) { o.undo = append(o.undo, f) }

func (o *Orchestrator) unwind() {
	for i := len(o.undo) - 1; i >= 0; i-- {
		o.undo[i]()
	}
	o.undo = nil
}

// Start performs every step needed to bring the injection up: mlockall,
// ignoring SIGCHLD, attaching to the target, moving the real mount aside
// to the shadow path, mounting the interposing filesystem in its place,
// rebinding the target's fds from the shadow path onto the interposing
// filesystem, and finally enabling injection.
// Any failure unwinds everything done so far before returning.
func (o *Orchestrator) Start() (err error) {
	defer func() {
		if err != nil {
			o.unwind()
		}
	}()

	if err := unix.Mlockall(unix.MCL_CURRENT); err != nil {
		return fmt.Errorf("mlockall: %w", err)
	}
	// Ignored, not unwound: there is no meaningful way to "un-ignore"
	// SIGCHLD back to a prior handler we never recorded, and leaving it
	// ignored is harmless for the lifetime of this process.
	signalIgnoreSIGCHLD()

	multi, err := injector.BuildMulti(o.cfg.Injectors)
	if err != nil {
		return fmt.Errorf("building injectors: %w", err)
	}

	fuseDev, err := fusedev.ReadDevT()
	if err != nil {
		return fmt.Errorf("reading host /dev/fuse device number: %w", err)
	}

	mounts, err := mount.ParseMounts(o.cfg.PID)
	if err != nil {
		return err
	}
	if !mounts.NonRoot(o.cfg.Path) {
		return fmt.Errorf("%q is not a mounted volume in pid %d's mount table", o.cfg.Path, o.cfg.PID)
	}

	enableReplacer, err := fdrebind.New(o.cfg.PID, o.cfg.Path, o.shadowPath, fdrebind.EnableChaos)
	if err != nil {
		return fmt.Errorf("attaching to pid %d: %w", o.cfg.PID, err)
	}
	defer enableReplacer.Close()

	err = nsenter.Run(o.cfg.PID, func() error {
		if err := fusedev.MkNode(fuseDev); err != nil {
			logger.Warnf("failed to create /dev/fuse node in target namespace: %v", err)
		}

		if err := mount.Move(o.cfg.Path, o.shadowPath); err != nil {
			return err
		}
		o.pushUndo(func() {
			if err := mount.Move(o.shadowPath, o.cfg.Path); err != nil {
				logger.Errorf("unwind: moving mount back: %v", err)
			}
		})

		hookFs := hookfs.New(o.cfg.Path, o.shadowPath, multi)
		rawFs := hookfs.NewServer(hookFs)

		server, err := fuse.NewServer(rawFs, o.cfg.Path, &fuse.MountOptions{
			AllowOther: true,
			FsName:     "toda",
			Name:       "chaosfs",
			Options:    mountOptions,
		})
		if err != nil {
			return fmt.Errorf("mounting fuse at %q: %w", o.cfg.Path, err)
		}

		go server.Serve()
		server.WaitMount()

		o.hookFs = hookFs
		o.fuseServer = server
		o.pushUndo(func() {
			if err := server.Unmount(); err != nil {
				logger.Errorf("unwind: unmounting %q: %v", o.cfg.Path, err)
			}
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("mounting inside target namespace: %w", err)
	}

	if err := enableReplacer.Reopen(); err != nil {
		return fmt.Errorf("rebinding target fds onto the interposing filesystem: %w", err)
	}

	o.hookFs.EnableInjection()
	logger.Infof("injection enabled on pid %d, path %s", o.cfg.PID, o.cfg.Path)
	return nil
}

// Stop reverses Start in order: disable injection, rebind fds back onto
// the real files, unmount the interposing filesystem, and move the real
// directory back into place.
func (o *Orchestrator) Stop() error {
	o.hookFs.DisableInjection()

	disableReplacer, err := fdrebind.New(o.cfg.PID, o.cfg.Path, o.shadowPath, fdrebind.DisableChaos)
	if err != nil {
		return fmt.Errorf("attaching to pid %d: %w", o.cfg.PID, err)
	}
	defer disableReplacer.Close()

	if err := disableReplacer.Reopen(); err != nil {
		return fmt.Errorf("rebinding target fds back onto the real files: %w", err)
	}

	err = nsenter.Run(o.cfg.PID, func() error {
		if err := o.fuseServer.Unmount(); err != nil {
			return fmt.Errorf("unmounting %q: %w", o.cfg.Path, err)
		}
		if err := mount.Move(o.shadowPath, o.cfg.Path); err != nil {
			return err
		}
		return os.Remove(o.shadowPath)
	})
	if err != nil {
		return fmt.Errorf("recovering mount inside target namespace: %w", err)
	}

	o.undo = nil
	logger.Infof("injection recovered on pid %d, path %s", o.cfg.PID, o.cfg.Path)
	return nil
}
