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

package injector

import (
	"fmt"
	"syscall"
	"time"

	"github.com/chaos-mesh/chaosfs/internal/chaos/filter"
	"github.com/chaos-mesh/chaosfs/internal/chaos/reply"
	"github.com/chaos-mesh/chaosfs/internal/logger"
	"github.com/chaos-mesh/chaosfs/internal/metrics"
)

var kindToMode = map[string]uint32{
	"namedPipe":   syscall.S_IFIFO,
	"charDevice":  syscall.S_IFCHR,
	"blockDevice": syscall.S_IFBLK,
	"directory":   syscall.S_IFDIR,
	"regularFile": syscall.S_IFREG,
	"symlink":     syscall.S_IFLNK,
	"socket":      syscall.S_IFSOCK,
}

// AttrOverrideInjector never fails the underlying call; it only rewrites
// whichever fields of a reply's attributes are configured (nil fields are
// left untouched).
type AttrOverrideInjector struct {
	NopInjector

	filter *filter.Filter

	ino    *uint64
	size   *uint64
	blocks *uint64
	atime  *time.Time
	mtime  *time.Time
	ctime  *time.Time
	mode   *uint32 // file-type bits only, from Kind
	perm   *uint16
	nlink  *uint32
	uid    *uint32
	gid    *uint32
	rdev   *uint32
}

// BuildAttrOverride compiles an AttrOverrideConfig. The filter's operation
// set is hardcoded to the attribute-bearing ops regardless of what the
// config says, matching the original's fixed method list for this
// injector kind.
func BuildAttrOverride(conf AttrOverrideConfig) (*AttrOverrideInjector, error) {
	logger.Infof("build attr override injector")

	f, err := filter.Build(filter.Config{
		Path: conf.Path,
		Methods: []string{
			"getattr", "lookup", "mknod", "mkdir", "symlink", "link",
		},
		Percent: conf.Percent,
	})
	if err != nil {
		return nil, err
	}

	a := &AttrOverrideInjector{
		filter: f,
		ino:    conf.Ino,
		size:   conf.Size,
		blocks: conf.Blocks,
		perm:   conf.Perm,
		nlink:  conf.Nlink,
		uid:    conf.UID,
		gid:    conf.GID,
		rdev:   conf.Rdev,
	}

	if conf.Atime != nil {
		t := time.Unix(conf.Atime.Sec, int64(conf.Atime.Nsec))
		a.atime = &t
	}
	if conf.Mtime != nil {
		t := time.Unix(conf.Mtime.Sec, int64(conf.Mtime.Nsec))
		a.mtime = &t
	}
	if conf.Ctime != nil {
		t := time.Unix(conf.Ctime.Sec, int64(conf.Ctime.Nsec))
		a.ctime = &t
	}
	if conf.Kind != nil {
		mode, ok := kindToMode[*conf.Kind]
		if !ok {
			return nil, fmt.Errorf("unknown file kind %q", *conf.Kind)
		}
		a.mode = &mode
	}

	return a, nil
}

func (a *AttrOverrideInjector) applyTo(attr *reply.Attr) {
	if a.ino != nil {
		attr.Ino = *a.ino
	}
	if a.size != nil {
		attr.Size = *a.size
	}
	if a.blocks != nil {
		attr.Blocks = *a.blocks
	}
	if a.atime != nil {
		attr.Atime = *a.atime
	}
	if a.mtime != nil {
		attr.Mtime = *a.mtime
	}
	if a.ctime != nil {
		attr.Ctime = *a.ctime
	}
	if a.mode != nil {
		attr.Mode = (attr.Mode &^ syscall.S_IFMT) | *a.mode
	}
	if a.perm != nil {
		attr.Mode = (attr.Mode &^ 07777) | uint32(*a.perm)
	}
	if a.nlink != nil {
		attr.Nlink = *a.nlink
	}
	if a.uid != nil {
		attr.UID = *a.uid
	}
	if a.gid != nil {
		attr.GID = *a.gid
	}
	if a.rdev != nil {
		attr.Rdev = *a.rdev
	}
}

func (a *AttrOverrideInjector) InjectReply(method filter.Method, path string, r *reply.Reply) error {
	if !a.filter.Match(method, path) {
		return nil
	}

	logger.Infof("overriding attributes on %s", path)
	metrics.AttrOverridesTotal.WithLabelValues(method.String()).Inc()

	switch {
	case r.Entry != nil:
		a.applyTo(&r.Entry.Attr)
	case r.Attr != nil:
		a.applyTo(&r.Attr.Attr)
	case r.Create != nil:
		a.applyTo(&r.Create.Attr)
	default:
		logger.Infof("reply without attributes")
	}
	return nil
}
