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
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chaos-mesh/chaosfs/internal/chaos/filter"
	"github.com/chaos-mesh/chaosfs/internal/chaos/injector"
	"github.com/chaos-mesh/chaosfs/internal/chaos/reply"
)

func newTestFs(t *testing.T) (*HookFs, string) {
	t.Helper()
	backing := t.TempDir()
	mount := "/mnt/target"

	multi, err := injector.BuildMulti(nil)
	require.NoError(t, err)

	fs := New(mount, backing, multi)
	return fs, backing
}

func TestLookupMintsInodeFromBackingStat(t *testing.T) {
	fs, backing := newTestFs(t)
	require.NoError(t, os.WriteFile(filepath.Join(backing, "a"), []byte("hi"), 0o644))

	entry, err := fs.Lookup(context.Background(), RootInode, "a")
	require.NoError(t, err)

	info, err := os.Lstat(filepath.Join(backing, "a"))
	require.NoError(t, err)
	st := info.Sys().(*syscall.Stat_t)
	require.Equal(t, st.Ino, entry.Attr.Ino)
}

func TestLookupMissingReturnsENOENT(t *testing.T) {
	fs, _ := newTestFs(t)
	_, err := fs.Lookup(context.Background(), RootInode, "missing")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSetAttrModeOnlyRequestAppliesMode(t *testing.T) {
	fs, backing := newTestFs(t)
	target := filepath.Join(backing, "f")
	require.NoError(t, os.WriteFile(target, nil, 0o644))

	entry, err := fs.Lookup(context.Background(), RootInode, "f")
	require.NoError(t, err)

	mode := uint32(0o600)
	_, err = fs.SetAttr(context.Background(), entry.Attr.Ino, SetAttrRequest{Mode: &mode})
	require.NoError(t, err)

	info, err := os.Lstat(target)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestOpenReadWriteReleaseRoundTrip(t *testing.T) {
	fs, backing := newTestFs(t)
	require.NoError(t, os.WriteFile(filepath.Join(backing, "f"), []byte("hello"), 0o644))

	entry, err := fs.Lookup(context.Background(), RootInode, "f")
	require.NoError(t, err)

	open, err := fs.Open(context.Background(), entry.Attr.Ino, uint32(os.O_RDWR))
	require.NoError(t, err)

	data, err := fs.Read(context.Background(), entry.Attr.Ino, open.Fh, 0, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data.Bytes))

	write, err := fs.Write(context.Background(), entry.Attr.Ino, open.Fh, 5, []byte(" world"))
	require.NoError(t, err)
	require.EqualValues(t, 6, write.Size)

	require.NoError(t, fs.Release(context.Background(), entry.Attr.Ino, open.Fh))

	got, err := os.ReadFile(filepath.Join(backing, "f"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestReleaseDirRemovesHandleTableEntry(t *testing.T) {
	fs, _ := newTestFs(t)

	open, err := fs.OpenDir(context.Background(), RootInode, 0)
	require.NoError(t, err)

	require.NoError(t, fs.ReleaseDir(context.Background(), RootInode, open.Fh))

	fs.dirsMu.RLock()
	_, err = fs.dirs.get(open.Fh)
	fs.dirsMu.RUnlock()
	require.Error(t, err, "releasedir must free its handle-table slot, not leak it")
}

func TestReadDirListsCreatedEntries(t *testing.T) {
	fs, backing := newTestFs(t)
	require.NoError(t, os.WriteFile(filepath.Join(backing, "one"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(backing, "two"), nil, 0o644))

	open, err := fs.OpenDir(context.Background(), RootInode, 0)
	require.NoError(t, err)

	entries, err := fs.ReadDir(context.Background(), RootInode, open.Fh, 0)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name] = true
	}
	require.True(t, names["one"])
	require.True(t, names["two"])
}

func TestMknodCreatesBackingNode(t *testing.T) {
	fs, backing := newTestFs(t)

	entry, err := fs.Mknod(context.Background(), RootInode, "fifo", syscall.S_IFIFO|0o644, 0)
	require.NoError(t, err)
	require.NotZero(t, entry.Attr.Ino)

	info, err := os.Lstat(filepath.Join(backing, "fifo"))
	require.NoError(t, err)
	require.NotZero(t, info.Mode()&os.ModeNamedPipe)
}

func TestGetLkReturnsENOSYS(t *testing.T) {
	fs, backing := newTestFs(t)
	require.NoError(t, os.WriteFile(filepath.Join(backing, "f"), nil, 0o644))

	entry, err := fs.Lookup(context.Background(), RootInode, "f")
	require.NoError(t, err)

	_, err = fs.GetLk(context.Background(), entry.Attr.Ino, reply.Lock{})
	require.ErrorIs(t, err, syscall.ENOSYS)
}

func TestSetLkReturnsENOSYS(t *testing.T) {
	fs, backing := newTestFs(t)
	require.NoError(t, os.WriteFile(filepath.Join(backing, "f"), nil, 0o644))

	entry, err := fs.Lookup(context.Background(), RootInode, "f")
	require.NoError(t, err)

	err = fs.SetLk(context.Background(), entry.Attr.Ino, reply.Lock{})
	require.ErrorIs(t, err, syscall.ENOSYS)
}

func TestInjectedFaultShortCircuitsOperation(t *testing.T) {
	backing := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(backing, "f"), nil, 0o644))

	multi, err := injector.BuildMulti([]injector.Config{{
		Type: "fault",
		Fault: &injector.FaultsConfig{
			Config: filter.Config{Path: "/mnt/target/*", Percent: 100},
			Faults: []injector.FaultConfig{{Errno: int(syscall.EIO), Weight: 1}},
		},
	}})
	require.NoError(t, err)

	fs := New("/mnt/target", backing, multi)
	fs.EnableInjection()

	_, err = fs.Lookup(context.Background(), RootInode, "f")
	require.ErrorIs(t, err, syscall.EIO)
}
