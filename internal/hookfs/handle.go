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

// handleTable is a sparse, integer-keyed table of open file/dir handles,
// the Go analogue of the original's `Slab<T>`: inserting returns the
// lowest currently-free index, and removing an index returns it to the
// freelist for reuse by the next insert.
type handleTable[T any] struct {
	slots    []*T
	freelist []uint64
}

func newHandleTable[T any]() *handleTable[T] {
	return &handleTable[T]{}
}

func (t *handleTable[T]) insert(v T) uint64 {
	if n := len(t.freelist); n > 0 {
		lowest := 0
		for i, free := range t.freelist {
			if free < t.freelist[lowest] {
				lowest = i
			}
		}
		idx := t.freelist[lowest]
		t.freelist[lowest] = t.freelist[n-1]
		t.freelist = t.freelist[:n-1]
		t.slots[idx] = &v
		return idx
	}
	t.slots = append(t.slots, &v)
	return uint64(len(t.slots) - 1)
}

func (t *handleTable[T]) get(fh uint64) (*T, error) {
	if fh >= uint64(len(t.slots)) || t.slots[fh] == nil {
		return nil, &ErrHandleNotFound{Fh: fh}
	}
	return t.slots[fh], nil
}

// remove deletes the handle at fh, if present, and returns its slot to the
// freelist. Removing an already-empty or out-of-range slot is a no-op,
// mirroring Slab::remove's "removing twice is a bug but we don't panic"
// tolerance — callers (Release/ReleaseDir) are expected to call this
// exactly once per matching open, per the invariant in SPEC_FULL.md.
func (t *handleTable[T]) remove(fh uint64) {
	if fh >= uint64(len(t.slots)) || t.slots[fh] == nil {
		return
	}
	t.slots[fh] = nil
	t.freelist = append(t.freelist, fh)
}
