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

	"golang.org/x/sync/semaphore"
)

// Dispatcher bounds how many calls passed to Run execute concurrently.
// Server does not route requests through a Dispatcher, so the number of
// FUSE requests HookFs services at once is not bounded by it.
// The original ran every request on a tokio thread pool with its own
// blocking/async split; a semaphore over goroutines is the idiomatic Go
// equivalent, since the scheduler already multiplexes goroutines onto
// threads for us.
type Dispatcher struct {
	sem *semaphore.Weighted
}

// NewDispatcher bounds concurrent in-flight requests to maxConcurrent. A
// non-positive value disables the bound (every request runs immediately).
func NewDispatcher(maxConcurrent int64) *Dispatcher {
	if maxConcurrent <= 0 {
		return &Dispatcher{}
	}
	return &Dispatcher{sem: semaphore.NewWeighted(maxConcurrent)}
}

// Run blocks until a slot is free (or ctx is canceled), then calls fn and
// releases the slot once fn returns.
func (d *Dispatcher) Run(ctx context.Context, fn func() error) error {
	if d.sem == nil {
		return fn()
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer d.sem.Release(1)
	return fn()
}
