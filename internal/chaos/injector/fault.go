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
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"syscall"

	"github.com/chaos-mesh/chaosfs/internal/chaos/filter"
	"github.com/chaos-mesh/chaosfs/internal/logger"
	"github.com/chaos-mesh/chaosfs/internal/metrics"
)

// errnoWeight pairs an errno with its relative selection weight.
type errnoWeight struct {
	errno  syscall.Errno
	weight int
}

// FaultInjector returns a weighted-random errno in place of the real
// operation whenever its filter matches.
type FaultInjector struct {
	NopReplyInjector

	filter *filter.Filter
	errnos []errnoWeight
	sum    int

	mu  sync.Mutex
	rng *rand.Rand
}

func BuildFault(conf FaultsConfig) (*FaultInjector, error) {
	logger.Tracef("build fault injector")

	f, err := filter.Build(conf.Config)
	if err != nil {
		return nil, err
	}

	errnos := make([]errnoWeight, 0, len(conf.Faults))
	sum := 0
	for _, fc := range conf.Faults {
		errnos = append(errnos, errnoWeight{errno: syscall.Errno(fc.Errno), weight: fc.Weight})
		sum += fc.Weight
	}
	if sum <= 0 && len(errnos) > 0 {
		return nil, fmt.Errorf("fault injector weights must sum to a positive number, got %d", sum)
	}

	return &FaultInjector{
		filter: f,
		errnos: errnos,
		sum:    sum,
		rng:    rand.New(rand.NewSource(rand.Int63())),
	}, nil
}

func (fi *FaultInjector) Inject(_ context.Context, method filter.Method, path string) error {
	if !fi.filter.Match(method, path) {
		return nil
	}
	if len(fi.errnos) == 0 {
		return nil
	}

	logger.Infof("inject io fault on %s", path)

	attempt := fi.roll(fi.sum)
	for _, ew := range fi.errnos {
		attempt -= ew.weight
		if attempt < 0 {
			logger.Infof("return with error %v", ew.errno)
			metrics.FaultsTotal.WithLabelValues(method.String(), strconv.Itoa(int(ew.errno))).Inc()
			return ew.errno
		}
	}
	// Rounding can leave attempt >= 0 after the final subtraction; fall
	// back to the last configured errno rather than silently succeeding.
	last := fi.errnos[len(fi.errnos)-1].errno
	metrics.FaultsTotal.WithLabelValues(method.String(), strconv.Itoa(int(last))).Inc()
	return last
}

func (fi *FaultInjector) roll(sum int) int {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return int(fi.rng.Float64() * float64(sum))
}
