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
	"time"

	"github.com/chaos-mesh/chaosfs/internal/chaos/filter"
	"github.com/chaos-mesh/chaosfs/internal/logger"
	"github.com/chaos-mesh/chaosfs/internal/metrics"
)

// LatencyInjector delays a matched operation by a fixed duration before
// letting it proceed.
type LatencyInjector struct {
	NopReplyInjector

	filter  *filter.Filter
	latency time.Duration
}

func BuildLatency(conf LatencyConfig) (*LatencyInjector, error) {
	logger.Tracef("build latency injector")

	f, err := filter.Build(conf.Config)
	if err != nil {
		return nil, err
	}
	return &LatencyInjector{filter: f, latency: conf.Latency}, nil
}

func (l *LatencyInjector) Inject(ctx context.Context, method filter.Method, path string) error {
	if !l.filter.Match(method, path) {
		return nil
	}

	logger.Infof("inject io delay %v on %s", l.latency, path)
	metrics.LatencyInjectedSeconds.WithLabelValues(method.String()).Observe(l.latency.Seconds())

	timer := time.NewTimer(l.latency)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
