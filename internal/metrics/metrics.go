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

// Package metrics exposes the counters an operator needs to tell whether
// an injection is actually firing: how many operations were faulted,
// delayed, or had their reply attributes rewritten, broken down by FUSE
// operation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FaultsTotal counts every operation an injector short-circuited with
	// an errno, labeled by the FUSE method name and the errno returned.
	FaultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chaosfs",
		Name:      "faults_total",
		Help:      "Number of operations short-circuited with an injected errno.",
	}, []string{"method", "errno"})

	// LatencyInjectedSeconds observes the sleep duration an injector
	// added before an operation ran, labeled by FUSE method name.
	LatencyInjectedSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chaosfs",
		Name:      "latency_injected_seconds",
		Help:      "Extra latency injected before an operation, in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"method"})

	// AttrOverridesTotal counts replies whose attributes were rewritten
	// by an attribute-override injector.
	AttrOverridesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chaosfs",
		Name:      "attr_overrides_total",
		Help:      "Number of replies whose attributes were rewritten.",
	}, []string{"method"})
)

// Server serves /metrics on addr until Shutdown is called.
type Server struct {
	http *http.Server
}

// NewServer builds (but does not start) a metrics endpoint on addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{http: &http.Server{Addr: addr, Handler: mux}}
}

// Serve blocks until the server stops; ErrServerClosed from a graceful
// Shutdown is not an error to the caller.
func (s *Server) Serve() error {
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gives in-flight scrapes up to 5 seconds to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
