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

package filter

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"

	"github.com/chaos-mesh/chaosfs/internal/logger"
)

// Config is the wire shape shared by every injector kind's "filter" fields:
// a glob path pattern, an optional operation allowlist, and a percent
// chance in [0, 100].
type Config struct {
	Path    string   `json:"path"`
	Methods []string `json:"methods,omitempty"`
	Percent int      `json:"percent"`
}

// Filter decides whether a given (method, path) pair should be subject to
// injection: the path must glob-match, the method must be in the
// configured set (or the set is empty, meaning "all methods"), and an
// independent random roll must land under percent/100.
type Filter struct {
	pathPattern string
	methods     Method
	probability float64

	mu  sync.Mutex
	rng *rand.Rand
}

// Build compiles a Config into a Filter, validating the glob pattern and
// resolving method names up front so Match never fails at request time.
func Build(conf Config) (*Filter, error) {
	logger.Tracef("build filter for path %q", conf.Path)

	methods := Method(0)
	if len(conf.Methods) == 0 {
		methods = All
	} else {
		for _, name := range conf.Methods {
			m, err := ParseMethod(name)
			if err != nil {
				return nil, err
			}
			methods |= m
		}
	}

	if _, err := filepath.Match(conf.Path, conf.Path); err != nil {
		return nil, fmt.Errorf("invalid path pattern %q: %w", conf.Path, err)
	}

	return &Filter{
		pathPattern: conf.Path,
		methods:     methods,
		probability: float64(conf.Percent) / 100.0,
		rng:         rand.New(rand.NewSource(rand.Int63())),
	}, nil
}

// Match reports whether method/path should be injected on this roll. The
// glob match is case-sensitive and treats "/" as a literal separator (the
// same contract filepath.Match already provides for non-"**" patterns),
// matching the original's case-sensitive, literal-separator glob options.
func (f *Filter) Match(method Method, path string) bool {
	matchPath, err := filepath.Match(f.pathPattern, path)
	if err != nil {
		matchPath = false
	}
	matchMethod := f.methods.Has(method)
	matchProbability := f.roll() < f.probability

	logger.Tracef("filter path=%v method=%v probability=%v", matchPath, matchMethod, matchProbability)

	return matchPath && matchMethod && matchProbability
}

func (f *Filter) roll() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64()
}
