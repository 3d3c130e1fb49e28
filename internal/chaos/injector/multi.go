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

	"github.com/chaos-mesh/chaosfs/internal/chaos/filter"
	"github.com/chaos-mesh/chaosfs/internal/chaos/reply"
	"github.com/chaos-mesh/chaosfs/internal/logger"
)

// MultiInjector runs a fixed, ordered list of injectors. Inject stops at
// the first one to fail (first-fault-wins); InjectReply always runs every
// injector, each seeing the mutations of the ones before it.
type MultiInjector struct {
	injectors []Injector
}

// BuildMulti compiles a whole stdin config array into one MultiInjector.
func BuildMulti(configs []Config) (*MultiInjector, error) {
	logger.Tracef("build multi-injector from %d configs", len(configs))

	injectors := make([]Injector, 0, len(configs))
	for _, conf := range configs {
		inj, err := Build(conf)
		if err != nil {
			return nil, err
		}
		injectors = append(injectors, inj)
	}
	return &MultiInjector{injectors: injectors}, nil
}

func (m *MultiInjector) Inject(ctx context.Context, method filter.Method, path string) error {
	for _, inj := range m.injectors {
		if err := inj.Inject(ctx, method, path); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiInjector) InjectReply(method filter.Method, path string, r *reply.Reply) error {
	for _, inj := range m.injectors {
		if err := inj.InjectReply(method, path, r); err != nil {
			return err
		}
	}
	return nil
}
