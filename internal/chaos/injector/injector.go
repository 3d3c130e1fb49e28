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

// Package injector implements the three injectable fault kinds (latency,
// errno faults, attribute overrides) and their ordered composition.
package injector

import (
	"context"

	"github.com/chaos-mesh/chaosfs/internal/chaos/filter"
	"github.com/chaos-mesh/chaosfs/internal/chaos/reply"
)

// Injector is implemented by every fault kind. Inject runs before the real
// operation and can short-circuit it by returning an error (a syscall
// errno, by convention). InjectReply runs after a successful operation and
// can mutate its reply in place.
type Injector interface {
	Inject(ctx context.Context, method filter.Method, path string) error
	InjectReply(method filter.Method, path string, reply *reply.Reply) error
}

// NopReplyInjector is embedded by injectors that never touch a reply, so
// they only need to implement Inject.
type NopReplyInjector struct{}

func (NopReplyInjector) InjectReply(filter.Method, string, *reply.Reply) error { return nil }

// NopInjector is embedded by injectors that never fail the call outright
// (AttrOverride), so they only need to implement InjectReply.
type NopInjector struct{}

func (NopInjector) Inject(context.Context, filter.Method, string) error { return nil }

// Build compiles one decoded Config into its concrete Injector.
func Build(conf Config) (Injector, error) {
	switch {
	case conf.Latency != nil:
		return BuildLatency(*conf.Latency)
	case conf.Fault != nil:
		return BuildFault(*conf.Fault)
	case conf.AttrOverride != nil:
		return BuildAttrOverride(*conf.AttrOverride)
	default:
		return nil, errUnrecognizedConfig
	}
}

var errUnrecognizedConfig = injectorError("injector config carries no recognized variant")

type injectorError string

func (e injectorError) Error() string { return string(e) }
