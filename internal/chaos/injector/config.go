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
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/chaos-mesh/chaosfs/internal/chaos/filter"
)

// Config is the decoded form of one element of the stdin JSON array: a
// discriminated union keyed by "type", mirroring the original's
// `#[serde(tag = "type")]` enum field-for-field.
type Config struct {
	Type         string
	Latency      *LatencyConfig
	Fault        *FaultsConfig
	AttrOverride *AttrOverrideConfig
}

type LatencyConfig struct {
	filter.Config
	Latency time.Duration `json:"latency"`
}

type FaultConfig struct {
	Errno  int `json:"errno"`
	Weight int `json:"weight"`
}

type FaultsConfig struct {
	filter.Config
	Faults []FaultConfig `json:"faults"`
}

type Timespec struct {
	Sec  int64 `json:"sec"`
	Nsec int32 `json:"nsec"`
}

type AttrOverrideConfig struct {
	Path    string `json:"path"`
	Percent int    `json:"percent"`

	Ino    *uint64   `json:"ino,omitempty"`
	Size   *uint64   `json:"size,omitempty"`
	Blocks *uint64   `json:"blocks,omitempty"`
	Atime  *Timespec `json:"atime,omitempty"`
	Mtime  *Timespec `json:"mtime,omitempty"`
	Ctime  *Timespec `json:"ctime,omitempty"`
	Kind   *string   `json:"kind,omitempty"`
	Perm   *uint16   `json:"perm,omitempty"`
	Nlink  *uint32   `json:"nlink,omitempty"`
	UID    *uint32   `json:"uid,omitempty"`
	GID    *uint32   `json:"gid,omitempty"`
	Rdev   *uint32   `json:"rdev,omitempty"`
}

// UnmarshalJSON decodes a single tagged-union element. encoding/json has no
// native discriminated-union support (unlike serde's #[serde(tag = ...)]),
// so we decode into a typed envelope keyed on "type" and then unmarshal the
// remaining fields into the matching concrete config — the idiomatic stdlib
// substitute, and why this file uses encoding/json directly rather than a
// generic decode helper (see DESIGN.md for why no third-party tagged-union
// decoder from the corpus fits here).
func (c *Config) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}

	c.Type = tag.Type
	switch tag.Type {
	case "latency":
		var raw struct {
			filter.Config
			Latency string `json:"latency"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		d, err := time.ParseDuration(raw.Latency)
		if err != nil {
			return fmt.Errorf("invalid latency %q: %w", raw.Latency, err)
		}
		c.Latency = &LatencyConfig{Config: raw.Config, Latency: d}
	case "fault":
		var fc FaultsConfig
		if err := json.Unmarshal(data, &fc); err != nil {
			return err
		}
		c.Fault = &fc
	case "attrOverride":
		var ac AttrOverrideConfig
		if err := json.Unmarshal(data, &ac); err != nil {
			return err
		}
		c.AttrOverride = &ac
	default:
		return fmt.Errorf("unknown injector type %q", tag.Type)
	}
	return nil
}

// DecodeConfigs reads the stdin JSON array of injector descriptors.
func DecodeConfigs(r io.Reader) ([]Config, error) {
	var configs []Config
	dec := json.NewDecoder(r)
	if err := dec.Decode(&configs); err != nil {
		return nil, fmt.Errorf("decoding injector config: %w", err)
	}
	return configs, nil
}
