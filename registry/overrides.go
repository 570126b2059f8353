// Copyright 2025 AxonFlow
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

package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ToolOverride adjusts one definition at startup
type ToolOverride struct {
	Enabled *bool  `yaml:"enabled"`
	Cost    *int64 `yaml:"cost"`
}

// Overrides is the tools configuration file:
//
//	tools:
//	  verify_pan:
//	    enabled: true
//	  get_identity_profile:
//	    cost: 4
//	guest_tools: [check_online_platforms, check_whatsapp]
type Overrides struct {
	Tools      map[string]ToolOverride `yaml:"tools"`
	GuestTools []string                `yaml:"guest_tools"`
}

// LoadOverrides reads a tools configuration file. A missing path yields nil.
func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tools config: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes a tools configuration document
func ParseOverrides(data []byte) (*Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse tools config: %w", err)
	}
	return &o, nil
}
