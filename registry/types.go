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
	"context"
)

// ParamType is the JSON type of a tool parameter
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
	TypeArray   ParamType = "array"
)

// Category groups tools by capability
type Category string

const (
	CategoryPlatforms     Category = "platforms"
	CategoryCommerce      Category = "commerce"
	CategorySecurity      Category = "security"
	CategoryInvestigation Category = "investigation"
	CategoryKYC           Category = "kyc"
	CategoryInfo          Category = "info"
)

// Param describes one tool argument
type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// HandlerFunc executes a tool with validated arguments
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)

// ToolDefinition is one catalog entry
type ToolDefinition struct {
	Name        string
	Description string
	Cost        int64
	Params      []Param
	Category    Category
	Enabled     bool
	Handler     HandlerFunc
}

// Available returns ErrToolDisabled for disabled definitions
func (d *ToolDefinition) Available() error {
	if !d.Enabled {
		return ErrToolDisabled
	}
	return nil
}

// Visibility selects which definitions a caller can discover
type Visibility int

const (
	// VisibilityGuest lists the enabled guest allow-list only
	VisibilityGuest Visibility = iota
	// VisibilityFull lists every enabled definition
	VisibilityFull
)
