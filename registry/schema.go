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
	"encoding/json"
	"math"
)

// InputSchema renders the JSON Schema advertised by tools/list
func InputSchema(def *ToolDefinition) map[string]interface{} {
	properties := make(map[string]interface{}, len(def.Params))
	required := make([]string, 0, len(def.Params))
	for _, p := range def.Params {
		prop := map[string]interface{}{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// ValidateArguments checks required parameters and JSON types. Unknown
// arguments are ignored.
func ValidateArguments(def *ToolDefinition, args map[string]interface{}) error {
	for _, p := range def.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return &ArgumentError{Param: p.Name, Reason: "required"}
			}
			continue
		}
		if !matchesType(p.Type, v) {
			return &ArgumentError{Param: p.Name, Reason: "expected " + string(p.Type)}
		}
		if s, isString := v.(string); isString && p.Required && s == "" {
			return &ArgumentError{Param: p.Name, Reason: "must not be empty"}
		}
	}
	return nil
}

func matchesType(t ParamType, v interface{}) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, float32, int, int64, json.Number:
			return true
		}
		return false
	case TypeInteger:
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		case json.Number:
			_, err := n.Int64()
			return err == nil
		}
		return false
	case TypeObject:
		_, ok := v.(map[string]interface{})
		return ok
	case TypeArray:
		_, ok := v.([]interface{})
		return ok
	}
	return true
}
