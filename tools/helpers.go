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

package tools

import (
	"strings"

	"github.com/outris-dev-user/outris-identity-mcp/registry"
)

// NormalizePhone strips formatting and prefixes 91 to ten digit Indian
// mobile numbers
func NormalizePhone(phone string) string {
	p := strings.TrimSpace(phone)
	p = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(p)
	p = strings.TrimPrefix(p, "+")
	if len(p) == 10 && strings.ContainsRune("6789", rune(p[0])) {
		p = "91" + p
	}
	return p
}

func stringArg(args map[string]interface{}, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}

func boolArg(args map[string]interface{}, name string, def bool) bool {
	if b, ok := args[name].(bool); ok {
		return b
	}
	return def
}

func phoneArg(args map[string]interface{}) (string, error) {
	phone := NormalizePhone(stringArg(args, "phone"))
	if phone == "" {
		return "", &registry.ArgumentError{Param: "phone", Reason: "must not be empty"}
	}
	return phone, nil
}

func obj(m map[string]interface{}, key string) map[string]interface{} {
	if v, ok := m[key].(map[string]interface{}); ok {
		return v
	}
	return map[string]interface{}{}
}

func list(m map[string]interface{}, key string) []interface{} {
	if v, ok := m[key].([]interface{}); ok {
		return v
	}
	return []interface{}{}
}

func num(m map[string]interface{}, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

func truthy(m map[string]interface{}, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "yes", "registered", "1":
			return true
		}
	case float64:
		return v != 0
	}
	return false
}

func orDefault(m map[string]interface{}, key string, def interface{}) interface{} {
	if v, ok := m[key]; ok && v != nil {
		return v
	}
	return def
}

func phoneParam(desc string) registry.Param {
	return registry.Param{Name: "phone", Type: registry.TypeString, Description: desc, Required: true}
}
