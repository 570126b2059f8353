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
	"context"
	"fmt"
	"strings"

	"github.com/outris-dev-user/outris-identity-mcp/registry"
)

func commerceTools(b Backend) []registry.ToolDefinition {
	return []registry.ToolDefinition{{
		Name: "check_digital_commerce_activity",
		Description: "Checks whether a phone number has been used for digital commerce " +
			"(ecommerce, travel, quick commerce). Returns activity flags, timeline and demographics when available.",
		Cost:     1,
		Category: registry.CategoryCommerce,
		Enabled:  true,
		Params: []registry.Param{
			phoneParam("Phone number (with or without country code)"),
			{Name: "include_demographics", Type: registry.TypeBoolean, Description: "Include age/gender estimation (default: true)"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			phone, err := phoneArg(args)
			if err != nil {
				return nil, err
			}
			withDemographics := boolArg(args, "include_demographics", true)

			resp, err := b.Post(ctx, "/api/commerce/OS_digitalCommerce", map[string]interface{}{
				"phone":                  phone,
				"fetch_if_missing":       true,
				"include_demographics":   withDemographics,
				"include_breach_details": true,
			})
			if err != nil {
				return nil, err
			}
			return shapeCommerce(phone, withDemographics, resp), nil
		},
	}}
}

func shapeCommerce(phone string, withDemographics bool, resp map[string]interface{}) map[string]interface{} {
	types := []struct {
		label, key string
	}{
		{"ecommerce", "has_ecommerce"},
		{"quick_commerce", "has_quickcommerce"},
		{"travel_commerce", "has_travelcommerce"},
	}
	commerceTypes := make(map[string]interface{}, len(types))
	var active []string
	for _, t := range types {
		on := truthy(resp, t.key)
		commerceTypes[t.label] = on
		if on {
			active = append(active, t.label)
		}
	}

	hasActivity := truthy(resp, "has_digitalcommerce")
	result := map[string]interface{}{
		"success":               true,
		"phone":                 phone,
		"has_commerce_activity": hasActivity,
		"commerce_types":        commerceTypes,
		"timeline": map[string]interface{}{
			"first_seen": resp["first_seen"],
			"last_seen":  resp["last_seen"],
		},
		"activity_count": num(resp, "total_commerce_breaches"),
		"linked_identities": map[string]interface{}{
			"email_count": num(resp, "identity_email_count"),
			"name_count":  num(resp, "identity_name_count"),
		},
	}

	if demo, ok := resp["demographics"].(map[string]interface{}); withDemographics && ok && len(demo) > 0 {
		result["demographics"] = map[string]interface{}{
			"age":        demo["age"],
			"age_range":  demo["age_range"],
			"gender":     demo["gender"],
			"confidence": demo["confidence_score"],
		}
	}

	platforms := []interface{}{}
	for _, item := range list(resp, "breach_summary") {
		breach, ok := item.(map[string]interface{})
		if !ok || breach["category"] == nil || breach["category"] == "" {
			continue
		}
		platforms = append(platforms, map[string]interface{}{
			"category": breach["category"],
			"types":    list(breach, "commerce_types"),
		})
	}
	result["platforms"] = platforms

	if hasActivity {
		first, _ := resp["first_seen"].(string)
		if first == "" {
			first = "unknown"
		}
		result["summary"] = fmt.Sprintf("Active on %s. First activity: %s.", strings.Join(active, ", "), first)
	} else {
		result["summary"] = "No digital commerce activity found for this phone number."
	}
	return result
}
