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
	"net/url"

	"github.com/outris-dev-user/outris-identity-mcp/registry"
)

func platformTools(b Backend) []registry.ToolDefinition {
	return []registry.ToolDefinition{
		{
			Name: "check_online_platforms",
			Description: "Checks whether a phone number is registered on major global platforms " +
				"(Amazon, Instagram, Snapchat). Returns registration status per platform.",
			Cost:     1,
			Category: registry.CategoryPlatforms,
			Enabled:  true,
			Params:   []registry.Param{phoneParam("Phone number (with or without country code)")},
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				phone, err := phoneArg(args)
				if err != nil {
					return nil, err
				}
				resp, err := b.Post(ctx, "/api/platforms/check", map[string]interface{}{
					"phone":      phone,
					"skip_cache": false,
				})
				if err != nil {
					return nil, err
				}
				registered := num(resp, "registered_count")
				checked := num(resp, "platforms_checked")
				return map[string]interface{}{
					"success":              true,
					"phone":                orDefault(resp, "phone", phone),
					"country":              orDefault(resp, "country", "UNKNOWN"),
					"source":               "outris",
					"platforms_checked":    checked,
					"registered_count":     registered,
					"registered_platforms": list(resp, "registered_platforms"),
					"not_registered":       list(resp, "not_registered"),
					"from_cache":           truthy(resp, "from_cache"),
					"errors":               resp["errors"],
					"summary":              fmt.Sprintf("Found %d platform registrations out of %d checked", int(registered), int(checked)),
				}, nil
			},
		},
		{
			Name: "check_whatsapp",
			Description: "Checks whether a phone number is registered on WhatsApp. Returns registration " +
				"status, last check time, public about text and profile picture availability.",
			Cost:     1,
			Category: registry.CategoryPlatforms,
			Enabled:  true,
			Params:   []registry.Param{phoneParam("Phone number with country code")},
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				phone, err := phoneArg(args)
				if err != nil {
					return nil, err
				}
				resp, err := b.Get(ctx, "/api/whatsapp/"+url.PathEscape(phone), nil)
				if err != nil {
					return nil, err
				}
				registered := truthy(resp, "whatsapp_status")
				status := "not_registered"
				if registered {
					status = "registered"
				}
				return map[string]interface{}{
					"success":         true,
					"phone":           phone,
					"registered":      registered,
					"status":          status,
					"last_checked":    resp["last_checked"],
					"profile_picture": resp["has_profile_picture"],
					"about":           resp["about"],
				}, nil
			},
		},
	}
}
