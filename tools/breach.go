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
	"strings"

	"github.com/outris-dev-user/outris-identity-mcp/registry"
)

var fetchIfMissing = url.Values{"fetch_if_missing": []string{"true"}}

func breachTools(b Backend) []registry.ToolDefinition {
	return []registry.ToolDefinition{{
		Name: "check_breaches",
		Description: "Checks whether a phone number or email address appears in known data breaches. " +
			"Returns breach names and dates for emails, breach categories for phones.",
		Cost:     1,
		Category: registry.CategorySecurity,
		Enabled:  true,
		Params: []registry.Param{
			{Name: "identifier", Type: registry.TypeString, Description: "Email address or phone number to check", Required: true},
			{Name: "identifier_type", Type: registry.TypeString, Description: "'email' or 'phone' (auto-detected if omitted)"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			identifier := stringArg(args, "identifier")
			kind := strings.ToLower(stringArg(args, "identifier_type"))
			if kind == "" {
				kind = "phone"
				if strings.Contains(identifier, "@") {
					kind = "email"
				}
			}

			switch kind {
			case "email":
				return emailBreaches(ctx, b, identifier)
			case "phone":
				return phoneBreaches(ctx, b, NormalizePhone(identifier))
			default:
				return nil, &registry.ArgumentError{Param: "identifier_type", Reason: "must be 'email' or 'phone'"}
			}
		},
	}}
}

func emailBreaches(ctx context.Context, b Backend, email string) (map[string]interface{}, error) {
	resp, err := b.Get(ctx, "/api/breach/email/"+url.PathEscape(email), fetchIfMissing)
	if err != nil {
		return nil, err
	}

	breaches := []interface{}{}
	for _, item := range list(resp, "breaches") {
		br, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		// Both the legacy capitalised and the current snake_case layouts are served.
		breaches = append(breaches, map[string]interface{}{
			"name":         firstOf(br, "Unknown", "Name", "name"),
			"title":        firstOf(br, "", "Title", "title"),
			"breach_date":  firstOf(br, "", "BreachDate", "breach_date"),
			"data_types":   firstOf(br, []interface{}{}, "DataClasses", "data_types"),
			"is_verified":  firstOf(br, false, "IsVerified", "is_verified"),
			"is_sensitive": firstOf(br, false, "IsSensitive", "is_sensitive"),
		})
	}

	summary := "No breaches found for this email."
	if len(breaches) > 0 {
		summary = fmt.Sprintf("Found %d data breaches for this email.", len(breaches))
	}
	return map[string]interface{}{
		"success":         true,
		"identifier":      email,
		"identifier_type": "email",
		"total_breaches":  len(breaches),
		"breaches":        breaches,
		"source":          "outris",
		"summary":         summary,
	}, nil
}

func phoneBreaches(ctx context.Context, b Backend, phone string) (map[string]interface{}, error) {
	if phone == "" {
		return nil, &registry.ArgumentError{Param: "identifier", Reason: "must not be empty"}
	}
	resp, err := b.Get(ctx, "/api/breach/phone/"+url.PathEscape(phone), fetchIfMissing)
	if err != nil {
		return nil, err
	}

	categories := list(resp, "breach_categories")
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		if s, ok := c.(string); ok {
			names = append(names, s)
		}
	}
	summary := "No breach records found for this phone."
	if n := len(list(resp, "breaches")); n > 0 {
		summary = fmt.Sprintf("Found in %d data sources across categories: %s.", n, strings.Join(names, ", "))
	}
	return map[string]interface{}{
		"success":           true,
		"identifier":        phone,
		"identifier_type":   "phone",
		"total_breaches":    num(resp, "total_breaches"),
		"breach_categories": categories,
		"earliest_date":     resp["earliest_date"],
		"latest_date":       resp["latest_date"],
		"source":            "outris",
		"summary":           summary,
	}, nil
}

func firstOf(m map[string]interface{}, def interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil && v != "" {
			return v
		}
	}
	return def
}
