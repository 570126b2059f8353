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
	"net/url"

	"github.com/outris-dev-user/outris-identity-mcp/registry"
)

// lookup describes a single-list investigation endpoint
type lookup struct {
	name        string
	description string
	cost        int64
	segment     string
	field       string
}

var lookups = []lookup{
	{
		name:        "get_name",
		description: "Identifies the owner of a phone number. Returns full names linked to the phone with confidence scores.",
		cost:        2,
		segment:     "names",
		field:       "names",
	},
	{
		name:        "get_email",
		description: "Finds email addresses linked to a phone number, with confidence scores.",
		cost:        2,
		segment:     "emails",
		field:       "emails",
	},
	{
		name:        "get_address",
		description: "Finds physical addresses associated with a phone number, with address type and dates.",
		cost:        2,
		segment:     "addresses",
		field:       "addresses",
	},
	{
		name:        "get_alternate_phones",
		description: "Finds other phone numbers belonging to the same person through shared names, emails or addresses.",
		cost:        2,
		segment:     "alternate-phones",
		field:       "alternate_phones",
	},
}

func investigationTools(b Backend) []registry.ToolDefinition {
	defs := []registry.ToolDefinition{{
		Name: "get_identity_profile",
		Description: "Comprehensive identity report for a phone number: names, emails, addresses, " +
			"documents, metadata and breach categories in one call.",
		Cost:     3,
		Category: registry.CategoryInvestigation,
		Enabled:  true,
		Params:   []registry.Param{phoneParam("Phone number")},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			phone, err := phoneArg(args)
			if err != nil {
				return nil, err
			}
			resp, err := b.Get(ctx, "/api/investigate/enhanced/phone/"+url.PathEscape(phone)+"/complete", fetchIfMissing)
			if err != nil {
				return nil, err
			}
			basic := obj(resp, "basic_data")
			enhanced := obj(resp, "enhanced_data")
			summary := obj(resp, "summary")
			counts := make(map[string]interface{})
			for _, k := range []string{"names_count", "emails_count", "addresses_count", "alternate_phones_count", "documents_count", "person_ids_count"} {
				counts[k] = num(summary, k)
			}
			return map[string]interface{}{
				"success":           true,
				"phone":             phone,
				"names":             list(basic, "names"),
				"emails":            list(basic, "emails"),
				"addresses":         list(basic, "addresses"),
				"alternate_phones":  list(basic, "alternate_phones"),
				"documents":         list(enhanced, "documents"),
				"metadata":          obj(enhanced, "metadata"),
				"breach_categories": list(enhanced, "breach_categories"),
				"summary":           counts,
				"person_ids":        list(resp, "person_ids"),
				"generated_at":      resp["generated_at"],
			}, nil
		},
	}}

	for _, l := range lookups {
		defs = append(defs, lookupTool(b, l))
	}
	return defs
}

func lookupTool(b Backend, l lookup) registry.ToolDefinition {
	return registry.ToolDefinition{
		Name:        l.name,
		Description: l.description,
		Cost:        l.cost,
		Category:    registry.CategoryInvestigation,
		Enabled:     true,
		Params:      []registry.Param{phoneParam("Phone number")},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			phone, err := phoneArg(args)
			if err != nil {
				return nil, err
			}
			resp, err := b.Get(ctx, "/api/investigate/phone/"+url.PathEscape(phone)+"/"+l.segment, fetchIfMissing)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"success": true,
				"phone":   phone,
				l.field:   list(resp, l.field),
				"count":   num(resp, "count"),
			}, nil
		},
	}
}
