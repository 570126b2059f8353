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

func traceflowTool(b Backend, enabled bool) registry.ToolDefinition {
	return registry.ToolDefinition{
		Name: "traceflow",
		Description: "Full phone investigation combining identity data, documents, social profiles " +
			"and breach categories, with a data richness score from 0 to 100.",
		Cost:     5,
		Category: registry.CategoryInvestigation,
		Enabled:  enabled,
		Params:   []registry.Param{phoneParam("Phone number to investigate")},
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			phone, err := phoneArg(args)
			if err != nil {
				return nil, err
			}
			resp, err := b.Get(ctx, "/api/traceflow/"+url.PathEscape(phone), nil)
			if err != nil {
				return nil, err
			}

			investigate := obj(resp, "investigate")
			basic := obj(investigate, "basic_data")
			enhanced := obj(investigate, "enhanced_data")
			social := obj(resp, "social")
			summary := obj(resp, "summary")

			counts := make(map[string]interface{})
			for _, k := range []string{"names_found", "emails_found", "addresses_found",
				"alternate_phones_found", "social_profiles_found", "data_richness_score"} {
				counts[k] = num(summary, k)
			}

			return map[string]interface{}{
				"success":           true,
				"phone":             orDefault(resp, "phone", phone),
				"country":           orDefault(resp, "phone_country", "UNKNOWN"),
				"request_id":        resp["request_id"],
				"names":             list(basic, "names"),
				"emails":            list(basic, "emails"),
				"addresses":         list(basic, "addresses"),
				"alternate_phones":  list(basic, "alternate_phones"),
				"documents":         list(enhanced, "documents"),
				"metadata":          obj(enhanced, "metadata"),
				"breach_categories": list(enhanced, "breach_categories"),
				"social_profiles": map[string]interface{}{
					"global":      list(social, "global_profiles"),
					"india":       list(social, "india_profiles"),
					"total_count": num(social, "total_profiles"),
				},
				"summary":      counts,
				"data_sources": list(resp, "data_sources"),
				"generated_at": resp["generated_at"],
			}, nil
		},
	}
}
