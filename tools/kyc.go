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
	"strings"

	"github.com/outris-dev-user/outris-identity-mcp/registry"
)

func kycTools(b Backend, enabled bool) []registry.ToolDefinition {
	nameParams := []registry.Param{
		{Name: "mobile", Type: registry.TypeString, Description: "10-digit mobile number", Required: true},
		{Name: "first_name", Type: registry.TypeString, Description: "First name (optional, improves accuracy)"},
		{Name: "last_name", Type: registry.TypeString, Description: "Last name (optional, improves accuracy)"},
	}

	return []registry.ToolDefinition{
		{
			Name: "verify_pan",
			Description: "Verifies a PAN and returns holder details: name, date of birth, gender, " +
				"PAN type and Aadhaar linking status.",
			Cost:     1,
			Category: registry.CategoryKYC,
			Enabled:  enabled,
			Params: []registry.Param{
				{Name: "pan", Type: registry.TypeString, Description: "10-character PAN number (e.g., ABCDE1234F)", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				return panDetails(ctx, b, args, false)
			},
		},
		{
			Name: "verify_pan_detailed",
			Description: "Comprehensive PAN verification including Aadhaar seeding status, name on card " +
				"and company details for corporate PANs.",
			Cost:     2,
			Category: registry.CategoryKYC,
			Enabled:  enabled,
			Params: []registry.Param{
				{Name: "pan", Type: registry.TypeString, Description: "10-character PAN number", Required: true},
			},
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				return panDetails(ctx, b, args, true)
			},
		},
		{
			Name:        "mobile_to_pan",
			Description: "Finds the PAN associated with a mobile number. Supplying names improves match accuracy.",
			Cost:        2,
			Category:    registry.CategoryKYC,
			Enabled:     enabled,
			Params:      nameParams,
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				mobile, resp, err := mobileLookup(ctx, b, args, "pan")
				if err != nil {
					return nil, err
				}
				return map[string]interface{}{
					"success":          true,
					"mobile":           mobile,
					"pan":              resp["pan"],
					"full_name":        resp["full_name"],
					"match_confidence": orDefault(resp, "match_confidence", "unknown"),
					"found":            stringArg(resp, "pan") != "",
				}, nil
			},
		},
		{
			Name:        "mobile_to_kyc",
			Description: "Returns the full KYC profile linked to a mobile number: PAN, name, date of birth, gender and Aadhaar status.",
			Cost:        3,
			Category:    registry.CategoryKYC,
			Enabled:     enabled,
			Params:      nameParams,
			Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
				mobile, resp, err := mobileLookup(ctx, b, args, "kyc")
				if err != nil {
					return nil, err
				}
				result := map[string]interface{}{
					"success":          true,
					"mobile":           mobile,
					"match_confidence": orDefault(resp, "match_confidence", "unknown"),
					"found":            stringArg(resp, "pan") != "",
				}
				for _, k := range []string{"pan", "full_name", "first_name", "middle_name", "last_name",
					"date_of_birth", "gender", "aadhaar_linked", "aadhaar_last_4", "data_source"} {
					result[k] = resp[k]
				}
				return result, nil
			},
		},
	}
}

func panDetails(ctx context.Context, b Backend, args map[string]interface{}, detailed bool) (map[string]interface{}, error) {
	pan := strings.ToUpper(stringArg(args, "pan"))
	if len(pan) != 10 {
		return nil, &registry.ArgumentError{Param: "pan", Reason: "must be exactly 10 characters"}
	}

	query := url.Values{"consent": []string{"true"}}
	if detailed {
		query.Set("provider", "v2")
	}
	resp, err := b.Get(ctx, "/kyc/pan/"+url.PathEscape(pan)+"/details", query)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"success":  true,
		"pan":      pan,
		"pan_type": orDefault(resp, "pan_type", "Individual"),
		"valid":    orDefault(resp, "success", true),
	}
	fields := []string{"full_name", "first_name", "middle_name", "last_name", "date_of_birth", "gender", "aadhaar_linked"}
	if detailed {
		fields = append(fields, "aadhaar_seeding_status", "last_updated", "name_on_card",
			"company_name", "company_status", "registration_date")
	}
	for _, k := range fields {
		result[k] = resp[k]
	}
	return result, nil
}

func mobileLookup(ctx context.Context, b Backend, args map[string]interface{}, kind string) (string, map[string]interface{}, error) {
	mobile := stringArg(args, "mobile")
	if len(mobile) != 10 {
		return "", nil, &registry.ArgumentError{Param: "mobile", Reason: "must be exactly 10 digits"}
	}
	query := url.Values{"mobile": []string{mobile}}
	if v := stringArg(args, "first_name"); v != "" {
		query.Set("first_name", v)
	}
	if v := stringArg(args, "last_name"); v != "" {
		query.Set("last_name", v)
	}
	resp, err := b.Get(ctx, "/kyc/mobile/"+url.PathEscape(mobile)+"/"+kind, query)
	if err != nil {
		return "", nil, err
	}
	return mobile, resp, nil
}
