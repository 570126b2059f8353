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
	"strings"

	"github.com/outris-dev-user/outris-identity-mcp/registry"
)

// DefaultPortalURL is where callers obtain an API key
const DefaultPortalURL = "https://portal.outris.com/mcp"

func fullAccessTool(portalURL string) registry.ToolDefinition {
	if portalURL == "" {
		portalURL = DefaultPortalURL
	}
	steps := []string{
		"Visit " + portalURL,
		"Generate your free API key",
		"Add it to your MCP client config: Authorization: Bearer <your-key>",
	}
	return registry.ToolDefinition{
		Name:        "get_full_access",
		Description: "Learn how to unlock all investigation tools",
		Cost:        0,
		Category:    registry.CategoryInfo,
		Enabled:     true,
		Handler: func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
			var b strings.Builder
			b.WriteString("To unlock all tools:")
			for i, s := range steps {
				b.WriteString("\n")
				b.WriteString(string(rune('1' + i)))
				b.WriteString(". ")
				b.WriteString(s)
			}
			return map[string]interface{}{
				"success":      true,
				"instructions": b.String(),
				"portal_url":   portalURL,
			}, nil
		},
	}
}
