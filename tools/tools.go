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

// Package tools holds the identity investigation tool catalog. Each tool
// forwards to the investigation backend and reshapes its answer into a
// stable result document.
package tools

import (
	"context"
	"net/url"

	"github.com/outris-dev-user/outris-identity-mcp/registry"
)

// Backend is the subset of the backend client the handlers call
type Backend interface {
	Get(ctx context.Context, path string, query url.Values) (map[string]interface{}, error)
	Post(ctx context.Context, path string, body interface{}) (map[string]interface{}, error)
}

// Options toggles optional tool groups
type Options struct {
	// EnableKYC switches on the PAN and mobile KYC tools
	EnableKYC bool
	// EnableTraceflow switches on the combined investigation tool
	EnableTraceflow bool
	// PortalURL is quoted by get_full_access
	PortalURL string
}

// GuestTools are callable without a credential
var GuestTools = []string{"check_online_platforms", "check_whatsapp", "get_full_access"}

// All returns every tool definition bound to b
func All(b Backend, opts Options) []registry.ToolDefinition {
	var defs []registry.ToolDefinition
	defs = append(defs, platformTools(b)...)
	defs = append(defs, commerceTools(b)...)
	defs = append(defs, breachTools(b)...)
	defs = append(defs, investigationTools(b)...)
	defs = append(defs, kycTools(b, opts.EnableKYC)...)
	defs = append(defs, traceflowTool(b, opts.EnableTraceflow))
	defs = append(defs, fullAccessTool(opts.PortalURL))
	return defs
}

// NewCatalog builds the immutable catalog with the guest allow-list and any
// file overrides applied
func NewCatalog(b Backend, opts Options, overrides *registry.Overrides) (*registry.Catalog, error) {
	return registry.NewBuilder().
		Register(All(b, opts)...).
		AllowGuest(GuestTools...).
		Apply(overrides).
		Build()
}
