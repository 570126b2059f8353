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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Builder collects tool definitions at startup. It is not safe for
// concurrent use; Build produces the immutable Catalog.
type Builder struct {
	defs  []ToolDefinition
	index map[string]int
	guest []string
	errs  []error
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{index: make(map[string]int)}
}

// Register adds a definition. Errors are collected and reported by Build.
func (b *Builder) Register(defs ...ToolDefinition) *Builder {
	for _, def := range defs {
		if err := validateDefinition(def); err != nil {
			b.errs = append(b.errs, err)
			continue
		}
		if _, exists := b.index[def.Name]; exists {
			b.errs = append(b.errs, fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name))
			continue
		}
		def.Params = append([]Param(nil), def.Params...)
		b.index[def.Name] = len(b.defs)
		b.defs = append(b.defs, def)
	}
	return b
}

// AllowGuest adds tools to the anonymous allow-list
func (b *Builder) AllowGuest(names ...string) *Builder {
	b.guest = append(b.guest, names...)
	return b
}

// Apply overlays per-tool enablement and cost overrides
func (b *Builder) Apply(o *Overrides) *Builder {
	if o == nil {
		return b
	}
	for name, ov := range o.Tools {
		i, ok := b.index[name]
		if !ok {
			b.errs = append(b.errs, fmt.Errorf("%w: override for unknown tool %s", ErrToolNotFound, name))
			continue
		}
		if ov.Enabled != nil {
			b.defs[i].Enabled = *ov.Enabled
		}
		if ov.Cost != nil {
			if *ov.Cost < 0 {
				b.errs = append(b.errs, fmt.Errorf("%w: negative cost override for %s", ErrInvalidDefinition, name))
				continue
			}
			b.defs[i].Cost = *ov.Cost
		}
	}
	if len(o.GuestTools) > 0 {
		b.guest = append([]string(nil), o.GuestTools...)
	}
	return b
}

// Build validates the collected definitions and returns the catalog
func (b *Builder) Build() (*Catalog, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	c := &Catalog{
		tools: make(map[string]*ToolDefinition, len(b.defs)),
		guest: make(map[string]bool, len(b.guest)),
	}
	for i := range b.defs {
		def := b.defs[i]
		c.tools[def.Name] = &def
		c.order = append(c.order, def.Name)
	}
	sort.Strings(c.order)

	for _, name := range b.guest {
		if _, ok := c.tools[name]; !ok {
			return nil, fmt.Errorf("%w: guest tool %s is not registered", ErrToolNotFound, name)
		}
		c.guest[name] = true
	}
	c.version = c.digest()
	return c, nil
}

// Catalog is the immutable tool registry shared by every call
type Catalog struct {
	tools   map[string]*ToolDefinition
	order   []string
	guest   map[string]bool
	version string
}

// Lookup returns the definition for name, enabled or not
func (c *Catalog) Lookup(name string) (*ToolDefinition, error) {
	def, ok := c.tools[name]
	if !ok {
		return nil, ErrToolNotFound
	}
	return def, nil
}

// List returns the enabled definitions visible at the given level, sorted by name
func (c *Catalog) List(v Visibility) []*ToolDefinition {
	var out []*ToolDefinition
	for _, name := range c.order {
		def := c.tools[name]
		if !def.Enabled {
			continue
		}
		if v == VisibilityGuest && !c.guest[name] {
			continue
		}
		out = append(out, def)
	}
	return out
}

// All returns every definition including disabled ones, sorted by name
func (c *Catalog) All() []*ToolDefinition {
	out := make([]*ToolDefinition, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.tools[name])
	}
	return out
}

// IsGuestAllowed reports whether name may be called without a credential
func (c *Catalog) IsGuestAllowed(name string) bool {
	return c.guest[name]
}

// Version is a short digest of names, costs and enablement
func (c *Catalog) Version() string {
	return c.version
}

// Len returns the number of registered definitions
func (c *Catalog) Len() int {
	return len(c.order)
}

func (c *Catalog) digest() string {
	var sb strings.Builder
	for _, name := range c.order {
		def := c.tools[name]
		sb.WriteString(name)
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(def.Cost, 10))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatBool(def.Enabled))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatBool(c.guest[name]))
		sb.WriteByte(';')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])[:12]
}

func validateDefinition(def ToolDefinition) error {
	switch {
	case strings.TrimSpace(def.Name) == "":
		return fmt.Errorf("%w: empty name", ErrInvalidDefinition)
	case def.Cost < 0:
		return fmt.Errorf("%w: %s has negative cost", ErrInvalidDefinition, def.Name)
	case def.Handler == nil:
		return fmt.Errorf("%w: %s has no handler", ErrInvalidDefinition, def.Name)
	}
	seen := make(map[string]bool, len(def.Params))
	for _, p := range def.Params {
		if p.Name == "" || seen[p.Name] {
			return fmt.Errorf("%w: %s has an empty or repeated parameter", ErrInvalidDefinition, def.Name)
		}
		seen[p.Name] = true
	}
	return nil
}
