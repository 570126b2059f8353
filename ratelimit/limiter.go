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

// Package ratelimit caps anonymous (guest) tool calls per caller origin.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const (
	// DefaultLimit is the number of guest calls allowed per window
	DefaultLimit = 3
	// DefaultWindow is the sliding window length
	DefaultWindow = 24 * time.Hour
)

// Decision is the result of one limiter check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether an origin may make another guest call
type Limiter interface {
	Allow(ctx context.Context, origin string) Decision
}

// OriginKey hashes a network origin so raw addresses are never stored
func OriginKey(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:16]
}

// MemoryLimiter is a process-local sliding window limiter. State does not
// survive restarts and is not shared between instances.
type MemoryLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	pruned time.Time
	now    func() time.Time
}

// NewMemoryLimiter creates a process-local limiter
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records a call for origin if it is within the limit
func (m *MemoryLimiter) Allow(ctx context.Context, origin string) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := OriginKey(origin)
	now := m.now()
	cutoff := now.Add(-m.window)
	m.prune(now, cutoff)

	kept := m.hits[key][:0]
	for _, t := range m.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	d := Decision{Limit: m.limit, ResetAt: now.Add(m.window)}
	if len(kept) > 0 {
		d.ResetAt = kept[0].Add(m.window)
	}
	if len(kept) >= m.limit {
		m.hits[key] = kept
		return d
	}

	kept = append(kept, now)
	m.hits[key] = kept
	d.Allowed = true
	d.Remaining = m.limit - len(kept)
	return d
}

// prune drops origins with no hits inside the window. It scans the map at
// most once per window.
func (m *MemoryLimiter) prune(now, cutoff time.Time) {
	if now.Sub(m.pruned) < m.window {
		return
	}
	m.pruned = now
	for key, hits := range m.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(m.hits, key)
		}
	}
}

// Unlimited allows every call
type Unlimited struct{}

// Allow always allows
func (Unlimited) Allow(ctx context.Context, origin string) Decision {
	return Decision{Allowed: true, Limit: -1, Remaining: -1}
}
