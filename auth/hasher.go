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

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyPrefix marks gateway-issued API keys
	KeyPrefix = "mcp_"

	keyRandomBytes   = 32
	displayPrefixLen = 12
)

// Hasher computes the keyed one-way digest stored for each API key
type Hasher struct {
	key []byte
}

// NewHasher creates a hasher keyed by the configured credential-hashing key
func NewHasher(key string) *Hasher {
	return &Hasher{key: []byte(key)}
}

// Hash returns the hex HMAC-SHA256 digest of a raw API key
func (h *Hasher) Hash(raw string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Generate issues a new API key. The raw key is returned to the owner once;
// only the digest and the display prefix are stored.
func (h *Hasher) Generate() (raw, digest, prefix string, err error) {
	buf := make([]byte, keyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", fmt.Errorf("failed to generate key: %w", err)
	}
	raw = KeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return raw, h.Hash(raw), raw[:displayPrefixLen], nil
}

// StripScheme removes an optional "Bearer " prefix and surrounding whitespace
func StripScheme(bearer string) string {
	s := strings.TrimSpace(bearer)
	if strings.EqualFold(s, "bearer") {
		return ""
	}
	if len(s) >= 7 && strings.EqualFold(s[:7], "bearer ") {
		s = strings.TrimSpace(s[7:])
	}
	return s
}

// safePrefix returns up to n characters from s for safe logging
func safePrefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
