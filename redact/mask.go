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

// Package redact masks identifying values in tool results for callers
// without the raw-record entitlement.
package redact

import (
	"strings"
	"unicode"
)

const maskRune = '*'

// Mask hides most of a value while keeping its length and enough shape to
// sanity-check it. The rule is picked from the value itself:
//
//   - email: the domain is kept; a local part longer than 7 keeps its first
//     two, middle two and last rune, 3 to 7 keeps first and last, shorter
//     keeps only the first
//   - phone (optional "+", 10 or more digits): first two, middle and last four
//   - anything else: longer than 8 keeps first three and last three, 3 to 8
//     keeps first and last, shorter keeps only the first
//
// Surrounding whitespace is trimmed first. Mask is pure: the same input
// always yields the same output.
func Mask(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}

	if masked, ok := maskEmail(value); ok {
		return masked
	}

	runes := []rune(value)
	n := len(runes)

	if isPhone(value) && n >= 10 {
		mid := n / 2
		keep := map[int]bool{0: true, 1: true, mid: true}
		for i := n - 4; i < n; i++ {
			keep[i] = true
		}
		return apply(runes, keep)
	}

	return maskGeneral(runes)
}

func maskEmail(value string) (string, bool) {
	if !strings.Contains(value, "@") || !strings.Contains(value, ".") {
		return "", false
	}
	at := strings.Index(value, "@")
	local := []rune(value[:at])
	domain := value[at+1:]
	n := len(local)
	if n == 0 {
		return "", false
	}

	var masked string
	switch {
	case n > 7:
		mid := n / 2
		masked = apply(local, map[int]bool{0: true, 1: true, mid - 1: true, mid: true, n - 1: true})
	case n > 2:
		masked = apply(local, map[int]bool{0: true, n - 1: true})
	default:
		masked = apply(local, map[int]bool{0: true})
	}
	return masked + "@" + domain, true
}

func maskGeneral(runes []rune) string {
	n := len(runes)
	switch {
	case n > 8:
		return apply(runes, map[int]bool{0: true, 1: true, 2: true, n - 3: true, n - 2: true, n - 1: true})
	case n > 2:
		return apply(runes, map[int]bool{0: true, n - 1: true})
	default:
		return apply(runes, map[int]bool{0: true})
	}
}

func isPhone(value string) bool {
	digits := strings.ReplaceAll(value, "+", "")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func apply(runes []rune, keep map[int]bool) string {
	out := make([]rune, len(runes))
	for i, r := range runes {
		if keep[i] {
			out[i] = r
		} else {
			out[i] = maskRune
		}
	}
	return string(out)
}
