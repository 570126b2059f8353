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

package redact

import "strings"

// FieldClass is the kind of identifying value a result field holds
type FieldClass int

const (
	ClassNone FieldClass = iota
	ClassEmail
	ClassPhone
	ClassName
	ClassAddress
	ClassGovernmentID
)

// Entitlement reports whether a caller may see unmasked identifying data.
// *auth.Context satisfies it.
type Entitlement interface {
	RawRecordsAllowed() bool
}

// Policy decides which result fields are identifying
type Policy struct {
	fields      map[string]FieldClass
	passthrough map[string]bool
}

// DefaultPolicy classifies the identifying fields returned by the
// investigation and KYC backends.
func DefaultPolicy() *Policy {
	p := &Policy{
		fields:      make(map[string]FieldClass),
		passthrough: make(map[string]bool),
	}
	p.Classify(ClassEmail, "email", "emails", "email_address", "alternate_emails", "linked_emails")
	p.Classify(ClassPhone, "phones", "alternate_phones", "alternate_phone", "linked_phones", "mobile_numbers")
	p.Classify(ClassName, "name", "names", "full_name", "first_name", "last_name", "middle_name",
		"father_name", "display_name", "registered_name", "name_on_pan", "profile_name")
	p.Classify(ClassAddress, "address", "addresses", "postal_address", "current_address",
		"permanent_address", "full_address")
	p.Classify(ClassGovernmentID, "documents", "document_number", "pan", "pan_number", "aadhaar",
		"aadhaar_number", "masked_aadhaar", "voter_id", "passport", "passport_number",
		"driving_license", "government_id")
	p.Pass("source", "sources", "confidence", "count", "type", "category", "first_seen",
		"last_seen", "verified", "score", "status", "from_cache", "success", "document_type")
	return p
}

// Classify marks keys as holding identifying values of class
func (p *Policy) Classify(class FieldClass, keys ...string) {
	for _, k := range keys {
		p.fields[strings.ToLower(k)] = class
	}
}

// Pass marks keys whose values are never masked, even beneath an
// identifying field (for example the source of a name record).
func (p *Policy) Pass(keys ...string) {
	for _, k := range keys {
		p.passthrough[strings.ToLower(k)] = true
	}
}

// Apply returns the result to hand to the caller and whether masking was
// applied. A nil or non-entitled caller always gets masked output. The
// input is never modified.
func (p *Policy) Apply(e Entitlement, result interface{}) (interface{}, bool) {
	if e != nil && e.RawRecordsAllowed() {
		return result, false
	}
	return p.walk(result, ClassNone), true
}

// ApplyMap is Apply for the map results tool handlers return
func (p *Policy) ApplyMap(e Entitlement, result map[string]interface{}) (map[string]interface{}, bool) {
	out, masked := p.Apply(e, result)
	m, _ := out.(map[string]interface{})
	return m, masked
}

func (p *Policy) walk(v interface{}, inherited FieldClass) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[k] = p.walk(child, p.classFor(k, inherited))
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = p.walk(child, inherited)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = p.walk(child, inherited)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = p.maskString(s, inherited)
		}
		return out
	case string:
		return p.maskString(val, inherited)
	default:
		return v
	}
}

func (p *Policy) classFor(key string, inherited FieldClass) FieldClass {
	k := strings.ToLower(key)
	if class, ok := p.fields[k]; ok {
		return class
	}
	if p.passthrough[k] {
		return ClassNone
	}
	return inherited
}

func (p *Policy) maskString(s string, class FieldClass) string {
	if class == ClassNone {
		return s
	}
	return Mask(s)
}
