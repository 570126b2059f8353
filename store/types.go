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

package store

import (
	"encoding/json"
	"strings"
	"time"
)

// EntryKind is the cause of a ledger entry
type EntryKind string

const (
	KindUsage            EntryKind = "usage"
	KindRefund           EntryKind = "refund"
	KindTopup            EntryKind = "topup"
	KindManualAdjustment EntryKind = "manual-adjustment"
)

// Valid reports whether k is one of the known entry kinds
func (k EntryKind) Valid() bool {
	switch k {
	case KindUsage, KindRefund, KindTopup, KindManualAdjustment:
		return true
	}
	return false
}

// CallStatus is the lifecycle state of a call record
type CallStatus string

const (
	StatusPending   CallStatus = "pending"
	StatusSucceeded CallStatus = "succeeded"
	StatusFailed    CallStatus = "failed"
)

// FaultClass attributes a failed call to the upstream provider or to the caller.
type FaultClass string

const (
	FaultNone    FaultClass = ""
	FaultBackend FaultClass = "backend"
	FaultCaller  FaultClass = "caller"
)

// Tier labels
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Account is a registered caller of the gateway
type Account struct {
	ID                int64      `json:"id"`
	Email             string     `json:"email"`
	DisplayName       string     `json:"display_name,omitempty"`
	KeyPrefix         string     `json:"key_prefix"`
	Balance           int64      `json:"balance"`
	MonthlyAllocation int64      `json:"monthly_allocation"`
	Tier              string     `json:"tier"`
	Active            bool       `json:"active"`
	AllowRawRecords   bool       `json:"allow_raw_records"`
	TotalCalls        int64      `json:"total_calls"`
	TotalCreditsSpent int64      `json:"total_credits_spent"`
	LastSeenAt        *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// LedgerEntry is an immutable record of one balance change
type LedgerEntry struct {
	ID            int64     `json:"id"`
	AccountID     int64     `json:"account_id"`
	Kind          EntryKind `json:"kind"`
	Amount        int64     `json:"amount"`
	BalanceBefore int64     `json:"balance_before"`
	BalanceAfter  int64     `json:"balance_after"`
	CallID        string    `json:"call_id,omitempty"`
	Reason        string    `json:"reason"`
	CreatedAt     time.Time `json:"created_at"`
}

// CallRecord tracks one metered tool invocation from reservation to settlement
type CallRecord struct {
	CallID        string          `json:"call_id"`
	AccountID     int64           `json:"account_id"`
	ToolName      string          `json:"tool_name"`
	DeclaredCost  int64           `json:"declared_cost"`
	Charged       int64           `json:"charged"`
	BalanceBefore int64           `json:"balance_before"`
	BalanceAfter  int64           `json:"balance_after"`
	InputSummary  json.RawMessage `json:"input_summary,omitempty"`
	Status        CallStatus      `json:"status"`
	Fault         FaultClass      `json:"fault,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	LatencyMS     int64           `json:"latency_ms"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// Terminal reports whether the call has been settled
func (c *CallRecord) Terminal() bool {
	return c.Status != StatusPending
}

// NormalizeEmail lower-cases and trims an owner email
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
