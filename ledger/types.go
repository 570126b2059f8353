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

package ledger

import (
	"encoding/json"
	"time"

	"github.com/outris-dev-user/outris-identity-mcp/store"
)

// ReserveRequest asks the ledger to charge a call up front
type ReserveRequest struct {
	AccountID    int64
	Tool         string
	Cost         int64
	CallID       string
	InputSummary json.RawMessage
}

// Reservation is the result of a successful reserve
type Reservation struct {
	CallID        string
	AccountID     int64
	Tool          string
	Cost          int64
	BalanceBefore int64
	BalanceAfter  int64
}

// Outcome is the terminal result of a reserved call
type Outcome struct {
	Success      bool
	Fault        store.FaultClass
	ErrorCode    string
	ErrorMessage string
	Latency      time.Duration
}

// Settlement reports what settle did to a call
type Settlement struct {
	CallID         string
	AccountID      int64
	Charged        int64
	Refunded       bool
	BalanceAfter   int64
	AlreadySettled bool
}

// AddRequest is a privileged balance change
type AddRequest struct {
	AccountID int64
	Amount    int64
	Kind      store.EntryKind
	Reason    string
}

// OpenRequest creates an account together with its opening credit
type OpenRequest struct {
	Account    *store.Account
	KeyHash    string
	Allocation int64
	Reason     string
}
