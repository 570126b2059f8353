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
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCredits matches every *InsufficientCreditsError
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned for negative costs or zero adjustments
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidKind is returned when Add is asked for a kind it does not handle
	ErrInvalidKind = errors.New("invalid ledger entry kind")

	// ErrMissingCallID is returned when reserving without a call id
	ErrMissingCallID = errors.New("call id is required")

	// ErrLedgerMismatch is returned by Verify when entries do not replay to the balance
	ErrLedgerMismatch = errors.New("ledger does not match balance")
)

// InsufficientCreditsError carries the amounts that made a charge fail
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// Is lets errors.Is(err, ErrInsufficientCredits) match
func (e *InsufficientCreditsError) Is(target error) bool {
	return target == ErrInsufficientCredits
}
