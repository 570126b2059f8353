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

import "errors"

var (
	// ErrAccountNotFound is returned when no account matches the lookup
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateAccount is returned when an account with the same email or key hash exists
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrCallNotFound is returned when no call record matches the call id
	ErrCallNotFound = errors.New("call record not found")

	// ErrDuplicateCall is returned when a call id is reserved twice
	ErrDuplicateCall = errors.New("call record already exists")

	// ErrCallSettled is returned when completing a call that is no longer pending
	ErrCallSettled = errors.New("call record already settled")
)
