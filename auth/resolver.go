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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
	"github.com/outris-dev-user/outris-identity-mcp/store"
)

// Resolver turns bearer credentials into authorization contexts
type Resolver struct {
	accounts store.AccountStore
	hasher   *Hasher
	logger   *logger.Logger
	now      func() time.Time
}

// NewResolver creates a credential resolver over the account store
func NewResolver(accounts store.AccountStore, hasher *Hasher) *Resolver {
	return &Resolver{
		accounts: accounts,
		hasher:   hasher,
		logger:   logger.New("auth"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Resolve validates a bearer credential. Credential failures are returned
// as *Error values; store failures are wrapped and returned as-is so the
// caller can tell an outage apart from a bad key.
func (r *Resolver) Resolve(ctx context.Context, bearer string) (*Context, error) {
	raw := StripScheme(bearer)
	if raw == "" {
		return nil, ErrMissingCredential
	}

	acct, err := r.accounts.GetAccountByKeyHash(ctx, r.hasher.Hash(raw))
	if errors.Is(err, store.ErrAccountNotFound) {
		r.logger.Warn("", "", "Invalid API key presented", map[string]interface{}{
			"key_prefix": safePrefix(raw, 8),
		})
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("credential lookup failed: %w", err)
	}

	if !acct.Active {
		return nil, ErrAccountInactive
	}

	if err := r.accounts.TouchLastSeen(ctx, acct.ID, r.now()); err != nil {
		r.logger.Warn(fmt.Sprintf("acct:%d", acct.ID), "", "Failed to update last seen", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return NewContext(acct), nil
}
