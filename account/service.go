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

// Package account implements the self-service account lifecycle: enabling
// gateway access for a portal user, rotating the API key and reporting
// recent usage. Balances only change through the ledger.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/outris-dev-user/outris-identity-mcp/auth"
	"github.com/outris-dev-user/outris-identity-mcp/events"
	"github.com/outris-dev-user/outris-identity-mcp/ledger"
	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
	"github.com/outris-dev-user/outris-identity-mcp/store"
)

const (
	// DefaultStartingAllocation is credited when an account is enabled
	DefaultStartingAllocation = 100

	defaultUsageLimit = 50
	maxUsageLimit     = 500
)

var (
	// ErrAlreadyEnabled is returned when enabling an email that already has an account
	ErrAlreadyEnabled = errors.New("account already enabled")

	// ErrInvalidEmail is returned for an empty or malformed owner email
	ErrInvalidEmail = errors.New("invalid email")
)

// Issued is returned when a key is created or rotated. APIKey is shown to
// the owner exactly once.
type Issued struct {
	Account *store.Account
	APIKey  string
}

// Usage is the account summary with its most recent ledger entries
type Usage struct {
	Account *store.Account
	Entries []store.LedgerEntry
}

// Service manages accounts on behalf of authenticated portal users
type Service struct {
	accounts   store.AccountStore
	ledger     *ledger.Ledger
	hasher     *auth.Hasher
	events     *events.Emitter
	allocation int64
	logger     *logger.Logger
	now        func() time.Time
}

// NewService creates the account service
func NewService(accounts store.AccountStore, l *ledger.Ledger, hasher *auth.Hasher, emitter *events.Emitter, allocation int64) *Service {
	if allocation < 0 {
		allocation = 0
	}
	if emitter == nil {
		emitter = events.NewEmitter(nil)
	}
	return &Service{
		accounts:   accounts,
		ledger:     l,
		hasher:     hasher,
		events:     emitter,
		allocation: allocation,
		logger:     logger.New("account"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the account owned by email
func (s *Service) Get(ctx context.Context, email string) (*store.Account, error) {
	email, err := normalize(email)
	if err != nil {
		return nil, err
	}
	return s.accounts.GetAccountByEmail(ctx, email)
}

// Enable creates the account for email, credits the starting allocation
// and issues the first API key
func (s *Service) Enable(ctx context.Context, email, displayName string) (*Issued, error) {
	email, err := normalize(email)
	if err != nil {
		return nil, err
	}

	raw, digest, prefix, err := s.hasher.Generate()
	if err != nil {
		return nil, err
	}

	acct := &store.Account{
		Email:             email,
		DisplayName:       strings.TrimSpace(displayName),
		KeyPrefix:         prefix,
		MonthlyAllocation: s.allocation,
		Tier:              store.TierFree,
		Active:            true,
	}
	if err := s.ledger.Open(ctx, ledger.OpenRequest{
		Account:    acct,
		KeyHash:    digest,
		Allocation: s.allocation,
		Reason:     "starting allocation",
	}); err != nil {
		if errors.Is(err, store.ErrDuplicateAccount) {
			return nil, ErrAlreadyEnabled
		}
		s.logger.Error("", "", "Account enable failed", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("failed to enable account: %w", err)
	}

	fresh, err := s.accounts.GetAccount(ctx, acct.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ref(acct.ID), "", "Account enabled", map[string]interface{}{
		"key_prefix": prefix,
		"allocation": s.allocation,
	})
	s.events.Emit(events.SubjectAccountEnabled, events.AccountChanged{
		AccountID: fresh.ID,
		KeyPrefix: prefix,
		Balance:   fresh.Balance,
		At:        s.now(),
	})
	return &Issued{Account: fresh, APIKey: raw}, nil
}

// RegenerateKey replaces the account's API key. The previous key stops
// resolving immediately.
func (s *Service) RegenerateKey(ctx context.Context, email string) (*Issued, error) {
	acct, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if !acct.Active {
		return nil, auth.ErrAccountInactive
	}

	raw, digest, prefix, err := s.hasher.Generate()
	if err != nil {
		return nil, err
	}
	if err := s.accounts.RotateKey(ctx, acct.ID, digest, prefix); err != nil {
		return nil, fmt.Errorf("failed to rotate key: %w", err)
	}
	acct.KeyPrefix = prefix

	s.logger.Info(ref(acct.ID), "", "API key regenerated", map[string]interface{}{"key_prefix": prefix})
	s.events.Emit(events.SubjectKeyRotated, events.AccountChanged{
		AccountID: acct.ID,
		KeyPrefix: prefix,
		Balance:   acct.Balance,
		At:        s.now(),
	})
	return &Issued{Account: acct, APIKey: raw}, nil
}

// Usage returns the account and its latest ledger entries, newest last
func (s *Service) Usage(ctx context.Context, email string, limit int) (*Usage, error) {
	acct, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultUsageLimit
	}
	if limit > maxUsageLimit {
		limit = maxUsageLimit
	}
	entries, err := s.ledger.Entries(ctx, acct.ID, limit)
	if err != nil {
		return nil, err
	}
	return &Usage{Account: acct, Entries: entries}, nil
}

func normalize(email string) (string, error) {
	e := store.NormalizeEmail(email)
	at := strings.IndexByte(e, '@')
	if at <= 0 || at == len(e)-1 {
		return "", ErrInvalidEmail
	}
	return e, nil
}

func ref(id int64) string {
	return fmt.Sprintf("acct:%d", id)
}
