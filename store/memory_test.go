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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAccount(t *testing.T, s *MemoryStore, email, hash string) *Account {
	t.Helper()
	acct := &Account{Email: email, KeyPrefix: "mcp_prefix", Active: true}
	require.NoError(t, s.CreateAccount(context.Background(), acct, hash))
	return acct
}

func TestMemoryStore_AccountLookups(t *testing.T) {
	s := NewMemoryStore()
	acct := seedAccount(t, s, "Owner@Example.com", "hash-1")

	byHash, err := s.GetAccountByKeyHash(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, byHash.ID)

	byEmail, err := s.GetAccountByEmail(context.Background(), "owner@example.COM")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, byEmail.ID)
	assert.Equal(t, TierFree, byEmail.Tier)

	_, err = s.GetAccountByKeyHash(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	err = s.CreateAccount(context.Background(), &Account{Email: "owner@example.com"}, "hash-2")
	assert.ErrorIs(t, err, ErrDuplicateAccount)
}

func TestMemoryStore_RotateKeyInvalidatesOldHash(t *testing.T) {
	s := NewMemoryStore()
	acct := seedAccount(t, s, "owner@example.com", "old")

	require.NoError(t, s.RotateKey(context.Background(), acct.ID, "new", "mcp_new"))

	_, err := s.GetAccountByKeyHash(context.Background(), "old")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	got, err := s.GetAccountByKeyHash(context.Background(), "new")
	require.NoError(t, err)
	assert.Equal(t, "mcp_new", got.KeyPrefix)
}

func TestMemoryStore_ReturnedAccountsAreCopies(t *testing.T) {
	s := NewMemoryStore()
	acct := seedAccount(t, s, "owner@example.com", "hash")

	got, err := s.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	got.Balance = 1000

	again, err := s.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), again.Balance)
}

func TestMemoryStore_WithTxRollsBack(t *testing.T) {
	s := NewMemoryStore()
	acct := seedAccount(t, s, "owner@example.com", "hash")
	boom := errors.New("boom")

	err := s.WithTx(context.Background(), func(tx LedgerTx) error {
		if err := tx.UpdateBalance(context.Background(), acct.ID, 50, 1, 0); err != nil {
			return err
		}
		if err := tx.AppendEntry(context.Background(), &LedgerEntry{
			AccountID: acct.ID, Kind: KindTopup, Amount: 50, BalanceAfter: 50,
		}); err != nil {
			return err
		}
		if err := tx.InsertCall(context.Background(), &CallRecord{CallID: "c1", AccountID: acct.ID}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)
	assert.Equal(t, int64(0), got.TotalCalls)

	entries, err := s.ListEntries(context.Background(), acct.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.GetCall(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrCallNotFound)
}

func TestMemoryStore_CompleteCallOnce(t *testing.T) {
	s := NewMemoryStore()
	acct := seedAccount(t, s, "owner@example.com", "hash")
	now := time.Now()

	require.NoError(t, s.WithTx(context.Background(), func(tx LedgerTx) error {
		return tx.InsertCall(context.Background(), &CallRecord{CallID: "c1", AccountID: acct.ID, Charged: 2, DeclaredCost: 2})
	}))

	complete := func() error {
		return s.WithTx(context.Background(), func(tx LedgerTx) error {
			return tx.CompleteCall(context.Background(), &CallRecord{
				CallID: "c1", Status: StatusSucceeded, Charged: 2, CompletedAt: &now,
			})
		})
	}
	require.NoError(t, complete())
	assert.ErrorIs(t, complete(), ErrCallSettled)

	call, err := s.GetCall(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, call.Terminal())
}

func TestMemoryStore_ListPendingCalls(t *testing.T) {
	s := NewMemoryStore()
	acct := seedAccount(t, s, "owner@example.com", "hash")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithTx(context.Background(), func(tx LedgerTx) error {
		for i, id := range []string{"old-2", "old-1", "fresh"} {
			created := base.Add(time.Duration(i) * time.Minute)
			if id == "old-1" {
				created = base.Add(-time.Minute)
			}
			if id == "fresh" {
				created = base.Add(time.Hour)
			}
			if err := tx.InsertCall(context.Background(), &CallRecord{CallID: id, AccountID: acct.ID, CreatedAt: created}); err != nil {
				return err
			}
		}
		return nil
	}))

	pending, err := s.ListPendingCalls(context.Background(), base.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "old-1", pending[0].CallID)
	assert.Equal(t, "old-2", pending[1].CallID)
}

func TestMemoryStore_InsertAccountRollsBack(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("credit failed")

	err := s.WithTx(ctx, func(tx LedgerTx) error {
		acct := &Account{Email: "owner@example.com", KeyPrefix: "mcp_abcdefgh", Active: true}
		if err := tx.InsertAccount(ctx, acct, "hash"); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, acct.ID, 100, 0, 0); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetAccountByEmail(ctx, "owner@example.com")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	_, err = s.GetAccountByKeyHash(ctx, "hash")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	again := seedAccount(t, s, "owner@example.com", "hash")
	assert.Equal(t, int64(0), again.Balance)
}

func TestMemoryStore_WithTxHonoursCancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithTx(ctx, func(tx LedgerTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
