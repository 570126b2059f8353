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
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outris-dev-user/outris-identity-mcp/store"
)

func setupLedger(t *testing.T, balance int64) (*Ledger, *store.MemoryStore, int64) {
	t.Helper()
	s := store.NewMemoryStore()
	acct := &store.Account{Email: "owner@example.com", KeyPrefix: "mcp_test", Active: true}
	require.NoError(t, s.CreateAccount(context.Background(), acct, "digest"))

	l := New(s)
	if balance > 0 {
		_, _, err := l.Add(context.Background(), AddRequest{
			AccountID: acct.ID, Amount: balance, Kind: store.KindTopup, Reason: "initial allocation",
		})
		require.NoError(t, err)
	}
	return l, s, acct.ID
}

func reserve(t *testing.T, l *Ledger, accountID, cost int64, callID string) *Reservation {
	t.Helper()
	res, err := l.Reserve(context.Background(), ReserveRequest{
		AccountID: accountID, Tool: "get_identity_profile", Cost: cost, CallID: callID,
		InputSummary: []byte(`{"args":["phone"]}`),
	})
	require.NoError(t, err)
	return res
}

func TestReserve_ChargesAndOpensCall(t *testing.T) {
	l, s, id := setupLedger(t, 5)

	res := reserve(t, l, id, 3, "call-1")
	assert.Equal(t, int64(5), res.BalanceBefore)
	assert.Equal(t, int64(2), res.BalanceAfter)

	call, err := s.GetCall(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, call.Status)
	assert.Equal(t, int64(3), call.Charged)
	assert.Equal(t, int64(3), call.DeclaredCost)

	entries, err := l.Entries(context.Background(), id, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, store.KindUsage, entries[1].Kind)
	assert.Equal(t, int64(-3), entries[1].Amount)
	assert.Equal(t, "call-1", entries[1].CallID)

	acct, err := s.GetAccount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), acct.TotalCalls)
	assert.Equal(t, int64(3), acct.TotalCreditsSpent)
	assert.NoError(t, l.Verify(context.Background(), id))
}

func TestReserve_InsufficientCredits(t *testing.T) {
	l, s, id := setupLedger(t, 2)

	_, err := l.Reserve(context.Background(), ReserveRequest{AccountID: id, Tool: "get_identity_profile", Cost: 3, CallID: "call-1"})

	var insufficient *InsufficientCreditsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(3), insufficient.Required)
	assert.Equal(t, int64(2), insufficient.Available)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	_, err = s.GetCall(context.Background(), "call-1")
	assert.ErrorIs(t, err, store.ErrCallNotFound)

	entries, err := l.Entries(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the initial top-up")

	balance, err := l.Balance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(2), balance)
}

func TestReserve_RejectsBadRequests(t *testing.T) {
	l, _, id := setupLedger(t, 5)

	_, err := l.Reserve(context.Background(), ReserveRequest{AccountID: id, Cost: -1, CallID: "c"})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = l.Reserve(context.Background(), ReserveRequest{AccountID: id, Cost: 1})
	assert.ErrorIs(t, err, ErrMissingCallID)

	_, err = l.Reserve(context.Background(), ReserveRequest{AccountID: 999, Cost: 1, CallID: "c"})
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestReserve_ZeroCostSkipsUsageEntry(t *testing.T) {
	l, s, id := setupLedger(t, 5)

	res := reserve(t, l, id, 0, "free-call")
	assert.Equal(t, int64(5), res.BalanceAfter)

	entries, err := l.Entries(context.Background(), id, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = s.GetCall(context.Background(), "free-call")
	assert.NoError(t, err)
}

func TestSettle_BackendFaultRefunds(t *testing.T) {
	l, s, id := setupLedger(t, 5)
	res := reserve(t, l, id, 3, "call-1")
	require.Equal(t, int64(2), res.BalanceAfter)

	settlement, err := l.Settle(context.Background(), "call-1", Outcome{
		Fault: store.FaultBackend, ErrorCode: "timeout", ErrorMessage: "backend timed out", Latency: 1500 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, settlement.Refunded)
	assert.Equal(t, int64(0), settlement.Charged)
	assert.Equal(t, int64(5), settlement.BalanceAfter)

	balance, err := l.Balance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)

	call, err := s.GetCall(context.Background(), "call-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), call.Charged)
	assert.Equal(t, store.StatusFailed, call.Status)
	assert.Equal(t, store.FaultBackend, call.Fault)
	assert.Equal(t, int64(1500), call.LatencyMS)
	assert.NotNil(t, call.CompletedAt)

	acct, err := s.GetAccount(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.TotalCreditsSpent)
	assert.NoError(t, l.Verify(context.Background(), id))
}

func TestSettle_RefundIsIdempotent(t *testing.T) {
	l, _, id := setupLedger(t, 5)
	reserve(t, l, id, 3, "call-1")

	outcome := Outcome{Fault: store.FaultBackend, ErrorCode: "upstream"}
	first, err := l.Settle(context.Background(), "call-1", outcome)
	require.NoError(t, err)
	second, err := l.Settle(context.Background(), "call-1", outcome)
	require.NoError(t, err)

	assert.True(t, first.Refunded)
	assert.True(t, second.AlreadySettled)
	assert.False(t, second.Refunded)

	entries, err := l.Entries(context.Background(), id, 0)
	require.NoError(t, err)
	refunds := 0
	for _, e := range entries {
		if e.Kind == store.KindRefund {
			refunds++
		}
	}
	assert.Equal(t, 1, refunds)

	balance, _ := l.Balance(context.Background(), id)
	assert.Equal(t, int64(5), balance)
}

func TestSettle_KeepsChargeForCallerFaultAndSuccess(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		status  store.CallStatus
		fault   store.FaultClass
	}{
		{"success", Outcome{Success: true}, store.StatusSucceeded, store.FaultNone},
		{"caller fault", Outcome{Fault: store.FaultCaller, ErrorCode: "rejected"}, store.StatusFailed, store.FaultCaller},
		{"unclassified failure", Outcome{ErrorCode: "panic"}, store.StatusFailed, store.FaultCaller},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, s, id := setupLedger(t, 5)
			reserve(t, l, id, 3, "call-1")

			settlement, err := l.Settle(context.Background(), "call-1", tt.outcome)
			require.NoError(t, err)
			assert.False(t, settlement.Refunded)
			assert.Equal(t, int64(3), settlement.Charged)
			assert.Equal(t, int64(2), settlement.BalanceAfter)

			call, err := s.GetCall(context.Background(), "call-1")
			require.NoError(t, err)
			assert.Equal(t, tt.status, call.Status)
			assert.Equal(t, tt.fault, call.Fault)
			assert.NoError(t, l.Verify(context.Background(), id))
		})
	}
}

func TestSettle_UnknownCall(t *testing.T) {
	l, _, _ := setupLedger(t, 5)
	_, err := l.Settle(context.Background(), "missing", Outcome{Success: true})
	assert.ErrorIs(t, err, store.ErrCallNotFound)
}

func TestReserve_ConcurrentSingleCallBalance(t *testing.T) {
	l, _, id := setupLedger(t, 3)

	var wg sync.WaitGroup
	var successes, insufficient int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Reserve(context.Background(), ReserveRequest{
				AccountID: id, Tool: "get_identity_profile", Cost: 3, CallID: []string{"a", "b"}[i],
			})
			switch {
			case err == nil:
				atomic.AddInt32(&successes, 1)
			case errors.Is(err, ErrInsufficientCredits):
				atomic.AddInt32(&insufficient, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, int32(1), insufficient)
	balance, _ := l.Balance(context.Background(), id)
	assert.Equal(t, int64(0), balance)
}

func TestReserve_ConcurrentNeverOverspends(t *testing.T) {
	l, _, id := setupLedger(t, 10)

	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			callID := "call-" + string(rune('A'+i))
			if _, err := l.Reserve(context.Background(), ReserveRequest{AccountID: id, Tool: "get_name", Cost: 1, CallID: callID}); err == nil {
				atomic.AddInt32(&successes, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(10), successes)
	balance, _ := l.Balance(context.Background(), id)
	assert.Equal(t, int64(0), balance)
	assert.NoError(t, l.Verify(context.Background(), id))
}

func TestAdd(t *testing.T) {
	l, _, id := setupLedger(t, 5)

	before, after, err := l.Add(context.Background(), AddRequest{AccountID: id, Amount: 10, Kind: store.KindTopup, Reason: "monthly"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), before)
	assert.Equal(t, int64(15), after)

	before, after, err = l.Add(context.Background(), AddRequest{AccountID: id, Amount: -4, Kind: store.KindManualAdjustment, Reason: "correction"})
	require.NoError(t, err)
	assert.Equal(t, int64(15), before)
	assert.Equal(t, int64(11), after)

	_, _, err = l.Add(context.Background(), AddRequest{AccountID: id, Amount: -12, Kind: store.KindManualAdjustment})
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	_, _, err = l.Add(context.Background(), AddRequest{AccountID: id, Amount: -1, Kind: store.KindTopup})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = l.Add(context.Background(), AddRequest{AccountID: id, Amount: 0, Kind: store.KindManualAdjustment})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, _, err = l.Add(context.Background(), AddRequest{AccountID: id, Amount: 5, Kind: store.KindRefund})
	assert.ErrorIs(t, err, ErrInvalidKind)

	assert.NoError(t, l.Verify(context.Background(), id))
}

func TestOpen(t *testing.T) {
	s := store.NewMemoryStore()
	l := New(s)
	ctx := context.Background()

	acct := &store.Account{Email: "owner@example.com", KeyPrefix: "mcp_test", Active: true}
	require.NoError(t, l.Open(ctx, OpenRequest{Account: acct, KeyHash: "digest", Allocation: 100, Reason: "starting allocation"}))
	assert.Equal(t, int64(100), acct.Balance)

	entries, err := l.Entries(ctx, acct.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, store.KindTopup, entries[0].Kind)
	assert.Equal(t, int64(100), entries[0].BalanceAfter)
	require.NoError(t, l.Verify(ctx, acct.ID))

	dup := &store.Account{Email: "owner@example.com", KeyPrefix: "mcp_other", Active: true}
	err = l.Open(ctx, OpenRequest{Account: dup, KeyHash: "other", Allocation: 100})
	assert.ErrorIs(t, err, store.ErrDuplicateAccount)

	err = l.Open(ctx, OpenRequest{Account: &store.Account{Email: "x@example.com"}, KeyHash: "x", Allocation: -1})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestBalanceEqualsReplayedEntriesAcrossMixedOperations(t *testing.T) {
	l, _, id := setupLedger(t, 20)

	reserve(t, l, id, 3, "ok")
	_, err := l.Settle(context.Background(), "ok", Outcome{Success: true})
	require.NoError(t, err)

	reserve(t, l, id, 2, "refunded")
	_, err = l.Settle(context.Background(), "refunded", Outcome{Fault: store.FaultBackend})
	require.NoError(t, err)

	reserve(t, l, id, 5, "caller")
	_, err = l.Settle(context.Background(), "caller", Outcome{Fault: store.FaultCaller})
	require.NoError(t, err)

	_, _, err = l.Add(context.Background(), AddRequest{AccountID: id, Amount: 7, Kind: store.KindTopup})
	require.NoError(t, err)

	entries, err := l.Entries(context.Background(), id, 0)
	require.NoError(t, err)
	var sum int64
	for _, e := range entries {
		sum += e.Amount
	}
	balance, _ := l.Balance(context.Background(), id)
	assert.Equal(t, balance, sum)
	assert.Equal(t, int64(20-3-5+7), balance)
}

func TestSweepPending(t *testing.T) {
	l, s, id := setupLedger(t, 5)
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return start }

	reserve(t, l, id, 3, "abandoned")

	l.now = func() time.Time { return start.Add(time.Minute) }
	n, err := l.SweepPending(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "call is still within the grace period")

	l.now = func() time.Time { return start.Add(10 * time.Minute) }
	n, err = l.SweepPending(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	call, err := s.GetCall(context.Background(), "abandoned")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, call.Status)
	assert.Equal(t, store.FaultCaller, call.Fault)
	assert.Equal(t, SweepErrorCode, call.ErrorCode)
	assert.Equal(t, int64(3), call.Charged)

	n, err = l.SweepPending(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweeper_StartStop(t *testing.T) {
	l, _, _ := setupLedger(t, 5)
	sw := NewSweeper(l, 10*time.Millisecond, time.Minute)

	done := make(chan error, 1)
	go func() { done <- sw.Start(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, sw.Stop(context.Background()))
	require.NoError(t, sw.Stop(context.Background()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

type unavailableStore struct {
	store.LedgerStore
}

func (unavailableStore) WithTx(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	return errors.New("connection refused")
}

func TestReserve_StoreUnavailable(t *testing.T) {
	l := New(unavailableStore{})
	_, err := l.Reserve(context.Background(), ReserveRequest{AccountID: 1, Cost: 1, CallID: "c"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientCredits)
}

func TestReserve_PostgresLocksAccountRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	columns := []string{
		"id", "email", "display_name", "key_prefix", "balance", "monthly_allocation", "tier",
		"active", "allow_raw_records", "total_calls", "total_credits_spent", "last_seen_at",
		"created_at", "updated_at",
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			int64(7), "owner@example.com", nil, "mcp_x", int64(2), int64(0), "free",
			true, false, int64(0), int64(0), nil, now, now))
	mock.ExpectRollback()

	l := New(store.NewPostgresStore(db))
	_, err = l.Reserve(context.Background(), ReserveRequest{AccountID: 7, Tool: "get_identity_profile", Cost: 3, CallID: "call-1"})

	var insufficient *InsufficientCreditsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(2), insufficient.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}
