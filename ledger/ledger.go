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

// Package ledger charges and refunds account credits around tool calls.
//
// Every balance change happens inside one store transaction together with
// the ledger entry that explains it, so replaying an account's entries from
// zero always reproduces its balance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
	"github.com/outris-dev-user/outris-identity-mcp/store"
)

const (
	maxErrorMessage = 500
	sweepBatch      = 100

	// SweepErrorCode marks calls settled by the recovery sweep
	SweepErrorCode = "timeout"
)

// Ledger performs atomic reserve, settle and add operations
type Ledger struct {
	store  store.LedgerStore
	logger *logger.Logger
	now    func() time.Time
}

// New creates a ledger over a transactional store
func New(s store.LedgerStore) *Ledger {
	return &Ledger{
		store:  s,
		logger: logger.New("ledger"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Reserve charges cost to the account and opens a pending call record.
// The balance check, the debit, the usage entry and the call record are
// one transaction; concurrent reservations on one account serialise on
// the account row lock.
func (l *Ledger) Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	if req.Cost < 0 {
		return nil, fmt.Errorf("%w: negative cost %d", ErrInvalidAmount, req.Cost)
	}
	if req.CallID == "" {
		return nil, ErrMissingCallID
	}

	var res *Reservation
	err := l.store.WithTx(ctx, func(tx store.LedgerTx) error {
		acct, err := tx.LockAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if acct.Balance < req.Cost {
			return &InsufficientCreditsError{Required: req.Cost, Available: acct.Balance}
		}

		before := acct.Balance
		after := before - req.Cost
		now := l.now()

		if err := tx.UpdateBalance(ctx, acct.ID, after, 1, req.Cost); err != nil {
			return err
		}

		if req.Cost > 0 {
			if err := tx.AppendEntry(ctx, &store.LedgerEntry{
				AccountID:     acct.ID,
				Kind:          store.KindUsage,
				Amount:        -req.Cost,
				BalanceBefore: before,
				BalanceAfter:  after,
				CallID:        req.CallID,
				Reason:        "tool: " + req.Tool,
				CreatedAt:     now,
			}); err != nil {
				return err
			}
		}

		if err := tx.InsertCall(ctx, &store.CallRecord{
			CallID:        req.CallID,
			AccountID:     acct.ID,
			ToolName:      req.Tool,
			DeclaredCost:  req.Cost,
			Charged:       req.Cost,
			BalanceBefore: before,
			BalanceAfter:  after,
			InputSummary:  req.InputSummary,
			Status:        store.StatusPending,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		res = &Reservation{
			CallID:        req.CallID,
			AccountID:     acct.ID,
			Tool:          req.Tool,
			Cost:          req.Cost,
			BalanceBefore: before,
			BalanceAfter:  after,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Settle records the terminal outcome of a reserved call. A backend fault
// refunds the reserved amount. Settling a call that is already terminal
// changes nothing and reports AlreadySettled.
func (l *Ledger) Settle(ctx context.Context, callID string, outcome Outcome) (*Settlement, error) {
	var res *Settlement
	err := l.store.WithTx(ctx, func(tx store.LedgerTx) error {
		call, err := tx.LockCall(ctx, callID)
		if err != nil {
			return err
		}

		res = &Settlement{
			CallID:       call.CallID,
			AccountID:    call.AccountID,
			Charged:      call.Charged,
			BalanceAfter: call.BalanceAfter,
		}
		if call.Terminal() {
			res.AlreadySettled = true
			return nil
		}

		refund := !outcome.Success && outcome.Fault == store.FaultBackend && call.Charged > 0
		if refund {
			acct, err := tx.LockAccount(ctx, call.AccountID)
			if err != nil {
				return err
			}
			before := acct.Balance
			after := before + call.Charged
			if err := tx.UpdateBalance(ctx, acct.ID, after, 0, -call.Charged); err != nil {
				return err
			}
			if err := tx.AppendEntry(ctx, &store.LedgerEntry{
				AccountID:     acct.ID,
				Kind:          store.KindRefund,
				Amount:        call.Charged,
				BalanceBefore: before,
				BalanceAfter:  after,
				CallID:        call.CallID,
				Reason:        "refund: backend fault in " + call.ToolName,
				CreatedAt:     l.now(),
			}); err != nil {
				return err
			}
			call.Charged = 0
			call.BalanceAfter = after
		}

		completed := l.now()
		call.CompletedAt = &completed
		call.LatencyMS = outcome.Latency.Milliseconds()
		if outcome.Success {
			call.Status = store.StatusSucceeded
			call.Fault = store.FaultNone
		} else {
			call.Status = store.StatusFailed
			call.Fault = outcome.Fault
			if call.Fault == store.FaultNone {
				call.Fault = store.FaultCaller
			}
			call.ErrorCode = outcome.ErrorCode
			call.ErrorMessage = truncate(outcome.ErrorMessage, maxErrorMessage)
		}
		if err := tx.CompleteCall(ctx, call); err != nil {
			return err
		}

		res.Charged = call.Charged
		res.BalanceAfter = call.BalanceAfter
		res.Refunded = refund
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Add applies a privileged top-up or manual adjustment. Adjustments may be
// negative but never take the balance below zero.
func (l *Ledger) Add(ctx context.Context, req AddRequest) (before, after int64, err error) {
	switch req.Kind {
	case store.KindTopup:
		if req.Amount <= 0 {
			return 0, 0, fmt.Errorf("%w: top-up must be positive", ErrInvalidAmount)
		}
	case store.KindManualAdjustment:
		if req.Amount == 0 {
			return 0, 0, fmt.Errorf("%w: adjustment must be non-zero", ErrInvalidAmount)
		}
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidKind, req.Kind)
	}

	err = l.store.WithTx(ctx, func(tx store.LedgerTx) error {
		acct, err := tx.LockAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		before = acct.Balance
		after = before + req.Amount
		if after < 0 {
			return &InsufficientCreditsError{Required: -req.Amount, Available: before}
		}
		if err := tx.UpdateBalance(ctx, acct.ID, after, 0, 0); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, &store.LedgerEntry{
			AccountID:     acct.ID,
			Kind:          req.Kind,
			Amount:        req.Amount,
			BalanceBefore: before,
			BalanceAfter:  after,
			Reason:        req.Reason,
			CreatedAt:     l.now(),
		})
	})
	if err != nil {
		return 0, 0, err
	}

	l.logger.Info(fmt.Sprintf("acct:%d", req.AccountID), "", "Balance adjusted", map[string]interface{}{
		"kind":   string(req.Kind),
		"amount": req.Amount,
		"before": before,
		"after":  after,
	})
	return before, after, nil
}

// Open inserts req.Account and credits the opening allocation in one
// transaction. A failed credit leaves no account behind.
func (l *Ledger) Open(ctx context.Context, req OpenRequest) error {
	if req.Account == nil {
		return errors.New("open: account is required")
	}
	if req.Allocation < 0 {
		return fmt.Errorf("%w: allocation must not be negative", ErrInvalidAmount)
	}

	err := l.store.WithTx(ctx, func(tx store.LedgerTx) error {
		if err := tx.InsertAccount(ctx, req.Account, req.KeyHash); err != nil {
			return err
		}
		if req.Allocation == 0 {
			return nil
		}
		if err := tx.UpdateBalance(ctx, req.Account.ID, req.Allocation, 0, 0); err != nil {
			return err
		}
		return tx.AppendEntry(ctx, &store.LedgerEntry{
			AccountID:     req.Account.ID,
			Kind:          store.KindTopup,
			Amount:        req.Allocation,
			BalanceBefore: 0,
			BalanceAfter:  req.Allocation,
			Reason:        req.Reason,
			CreatedAt:     l.now(),
		})
	})
	if err != nil {
		return err
	}
	req.Account.Balance = req.Allocation

	l.logger.Info(fmt.Sprintf("acct:%d", req.Account.ID), "", "Account opened", map[string]interface{}{
		"allocation": req.Allocation,
	})
	return nil
}

// Balance returns the current balance of an account
func (l *Ledger) Balance(ctx context.Context, accountID int64) (int64, error) {
	acct, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Entries returns the most recent ledger entries for an account in creation order
func (l *Ledger) Entries(ctx context.Context, accountID int64, limit int) ([]store.LedgerEntry, error) {
	return l.store.ListEntries(ctx, accountID, limit)
}

// Call returns the record of one call
func (l *Ledger) Call(ctx context.Context, callID string) (*store.CallRecord, error) {
	return l.store.GetCall(ctx, callID)
}

// Verify replays an account's entries and checks them against its balance
func (l *Ledger) Verify(ctx context.Context, accountID int64) error {
	entries, err := l.store.ListEntries(ctx, accountID, 0)
	if err != nil {
		return err
	}
	acct, err := l.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}

	var running int64
	for _, e := range entries {
		if e.BalanceBefore != running || e.BalanceAfter != running+e.Amount {
			return fmt.Errorf("%w: entry %d breaks the chain at %d", ErrLedgerMismatch, e.ID, running)
		}
		running += e.Amount
	}
	if running != acct.Balance {
		return fmt.Errorf("%w: entries sum to %d, balance is %d", ErrLedgerMismatch, running, acct.Balance)
	}
	return nil
}

// SweepPending settles calls that stayed pending longer than olderThan as
// caller-fault timeouts, keeping their charge. It returns how many calls
// it settled.
func (l *Ledger) SweepPending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := l.now().Add(-olderThan)
	pending, err := l.store.ListPendingCalls(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}

	settled := 0
	var errs []error
	for _, call := range pending {
		res, err := l.Settle(ctx, call.CallID, Outcome{
			Fault:        store.FaultCaller,
			ErrorCode:    SweepErrorCode,
			ErrorMessage: "call abandoned before settlement",
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("settle %s: %w", call.CallID, err))
			continue
		}
		if !res.AlreadySettled {
			settled++
			l.logger.Warn(fmt.Sprintf("acct:%d", call.AccountID), call.CallID, "Swept abandoned call", map[string]interface{}{
				"tool":    call.ToolName,
				"charged": res.Charged,
			})
		}
	}
	return settled, errors.Join(errs...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
