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
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountColumnNames = []string{
	"id", "email", "display_name", "key_prefix", "balance", "monthly_allocation", "tier",
	"active", "allow_raw_records", "total_calls", "total_credits_spent", "last_seen_at",
	"created_at", "updated_at",
}

var callColumnNames = []string{
	"call_id", "account_id", "tool_name", "declared_cost", "charged", "balance_before",
	"balance_after", "input_summary", "status", "fault", "error_code", "error_message",
	"latency_ms", "created_at", "completed_at",
}

func accountRow(id, balance int64, active bool) *sqlmock.Rows {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(accountColumnNames).AddRow(
		id, "owner@example.com", nil, "mcp_abcdefgh", balance, int64(100), TierFree,
		active, false, int64(4), int64(9), nil, now, now,
	)
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStore_GetAccountByKeyHash(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   error
		wantID    int64
	}{
		{
			name: "found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE key_hash = \$1`).
					WithArgs("digest").
					WillReturnRows(accountRow(42, 5, true))
			},
			wantID: 42,
		},
		{
			name: "not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE key_hash = \$1`).
					WithArgs("digest").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: ErrAccountNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			tt.setupMock(mock)

			acct, err := s.GetAccountByKeyHash(context.Background(), "digest")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, acct.ID)
				assert.Equal(t, int64(5), acct.Balance)
				assert.Empty(t, acct.DisplayName)
				assert.Nil(t, acct.LastSeenAt)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_GetAccountDatabaseError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetAccount(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAccountNotFound)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresStore_CreateAccount(t *testing.T) {
	t.Run("assigns id and normalizes email", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`INSERT INTO accounts`).
			WithArgs("owner@example.com", sqlmock.AnyArg(), "digest", "mcp_abcdefgh",
				int64(100), TierFree, true, false, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

		acct := &Account{Email: "  Owner@Example.com ", KeyPrefix: "mcp_abcdefgh", MonthlyAllocation: 100, Active: true}
		require.NoError(t, s.CreateAccount(context.Background(), acct, "digest"))
		assert.Equal(t, int64(7), acct.ID)
		assert.Equal(t, "owner@example.com", acct.Email)
		assert.Equal(t, int64(0), acct.Balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`INSERT INTO accounts`).
			WillReturnError(&pq.Error{Code: "23505"})

		err := s.CreateAccount(context.Background(), &Account{Email: "owner@example.com"}, "digest")
		assert.ErrorIs(t, err, ErrDuplicateAccount)
	})
}

func TestPostgresStore_SetActiveNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE accounts SET active = \$2`).
		WithArgs(int64(9), false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.SetActive(context.Background(), 9, false)
	assert.ErrorIs(t, err, ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTxCommits(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(accountRow(42, 5, true))
	mock.ExpectExec(`UPDATE accounts SET balance = \$2`).
		WithArgs(int64(42), int64(2), int64(1), int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO ledger_entries`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec(`INSERT INTO call_records`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var entryID int64
	err := s.WithTx(context.Background(), func(tx LedgerTx) error {
		acct, err := tx.LockAccount(context.Background(), 42)
		if err != nil {
			return err
		}
		if err := tx.UpdateBalance(context.Background(), acct.ID, acct.Balance-3, 1, 3); err != nil {
			return err
		}
		entry := &LedgerEntry{AccountID: acct.ID, Kind: KindUsage, Amount: -3, BalanceBefore: 5, BalanceAfter: 2, CallID: "call-1"}
		if err := tx.AppendEntry(context.Background(), entry); err != nil {
			return err
		}
		entryID = entry.ID
		return tx.InsertCall(context.Background(), &CallRecord{
			CallID: "call-1", AccountID: acct.ID, ToolName: "get_name", DeclaredCost: 3,
			Charged: 3, BalanceBefore: 5, BalanceAfter: 2, InputSummary: []byte(`{"args":["phone"]}`),
		})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), entryID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithTxRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("insufficient")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(accountRow(42, 2, true))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx LedgerTx) error {
		if _, err := tx.LockAccount(context.Background(), 42); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertAccountInsideTx(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("entry insert failed")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs("owner@example.com", sqlmock.AnyArg(), "digest", "mcp_abcdefgh",
			int64(100), TierFree, true, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectRollback()

	acct := &Account{Email: "Owner@example.com", KeyPrefix: "mcp_abcdefgh", MonthlyAllocation: 100, Active: true}
	err := s.WithTx(context.Background(), func(tx LedgerTx) error {
		if err := tx.InsertAccount(context.Background(), acct, "digest"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(9), acct.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteCallAlreadySettled(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE call_records SET (.+) WHERE call_id = \$1 AND status = 'pending'`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(tx LedgerTx) error {
		return tx.CompleteCall(context.Background(), &CallRecord{
			CallID: "call-1", Status: StatusSucceeded, CompletedAt: &now,
		})
	})
	assert.ErrorIs(t, err, ErrCallSettled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LockCall(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM call_records WHERE call_id = \$1 FOR UPDATE`).
		WithArgs("call-1").
		WillReturnRows(sqlmock.NewRows(callColumnNames).AddRow(
			"call-1", int64(42), "get_name", int64(2), int64(2), int64(5), int64(3),
			[]byte(`{"args":["phone"]}`), "pending", nil, nil, nil, nil, created, nil,
		))
	mock.ExpectCommit()

	var got *CallRecord
	err := s.WithTx(context.Background(), func(tx LedgerTx) error {
		var err error
		got, err = tx.LockCall(context.Background(), "call-1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, FaultNone, got.Fault)
	assert.False(t, got.Terminal())
	assert.JSONEq(t, `{"args":["phone"]}`, string(got.InputSummary))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListEntriesWithLimitReturnsCreationOrder(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT (.+) FROM ledger_entries WHERE account_id = \$1 ORDER BY id DESC LIMIT \$2`).
		WithArgs(int64(42), 2).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "account_id", "kind", "amount", "balance_before", "balance_after", "call_id", "reason", "created_at",
		}).
			AddRow(int64(3), int64(42), "refund", int64(3), int64(2), int64(5), "call-1", "backend fault", now).
			AddRow(int64(2), int64(42), "usage", int64(-3), int64(5), int64(2), "call-1", "get_name", now))

	entries, err := s.ListEntries(context.Background(), 42, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].ID)
	assert.Equal(t, KindUsage, entries[0].Kind)
	assert.Equal(t, KindRefund, entries[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
