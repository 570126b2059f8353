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
	"fmt"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

const accountColumns = `id, email, display_name, key_prefix, balance, monthly_allocation, tier,
	active, allow_raw_records, total_calls, total_credits_spent, last_seen_at, created_at, updated_at`

const callColumns = `call_id, account_id, tool_name, declared_cost, charged, balance_before,
	balance_after, input_summary, status, fault, error_code, error_message, latency_ms,
	created_at, completed_at`

const entryColumns = `id, account_id, kind, amount, balance_before, balance_after, call_id, reason, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// PostgresStore implements AccountStore and LedgerStore on PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects to PostgreSQL and verifies the connection
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateAccount inserts a new account with a zero balance
func (s *PostgresStore) CreateAccount(ctx context.Context, acct *Account, keyHash string) error {
	return insertAccount(ctx, s.db, acct, keyHash)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func insertAccount(ctx context.Context, q queryRower, acct *Account, keyHash string) error {
	now := time.Now().UTC()
	acct.Email = NormalizeEmail(acct.Email)
	if acct.Tier == "" {
		acct.Tier = TierFree
	}

	query := `
		INSERT INTO accounts (
			email, display_name, key_hash, key_prefix, balance, monthly_allocation,
			tier, active, allow_raw_records, created_at, updated_at
		) VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`

	err := q.QueryRowContext(ctx, query,
		acct.Email, nullString(acct.DisplayName), keyHash, acct.KeyPrefix,
		acct.MonthlyAllocation, acct.Tier, acct.Active, acct.AllowRawRecords, now,
	).Scan(&acct.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	acct.Balance = 0
	acct.CreatedAt = now
	acct.UpdatedAt = now
	return nil
}

// GetAccount retrieves an account by ID
func (s *PostgresStore) GetAccount(ctx context.Context, id int64) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return s.queryAccount(ctx, query, id)
}

// GetAccountByKeyHash retrieves the account owning a credential digest
func (s *PostgresStore) GetAccountByKeyHash(ctx context.Context, keyHash string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE key_hash = $1`
	return s.queryAccount(ctx, query, keyHash)
}

// GetAccountByEmail retrieves an account by owner email
func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return s.queryAccount(ctx, query, NormalizeEmail(email))
}

func (s *PostgresStore) queryAccount(ctx context.Context, query string, arg interface{}) (*Account, error) {
	acct, err := scanAccount(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

// TouchLastSeen records the time an account last authenticated
func (s *PostgresStore) TouchLastSeen(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE accounts SET last_seen_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

// RotateKey replaces the credential digest, invalidating the previous key
func (s *PostgresStore) RotateKey(ctx context.Context, id int64, keyHash, keyPrefix string) error {
	query := `UPDATE accounts SET key_hash = $2, key_prefix = $3, updated_at = $4 WHERE id = $1`
	return s.execAccountUpdate(ctx, query, id, keyHash, keyPrefix, time.Now().UTC())
}

// SetActive activates or deactivates an account
func (s *PostgresStore) SetActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE accounts SET active = $2, updated_at = $3 WHERE id = $1`
	return s.execAccountUpdate(ctx, query, id, active, time.Now().UTC())
}

// SetRawRecords grants or revokes the raw-record entitlement
func (s *PostgresStore) SetRawRecords(ctx context.Context, id int64, allowed bool) error {
	query := `UPDATE accounts SET allow_raw_records = $2, updated_at = $3 WHERE id = $1`
	return s.execAccountUpdate(ctx, query, id, allowed, time.Now().UTC())
}

func (s *PostgresStore) execAccountUpdate(ctx context.Context, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// WithTx runs fn inside a database transaction
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&postgresTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListEntries returns ledger entries for an account in creation order
func (s *PostgresStore) ListEntries(ctx context.Context, accountID int64, limit int) ([]LedgerEntry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id = $1 ORDER BY id DESC LIMIT $2`
		rows, err = s.db.QueryContext(ctx, query, accountID, limit)
	} else {
		query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id = $1 ORDER BY id ASC`
		rows, err = s.db.QueryContext(ctx, query, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var callID sql.NullString
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Amount, &e.BalanceBefore,
			&e.BalanceAfter, &callID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.CallID = callID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}

	if limit > 0 {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries, nil
}

// GetCall retrieves a call record by call id
func (s *PostgresStore) GetCall(ctx context.Context, callID string) (*CallRecord, error) {
	query := `SELECT ` + callColumns + ` FROM call_records WHERE call_id = $1`
	call, err := scanCall(s.db.QueryRowContext(ctx, query, callID))
	if err == sql.ErrNoRows {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}
	return call, nil
}

// ListPendingCalls returns reserved calls created before the cutoff that never settled
func (s *PostgresStore) ListPendingCalls(ctx context.Context, createdBefore time.Time, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + callColumns + ` FROM call_records
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at ASC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending calls: %w", err)
	}
	defer rows.Close()

	var calls []CallRecord
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call record: %w", err)
		}
		calls = append(calls, *call)
	}
	return calls, rows.Err()
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) InsertAccount(ctx context.Context, acct *Account, keyHash string) error {
	return insertAccount(ctx, t.tx, acct, keyHash)
}

func (t *postgresTx) LockAccount(ctx context.Context, id int64) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	acct, err := scanAccount(t.tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return acct, nil
}

func (t *postgresTx) UpdateBalance(ctx context.Context, id int64, balance, callsDelta, spentDelta int64) error {
	query := `
		UPDATE accounts SET
			balance = $2,
			total_calls = total_calls + $3,
			total_credits_spent = total_credits_spent + $4,
			updated_at = $5
		WHERE id = $1
	`
	result, err := t.tx.ExecContext(ctx, query, id, balance, callsDelta, spentDelta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (t *postgresTx) AppendEntry(ctx context.Context, entry *LedgerEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO ledger_entries (
			account_id, kind, amount, balance_before, balance_after, call_id, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := t.tx.QueryRowContext(ctx, query,
		entry.AccountID, entry.Kind, entry.Amount, entry.BalanceBefore, entry.BalanceAfter,
		nullString(entry.CallID), entry.Reason, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (t *postgresTx) InsertCall(ctx context.Context, call *CallRecord) error {
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}
	if call.Status == "" {
		call.Status = StatusPending
	}
	query := `
		INSERT INTO call_records (
			call_id, account_id, tool_name, declared_cost, charged, balance_before,
			balance_after, input_summary, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := t.tx.ExecContext(ctx, query,
		call.CallID, call.AccountID, call.ToolName, call.DeclaredCost, call.Charged,
		call.BalanceBefore, call.BalanceAfter, nullJSON(call.InputSummary), call.Status, call.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCall
		}
		return fmt.Errorf("failed to insert call record: %w", err)
	}
	return nil
}

func (t *postgresTx) LockCall(ctx context.Context, callID string) (*CallRecord, error) {
	query := `SELECT ` + callColumns + ` FROM call_records WHERE call_id = $1 FOR UPDATE`
	call, err := scanCall(t.tx.QueryRowContext(ctx, query, callID))
	if err == sql.ErrNoRows {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock call record: %w", err)
	}
	return call, nil
}

func (t *postgresTx) CompleteCall(ctx context.Context, call *CallRecord) error {
	query := `
		UPDATE call_records SET
			status = $2, fault = $3, error_code = $4, error_message = $5,
			latency_ms = $6, charged = $7, balance_after = $8, completed_at = $9
		WHERE call_id = $1 AND status = 'pending'
	`
	var completedAt interface{}
	if call.CompletedAt != nil {
		completedAt = *call.CompletedAt
	}
	result, err := t.tx.ExecContext(ctx, query,
		call.CallID, call.Status, nullString(string(call.Fault)), nullString(call.ErrorCode),
		nullString(call.ErrorMessage), call.LatencyMS, call.Charged, call.BalanceAfter, completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete call record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrCallSettled
	}
	return nil
}

func scanAccount(row rowScanner) (*Account, error) {
	var acct Account
	var displayName sql.NullString
	var lastSeen sql.NullTime
	err := row.Scan(
		&acct.ID, &acct.Email, &displayName, &acct.KeyPrefix, &acct.Balance,
		&acct.MonthlyAllocation, &acct.Tier, &acct.Active, &acct.AllowRawRecords,
		&acct.TotalCalls, &acct.TotalCreditsSpent, &lastSeen, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	acct.DisplayName = displayName.String
	if lastSeen.Valid {
		t := lastSeen.Time
		acct.LastSeenAt = &t
	}
	return &acct, nil
}

func scanCall(row rowScanner) (*CallRecord, error) {
	var call CallRecord
	var summary []byte
	var fault, errorCode, errorMessage sql.NullString
	var latency sql.NullInt64
	var completedAt sql.NullTime
	err := row.Scan(
		&call.CallID, &call.AccountID, &call.ToolName, &call.DeclaredCost, &call.Charged,
		&call.BalanceBefore, &call.BalanceAfter, &summary, &call.Status, &fault,
		&errorCode, &errorMessage, &latency, &call.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(summary) > 0 {
		call.InputSummary = append([]byte(nil), summary...)
	}
	call.Fault = FaultClass(fault.String)
	call.ErrorCode = errorCode.String
	call.ErrorMessage = errorMessage.String
	call.LatencyMS = latency.Int64
	if completedAt.Valid {
		t := completedAt.Time
		call.CompletedAt = &t
	}
	return &call, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
