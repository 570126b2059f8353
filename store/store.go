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

// Package store persists accounts, ledger entries and call records.
//
// Balances are written only through LedgerTx, which the ledger package
// drives inside WithTx. AccountStore exposes everything else about an
// account and deliberately has no way to change a balance.
package store

import (
	"context"
	"time"
)

// AccountStore reads and maintains account records
type AccountStore interface {
	// CreateAccount inserts acct with a zero balance and assigns its ID.
	CreateAccount(ctx context.Context, acct *Account, keyHash string) error
	GetAccount(ctx context.Context, id int64) (*Account, error)
	GetAccountByKeyHash(ctx context.Context, keyHash string) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
	TouchLastSeen(ctx context.Context, id int64, at time.Time) error
	RotateKey(ctx context.Context, id int64, keyHash, keyPrefix string) error
	SetActive(ctx context.Context, id int64, active bool) error
	SetRawRecords(ctx context.Context, id int64, allowed bool) error
	Ping(ctx context.Context) error
}

// LedgerStore is the transactional surface used by the credit ledger
type LedgerStore interface {
	// WithTx runs fn in one transaction. A non-nil error from fn rolls
	// back every change made through the LedgerTx.
	WithTx(ctx context.Context, fn func(tx LedgerTx) error) error
	GetAccount(ctx context.Context, id int64) (*Account, error)
	// ListEntries returns entries in creation order. A positive limit
	// keeps only the most recent entries.
	ListEntries(ctx context.Context, accountID int64, limit int) ([]LedgerEntry, error)
	GetCall(ctx context.Context, callID string) (*CallRecord, error)
	ListPendingCalls(ctx context.Context, createdBefore time.Time, limit int) ([]CallRecord, error)
}

// LedgerTx is one open ledger transaction. Lock methods give the caller
// exclusive use of the row until the transaction ends.
type LedgerTx interface {
	// InsertAccount creates an account with a zero balance inside the
	// transaction, so its opening credit commits or rolls back with it.
	InsertAccount(ctx context.Context, acct *Account, keyHash string) error
	LockAccount(ctx context.Context, id int64) (*Account, error)
	UpdateBalance(ctx context.Context, id int64, balance, callsDelta, spentDelta int64) error
	AppendEntry(ctx context.Context, entry *LedgerEntry) error
	InsertCall(ctx context.Context, call *CallRecord) error
	LockCall(ctx context.Context, callID string) (*CallRecord, error)
	CompleteCall(ctx context.Context, call *CallRecord) error
}
