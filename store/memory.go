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
	"sort"
	"sync"
	"time"
)

// MemoryStore implements AccountStore and LedgerStore in process memory.
// It is used when no database is configured and by tests. Ledger
// transactions hold the store mutex for their whole duration, which
// serialises every reservation in the process.
type MemoryStore struct {
	mu          sync.Mutex
	nextID      int64
	nextEntryID int64
	accounts    map[int64]*Account
	keyHashes   map[int64]string
	byHash      map[string]int64
	byEmail     map[string]int64
	entries     map[int64][]LedgerEntry
	calls       map[string]*CallRecord
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[int64]*Account),
		keyHashes: make(map[int64]string),
		byHash:    make(map[string]int64),
		byEmail:   make(map[string]int64),
		entries:   make(map[int64][]LedgerEntry),
		calls:     make(map[string]*CallRecord),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// CreateAccount inserts a new account with a zero balance
func (s *MemoryStore) CreateAccount(ctx context.Context, acct *Account, keyHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.insertAccount(acct, keyHash)
	return err
}

// insertAccount requires s.mu. It returns a func that removes the account again.
func (s *MemoryStore) insertAccount(acct *Account, keyHash string) (func(), error) {
	email := NormalizeEmail(acct.Email)
	if _, ok := s.byEmail[email]; ok {
		return nil, ErrDuplicateAccount
	}
	if _, ok := s.byHash[keyHash]; ok {
		return nil, ErrDuplicateAccount
	}

	s.nextID++
	now := s.now()
	acct.ID = s.nextID
	acct.Email = email
	acct.Balance = 0
	if acct.Tier == "" {
		acct.Tier = TierFree
	}
	acct.CreatedAt = now
	acct.UpdatedAt = now

	stored := *acct
	id := acct.ID
	s.accounts[id] = &stored
	s.keyHashes[id] = keyHash
	s.byHash[keyHash] = id
	s.byEmail[email] = id

	return func() {
		delete(s.accounts, id)
		delete(s.keyHashes, id)
		delete(s.byHash, keyHash)
		delete(s.byEmail, email)
		delete(s.entries, id)
	}, nil
}

// GetAccount retrieves an account by ID
func (s *MemoryStore) GetAccount(ctx context.Context, id int64) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyAccount(id)
}

// GetAccountByKeyHash retrieves the account owning a credential digest
func (s *MemoryStore) GetAccountByKeyHash(ctx context.Context, keyHash string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHash[keyHash]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return s.copyAccount(id)
}

// GetAccountByEmail retrieves an account by owner email
func (s *MemoryStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return s.copyAccount(id)
}

// TouchLastSeen records the time an account last authenticated
func (s *MemoryStore) TouchLastSeen(ctx context.Context, id int64, at time.Time) error {
	return s.update(id, func(a *Account) {
		t := at
		a.LastSeenAt = &t
	})
}

// RotateKey replaces the credential digest
func (s *MemoryStore) RotateKey(ctx context.Context, id int64, keyHash, keyPrefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if owner, taken := s.byHash[keyHash]; taken && owner != id {
		return ErrDuplicateAccount
	}
	delete(s.byHash, s.keyHashes[id])
	s.byHash[keyHash] = id
	s.keyHashes[id] = keyHash
	acct.KeyPrefix = keyPrefix
	acct.UpdatedAt = s.now()
	return nil
}

// SetActive activates or deactivates an account
func (s *MemoryStore) SetActive(ctx context.Context, id int64, active bool) error {
	return s.update(id, func(a *Account) { a.Active = active })
}

// SetRawRecords grants or revokes the raw-record entitlement
func (s *MemoryStore) SetRawRecords(ctx context.Context, id int64, allowed bool) error {
	return s.update(id, func(a *Account) { a.AllowRawRecords = allowed })
}

func (s *MemoryStore) update(id int64, fn func(a *Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	fn(acct)
	acct.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) copyAccount(id int64) (*Account, error) {
	acct, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *acct
	return &cp, nil
}

// WithTx runs fn while holding the store lock. Changes are undone if fn fails.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// ListEntries returns ledger entries for an account in creation order
func (s *MemoryStore) ListEntries(ctx context.Context, accountID int64, limit int) ([]LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.entries[accountID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]LedgerEntry, len(all))
	copy(out, all)
	return out, nil
}

// GetCall retrieves a call record by call id
func (s *MemoryStore) GetCall(ctx context.Context, callID string) (*CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call, ok := s.calls[callID]
	if !ok {
		return nil, ErrCallNotFound
	}
	cp := *call
	return &cp, nil
}

// ListPendingCalls returns reserved calls created before the cutoff that never settled
func (s *MemoryStore) ListPendingCalls(ctx context.Context, createdBefore time.Time, limit int) ([]CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []CallRecord
	for _, call := range s.calls {
		if call.Status == StatusPending && call.CreatedAt.Before(createdBefore) {
			pending = append(pending, *call)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// memoryTx applies changes directly and keeps an undo log for rollback.
// The store mutex is held by WithTx for the lifetime of the transaction.
type memoryTx struct {
	s    *MemoryStore
	undo []func()
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) InsertAccount(ctx context.Context, acct *Account, keyHash string) error {
	remove, err := t.s.insertAccount(acct, keyHash)
	if err != nil {
		return err
	}
	t.undo = append(t.undo, remove)
	return nil
}

func (t *memoryTx) LockAccount(ctx context.Context, id int64) (*Account, error) {
	return t.s.copyAccount(id)
}

func (t *memoryTx) UpdateBalance(ctx context.Context, id int64, balance, callsDelta, spentDelta int64) error {
	acct, ok := t.s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	prev := *acct
	t.undo = append(t.undo, func() { *acct = prev })

	acct.Balance = balance
	acct.TotalCalls += callsDelta
	acct.TotalCreditsSpent += spentDelta
	acct.UpdatedAt = t.s.now()
	return nil
}

func (t *memoryTx) AppendEntry(ctx context.Context, entry *LedgerEntry) error {
	if _, ok := t.s.accounts[entry.AccountID]; !ok {
		return ErrAccountNotFound
	}
	t.s.nextEntryID++
	entry.ID = t.s.nextEntryID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = t.s.now()
	}

	accountID := entry.AccountID
	prevLen := len(t.s.entries[accountID])
	t.undo = append(t.undo, func() {
		t.s.entries[accountID] = t.s.entries[accountID][:prevLen]
	})
	t.s.entries[accountID] = append(t.s.entries[accountID], *entry)
	return nil
}

func (t *memoryTx) InsertCall(ctx context.Context, call *CallRecord) error {
	if _, exists := t.s.calls[call.CallID]; exists {
		return ErrDuplicateCall
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = t.s.now()
	}
	if call.Status == "" {
		call.Status = StatusPending
	}
	stored := *call
	callID := call.CallID
	t.s.calls[callID] = &stored
	t.undo = append(t.undo, func() { delete(t.s.calls, callID) })
	return nil
}

func (t *memoryTx) LockCall(ctx context.Context, callID string) (*CallRecord, error) {
	call, ok := t.s.calls[callID]
	if !ok {
		return nil, ErrCallNotFound
	}
	cp := *call
	return &cp, nil
}

func (t *memoryTx) CompleteCall(ctx context.Context, call *CallRecord) error {
	stored, ok := t.s.calls[call.CallID]
	if !ok {
		return ErrCallNotFound
	}
	if stored.Status != StatusPending {
		return ErrCallSettled
	}
	prev := *stored
	t.undo = append(t.undo, func() { *stored = prev })

	stored.Status = call.Status
	stored.Fault = call.Fault
	stored.ErrorCode = call.ErrorCode
	stored.ErrorMessage = call.ErrorMessage
	stored.LatencyMS = call.LatencyMS
	stored.Charged = call.Charged
	stored.BalanceAfter = call.BalanceAfter
	stored.CompletedAt = call.CompletedAt
	return nil
}
