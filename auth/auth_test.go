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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outris-dev-user/outris-identity-mcp/store"
)

type failingAccounts struct {
	store.AccountStore
	err error
}

func (f *failingAccounts) GetAccountByKeyHash(ctx context.Context, keyHash string) (*store.Account, error) {
	return nil, f.err
}

func setupResolver(t *testing.T) (*Resolver, *store.MemoryStore, *Hasher) {
	t.Helper()
	accounts := store.NewMemoryStore()
	hasher := NewHasher("test-hash-key")
	return NewResolver(accounts, hasher), accounts, hasher
}

func createAccount(t *testing.T, accounts *store.MemoryStore, hasher *Hasher, active, raw bool) (string, *store.Account) {
	t.Helper()
	key, digest, prefix, err := hasher.Generate()
	require.NoError(t, err)
	acct := &store.Account{Email: "owner@example.com", KeyPrefix: prefix, Active: active, AllowRawRecords: raw}
	require.NoError(t, accounts.CreateAccount(context.Background(), acct, digest))
	return key, acct
}

func TestHasher_Generate(t *testing.T) {
	h := NewHasher("k")
	key, digest, prefix, err := h.Generate()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, KeyPrefix))
	assert.Len(t, prefix, 12)
	assert.True(t, strings.HasPrefix(key, prefix))
	assert.Equal(t, h.Hash(key), digest)
	assert.Len(t, digest, 64)

	other, _, _, err := h.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestHasher_KeyedDigest(t *testing.T) {
	a := NewHasher("key-a").Hash("mcp_same")
	b := NewHasher("key-b").Hash("mcp_same")
	assert.NotEqual(t, a, b, "digest must depend on the hashing key")
	assert.Equal(t, a, NewHasher("key-a").Hash("mcp_same"))
}

func TestStripScheme(t *testing.T) {
	cases := map[string]string{
		"Bearer mcp_abc":    "mcp_abc",
		"bearer   mcp_abc ": "mcp_abc",
		"mcp_abc":           "mcp_abc",
		"  ":                "",
		"Bearer ":           "",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripScheme(in), "input %q", in)
	}
}

func TestResolver_Resolve(t *testing.T) {
	r, accounts, hasher := setupResolver(t)
	key, acct := createAccount(t, accounts, hasher, true, true)

	ac, err := r.Resolve(context.Background(), "Bearer "+key)
	require.NoError(t, err)
	assert.False(t, ac.Guest)
	assert.Equal(t, acct.ID, ac.AccountID)
	assert.True(t, ac.RawRecordsAllowed())

	stored, err := accounts.GetAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastSeenAt, "successful resolution touches last seen")
}

func TestResolver_Failures(t *testing.T) {
	r, accounts, hasher := setupResolver(t)
	inactiveKey, _ := createAccount(t, accounts, hasher, false, false)

	tests := []struct {
		name   string
		bearer string
		want   error
	}{
		{"missing", "", ErrMissingCredential},
		{"scheme only", "Bearer   ", ErrMissingCredential},
		{"unknown key", "mcp_doesnotexist", ErrInvalidCredential},
		{"inactive account", inactiveKey, ErrAccountInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac, err := r.Resolve(context.Background(), tt.bearer)
			assert.Nil(t, ac)
			assert.ErrorIs(t, err, tt.want)

			var authErr *Error
			assert.True(t, errors.As(err, &authErr))
		})
	}
}

func TestResolver_StoreFailureIsNotAuthError(t *testing.T) {
	outage := errors.New("connection refused")
	r := NewResolver(&failingAccounts{err: outage}, NewHasher("k"))

	_, err := r.Resolve(context.Background(), "mcp_anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, outage)

	var authErr *Error
	assert.False(t, errors.As(err, &authErr))
}

func TestContext_FailClosedEntitlement(t *testing.T) {
	var nilCtx *Context
	assert.False(t, nilCtx.RawRecordsAllowed())
	assert.False(t, GuestContext().RawRecordsAllowed())
	assert.False(t, (&Context{AccountID: 1}).RawRecordsAllowed())
	assert.True(t, (&Context{AccountID: 1, AllowRawRecords: true}).RawRecordsAllowed())
	assert.Equal(t, "guest", GuestContext().Ref())
	assert.Equal(t, "acct:12", (&Context{AccountID: 12}).Ref())
}

func TestAssertionVerifier(t *testing.T) {
	v := NewAssertionVerifier("jwt-secret", "identity-gateway")

	token, err := v.Issue("owner@example.com", "Owner", time.Hour)
	require.NoError(t, err)

	claims, err := v.Verify("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", claims.Subject)
	assert.Equal(t, "Owner", claims.Name)
}

func TestAssertionVerifier_Expired(t *testing.T) {
	v := NewAssertionVerifier("jwt-secret", "")
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, err := v.Issue("owner@example.com", "", time.Hour)
	require.NoError(t, err)

	v.now = time.Now
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAssertionVerifier_Invalid(t *testing.T) {
	v := NewAssertionVerifier("jwt-secret", "identity-gateway")
	other := NewAssertionVerifier("other-secret", "identity-gateway")
	wrongIssuer := NewAssertionVerifier("jwt-secret", "someone-else")

	forged, err := other.Issue("owner@example.com", "", time.Hour)
	require.NoError(t, err)
	misissued, err := wrongIssuer.Issue("owner@example.com", "", time.Hour)
	require.NoError(t, err)
	noSubject, err := v.Issue("", "", time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.jwt",
		"wrong secret": forged,
		"wrong issuer": misissued,
		"no subject":   noSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(token)
			assert.ErrorIs(t, err, ErrTokenInvalid)
		})
	}

	_, err = NewAssertionVerifier("", "").Verify(forged)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
