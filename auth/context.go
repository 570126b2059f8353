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
	"strconv"

	"github.com/outris-dev-user/outris-identity-mcp/store"
)

// Context is the authorization context of a single call. It is built per
// call by the dispatcher and never shared between calls.
type Context struct {
	Guest           bool
	AccountID       int64
	Email           string
	Tier            string
	AllowRawRecords bool
	Balance         int64
}

// GuestContext returns the anonymous context used for allow-listed tools
func GuestContext() *Context {
	return &Context{Guest: true}
}

// NewContext builds a context from a resolved account
func NewContext(acct *store.Account) *Context {
	return &Context{
		AccountID:       acct.ID,
		Email:           acct.Email,
		Tier:            acct.Tier,
		AllowRawRecords: acct.AllowRawRecords,
		Balance:         acct.Balance,
	}
}

// RawRecordsAllowed reports whether unmasked identifying data may be returned.
// A nil or guest context is never entitled.
func (c *Context) RawRecordsAllowed() bool {
	if c == nil || c.Guest {
		return false
	}
	return c.AllowRawRecords
}

// Ref is the account reference used in logs
func (c *Context) Ref() string {
	if c == nil || c.Guest {
		return "guest"
	}
	return "acct:" + strconv.FormatInt(c.AccountID, 10)
}
