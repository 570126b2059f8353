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

package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/outris-dev-user/outris-identity-mcp/account"
	"github.com/outris-dev-user/outris-identity-mcp/auth"
	"github.com/outris-dev-user/outris-identity-mcp/store"
)

type claimsKey struct{}

// withAssertion requires a valid signed assertion whose subject is the
// portal user's email
func (s *Server) withAssertion(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.StripScheme(r.Header.Get("Authorization"))
		if token == "" {
			writeJSONError(w, auth.ErrMissingCredential.Code, "Authorization: Bearer <token> required", http.StatusUnauthorized)
			return
		}
		claims, err := s.verifier.Verify(token)
		if err != nil {
			var authErr *auth.Error
			if errors.As(err, &authErr) {
				writeJSONError(w, authErr.Code, authErr.Message, http.StatusUnauthorized)
				return
			}
			writeJSONError(w, auth.ErrTokenInvalid.Code, "token rejected", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	}
}

func claimsFrom(r *http.Request) *auth.Claims {
	c, _ := r.Context().Value(claimsKey{}).(*auth.Claims)
	return c
}

type accountView struct {
	ID                int64      `json:"id"`
	Email             string     `json:"email"`
	DisplayName       string     `json:"display_name,omitempty"`
	KeyPrefix         string     `json:"key_prefix"`
	Balance           int64      `json:"balance"`
	MonthlyAllocation int64      `json:"monthly_allocation"`
	Tier              string     `json:"tier"`
	Active            bool       `json:"active"`
	AllowRawRecords   bool       `json:"allow_raw_records"`
	TotalCalls        int64      `json:"total_calls"`
	TotalCreditsSpent int64      `json:"total_credits_spent"`
	LastSeenAt        *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func viewOf(a *store.Account) accountView {
	return accountView{
		ID:                a.ID,
		Email:             a.Email,
		DisplayName:       a.DisplayName,
		KeyPrefix:         a.KeyPrefix,
		Balance:           a.Balance,
		MonthlyAllocation: a.MonthlyAllocation,
		Tier:              a.Tier,
		Active:            a.Active,
		AllowRawRecords:   a.AllowRawRecords,
		TotalCalls:        a.TotalCalls,
		TotalCreditsSpent: a.TotalCreditsSpent,
		LastSeenAt:        a.LastSeenAt,
		CreatedAt:         a.CreatedAt,
	}
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.accounts.Get(r.Context(), claimsFrom(r).Subject)
	if err != nil {
		s.accountError(w, r, err)
		return
	}
	writeJSONResponse(w, map[string]interface{}{
		"enabled": true,
		"account": viewOf(acct),
	}, http.StatusOK)
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	issued, err := s.accounts.Enable(r.Context(), claims.Subject, claims.Name)
	if err != nil {
		s.accountError(w, r, err)
		return
	}
	writeJSONResponse(w, map[string]interface{}{
		"account": viewOf(issued.Account),
		"api_key": issued.APIKey,
		"note":    "Store this key now. It cannot be shown again.",
	}, http.StatusCreated)
}

func (s *Server) handleRegenerateKey(w http.ResponseWriter, r *http.Request) {
	issued, err := s.accounts.RegenerateKey(r.Context(), claimsFrom(r).Subject)
	if err != nil {
		s.accountError(w, r, err)
		return
	}
	writeJSONResponse(w, map[string]interface{}{
		"api_key":    issued.APIKey,
		"key_prefix": issued.Account.KeyPrefix,
		"note":       "The previous key no longer works.",
	}, http.StatusOK)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSONError(w, "invalid_limit", "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	usage, err := s.accounts.Usage(r.Context(), claimsFrom(r).Subject, limit)
	if err != nil {
		s.accountError(w, r, err)
		return
	}
	writeJSONResponse(w, map[string]interface{}{
		"account": viewOf(usage.Account),
		"entries": usage.Entries,
	}, http.StatusOK)
}

func (s *Server) accountError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		writeJSONError(w, "account_not_found", "no gateway account for this user; POST /api/account/enable to create one", http.StatusNotFound)
	case errors.Is(err, account.ErrAlreadyEnabled):
		writeJSONError(w, "already_enabled", "gateway access is already enabled for this user", http.StatusConflict)
	case errors.Is(err, account.ErrInvalidEmail):
		writeJSONError(w, "invalid_subject", "token subject is not an email address", http.StatusBadRequest)
	case errors.Is(err, auth.ErrAccountInactive):
		writeJSONError(w, auth.ErrAccountInactive.Code, auth.ErrAccountInactive.Message, http.StatusForbidden)
	default:
		s.logger.Error("", r.Header.Get("X-Request-ID"), "Account request failed", map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		writeJSONError(w, "internal_error", "account service unavailable", http.StatusInternalServerError)
	}
}
