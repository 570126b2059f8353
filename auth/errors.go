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

// Error is a credential failure with a stable code
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches errors by code so wrapped copies compare equal to the sentinels
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	// ErrMissingCredential is returned when no bearer credential was presented
	ErrMissingCredential = &Error{Code: "missing_credential", Message: "API key is required"}

	// ErrInvalidCredential is returned when the credential matches no account
	ErrInvalidCredential = &Error{Code: "invalid_credential", Message: "invalid API key"}

	// ErrAccountInactive is returned when the matched account has been deactivated
	ErrAccountInactive = &Error{Code: "account_inactive", Message: "account is deactivated"}

	// ErrTokenExpired is returned when a signed assertion is past its expiry
	ErrTokenExpired = &Error{Code: "token_expired", Message: "token has expired"}

	// ErrTokenInvalid is returned for any malformed, unsigned or mis-signed assertion
	ErrTokenInvalid = &Error{Code: "token_invalid", Message: "invalid token"}
)
