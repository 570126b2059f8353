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

package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Kind classifies a failed backend request
type Kind string

const (
	// KindTimeout means the backend did not answer within the deadline
	KindTimeout Kind = "timeout"
	// KindConnection means the backend could not be reached or dropped the connection
	KindConnection Kind = "connection"
	// KindUpstream means the backend answered with a 5xx status
	KindUpstream Kind = "upstream"
	// KindRejected means the backend refused the request with a non-5xx status
	KindRejected Kind = "rejected"
	// KindDecode means the backend answered with a body that is not a JSON object
	KindDecode Kind = "decode"
	// KindCanceled means the caller's context was cancelled
	KindCanceled Kind = "canceled"
	// KindRequest covers failures building or sending the request
	KindRequest Kind = "request"
)

// Error is returned for every failed backend call
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("backend %s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += " (cause: " + e.Cause.Error() + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Transient reports whether the failure is attributable to the backend:
// timeouts, connection failures and 5xx answers.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindConnection, KindUpstream:
		return true
	}
	return false
}

// IsTransient reports whether err carries a transient backend failure
func IsTransient(err error) bool {
	var be *Error
	return errors.As(err, &be) && be.Transient()
}

// KindOf returns the kind of a backend error, or "" for other errors
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

func classifyTransportError(err error) Kind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindConnection
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return KindConnection
	}
	return KindRequest
}
