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

// Package transport holds the request helpers shared by the HTTP and
// event-stream adapters.
package transport

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/outris-dev-user/outris-identity-mcp/dispatch"
)

// RequestIDHeader carries a caller-supplied correlation id
const RequestIDHeader = "X-Request-ID"

// Bearer returns the credential presented on r. The Authorization header
// wins; the api_key query parameter is accepted for clients that cannot
// set headers on an event stream.
func Bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return h
	}
	if k := r.URL.Query().Get("api_key"); k != "" {
		return "Bearer " + k
	}
	return ""
}

// ClientIP returns the caller's network origin. Forwarding headers are
// honoured only when the gateway sits behind a trusted proxy.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
			return real
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestID returns the caller's correlation id or a fresh one
func RequestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(RequestIDHeader)); id != "" && len(id) <= 128 {
		return id
	}
	return uuid.NewString()
}

// NewSession builds the per-call dispatch session for r
func NewSession(r *http.Request, trustProxy bool) dispatch.Session {
	return dispatch.Session{
		Bearer:    Bearer(r),
		Origin:    ClientIP(r, trustProxy),
		RequestID: RequestID(r),
	}
}
