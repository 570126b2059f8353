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

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/outris-dev-user/outris-identity-mcp/backend"
	"github.com/outris-dev-user/outris-identity-mcp/registry"
	"github.com/outris-dev-user/outris-identity-mcp/store"
)

// Fault codes recorded on settled calls
const (
	FaultCodeTimeout         = "timeout"
	FaultCodeInvalidArgument = "invalid_argument"
	FaultCodeToolError       = "tool_error"
)

// classifyFault attributes a handler error. Only an explicit set of
// upstream failures (timeout, connection, 5xx) counts against the backend;
// a caller that hung up keeps the charge.
func classifyFault(parent context.Context, err error) (store.FaultClass, string) {
	if parent.Err() != nil {
		return store.FaultCaller, FaultCodeTimeout
	}
	if backend.IsTransient(err) {
		return store.FaultBackend, string(backend.KindOf(err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// The handler deadline expired while the caller was still waiting.
		return store.FaultBackend, string(backend.KindTimeout)
	}
	var argErr *registry.ArgumentError
	if errors.As(err, &argErr) {
		return store.FaultCaller, FaultCodeInvalidArgument
	}
	if kind := backend.KindOf(err); kind != "" {
		return store.FaultCaller, string(kind)
	}
	return store.FaultCaller, FaultCodeToolError
}

func executionError(tool string, fault store.FaultClass, credits, callID string) *RPCError {
	if fault == store.FaultBackend {
		detail := fmt.Sprintf("%s could not reach its data provider; try again later", tool)
		switch credits {
		case CreditsRefunded:
			detail += " (credits refunded)"
		case CreditsPending:
			detail += " (refund pending; check usage before retrying)"
		}
		return &RPCError{
			Code:    CodeBackendFault,
			Message: "Tool execution failed",
			Data:    &ErrorData{Detail: detail, Credits: credits, CallID: callID},
		}
	}
	detail := fmt.Sprintf("%s rejected the request; check the arguments", tool)
	if credits == CreditsCharged {
		detail += " (credits charged)"
	}
	return &RPCError{
		Code:    CodeCallerFault,
		Message: "Tool execution failed",
		Data:    &ErrorData{Detail: detail, Credits: credits, CallID: callID},
	}
}

func encodeResult(v map[string]interface{}) (string, *RPCError) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", newError(CodeInternalError, "Internal error", "tool result could not be encoded")
	}
	return string(data), nil
}

// inputSummary records argument names only; values never reach the ledger
func inputSummary(args map[string]interface{}) json.RawMessage {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	data, _ := json.Marshal(map[string]interface{}{"args": keys})
	return data
}
