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
	"encoding/json"
)

// ProtocolVersion is the MCP protocol revision this gateway speaks
const ProtocolVersion = "2024-11-05"

// JSON-RPC 2.0 protocol error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Authentication error codes
const (
	CodeMissingCredential = -32001
	CodeInvalidCredential = -32002
	CodeAccountInactive   = -32003
	CodeTokenExpired      = -32004
	CodeTokenInvalid      = -32005
)

// Registry error codes
const (
	CodeToolNotFound = -32010
	CodeToolDisabled = -32011
)

// Credit error codes
const (
	CodeInsufficientCredits = -32020
	CodeGuestRateLimited    = -32021
)

// Execution error codes
const (
	CodeBackendFault      = -32030
	CodeCallerFault       = -32031
	CodeLedgerUnavailable = -32032
)

// Credit annotations carried in ErrorData.Credits
const (
	CreditsNone     = "none"
	CreditsCharged  = "charged"
	CreditsRefunded = "refunded"
	// CreditsPending means the refund could not be recorded yet
	CreditsPending = "pending"
)

// Request is a JSON-RPC 2.0 request or notification
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error envelope used on every failure path
type RPCError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// ErrorData carries the free-text detail and credit annotations
type ErrorData struct {
	Detail    string `json:"detail"`
	Credits   string `json:"credits,omitempty"`
	Required  *int64 `json:"required,omitempty"`
	Available *int64 `json:"available,omitempty"`
	CallID    string `json:"call_id,omitempty"`
}

// Reply is what a transport writes back for one inbound payload. Exactly
// one of Single and Batch is used; a batch made only of notifications
// produces an empty Reply.
type Reply struct {
	Single *Response
	Batch  []*Response
}

// Empty reports whether nothing should be written back
func (r Reply) Empty() bool {
	return r.Single == nil && len(r.Batch) == 0
}

// MarshalJSON encodes a single response as an object and a batch as an array
func (r Reply) MarshalJSON() ([]byte, error) {
	if r.Single != nil {
		return json.Marshal(r.Single)
	}
	return json.Marshal(r.Batch)
}

func newError(code int, message, detail string) *RPCError {
	return &RPCError{Code: code, Message: message, Data: &ErrorData{Detail: detail}}
}

func resultResponse(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: "2.0", ID: normalizeID(id), Result: result}
}

func errorResponse(id json.RawMessage, err *RPCError) *Response {
	return &Response{JSONRPC: "2.0", ID: normalizeID(id), Error: err}
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      serverInfo         `json:"serverInfo"`
}

type serverCapabilities struct {
	Tools *toolCapability `json:"tools,omitempty"`
}

type toolCapability struct {
	ListChanged bool `json:"listChanged"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type toolsListResult struct {
	Tools []ToolDescription `json:"tools"`
}

// ToolDescription is one tools/list entry
type ToolDescription struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type toolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// ContentBlock is an MCP text content block
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResult is the tools/call success payload
type CallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
	Meta    *CallMeta      `json:"_meta,omitempty"`
}

// CallMeta is the credit annotation of an authenticated call
type CallMeta struct {
	CallID      string `json:"call_id"`
	CreditsUsed int64  `json:"credits_used"`
	Balance     int64  `json:"balance"`
	LatencyMS   int64  `json:"latency_ms"`
	Masked      bool   `json:"masked"`
}
