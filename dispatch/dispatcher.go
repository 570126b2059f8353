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

// Package dispatch is the authenticated, credit-metered core that turns
// MCP JSON-RPC requests into tool invocations. Every call is resolved to
// an authorization context, checked against the catalog, reserved on the
// credit ledger, executed, settled and redacted before the reply is built.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outris-dev-user/outris-identity-mcp/auth"
	"github.com/outris-dev-user/outris-identity-mcp/events"
	"github.com/outris-dev-user/outris-identity-mcp/ledger"
	"github.com/outris-dev-user/outris-identity-mcp/ratelimit"
	"github.com/outris-dev-user/outris-identity-mcp/redact"
	"github.com/outris-dev-user/outris-identity-mcp/registry"
	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
	"github.com/outris-dev-user/outris-identity-mcp/store"
)

// DefaultHandlerTimeout bounds a single tool handler
const DefaultHandlerTimeout = 90 * time.Second

const (
	settleAttempts       = 3
	defaultSettleBackoff = 200 * time.Millisecond
)

// CredentialResolver turns a bearer credential into an authorization context
type CredentialResolver interface {
	Resolve(ctx context.Context, bearer string) (*auth.Context, error)
}

// CreditLedger is the reserve/settle surface of the ledger
type CreditLedger interface {
	Reserve(ctx context.Context, req ledger.ReserveRequest) (*ledger.Reservation, error)
	Settle(ctx context.Context, callID string, outcome ledger.Outcome) (*ledger.Settlement, error)
}

// Options wires the dispatcher's collaborators
type Options struct {
	Catalog        *registry.Catalog
	Resolver       CredentialResolver
	Ledger         CreditLedger
	Redactor       *redact.Policy
	Limiter        ratelimit.Limiter
	Events         *events.Emitter
	HandlerTimeout time.Duration
	ServerName     string
	ServerVersion  string
}

// Session carries the per-call transport facts. Transports build one per
// request; nothing about it outlives the call.
type Session struct {
	Bearer    string
	Origin    string
	RequestID string
}

// Dispatcher routes MCP methods
type Dispatcher struct {
	catalog        *registry.Catalog
	resolver       CredentialResolver
	ledger         CreditLedger
	redactor       *redact.Policy
	limiter        ratelimit.Limiter
	events         *events.Emitter
	handlerTimeout time.Duration
	info           serverInfo
	logger         *logger.Logger
	now            func() time.Time
	newCallID      func() string
	settleBackoff  time.Duration
}

// New validates opts and builds a dispatcher
func New(opts Options) (*Dispatcher, error) {
	if opts.Catalog == nil {
		return nil, errors.New("dispatch: catalog is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("dispatch: credential resolver is required")
	}
	if opts.Ledger == nil {
		return nil, errors.New("dispatch: credit ledger is required")
	}

	d := &Dispatcher{
		catalog:        opts.Catalog,
		resolver:       opts.Resolver,
		ledger:         opts.Ledger,
		redactor:       opts.Redactor,
		limiter:        opts.Limiter,
		events:         opts.Events,
		handlerTimeout: opts.HandlerTimeout,
		info:           serverInfo{Name: opts.ServerName, Version: opts.ServerVersion},
		logger:         logger.New("dispatch"),
		now:            time.Now,
		newCallID:      func() string { return uuid.NewString() },
		settleBackoff:  defaultSettleBackoff,
	}
	if d.redactor == nil {
		d.redactor = redact.DefaultPolicy()
	}
	if d.limiter == nil {
		d.limiter = ratelimit.Unlimited{}
	}
	if d.events == nil {
		d.events = events.NewEmitter(nil)
	}
	if d.handlerTimeout <= 0 {
		d.handlerTimeout = DefaultHandlerTimeout
	}
	if d.info.Name == "" {
		d.info.Name = "outris-identity"
	}
	if d.info.Version == "" {
		d.info.Version = "dev"
	}
	return d, nil
}

// Catalog returns the catalog the dispatcher serves
func (d *Dispatcher) Catalog() *registry.Catalog {
	return d.catalog
}

// HandleMessage parses one raw JSON-RPC message and dispatches it. It
// returns nil when no reply is due (notifications).
func (d *Dispatcher) HandleMessage(ctx context.Context, s Session, data []byte) *Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse(nil, newError(CodeParseError, "Parse error", err.Error()))
	}
	return d.Handle(ctx, s, &req)
}

// HandlePayload dispatches a raw inbound payload, which may be a single
// message or a JSON-RPC batch. Batch members run in order.
func (d *Dispatcher) HandlePayload(ctx context.Context, s Session, data []byte) Reply {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return Reply{Single: d.HandleMessage(ctx, s, data)}
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(data, &batch); err != nil || len(batch) == 0 {
		return Reply{Single: errorResponse(nil, newError(CodeInvalidRequest, "Invalid Request", "empty or malformed batch"))}
	}
	var out []*Response
	for _, msg := range batch {
		if resp := d.HandleMessage(ctx, s, msg); resp != nil {
			out = append(out, resp)
		}
	}
	return Reply{Batch: out}
}

// Handle dispatches one decoded request
func (d *Dispatcher) Handle(ctx context.Context, s Session, req *Request) *Response {
	if req.JSONRPC != "2.0" || req.Method == "" {
		if req.IsNotification() {
			return nil
		}
		return errorResponse(req.ID, newError(CodeInvalidRequest, "Invalid Request", "jsonrpc must be \"2.0\" and method is required"))
	}

	if req.IsNotification() {
		if !strings.HasPrefix(req.Method, "notifications/") {
			d.logger.Debug("", s.RequestID, "Ignoring notification", map[string]interface{}{"method": req.Method})
		}
		return nil
	}

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    serverCapabilities{Tools: &toolCapability{}},
			ServerInfo:      d.info,
		})

	case "ping":
		return resultResponse(req.ID, map[string]interface{}{})

	case "tools/list":
		return resultResponse(req.ID, toolsListResult{Tools: d.ListTools(ctx, s)})

	case "tools/call":
		var params toolsCallParams
		if len(req.Params) == 0 {
			return errorResponse(req.ID, newError(CodeInvalidParams, "Invalid params", "params are required for tools/call"))
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, newError(CodeInvalidParams, "Invalid params", err.Error()))
		}
		if params.Name == "" {
			return errorResponse(req.ID, newError(CodeInvalidParams, "Invalid params", "tool name is required"))
		}
		result, rpcErr := d.CallTool(ctx, s, params.Name, params.Arguments)
		if rpcErr != nil {
			return errorResponse(req.ID, rpcErr)
		}
		return resultResponse(req.ID, result)

	default:
		if strings.HasPrefix(req.Method, "notifications/") {
			return resultResponse(req.ID, map[string]interface{}{})
		}
		return errorResponse(req.ID, newError(CodeMethodNotFound, "Method not found", "unknown method: "+req.Method))
	}
}

// ListTools returns the tools visible to the session's credential. An
// absent or failing credential sees the guest allow-list.
func (d *Dispatcher) ListTools(ctx context.Context, s Session) []ToolDescription {
	visibility := registry.VisibilityGuest
	if strings.TrimSpace(s.Bearer) != "" {
		if _, err := d.resolver.Resolve(ctx, s.Bearer); err == nil {
			visibility = registry.VisibilityFull
		}
	}

	defs := d.catalog.List(visibility)
	out := make([]ToolDescription, 0, len(defs))
	for _, def := range defs {
		desc := def.Description
		if visibility == registry.VisibilityGuest && def.Cost > 0 {
			desc = "[DEMO] " + desc
		}
		out = append(out, ToolDescription{
			Name:        def.Name,
			Description: desc,
			InputSchema: registry.InputSchema(def),
		})
	}
	return out
}

// CallTool runs one tool call through the full pipeline
func (d *Dispatcher) CallTool(ctx context.Context, s Session, name string, args map[string]interface{}) (*CallResult, *RPCError) {
	if args == nil {
		args = map[string]interface{}{}
	}

	authCtx, err := d.resolver.Resolve(ctx, s.Bearer)
	if err != nil {
		if !d.catalog.IsGuestAllowed(name) {
			rejectedCallsTotal.WithLabelValues("auth").Inc()
			return nil, d.authError(s, name, err)
		}
		authCtx = auth.GuestContext()
	}

	def, err := d.catalog.Lookup(name)
	if err != nil {
		rejectedCallsTotal.WithLabelValues("not_found").Inc()
		return nil, newError(CodeToolNotFound, "Tool not found", fmt.Sprintf("unknown tool %q", name))
	}
	if err := def.Available(); err != nil {
		rejectedCallsTotal.WithLabelValues("disabled").Inc()
		return nil, newError(CodeToolDisabled, "Tool disabled", fmt.Sprintf("tool %q is currently disabled", name))
	}
	if err := registry.ValidateArguments(def, args); err != nil {
		rejectedCallsTotal.WithLabelValues("invalid_params").Inc()
		return nil, newError(CodeInvalidParams, "Invalid params", err.Error())
	}

	if authCtx.Guest {
		return d.callGuest(ctx, s, def, authCtx, args)
	}
	return d.callMetered(ctx, s, def, authCtx, args)
}

func (d *Dispatcher) callGuest(ctx context.Context, s Session, def *registry.ToolDefinition, authCtx *auth.Context, args map[string]interface{}) (*CallResult, *RPCError) {
	if def.Cost > 0 {
		decision := d.limiter.Allow(ctx, s.Origin)
		if !decision.Allowed {
			rejectedCallsTotal.WithLabelValues("guest_limit").Inc()
			return nil, newError(CodeGuestRateLimited, "Guest limit reached",
				fmt.Sprintf("anonymous callers may make %d demo calls per window; try again after %s or use get_full_access to obtain an API key",
					decision.Limit, decision.ResetAt.UTC().Format(time.RFC3339)))
		}
	}

	out, latency, err := d.invoke(ctx, def, args)
	toolCallDuration.WithLabelValues(def.Name).Observe(latency.Seconds())
	if err != nil {
		fault, code := classifyFault(ctx, err)
		toolCallsTotal.WithLabelValues(def.Name, "guest", string(fault)).Inc()
		d.logger.Warn(authCtx.Ref(), s.RequestID, "Guest tool call failed", map[string]interface{}{
			"tool":  def.Name,
			"fault": string(fault),
			"kind":  code,
			"error": err.Error(),
		})
		return nil, executionError(def.Name, fault, CreditsNone, "")
	}

	redacted, _ := d.redactor.ApplyMap(authCtx, out)
	text, rpcErr := encodeResult(redacted)
	if rpcErr != nil {
		return nil, rpcErr
	}
	toolCallsTotal.WithLabelValues(def.Name, "guest", "success").Inc()
	return &CallResult{Content: []ContentBlock{{Type: "text", Text: text}}}, nil
}

func (d *Dispatcher) callMetered(ctx context.Context, s Session, def *registry.ToolDefinition, authCtx *auth.Context, args map[string]interface{}) (*CallResult, *RPCError) {
	acct := authCtx.Ref()
	callID := d.newCallID()

	res, err := d.ledger.Reserve(ctx, ledger.ReserveRequest{
		AccountID:    authCtx.AccountID,
		Tool:         def.Name,
		Cost:         def.Cost,
		CallID:       callID,
		InputSummary: inputSummary(args),
	})
	if err != nil {
		var insufficient *ledger.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			rejectedCallsTotal.WithLabelValues("insufficient_credits").Inc()
			required, available := insufficient.Required, insufficient.Available
			return nil, &RPCError{
				Code:    CodeInsufficientCredits,
				Message: "Insufficient credits",
				Data: &ErrorData{
					Detail:    fmt.Sprintf("%s costs %d credits but only %d remain", def.Name, required, available),
					Credits:   CreditsNone,
					Required:  &required,
					Available: &available,
				},
			}
		}
		rejectedCallsTotal.WithLabelValues("ledger_unavailable").Inc()
		d.logger.ErrorWithCode(acct, s.RequestID, "Credit reservation failed", CodeLedgerUnavailable, err, map[string]interface{}{
			"tool":    def.Name,
			"call_id": callID,
		})
		return nil, &RPCError{
			Code:    CodeLedgerUnavailable,
			Message: "Credit ledger unavailable",
			Data:    &ErrorData{Detail: "the call was not executed; please retry shortly", Credits: CreditsNone},
		}
	}

	out, latency, callErr := d.invoke(ctx, def, args)
	toolCallDuration.WithLabelValues(def.Name).Observe(latency.Seconds())

	outcome := ledger.Outcome{Success: callErr == nil, Latency: latency}
	if callErr != nil {
		fault, code := classifyFault(ctx, callErr)
		outcome.Fault = fault
		outcome.ErrorCode = code
		outcome.ErrorMessage = callErr.Error()
	}

	settlement, settleErr := d.settle(ctx, s, acct, def.Name, callID, outcome)
	if settleErr != nil {
		d.logger.ErrorWithCode(acct, s.RequestID, "Settlement failed, left for recovery sweep", CodeLedgerUnavailable, settleErr, map[string]interface{}{
			"tool":    def.Name,
			"call_id": callID,
		})
	} else {
		d.publishSettled(def.Name, outcome, settlement)
	}

	if callErr != nil {
		credits := CreditsCharged
		switch {
		case settlement != nil && settlement.Refunded:
			credits = CreditsRefunded
			creditsRefundedTotal.WithLabelValues(def.Name).Add(float64(res.Cost))
		case settleErr != nil && outcome.Fault == store.FaultBackend:
			credits = CreditsPending
		default:
			creditsChargedTotal.WithLabelValues(def.Name).Add(float64(res.Cost))
		}
		toolCallsTotal.WithLabelValues(def.Name, authCtx.Tier, string(outcome.Fault)).Inc()
		d.logger.Warn(acct, s.RequestID, "Tool call failed", map[string]interface{}{
			"tool":     def.Name,
			"call_id":  callID,
			"fault":    string(outcome.Fault),
			"kind":     outcome.ErrorCode,
			"credits":  credits,
			"error":    callErr.Error(),
			"duration": latency.Milliseconds(),
		})
		return nil, executionError(def.Name, outcome.Fault, credits, callID)
	}

	redacted, masked := d.redactor.ApplyMap(authCtx, out)
	body, rpcErr := encodeResult(redacted)
	if rpcErr != nil {
		return nil, rpcErr
	}

	balance := res.BalanceAfter
	if settlement != nil {
		balance = settlement.BalanceAfter
	}
	creditsChargedTotal.WithLabelValues(def.Name).Add(float64(res.Cost))
	toolCallsTotal.WithLabelValues(def.Name, authCtx.Tier, "success").Inc()
	d.logger.InfoWithDuration(acct, s.RequestID, "Tool call succeeded", float64(latency.Microseconds())/1000, map[string]interface{}{
		"tool":    def.Name,
		"call_id": callID,
		"credits": res.Cost,
		"balance": balance,
		"masked":  masked,
	})

	text := fmt.Sprintf("%s\n\n[Credits: -%d | Remaining: %d | Time: %dms]", body, res.Cost, balance, latency.Milliseconds())
	return &CallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		Meta: &CallMeta{
			CallID:      callID,
			CreditsUsed: res.Cost,
			Balance:     balance,
			LatencyMS:   latency.Milliseconds(),
			Masked:      masked,
		},
	}, nil
}

// settle records the outcome of a reserved call. It runs detached from ctx
// so a departed caller cannot strand the reservation, and retries a few
// times before leaving the call to the recovery sweep.
func (d *Dispatcher) settle(ctx context.Context, s Session, acct, tool, callID string, outcome ledger.Outcome) (*ledger.Settlement, error) {
	detached := context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		var settlement *ledger.Settlement
		settlement, err = d.ledger.Settle(detached, callID, outcome)
		if err == nil {
			return settlement, nil
		}
		if attempt == settleAttempts {
			break
		}
		d.logger.Warn(acct, s.RequestID, "Settlement attempt failed", map[string]interface{}{
			"tool":    tool,
			"call_id": callID,
			"attempt": attempt,
			"error":   err.Error(),
		})
		time.Sleep(time.Duration(attempt) * d.settleBackoff)
	}
	return nil, err
}

// invoke runs the handler under the handler deadline. Panics are turned
// into errors so a faulty tool cannot take the process down with it.
func (d *Dispatcher) invoke(ctx context.Context, def *registry.ToolDefinition, args map[string]interface{}) (out map[string]interface{}, latency time.Duration, err error) {
	callCtx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()

	start := d.now()
	defer func() {
		latency = d.now().Sub(start)
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("tool %s panicked: %v", def.Name, r)
		}
	}()

	out, err = def.Handler(callCtx, args)
	if err == nil && out == nil {
		out = map[string]interface{}{}
	}
	return
}

func (d *Dispatcher) authError(s Session, tool string, err error) *RPCError {
	var authErr *auth.Error
	if !errors.As(err, &authErr) {
		d.logger.ErrorWithCode("", s.RequestID, "Credential lookup failed", CodeLedgerUnavailable, err, map[string]interface{}{
			"tool": tool,
		})
		return &RPCError{
			Code:    CodeLedgerUnavailable,
			Message: "Account store unavailable",
			Data:    &ErrorData{Detail: "credentials could not be checked; please retry shortly", Credits: CreditsNone},
		}
	}

	code := CodeInvalidCredential
	switch authErr.Code {
	case auth.ErrMissingCredential.Code:
		code = CodeMissingCredential
	case auth.ErrAccountInactive.Code:
		code = CodeAccountInactive
	case auth.ErrTokenExpired.Code:
		code = CodeTokenExpired
	case auth.ErrTokenInvalid.Code:
		code = CodeTokenInvalid
	}
	return &RPCError{
		Code:    code,
		Message: "Authentication required",
		Data: &ErrorData{
			Detail:  fmt.Sprintf("%s: %q requires an API key; call get_full_access for instructions", authErr.Message, tool),
			Credits: CreditsNone,
		},
	}
}

func (d *Dispatcher) publishSettled(tool string, outcome ledger.Outcome, s *ledger.Settlement) {
	status := "succeeded"
	if !outcome.Success {
		status = "failed"
	}
	d.events.Emit(events.SubjectCallSettled, events.CallSettled{
		CallID:       s.CallID,
		AccountID:    s.AccountID,
		Tool:         tool,
		Status:       status,
		Fault:        string(outcome.Fault),
		Charged:      s.Charged,
		Refunded:     s.Refunded,
		BalanceAfter: s.BalanceAfter,
		LatencyMS:    outcome.Latency.Milliseconds(),
		SettledAt:    d.now().UTC(),
	})
}
