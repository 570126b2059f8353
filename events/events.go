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

// Package events publishes gateway activity to the message bus so
// downstream consumers (billing exports, usage dashboards) can follow
// settled calls without polling the ledger.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
)

// Subjects
const (
	SubjectCallSettled    = "mcp.calls.settled"
	SubjectAccountEnabled = "mcp.accounts.enabled"
	SubjectKeyRotated     = "mcp.accounts.key_rotated"
)

// MessageBus is the minimal publish surface the gateway needs
type MessageBus interface {
	Publish(subject string, data []byte) error
}

// CallSettled is emitted once per authenticated tool call after settlement
type CallSettled struct {
	CallID       string    `json:"call_id"`
	AccountID    int64     `json:"account_id"`
	Tool         string    `json:"tool"`
	Status       string    `json:"status"`
	Fault        string    `json:"fault,omitempty"`
	Charged      int64     `json:"charged"`
	Refunded     bool      `json:"refunded"`
	BalanceAfter int64     `json:"balance_after"`
	LatencyMS    int64     `json:"latency_ms"`
	SettledAt    time.Time `json:"settled_at"`
}

// AccountChanged is emitted when an account is enabled or its key rotated
type AccountChanged struct {
	AccountID int64     `json:"account_id"`
	KeyPrefix string    `json:"key_prefix,omitempty"`
	Balance   int64     `json:"balance"`
	At        time.Time `json:"at"`
}

// NATSBus publishes to a NATS connection
type NATSBus struct {
	nc *nats.Conn
}

// NewNATSBus wraps an established connection
func NewNATSBus(nc *nats.Conn) *NATSBus {
	return &NATSBus{nc: nc}
}

// Connect dials NATS. An empty URL yields a NoopBus.
func Connect(url string) (MessageBus, func(), error) {
	if url == "" {
		return NoopBus{}, func() {}, nil
	}
	nc, err := nats.Connect(url,
		nats.Name("identity-mcp-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNATSBus(nc), nc.Close, nil
}

// Publish sends data on subject
func (b *NATSBus) Publish(subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}

// NoopBus drops every message
type NoopBus struct{}

// Publish does nothing
func (NoopBus) Publish(string, []byte) error { return nil }

// Message is a captured publication
type Message struct {
	Subject string
	Data    []byte
}

// MemoryBus records publications in order. Used by tests and local runs.
type MemoryBus struct {
	mu       sync.Mutex
	messages []Message
}

// Publish records the message
func (m *MemoryBus) Publish(subject string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Subject: subject, Data: append([]byte(nil), data...)})
	return nil
}

// Messages returns a copy of everything published so far
func (m *MemoryBus) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Emitter serialises events and publishes them. Publish failures are logged
// and never surface to the caller: the ledger is the source of truth.
type Emitter struct {
	bus    MessageBus
	logger *logger.Logger
}

// NewEmitter creates an emitter over bus. A nil bus drops events.
func NewEmitter(bus MessageBus) *Emitter {
	if bus == nil {
		bus = NoopBus{}
	}
	return &Emitter{bus: bus, logger: logger.New("events")}
}

// Emit publishes v as JSON on subject
func (e *Emitter) Emit(subject string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		e.logger.Error("", "", "Failed to encode event", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
		return
	}
	if err := e.bus.Publish(subject, data); err != nil {
		e.logger.Warn("", "", "Failed to publish event", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
	}
}
