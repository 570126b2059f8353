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

// Package sse serves MCP over a long-lived event stream. A client opens
// GET /sse, learns its message endpoint from the first event, and posts
// JSON-RPC requests there; replies come back on the stream.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/outris-dev-user/outris-identity-mcp/dispatch"
	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
	"github.com/outris-dev-user/outris-identity-mcp/transport"
)

const (
	// DefaultHeartbeat is the interval between keep-alive comments
	DefaultHeartbeat = 15 * time.Second

	maxBodyBytes = 1 << 20
	outboxSize   = 32
)

type session struct {
	id     string
	bearer string
	origin string
	out    chan []byte
	ctx    context.Context
}

// Hub tracks open event-stream sessions
type Hub struct {
	dispatcher *dispatch.Dispatcher
	trustProxy bool
	heartbeat  time.Duration
	logger     *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// NewHub creates a hub. A zero heartbeat uses DefaultHeartbeat.
func NewHub(d *dispatch.Dispatcher, trustProxy bool, heartbeat time.Duration) *Hub {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Hub{
		dispatcher: d,
		trustProxy: trustProxy,
		heartbeat:  heartbeat,
		logger:     logger.New("sse"),
		sessions:   make(map[string]*session),
	}
}

// Register mounts the stream and message routes on r
func (h *Hub) Register(r *mux.Router) {
	r.HandleFunc("/sse", h.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/messages", h.handleMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/", h.handleMessage).Methods(http.MethodPost)
}

// Len returns the number of open sessions
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "streaming_unsupported", "response writer cannot stream", http.StatusInternalServerError)
		return
	}

	sess := &session{
		id:     uuid.NewString(),
		bearer: transport.Bearer(r),
		origin: transport.ClientIP(r, h.trustProxy),
		out:    make(chan []byte, outboxSize),
		ctx:    r.Context(),
	}
	h.mu.Lock()
	h.sessions[sess.id] = sess
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, sess.id)
		h.mu.Unlock()
		h.logger.Info("", sess.id, "SSE session closed", nil)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprintf(w, "event: endpoint\ndata: /messages?session_id=%s\n\n", sess.id); err != nil {
		return
	}
	flusher.Flush()
	h.logger.Info("", sess.id, "SSE session opened", map[string]interface{}{
		"authenticated": sess.bearer != "",
	})

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-sess.out:
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Hub) handleMessage(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	h.mu.RLock()
	sess, ok := h.sessions[id]
	h.mu.RUnlock()
	if !ok {
		writeError(w, "session_not_found", "unknown or closed session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "body_too_large", "request body too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}

	call := transport.NewSession(r, h.trustProxy)
	if call.Bearer == "" {
		call.Bearer = sess.bearer
	}
	call.Origin = sess.origin

	go h.dispatch(sess, call, body)

	w.Header().Set(transport.RequestIDHeader, call.RequestID)
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
}

// dispatch runs under the stream's context so a closed stream cancels the call
func (h *Hub) dispatch(sess *session, call dispatch.Session, body []byte) {
	reply := h.dispatcher.HandlePayload(sess.ctx, call, body)
	if reply.Empty() {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		h.logger.Error("", call.RequestID, "Failed to encode response", map[string]interface{}{"error": err.Error()})
		return
	}
	select {
	case sess.out <- data:
	case <-sess.ctx.Done():
		h.logger.Warn("", call.RequestID, "Dropped response for closed session", map[string]interface{}{"session_id": sess.id})
	}
}

func writeError(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
			"status":  status,
		},
	})
}
