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
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/outris-dev-user/outris-identity-mcp/dispatch"
	"github.com/outris-dev-user/outris-identity-mcp/transport"
)

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONResponse(w, &dispatch.Response{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &dispatch.RPCError{Code: dispatch.CodeInvalidRequest, Message: "Invalid Request", Data: &dispatch.ErrorData{Detail: "request body too large or unreadable"}},
		}, http.StatusRequestEntityTooLarge)
		return
	}

	session := transport.NewSession(r, s.cfg.TrustProxy)
	w.Header().Set(transport.RequestIDHeader, session.RequestID)

	reply := s.dispatcher.HandlePayload(r.Context(), session, body)
	if reply.Empty() {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSONResponse(w, reply, http.StatusOK)
}

func (s *Server) handleMCPProbe(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]interface{}{
		"status":    "active",
		"transport": "streamable-http",
		"message":   "POST JSON-RPC 2.0 requests to this endpoint",
	}, http.StatusOK)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]interface{}{
		"server":      "outris-identity-mcp",
		"version":     s.cfg.Version,
		"mcp_version": dispatch.ProtocolVersion,
		"transports": map[string]string{
			"streamable_http": "/mcp",
			"sse":             "/sse",
		},
		"endpoints": map[string]string{
			"health":  "/health",
			"tools":   "/tools",
			"metrics": "/metrics",
		},
		"docs": s.cfg.PortalURL,
	}, http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	checks := map[string]string{"store": "ok"}
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
			checks["store"] = "unreachable"
			s.logger.Warn("", "", "Health check failed", map[string]interface{}{"error": err.Error()})
		}
	}

	catalog := s.dispatcher.Catalog()
	writeJSONResponse(w, map[string]interface{}{
		"status":          status,
		"service":         "outris-identity-mcp",
		"version":         s.cfg.Version,
		"timestamp":       time.Now().UTC(),
		"uptime_seconds":  int64(time.Since(s.started).Seconds()),
		"tools_count":     catalog.Len(),
		"catalog_version": catalog.Version(),
		"checks":          checks,
	}, code)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	catalog := s.dispatcher.Catalog()
	tools := make(map[string]interface{}, catalog.Len())
	var public []string
	for _, def := range catalog.All() {
		guest := catalog.IsGuestAllowed(def.Name)
		if guest {
			public = append(public, def.Name)
		}
		tools[def.Name] = map[string]interface{}{
			"description":   def.Description,
			"credits":       def.Cost,
			"category":      def.Category,
			"enabled":       def.Enabled,
			"requires_auth": !guest,
		}
	}
	writeJSONResponse(w, map[string]interface{}{
		"total":           len(tools),
		"tools":           tools,
		"public_tools":    public,
		"catalog_version": catalog.Version(),
		"note":            "Use /mcp or /sse for tool execution",
	}, http.StatusOK)
}
