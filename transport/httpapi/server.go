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

// Package httpapi serves the stateless MCP endpoint, public discovery
// routes and the self-service account API over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/outris-dev-user/outris-identity-mcp/account"
	"github.com/outris-dev-user/outris-identity-mcp/auth"
	"github.com/outris-dev-user/outris-identity-mcp/dispatch"
	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
)

const maxBodyBytes = 1 << 20

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Config configures the HTTP server
type Config struct {
	Addr           string
	AllowedOrigins []string
	TrustProxy     bool
	Version        string
	PortalURL      string
}

// Server is the gateway's HTTP front door
type Server struct {
	cfg        Config
	router     *mux.Router
	srv        *http.Server
	dispatcher *dispatch.Dispatcher
	accounts   *account.Service
	verifier   *auth.AssertionVerifier
	health     HealthChecker
	logger     *logger.Logger
	started    time.Time
}

// NewServer builds the router. accounts and verifier may be nil, in which
// case the account API is not mounted.
func NewServer(cfg Config, d *dispatch.Dispatcher, accounts *account.Service, verifier *auth.AssertionVerifier, health HealthChecker) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		cfg:        cfg,
		router:     mux.NewRouter(),
		dispatcher: d,
		accounts:   accounts,
		verifier:   verifier,
		health:     health,
		logger:     logger.New("http"),
		started:    time.Now(),
	}
	s.routes()

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "Mcp-Session-Id"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         600,
	})

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           c.Handler(s.router),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/tools", s.handleTools).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	for _, path := range []string{"/mcp", "/http"} {
		r.HandleFunc(path, s.handleMCP).Methods(http.MethodPost)
		r.HandleFunc(path, s.handleMCPProbe).Methods(http.MethodGet)
	}

	if s.accounts != nil && s.verifier != nil {
		r.HandleFunc("/api/account", s.withAssertion(s.handleGetAccount)).Methods(http.MethodGet)
		r.HandleFunc("/api/account/enable", s.withAssertion(s.handleEnable)).Methods(http.MethodPost)
		r.HandleFunc("/api/account/regenerate-key", s.withAssertion(s.handleRegenerateKey)).Methods(http.MethodPost)
		r.HandleFunc("/api/account/usage", s.withAssertion(s.handleUsage)).Methods(http.MethodGet)
	}
}

// Router exposes the router so other adapters can mount routes before Start
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the CORS-wrapped root handler
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves until Stop is called
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("", "", "HTTP server listening", map[string]interface{}{"addr": s.cfg.Addr})
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
