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

// Package main is the entry point for the identity MCP gateway.
//
// The gateway authenticates MCP clients by API key, meters each tool call
// against the caller's credit balance, and forwards the call to the
// investigation backend. It serves:
//   - POST /mcp and /http (stateless streamable HTTP)
//   - GET /sse with POST /messages (event-stream sessions)
//   - /api/account/* (self-service keys, JWT authenticated)
//   - /health, /tools and /metrics
//
// Usage:
//
//	./gateway
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8000)
//	DATABASE_URL - PostgreSQL connection string (empty: in-memory store)
//	REDIS_URL - Redis for the guest rate limit (empty: in-process window)
//	NATS_URL - NATS for settlement events (empty: events disabled)
//	BACKEND_URL, BACKEND_API_KEY - investigation backend
//	CREDENTIAL_HASH_KEY - key for hashing API keys (required)
//	JWT_SECRET_KEY - portal assertion secret (empty: account API disabled)
//	SECRETS_ARN - AWS secret overriding the credentials above
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/outris-dev-user/outris-identity-mcp/app"
	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
)

func main() {
	log := logger.New("main")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig(ctx)
	if err != nil {
		log.Error("", "", "Configuration error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	gw, err := app.Build(ctx, cfg)
	if err != nil {
		log.Error("", "", "Startup failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer gw.Close()

	if err := gw.Run(ctx); err != nil {
		log.Error("", "", "Gateway stopped with error", map[string]interface{}{"error": err.Error()})
		gw.Close()
		os.Exit(1)
	}
	log.Info("", "", "Gateway stopped", nil)
}
