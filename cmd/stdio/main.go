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

// Package main runs the gateway over stdin/stdout for MCP clients that
// launch servers as subprocesses. The caller's key is read from
// MCP_API_KEY; without it the session is limited to guest tools. Logs
// are written to stderr.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/outris-dev-user/outris-identity-mcp/app"
	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
	"github.com/outris-dev-user/outris-identity-mcp/transport/stdio"
)

func main() {
	log := logger.New("stdio")
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

	go func() {
		_ = gw.Sweeper.Start(ctx)
	}()
	defer gw.Sweeper.Stop(context.Background())

	if err := stdio.NewServer(gw.Dispatcher, cfg.MCPAPIKey).Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Error("", "", "stdio session ended with error", map[string]interface{}{"error": err.Error()})
		gw.Close()
		os.Exit(1)
	}
}
