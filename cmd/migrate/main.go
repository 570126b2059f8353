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

// Package main applies the embedded schema migrations to DATABASE_URL.
//
// Usage:
//
//	./migrate up|down|status|redo|version
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/outris-dev-user/outris-identity-mcp/config"
	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
	"github.com/outris-dev-user/outris-identity-mcp/store"
)

func main() {
	log := logger.New("migrate")
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: migrate up|down|status|redo|version")
		os.Exit(2)
	}
	command := args[0]

	cfg, err := config.Load()
	if err != nil {
		log.Error("", "", "Configuration error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	if !cfg.Persistent() {
		log.Error("", "", "DATABASE_URL is required", nil)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("", "", "Database unavailable", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer db.Close()

	log.Info("", "", "Running migration", map[string]interface{}{"command": command})
	if err := store.Migrate(ctx, db, command); err != nil {
		log.Error("", "", "Migration failed", map[string]interface{}{"error": err.Error()})
		db.Close()
		os.Exit(1)
	}
	log.Info("", "", "Migration finished", map[string]interface{}{"command": command})
}
