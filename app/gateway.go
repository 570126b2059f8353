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

// Package app wires the gateway's components from configuration and runs
// them under one lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/outris-dev-user/outris-identity-mcp/account"
	"github.com/outris-dev-user/outris-identity-mcp/auth"
	"github.com/outris-dev-user/outris-identity-mcp/backend"
	"github.com/outris-dev-user/outris-identity-mcp/config"
	"github.com/outris-dev-user/outris-identity-mcp/dispatch"
	"github.com/outris-dev-user/outris-identity-mcp/events"
	"github.com/outris-dev-user/outris-identity-mcp/ledger"
	"github.com/outris-dev-user/outris-identity-mcp/ratelimit"
	"github.com/outris-dev-user/outris-identity-mcp/redact"
	"github.com/outris-dev-user/outris-identity-mcp/registry"
	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
	"github.com/outris-dev-user/outris-identity-mcp/store"
	"github.com/outris-dev-user/outris-identity-mcp/tools"
	"github.com/outris-dev-user/outris-identity-mcp/transport/httpapi"
	"github.com/outris-dev-user/outris-identity-mcp/transport/sse"
)

const shutdownTimeout = 15 * time.Second

type backingStore interface {
	store.AccountStore
	store.LedgerStore
}

// Gateway holds the wired components
type Gateway struct {
	Config     *config.Config
	Dispatcher *dispatch.Dispatcher
	Accounts   *account.Service
	Ledger     *ledger.Ledger
	HTTP       *httpapi.Server
	SSE        *sse.Hub
	Sweeper    *ledger.Sweeper

	logger  *logger.Logger
	closers []func()
}

// LoadConfig reads the environment, applies AWS secrets when SECRETS_ARN
// is set, and validates the result
func LoadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.SecretsARN != "" {
		sm, err := config.NewAWSSecretsManager(ctx, cfg.AWSRegion, 0)
		if err != nil {
			return nil, err
		}
		if err := cfg.ApplySecrets(ctx, sm); err != nil {
			return nil, fmt.Errorf("failed to apply secrets: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Build connects the backing services and assembles the gateway. Close
// releases whatever Build opened, including on a partial failure.
func Build(ctx context.Context, cfg *config.Config) (g *Gateway, err error) {
	g = &Gateway{Config: cfg, logger: logger.New("gateway")}
	defer func() {
		if err != nil {
			g.Close()
			g = nil
		}
	}()

	st, err := g.openStore(ctx)
	if err != nil {
		return g, err
	}

	limiter, err := g.openLimiter(ctx)
	if err != nil {
		return g, err
	}

	bus, closeBus, err := events.Connect(cfg.NATSURL)
	if err != nil {
		return g, err
	}
	g.closers = append(g.closers, closeBus)
	emitter := events.NewEmitter(bus)

	var overrides *registry.Overrides
	if cfg.ToolsConfigPath != "" {
		if overrides, err = registry.LoadOverrides(cfg.ToolsConfigPath); err != nil {
			return g, err
		}
	}
	client := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		APIKey:  cfg.BackendAPIKey,
		Timeout: cfg.BackendTimeout,
	})
	catalog, err := tools.NewCatalog(client, tools.Options{
		EnableKYC:       cfg.EnableKYCTools,
		EnableTraceflow: cfg.EnableTraceflow,
		PortalURL:       cfg.PortalURL,
	}, overrides)
	if err != nil {
		return g, fmt.Errorf("failed to build tool catalog: %w", err)
	}

	hasher := auth.NewHasher(cfg.CredentialHashKey)
	g.Ledger = ledger.New(st)
	g.Sweeper = ledger.NewSweeper(g.Ledger, cfg.SweepInterval, cfg.SweepGrace)

	g.Dispatcher, err = dispatch.New(dispatch.Options{
		Catalog:        catalog,
		Resolver:       auth.NewResolver(st, hasher),
		Ledger:         g.Ledger,
		Redactor:       redact.DefaultPolicy(),
		Limiter:        limiter,
		Events:         emitter,
		HandlerTimeout: cfg.HandlerTimeout,
		ServerName:     cfg.ServerName,
		ServerVersion:  cfg.Version,
	})
	if err != nil {
		return g, err
	}

	g.Accounts = account.NewService(st, g.Ledger, hasher, emitter, cfg.StartingAllocation)

	var verifier *auth.AssertionVerifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewAssertionVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	} else {
		g.logger.Warn("", "", "JWT_SECRET_KEY not set; account API disabled", nil)
	}

	g.HTTP = httpapi.NewServer(httpapi.Config{
		Addr:           cfg.Addr(),
		AllowedOrigins: cfg.AllowedOrigins,
		TrustProxy:     cfg.TrustProxy,
		Version:        cfg.Version,
		PortalURL:      cfg.PortalURL,
	}, g.Dispatcher, g.Accounts, verifier, st)
	g.SSE = sse.NewHub(g.Dispatcher, cfg.TrustProxy, cfg.SSEHeartbeat)
	g.SSE.Register(g.HTTP.Router())

	g.logger.Info("", "", "Gateway assembled", map[string]interface{}{
		"tools":           catalog.Len(),
		"catalog_version": catalog.Version(),
		"persistent":      cfg.Persistent(),
		"redis":           cfg.RedisURL != "",
		"nats":            cfg.NATSURL != "",
		"account_api":     verifier != nil,
	})
	return g, nil
}

func (g *Gateway) openStore(ctx context.Context) (backingStore, error) {
	if !g.Config.Persistent() {
		g.logger.Warn("", "", "DATABASE_URL not set; using in-memory store", nil)
		return store.NewMemoryStore(), nil
	}
	db, err := store.Open(ctx, g.Config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	g.closers = append(g.closers, func() { db.Close() })
	if g.Config.AutoMigrate {
		if err := store.Migrate(ctx, db, "up"); err != nil {
			return nil, err
		}
	}
	return store.NewPostgresStore(db), nil
}

func (g *Gateway) openLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	cfg := g.Config
	if cfg.GuestLimit == 0 {
		return ratelimit.Unlimited{}, nil
	}
	if cfg.RedisURL == "" {
		return ratelimit.NewMemoryLimiter(cfg.GuestLimit, cfg.GuestWindow), nil
	}
	client, err := ratelimit.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	g.closers = append(g.closers, func() { client.Close() })
	return ratelimit.NewRedisLimiter(client, cfg.GuestLimit, cfg.GuestWindow), nil
}

// Run serves HTTP and sweeps abandoned calls until ctx is cancelled
func (g *Gateway) Run(ctx context.Context) error {
	return NewApp(g.HTTP, g.Sweeper).Run(ctx)
}

// Close releases connections in reverse order of opening
func (g *Gateway) Close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		g.closers[i]()
	}
	g.closers = nil
}
