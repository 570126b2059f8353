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

// Package config loads gateway settings from the environment, optionally
// layering secrets fetched from AWS Secrets Manager on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort               = 8000
	defaultBackendURL         = "https://api.outris.com"
	defaultPortalURL          = "https://portal.outris.com/mcp"
	defaultStartingAllocation = 100
	defaultGuestLimit         = 3
	defaultGuestWindow        = 24 * time.Hour
	defaultHandlerTimeout     = 90 * time.Second
	defaultBackendTimeout     = 60 * time.Second
	defaultSweepInterval      = time.Minute
	defaultSweepGrace         = 5 * time.Minute
	defaultHeartbeat          = 15 * time.Second

	// SweepGraceMargin is the minimum gap between HANDLER_TIMEOUT and
	// SWEEP_GRACE. The sweep must never settle a call whose handler may
	// still be running.
	SweepGraceMargin = 30 * time.Second
)

// Config holds every runtime setting of the gateway
type Config struct {
	Environment string
	Version     string
	ServerName  string
	Port        int

	// DatabaseURL selects PostgreSQL; empty runs on the in-memory store
	DatabaseURL string
	AutoMigrate bool
	// RedisURL backs the guest limiter; empty keeps the window in process
	RedisURL string
	// NATSURL enables settlement events; empty disables publishing
	NATSURL string

	BackendURL     string
	BackendAPIKey  string
	BackendTimeout time.Duration

	CredentialHashKey string
	JWTSecret         string
	JWTIssuer         string

	EnableKYCTools  bool
	EnableTraceflow bool
	ToolsConfigPath string
	PortalURL       string

	StartingAllocation int64
	GuestLimit         int
	GuestWindow        time.Duration
	HandlerTimeout     time.Duration
	SweepInterval      time.Duration
	SweepGrace         time.Duration
	SSEHeartbeat       time.Duration

	AllowedOrigins []string
	TrustProxy     bool

	// SecretsARN names an AWS secret whose JSON keys override the
	// credential settings above
	SecretsARN string
	AWSRegion  string

	// MCPAPIKey is the credential presented by the stdio transport
	MCPAPIKey string
}

// Load reads .env (if present) and the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment:        getEnv("ENVIRONMENT", "production"),
		Version:            getEnv("VERSION", "1.0.0"),
		ServerName:         getEnv("SERVER_NAME", "outris-identity-mcp"),
		Port:               getEnvInt("PORT", defaultPort),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		AutoMigrate:        getEnvBool("AUTO_MIGRATE", false),
		RedisURL:           os.Getenv("REDIS_URL"),
		NATSURL:            os.Getenv("NATS_URL"),
		BackendURL:         getEnv("BACKEND_URL", defaultBackendURL),
		BackendAPIKey:      os.Getenv("BACKEND_API_KEY"),
		BackendTimeout:     getEnvDuration("BACKEND_TIMEOUT", defaultBackendTimeout),
		CredentialHashKey:  os.Getenv("CREDENTIAL_HASH_KEY"),
		JWTSecret:          os.Getenv("JWT_SECRET_KEY"),
		JWTIssuer:          os.Getenv("JWT_ISSUER"),
		EnableKYCTools:     getEnvBool("ENABLE_KYC_TOOLS", false),
		EnableTraceflow:    getEnvBool("ENABLE_TRACEFLOW", false),
		ToolsConfigPath:    os.Getenv("TOOLS_CONFIG"),
		PortalURL:          getEnv("PORTAL_URL", defaultPortalURL),
		StartingAllocation: int64(getEnvInt("STARTING_ALLOCATION", defaultStartingAllocation)),
		GuestLimit:         getEnvInt("GUEST_LIMIT", defaultGuestLimit),
		GuestWindow:        getEnvDuration("GUEST_WINDOW", defaultGuestWindow),
		HandlerTimeout:     getEnvDuration("HANDLER_TIMEOUT", defaultHandlerTimeout),
		SweepInterval:      getEnvDuration("SWEEP_INTERVAL", defaultSweepInterval),
		SweepGrace:         getEnvDuration("SWEEP_GRACE", defaultSweepGrace),
		SSEHeartbeat:       getEnvDuration("SSE_HEARTBEAT", defaultHeartbeat),
		AllowedOrigins:     getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		TrustProxy:         getEnvBool("TRUST_PROXY", false),
		SecretsARN:         os.Getenv("SECRETS_ARN"),
		AWSRegion:          os.Getenv("AWS_REGION"),
		MCPAPIKey:          os.Getenv("MCP_API_KEY"),
	}
	return cfg, nil
}

// Validate reports settings the gateway cannot start without
func (c *Config) Validate() error {
	var errs []error
	if c.CredentialHashKey == "" {
		errs = append(errs, errors.New("CREDENTIAL_HASH_KEY is required"))
	}
	if c.BackendURL == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.GuestLimit < 0 {
		errs = append(errs, errors.New("GUEST_LIMIT must not be negative"))
	}
	if c.StartingAllocation < 0 {
		errs = append(errs, errors.New("STARTING_ALLOCATION must not be negative"))
	}
	if c.HandlerTimeout <= 0 {
		errs = append(errs, errors.New("HANDLER_TIMEOUT must be positive"))
	}
	if c.SweepGrace < c.HandlerTimeout+SweepGraceMargin {
		errs = append(errs, fmt.Errorf("SWEEP_GRACE %s must be at least HANDLER_TIMEOUT %s plus %s",
			c.SweepGrace, c.HandlerTimeout, SweepGraceMargin))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Persistent reports whether accounts live in PostgreSQL
func (c *Config) Persistent() bool {
	return c.DatabaseURL != ""
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
