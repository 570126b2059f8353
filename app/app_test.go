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

package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outris-dev-user/outris-identity-mcp/config"
	"github.com/outris-dev-user/outris-identity-mcp/dispatch"
)

type fakeServer struct {
	startErr error
	started  atomic.Bool
	stopped  atomic.Bool
	stop     chan struct{}
}

func newFakeServer(startErr error) *fakeServer {
	return &fakeServer{startErr: startErr, stop: make(chan struct{})}
}

func (f *fakeServer) Start(ctx context.Context) error {
	f.started.Store(true)
	if f.startErr != nil {
		return f.startErr
	}
	select {
	case <-ctx.Done():
	case <-f.stop:
	}
	return nil
}

func (f *fakeServer) Stop(ctx context.Context) error {
	if f.stopped.CompareAndSwap(false, true) {
		close(f.stop)
	}
	return nil
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a, b := newFakeServer(nil), newFakeServer(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewApp(a, b).Run(ctx) }()

	assert.Eventually(t, func() bool { return a.started.Load() && b.started.Load() }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.True(t, a.stopped.Load())
	assert.True(t, b.stopped.Load())
}

func TestApp_RunReturnsFirstError(t *testing.T) {
	ok, bad := newFakeServer(nil), newFakeServer(errors.New("address already in use"))

	err := NewApp(ok, bad).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
	assert.True(t, ok.stopped.Load())
}

func memoryConfig() *config.Config {
	return &config.Config{
		Version:            "test",
		ServerName:         "outris-identity-mcp",
		Port:               8000,
		BackendURL:         "http://127.0.0.1:1",
		CredentialHashKey:  "hash-key",
		JWTSecret:          "jwt-secret",
		PortalURL:          "https://portal.example.com",
		StartingAllocation: 100,
		GuestLimit:         3,
		GuestWindow:        time.Hour,
		HandlerTimeout:     time.Second,
		SweepInterval:      time.Minute,
		SweepGrace:         time.Minute,
		AllowedOrigins:     []string{"*"},
	}
}

func TestBuild_InMemory(t *testing.T) {
	g, err := Build(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer g.Close()

	srv := httptest.NewServer(g.HTTP.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/mcp", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/account")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "account API is mounted when a JWT secret is set")

	assert.Len(t, g.Dispatcher.ListTools(context.Background(), dispatch.Session{}), 3)
}

func TestBuild_ToolOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools:\n  check_whatsapp:\n    enabled: false\n"), 0o600))

	cfg := memoryConfig()
	cfg.ToolsConfigPath = path
	g, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer g.Close()

	def, err := g.Dispatcher.Catalog().Lookup("check_whatsapp")
	require.NoError(t, err)
	assert.False(t, def.Enabled)
}

func TestBuild_BadOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tools: [not, a, map"), 0o600))

	cfg := memoryConfig()
	cfg.ToolsConfigPath = path
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBuild_UnreachableRedis(t *testing.T) {
	cfg := memoryConfig()
	cfg.RedisURL = "redis://127.0.0.1:1/0"
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}
