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

	"golang.org/x/sync/errgroup"

	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
)

// Server is a long-running component with a blocking Start
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// App runs a set of servers until the context ends or one of them fails
type App struct {
	servers []Server
	logger  *logger.Logger
}

// NewApp groups servers into one lifecycle
func NewApp(servers ...Server) *App {
	return &App{servers: servers, logger: logger.New("app")}
}

// Run starts every server and stops all of them once ctx is cancelled or
// any server returns. The first server error is returned.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range a.servers {
		s := srv
		g.Go(func() error {
			return s.Start(gctx)
		})
	}

	<-gctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	for _, srv := range a.servers {
		if err := srv.Stop(stopCtx); err != nil {
			a.logger.Warn("", "", "Server did not stop cleanly", map[string]interface{}{"error": err.Error()})
		}
	}
	return g.Wait()
}
