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

package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
)

// Sweeper periodically settles calls left pending by crashed or abandoned
// requests.
type Sweeper struct {
	ledger   *Ledger
	interval time.Duration
	grace    time.Duration
	logger   *logger.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

// NewSweeper creates a sweeper that runs every interval and settles calls
// pending for longer than grace.
func NewSweeper(l *Ledger, interval, grace time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if grace <= 0 {
		grace = 5 * time.Minute
	}
	return &Sweeper{
		ledger:   l,
		interval: interval,
		grace:    grace,
		logger:   logger.New("ledger-sweeper"),
		stop:     make(chan struct{}),
	}
}

// RunOnce performs one sweep
func (s *Sweeper) RunOnce(ctx context.Context) int {
	n, err := s.ledger.SweepPending(ctx, s.grace)
	if err != nil {
		s.logger.Error("", "", "Sweep failed", map[string]interface{}{"error": err.Error()})
	}
	if n > 0 {
		s.logger.Info("", "", "Sweep settled abandoned calls", map[string]interface{}{"count": n})
	}
	return n
}

// Start sweeps until ctx is cancelled or Stop is called
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop ends the sweep loop
func (s *Sweeper) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}
