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

// Package stdio serves MCP as newline-delimited JSON-RPC over a pair of
// streams, for clients that launch the gateway as a subprocess.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/outris-dev-user/outris-identity-mcp/dispatch"
	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
)

const maxLineBytes = 1 << 20

// Server reads one request per line and writes one response per line.
// Every request carries the same credential, fixed at startup.
type Server struct {
	dispatcher *dispatch.Dispatcher
	bearer     string
	logger     *logger.Logger

	mu sync.Mutex
}

// NewServer creates a stdio server presenting apiKey on every call. An
// empty key runs the session as a guest.
func NewServer(d *dispatch.Dispatcher, apiKey string) *Server {
	bearer := ""
	if apiKey != "" {
		bearer = "Bearer " + apiKey
	}
	return &Server{dispatcher: d, bearer: bearer, logger: logger.New("stdio")}
}

// Run processes requests from input until EOF or ctx is cancelled. Lines
// are dispatched concurrently; Run returns after every in-flight call has
// written its reply.
func (s *Server) Run(ctx context.Context, input io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	encoder := json.NewEncoder(output)

	var (
		wg       sync.WaitGroup
		writeErr error
		errOnce  sync.Once
	)
	session := uuid.NewString()

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)

		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := s.dispatcher.HandlePayload(ctx, dispatch.Session{
				Bearer:    s.bearer,
				Origin:    "stdio:" + session,
				RequestID: uuid.NewString(),
			}, msg)
			if reply.Empty() {
				return
			}
			if err := s.write(encoder, reply); err != nil {
				errOnce.Do(func() { writeErr = err })
			}
		}()
	}
	wg.Wait()

	if writeErr != nil {
		return writeErr
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

func (s *Server) write(encoder *json.Encoder, resp dispatch.Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := encoder.Encode(resp); err != nil {
		s.logger.Error("", "", "Failed to write response", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}
