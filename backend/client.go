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

// Package backend is the HTTP client for the investigation backend that
// supplies every tool's data.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/outris-dev-user/outris-identity-mcp/shared/logger"
)

const (
	// DefaultTimeout bounds a single backend request
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 10 << 20
	maxErrorSnippet  = 200
)

// Config configures the backend client
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client calls the investigation backend with the gateway's API key
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a backend client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.New("backend"),
	}
}

// Get issues a GET request and decodes the JSON object response
func (c *Client) Get(ctx context.Context, path string, query url.Values) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Post issues a POST request with a JSON body and decodes the JSON object response
func (c *Client) Post(ctx context.Context, path string, body interface{}) (map[string]interface{}, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) (map[string]interface{}, error) {
	op := method + " " + path
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Kind: KindRequest, Op: op, Message: "failed to marshal body", Cause: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &Error{Kind: KindRequest, Op: op, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := classifyTransportError(err)
		c.logger.Warn("", "", "Backend request failed", map[string]interface{}{
			"op":    op,
			"kind":  string(kind),
			"error": err.Error(),
		})
		return nil, &Error{Kind: kind, Op: op, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{Kind: classifyTransportError(err), Op: op, StatusCode: resp.StatusCode, Message: "failed to read response", Cause: err}
	}

	c.logger.Debug("", "", "Backend request completed", map[string]interface{}{
		"op":          op,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind := KindRejected
		if resp.StatusCode >= 500 {
			kind = KindUpstream
		}
		return nil, &Error{Kind: kind, Op: op, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, StatusCode: resp.StatusCode, Message: "response is not a JSON object", Cause: err}
	}
	return out, nil
}

// errorMessage extracts the backend's error detail, falling back to a body snippet
func errorMessage(body []byte) string {
	var payload struct {
		Detail  interface{} `json:"detail"`
		Error   string      `json:"error"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Detail != nil:
			return fmt.Sprint(payload.Detail)
		case payload.Error != "":
			return payload.Error
		case payload.Message != "":
			return payload.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet] + "..."
	}
	return s
}
