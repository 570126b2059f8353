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

package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_mcp_tool_calls_total",
			Help: "Tool calls by tool, tier and outcome",
		},
		[]string{"tool", "tier", "outcome"},
	)

	toolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "identity_mcp_tool_call_duration_seconds",
			Help:    "Tool handler latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	creditsChargedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_mcp_credits_charged_total",
			Help: "Credits retained after settlement",
		},
		[]string{"tool"},
	)

	creditsRefundedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_mcp_credits_refunded_total",
			Help: "Credits returned for backend faults",
		},
		[]string{"tool"},
	)

	rejectedCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_mcp_rejected_calls_total",
			Help: "Calls rejected before the handler ran",
		},
		[]string{"reason"},
	)
)
