/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// failure reasons reported on medvault_agent_request_failures_total.
const (
	reasonTimeout    = "timeout"
	reasonConnection = "connection"
	reasonClosed     = "closed"
	reasonProtocol   = "protocol"
	reasonAgent      = "agent"
	reasonCanceled   = "canceled"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medvault_agent_requests_total",
		Help: "Requests sent to the local agent by operation.",
	}, []string{"operation"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medvault_agent_request_failures_total",
		Help: "Failed agent requests by operation and reason.",
	}, []string{"operation", "reason"})

	pendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "medvault_agent_pending_requests",
		Help: "Agent requests waiting for a response.",
	})

	reconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medvault_agent_reconnects_total",
		Help: "Connections opened to the local agent.",
	})
)

func recordFailure(kind Kind, reason string) {
	requestFailures.WithLabelValues(string(kind), reason).Inc()
}
