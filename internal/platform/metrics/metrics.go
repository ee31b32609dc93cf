// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package metrics registers the Prometheus collectors exported on /metrics.

Collectors are package-level and registered once with the default registry.

  - yomira_http_requests_total / yomira_http_request_duration_seconds
  - yomira_auth_events_total{operation,outcome}
  - yomira_ratelimit_decisions_total{bucket,outcome}
*/
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "yomira"

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	// HTTPRequestsTotal counts finished requests by route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests handled by the API.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// AuthEvents counts register, login, refresh and logout outcomes.
	AuthEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_events_total",
			Help:      "Authentication operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// RateLimitDecisions counts fixed-window admissions per bucket.
	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Rate limiter decisions by bucket and outcome.",
		},
		[]string{"bucket", "outcome"},
	)
)

// RecordAuth increments the auth event counter.
func RecordAuth(operation string, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	AuthEvents.WithLabelValues(operation, outcome).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
