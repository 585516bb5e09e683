// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Number of API requests currently being served",
		},
	)

	// Remote service (Bluesky XRPC) Metrics
	BlueskyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bluesky_api_requests_total",
			Help: "Total number of XRPC calls to the remote service",
		},
		[]string{"endpoint", "status"}, // status: HTTP code or "transport_error"
	)

	BlueskyRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bluesky_api_request_duration_seconds",
			Help:    "Latency of XRPC calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"endpoint"},
	)

	BlueskyAuthentications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bluesky_authentications_total",
			Help: "Authentication outcomes by path",
		},
		[]string{"path", "result"}, // path: cached, refresh, login
	)

	// Syndication Metrics
	SyndicationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndication_attempts_total",
			Help: "Per-account syndication outcomes",
		},
		[]string{"result"}, // success, failure, skipped, exhausted
	)

	SyndicationReschedules = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syndication_reschedules_total",
			Help: "Deliveries pushed to a later time",
		},
		[]string{"reason"}, // circuit_open, rate_limited, retry
	)

	// Per-account breaker Metrics
	AccountCircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "account_circuit_state",
			Help: "Per-account circuit state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"account"},
	)

	AccountCircuitTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_circuit_transitions_total",
			Help: "Per-account circuit state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// Rate limiter Metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_hits_total",
			Help: "HTTP 429 responses observed, by cooldown source",
		},
		[]string{"kind"}, // explicit (Retry-After), implicit (computed backoff)
	)

	// Host-level circuit breaker Metrics (gobreaker)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Feed watcher Metrics
	FeedWatchPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedwatch_polls_total",
			Help: "Feed polls by result",
		},
		[]string{"result"},
	)

	FeedWatchItems = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedwatch_new_items_total",
			Help: "New feed items handed to syndication",
		},
	)
)

// RecordAPIRequest records an HTTP API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordBlueskyRequest records one XRPC call. status 0 means the request
// never produced an HTTP response.
func RecordBlueskyRequest(endpoint string, status int, duration time.Duration) {
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	BlueskyRequests.WithLabelValues(endpoint, label).Inc()
	BlueskyRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordAuthentication records how a session was obtained.
func RecordAuthentication(path string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	BlueskyAuthentications.WithLabelValues(path, result).Inc()
}

// RecordSyndicationAttempt records a per-account outcome.
func RecordSyndicationAttempt(result string) {
	SyndicationAttempts.WithLabelValues(result).Inc()
}

// RecordReschedule records a deferred delivery.
func RecordReschedule(reason string) {
	SyndicationReschedules.WithLabelValues(reason).Inc()
}

// RecordAccountCircuit updates the per-account state gauge and, when the state
// changed, the transition counter.
func RecordAccountCircuit(account, from, to string) {
	AccountCircuitState.WithLabelValues(account).Set(CircuitStateValue(to))
	if from != to {
		AccountCircuitTransitions.WithLabelValues(from, to).Inc()
	}
}

// RecordRateLimitHit records a 429.
func RecordRateLimitHit(explicit bool) {
	kind := "implicit"
	if explicit {
		kind = "explicit"
	}
	RateLimitHits.WithLabelValues(kind).Inc()
}

// CircuitStateValue maps a state name to the gauge encoding.
func CircuitStateValue(state string) float64 {
	switch state {
	case "half_open", "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// RecordFeedPoll records a feed poll result and the number of new items.
func RecordFeedPoll(err error, newItems int) {
	if err != nil {
		FeedWatchPolls.WithLabelValues("error").Inc()
		return
	}
	FeedWatchPolls.WithLabelValues("success").Inc()
	FeedWatchItems.Add(float64(newItems))
}
