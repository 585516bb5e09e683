// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

/*
Package metrics provides Prometheus metrics collection and export for observability.

Collectors are registered with promauto at package init and exposed at /metrics:

	curl http://localhost:8787/metrics

# Available Metrics

HTTP API:
  - api_requests_total{method, endpoint, status_code}
  - api_request_duration_seconds{method, endpoint}
  - api_active_requests

Remote service:
  - bluesky_api_requests_total{endpoint, status}
  - bluesky_api_request_duration_seconds{endpoint}
  - bluesky_authentications_total{path, result}
  - circuit_breaker_* for the host-level breaker

Syndication:
  - syndication_attempts_total{result}
  - syndication_reschedules_total{reason}
  - account_circuit_state{account}
  - account_circuit_transitions_total{from_state, to_state}
  - ratelimit_hits_total{kind}

Job queue metrics live in the jobqueue package next to the worker.
*/
package metrics
