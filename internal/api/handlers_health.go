// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// readyTimeout bounds each readiness check.
const readyTimeout = 2 * time.Second

// Health handles GET /api/v1/health. It returns the passive syndication
// health report; no remote call is made. The status is always 200 so
// dashboards can read the body; Healthy carries the verdict.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	report, err := h.svc.HealthReport(r.Context())
	if err != nil {
		rw.writeErr(err)
		return
	}
	rw.Success(map[string]interface{}{
		"version": h.version,
		"uptime":  time.Since(h.startTime).Seconds(),
		"report":  report,
	})
}

// HealthLive handles liveness probe requests (Kubernetes-style).
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests (Kubernetes-style).
// Returns 503 when any registered check fails.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	names := make([]string, 0, len(h.ready))
	for name := range h.ready {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		err := h.ready[name](ctx)
		cancel()
		if err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	if !ready {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "service is not ready", checks)
		return
	}
	rw.Success(map[string]interface{}{
		"ready":  true,
		"checks": checks,
	})
}
