// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/logging"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/metrics"
)

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestNewChiMiddleware_DefaultConfig(t *testing.T) {
	t.Parallel()

	m := NewChiMiddleware(nil)
	if m.config == nil {
		t.Fatal("config is nil")
	}
	if len(m.config.CORSAllowedOrigins) != 0 {
		t.Errorf("CORSAllowedOrigins = %v, want []", m.config.CORSAllowedOrigins)
	}
	if m.config.RateLimitRequests != 100 || m.config.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %d per %s", m.config.RateLimitRequests, m.config.RateLimitWindow)
	}
	if m.config.APIToken != "" {
		t.Error("APIToken should default to empty")
	}
}

func TestChiMiddleware_CORS(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantHeader string
	}{
		{"wildcard", []string{"*"}, "https://example.com", "*"},
		{"allowed", []string{"https://admin.example.com"}, "https://admin.example.com", "https://admin.example.com"},
		{"disallowed", []string{"https://admin.example.com"}, "https://evil.example.com", ""},
		{"no origins configured", nil, "https://example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultChiMiddlewareConfig()
			cfg.CORSAllowedOrigins = tt.origins

			req := newRequest(http.MethodGet, "/")
			req.Header.Set("Origin", tt.origin)
			w := serve(NewChiMiddleware(cfg).CORS()(okHandler), req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestChiMiddleware_RateLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		disabled bool
		want     []int
	}{
		{"enforced", false, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}},
		{"disabled", true, []int{http.StatusOK, http.StatusOK, http.StatusOK}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultChiMiddlewareConfig()
			cfg.RateLimitRequests = 2
			cfg.RateLimitWindow = time.Minute
			cfg.RateLimitDisabled = tt.disabled
			handler := NewChiMiddleware(cfg).RateLimit()(okHandler)

			for i, want := range tt.want {
				req := newRequest(http.MethodGet, "/")
				req.RemoteAddr = "203.0.113.7:4000"
				if w := serve(handler, req); w.Code != want {
					t.Errorf("request %d: status = %d, want %d", i+1, w.Code, want)
				}
			}
		})
	}
}

func TestChiMiddleware_RateLimit_PerIP(t *testing.T) {
	t.Parallel()

	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 1
	handler := NewChiMiddleware(cfg).RateLimit()(okHandler)

	for _, ip := range []string{"203.0.113.1:1", "203.0.113.2:1"} {
		req := newRequest(http.MethodGet, "/")
		req.RemoteAddr = ip
		if w := serve(handler, req); w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", ip, w.Code)
		}
	}
}

func TestRequestIDWithLogging(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestIDWithLogging()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	req := newRequest(http.MethodGet, "/")
	req.Header.Set("X-Request-ID", "abc-123")
	w := serve(handler, req)
	if seen != "abc-123" {
		t.Errorf("request id in context = %q", seen)
	}
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID header = %q", got)
	}

	w = serve(handler, newRequest(http.MethodGet, "/"))
	if seen == "" || w.Header().Get("X-Request-ID") != seen {
		t.Errorf("generated id %q not echoed (header %q)", seen, w.Header().Get("X-Request-ID"))
	}
}

func TestAPISecurityHeaders(t *testing.T) {
	t.Parallel()

	w := serve(APISecurityHeaders()(okHandler), newRequest(http.MethodGet, "/"))
	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS set on a plain HTTP request")
	}

	req := newRequest(http.MethodGet, "/")
	req.Header.Set("X-Forwarded-Proto", "https")
	if w := serve(APISecurityHeaders()(okHandler), req); w.Header().Get("Strict-Transport-Security") == "" {
		t.Error("HSTS missing behind a TLS proxy")
	}
}

func TestPrometheusMetrics_RoutePatternLabel(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t)

	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/content/{id}/syndication", "404")
	before := testutil.ToFloat64(counter)

	h.do(t, http.MethodGet, "/api/v1/content/label-test/syndication", nil)

	if after := testutil.ToFloat64(counter); after-before < 1 {
		t.Errorf("counter moved by %v, want at least 1", after-before)
	}
}

func TestTagLogContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := logging.NewTestLogger(&buf)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(logging.ContextWithLogger(req.Context(), logger)))
		})
	})
	r.Route("/accounts/{id}", func(r chi.Router) {
		r.Use(TagLogContext("id", logging.ContextWithAccount))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			logging.Ctx(req.Context()).Info().Msg("handled")
			w.WriteHeader(http.StatusOK)
		})
	})
	r.Route("/content/{id}", func(r chi.Router) {
		r.Use(TagLogContext("id", logging.ContextWithContent))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			logging.Ctx(req.Context()).Info().Msg("handled")
			w.WriteHeader(http.StatusOK)
		})
	})

	tests := []struct {
		path string
		want string
	}{
		{"/accounts/acct-7", `"account_id":"acct-7"`},
		{"/content/post-9", `"content_id":"post-9"`},
	}
	for _, tt := range tests {
		buf.Reset()
		if w := serve(r, newRequest(http.MethodGet, tt.path)); w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.path, w.Code)
		}
		if !strings.Contains(buf.String(), tt.want) {
			t.Errorf("%s: log %q missing %s", tt.path, buf.String(), tt.want)
		}
	}
}
