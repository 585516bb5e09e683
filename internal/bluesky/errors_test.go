// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package bluesky

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNewStatusError_Classification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   Kind
	}{
		{"unauthorized", 401, `{"error":"AuthenticationRequired"}`, KindAuth},
		{"expired token on 400", 400, `{"error":"ExpiredToken","message":"Token has expired"}`, KindAuth},
		{"rate limited", 429, ``, KindRateLimit},
		{"bad gateway", 502, `not json`, KindServer},
		{"invalid request", 400, `{"error":"InvalidRequest"}`, KindClient},
		{"forbidden", 403, ``, KindClient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := newStatusError("x", tt.status, http.Header{}, []byte(tt.body))
			if err.Kind != tt.want {
				t.Errorf("kind = %s, want %s", err.Kind, tt.want)
			}
			if err.Message == "" {
				t.Error("expected a message")
			}
		})
	}
}

func TestNewStatusError_RateLimitHeaders(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	h.Set("ratelimit-remaining", "4")
	h.Set("ratelimit-reset", "1767225600")

	err := newStatusError("x", 429, h, nil)
	if err.RateLimitRemaining == nil || *err.RateLimitRemaining != 4 {
		t.Errorf("expected remaining 4, got %v", err.RateLimitRemaining)
	}
	if err.RateLimitReset == nil || err.RateLimitReset.Unix() != 1767225600 {
		t.Errorf("unexpected reset %v", err.RateLimitReset)
	}
}

func TestAsAPIError_Wrapped(t *testing.T) {
	t.Parallel()

	base := &APIError{Kind: KindServer, StatusCode: 503}
	wrapped := fmt.Errorf("syndicate: %w", base)

	if KindOf(wrapped) != KindServer || StatusOf(wrapped) != 503 {
		t.Errorf("expected wrapped APIError to be found")
	}
	if KindOf(errors.New("plain")) != "" || StatusOf(nil) != 0 {
		t.Error("expected zero values for non-API errors")
	}
}

func TestAuthErrorFrom(t *testing.T) {
	t.Parallel()

	if authErrorFrom(nil) != nil {
		t.Error("expected nil for nil error")
	}
	got := authErrorFrom(&APIError{Kind: KindTransport, Message: "dial tcp: refused"})
	if got.Code != "transport" || got.Message != "dial tcp: refused" {
		t.Errorf("unexpected auth error: %+v", got)
	}
}
