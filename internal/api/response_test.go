// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/accounts"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/logging"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/syndication"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/validation"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var response APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body %s)", err, w.Body.String())
	}
	return response
}

func TestResponseWriter_Success(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	r = r.WithContext(logging.ContextWithRequestID(r.Context(), "req-123"))

	NewResponseWriter(w, r).Success(map[string]string{"message": "hello"})

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	response := decodeResponse(t, w)
	if !response.Success || response.Error != nil {
		t.Errorf("unexpected envelope: %+v", response)
	}
	if response.Meta == nil || response.Meta.Timestamp.IsZero() || response.Meta.RequestID != "req-123" {
		t.Errorf("meta = %+v", response.Meta)
	}
}

func TestResponseWriter_StatusHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		write    func(rw *ResponseWriter)
		wantCode int
		wantErr  string
	}{
		{"created", func(rw *ResponseWriter) { rw.Created("x") }, http.StatusCreated, ""},
		{"accepted", func(rw *ResponseWriter) { rw.Accepted("x") }, http.StatusAccepted, ""},
		{"bad request", func(rw *ResponseWriter) { rw.BadRequest("bad") }, http.StatusBadRequest, ErrCodeBadRequest},
		{"unauthorized", func(rw *ResponseWriter) { rw.Unauthorized("no") }, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"not found", func(rw *ResponseWriter) { rw.NotFound("gone") }, http.StatusNotFound, ErrCodeNotFound},
		{"conflict", func(rw *ResponseWriter) { rw.Conflict("dup") }, http.StatusConflict, ErrCodeConflict},
		{"too many", func(rw *ResponseWriter) { rw.TooManyRequests("slow") }, http.StatusTooManyRequests, ErrCodeTooManyRequests},
		{"unavailable", func(rw *ResponseWriter) { rw.ServiceUnavailable("down") }, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"storage", func(rw *ResponseWriter) { rw.StorageError(errors.New("disk")) }, http.StatusInternalServerError, ErrCodeStorageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/test", nil)
			tt.write(NewResponseWriter(w, r))

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			response := decodeResponse(t, w)
			if tt.wantErr == "" {
				if !response.Success {
					t.Error("expected success envelope")
				}
				return
			}
			if response.Success || response.Error == nil || response.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", response.Error, tt.wantErr)
			}
		})
	}
}

func TestResponseWriter_NoContent(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	NewResponseWriter(w, httptest.NewRequest(http.MethodDelete, "/test", nil)).NoContent()
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("NoContent() = %d with %d bytes", w.Code, w.Body.Len())
	}
}

func TestWriteErr_Mapping(t *testing.T) {
	t.Parallel()

	rateLimited := &bluesky.APIError{Kind: bluesky.KindRateLimit, StatusCode: 429, Header: http.Header{"Retry-After": {"30"}}}
	verr := validation.ValidateStruct(&PostQuery{})

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"validation", verr, http.StatusBadRequest, ErrCodeValidationFailed},
		{"account not found", accounts.ErrNotFound, http.StatusNotFound, string(accounts.CodeNotFound)},
		{"duplicate handle", fmt.Errorf("add: %w", accounts.ErrDuplicateHandle), http.StatusConflict, string(accounts.CodeDuplicateHandle)},
		{"content not found", syndication.ErrContentNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"no credentials", ErrNoCredentials, http.StatusConflict, ErrCodeConflict},
		{"remote auth", &bluesky.APIError{Kind: bluesky.KindAuth, StatusCode: 401}, http.StatusBadGateway, ErrCodeRemoteAuth},
		{"remote rate limit", rateLimited, http.StatusTooManyRequests, ErrCodeRemoteRateLimited},
		{"remote circuit", &bluesky.APIError{Kind: bluesky.KindCircuitOpen}, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"remote 404", &bluesky.APIError{Kind: bluesky.KindClient, StatusCode: 404}, http.StatusNotFound, ErrCodeNotFound},
		{"remote server", &bluesky.APIError{Kind: bluesky.KindServer, StatusCode: 502}, http.StatusBadGateway, ErrCodeExternalServiceFail},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ErrCodeStorageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			NewResponseWriter(w, httptest.NewRequest(http.MethodGet, "/x", nil)).writeErr(tt.err)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if response := decodeResponse(t, w); response.Error == nil || response.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", response.Error, tt.wantErr)
			}
		})
	}

	w := httptest.NewRecorder()
	NewResponseWriter(w, httptest.NewRequest(http.MethodGet, "/x", nil)).writeErr(rateLimited)
	if got := w.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want 30", got)
	}
}
