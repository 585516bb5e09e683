// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package bluesky

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Kind classifies API failures for the orchestrator.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindRateLimit   Kind = "rate_limit"
	KindTransport   Kind = "transport"
	KindServer      Kind = "server"
	KindClient      Kind = "client"
	KindMalformed   Kind = "malformed_response"
	KindCircuitOpen Kind = "circuit_open"
	KindCredentials Kind = "credentials"
)

// APIError describes a failed XRPC call. Header is retained so the caller
// can hand it to the rate limiter.
type APIError struct {
	Kind               Kind
	Endpoint           string
	Code               string
	Message            string
	StatusCode         int
	Header             http.Header
	RateLimitRemaining *int
	RateLimitReset     *time.Time
	Err                error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("bluesky %s: %s (HTTP %d %s): %s", e.Endpoint, e.Kind, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("bluesky %s: %s: %s", e.Endpoint, e.Kind, msg)
}

func (e *APIError) Unwrap() error { return e.Err }

// AsAPIError extracts an *APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// KindOf returns the failure kind of err, or "" when err is not an APIError.
func KindOf(err error) Kind {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if apiErr, ok := AsAPIError(err); ok {
		return apiErr.StatusCode
	}
	return 0
}

// authErrorCodes are XRPC error names that mean the session is unusable even
// when the status is 400.
var authErrorCodes = map[string]bool{
	"ExpiredToken":            true,
	"InvalidToken":            true,
	"AuthenticationRequired":  true,
	"AuthFactorTokenRequired": true,
	"AccountTakedown":         true,
}

// newStatusError builds an APIError from a non-2xx response.
func newStatusError(endpoint string, status int, header http.Header, body []byte) *APIError {
	apiErr := &APIError{
		Endpoint:   endpoint,
		StatusCode: status,
		Header:     header,
	}

	var xe xrpcErrorBody
	if len(body) > 0 && json.Unmarshal(body, &xe) == nil {
		apiErr.Code = xe.Error
		apiErr.Message = xe.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	if v := header.Get("ratelimit-remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			apiErr.RateLimitRemaining = &n
		}
	}
	if v := header.Get("ratelimit-reset"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			reset := time.Unix(sec, 0).UTC()
			apiErr.RateLimitReset = &reset
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimit
	case status == http.StatusUnauthorized, authErrorCodes[apiErr.Code]:
		apiErr.Kind = KindAuth
	case status >= 500:
		apiErr.Kind = KindServer
	default:
		apiErr.Kind = KindClient
	}
	return apiErr
}

// AuthError is the structured form of the last authentication failure.
type AuthError struct {
	Code               string     `json:"code"`
	Message            string     `json:"message"`
	HTTPStatus         int        `json:"http_status"`
	RateLimitRemaining *int       `json:"ratelimit_remaining,omitempty"`
	RateLimitReset     *time.Time `json:"ratelimit_reset,omitempty"`
}

func authErrorFrom(err error) *AuthError {
	if err == nil {
		return nil
	}
	apiErr, ok := AsAPIError(err)
	if !ok {
		return &AuthError{Code: "Unknown", Message: err.Error()}
	}
	code := apiErr.Code
	if code == "" {
		code = string(apiErr.Kind)
	}
	return &AuthError{
		Code:               code,
		Message:            apiErr.Message,
		HTTPStatus:         apiErr.StatusCode,
		RateLimitRemaining: apiErr.RateLimitRemaining,
		RateLimitReset:     apiErr.RateLimitReset,
	}
}
