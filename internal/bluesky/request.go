// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package bluesky

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/metrics"
)

// maxResponseBytes caps how much of an XRPC response body is read.
const maxResponseBytes = 8 << 20

// requestConfig holds configuration for an XRPC request.
type requestConfig struct {
	method      string
	nsid        string
	query       url.Values
	body        interface{} // JSON-encoded when set
	raw         []byte      // sent verbatim with contentType when set
	contentType string
	token       string
	timeout     time.Duration
}

// response is a fully read HTTP response.
type response struct {
	status int
	header http.Header
	body   []byte
}

// doRequest executes an XRPC call and decodes a 2xx JSON body into result
// (which may be nil). Non-2xx responses become *APIError.
func (c *Client) doRequest(ctx context.Context, cfg requestConfig, result interface{}) (*response, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, &APIError{Kind: KindTransport, Endpoint: cfg.nsid, Message: "request pacing interrupted", Err: err}
	}

	start := time.Now()
	resp, err := c.host.execute(func() (*response, error) {
		r, err := c.roundTrip(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if r.status >= 500 {
			return r, errServerStatus
		}
		return r, nil
	})

	status := 0
	if resp != nil {
		status = resp.status
	}
	metrics.RecordBlueskyRequest(cfg.nsid, status, time.Since(start))

	if err != nil && !errors.Is(err, errServerStatus) {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &APIError{Kind: KindCircuitOpen, Endpoint: cfg.nsid, Message: "bluesky host circuit is open", Err: err}
		}
		return nil, &APIError{Kind: KindTransport, Endpoint: cfg.nsid, Message: err.Error(), Err: err}
	}

	if resp.status < 200 || resp.status >= 300 {
		return resp, newStatusError(cfg.nsid, resp.status, resp.header, resp.body)
	}

	if result != nil {
		if err := json.Unmarshal(resp.body, result); err != nil {
			return resp, &APIError{
				Kind:       KindMalformed,
				Endpoint:   cfg.nsid,
				StatusCode: resp.status,
				Message:    "failed to decode response",
				Err:        err,
			}
		}
	}
	return resp, nil
}

// roundTrip sends one request with its own timeout and reads the body
// before the timeout context is released.
func (c *Client) roundTrip(ctx context.Context, cfg requestConfig) (*response, error) {
	timeout := cfg.timeout
	if timeout <= 0 {
		timeout = c.opts.RequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.opts.ServiceURL + "/xrpc/" + cfg.nsid
	if len(cfg.query) > 0 {
		endpoint += "?" + cfg.query.Encode()
	}

	var body io.Reader
	contentType := cfg.contentType
	switch {
	case cfg.raw != nil:
		body = bytes.NewReader(cfg.raw)
	case cfg.body != nil:
		payload, err := json.Marshal(cfg.body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, cfg.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cfg.token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &response{status: httpResp.StatusCode, header: httpResp.Header, body: data}, nil
}
