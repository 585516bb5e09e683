// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package bluesky

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultServiceURL     = "https://bsky.social"
	DefaultPublicURL      = "https://bsky.app"
	DefaultRequestTimeout = 15 * time.Second
	DefaultUploadTimeout  = 30 * time.Second
	DefaultMaxImageBytes  = 1_000_000
	DefaultUserAgent      = "skysync/1.0"
)

// Options configures a Client.
type Options struct {
	ServiceURL        string
	PublicURL         string
	RequestTimeout    time.Duration
	UploadTimeout     time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
	MaxImageBytes     int64
	Langs             []string
}

func (o *Options) applyDefaults() {
	if o.ServiceURL == "" {
		o.ServiceURL = DefaultServiceURL
	}
	if o.PublicURL == "" {
		o.PublicURL = DefaultPublicURL
	}
	o.ServiceURL = strings.TrimRight(o.ServiceURL, "/")
	o.PublicURL = strings.TrimRight(o.PublicURL, "/")
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = DefaultUploadTimeout
	}
	if o.MaxImageBytes <= 0 {
		o.MaxImageBytes = DefaultMaxImageBytes
	}
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
}

// Decrypter recovers an app password from its stored form.
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// CredentialSink receives account-level side effects of session handling.
type CredentialSink interface {
	ClearCredentials(ctx context.Context, accountID string) error
	SetRemoteID(ctx context.Context, accountID, did string) error
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the XRPC transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithImageHTTPClient replaces the client used to download remote images.
// The default refuses private and loopback destinations.
func WithImageHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.imageClient = hc }
}

// WithClock injects the time source used for token expiry and record timestamps.
func WithClock(clock store.Clock) ClientOption {
	return func(c *Client) { c.clock = clock }
}

// Client is shared by every account. It owns the transport, the pacing
// limiter and the host-level circuit breaker; per-account state lives in
// the store and is accessed through AccountClient.
type Client struct {
	opts        Options
	httpClient  *http.Client
	imageClient *http.Client
	store       store.Store
	clock       store.Clock
	decrypter   Decrypter
	sink        CredentialSink
	pacer       *rate.Limiter
	host        *hostBreaker
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
}

// NewClient creates a Client. sink may be nil.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewClient(opts Options, kv store.Store, dec Decrypter, sink CredentialSink, logger zerolog.Logger, extra ...ClientOption) *Client {
	opts.applyDefaults()

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	c := &Client{
		opts:       opts,
		httpClient: &http.Client{},
		store:      kv,
		clock:      store.SystemClock{},
		decrypter:  dec,
		sink:       sink,
		pacer:      rate.NewLimiter(limit, opts.Burst),
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logger.With().Str("component", "bluesky").Logger(),
	}
	for _, opt := range extra {
		opt(c)
	}
	if c.imageClient == nil {
		c.imageClient = newImageClient(opts.UploadTimeout)
	}
	c.host = newHostBreaker("bluesky-api", c.logger)
	return c
}

// newImageClient builds an SSRF-guarded client for fetching post images,
// which come from arbitrary user-supplied URLs.
func newImageClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

// Options returns the effective options.
func (c *Client) Options() Options { return c.opts }

// HostState reports the host breaker state for health output.
func (c *Client) HostState() string { return c.host.State() }

// Account returns a view of the client bound to one account.
func (c *Client) Account(creds Credentials) *AccountClient {
	return &AccountClient{
		client: c,
		creds:  creds,
		logger: c.logger.With().Str("account_id", creds.AccountID).Logger(),
	}
}

// AccountClient performs calls on behalf of a single account.
type AccountClient struct {
	client  *Client
	creds   Credentials
	lastErr *AuthError
	logger  zerolog.Logger
}

// Credentials returns the account identity this client is bound to.
func (a *AccountClient) Credentials() Credentials { return a.creds }

// LastError returns the most recent authentication failure, or nil.
func (a *AccountClient) LastError() *AuthError { return a.lastErr }
