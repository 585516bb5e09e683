// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/accounts"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/syndication"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// RemoteAccount is the per-account slice of the Bluesky client used by
// the read endpoints and logout.
type RemoteAccount interface {
	FetchProfile(ctx context.Context) (*bluesky.Profile, error)
	FetchFeed(ctx context.Context, opts bluesky.FeedOptions) ([]bluesky.FeedItem, error)
	GetThread(ctx context.Context, uri string) (*bluesky.Thread, error)
	GetPostStats(ctx context.Context, uri string) (*bluesky.PostStats, error)
	Logout(ctx context.Context) bool
}

// Remote binds credentials to a RemoteAccount.
type Remote interface {
	Account(creds bluesky.Credentials) RemoteAccount
}

// BlueskyRemote adapts *bluesky.Client to Remote.
type BlueskyRemote struct {
	Client *bluesky.Client
}

// Account implements Remote.
func (b BlueskyRemote) Account(creds bluesky.Credentials) RemoteAccount {
	return b.Client.Account(creds)
}

// ReadinessCheck reports whether a dependency is ready to serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Dependencies are the collaborators of Handler.
type Dependencies struct {
	Service  *syndication.Service
	Accounts *accounts.Registry
	Remote   Remote
	Version  string

	// Ready lists named readiness checks for /health/ready.
	Ready map[string]ReadinessCheck
}

// Handler serves the operator API.
type Handler struct {
	svc       *syndication.Service
	accounts  *accounts.Registry
	remote    Remote
	version   string
	ready     map[string]ReadinessCheck
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(d Dependencies) *Handler {
	return &Handler{
		svc:       d.Service,
		accounts:  d.Accounts,
		remote:    d.Remote,
		version:   d.Version,
		ready:     d.Ready,
		startTime: time.Now(),
	}
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// remoteAccount resolves id to a RemoteAccount. Accounts without stored
// credentials yield ErrNoCredentials.
func (h *Handler) remoteAccount(ctx context.Context, id string) (RemoteAccount, error) {
	acct, err := h.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.EncryptedPassword == "" {
		return nil, ErrNoCredentials
	}
	return h.remote.Account(acct.Credentials()), nil
}
