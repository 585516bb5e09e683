// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/accounts"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/breaker"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/config"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/ledger"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/ratelimit"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/syndication"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type plainEncrypter struct{}

func (plainEncrypter) Encrypt(s string) (string, error) { return "enc:" + s, nil }

// stubPublisher succeeds unless an error is queued for the account.
type stubPublisher struct {
	mu   sync.Mutex
	errs map[string]error
	n    int
}

func (p *stubPublisher) fail(accountID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[accountID] = err
}

func (p *stubPublisher) Publish(_ context.Context, creds bluesky.Credentials, _ bluesky.PostInput) (*bluesky.PostInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errs[creds.AccountID]; err != nil {
		delete(p.errs, creds.AccountID)
		return nil, err
	}
	p.n++
	return &bluesky.PostInfo{
		URI: fmt.Sprintf("at://did:plc:test/app.bsky.feed.post/rk%d", p.n),
		CID: fmt.Sprintf("bafy%d", p.n),
		URL: fmt.Sprintf("https://bsky.app/profile/%s/post/rk%d", creds.Handle, p.n),
	}, nil
}

// inlineDeliverer runs first deliveries on the request goroutine and
// records reschedules.
type inlineDeliverer struct {
	orch *syndication.Orchestrator

	mu        sync.Mutex
	scheduled []syndication.Job
}

func (d *inlineDeliverer) Deliver(ctx context.Context, contentID string, accountIDs []string) error {
	return d.orch.Process(ctx, syndication.Job{ContentID: contentID, AccountIDs: accountIDs, Attempt: 1})
}

func (d *inlineDeliverer) Schedule(_ context.Context, job syndication.Job, _ time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scheduled = append(d.scheduled, job)
	return nil
}

func (d *inlineDeliverer) Mode() string { return "inline" }

// fakeRemote serves canned read results for every account.
type fakeRemote struct {
	mu        sync.Mutex
	err       error
	loggedOut []string
}

func (f *fakeRemote) Account(creds bluesky.Credentials) RemoteAccount {
	return &fakeRemoteAccount{remote: f, creds: creds}
}

type fakeRemoteAccount struct {
	remote *fakeRemote
	creds  bluesky.Credentials
}

func (a *fakeRemoteAccount) failure() error {
	a.remote.mu.Lock()
	defer a.remote.mu.Unlock()
	return a.remote.err
}

func (a *fakeRemoteAccount) FetchProfile(context.Context) (*bluesky.Profile, error) {
	if err := a.failure(); err != nil {
		return nil, err
	}
	return &bluesky.Profile{DID: "did:plc:test", Handle: a.creds.Handle, DisplayName: "Test", PostsCount: 3}, nil
}

func (a *fakeRemoteAccount) FetchFeed(_ context.Context, opts bluesky.FeedOptions) ([]bluesky.FeedItem, error) {
	if err := a.failure(); err != nil {
		return nil, err
	}
	items := make([]bluesky.FeedItem, 0, opts.Limit)
	for i := 0; i < opts.Limit && i < 3; i++ {
		items = append(items, bluesky.FeedItem{
			URI:          fmt.Sprintf("at://did:plc:test/app.bsky.feed.post/f%d", i),
			Text:         "post",
			AuthorHandle: a.creds.Handle,
		})
	}
	return items, nil
}

func (a *fakeRemoteAccount) GetThread(_ context.Context, uri string) (*bluesky.Thread, error) {
	if err := a.failure(); err != nil {
		return nil, err
	}
	return &bluesky.Thread{Post: bluesky.FeedItem{URI: uri, Text: "root"}}, nil
}

func (a *fakeRemoteAccount) GetPostStats(_ context.Context, uri string) (*bluesky.PostStats, error) {
	if err := a.failure(); err != nil {
		return nil, err
	}
	return &bluesky.PostStats{URI: uri, LikeCount: 4, ReplyCount: 1}, nil
}

func (a *fakeRemoteAccount) Logout(context.Context) bool {
	a.remote.mu.Lock()
	defer a.remote.mu.Unlock()
	a.remote.loggedOut = append(a.remote.loggedOut, a.creds.AccountID)
	return true
}

type apiHarness struct {
	ctx      context.Context
	registry *accounts.Registry
	pub      *stubPublisher
	remote   *fakeRemote
	deliver  *inlineDeliverer
	handler  *Handler
	router   http.Handler
	token    string
}

type harnessOption func(*Dependencies, *config.SecurityConfig)

func withToken(token string) harnessOption {
	return func(_ *Dependencies, sec *config.SecurityConfig) { sec.APIToken = token }
}

func withReady(name string, check ReadinessCheck) harnessOption {
	return func(d *Dependencies, _ *config.SecurityConfig) {
		if d.Ready == nil {
			d.Ready = make(map[string]ReadinessCheck)
		}
		d.Ready[name] = check
	}
}

func newAPIHarness(t *testing.T, opts ...harnessOption) *apiHarness {
	t.Helper()

	clock := store.NewManualClock(testEpoch)
	kv := store.NewMemoryStore(clock)
	logger := zerolog.Nop()

	led := ledger.New(kv, clock, logger)
	registry := accounts.NewRegistry(kv, clock, plainEncrypter{}, led, accounts.Options{}, logger)
	pub := &stubPublisher{errs: make(map[string]error)}

	orch := syndication.NewOrchestrator(syndication.Deps{
		Accounts:  registry,
		Publisher: pub,
		Breaker:   breaker.New(kv, clock, logger),
		Limiter:   ratelimit.New(kv, clock, logger, ratelimit.WithRand(func() float64 { return 0.5 })),
		Ledger:    led,
		Activity:  ledger.NewActivityLog(kv, clock),
		Content:   syndication.NewContentStore(kv),
		Store:     kv,
		Clock:     clock,
		Logger:    logger,
	})
	deliver := &inlineDeliverer{orch: orch}
	orch.SetScheduler(deliver)

	remote := &fakeRemote{}
	deps := Dependencies{
		Service:  syndication.NewService(orch, deliver),
		Accounts: registry,
		Remote:   remote,
		Version:  "test",
	}
	sec := &config.SecurityConfig{}
	for _, opt := range opts {
		opt(&deps, sec)
	}

	handler := NewHandler(deps)
	return &apiHarness{
		ctx:      context.Background(),
		registry: registry,
		pub:      pub,
		remote:   remote,
		deliver:  deliver,
		handler:  handler,
		router:   NewRouter(handler, nil, sec).SetupChi(),
		token:    sec.APIToken,
	}
}

func (h *apiHarness) addAccount(t *testing.T, handle string) string {
	t.Helper()
	id, err := h.registry.Add(h.ctx, accounts.AddRequest{Handle: handle, AppPassword: "app-pass-1234"})
	if err != nil {
		t.Fatalf("Add(%s): %v", handle, err)
	}
	return id
}

// do sends a request through the full router.
func (h *apiHarness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// decodeData unmarshals the envelope's data field into v.
func decodeData(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", w.Body.String())
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	response := decodeResponse(t, w)
	if response.Error == nil {
		t.Fatalf("expected error envelope, got %s", w.Body.String())
	}
	return response.Error.Code
}
