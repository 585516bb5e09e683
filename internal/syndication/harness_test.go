// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package syndication

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/accounts"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/breaker"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/ledger"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/ratelimit"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// plainEncrypter marks passwords instead of encrypting them.
type plainEncrypter struct{}

func (plainEncrypter) Encrypt(s string) (string, error) { return "enc:" + s, nil }

// fakePublisher returns scripted outcomes per account id; unscripted calls succeed.
type fakePublisher struct {
	mu      sync.Mutex
	calls   map[string]int
	scripts map[string][]error
	inputs  []bluesky.PostInput
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{calls: make(map[string]int), scripts: make(map[string][]error)}
}

func (f *fakePublisher) script(accountID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[accountID] = append(f.scripts[accountID], errs...)
}

func (f *fakePublisher) count(accountID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[accountID]
}

func (f *fakePublisher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakePublisher) Publish(_ context.Context, creds bluesky.Credentials, in bluesky.PostInput) (*bluesky.PostInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[creds.AccountID]++
	f.inputs = append(f.inputs, in)

	if queue := f.scripts[creds.AccountID]; len(queue) > 0 {
		err := queue[0]
		f.scripts[creds.AccountID] = queue[1:]
		if err != nil {
			return nil, err
		}
	}
	n := f.calls[creds.AccountID]
	return &bluesky.PostInfo{
		URI: fmt.Sprintf("at://did:plc:%s/app.bsky.feed.post/rk%d", creds.AccountID[:8], n),
		CID: fmt.Sprintf("bafy%d", n),
		URL: fmt.Sprintf("https://bsky.app/profile/%s/post/rk%d", creds.Handle, n),
	}, nil
}

type scheduled struct {
	job   Job
	delay time.Duration
}

// recordingScheduler captures reschedules and first deliveries.
type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []scheduled
	delivered []Job
}

func (r *recordingScheduler) Schedule(_ context.Context, job Job, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, scheduled{job: job, delay: delay})
	return nil
}

func (r *recordingScheduler) Deliver(_ context.Context, contentID string, accountIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, Job{ContentID: contentID, AccountIDs: accountIDs, Attempt: 1})
	return nil
}

func (r *recordingScheduler) Mode() string { return "test" }

func (r *recordingScheduler) all() []scheduled {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scheduled(nil), r.scheduled...)
}

type staticHost string

func (h staticHost) HostState() string { return string(h) }

type harness struct {
	ctx      context.Context
	clock    *store.ManualClock
	kv       *store.MemoryStore
	registry *accounts.Registry
	pub      *fakePublisher
	sched    *recordingScheduler
	breaker  *breaker.Breaker
	limiter  *ratelimit.Limiter
	ledger   *ledger.Ledger
	activity *ledger.ActivityLog
	orch     *Orchestrator
	svc      *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := store.NewManualClock(testEpoch)
	kv := store.NewMemoryStore(clock)
	logger := zerolog.Nop()

	h := &harness{
		ctx:      context.Background(),
		clock:    clock,
		kv:       kv,
		pub:      newFakePublisher(),
		sched:    &recordingScheduler{},
		breaker:  breaker.New(kv, clock, logger),
		limiter:  ratelimit.New(kv, clock, logger, ratelimit.WithRand(func() float64 { return 0.5 })),
		ledger:   ledger.New(kv, clock, logger),
		activity: ledger.NewActivityLog(kv, clock),
	}
	h.registry = accounts.NewRegistry(kv, clock, plainEncrypter{}, h.ledger, accounts.Options{}, logger)
	h.orch = NewOrchestrator(Deps{
		Accounts:  h.registry,
		Publisher: h.pub,
		Breaker:   h.breaker,
		Limiter:   h.limiter,
		Ledger:    h.ledger,
		Activity:  h.activity,
		Content:   NewContentStore(kv),
		Store:     kv,
		Clock:     clock,
		Logger:    logger,
		Host:      staticHost("closed"),
	})
	h.orch.SetScheduler(h.sched)
	h.svc = NewService(h.orch, h.sched)
	return h
}

func (h *harness) addAccount(t *testing.T, handle string) string {
	t.Helper()
	id, err := h.registry.Add(h.ctx, accounts.AddRequest{Handle: handle, AppPassword: "app-pass-1234"})
	if err != nil {
		t.Fatalf("Add(%s): %v", handle, err)
	}
	return id
}

func (h *harness) putContent(t *testing.T, id string) *Content {
	t.Helper()
	c := &Content{ID: id, Title: "Hello " + id, URL: "https://blog.example.com/" + id, Excerpt: "An excerpt."}
	if err := h.orch.content.Put(h.ctx, c); err != nil {
		t.Fatalf("Put content: %v", err)
	}
	return c
}

func (h *harness) entries(t *testing.T, contentID string) map[string]ledger.Entry {
	t.Helper()
	e, err := h.ledger.Entries(h.ctx, contentID)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	return e
}

func (h *harness) state(t *testing.T, contentID string) ledger.ItemState {
	t.Helper()
	st, found, err := h.ledger.State(h.ctx, contentID)
	if err != nil || !found {
		t.Fatalf("State: found=%v err=%v", found, err)
	}
	return st
}

func (h *harness) events(t *testing.T, typ ledger.EventType) []ledger.Event {
	t.Helper()
	ev, err := h.activity.Recent(h.ctx, typ)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	return ev
}

func rateLimitErr(retryAfter string) error {
	header := http.Header{}
	if retryAfter != "" {
		header.Set("Retry-After", retryAfter)
	}
	return &bluesky.APIError{
		Kind:       bluesky.KindRateLimit,
		Endpoint:   "com.atproto.repo.createRecord",
		Code:       "RateLimitExceeded",
		Message:    "Rate Limit Exceeded",
		StatusCode: http.StatusTooManyRequests,
		Header:     header,
	}
}

func serverErr() error {
	return &bluesky.APIError{
		Kind:       bluesky.KindServer,
		Endpoint:   "com.atproto.repo.createRecord",
		Code:       "InternalServerError",
		Message:    "upstream exploded",
		StatusCode: http.StatusInternalServerError,
	}
}

func authErr() error {
	return &bluesky.APIError{
		Kind:       bluesky.KindAuth,
		Endpoint:   "com.atproto.server.createSession",
		Code:       "AuthenticationRequired",
		Message:    "Invalid identifier or password",
		StatusCode: http.StatusUnauthorized,
	}
}
