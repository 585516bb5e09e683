// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package bluesky

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

const (
	testDID    = "did:plc:alice123"
	testHandle = "alice.bsky.social"
)

// fakePDS is a scriptable XRPC server.
type fakePDS struct {
	t        *testing.T
	srv      *httptest.Server
	mu       sync.Mutex
	calls    map[string]int
	bodies   map[string][][]byte
	queries  map[string]url.Values
	handlers map[string]http.HandlerFunc
}

func newFakePDS(t *testing.T) *fakePDS {
	t.Helper()
	p := &fakePDS{
		t:        t,
		calls:    make(map[string]int),
		bodies:   make(map[string][][]byte),
		queries:  make(map[string]url.Values),
		handlers: make(map[string]http.HandlerFunc),
	}
	p.handle(nsidCreateSession, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionResponse{DID: testDID, Handle: testHandle, AccessJwt: "access-1", RefreshJwt: "refresh-1"})
	})
	p.srv = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePDS) serve(w http.ResponseWriter, r *http.Request) {
	nsid := strings.TrimPrefix(r.URL.Path, "/xrpc/")
	body, _ := io.ReadAll(r.Body)

	p.mu.Lock()
	p.calls[nsid]++
	p.bodies[nsid] = append(p.bodies[nsid], body)
	p.queries[nsid] = r.URL.Query()
	h := p.handlers[nsid]
	p.mu.Unlock()

	if h == nil {
		writeJSON(w, http.StatusNotImplemented, xrpcErrorBody{Error: "MethodNotImplemented"})
		return
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	h(w, r)
}

func (p *fakePDS) handle(nsid string, h http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[nsid] = h
}

func (p *fakePDS) count(nsid string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[nsid]
}

func (p *fakePDS) lastBody(nsid string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.bodies[nsid]
	if len(b) == 0 {
		return nil
	}
	return b[len(b)-1]
}

func (p *fakePDS) lastQuery(nsid string) url.Values {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries[nsid]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// prefixDecrypter treats "enc:<password>" as the encrypted form.
type prefixDecrypter struct{}

func (prefixDecrypter) Decrypt(token string) (string, error) {
	if !strings.HasPrefix(token, "enc:") {
		return "", errors.New("decryption failed")
	}
	return strings.TrimPrefix(token, "enc:"), nil
}

type recordingSink struct {
	mu      sync.Mutex
	cleared []string
	dids    map[string]string
}

func (s *recordingSink) ClearCredentials(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, accountID)
	return nil
}

func (s *recordingSink) SetRemoteID(_ context.Context, accountID, did string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dids == nil {
		s.dids = make(map[string]string)
	}
	s.dids[accountID] = did
	return nil
}

type testEnv struct {
	pds    *fakePDS
	store  *store.MemoryStore
	clock  *store.ManualClock
	sink   *recordingSink
	client *Client
}

func newTestEnv(t *testing.T, opts Options, extra ...ClientOption) *testEnv {
	t.Helper()
	pds := newFakePDS(t)
	clock := store.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	kv := store.NewMemoryStore(clock)
	sink := &recordingSink{}

	opts.ServiceURL = pds.srv.URL
	if opts.PublicURL == "" {
		opts.PublicURL = "https://bsky.app"
	}
	extra = append([]ClientOption{WithClock(clock), WithHTTPClient(pds.srv.Client())}, extra...)
	c := NewClient(opts, kv, prefixDecrypter{}, sink, zerolog.Nop(), extra...)
	return &testEnv{pds: pds, store: kv, clock: clock, sink: sink, client: c}
}

func (e *testEnv) account() *AccountClient {
	return e.client.Account(Credentials{AccountID: "acct-1", Handle: testHandle, EncryptedPassword: "enc:app-pass"})
}
