// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// storeContract runs the behavior every Store implementation must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Set(ctx, "opt:accounts", []byte(`[]`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(ctx, "opt:accounts")
	if err != nil || string(got) != "[]" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	for _, k := range []string{"ledger:2:b", "ledger:1:a", "ledger:1:b", "other"} {
		if err := s.Set(ctx, k, []byte(k), 0); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	var keys []string
	err = s.Scan(ctx, "ledger:1:", func(key string, value []byte) error {
		if key != string(value) {
			t.Errorf("value mismatch for %s: %s", key, value)
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(keys) != 2 || keys[0] != "ledger:1:a" || keys[1] != "ledger:1:b" {
		t.Errorf("unexpected scan keys: %v", keys)
	}

	stop := errors.New("stop")
	if err := s.Scan(ctx, "ledger:", func(string, []byte) error { return stop }); !errors.Is(err, stop) {
		t.Errorf("expected callback error to propagate, got %v", err)
	}

	if err := s.Delete(ctx, "opt:accounts"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "opt:accounts"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected deleted key to be gone, got %v", err)
	}
	if err := s.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("deleting absent key: %v", err)
	}
}

func TestMemoryStore_Contract(t *testing.T) {
	t.Parallel()
	storeContract(t, NewMemoryStore(nil))
}

func TestBadgerStore_Contract(t *testing.T) {
	t.Parallel()

	s, err := OpenBadger(BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer s.Close()

	storeContract(t, s)
}

func TestBadgerStore_OnDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := OpenBadger(BadgerOptions{Path: dir})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	ctx := context.Background()
	if err := s.Set(ctx, "opt:schema_version", []byte("2"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if _, err := s.Get(ctx, "opt:schema_version"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}

	reopened, err := OpenBadger(BadgerOptions{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx, "opt:schema_version")
	if err != nil || string(got) != "2" {
		t.Errorf("expected value to survive reopen, got %q, %v", got, err)
	}
}

func TestOpenBadger_RequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenBadger(BadgerOptions{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	t.Parallel()

	clock := NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewMemoryStore(clock)
	ctx := context.Background()

	if err := s.Set(ctx, "bsky:access:a1", []byte("tok"), time.Hour); err != nil {
		t.Fatal(err)
	}
	clock.Advance(59 * time.Minute)
	if _, err := s.Get(ctx, "bsky:access:a1"); err != nil {
		t.Errorf("expected token still live, got %v", err)
	}
	clock.Advance(2 * time.Minute)
	if _, err := s.Get(ctx, "bsky:access:a1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected token expired, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected no live keys, got %d", s.Len())
	}
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(nil)
	ctx := context.Background()

	type state struct {
		Status string `json:"status"`
	}

	var out state
	found, err := GetJSON(ctx, s, "breaker:state:a", &out)
	if err != nil || found {
		t.Fatalf("expected absent, got found=%v err=%v", found, err)
	}

	if err := SetJSON(ctx, s, "breaker:state:a", state{Status: "open"}, 0); err != nil {
		t.Fatal(err)
	}
	found, err = GetJSON(ctx, s, "breaker:state:a", &out)
	if err != nil || !found || out.Status != "open" {
		t.Errorf("GetJSON = %+v, %v, %v", out, found, err)
	}

	if err := s.Set(ctx, "bad", []byte("{"), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := GetJSON(ctx, s, "bad", &out); err == nil {
		t.Error("expected decode error")
	}
}

func TestPrefixed(t *testing.T) {
	t.Parallel()

	base := NewMemoryStore(nil)
	p := Prefixed(base, "tenant1/")
	ctx := context.Background()

	if err := p.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := base.Get(ctx, "tenant1/k"); err != nil {
		t.Errorf("expected prefixed key in base store: %v", err)
	}

	var seen []string
	_ = p.Scan(ctx, "", func(key string, _ []byte) error {
		seen = append(seen, key)
		return nil
	})
	if len(seen) != 1 || seen[0] != "k" {
		t.Errorf("expected stripped key, got %v", seen)
	}

	if err := p.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if base.Len() != 0 {
		t.Error("expected base store empty after delete")
	}
}

func TestGCRunner_StartStop(t *testing.T) {
	t.Parallel()

	s, err := OpenBadger(BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	g := NewGCRunner(s, 10*time.Millisecond, 0)
	if err := g.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := g.Start(context.Background()); err != nil {
		t.Errorf("second Start should be a no-op: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := g.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := g.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
