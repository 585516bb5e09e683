// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

func newTestLedger(t *testing.T) (*Ledger, *store.MemoryStore, *store.ManualClock) {
	t.Helper()
	clock := store.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	kv := store.NewMemoryStore(clock)
	return New(kv, clock, zerolog.Nop()), kv, clock
}

func TestAggregate(t *testing.T) {
	t.Parallel()

	ok := Entry{Success: true}
	bad := Entry{Error: "boom"}
	pending := Entry{Pending: true}

	tests := []struct {
		name    string
		entries map[string]Entry
		want    Status
	}{
		{"none succeeded", map[string]Entry{"a": bad, "b": bad, "c": pending}, StatusFailed},
		{"all succeeded", map[string]Entry{"a": ok, "b": ok, "c": ok}, StatusCompleted},
		{"one of three", map[string]Entry{"a": ok, "b": bad, "c": pending}, StatusPartial},
		{"two of three", map[string]Entry{"c": ok, "a": bad, "b": ok}, StatusPartial},
		{"empty", map[string]Entry{}, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Aggregate(tt.entries); got != tt.want {
				t.Errorf("Aggregate = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRecord_NeverOverwritesSuccess(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	written, err := l.Record(ctx, "post-1", "acct-a", Entry{URI: "at://a/1", Success: true})
	if err != nil || !written {
		t.Fatalf("first Record = %v, %v", written, err)
	}
	written, err = l.Record(ctx, "post-1", "acct-a", Entry{Error: "late failure"})
	if err != nil {
		t.Fatalf("second Record: %v", err)
	}
	if written {
		t.Error("expected success entry to be kept")
	}

	entries, _ := l.Entries(ctx, "post-1")
	if !entries["acct-a"].Success || entries["acct-a"].URI != "at://a/1" {
		t.Errorf("success entry altered: %+v", entries["acct-a"])
	}
	if entries["acct-a"].AttemptedAt.IsZero() {
		t.Error("expected attempted_at stamped")
	}
	if ok, _ := l.HasSuccess(ctx, "post-1", "acct-a"); !ok {
		t.Error("expected HasSuccess")
	}
}

func TestRecord_FailureThenSuccess(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, _ = l.Record(ctx, "post-1", "acct-b", Entry{Pending: true, Error: "rate limited"})
	_, _ = l.Record(ctx, "post-1", "acct-b", Entry{Success: true, URI: "at://b/1"})

	entries, _ := l.Entries(ctx, "post-1")
	if e := entries["acct-b"]; !e.Success || e.Pending || e.Error != "" {
		t.Errorf("expected pending entry replaced by success, got %+v", e)
	}
}

func TestEntries_LegacyShape(t *testing.T) {
	t.Parallel()

	l, kv, _ := newTestLedger(t)
	ctx := context.Background()
	_ = kv.Set(ctx, "ledger:old-post", []byte(`{"uri":"at://did/app.bsky.feed.post/x","cid":"c1","url":"https://bsky.app/x"}`), 0)

	entries, err := l.Entries(ctx, "old-post")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	e, ok := entries[LegacyAccountFallback]
	if !ok || !e.Success || e.CID != "c1" {
		t.Fatalf("expected legacy singleton, got %+v", entries)
	}

	_ = kv.Set(ctx, LegacyAccountOption, []byte("acct-migrated"), 0)
	entries, _ = l.Entries(ctx, "old-post")
	if _, ok := entries["acct-migrated"]; !ok {
		t.Errorf("expected legacy record keyed by migrated account, got %+v", entries)
	}

	n, err := l.CountReferences(ctx, "acct-migrated")
	if err != nil || n != 1 {
		t.Errorf("CountReferences = %d, %v", n, err)
	}
}

func TestFinalize_StickyFirstSuccess(t *testing.T) {
	t.Parallel()

	l, _, clock := newTestLedger(t)
	ctx := context.Background()

	_, _ = l.Record(ctx, "post-1", "acct-a", Entry{Success: true, URI: "at://a/1", URL: "https://bsky.app/a/1"})
	clock.Advance(time.Minute)
	_, _ = l.Record(ctx, "post-1", "acct-b", Entry{Pending: true})

	st, err := l.Finalize(ctx, "post-1")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if st.Status != StatusPartial || !st.EverSyndicated || st.FirstAccountID != "acct-a" || st.FirstURI != "at://a/1" {
		t.Errorf("unexpected state: %+v", st)
	}

	clock.Advance(time.Minute)
	_, _ = l.Record(ctx, "post-1", "acct-b", Entry{Success: true, URI: "at://b/1"})
	st, _ = l.Finalize(ctx, "post-1")
	if st.Status != StatusCompleted || st.FirstAccountID != "acct-a" {
		t.Errorf("expected completed with first account kept, got %+v", st)
	}

	// ever_syndicated survives a ledger that no longer shows a success.
	_, _ = l.Record(ctx, "post-2", "acct-a", Entry{Success: true})
	_, _ = l.Finalize(ctx, "post-2")
	_ = l.store.Set(ctx, "ledger:post-2", []byte(`{"acct-a":{"success":false,"error":"x","attempted_at":"2026-03-01T12:00:00Z"}}`), 0)
	st, _ = l.Finalize(ctx, "post-2")
	if st.Status != StatusFailed || !st.EverSyndicated {
		t.Errorf("expected sticky ever_syndicated, got %+v", st)
	}
}

func TestClearFailures(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.Record(ctx, "post-1", "acct-a", Entry{Success: true})
	_, _ = l.Record(ctx, "post-1", "acct-b", Entry{Error: "boom"})
	_, _ = l.Record(ctx, "post-1", "acct-c", Entry{Pending: true})
	st, _ := l.Finalize(ctx, "post-1")
	if len(st.FailedAccounts) != 1 || st.FailedAccounts[0] != "acct-b" {
		t.Fatalf("unexpected failed accounts %v", st.FailedAccounts)
	}

	cleared, err := l.ClearFailures(ctx, "post-1")
	if err != nil {
		t.Fatalf("ClearFailures: %v", err)
	}
	if len(cleared) != 1 || cleared[0] != "acct-b" {
		t.Errorf("cleared = %v", cleared)
	}
	entries, _ := l.Entries(ctx, "post-1")
	if _, ok := entries["acct-b"]; ok {
		t.Error("expected failed entry removed")
	}
	if _, ok := entries["acct-c"]; !ok {
		t.Error("expected pending entry kept")
	}
	st, _, _ = l.State(ctx, "post-1")
	if len(st.FailedAccounts) != 0 {
		t.Errorf("expected failed accounts cleared in state, got %v", st.FailedAccounts)
	}
}

func TestUnlinkAndCountReferences(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLedger(t)
	ctx := context.Background()
	_, _ = l.Record(ctx, "post-1", "acct-a", Entry{Success: true})
	_, _ = l.Record(ctx, "post-2", "acct-a", Entry{Error: "x"})
	_, _ = l.Record(ctx, "post-2", "acct-b", Entry{Success: true})
	_, _ = l.Finalize(ctx, "post-1")

	if n, _ := l.CountReferences(ctx, "acct-a"); n != 2 {
		t.Errorf("expected 2 references, got %d", n)
	}

	if err := l.Unlink(ctx, "post-1"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if entries, _ := l.Entries(ctx, "post-1"); len(entries) != 0 {
		t.Errorf("expected empty ledger after unlink, got %v", entries)
	}
	if _, found, _ := l.State(ctx, "post-1"); found {
		t.Error("expected state removed after unlink")
	}
	if n, _ := l.CountReferences(ctx, "acct-a"); n != 1 {
		t.Errorf("expected 1 reference after unlink, got %d", n)
	}
}
