// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package syndication

import (
	"errors"
	"net/http"
	"testing"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/accounts"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/breaker"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/ledger"
)

func boolPtr(b bool) *bool { return &b }

func TestService_Targets(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	news := h.addAccount(t, "news.bsky.social")
	if err := h.registry.Update(h.ctx, news, accounts.Patch{CategoryRules: &accounts.CategoryRules{Include: []string{"news"}}}); err != nil {
		t.Fatal(err)
	}
	manual, err := h.registry.Add(h.ctx, accounts.AddRequest{Handle: "manual.bsky.social", AppPassword: "pw", AutoSyndicate: boolPtr(false)})
	if err != nil {
		t.Fatal(err)
	}
	all := h.addAccount(t, "all.bsky.social")

	tests := []struct {
		name       string
		categories []string
		want       []string
	}{
		{"news item", []string{"news"}, []string{news, all}},
		{"other item", []string{"recipes"}, []string{all}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.svc.Targets(h.ctx, &Content{ID: "x", Categories: tt.categories})
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Targets() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Targets()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
				if got[i] == manual {
					t.Error("auto_syndicate=false account selected")
				}
			}
		})
	}
}

func TestService_Submit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	a := h.addAccount(t, "alice.bsky.social")
	b := h.addAccount(t, "bob.bsky.social")

	c := &Content{ID: "post-1", Title: "T", URL: "https://blog.example.com/1"}
	ids, err := h.svc.Submit(h.ctx, c, nil)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Errorf("Submit() targets = %v", ids)
	}
	if _, err := h.orch.content.Get(h.ctx, "post-1"); err != nil {
		t.Errorf("content not stored: %v", err)
	}
	if len(h.sched.delivered) != 1 || h.sched.delivered[0].Attempt != 1 {
		t.Errorf("delivered = %+v", h.sched.delivered)
	}

	ids, err = h.svc.Submit(h.ctx, c, []string{b})
	if err != nil || len(ids) != 1 || ids[0] != b {
		t.Errorf("explicit Submit() = %v, %v", ids, err)
	}
}

func TestService_Submit_NoTargets(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ids, err := h.svc.Submit(h.ctx, &Content{ID: "post-1", Title: "T", URL: "https://x.example"}, nil)
	if err != nil || ids != nil {
		t.Errorf("Submit() = %v, %v; want nil, nil", ids, err)
	}
	if len(h.sched.delivered) != 0 {
		t.Error("nothing should be delivered without accounts")
	}
}

func TestService_Retry_FailedAccountsOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	a := h.addAccount(t, "alice.bsky.social")
	b := h.addAccount(t, "bob.bsky.social")
	h.putContent(t, "post-1")
	h.pub.script(b, serverErr())

	if err := h.orch.Process(h.ctx, Job{ContentID: "post-1", AccountIDs: []string{a, b}, Attempt: MaxAttempts}); err != nil {
		t.Fatal(err)
	}
	if st := h.state(t, "post-1"); len(st.FailedAccounts) != 1 {
		t.Fatalf("setup: failed accounts = %v", st.FailedAccounts)
	}

	ids, err := h.svc.Retry(h.ctx, "post-1")
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != b {
		t.Errorf("Retry() = %v, want [%s]", ids, b)
	}
	if _, ok := h.entries(t, "post-1")[b]; ok {
		t.Error("failed entry should be cleared")
	}
	if !h.entries(t, "post-1")[a].Success {
		t.Error("successful entry must survive retry")
	}
	if ev := h.events(t, ledger.EventManualRetry); len(ev) != 1 {
		t.Errorf("expected manual_retry event, got %d", len(ev))
	}
}

func TestService_Retry_AllWhenNoneFailed(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	a := h.addAccount(t, "alice.bsky.social")
	b := h.addAccount(t, "bob.bsky.social")
	h.putContent(t, "post-1")

	ids, err := h.svc.Retry(h.ctx, "post-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != a || ids[1] != b {
		t.Errorf("Retry() = %v", ids)
	}
}

func TestService_Retry_UnknownContent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if _, err := h.svc.Retry(h.ctx, "nope"); !errors.Is(err, ErrContentNotFound) {
		t.Errorf("Retry() error = %v, want ErrContentNotFound", err)
	}
}

func TestService_StatusAndUnlink(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	a := h.addAccount(t, "alice.bsky.social")
	h.putContent(t, "post-1")
	if err := h.orch.Process(h.ctx, Job{ContentID: "post-1", AccountIDs: []string{a}, Attempt: 1}); err != nil {
		t.Fatal(err)
	}

	st, err := h.svc.Status(h.ctx, "post-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.State == nil || st.State.Status != ledger.StatusCompleted || !st.Accounts[a].Success {
		t.Errorf("Status() = %+v", st)
	}

	if err := h.svc.Unlink(h.ctx, "post-1"); err != nil {
		t.Fatal(err)
	}
	st, _ = h.svc.Status(h.ctx, "post-1")
	if st.State != nil || len(st.Accounts) != 0 {
		t.Errorf("after Unlink Status() = %+v", st)
	}
}

func TestService_HealthReport(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	report, err := h.svc.HealthReport(h.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Healthy || report.Checks[0].Name != CheckAccountsConfigured || report.Checks[0].Pass {
		t.Errorf("empty registry report = %+v", report)
	}

	a := h.addAccount(t, "alice.bsky.social")
	b := h.addAccount(t, "bob.bsky.social")

	report, _ = h.svc.HealthReport(h.ctx)
	if !report.Healthy {
		t.Errorf("expected healthy report, got %+v", report.Checks)
	}
	if report.HostState != "closed" || report.Mode != "test" {
		t.Errorf("report host/mode = %s/%s", report.HostState, report.Mode)
	}

	h.setAuthFlagForTest(t, a)
	header := http.Header{}
	header.Set("Retry-After", "30")
	h.limiter.Check(h.ctx, b, http.StatusTooManyRequests, header)
	for i := 0; i < breaker.FailureThreshold; i++ {
		h.breaker.RecordFailure(h.ctx, b)
	}

	report, _ = h.svc.HealthReport(h.ctx)
	checks := map[string]Check{}
	for _, c := range report.Checks {
		checks[c.Name] = c
	}
	if checks[CheckCredentialsValid].Pass {
		t.Error("credentials_valid should fail with an auth flag")
	}
	if !checks[CheckAPIReachable].Pass {
		t.Error("one open circuit out of two should not fail api_reachable")
	}
	if report.Healthy {
		t.Error("report should be unhealthy")
	}

	var bobHealth AccountHealth
	for _, ah := range report.Accounts {
		if ah.ID == b {
			bobHealth = ah
		}
	}
	if !bobHealth.RateLimited || bobHealth.RetryAfter != 30 || bobHealth.Circuit.Status != breaker.StatusOpen {
		t.Errorf("bob health = %+v", bobHealth)
	}

	for i := 0; i < breaker.FailureThreshold; i++ {
		h.breaker.RecordFailure(h.ctx, a)
	}
	report, _ = h.svc.HealthReport(h.ctx)
	for _, c := range report.Checks {
		if c.Name == CheckAPIReachable && c.Pass {
			t.Error("api_reachable should fail when every circuit is open")
		}
	}
}

func (h *harness) setAuthFlagForTest(t *testing.T, accountID string) {
	t.Helper()
	h.orch.setAuthFlag(h.ctx, accountID, authFlagFrom(authErr(), h.clock.Now()))
}
