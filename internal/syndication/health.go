// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package syndication

import (
	"context"
	"fmt"
	"time"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/breaker"
)

// Health check names.
const (
	CheckAccountsConfigured = "accounts_configured"
	CheckCredentialsValid   = "credentials_valid"
	CheckAPIReachable       = "api_reachable"
)

// Check is one pass/fail line of the health report.
type Check struct {
	Name    string `json:"name"`
	Pass    bool   `json:"pass"`
	Message string `json:"message"`
}

// AccountHealth is the per-account detail of the health report.
type AccountHealth struct {
	ID             string           `json:"id"`
	Handle         string           `json:"handle"`
	Active         bool             `json:"active"`
	HasCredentials bool             `json:"has_credentials"`
	Circuit        breaker.Snapshot `json:"circuit"`
	RateLimited    bool             `json:"rate_limited"`
	RetryAfter     int64            `json:"retry_after_seconds,omitempty"`
	AuthError      *AuthFlag        `json:"auth_error,omitempty"`
}

// HealthReport summarizes syndication health from stored state only. It
// never calls the remote service.
type HealthReport struct {
	Healthy   bool            `json:"healthy"`
	Checks    []Check         `json:"checks"`
	Accounts  []AccountHealth `json:"accounts"`
	HostState string          `json:"host_state,omitempty"`
	Mode      string          `json:"delivery_mode"`
	CheckedAt time.Time       `json:"checked_at"`
}

// HealthReport builds the passive health report.
func (s *Service) HealthReport(ctx context.Context) (*HealthReport, error) {
	o := s.orch
	list, err := o.accounts.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		Accounts:  make([]AccountHealth, 0, len(list)),
		Mode:      s.deliverer.Mode(),
		CheckedAt: o.clock.Now().UTC(),
	}

	var withCreds, flagged, openCircuits int
	for i := range list {
		a := &list[i]
		h := AccountHealth{
			ID:             a.ID,
			Handle:         a.Handle,
			Active:         a.IsActive,
			HasCredentials: a.EncryptedPassword != "",
			Circuit:        o.breaker.State(ctx, a.ID),
			RateLimited:    o.limiter.IsLimited(ctx, a.ID),
		}
		if h.RateLimited {
			h.RetryAfter = int64(o.limiter.RetryAfter(ctx, a.ID).Round(time.Second) / time.Second)
		}
		if flag, found, err := o.AuthFlag(ctx, a.ID); err == nil && found {
			h.AuthError = &flag
			flagged++
		}
		if h.HasCredentials {
			withCreds++
		}
		if h.Circuit.Status == breaker.StatusOpen && report.CheckedAt.Before(h.Circuit.OpenUntil) {
			openCircuits++
		}
		report.Accounts = append(report.Accounts, h)
	}

	configured := Check{Name: CheckAccountsConfigured, Pass: withCreds > 0}
	if configured.Pass {
		configured.Message = fmt.Sprintf("%d of %d account(s) have credentials", withCreds, len(list))
	} else {
		configured.Message = "No account with credentials is configured"
	}

	creds := Check{Name: CheckCredentialsValid, Pass: withCreds > 0 && flagged == 0}
	switch {
	case withCreds == 0:
		creds.Message = "No credentials to validate"
	case flagged > 0:
		creds.Message = fmt.Sprintf("%d account(s) failed authentication", flagged)
	default:
		creds.Message = "No authentication failures recorded"
	}

	reach := Check{Name: CheckAPIReachable, Pass: true, Message: "No open circuits"}
	if o.host != nil {
		report.HostState = o.host.HostState()
	}
	switch {
	case report.HostState == "open":
		reach.Pass = false
		reach.Message = "Remote service circuit is open"
	case len(list) > 0 && openCircuits == len(list):
		reach.Pass = false
		reach.Message = "Every account circuit is open"
	case openCircuits > 0:
		reach.Message = fmt.Sprintf("%d account circuit(s) open", openCircuits)
	}

	report.Checks = []Check{configured, creds, reach}
	report.Healthy = configured.Pass && creds.Pass && reach.Pass
	return report, nil
}
