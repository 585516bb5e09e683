// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package syndication

import (
	"context"
	"fmt"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/ledger"
)

// Service is the operator-facing entry point: it stores content, picks
// target accounts and hands work to the selected Deliverer.
type Service struct {
	orch      *Orchestrator
	deliverer Deliverer
}

// NewService creates a Service.
func NewService(orch *Orchestrator, d Deliverer) *Service {
	return &Service{orch: orch, deliverer: d}
}

// Orchestrator returns the underlying orchestrator.
func (s *Service) Orchestrator() *Orchestrator { return s.orch }

// Mode reports the active delivery strategy.
func (s *Service) Mode() string { return s.deliverer.Mode() }

// Targets returns the ids of accounts that should receive c: accounts with
// auto-syndication enabled, stored credentials and matching category rules.
func (s *Service) Targets(ctx context.Context, c *Content) ([]string, error) {
	list, err := s.orch.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for i := range list {
		a := &list[i]
		if !a.AutoSyndicate || a.EncryptedPassword == "" {
			continue
		}
		if !a.CategoryRules.Allows(c.Categories) {
			continue
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// Submit upserts c and delivers it to accountIDs, or to Targets when
// accountIDs is empty. It returns the accounts delivery was started for.
func (s *Service) Submit(ctx context.Context, c *Content, accountIDs []string) ([]string, error) {
	if err := s.orch.content.Put(ctx, c); err != nil {
		return nil, fmt.Errorf("store content %s: %w", c.ID, err)
	}
	if len(accountIDs) == 0 {
		var err error
		if accountIDs, err = s.Targets(ctx, c); err != nil {
			return nil, fmt.Errorf("resolve targets: %w", err)
		}
	}
	if len(accountIDs) == 0 {
		s.orch.logger.Info().Str("content_id", c.ID).Msg("No target accounts for content")
		return nil, nil
	}
	if err := s.deliverer.Deliver(ctx, c.ID, accountIDs); err != nil {
		return nil, err
	}
	return accountIDs, nil
}

// Retry clears the failure bookkeeping of an item and re-delivers the
// failed accounts, or every eligible account when none were marked failed.
func (s *Service) Retry(ctx context.Context, contentID string) ([]string, error) {
	c, err := s.orch.content.Get(ctx, contentID)
	if err != nil {
		return nil, err
	}

	ids, err := s.orch.ledger.ClearFailures(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("clear failures %s: %w", contentID, err)
	}
	if len(ids) == 0 {
		if ids, err = s.Targets(ctx, c); err != nil {
			return nil, fmt.Errorf("resolve targets: %w", err)
		}
	}

	s.orch.event(ctx, ledger.EventManualRetry,
		fmt.Sprintf("Manual retry for %d account(s)", len(ids)), contentID, "")

	if len(ids) == 0 {
		return nil, nil
	}
	if err := s.deliverer.Deliver(ctx, contentID, ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Status is the syndication view of one item.
type Status struct {
	ContentID string                  `json:"content_id"`
	State     *ledger.ItemState       `json:"state,omitempty"`
	Accounts  map[string]ledger.Entry `json:"accounts"`
}

// Status returns the ledger and derived state of contentID.
func (s *Service) Status(ctx context.Context, contentID string) (*Status, error) {
	entries, err := s.orch.ledger.Entries(ctx, contentID)
	if err != nil {
		return nil, err
	}
	out := &Status{ContentID: contentID, Accounts: entries}
	if st, found, err := s.orch.ledger.State(ctx, contentID); err != nil {
		return nil, err
	} else if found {
		out.State = &st
	}
	return out, nil
}

// Unlink removes all syndication metadata of contentID. Remote posts are
// left untouched.
func (s *Service) Unlink(ctx context.Context, contentID string) error {
	if err := s.orch.ledger.Unlink(ctx, contentID); err != nil {
		return err
	}
	s.orch.logger.Info().Str("content_id", contentID).Msg("Syndication metadata unlinked")
	return nil
}

// Activity returns recent events newest-first, optionally filtered by type.
func (s *Service) Activity(ctx context.Context, typ ledger.EventType) ([]ledger.Event, error) {
	return s.orch.activity.Recent(ctx, typ)
}
