// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

// Status is the aggregate syndication status of a content item.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

const (
	entriesKeyPrefix = "ledger:"
	stateKeyPrefix   = "ledger:state:"

	// LegacyAccountOption holds the account id assigned to pre-multi-account
	// ledger records during migration.
	LegacyAccountOption = "opt:legacy_account_id"

	// LegacyAccountFallback keys legacy records when no migration ran.
	LegacyAccountFallback = "legacy"
)

// Entry is the outcome of syndicating one item to one account.
type Entry struct {
	URI         string    `json:"uri,omitempty"`
	CID         string    `json:"cid,omitempty"`
	URL         string    `json:"url,omitempty"`
	AttemptedAt time.Time `json:"attempted_at"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Pending     bool      `json:"pending,omitempty"`
	Handle      string    `json:"handle,omitempty"`
}

// ItemState is the derived, persisted summary of an item's ledger.
type ItemState struct {
	Status         Status    `json:"status"`
	EverSyndicated bool      `json:"ever_syndicated"`
	FirstAccountID string    `json:"first_account_id,omitempty"`
	FirstURI       string    `json:"first_uri,omitempty"`
	FirstURL       string    `json:"first_url,omitempty"`
	FailedAccounts []string  `json:"failed_accounts,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Aggregate derives the item status from success flags only: no success
// is failed, all success is completed, anything else is partial.
func Aggregate(entries map[string]Entry) Status {
	successes := 0
	for _, e := range entries {
		if e.Success {
			successes++
		}
	}
	switch {
	case successes == 0:
		return StatusFailed
	case successes == len(entries):
		return StatusCompleted
	default:
		return StatusPartial
	}
}

// Ledger persists per-account syndication results per content item.
type Ledger struct {
	store  store.Store
	clock  store.Clock
	logger zerolog.Logger
}

// New creates a Ledger. A nil clock uses the system clock.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(s store.Store, clock store.Clock, logger zerolog.Logger) *Ledger {
	if clock == nil {
		clock = store.SystemClock{}
	}
	return &Ledger{store: s, clock: clock, logger: logger.With().Str("component", "ledger").Logger()}
}

// legacyRecord is the single-account shape written before accounts existed.
type legacyRecord struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
	URL string `json:"url"`
}

// Entries returns the ledger map for contentID. A missing ledger is an
// empty map. The legacy single-record shape is read as a one-entry map.
func (l *Ledger) Entries(ctx context.Context, contentID string) (map[string]Entry, error) {
	data, err := l.store.Get(ctx, entriesKeyPrefix+contentID)
	if errors.Is(err, store.ErrNotFound) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return l.decode(ctx, data)
}

func (l *Ledger) decode(ctx context.Context, data []byte) (map[string]Entry, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}

	if raw, ok := probe["uri"]; ok && len(raw) > 0 && raw[0] == '"' {
		var legacy legacyRecord
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("decode legacy ledger: %w", err)
		}
		return map[string]Entry{
			l.legacyAccountID(ctx): {URI: legacy.URI, CID: legacy.CID, URL: legacy.URL, Success: true},
		}, nil
	}

	entries := make(map[string]Entry, len(probe))
	for accountID, raw := range probe {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode ledger entry %s: %w", accountID, err)
		}
		entries[accountID] = e
	}
	return entries, nil
}

func (l *Ledger) legacyAccountID(ctx context.Context) string {
	if id, err := l.store.Get(ctx, LegacyAccountOption); err == nil && len(id) > 0 {
		return string(id)
	}
	return LegacyAccountFallback
}

// HasSuccess reports whether accountID already holds a successful entry.
func (l *Ledger) HasSuccess(ctx context.Context, contentID, accountID string) (bool, error) {
	entries, err := l.Entries(ctx, contentID)
	if err != nil {
		return false, err
	}
	return entries[accountID].Success, nil
}

// Record merges e for accountID. An existing success is never replaced; in
// that case Record reports false.
func (l *Ledger) Record(ctx context.Context, contentID, accountID string, e Entry) (bool, error) {
	entries, err := l.Entries(ctx, contentID)
	if err != nil {
		return false, err
	}
	if entries[accountID].Success {
		l.logger.Debug().Str("content_id", contentID).Str("account_id", accountID).Msg("Ledger entry already successful, skipping")
		return false, nil
	}
	if e.AttemptedAt.IsZero() {
		e.AttemptedAt = l.clock.Now().UTC()
	}
	entries[accountID] = e
	return true, store.SetJSON(ctx, l.store, entriesKeyPrefix+contentID, entries, 0)
}

// Finalize recomputes and persists the item state. ever_syndicated is
// sticky and the first successful account is kept once set.
func (l *Ledger) Finalize(ctx context.Context, contentID string) (ItemState, error) {
	entries, err := l.Entries(ctx, contentID)
	if err != nil {
		return ItemState{}, err
	}
	st, _, err := l.State(ctx, contentID)
	if err != nil {
		return ItemState{}, err
	}

	st.Status = Aggregate(entries)
	st.FailedAccounts = failedAccounts(entries)
	st.UpdatedAt = l.clock.Now().UTC()

	if firstID, first, ok := earliestSuccess(entries); ok {
		st.EverSyndicated = true
		if st.FirstAccountID == "" {
			st.FirstAccountID = firstID
			st.FirstURI = first.URI
			st.FirstURL = first.URL
		}
	}

	if err := store.SetJSON(ctx, l.store, stateKeyPrefix+contentID, st, 0); err != nil {
		return ItemState{}, err
	}
	return st, nil
}

// State returns the persisted item state and whether one exists.
func (l *Ledger) State(ctx context.Context, contentID string) (ItemState, bool, error) {
	var st ItemState
	found, err := store.GetJSON(ctx, l.store, stateKeyPrefix+contentID, &st)
	return st, found, err
}

// ClearFailures removes failed (non-pending) entries so they can be
// retried, and returns the affected account ids.
func (l *Ledger) ClearFailures(ctx context.Context, contentID string) ([]string, error) {
	entries, err := l.Entries(ctx, contentID)
	if err != nil {
		return nil, err
	}
	cleared := failedAccounts(entries)
	if len(cleared) == 0 {
		return nil, nil
	}
	for _, id := range cleared {
		delete(entries, id)
	}
	if err := store.SetJSON(ctx, l.store, entriesKeyPrefix+contentID, entries, 0); err != nil {
		return nil, err
	}

	st, found, err := l.State(ctx, contentID)
	if err == nil && found {
		st.FailedAccounts = nil
		st.UpdatedAt = l.clock.Now().UTC()
		if err := store.SetJSON(ctx, l.store, stateKeyPrefix+contentID, st, 0); err != nil {
			return cleared, err
		}
	}
	return cleared, nil
}

// Unlink removes all syndication metadata of an item.
func (l *Ledger) Unlink(ctx context.Context, contentID string) error {
	if err := l.store.Delete(ctx, entriesKeyPrefix+contentID); err != nil {
		return err
	}
	return l.store.Delete(ctx, stateKeyPrefix+contentID)
}

// CountReferences counts content items whose ledger mentions accountID.
func (l *Ledger) CountReferences(ctx context.Context, accountID string) (int, error) {
	count := 0
	err := l.store.Scan(ctx, entriesKeyPrefix, func(key string, value []byte) error {
		if strings.HasPrefix(key, stateKeyPrefix) {
			return nil
		}
		entries, err := l.decode(ctx, value)
		if err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("Skipping unreadable ledger")
			return nil
		}
		if _, ok := entries[accountID]; ok {
			count++
		}
		return nil
	})
	return count, err
}

func failedAccounts(entries map[string]Entry) []string {
	var failed []string
	for id, e := range entries {
		if !e.Success && !e.Pending {
			failed = append(failed, id)
		}
	}
	sort.Strings(failed)
	return failed
}

func earliestSuccess(entries map[string]Entry) (string, Entry, bool) {
	var (
		bestID string
		best   Entry
		found  bool
	)
	for id, e := range entries {
		if !e.Success {
			continue
		}
		if !found || e.AttemptedAt.Before(best.AttemptedAt) || (e.AttemptedAt.Equal(best.AttemptedAt) && id < bestID) {
			bestID, best, found = id, e, true
		}
	}
	return bestID, best, found
}
