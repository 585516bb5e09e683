// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

// Package breaker implements a per-account circuit breaker whose state lives
// in the shared key/value store, so every job execution and every process
// sharing the store sees the same circuit.
//
// State machine:
//
//	closed --(3 consecutive failures)--> open
//	open --(now >= open_until)--> half_open   (one probe allowed)
//	half_open --success--> closed
//	half_open --failure--> open (fresh 900s cooldown)
//
// Rate limiting is tracked separately by the ratelimit package. Callers must
// not report a 429 as a breaker failure.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/metrics"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

// Status is a circuit state.
type Status string

const (
	StatusClosed   Status = "closed"
	StatusOpen     Status = "open"
	StatusHalfOpen Status = "half_open"
)

const (
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold = 3

	// Cooldown is how long an open circuit blocks traffic.
	Cooldown = 900 * time.Second

	// failureCounterTTL bounds how long a partial failure streak is remembered.
	failureCounterTTL = 24 * time.Hour

	stateKeyPrefix   = "breaker:state:"
	failureKeyPrefix = "breaker:failures:"
)

// State is the persisted circuit record.
type State struct {
	Status    Status    `json:"status"`
	OpenUntil time.Time `json:"open_until,omitempty"`
}

// Snapshot is a read-only view used by health reporting.
type Snapshot struct {
	Status    Status    `json:"status"`
	OpenUntil time.Time `json:"open_until,omitempty"`
	Failures  int       `json:"failures"`
}

// Breaker evaluates and updates per-account circuits.
type Breaker struct {
	store  store.Store
	clock  store.Clock
	logger zerolog.Logger
}

// New creates a Breaker over s. A nil clock uses the system clock.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(s store.Store, clock store.Clock, logger zerolog.Logger) *Breaker {
	if clock == nil {
		clock = store.SystemClock{}
	}
	return &Breaker{store: s, clock: clock, logger: logger.With().Str("component", "breaker").Logger()}
}

// IsAvailable reports whether a call for accountID may proceed. An open
// circuit whose cooldown has elapsed moves to half_open and admits the probe.
func (b *Breaker) IsAvailable(ctx context.Context, accountID string) bool {
	st, err := b.load(ctx, accountID)
	if err != nil {
		// Store trouble must not silently block delivery forever.
		b.logger.Warn().Err(err).Str("account_id", accountID).Msg("[CIRCUIT BREAKER] state unreadable, treating as closed")
		return true
	}

	switch st.Status {
	case StatusOpen:
		if b.clock.Now().Before(st.OpenUntil) {
			return false
		}
		b.transition(ctx, accountID, st.Status, State{Status: StatusHalfOpen})
		return true
	default:
		return true
	}
}

// RecordSuccess closes a half-open circuit and resets the failure streak.
func (b *Breaker) RecordSuccess(ctx context.Context, accountID string) {
	st, err := b.load(ctx, accountID)
	if err != nil {
		b.logger.Warn().Err(err).Str("account_id", accountID).Msg("[CIRCUIT BREAKER] state unreadable on success")
		st = State{Status: StatusClosed}
	}

	if st.Status == StatusHalfOpen || st.Status == StatusOpen {
		b.transition(ctx, accountID, st.Status, State{Status: StatusClosed})
	}
	b.clearFailures(ctx, accountID)
}

// RecordFailure counts a failure. A failed half-open probe reopens at once.
func (b *Breaker) RecordFailure(ctx context.Context, accountID string) {
	st, err := b.load(ctx, accountID)
	if err != nil {
		b.logger.Warn().Err(err).Str("account_id", accountID).Msg("[CIRCUIT BREAKER] state unreadable on failure")
		st = State{Status: StatusClosed}
	}

	if st.Status == StatusHalfOpen || st.Status == StatusOpen {
		b.open(ctx, accountID, st.Status)
		return
	}

	failures := b.failures(ctx, accountID) + 1
	if failures >= FailureThreshold {
		b.open(ctx, accountID, st.Status)
		return
	}
	if err := b.store.Set(ctx, failureKeyPrefix+accountID, []byte(strconv.Itoa(failures)), failureCounterTTL); err != nil {
		b.logger.Warn().Err(err).Str("account_id", accountID).Msg("[CIRCUIT BREAKER] failed to persist failure count")
	}
}

// State returns the stored circuit without performing any transition.
func (b *Breaker) State(ctx context.Context, accountID string) Snapshot {
	st, err := b.load(ctx, accountID)
	if err != nil {
		st = State{Status: StatusClosed}
	}
	return Snapshot{Status: st.Status, OpenUntil: st.OpenUntil, Failures: b.failures(ctx, accountID)}
}

// Reset forgets all circuit state for accountID (used when an account is removed).
func (b *Breaker) Reset(ctx context.Context, accountID string) error {
	if err := b.store.Delete(ctx, stateKeyPrefix+accountID); err != nil {
		return fmt.Errorf("reset breaker state: %w", err)
	}
	if err := b.store.Delete(ctx, failureKeyPrefix+accountID); err != nil {
		return fmt.Errorf("reset breaker failures: %w", err)
	}
	return nil
}

func (b *Breaker) open(ctx context.Context, accountID string, from Status) {
	b.transition(ctx, accountID, from, State{Status: StatusOpen, OpenUntil: b.clock.Now().Add(Cooldown)})
	b.clearFailures(ctx, accountID)
}

func (b *Breaker) transition(ctx context.Context, accountID string, from Status, to State) {
	if err := store.SetJSON(ctx, b.store, stateKeyPrefix+accountID, to, 0); err != nil {
		b.logger.Error().Err(err).Str("account_id", accountID).Msg("[CIRCUIT BREAKER] failed to persist state")
		return
	}

	metrics.RecordAccountCircuit(accountID, string(from), string(to.Status))

	evt := b.logger.Info()
	if to.Status == StatusOpen {
		evt = b.logger.Warn().Time("open_until", to.OpenUntil)
	}
	evt.Str("account_id", accountID).
		Str("from", string(from)).
		Str("to", string(to.Status)).
		Msg("[CIRCUIT BREAKER] State transition")
}

func (b *Breaker) load(ctx context.Context, accountID string) (State, error) {
	var st State
	found, err := store.GetJSON(ctx, b.store, stateKeyPrefix+accountID, &st)
	if err != nil {
		return State{Status: StatusClosed}, err
	}
	if !found || st.Status == "" {
		return State{Status: StatusClosed}, nil
	}
	return st, nil
}

func (b *Breaker) failures(ctx context.Context, accountID string) int {
	raw, err := b.store.Get(ctx, failureKeyPrefix+accountID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			b.logger.Warn().Err(err).Str("account_id", accountID).Msg("[CIRCUIT BREAKER] failed to read failure count")
		}
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0
	}
	return n
}

func (b *Breaker) clearFailures(ctx context.Context, accountID string) {
	if err := b.store.Delete(ctx, failureKeyPrefix+accountID); err != nil {
		b.logger.Warn().Err(err).Str("account_id", accountID).Msg("[CIRCUIT BREAKER] failed to clear failure count")
	}
}
