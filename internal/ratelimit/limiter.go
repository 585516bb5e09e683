// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

// Package ratelimit tracks per-account HTTP 429 cooldowns in the shared store.
//
// An explicit Retry-After (delta-seconds or HTTP-date) is authoritative and
// resets the backoff attempt counter. Without one, the wait is taken from
// BaseDelays indexed by the attempt counter, perturbed by ±20% jitter, and
// the counter is incremented. The counter outlives restarts for up to a week
// so repeated bursts keep escalating.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/metrics"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

// BaseDelays are the computed backoff buckets.
var BaseDelays = []time.Duration{60 * time.Second, 120 * time.Second, 300 * time.Second}

const (
	// JitterFraction is the symmetric jitter applied to computed delays.
	JitterFraction = 0.2

	attemptsTTL = 7 * 24 * time.Hour

	// MaxRetryAfter caps any server-supplied wait.
	MaxRetryAfter = 7 * 24 * time.Hour

	untilKeyPrefix    = "ratelimit:until:"
	attemptsKeyPrefix = "ratelimit:attempts:"
)

// Limiter persists cooldown deadlines per account.
type Limiter struct {
	store  store.Store
	clock  store.Clock
	rand   func() float64
	logger zerolog.Logger
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithRand replaces the jitter source. fn must return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(l *Limiter) { l.rand = fn }
}

// New creates a Limiter. A nil clock uses the system clock.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(s store.Store, clock store.Clock, logger zerolog.Logger, opts ...Option) *Limiter {
	if clock == nil {
		clock = store.SystemClock{}
	}
	l := &Limiter{
		store:  s,
		clock:  clock,
		rand:   rand.Float64,
		logger: logger.With().Str("component", "ratelimit").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check inspects a response status and headers. It returns false (and does
// nothing) unless status is 429, in which case the cooldown is persisted.
func (l *Limiter) Check(ctx context.Context, accountID string, status int, header http.Header) bool {
	if status != http.StatusTooManyRequests {
		return false
	}

	now := l.clock.Now()
	var wait time.Duration
	explicit := false

	if d, ok := ParseRetryAfter(header.Get("Retry-After"), now); ok {
		wait = d
		explicit = true
		if err := l.store.Delete(ctx, attemptsKeyPrefix+accountID); err != nil {
			l.logger.Warn().Err(err).Str("account_id", accountID).Msg("Failed to reset backoff attempts")
		}
	} else {
		attempt := l.Attempts(ctx, accountID)
		wait = l.backoff(attempt)
		if err := l.store.Set(ctx, attemptsKeyPrefix+accountID, []byte(strconv.Itoa(attempt+1)), attemptsTTL); err != nil {
			l.logger.Warn().Err(err).Str("account_id", accountID).Msg("Failed to persist backoff attempts")
		}
	}

	// The stored value outlives the wait by a second so IsLimited can
	// observe the transition and clear the attempt counter lazily.
	deadline := now.Add(wait)
	ttl := wait + time.Second
	if err := l.store.Set(ctx, untilKeyPrefix+accountID, []byte(strconv.FormatInt(deadline.UnixMilli(), 10)), ttl); err != nil {
		l.logger.Error().Err(err).Str("account_id", accountID).Msg("Failed to persist rate limit deadline")
	}

	metrics.RecordRateLimitHit(explicit)
	l.logger.Warn().
		Str("account_id", accountID).
		Bool("explicit", explicit).
		Dur("wait", wait).
		Time("retry_until", deadline).
		Msg("Rate limited by remote service")

	return true
}

// IsLimited reports whether accountID is inside a cooldown. An elapsed
// deadline is cleared together with the attempt counter.
func (l *Limiter) IsLimited(ctx context.Context, accountID string) bool {
	deadline, ok := l.deadline(ctx, accountID)
	if !ok {
		return false
	}
	if l.clock.Now().Before(deadline) {
		return true
	}

	if err := l.Clear(ctx, accountID); err != nil {
		l.logger.Warn().Err(err).Str("account_id", accountID).Msg("Failed to clear elapsed rate limit")
	}
	return false
}

// RetryAfter returns the remaining cooldown, or 0 when not limited.
func (l *Limiter) RetryAfter(ctx context.Context, accountID string) time.Duration {
	if !l.IsLimited(ctx, accountID) {
		return 0
	}
	deadline, ok := l.deadline(ctx, accountID)
	if !ok {
		return 0
	}
	if d := deadline.Sub(l.clock.Now()); d > 0 {
		return d
	}
	return 0
}

// Attempts returns the current computed-backoff attempt counter.
func (l *Limiter) Attempts(ctx context.Context, accountID string) int {
	raw, err := l.store.Get(ctx, attemptsKeyPrefix+accountID)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Clear removes all limiter state for accountID.
func (l *Limiter) Clear(ctx context.Context, accountID string) error {
	if err := l.store.Delete(ctx, untilKeyPrefix+accountID); err != nil {
		return fmt.Errorf("clear rate limit deadline: %w", err)
	}
	if err := l.store.Delete(ctx, attemptsKeyPrefix+accountID); err != nil {
		return fmt.Errorf("clear backoff attempts: %w", err)
	}
	return nil
}

func (l *Limiter) deadline(ctx context.Context, accountID string) (time.Time, bool) {
	raw, err := l.store.Get(ctx, untilKeyPrefix+accountID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			l.logger.Warn().Err(err).Str("account_id", accountID).Msg("Failed to read rate limit deadline")
		}
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// backoff returns BaseDelays[min(attempt, last)] ± JitterFraction.
func (l *Limiter) backoff(attempt int) time.Duration {
	idx := attempt
	if idx >= len(BaseDelays) {
		idx = len(BaseDelays) - 1
	}
	if idx < 0 {
		idx = 0
	}
	base := float64(BaseDelays[idx])
	factor := 1 + JitterFraction*(2*l.rand()-1)
	return time.Duration(math.Round(base * factor))
}

// ParseRetryAfter interprets a Retry-After value as delta-seconds or an
// HTTP-date relative to now. Past dates and garbage report false; waits
// beyond MaxRetryAfter are clamped to it.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		if secs > int64(MaxRetryAfter/time.Second) {
			return MaxRetryAfter, true
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(value); err == nil {
		d := t.Sub(now)
		if d <= 0 {
			return 0, false
		}
		return min(d, MaxRetryAfter), true
	}
	return 0, false
}
