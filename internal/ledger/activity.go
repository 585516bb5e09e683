// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package ledger

import (
	"context"
	"crypto/rand"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

// EventType categorizes activity events.
type EventType string

const (
	EventSyndicationSuccess EventType = "syndication_success"
	EventSyndicationFailed  EventType = "syndication_failed"
	EventRateLimited        EventType = "rate_limited"
	EventCircuitOpen        EventType = "circuit_open"
	EventRetryScheduled     EventType = "retry_scheduled"
	EventAuthError          EventType = "auth_error"
	EventManualRetry        EventType = "manual_retry"
)

// ActivityCapacity is the number of events retained.
const ActivityCapacity = 10

const activityKey = "activity:log"

// Event is one human-readable activity log line.
type Event struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	ContentID string    `json:"content_id,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
}

// ActivityLog is a bounded FIFO of recent events kept in the store.
// The mutex serializes writers within this process only.
type ActivityLog struct {
	store   store.Store
	clock   store.Clock
	mu      sync.Mutex
	entropy io.Reader
}

// NewActivityLog creates an ActivityLog. A nil clock uses the system clock.
func NewActivityLog(s store.Store, clock store.Clock) *ActivityLog {
	if clock == nil {
		clock = store.SystemClock{}
	}
	return &ActivityLog{
		store:   s,
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Log appends an event and drops the oldest beyond ActivityCapacity.
func (a *ActivityLog) Log(ctx context.Context, typ EventType, message, contentID, accountID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	events, err := a.load(ctx)
	if err != nil {
		return err
	}

	now := a.clock.Now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), a.entropy)
	if err != nil {
		return err
	}
	events = append(events, Event{
		ID:        id.String(),
		Time:      now,
		Type:      typ,
		Message:   message,
		ContentID: contentID,
		AccountID: accountID,
	})
	if len(events) > ActivityCapacity {
		events = events[len(events)-ActivityCapacity:]
	}
	return store.SetJSON(ctx, a.store, activityKey, events, 0)
}

// Recent returns events newest first. A non-empty typ filters by type.
func (a *ActivityLog) Recent(ctx context.Context, typ EventType) ([]Event, error) {
	events, err := a.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Event, 0, len(events))
	for _, e := range events {
		if typ == "" || e.Type == typ {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.After(out[j].Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (a *ActivityLog) load(ctx context.Context) ([]Event, error) {
	var events []Event
	if _, err := store.GetJSON(ctx, a.store, activityKey, &events); err != nil {
		return nil, err
	}
	return events, nil
}
