// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/logging"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

const keyPrefix = "job:"

// ErrJobNotFound is returned when a job id has no stored record.
var ErrJobNotFound = errors.New("jobqueue: job not found")

// Job is a persisted unit of deferred work.
type Job struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	RunAt     time.Time       `json:"run_at"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`

	// Durable lease. A zero or past LeaseExpiry means the job is unclaimed.
	LeaseHolder string    `json:"lease_holder,omitempty"`
	LeaseExpiry time.Time `json:"lease_expiry,omitempty"`
}

// Queue stores jobs in a key/value store.
type Queue struct {
	store         store.Store
	clock         store.Clock
	leaseDuration time.Duration

	// mu serializes claim read-modify-write within this process.
	mu sync.Mutex
}

// NewQueue creates a queue over s. A nil clock uses the system clock;
// a non-positive leaseDuration falls back to the default.
func NewQueue(s store.Store, clock store.Clock, leaseDuration time.Duration) *Queue {
	if clock == nil {
		clock = store.SystemClock{}
	}
	if leaseDuration <= 0 {
		leaseDuration = DefaultConfig().LeaseDuration
	}
	return &Queue{store: s, clock: clock, leaseDuration: leaseDuration}
}

// Clock returns the queue's time source.
func (q *Queue) Clock() store.Clock {
	return q.clock
}

// Schedule persists a job that becomes due at runAt. payload is encoded as JSON.
func (q *Queue) Schedule(ctx context.Context, name string, payload interface{}, runAt time.Time) (string, error) {
	if name == "" {
		return "", errors.New("jobqueue: job name is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", name, err)
	}

	job := Job{
		ID:        uuid.New().String(),
		Name:      name,
		Payload:   data,
		RunAt:     runAt.UTC(),
		CreatedAt: q.clock.Now().UTC(),
	}
	if err := q.save(ctx, &job); err != nil {
		return "", err
	}
	recordScheduled(name)
	return job.ID, nil
}

// Get loads a job by id.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	found, err := store.GetJSON(ctx, q.store, keyPrefix+id, &job)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrJobNotFound
	}
	return &job, nil
}

// Pending returns every stored job ordered by RunAt. Records that do not
// decode are logged and skipped so one bad entry cannot stall the queue.
func (q *Queue) Pending(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	err := q.store.Scan(ctx, keyPrefix, func(key string, value []byte) error {
		var job Job
		if err := json.Unmarshal(value, &job); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("Skipping undecodable job record")
			return nil
		}
		jobs = append(jobs, &job)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].RunAt.Before(jobs[j].RunAt)
	})
	return jobs, nil
}

// Due returns jobs whose RunAt is not after now and that hold no live lease.
func (q *Queue) Due(ctx context.Context) ([]*Job, error) {
	all, err := q.Pending(ctx)
	if err != nil {
		return nil, err
	}
	now := q.clock.Now()
	due := make([]*Job, 0, len(all))
	for _, job := range all {
		if job.RunAt.After(now) {
			break
		}
		if leased(job, now) {
			continue
		}
		due = append(due, job)
	}
	return due, nil
}

func leased(job *Job, now time.Time) bool {
	return !job.LeaseExpiry.IsZero() && now.Before(job.LeaseExpiry)
}

// TryClaim reserves a job for holder until now + lease duration.
//
// Returns:
//   - (true, nil): lease acquired (or extended by the same holder)
//   - (false, nil): another holder has a live lease
//   - (false, ErrJobNotFound): the job was completed or dropped meanwhile
func (q *Queue) TryClaim(ctx context.Context, id, holder string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.Get(ctx, id)
	if err != nil {
		return false, err
	}
	now := q.clock.Now()
	if leased(job, now) && job.LeaseHolder != holder {
		return false, nil
	}
	job.LeaseHolder = holder
	job.LeaseExpiry = now.Add(q.leaseDuration).UTC()
	if err := q.save(ctx, job); err != nil {
		return false, err
	}
	return true, nil
}

// Release drops a lease without recording an attempt.
func (q *Queue) Release(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	job.LeaseHolder = ""
	job.LeaseExpiry = time.Time{}
	return q.save(ctx, job)
}

// Complete removes a finished job.
func (q *Queue) Complete(ctx context.Context, id string) error {
	return q.store.Delete(ctx, keyPrefix+id)
}

// Retry records a failed attempt, releases the lease and moves RunAt to next.
func (q *Queue) Retry(ctx context.Context, id string, cause error, next time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	job.Attempts++
	if cause != nil {
		job.LastError = cause.Error()
	}
	job.RunAt = next.UTC()
	job.LeaseHolder = ""
	job.LeaseExpiry = time.Time{}
	return q.save(ctx, job)
}

// Stats summarizes the queue.
type Stats struct {
	Pending     int       `json:"pending"`
	Due         int       `json:"due"`
	Leased      int       `json:"leased"`
	MaxAttempts int       `json:"max_attempts"`
	NextRunAt   time.Time `json:"next_run_at,omitempty"`
}

// Stats returns current queue statistics.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	jobs, err := q.Pending(ctx)
	if err != nil {
		return Stats{}, err
	}
	now := q.clock.Now()
	stats := Stats{Pending: len(jobs)}
	for _, job := range jobs {
		switch {
		case leased(job, now):
			stats.Leased++
		case !job.RunAt.After(now):
			stats.Due++
		}
		if job.Attempts > stats.MaxAttempts {
			stats.MaxAttempts = job.Attempts
		}
		if stats.NextRunAt.IsZero() || job.RunAt.Before(stats.NextRunAt) {
			stats.NextRunAt = job.RunAt
		}
	}
	return stats, nil
}

func (q *Queue) save(ctx context.Context, job *Job) error {
	if err := store.SetJSON(ctx, q.store, keyPrefix+job.ID, job, 0); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}
