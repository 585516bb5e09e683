// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package syndication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/jobqueue"
)

// JobName is the job queue name of syndication jobs.
const JobName = "syndicate"

// Delivery modes.
const (
	ModeAsync = "async"
	ModeSync  = "sync"
)

// Deliverer starts syndication of an item and runs reschedules.
type Deliverer interface {
	Scheduler

	// Deliver starts a first attempt for accountIDs.
	Deliver(ctx context.Context, contentID string, accountIDs []string) error

	// Mode reports "async" or "sync".
	Mode() string
}

// AsyncScheduler hands every job to the durable job queue.
type AsyncScheduler struct {
	queue *jobqueue.Queue
	orch  *Orchestrator
}

// NewAsyncScheduler creates the queue-backed strategy. Register Handle with
// the worker under JobName.
func NewAsyncScheduler(q *jobqueue.Queue, orch *Orchestrator) *AsyncScheduler {
	return &AsyncScheduler{queue: q, orch: orch}
}

// Deliver enqueues a first attempt due immediately.
func (a *AsyncScheduler) Deliver(ctx context.Context, contentID string, accountIDs []string) error {
	return a.Schedule(ctx, Job{ContentID: contentID, AccountIDs: accountIDs, Attempt: 1}, 0)
}

// Schedule enqueues job to run after delay.
func (a *AsyncScheduler) Schedule(ctx context.Context, job Job, delay time.Duration) error {
	if len(job.AccountIDs) == 0 {
		return nil
	}
	runAt := a.queue.Clock().Now().Add(delay)
	if _, err := a.queue.Schedule(ctx, JobName, job, runAt); err != nil {
		return fmt.Errorf("enqueue syndication job: %w", err)
	}
	return nil
}

// Handle is the job queue handler for JobName.
func (a *AsyncScheduler) Handle(ctx context.Context, payload json.RawMessage) error {
	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		// A payload that cannot be decoded will never succeed; drop it.
		a.orch.logger.Error().Err(err).Msg("Discarding malformed syndication job")
		return nil
	}
	return a.orch.Process(ctx, job)
}

// Mode implements Deliverer.
func (a *AsyncScheduler) Mode() string { return ModeAsync }

// SynchronousExecutor runs first attempts inline and reschedules with
// in-process timers. Timers do not survive a restart.
type SynchronousExecutor struct {
	orch    *Orchestrator
	logger  zerolog.Logger
	timeout time.Duration

	// afterFunc is time.AfterFunc unless replaced in tests.
	afterFunc func(d time.Duration, f func()) stopper

	mu      sync.Mutex
	timers  map[int]stopper
	nextID  int
	stopped bool
	wg      sync.WaitGroup
}

type stopper interface {
	Stop() bool
}

// NewSynchronousExecutor creates the in-process strategy. timeout bounds
// each deferred run.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSynchronousExecutor(orch *Orchestrator, timeout time.Duration, logger zerolog.Logger) *SynchronousExecutor {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &SynchronousExecutor{
		orch:    orch,
		logger:  logger.With().Str("component", "sync-executor").Logger(),
		timeout: timeout,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
		timers: make(map[int]stopper),
	}
}

// Deliver runs the first attempt in the caller's goroutine.
func (s *SynchronousExecutor) Deliver(ctx context.Context, contentID string, accountIDs []string) error {
	if len(accountIDs) == 0 {
		return nil
	}
	return s.orch.Process(ctx, Job{ContentID: contentID, AccountIDs: accountIDs, Attempt: 1})
}

// Schedule arms a timer that processes job after delay.
func (s *SynchronousExecutor) Schedule(_ context.Context, job Job, delay time.Duration) error {
	if len(job.AccountIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("synchronous executor stopped, job for %s dropped", job.ContentID)
	}

	id := s.nextID
	s.nextID++
	s.wg.Add(1)
	s.timers[id] = s.afterFunc(delay, func() {
		defer s.wg.Done()
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.orch.Process(ctx, job); err != nil {
			s.logger.Error().Err(err).Str("content_id", job.ContentID).Msg("Deferred syndication failed")
		}
	})
	return nil
}

// Pending returns the number of armed timers.
func (s *SynchronousExecutor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels armed timers and waits for running ones.
func (s *SynchronousExecutor) Stop() error {
	s.mu.Lock()
	s.stopped = true
	cancelled := 0
	for id, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
			cancelled++
		}
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	if cancelled > 0 {
		s.logger.Warn().Int("cancelled", cancelled).Msg("Deferred syndication jobs discarded at shutdown")
	}
	return nil
}

// Mode implements Deliverer.
func (s *SynchronousExecutor) Mode() string { return ModeSync }

// SelectDeliverer picks the async strategy when requested and a queue is
// available, and the synchronous one otherwise. The orchestrator is bound
// to the returned strategy.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func SelectDeliverer(async bool, q *jobqueue.Queue, orch *Orchestrator, logger zerolog.Logger) Deliverer {
	var d Deliverer
	if async && q != nil {
		d = NewAsyncScheduler(q, orch)
	} else {
		d = NewSynchronousExecutor(orch, 0, logger)
	}
	orch.SetScheduler(d)
	logger.Info().Str("mode", d.Mode()).Msg("Syndication delivery strategy selected")
	return d
}
