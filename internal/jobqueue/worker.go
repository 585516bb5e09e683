// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// maxBackoff caps handler retry delays.
const maxBackoff = 5 * time.Minute

// Handler processes one job payload. Returning an error schedules a retry.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Worker polls a Queue and dispatches due jobs to registered handlers.
type Worker struct {
	queue       *Queue
	config      Config
	logger      zerolog.Logger
	leaseHolder string // Unique identifier for durable leasing

	hmu      sync.RWMutex
	handlers map[string]Handler

	// Control
	ctx    context.Context
	cancel context.CancelFunc

	// State - all protected by mu
	mu       sync.Mutex
	running  bool
	stopping bool          // true while Stop() is waiting for goroutine
	stopDone chan struct{} // closed when the loop goroutine exits
}

// NewWorker creates a worker for q. Zero config fields take DefaultConfig values.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewWorker(q *Queue, cfg Config, logger zerolog.Logger) *Worker {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = def.LeaseDuration
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	return &Worker{
		queue:       q,
		config:      cfg,
		logger:      logger.With().Str("component", "jobqueue-worker").Logger(),
		leaseHolder: fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		handlers:    make(map[string]Handler),
	}
}

// Register binds a handler to a job name, replacing any previous binding.
func (w *Worker) Register(name string, h Handler) {
	w.hmu.Lock()
	w.handlers[name] = h
	w.hmu.Unlock()
}

func (w *Worker) handler(name string) (Handler, bool) {
	w.hmu.RLock()
	defer w.hmu.RUnlock()
	h, ok := w.handlers[name]
	return h, ok
}

// Start begins the background poll loop. Due jobs are processed once
// immediately so work left over from a previous run is picked up on boot.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()

	// Wait for any in-progress Stop() to complete
	for w.stopping {
		stopDone := w.stopDone
		w.mu.Unlock()
		<-stopDone
		w.mu.Lock()
	}

	if w.running {
		w.mu.Unlock()
		return nil
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	w.stopDone = make(chan struct{})

	// Capture context and done channel to avoid races with Stop
	loopCtx := w.ctx
	done := w.stopDone

	w.mu.Unlock()

	go w.run(loopCtx, done)

	w.logger.Info().
		Dur("interval", w.config.PollInterval).
		Int("max_attempts", w.config.MaxAttempts).
		Str("lease_holder", w.leaseHolder).
		Msg("Job worker started")
	return nil
}

// Stop halts the loop and waits for the in-flight job to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running || w.stopping {
		w.mu.Unlock()
		return nil
	}

	w.cancel()
	w.running = false
	w.stopping = true
	stopDone := w.stopDone
	w.mu.Unlock()

	<-stopDone

	w.mu.Lock()
	w.stopping = false
	w.mu.Unlock()

	w.logger.Info().Msg("Job worker stopped")
	return nil
}

// IsRunning reports whether the loop is active.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// result tracks the outcome of processing a single job.
type result int

const (
	resultSuccess result = iota
	resultRetry
	resultDropped
	resultSkipped
)

// RunOnce processes every currently due job sequentially and returns the
// number of jobs whose handler succeeded.
func (w *Worker) RunOnce(ctx context.Context) int {
	jobs, err := w.queue.Due(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Job worker: failed to list due jobs")
		return 0
	}

	var success, retried, dropped int
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			return success
		default:
		}

		switch w.process(ctx, job) {
		case resultSuccess:
			success++
		case resultRetry:
			retried++
		case resultDropped:
			dropped++
		}
	}

	if stats, err := w.queue.Stats(ctx); err == nil {
		setPending(stats.Pending)
	}

	if success > 0 || retried > 0 || dropped > 0 {
		w.logger.Debug().
			Int("succeeded", success).
			Int("retried", retried).
			Int("dropped", dropped).
			Msg("Job worker pass complete")
	}
	return success
}

func (w *Worker) process(ctx context.Context, job *Job) result {
	claimed, err := w.queue.TryClaim(ctx, job.ID, w.leaseHolder)
	if errors.Is(err, ErrJobNotFound) {
		return resultSkipped
	}
	if err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Job worker: error claiming job")
		return resultSkipped
	}
	if !claimed {
		return resultSkipped
	}

	log := w.logger.With().Str("job_id", job.ID).Str("job", job.Name).Int("attempts", job.Attempts).Logger()

	if job.Attempts >= w.config.MaxAttempts {
		log.Error().Str("last_error", job.LastError).Msg("Job exceeded max attempts, dropping")
		w.drop(ctx, job)
		recordProcessed(job.Name, "dropped", 0)
		return resultDropped
	}

	h, ok := w.handler(job.Name)
	if !ok {
		log.Error().Msg("No handler registered for job, dropping")
		w.drop(ctx, job)
		recordProcessed(job.Name, "dropped", 0)
		return resultDropped
	}

	start := time.Now()
	err = w.invoke(ctx, h, job)
	elapsed := time.Since(start)

	if err == nil {
		if cerr := w.queue.Complete(ctx, job.ID); cerr != nil {
			log.Error().Err(cerr).Msg("Job worker: failed to delete completed job")
		}
		recordProcessed(job.Name, "success", elapsed)
		return resultSuccess
	}

	if job.Attempts+1 >= w.config.MaxAttempts {
		log.Error().Err(err).Msg("Job failed on final attempt, dropping")
		w.drop(ctx, job)
		recordProcessed(job.Name, "dropped", elapsed)
		return resultDropped
	}

	delay := w.calculateBackoff(job.Attempts)
	next := w.queue.Clock().Now().Add(delay)
	if rerr := w.queue.Retry(ctx, job.ID, err, next); rerr != nil {
		log.Error().Err(rerr).Msg("Job worker: failed to reschedule job")
	}
	log.Warn().Err(err).Dur("backoff", delay).Msg("Job failed, will retry")
	recordProcessed(job.Name, "retry", elapsed)
	return resultRetry
}

// invoke runs h with the handler timeout and converts a panic into an error.
func (w *Worker) invoke(ctx context.Context, h Handler, job *Job) (err error) {
	if w.config.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.HandlerTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job.Payload)
}

func (w *Worker) drop(ctx context.Context, job *Job) {
	if err := w.queue.Complete(ctx, job.ID); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Job worker: failed to delete dropped job")
	}
}

// calculateBackoff returns base * 2^attempts, capped at 5 minutes.
func (w *Worker) calculateBackoff(attempts int) time.Duration {
	if attempts > 30 {
		return maxBackoff
	}
	backoff := time.Duration(float64(w.config.RetryBackoff) * math.Pow(2, float64(attempts)))
	if backoff <= 0 || backoff > maxBackoff {
		backoff = maxBackoff
	}
	return backoff
}
