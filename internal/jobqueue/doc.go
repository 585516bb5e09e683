// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

/*
Package jobqueue provides a small durable job queue on top of the shared
key/value store.

Jobs are persisted at "job:<id>" with a name, a JSON payload and a run_at
timestamp. A Worker polls for due jobs, claims each one with a durable lease
and dispatches it to the handler registered under the job's name.

# Delivery Guarantees

Execution is at-least-once:

  - A job is deleted only after its handler returns nil.
  - A process that crashes mid-job leaves the lease behind; it expires after
    LeaseDuration and another worker (or the restarted process) claims it.
  - Handler errors reschedule the job with exponential backoff
    (RetryBackoff * 2^attempts, capped at 5 minutes) until MaxAttempts is
    reached, after which the job is dropped with an error log.

Handlers must therefore be idempotent. The syndication handler is: it skips
accounts whose ledger entry already records a success.

# Usage

	q := jobqueue.NewQueue(kv, clock, cfg.LeaseDuration)
	w := jobqueue.NewWorker(q, cfg, logger)
	w.Register("syndicate", handler)
	_ = w.Start(ctx)
	defer w.Stop()

	id, err := q.Schedule(ctx, "syndicate", payload, time.Now().Add(time.Minute))
*/
package jobqueue
