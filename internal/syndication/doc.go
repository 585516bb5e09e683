// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

/*
Package syndication publishes locally authored content to the configured
Bluesky accounts and tracks the outcome per account.

# Job Processing

A Job names one content item, an ordered list of account ids and an attempt
number. Orchestrator.Process walks the accounts sequentially:

 1. An account whose ledger entry already records a success is skipped.
 2. An open circuit defers the whole remaining batch by breaker.Cooldown
    and stops the run.
 3. A rate-limited account is rescheduled after the limiter's wait; the
    attempt number is not consumed.
 4. Otherwise the post is created. Success clears the account's auth flag.
    Failure counts against the breaker (429s never do), is classified from
    the returned error, and is retried after 60s and 120s before the ledger
    records a final failure.
 5. The aggregate item status is recomputed from the ledger.

# Delivery Strategies

Two Deliverer implementations share the same contract:

  - AsyncScheduler writes jobs to the durable job queue; the queue worker
    calls AsyncScheduler.Handle.
  - SynchronousExecutor runs the first attempt in the caller's goroutine and
    defers retries with in-process timers, which are lost on restart.

SelectDeliverer picks one at startup and binds it to the orchestrator.

# Operator Surface

Service adds content submission, target selection by auto_syndicate and
category rules, manual retry, per-item status, unlinking and a passive
HealthReport that reads breaker, limiter and auth-flag state without calling
the remote service.
*/
package syndication
