// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package syndication

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/accounts"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/breaker"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/ledger"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/logging"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/metrics"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/ratelimit"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

// MaxAttempts is the number of attempts per account before a failure is final.
const MaxAttempts = 3

// RetryDelays are the delays before attempts 2 and 3 (and a fallback for
// anything beyond).
var RetryDelays = []time.Duration{60 * time.Second, 120 * time.Second, 300 * time.Second}

const (
	// InterruptedDelay is how long accounts left over by an interrupted
	// job wait before they are tried again.
	InterruptedDelay = 30 * time.Second

	// settleTimeout bounds the store writes that follow a remote call.
	settleTimeout = 10 * time.Second
)

// Job is the payload of one syndication run.
type Job struct {
	ContentID  string   `json:"content_id"`
	AccountIDs []string `json:"account_ids"`
	Attempt    int      `json:"attempt"`
}

// Scheduler runs a job later. It is implemented by the delivery strategies.
type Scheduler interface {
	Schedule(ctx context.Context, job Job, delay time.Duration) error
}

// AccountSource resolves registered accounts.
type AccountSource interface {
	Get(ctx context.Context, id string) (accounts.Account, error)
	List(ctx context.Context) ([]accounts.Account, error)
}

// Publisher creates a post on behalf of an account.
type Publisher interface {
	Publish(ctx context.Context, creds bluesky.Credentials, in bluesky.PostInput) (*bluesky.PostInfo, error)
}

// ClientPublisher adapts a shared bluesky.Client to Publisher.
type ClientPublisher struct {
	Client *bluesky.Client
}

// Publish authenticates as creds and creates the post.
func (p ClientPublisher) Publish(ctx context.Context, creds bluesky.Credentials, in bluesky.PostInput) (*bluesky.PostInfo, error) {
	return p.Client.Account(creds).CreatePost(ctx, in)
}

// Deps are the collaborators of an Orchestrator. They are built once at
// startup and shared by every job.
type Deps struct {
	Accounts  AccountSource
	Publisher Publisher
	Breaker   *breaker.Breaker
	Limiter   *ratelimit.Limiter
	Ledger    *ledger.Ledger
	Activity  *ledger.ActivityLog
	Content   *ContentStore
	Store     store.Store
	Clock     store.Clock
	Logger    zerolog.Logger

	// Host reports the shared remote-service breaker for health output. Optional.
	Host HostStatus
}

// HostStatus exposes the state of the host-level breaker.
type HostStatus interface {
	HostState() string
}

// Orchestrator executes syndication jobs.
type Orchestrator struct {
	accounts  AccountSource
	publisher Publisher
	breaker   *breaker.Breaker
	limiter   *ratelimit.Limiter
	ledger    *ledger.Ledger
	activity  *ledger.ActivityLog
	content   *ContentStore
	store     store.Store
	clock     store.Clock
	logger    zerolog.Logger
	host      HostStatus

	scheduler Scheduler
}

// NewOrchestrator creates an Orchestrator. SetScheduler must be called
// before the first job runs.
//
//nolint:gocritic // Deps carries a zerolog.Logger by value
func NewOrchestrator(d Deps) *Orchestrator {
	if d.Clock == nil {
		d.Clock = store.SystemClock{}
	}
	return &Orchestrator{
		accounts:  d.Accounts,
		publisher: d.Publisher,
		breaker:   d.Breaker,
		limiter:   d.Limiter,
		ledger:    d.Ledger,
		activity:  d.Activity,
		content:   d.Content,
		store:     d.Store,
		clock:     d.Clock,
		logger:    d.Logger.With().Str("component", "syndication").Logger(),
		host:      d.Host,
	}
}

// SetScheduler binds the delivery strategy used for reschedules.
func (o *Orchestrator) SetScheduler(s Scheduler) {
	o.scheduler = s
}

// Process runs one job: every account in order, then the item status is
// recomputed. Per-account failures are recorded, not returned; the error
// result reports storage failures only.
//
// Once a remote call has returned, its outcome is written under a context
// detached from ctx: losing a success entry to an expired job deadline
// would make the rerun post twice. Accounts not yet contacted when ctx
// ends are handed to a new job.
func (o *Orchestrator) Process(ctx context.Context, job Job) error {
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	ctx = logging.ContextWithLogger(ctx, o.logger.With().Int("attempt", job.Attempt).Logger())
	ctx = logging.ContextWithContent(logging.ContextWithNewCorrelationID(ctx), job.ContentID)
	log := logging.Ctx(ctx)

	if ctx.Err() != nil {
		o.deferInterrupted(ctx, job, job.AccountIDs)
		return nil
	}

	item, err := o.content.Get(ctx, job.ContentID)
	if errors.Is(err, ErrContentNotFound) {
		log.Warn().Msg("Content no longer exists, dropping syndication job")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load content %s: %w", job.ContentID, err)
	}
	input := item.PostInput()

	for i, accountID := range job.AccountIDs {
		if ctx.Err() != nil {
			o.deferInterrupted(ctx, job, job.AccountIDs[i:])
			break
		}
		actx := logging.ContextWithAccount(ctx, accountID)

		done, err := o.ledger.HasSuccess(actx, job.ContentID, accountID)
		if err != nil && ctx.Err() != nil {
			o.deferInterrupted(ctx, job, job.AccountIDs[i:])
			break
		}
		if err != nil {
			return fmt.Errorf("read ledger %s: %w", job.ContentID, err)
		}
		if done {
			continue
		}

		acct, err := o.accounts.Get(actx, accountID)
		if errors.Is(err, accounts.ErrNotFound) {
			logging.Ctx(actx).Warn().Msg("Account removed, skipping")
			continue
		}
		if err != nil && ctx.Err() != nil {
			o.deferInterrupted(ctx, job, job.AccountIDs[i:])
			break
		}
		if err != nil {
			return fmt.Errorf("load account %s: %w", accountID, err)
		}

		if !o.breaker.IsAvailable(actx, accountID) {
			o.deferBatch(actx, job, job.AccountIDs[i:])
			break
		}

		if o.limiter.IsLimited(actx, accountID) {
			o.deferRateLimited(actx, job, &acct, o.limiter.RetryAfter(actx, accountID))
			continue
		}

		info, err := o.publisher.Publish(actx, acct.Credentials(), input)
		if err != nil && ctx.Err() != nil {
			// Cut off by our own deadline: says nothing about the account.
			o.deferInterrupted(actx, job, job.AccountIDs[i:])
			break
		}

		sctx, cancel := detached(actx)
		if err != nil {
			o.handleFailure(sctx, job, &acct, err)
		} else {
			o.handleSuccess(sctx, job, &acct, info)
		}
		cancel()
	}

	sctx, cancel := detached(ctx)
	defer cancel()
	return o.finalize(sctx, job.ContentID)
}

// detached returns a context that outlives ctx's cancellation but still
// carries its values, bounded by settleTimeout.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

func (o *Orchestrator) handleSuccess(ctx context.Context, job Job, acct *accounts.Account, info *bluesky.PostInfo) {
	o.breaker.RecordSuccess(ctx, acct.ID)
	o.record(ctx, job.ContentID, acct, ledger.Entry{
		URI:     info.URI,
		CID:     info.CID,
		URL:     info.URL,
		Success: true,
	})
	o.clearAuthFlag(ctx, acct.ID)
	o.event(ctx, ledger.EventSyndicationSuccess,
		fmt.Sprintf("Posted to @%s", acct.Handle), job.ContentID, acct.ID)
	metrics.RecordSyndicationAttempt("success")

	logging.Ctx(ctx).Info().Str("uri", info.URI).Msg("Syndicated content")
}

// handleFailure routes a failed call. Rate limiting is handled by the
// limiter alone and never counts against the circuit breaker.
func (o *Orchestrator) handleFailure(ctx context.Context, job Job, acct *accounts.Account, err error) {
	class := classify(err)

	if class == ClassRateLimit {
		var header http.Header
		if apiErr, ok := bluesky.AsAPIError(err); ok {
			header = apiErr.Header
		}
		o.limiter.Check(ctx, acct.ID, http.StatusTooManyRequests, header)
		o.deferRateLimited(ctx, job, acct, o.limiter.RetryAfter(ctx, acct.ID))
		return
	}

	// A host-level open circuit means no request was sent for this account.
	if class != ClassCircuit {
		o.breaker.RecordFailure(ctx, acct.ID)
	}

	if class == ClassAuth {
		if o.setAuthFlag(ctx, acct.ID, authFlagFrom(err, o.clock.Now())) {
			o.event(ctx, ledger.EventAuthError,
				fmt.Sprintf("Authentication failed for @%s: %s", acct.Handle, err.Error()), job.ContentID, acct.ID)
		}
	}

	log := logging.CtxWith(ctx).Str("class", string(class)).Logger()

	if job.Attempt < MaxAttempts {
		delay := retryDelay(job.Attempt)
		next := Job{ContentID: job.ContentID, AccountIDs: []string{acct.ID}, Attempt: job.Attempt + 1}
		o.record(ctx, job.ContentID, acct, ledger.Entry{Pending: true, Error: err.Error()})
		o.schedule(ctx, next, delay, "retry")
		o.event(ctx, ledger.EventRetryScheduled,
			fmt.Sprintf("Post to @%s failed (%s), retry %d/%d in %s", acct.Handle, class, job.Attempt+1, MaxAttempts, delay),
			job.ContentID, acct.ID)
		metrics.RecordSyndicationAttempt("retry")
		log.Warn().Err(err).Dur("delay", delay).Msg("Syndication failed, retry scheduled")
		return
	}

	o.record(ctx, job.ContentID, acct, ledger.Entry{Success: false, Error: err.Error()})
	o.event(ctx, ledger.EventSyndicationFailed,
		fmt.Sprintf("Post to @%s failed after %d attempts: %s", acct.Handle, MaxAttempts, err.Error()),
		job.ContentID, acct.ID)
	metrics.RecordSyndicationAttempt("failed")
	log.Error().Err(err).Msg("Syndication failed permanently")
}

// deferBatch reschedules the remaining accounts after the breaker cooldown.
func (o *Orchestrator) deferBatch(ctx context.Context, job Job, remaining []string) {
	blocked := remaining[0]
	pending := make([]string, 0, len(remaining))
	for _, id := range remaining {
		if done, _ := o.ledger.HasSuccess(ctx, job.ContentID, id); done {
			continue
		}
		pending = append(pending, id)
		o.recordPending(ctx, job.ContentID, id, "circuit breaker open")
	}

	next := Job{ContentID: job.ContentID, AccountIDs: pending, Attempt: job.Attempt}
	o.schedule(ctx, next, breaker.Cooldown, "circuit_open")
	o.event(ctx, ledger.EventCircuitOpen,
		fmt.Sprintf("Circuit open, %d account(s) deferred by %s", len(pending), breaker.Cooldown),
		job.ContentID, blocked)
	metrics.RecordSyndicationAttempt("circuit_open")

	logging.Ctx(ctx).Warn().Strs("deferred", pending).Msg("Circuit breaker open, batch deferred")
}

// deferRateLimited reschedules one account without consuming an attempt.
func (o *Orchestrator) deferRateLimited(ctx context.Context, job Job, acct *accounts.Account, wait time.Duration) {
	if wait <= 0 {
		wait = ratelimit.BaseDelays[0]
	}
	o.record(ctx, job.ContentID, acct, ledger.Entry{Pending: true, Error: "rate limited"})
	next := Job{ContentID: job.ContentID, AccountIDs: []string{acct.ID}, Attempt: job.Attempt}
	o.schedule(ctx, next, wait, "rate_limited")
	o.event(ctx, ledger.EventRateLimited,
		fmt.Sprintf("@%s rate limited, retrying in %s", acct.Handle, wait.Round(time.Second)),
		job.ContentID, acct.ID)
	metrics.RecordSyndicationAttempt("rate_limited")

	logging.Ctx(ctx).Warn().Dur("wait", wait).Msg("Account rate limited, rescheduled")
}

// deferInterrupted hands the accounts a job could not finish before its
// context ended to a new job. No attempt is consumed and the breaker is
// left alone.
func (o *Orchestrator) deferInterrupted(ctx context.Context, job Job, remaining []string) {
	sctx, cancel := detached(ctx)
	defer cancel()

	pending := make([]string, 0, len(remaining))
	for _, id := range remaining {
		if done, _ := o.ledger.HasSuccess(sctx, job.ContentID, id); done {
			continue
		}
		pending = append(pending, id)
		o.recordPending(sctx, job.ContentID, id, "interrupted")
	}
	if len(pending) == 0 {
		return
	}

	next := Job{ContentID: job.ContentID, AccountIDs: pending, Attempt: job.Attempt}
	o.schedule(sctx, next, InterruptedDelay, "interrupted")
	metrics.RecordSyndicationAttempt("interrupted")

	logging.Ctx(sctx).Warn().Err(ctx.Err()).Strs("deferred", pending).Msg("Job context ended, remaining accounts deferred")
}

func (o *Orchestrator) schedule(ctx context.Context, job Job, delay time.Duration, reason string) {
	if o.scheduler == nil {
		logging.Ctx(ctx).Error().Msg("No scheduler configured, reschedule lost")
		return
	}
	if err := o.scheduler.Schedule(ctx, job, delay); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("reason", reason).Msg("Failed to reschedule syndication job")
		return
	}
	metrics.RecordReschedule(reason)
}

func (o *Orchestrator) record(ctx context.Context, contentID string, acct *accounts.Account, e ledger.Entry) {
	e.Handle = acct.Handle
	if _, err := o.ledger.Record(ctx, contentID, acct.ID, e); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to write ledger entry")
	}
}

func (o *Orchestrator) recordPending(ctx context.Context, contentID, accountID, reason string) {
	e := ledger.Entry{Pending: true, Error: reason}
	if acct, err := o.accounts.Get(ctx, accountID); err == nil {
		e.Handle = acct.Handle
	}
	if _, err := o.ledger.Record(ctx, contentID, accountID, e); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("account_id", accountID).Msg("Failed to write ledger entry")
	}
}

func (o *Orchestrator) event(ctx context.Context, typ ledger.EventType, message, contentID, accountID string) {
	if err := o.activity.Log(ctx, typ, message, contentID, accountID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event", string(typ)).Msg("Failed to append activity event")
	}
}

func (o *Orchestrator) finalize(ctx context.Context, contentID string) error {
	entries, err := o.ledger.Entries(ctx, contentID)
	if err != nil {
		return fmt.Errorf("read ledger %s: %w", contentID, err)
	}
	if len(entries) == 0 {
		return nil
	}
	st, err := o.ledger.Finalize(ctx, contentID)
	if err != nil {
		return fmt.Errorf("finalize %s: %w", contentID, err)
	}
	logging.Ctx(ctx).Debug().
		Str("status", string(st.Status)).
		Bool("ever_syndicated", st.EverSyndicated).
		Msg("Syndication status updated")
	return nil
}

func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(RetryDelays) {
		return RetryDelays[len(RetryDelays)-1]
	}
	return RetryDelays[attempt-1]
}
