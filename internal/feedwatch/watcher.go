// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package feedwatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/metrics"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/syndication"
)

const (
	stateKey      = "feedwatch:state"
	seenKeyPrefix = "feedwatch:seen:"

	// SeenTTL is how long a delivered item stays remembered.
	SeenTTL = 90 * 24 * time.Hour

	// DefaultInterval is the poll interval used when none is configured.
	DefaultInterval = 15 * time.Minute

	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 5 << 20
	defaultUserAgent   = "skysync-feedwatch/1.0"
)

// StatusError reports a non-success HTTP status from the feed host.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("feedwatch: unexpected status %d", e.StatusCode)
}

// Permanent reports whether retrying the same URL is pointless until the
// configuration changes.
func (e *StatusError) Permanent() bool {
	switch e.StatusCode {
	case http.StatusNotFound, http.StatusGone, http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return false
}

// Submitter accepts new content for delivery.
type Submitter interface {
	Submit(ctx context.Context, c *syndication.Content, accountIDs []string) ([]string, error)
}

// Options configures a Watcher.
type Options struct {
	URL         string
	Interval    time.Duration
	Timeout     time.Duration
	MaxBodySize int64
	UserAgent   string

	// Backfill delivers the items present on the very first poll. Off by
	// default so enabling the watcher on an existing site does not repost
	// its archive.
	Backfill bool

	// HTTPClient overrides the SSRF-guarded default client.
	HTTPClient *http.Client
}

// fetchState carries the conditional GET validators between polls.
type fetchState struct {
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	LastPoll     time.Time `json:"last_poll"`
	LastError    string    `json:"last_error,omitempty"`
	Baselined    bool      `json:"baselined"`
}

// Watcher polls an RSS/Atom feed and submits unseen items for syndication.
type Watcher struct {
	opts      Options
	store     store.Store
	clock     store.Clock
	submitter Submitter
	client    *http.Client
	policy    *bluemonday.Policy
	logger    zerolog.Logger

	pollMu sync.Mutex

	// State - all protected by mu
	mu       sync.Mutex
	running  bool
	stopping bool
	cancel   context.CancelFunc
	stopDone chan struct{}
}

// NewWatcher creates a watcher. Zero option values take package defaults.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewWatcher(opts Options, s store.Store, clock store.Clock, submitter Submitter, logger zerolog.Logger) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaultMaxBodySize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if clock == nil {
		clock = store.SystemClock{}
	}
	client := opts.HTTPClient
	if client == nil {
		client = newSafeClient(opts.Timeout)
	}
	return &Watcher{
		opts:      opts,
		store:     s,
		clock:     clock,
		submitter: submitter,
		client:    client,
		policy:    bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "feedwatch").Str("feed_url", opts.URL).Logger(),
	}
}

func newSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		Build()
	return safeurl.Client(cfg).Client
}

// Start begins polling in the background. The first poll runs immediately.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	if w.stopping {
		w.mu.Unlock()
		return errors.New("feedwatch: stop in progress")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	done := make(chan struct{})
	w.stopDone = done
	w.mu.Unlock()

	go w.run(loopCtx, done)

	w.logger.Info().Dur("interval", w.opts.Interval).Msg("Feed watcher started")
	return nil
}

// Stop halts polling and waits for an in-flight poll to finish.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.stopping = true
	w.cancel()
	done := w.stopDone
	w.mu.Unlock()

	<-done

	w.mu.Lock()
	w.running = false
	w.stopping = false
	w.mu.Unlock()

	w.logger.Info().Msg("Feed watcher stopped")
	return nil
}

// IsRunning reports whether the poll loop is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	w.poll(ctx)

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	n, err := w.PollOnce(ctx)
	if err != nil && ctx.Err() == nil {
		w.logger.Warn().Err(err).Msg("Feed poll failed")
		return
	}
	if n > 0 {
		w.logger.Info().Int("new_items", n).Msg("Feed poll delivered new items")
	}
}

// PollOnce fetches the feed and submits every unseen item, oldest first.
// It returns the number of items submitted.
func (w *Watcher) PollOnce(ctx context.Context) (n int, err error) {
	w.pollMu.Lock()
	defer w.pollMu.Unlock()
	defer func() { metrics.RecordFeedPoll(err, n) }()

	var state fetchState
	if _, err = store.GetJSON(ctx, w.store, stateKey, &state); err != nil {
		return 0, err
	}

	feed, err := w.fetch(ctx, &state)
	state.LastPoll = w.clock.Now()
	if err != nil {
		state.LastError = err.Error()
		if saveErr := store.SetJSON(ctx, w.store, stateKey, state, 0); saveErr != nil {
			w.logger.Error().Err(saveErr).Msg("Failed to save feed state")
		}
		return 0, err
	}
	state.LastError = ""

	if feed != nil {
		baseline := !state.Baselined && !w.opts.Backfill
		var failed int
		n, failed, err = w.process(ctx, feed, baseline)
		if err != nil {
			return n, err
		}
		if failed > 0 {
			// Force a full fetch next time so the failed items are seen again.
			state.ETag, state.LastModified = "", ""
		}
		state.Baselined = true
	}
	return n, store.SetJSON(ctx, w.store, stateKey, state, 0)
}

// fetch performs a conditional GET. A nil feed with a nil error means the
// feed has not changed since the validators in state were issued.
func (w *Watcher) fetch(ctx context.Context, state *fetchState) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("feedwatch: build request: %w", err)
	}
	req.Header.Set("User-Agent", w.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if state.ETag != "" {
		req.Header.Set("If-None-Match", state.ETag)
	}
	if state.LastModified != "" {
		req.Header.Set("If-Modified-Since", state.LastModified)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feedwatch: fetch: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		w.logger.Debug().Msg("Feed not modified")
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, w.opts.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("feedwatch: read body: %w", err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("feedwatch: parse: %w", err)
	}

	state.ETag = resp.Header.Get("ETag")
	state.LastModified = resp.Header.Get("Last-Modified")
	return feed, nil
}

// process submits unseen items and reports how many were submitted and how
// many failed. With baseline set every item is only marked as seen.
func (w *Watcher) process(ctx context.Context, feed *gofeed.Feed, baseline bool) (submitted, failed int, err error) {
	items := make([]*gofeed.Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item != nil {
			items = append(items, item)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return publishedAt(items[i]).Before(publishedAt(items[j]))
	})

	for _, item := range items {
		key := itemKey(item)
		if key == "" {
			continue
		}
		seen, err := w.seen(ctx, key)
		if err != nil {
			return submitted, failed, err
		}
		if seen {
			continue
		}

		if !baseline {
			c := toContent(feed, item, key, w.policy)
			if c == nil {
				w.logger.Debug().Str("guid", item.GUID).Msg("Skipping feed item without title or link")
			} else {
				ids, err := w.submitter.Submit(ctx, c, nil)
				if err != nil {
					// Left unseen so the next poll tries again.
					w.logger.Error().Err(err).Str("content_id", c.ID).Msg("Failed to submit feed item")
					failed++
					continue
				}
				submitted++
				w.logger.Info().
					Str("content_id", c.ID).
					Str("url", c.URL).
					Int("accounts", len(ids)).
					Msg("Feed item submitted")
			}
		}

		if err := w.store.Set(ctx, seenKeyPrefix+key, []byte(w.clock.Now().UTC().Format(time.RFC3339)), SeenTTL); err != nil {
			return submitted, failed, err
		}
	}

	if baseline {
		w.logger.Info().Int("items", len(items)).Msg("Feed baseline recorded")
	}
	return submitted, failed, nil
}

func (w *Watcher) seen(ctx context.Context, key string) (bool, error) {
	_, err := w.store.Get(ctx, seenKeyPrefix+key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func publishedAt(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}
