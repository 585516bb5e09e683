// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package store

import (
	"context"
	"sync"
	"time"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/logging"
)

// GCRunner periodically reclaims BadgerDB value-log space left behind by
// expired transients (tokens, rate-limit windows, caches).
type GCRunner struct {
	store    *BadgerStore
	interval time.Duration
	ratio    float64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewGCRunner creates a GC loop. Non-positive values fall back to 10m and 0.5.
func NewGCRunner(s *BadgerStore, interval time.Duration, ratio float64) *GCRunner {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}
	return &GCRunner{store: s, interval: interval, ratio: ratio}
}

// Start begins the background GC loop.
func (g *GCRunner) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return nil
	}
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.running = true
	g.mu.Unlock()

	g.wg.Add(1)
	go g.run()

	logging.Info().Dur("interval", g.interval).Msg("Store GC started")
	return nil
}

// Stop halts the loop and waits for it to exit.
func (g *GCRunner) Stop() error {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return nil
	}
	g.cancel()
	g.running = false
	g.mu.Unlock()

	g.wg.Wait()
	logging.Info().Msg("Store GC stopped")
	return nil
}

func (g *GCRunner) run() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			if err := g.store.RunGC(g.ratio); err != nil {
				logging.Error().Err(err).Msg("Store GC error")
			}
		}
	}
}
