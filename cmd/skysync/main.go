// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

// Package main is the entry point for skysync, a multi-account Bluesky
// syndication service.
//
// # Startup Order
//
//  1. Configuration (Koanf v2: defaults, skysync.yaml, environment)
//  2. Storage: BadgerDB, or an in-memory store when storage.in_memory is set
//  3. Credential encryptor (secret generated and persisted on first run)
//  4. Account registry and schema migration (failures are logged, not fatal)
//  5. Bluesky client, breaker, rate limiter, ledger and activity log
//  6. Delivery strategy: durable job queue (async) or in-process (sync)
//  7. Optional RSS/Atom feed watcher
//  8. Operator HTTP API, all under a suture supervisor tree
//
// SIGINT and SIGTERM cancel the tree; in-flight requests get
// server.shutdown_timeout to finish.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/accounts"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/api"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/breaker"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/config"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/feedwatch"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/jobqueue"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/ledger"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/logging"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/ratelimit"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/supervisor"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/supervisor/services"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/syndication"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

//nolint:gocyclo // sequential startup wiring
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logger := logging.Logger()

	logging.Info().
		Str("version", version).
		Bool("async", cfg.Syndication.Async).
		Bool("in_memory", cfg.Storage.InMemory).
		Bool("feed_watch", cfg.FeedWatch.Enabled).
		Msg("Starting skysync")
	logging.Debug().
		Str("addr", cfg.Server.Addr()).
		Str("service_url", cfg.Bluesky.ServiceURL).
		Str("storage_path", cfg.Storage.Path).
		Dur("poll_interval", cfg.Syndication.PollInterval).
		Bool("api_token_set", cfg.Security.APIToken != "").
		Msg("Effective configuration")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// === STORAGE ===

	var (
		kv     store.Store
		badger *store.BadgerStore
	)
	if cfg.Storage.InMemory {
		kv = store.NewMemoryStore(store.SystemClock{})
		logging.Warn().Msg("In-memory storage: accounts and syndication state are lost on restart")
	} else {
		badger, err = store.OpenBadger(store.BadgerOptions{
			Path:        cfg.Storage.Path,
			SyncWrites:  cfg.Storage.SyncWrites,
			Compression: cfg.Storage.Compression,
		})
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("Failed to open store")
		}
		defer func() {
			if err := badger.Close(); err != nil {
				logging.Err(err).Msg("Error closing store")
			}
		}()
		kv = badger
	}

	encryptor, err := config.NewEncryptorFromStore(ctx, kv, cfg.Security.EncryptionSecret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize credential encryption")
	}

	// === DOMAIN ===

	clock := store.SystemClock{}
	led := ledger.New(kv, clock, logger)
	activity := ledger.NewActivityLog(kv, clock)

	registry := accounts.NewRegistry(kv, clock, encryptor, led,
		accounts.Options{SkipMigration: cfg.Migration.Skip}, logger)
	if res, err := registry.Migrate(ctx); err != nil {
		logging.Error().Err(err).Msg("Account migration failed; legacy settings left untouched")
	} else if !res.Skipped {
		logging.Info().
			Int("from_version", res.FromVersion).
			Int("to_version", res.ToVersion).
			Str("legacy_account_id", res.LegacyAccountID).
			Msg("Account migration complete")
	}

	client := bluesky.NewClient(bluesky.Options{
		ServiceURL:        cfg.Bluesky.ServiceURL,
		PublicURL:         cfg.Bluesky.PublicURL,
		RequestTimeout:    cfg.Bluesky.RequestTimeout,
		UploadTimeout:     cfg.Bluesky.UploadTimeout,
		RequestsPerSecond: cfg.Bluesky.RequestsPerSecond,
		Burst:             cfg.Bluesky.Burst,
		UserAgent:         cfg.Bluesky.UserAgent,
		MaxImageBytes:     cfg.Bluesky.MaxImageBytes,
		Langs:             cfg.Bluesky.Langs,
	}, kv, encryptor, registry, logger)

	brk := breaker.New(kv, clock, logger)
	limiter := ratelimit.New(kv, clock, logger)

	// A renamed, re-keyed or removed account must not reuse the old
	// identity's session or inherit its circuit and cooldown.
	registry.OnReset("session", client.ResetSession)
	registry.OnReset("breaker", brk.Reset)
	registry.OnReset("ratelimit", limiter.Clear)

	orch := syndication.NewOrchestrator(syndication.Deps{
		Accounts:  registry,
		Publisher: syndication.ClientPublisher{Client: client},
		Breaker:   brk,
		Limiter:   limiter,
		Ledger:    led,
		Activity:  activity,
		Content:   syndication.NewContentStore(kv),
		Store:     kv,
		Clock:     clock,
		Logger:    logger,
		Host:      client,
	})

	// === SUPERVISOR TREE ===

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if badger != nil && cfg.Storage.GCInterval > 0 {
		gc := store.NewGCRunner(badger, cfg.Storage.GCInterval, cfg.Storage.GCRatio)
		tree.AddStorageService(services.NewLifecycleService("badger-gc", gc))
	}

	// Delivery strategy. The queue lives in the same store, so it is
	// available whenever async is requested.
	var queue *jobqueue.Queue
	if cfg.Syndication.Async {
		queue = jobqueue.NewQueue(kv, clock, cfg.Syndication.LeaseDuration)
	}
	deliverer := syndication.SelectDeliverer(cfg.Syndication.Async, queue, orch, logger)

	switch d := deliverer.(type) {
	case *syndication.AsyncScheduler:
		workerCfg := jobqueue.DefaultConfig()
		workerCfg.PollInterval = cfg.Syndication.PollInterval
		workerCfg.LeaseDuration = cfg.Syndication.LeaseDuration
		workerCfg.MaxAttempts = cfg.Syndication.JobMaxAttempts
		if err := workerCfg.Validate(); err != nil {
			logging.Fatal().Err(err).Msg("Invalid job worker configuration")
		}
		worker := jobqueue.NewWorker(queue, workerCfg, logger)
		worker.Register(syndication.JobName, d.Handle)
		tree.AddWorkerService(services.NewLifecycleService("job-worker", worker))
	case *syndication.SynchronousExecutor:
		tree.AddWorkerService(services.NewDrainService("sync-executor", d))
	}

	svc := syndication.NewService(orch, deliverer)

	if cfg.FeedWatch.Enabled {
		watcher := feedwatch.NewWatcher(feedwatch.Options{
			URL:      cfg.FeedWatch.URL,
			Interval: cfg.FeedWatch.Interval,
			Backfill: cfg.FeedWatch.Backfill,
		}, kv, clock, svc, logger)
		tree.AddWorkerService(services.NewLifecycleService("feed-watcher", watcher))
	}

	// === HTTP API ===

	handler := api.NewHandler(api.Dependencies{
		Service:  svc,
		Accounts: registry,
		Remote:   api.BlueskyRemote{Client: client},
		Version:  version,
		Ready: map[string]api.ReadinessCheck{
			"store": func(ctx context.Context) error {
				_, err := kv.Get(ctx, "health:probe")
				if errors.Is(err, store.ErrNotFound) {
					return nil
				}
				return err
			},
			"accounts": func(ctx context.Context) error {
				_, err := registry.List(ctx)
				return err
			},
		},
	})
	router := api.NewRouter(handler, &cfg.Server, &cfg.Security)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, "operator-api", cfg.Server.ShutdownTimeout))

	if cfg.Security.APIToken == "" {
		logging.Warn().Msg("security.api_token is not set; the operator API is unauthenticated")
	}

	// === RUN ===

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// ServeBackground delivers exactly one value and never closes the channel.
	if err := <-tree.ServeBackground(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Err(err).Msg("Supervisor tree error")
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, s := range unstopped {
			logging.Warn().Str("service", s.Name).Msg("Service failed to stop within timeout")
		}
	}

	logging.Info().Msg("skysync stopped")
}
