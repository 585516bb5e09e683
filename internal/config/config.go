// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package config

import (
	"fmt"
	"time"
)

// Config holds all skysync configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (skysync.yaml) for persistent settings
//  3. Environment Variables: Override any setting via environment variables
//
// Retry thresholds of the syndication pipeline (3 attempts, [60,120,300]s
// delays, 3-failure breaker with a 900s cooldown) are constants in their
// packages and intentionally absent here.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Storage     StorageConfig     `koanf:"storage"`
	Bluesky     BlueskyConfig     `koanf:"bluesky"`
	Syndication SyndicationConfig `koanf:"syndication"`
	Security    SecurityConfig    `koanf:"security"`
	FeedWatch   FeedWatchConfig   `koanf:"feedwatch"`
	Migration   MigrationConfig   `koanf:"migration"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists allowed origins. Comma-separated in env (CORS_ORIGINS).
	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

// StorageConfig selects and tunes the key/value store.
type StorageConfig struct {
	// Path is the BadgerDB directory.
	Path string `koanf:"path"`

	// InMemory keeps all state in RAM (nothing survives a restart).
	InMemory bool `koanf:"in_memory"`

	SyncWrites  bool `koanf:"sync_writes"`
	Compression bool `koanf:"compression"`

	GCInterval time.Duration `koanf:"gc_interval"`
	GCRatio    float64       `koanf:"gc_ratio"`
}

// BlueskyConfig holds remote service settings shared by every account.
type BlueskyConfig struct {
	// ServiceURL is the PDS/entryway base URL. Default: https://bsky.social
	ServiceURL string `koanf:"service_url"`

	// PublicURL is the web app used to build public post links.
	PublicURL string `koanf:"public_url"`

	RequestTimeout time.Duration `koanf:"request_timeout"`
	UploadTimeout  time.Duration `koanf:"upload_timeout"`

	// RequestsPerSecond paces outbound calls across all accounts.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`

	UserAgent string `koanf:"user_agent"`

	// MaxImageBytes bounds thumbnail downloads (the remote blob limit is ~1MB).
	MaxImageBytes int64 `koanf:"max_image_bytes"`

	// Langs is attached to every created post. Comma-separated in env.
	Langs []string `koanf:"langs"`
}

// SyndicationConfig controls delivery strategy and the job worker.
type SyndicationConfig struct {
	// Async delivers through the durable job queue. When false, or when the
	// queue cannot be opened, delivery runs synchronously in the request.
	Async bool `koanf:"async"`

	PollInterval   time.Duration `koanf:"poll_interval"`
	LeaseDuration  time.Duration `koanf:"lease_duration"`
	JobMaxAttempts int           `koanf:"job_max_attempts"`
}

// SecurityConfig holds secrets.
type SecurityConfig struct {
	// EncryptionSecret overrides the generated, persisted credential secret.
	// Changing it makes previously stored app passwords undecryptable.
	EncryptionSecret string `koanf:"encryption_secret"`

	// APIToken, when set, is required as a Bearer token on /api/v1 routes.
	APIToken string `koanf:"api_token"`
}

// FeedWatchConfig configures the optional RSS/Atom content source.
type FeedWatchConfig struct {
	Enabled  bool          `koanf:"enabled"`
	URL      string        `koanf:"url"`
	Interval time.Duration `koanf:"interval"`

	// Backfill delivers items already in the feed on the first poll. By
	// default the first poll only records them as seen.
	Backfill bool `koanf:"backfill"`
}

// MigrationConfig controls the account schema migration.
type MigrationConfig struct {
	// Skip bypasses the migration entirely (emergency override).
	Skip bool `koanf:"skip"`
}
