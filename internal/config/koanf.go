// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"skysync.yaml",
	"config.yaml",
	"config.yml",
	"/etc/skysync/config.yaml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8787,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			Path:       "/data/skysync",
			SyncWrites: true,
			GCInterval: 10 * time.Minute,
			GCRatio:    0.5,
		},
		Bluesky: BlueskyConfig{
			ServiceURL:        "https://bsky.social",
			PublicURL:         "https://bsky.app",
			RequestTimeout:    15 * time.Second,
			UploadTimeout:     30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             10,
			UserAgent:         "skysync/1.0",
			MaxImageBytes:     1_000_000,
		},
		Syndication: SyndicationConfig{
			Async:          true,
			PollInterval:   5 * time.Second,
			LeaseDuration:  2 * time.Minute,
			JobMaxAttempts: 5,
		},
		FeedWatch: FeedWatchConfig{
			Enabled:  false,
			Interval: 15 * time.Minute,
		},
	}
}

// Load loads configuration using Koanf with layered sources:
//  1. Built-in defaults
//  2. Config file (if found)
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// BLUESKY_SERVICE_URL -> bluesky.service_url
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are koanf paths that accept comma-separated env values.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"bluesky.langs",
}

// processSliceFields converts comma-separated string values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML or defaults)
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_read_timeout":   "server.read_timeout",
	"http_write_timeout":  "server.write_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Storage
	"storage_path":        "storage.path",
	"storage_in_memory":   "storage.in_memory",
	"storage_sync_writes": "storage.sync_writes",
	"storage_compression": "storage.compression",
	"storage_gc_interval": "storage.gc_interval",
	"storage_gc_ratio":    "storage.gc_ratio",

	// Bluesky
	"bluesky_service_url":         "bluesky.service_url",
	"bluesky_public_url":          "bluesky.public_url",
	"bluesky_request_timeout":     "bluesky.request_timeout",
	"bluesky_upload_timeout":      "bluesky.upload_timeout",
	"bluesky_requests_per_second": "bluesky.requests_per_second",
	"bluesky_burst":               "bluesky.burst",
	"bluesky_user_agent":          "bluesky.user_agent",
	"bluesky_max_image_bytes":     "bluesky.max_image_bytes",
	"bluesky_langs":               "bluesky.langs",

	// Syndication
	"syndication_async":            "syndication.async",
	"syndication_poll_interval":    "syndication.poll_interval",
	"syndication_lease_duration":   "syndication.lease_duration",
	"syndication_job_max_attempts": "syndication.job_max_attempts",

	// Security
	"skysync_encryption_secret": "security.encryption_secret",
	"skysync_api_token":         "security.api_token",

	// Feed watcher
	"feedwatch_enabled":  "feedwatch.enabled",
	"feedwatch_url":      "feedwatch.url",
	"feedwatch_interval": "feedwatch.interval",
	"feedwatch_backfill": "feedwatch.backfill",

	// Migration
	"skysync_skip_migration": "migration.skip",
}

// envTransformFunc transforms environment variable names to koanf paths.
// Unmapped variables return "" and are ignored.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
