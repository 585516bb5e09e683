// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package jobqueue

import (
	"fmt"
	"time"
)

// Config holds worker tuning.
type Config struct {
	// PollInterval is the time between scans for due jobs.
	PollInterval time.Duration

	// LeaseDuration is how long a claimed job is reserved for one worker.
	// It must be longer than the slowest expected handler run.
	LeaseDuration time.Duration

	// MaxAttempts bounds handler errors before a job is dropped.
	MaxAttempts int

	// RetryBackoff is the base delay for exponential backoff after a handler error.
	RetryBackoff time.Duration

	// HandlerTimeout bounds a single handler run.
	HandlerTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Second,
		LeaseDuration:  2 * time.Minute,
		MaxAttempts:    5,
		RetryBackoff:   30 * time.Second,
		HandlerTimeout: 90 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.PollInterval < 100*time.Millisecond {
		return &ConfigError{Field: "PollInterval", Message: "must be at least 100ms"}
	}
	if c.LeaseDuration < time.Second {
		return &ConfigError{Field: "LeaseDuration", Message: "must be at least 1 second"}
	}
	if c.MaxAttempts < 1 {
		return &ConfigError{Field: "MaxAttempts", Message: "must be at least 1"}
	}
	if c.RetryBackoff < time.Second {
		return &ConfigError{Field: "RetryBackoff", Message: "must be at least 1 second"}
	}
	if c.HandlerTimeout > 0 && c.HandlerTimeout >= c.LeaseDuration {
		return &ConfigError{Field: "HandlerTimeout", Message: "must be shorter than LeaseDuration"}
	}
	return nil
}

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("jobqueue config error: %s %s", e.Field, e.Message)
}
