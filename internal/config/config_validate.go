// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ConfigError describes an invalid configuration field.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateBluesky(); err != nil {
		return err
	}
	if err := c.validateSyndication(); err != nil {
		return err
	}
	return c.validateFeedWatch()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: fmt.Sprintf("must be between 1 and 65535, got %d", c.Server.Port)}
	}
	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitRequests <= 0 {
			return &ConfigError{Field: "server.rate_limit_requests", Message: "must be positive"}
		}
		if c.Server.RateLimitWindow <= 0 {
			return &ConfigError{Field: "server.rate_limit_window", Message: "must be positive"}
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("must be json or console, got %q", c.Logging.Format)}
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return &ConfigError{Field: "storage.path", Message: "required unless storage.in_memory is set"}
	}
	if c.Storage.GCRatio < 0 || c.Storage.GCRatio >= 1 {
		return &ConfigError{Field: "storage.gc_ratio", Message: "must be in [0, 1)"}
	}
	return nil
}

func (c *Config) validateBluesky() error {
	if err := validateHTTPURL(c.Bluesky.ServiceURL); err != nil {
		return &ConfigError{Field: "bluesky.service_url", Message: err.Error()}
	}
	if err := validateHTTPURL(c.Bluesky.PublicURL); err != nil {
		return &ConfigError{Field: "bluesky.public_url", Message: err.Error()}
	}
	if c.Bluesky.RequestTimeout < time.Second {
		return &ConfigError{Field: "bluesky.request_timeout", Message: "must be at least 1s"}
	}
	if c.Bluesky.UploadTimeout < c.Bluesky.RequestTimeout {
		return &ConfigError{Field: "bluesky.upload_timeout", Message: "must not be shorter than request_timeout"}
	}
	if c.Bluesky.RequestsPerSecond <= 0 || c.Bluesky.Burst <= 0 {
		return &ConfigError{Field: "bluesky.requests_per_second", Message: "rate and burst must be positive"}
	}
	if c.Bluesky.MaxImageBytes <= 0 {
		return &ConfigError{Field: "bluesky.max_image_bytes", Message: "must be positive"}
	}
	return nil
}

func (c *Config) validateSyndication() error {
	if c.Syndication.PollInterval < 100*time.Millisecond {
		return &ConfigError{Field: "syndication.poll_interval", Message: "must be at least 100ms"}
	}
	if c.Syndication.LeaseDuration < time.Second {
		return &ConfigError{Field: "syndication.lease_duration", Message: "must be at least 1s"}
	}
	if c.Syndication.JobMaxAttempts < 1 {
		return &ConfigError{Field: "syndication.job_max_attempts", Message: "must be at least 1"}
	}
	return nil
}

func (c *Config) validateFeedWatch() error {
	if !c.FeedWatch.Enabled {
		return nil
	}
	if c.FeedWatch.URL == "" {
		return &ConfigError{Field: "feedwatch.url", Message: "required when feedwatch.enabled=true"}
	}
	if _, err := url.ParseRequestURI(c.FeedWatch.URL); err != nil {
		return &ConfigError{Field: "feedwatch.url", Message: err.Error()}
	}
	if c.FeedWatch.Interval < time.Minute {
		return &ConfigError{Field: "feedwatch.interval", Message: "must be at least 1m"}
	}
	return nil
}

// validateHTTPURL checks scheme and host of a base URL.
func validateHTTPURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got: %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required")
	}
	if parsedURL.RawQuery != "" {
		return fmt.Errorf("should not contain query parameters")
	}
	return nil
}
