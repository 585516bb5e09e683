// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

// Package logging provides centralized zerolog-based structured logging for skysync.
//
// # Quick Start
//
//	logging.Init(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//
//	logging.Info().Str("handle", handle).Msg("Account added")
//	logging.Error().Err(err).Msg("Job failed")
//
//	// Context-aware: request_id, correlation_id, account_id and content_id
//	// are added automatically when present on the context.
//	ctx = logging.ContextWithContent(ctx, contentID)
//	logging.Ctx(ctx).Info().Msg("Syndication batch finished")
//
// # Configuration
//
// Environment Variables:
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller info (default: false)
//
// # Secrets
//
// App passwords and session tokens must never be logged verbatim. Use
// MaskSecret for tokens and MaskHandle when a handle is logged at warn
// level or above.
//
// # Best Practices
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("key", "value").Msg("message")  // Correct
//	logging.Info().Str("key", "value")                 // WRONG - log not emitted
package logging
