// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

// Package accounts is the registry of configured Bluesky accounts.
//
// The registry is one JSON document at opt:accounts. Handles are unique
// case-insensitively, app passwords are stored only in encrypted form, and
// exactly one account is active whenever any exist. Registry implements
// bluesky.CredentialSink so the client can record DIDs and clear
// credentials on logout.
//
// Migrate upgrades the schema version 1 single-account settings into the
// registry. It runs at startup, is idempotent, records failures at
// opt:migration_error without stopping the service, and can be bypassed
// with SKYSYNC_SKIP_MIGRATION.
package accounts
