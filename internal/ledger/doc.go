// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

// Package ledger records per-account syndication outcomes for each content
// item and keeps a short activity log for operators.
//
// Each item has a map from account id to Entry at ledger:<content>. A
// successful entry is never overwritten, which makes re-running a delivery
// job a no-op for accounts that already succeeded. The aggregate status
// (completed, partial or failed) is a pure function of that map and is
// persisted with the sticky ever_syndicated flag at ledger:state:<content>.
//
// The activity log holds the ten most recent events and is read newest
// first. It is informational and never drives delivery decisions.
package ledger
