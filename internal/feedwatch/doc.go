// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

// Package feedwatch turns the site's RSS or Atom feed into a content source.
//
// A Watcher polls one feed URL with conditional GET (ETag and
// Last-Modified), parses it with gofeed and submits every item it has not
// seen before, oldest first. Seen items are remembered for 90 days under
// "feedwatch:seen:<sha256>" so restarts and feed reordering do not repost.
// The first successful poll only records a baseline unless Options.Backfill
// is set.
package feedwatch
