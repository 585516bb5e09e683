// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

// Package bluesky is the AT Protocol client used by skysync.
//
// A single Client is shared across accounts. It paces outgoing requests
// with a token bucket (golang.org/x/time/rate), guards the PDS host with a
// gobreaker circuit breaker, and applies a 15s timeout to ordinary calls
// and a 30s timeout to blob uploads. Client.Account binds it to one
// account; sessions, feeds and profiles for that account are cached in the
// shared store under bsky:* keys.
//
// # Sessions
//
//	acct := client.Account(bluesky.Credentials{AccountID: id, Handle: h, EncryptedPassword: p})
//	if err := acct.Authenticate(ctx, false); err != nil { ... }
//
// Access tokens are cached for an hour (or until their exp claim, when
// sooner), refresh tokens for seven days, and the DID indefinitely. A
// rejected access token triggers one re-authentication and one retry.
//
// # Errors
//
// Failed calls return *APIError. Its Kind tells the caller whether the
// failure was authentication, rate limiting, transport, server or client
// side, and its Header carries the response headers so a 429 can be
// handed to the rate limiter.
//
// # Posts
//
// Post text is stripped of markup (bluemonday) and limited to 300
// graphemes (uniseg). Links are annotated with facets whose ranges are
// UTF-8 byte offsets.
package bluesky
