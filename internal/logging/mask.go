// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package logging

// MaskSecret masks an app password or bearer token for log output,
// keeping only the last 4 characters.
// Example: "eyJhbGciOiJFUzI1NksifQ.x.abcd" -> "****...abcd"
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 12 {
		return "****"
	}
	return "****..." + secret[len(secret)-4:]
}

// MaskHandle keeps the first two characters and the domain part of a handle.
// Example: "alice.bsky.social" -> "al***.bsky.social"
func MaskHandle(handle string) string {
	if len(handle) <= 2 {
		return "***"
	}
	for i := 0; i < len(handle); i++ {
		if handle[i] == '.' && i > 2 {
			return handle[:2] + "***" + handle[i:]
		}
	}
	return handle[:2] + "***"
}
