// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package syndication

import (
	"context"
	"errors"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
)

// Class is the failure category shown to operators.
type Class string

const (
	ClassAuth      Class = "auth"
	ClassRateLimit Class = "rate_limit"
	ClassCircuit   Class = "circuit"
	ClassTransport Class = "transport"
	ClassServer    Class = "server"
	ClassUnknown   Class = "unknown"
)

// classify derives the class from the error returned by the failed call
// itself, never from breaker or limiter side state.
func classify(err error) Class {
	switch bluesky.KindOf(err) {
	case bluesky.KindAuth, bluesky.KindCredentials:
		return ClassAuth
	case bluesky.KindRateLimit:
		return ClassRateLimit
	case bluesky.KindCircuitOpen:
		return ClassCircuit
	case bluesky.KindTransport:
		return ClassTransport
	case bluesky.KindServer:
		return ClassServer
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransport
	}
	return ClassUnknown
}
