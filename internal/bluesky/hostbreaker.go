// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package bluesky

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/metrics"
)

// errServerStatus marks a 5xx response so gobreaker counts it as a failure.
// The response itself is still returned to the caller.
var errServerStatus = errors.New("server error status")

// hostBreaker guards the whole PDS host. It is independent of the
// per-account breaker: it only trips when the service itself is failing
// (transport errors and 5xx), never on 4xx responses.
type hostBreaker struct {
	cb     *gobreaker.CircuitBreaker[*response]
	name   string
	logger zerolog.Logger
}

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func newHostBreaker(name string, logger zerolog.Logger) *hostBreaker {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	hb := &hostBreaker{name: name, logger: logger}
	hb.cb = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		// Opens when failure rate >= 60% with minimum 10 requests
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logger.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening host circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := hostStateString(from)
			toStr := hostStateString(to)

			logger.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(metrics.CircuitStateValue(toStr))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})
	return hb
}

// execute runs fn under the breaker. A rejected call returns an
// ErrOpenState/ErrTooManyRequests error and a nil response.
func (hb *hostBreaker) execute(fn func() (*response, error)) (*response, error) {
	resp, err := hb.cb.Execute(fn)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(hb.name, "rejected").Inc()
			hb.logger.Warn().Err(err).Msg("[CIRCUIT BREAKER] Request rejected")
			return nil, err
		}
		metrics.CircuitBreakerRequests.WithLabelValues(hb.name, "failure").Inc()
		counts := hb.cb.Counts()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(hb.name).Set(float64(counts.ConsecutiveFailures))
		return resp, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(hb.name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(hb.name).Set(0)
	return resp, nil
}

// State returns closed, open or half_open.
func (hb *hostBreaker) State() string {
	return hostStateString(hb.cb.State())
}

func hostStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}
