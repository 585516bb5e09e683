// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package api

import (
	"errors"
	"net/http"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/accounts"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/syndication"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/validation"
)

// ErrNoCredentials is returned when a remote read is requested for an
// account whose app password was cleared.
var ErrNoCredentials = errors.New("account has no stored credentials")

// writeErr maps domain errors onto the response envelope.
func (rw *ResponseWriter) writeErr(err error) {
	var (
		acctErr *accounts.Error
		apiErr  *bluesky.APIError
		valErr  *validation.RequestValidationError
	)

	switch {
	case errors.As(err, &valErr):
		ae := valErr.ToAPIError()
		rw.ValidationError(ae.Message, ae.Details)
	case errors.As(err, &acctErr):
		rw.Error(acctErr.HTTPStatus(), string(acctErr.Code), acctErr.Message)
	case errors.Is(err, syndication.ErrContentNotFound):
		rw.NotFound("content not found")
	case errors.Is(err, ErrNoCredentials):
		rw.Conflict(err.Error())
	case errors.As(err, &apiErr):
		rw.remoteError(apiErr)
	default:
		rw.StorageError(err)
	}
}

func (rw *ResponseWriter) remoteError(e *bluesky.APIError) {
	switch e.Kind {
	case bluesky.KindAuth, bluesky.KindCredentials:
		rw.Error(http.StatusBadGateway, ErrCodeRemoteAuth, e.Error())
	case bluesky.KindRateLimit:
		if ra := e.Header.Get("Retry-After"); ra != "" {
			rw.w.Header().Set("Retry-After", ra)
		}
		rw.Error(http.StatusTooManyRequests, ErrCodeRemoteRateLimited, e.Error())
	case bluesky.KindCircuitOpen:
		rw.ServiceUnavailable(e.Error())
	case bluesky.KindClient:
		if e.StatusCode == http.StatusNotFound {
			rw.NotFound(e.Error())
			return
		}
		rw.ExternalServiceError("bluesky", e)
	default:
		rw.ExternalServiceError("bluesky", e)
	}
}
