// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package syndication

import (
	"context"
	"time"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

const authFlagKeyPrefix = "authflag:"

// AuthFlag records the last authentication failure of an account so
// operators can see it until a later post succeeds.
type AuthFlag struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Status  int       `json:"status,omitempty"`
	At      time.Time `json:"at"`
}

func authFlagFrom(err error, now time.Time) AuthFlag {
	flag := AuthFlag{Message: err.Error(), At: now.UTC()}
	if apiErr, ok := bluesky.AsAPIError(err); ok {
		flag.Code = apiErr.Code
		if flag.Code == "" {
			flag.Code = string(apiErr.Kind)
		}
		if apiErr.Message != "" {
			flag.Message = apiErr.Message
		}
		flag.Status = apiErr.StatusCode
	}
	if flag.Code == "" {
		flag.Code = "Unknown"
	}
	return flag
}

// AuthFlag returns the recorded auth failure of accountID, if any.
func (o *Orchestrator) AuthFlag(ctx context.Context, accountID string) (AuthFlag, bool, error) {
	var flag AuthFlag
	found, err := store.GetJSON(ctx, o.store, authFlagKeyPrefix+accountID, &flag)
	return flag, found, err
}

// setAuthFlag persists the flag and reports whether the account was
// previously unflagged.
func (o *Orchestrator) setAuthFlag(ctx context.Context, accountID string, flag AuthFlag) bool {
	_, existed, _ := o.AuthFlag(ctx, accountID)
	if err := store.SetJSON(ctx, o.store, authFlagKeyPrefix+accountID, flag, 0); err != nil {
		o.logger.Warn().Err(err).Str("account_id", accountID).Msg("Failed to persist auth error flag")
	}
	return !existed
}

func (o *Orchestrator) clearAuthFlag(ctx context.Context, accountID string) {
	if err := o.store.Delete(ctx, authFlagKeyPrefix+accountID); err != nil {
		o.logger.Warn().Err(err).Str("account_id", accountID).Msg("Failed to clear auth error flag")
	}
}
