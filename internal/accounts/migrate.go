// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package accounts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

// SchemaVersion is the registry layout this build writes.
const SchemaVersion = 2

const (
	schemaVersionKey   = "opt:schema_version"
	legacySettingsKey  = "opt:legacy_settings"
	legacyAccountIDKey = "opt:legacy_account_id"
	migrationErrorKey  = "opt:migration_error"
)

// LegacySettings is the single-account configuration of schema version 1.
// AppPassword is already in encrypted form.
type LegacySettings struct {
	Handle        string `json:"handle"`
	AppPassword   string `json:"app_password"`
	DID           string `json:"did,omitempty"`
	AutoSyndicate bool   `json:"auto_syndicate"`
}

// MigrationResult describes what Migrate did.
type MigrationResult struct {
	FromVersion     int    `json:"from_version"`
	ToVersion       int    `json:"to_version"`
	Skipped         bool   `json:"skipped"`
	Reason          string `json:"reason,omitempty"`
	LegacyAccountID string `json:"legacy_account_id,omitempty"`
}

// MigrationFailure is persisted when Migrate fails so operators can see it.
type MigrationFailure struct {
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

// CurrentSchemaVersion returns the persisted version; absent means 1.
func (r *Registry) CurrentSchemaVersion(ctx context.Context) (int, error) {
	data, err := r.store.Get(ctx, schemaVersionKey)
	if errors.Is(err, store.ErrNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q: %w", data, err)
	}
	return v, nil
}

// MigrationError returns the last recorded migration failure, if any.
func (r *Registry) MigrationError(ctx context.Context) (*MigrationFailure, error) {
	var f MigrationFailure
	found, err := store.GetJSON(ctx, r.store, migrationErrorKey, &f)
	if err != nil || !found {
		return nil, err
	}
	return &f, nil
}

// Migrate upgrades single-account settings to the multi-account registry.
// It is idempotent and safe to call on every start. A failure is recorded
// and returned but leaves the schema version untouched, so the next start
// retries it.
func (r *Registry) Migrate(ctx context.Context) (MigrationResult, error) {
	if r.opts.SkipMigration {
		r.logger.Warn().Msg("Account migration skipped by configuration")
		return MigrationResult{Skipped: true, Reason: "skip flag set"}, nil
	}

	from, err := r.CurrentSchemaVersion(ctx)
	if err != nil {
		return MigrationResult{}, r.recordMigrationFailure(ctx, err)
	}
	if from >= SchemaVersion {
		return MigrationResult{FromVersion: from, ToVersion: from, Skipped: true, Reason: "up to date"}, nil
	}

	legacyID, err := r.migrateLegacySettings(ctx)
	if err != nil {
		return MigrationResult{FromVersion: from}, r.recordMigrationFailure(ctx, err)
	}

	if err := r.store.Set(ctx, schemaVersionKey, []byte(strconv.Itoa(SchemaVersion)), 0); err != nil {
		return MigrationResult{FromVersion: from}, r.recordMigrationFailure(ctx, err)
	}
	if err := r.store.Delete(ctx, migrationErrorKey); err != nil {
		r.logger.Warn().Err(err).Msg("Could not clear previous migration error")
	}

	r.logger.Info().Int("from", from).Int("to", SchemaVersion).Str("legacy_account_id", legacyID).Msg("Account registry migrated")
	return MigrationResult{FromVersion: from, ToVersion: SchemaVersion, LegacyAccountID: legacyID}, nil
}

// migrateLegacySettings turns legacy settings into an account. If a prior,
// partially failed run already created it, that account is reused.
func (r *Registry) migrateLegacySettings(ctx context.Context) (string, error) {
	var legacy LegacySettings
	found, err := store.GetJSON(ctx, r.store, legacySettingsKey, &legacy)
	if err != nil {
		return "", fmt.Errorf("read legacy settings: %w", err)
	}
	handle := NormalizeHandle(legacy.Handle)
	if !found || handle == "" {
		return "", nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.load(ctx)
	if err != nil {
		return "", err
	}

	var id string
	for i := range list {
		if NormalizeHandle(list[i].Handle) == handle {
			id = list[i].ID
			break
		}
	}

	if id == "" {
		now := r.clock.Now().UTC()
		id = uuid.NewString()
		list = append(list, Account{
			ID:                id,
			Handle:            handle,
			EncryptedPassword: legacy.AppPassword,
			DID:               legacy.DID,
			IsActive:          len(list) == 0,
			AutoSyndicate:     legacy.AutoSyndicate,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		if err := r.save(ctx, list); err != nil {
			return "", fmt.Errorf("save migrated account: %w", err)
		}
	}

	if err := r.store.Set(ctx, legacyAccountIDKey, []byte(id), 0); err != nil {
		return "", fmt.Errorf("save legacy account id: %w", err)
	}
	return id, nil
}

func (r *Registry) recordMigrationFailure(ctx context.Context, cause error) error {
	r.logger.Error().Err(cause).Msg("Account migration failed, will retry on next start")
	f := MigrationFailure{Error: cause.Error(), At: r.clock.Now().UTC()}
	if err := store.SetJSON(ctx, r.store, migrationErrorKey, f, 0); err != nil {
		r.logger.Error().Err(err).Msg("Could not record migration failure")
	}
	return fmt.Errorf("account migration: %w", cause)
}
