// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package config

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/logging"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

// SecretOptionKey is where the generated credential secret is persisted.
const SecretOptionKey = "opt:encryption_secret"

// LoadOrCreateSecret returns the credential secret. A configured secret wins;
// otherwise the persisted one is used, or 32 random bytes are generated and
// stored. Check-then-create is not atomic: two first-time callers may both
// write, which is harmless because nothing is encrypted before this returns.
func LoadOrCreateSecret(ctx context.Context, s store.Store, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	existing, err := s.Get(ctx, SecretOptionKey)
	if err == nil && len(existing) > 0 {
		return string(existing), nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("read encryption secret: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate encryption secret: %w", err)
	}
	secret := base64.RawStdEncoding.EncodeToString(raw)

	if err := s.Set(ctx, SecretOptionKey, []byte(secret), 0); err != nil {
		return "", fmt.Errorf("persist encryption secret: %w", err)
	}

	logging.Info().Msg("Generated new credential encryption secret")
	return secret, nil
}

// NewEncryptorFromStore wires LoadOrCreateSecret and NewCredentialEncryptor and
// runs the round-trip self test.
func NewEncryptorFromStore(ctx context.Context, s store.Store, configured string) (*CredentialEncryptor, error) {
	secret, err := LoadOrCreateSecret(ctx, s, configured)
	if err != nil {
		return nil, err
	}
	enc, err := NewCredentialEncryptor(secret)
	if err != nil {
		return nil, err
	}
	if err := enc.ValidateEncryptionSetup(); err != nil {
		return nil, err
	}
	return enc, nil
}
