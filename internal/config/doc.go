// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

/*
Package config provides configuration management and credential encryption for skysync.

Configuration is layered with Koanf v2: struct defaults, then an optional YAML
file (CONFIG_PATH or skysync.yaml), then environment variables. Only the
variables listed in envMappings are honored; everything else in the
environment is ignored.

# Common Environment Variables

	HTTP_PORT                  listen port (default 8787)
	STORAGE_PATH               BadgerDB directory (default /data/skysync)
	STORAGE_IN_MEMORY          keep state in RAM only
	BLUESKY_SERVICE_URL        remote service base URL (default https://bsky.social)
	SYNDICATION_ASYNC          deliver through the job queue (default true)
	SKYSYNC_ENCRYPTION_SECRET  override the generated credential secret
	SKYSYNC_API_TOKEN          require a bearer token on /api/v1
	SKYSYNC_SKIP_MIGRATION     bypass the account schema migration
	FEEDWATCH_URL              RSS/Atom feed to syndicate automatically

# Credential Encryption

App passwords are sealed with AES-256-GCM. The key is derived with HKDF-SHA256
from a secret that is generated once and persisted in the store under
opt:encryption_secret:

	enc, err := config.NewEncryptorFromStore(ctx, kv, cfg.Security.EncryptionSecret)
	token, err := enc.Encrypt("xxxx-xxxx-xxxx-xxxx")
	plain, err := enc.Decrypt(token)

Decrypt distinguishes ErrInvalidFormat, ErrCorruptedData and ErrDecryptionFailed
so callers can surface a precise warning. None of these are fatal.
*/
package config
