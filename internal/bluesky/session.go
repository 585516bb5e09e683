// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/logging"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/metrics"
)

// Token lifetimes in the store.
const (
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 7 * 24 * time.Hour

	accessKeyPrefix  = "bsky:access:"
	refreshKeyPrefix = "bsky:refresh:"
	didKeyPrefix     = "bsky:did:"
)

// Authenticate ensures the account holds a usable access token.
//
// Without force, a cached access token is used as is; otherwise a cached
// refresh token is exchanged, and if that fails every cached token is
// purged and a full login is performed once. With force the caches are
// bypassed and a full login is performed directly.
func (a *AccountClient) Authenticate(ctx context.Context, force bool) error {
	_, err := a.accessToken(ctx, force)
	return err
}

// IsAuthenticated reports whether a cached access token exists. It never
// performs network calls.
func (a *AccountClient) IsAuthenticated(ctx context.Context) bool {
	tok, err := a.client.store.Get(ctx, accessKeyPrefix+a.creds.AccountID)
	return err == nil && len(tok) > 0
}

// DID returns the cached DID of the account, falling back to the one on
// the credentials.
func (a *AccountClient) DID(ctx context.Context) string {
	if did, err := a.client.store.Get(ctx, didKeyPrefix+a.creds.AccountID); err == nil && len(did) > 0 {
		return string(did)
	}
	return a.creds.DID
}

func (a *AccountClient) accessToken(ctx context.Context, force bool) (string, error) {
	kv := a.client.store
	id := a.creds.AccountID

	if !force {
		if tok, err := kv.Get(ctx, accessKeyPrefix+id); err == nil && len(tok) > 0 {
			return string(tok), nil
		}

		if refresh, err := kv.Get(ctx, refreshKeyPrefix+id); err == nil && len(refresh) > 0 {
			sess, err := a.refreshSession(ctx, string(refresh))
			if err == nil {
				metrics.RecordAuthentication("refresh", true)
				a.lastErr = nil
				return sess.AccessJwt, a.saveSession(ctx, sess)
			}
			metrics.RecordAuthentication("refresh", false)
			a.logger.Info().Err(err).Msg("Session refresh failed, falling back to login")
			a.purgeTokens(ctx)
		}
	}

	sess, err := a.login(ctx)
	if err != nil {
		metrics.RecordAuthentication("login", false)
		a.lastErr = authErrorFrom(err)
		return "", err
	}
	metrics.RecordAuthentication("login", true)
	a.lastErr = nil
	return sess.AccessJwt, a.saveSession(ctx, sess)
}

func (a *AccountClient) login(ctx context.Context) (*sessionResponse, error) {
	if a.creds.Handle == "" || a.creds.EncryptedPassword == "" {
		return nil, &APIError{Kind: KindCredentials, Endpoint: nsidCreateSession, Code: "MissingCredentials", Message: "handle or app password not configured"}
	}
	if a.client.decrypter == nil {
		return nil, &APIError{Kind: KindCredentials, Endpoint: nsidCreateSession, Code: "EncryptionUnavailable", Message: "no credential decrypter configured"}
	}
	password, err := a.client.decrypter.Decrypt(a.creds.EncryptedPassword)
	if err != nil {
		return nil, &APIError{Kind: KindCredentials, Endpoint: nsidCreateSession, Code: "DecryptionFailed", Message: "stored app password could not be decrypted", Err: err}
	}

	var sess sessionResponse
	_, err = a.client.doRequest(ctx, requestConfig{
		method: http.MethodPost,
		nsid:   nsidCreateSession,
		body:   createSessionRequest{Identifier: a.creds.Handle, Password: password},
	}, &sess)
	if err != nil {
		return nil, err
	}
	if sess.AccessJwt == "" || sess.DID == "" {
		return nil, &APIError{Kind: KindMalformed, Endpoint: nsidCreateSession, Message: "session response missing accessJwt or did"}
	}
	return &sess, nil
}

func (a *AccountClient) refreshSession(ctx context.Context, refreshToken string) (*sessionResponse, error) {
	var sess sessionResponse
	_, err := a.client.doRequest(ctx, requestConfig{
		method: http.MethodPost,
		nsid:   nsidRefreshSession,
		token:  refreshToken,
	}, &sess)
	if err != nil {
		return nil, err
	}
	if sess.AccessJwt == "" {
		return nil, &APIError{Kind: KindMalformed, Endpoint: nsidRefreshSession, Message: "refresh response missing accessJwt"}
	}
	return &sess, nil
}

func (a *AccountClient) saveSession(ctx context.Context, sess *sessionResponse) error {
	kv := a.client.store
	id := a.creds.AccountID

	ttl := accessTTL(sess.AccessJwt, a.client.clock.Now())
	if err := kv.Set(ctx, accessKeyPrefix+id, []byte(sess.AccessJwt), ttl); err != nil {
		return err
	}
	if sess.RefreshJwt != "" {
		if err := kv.Set(ctx, refreshKeyPrefix+id, []byte(sess.RefreshJwt), RefreshTokenTTL); err != nil {
			return err
		}
	}
	if sess.DID != "" {
		if err := kv.Set(ctx, didKeyPrefix+id, []byte(sess.DID), 0); err != nil {
			return err
		}
		if sess.DID != a.creds.DID {
			a.creds.DID = sess.DID
			if a.client.sink != nil {
				if err := a.client.sink.SetRemoteID(ctx, id, sess.DID); err != nil {
					a.logger.Warn().Err(err).Msg("Failed to persist account DID")
				}
			}
		}
	}
	return nil
}

// accessTTL is AccessTokenTTL, shortened to the token's own exp claim when
// that is sooner. The signature is not verified; the PDS does that.
func accessTTL(token string, now time.Time) time.Duration {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return AccessTokenTTL
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return AccessTokenTTL
	}
	remaining := exp.Sub(now)
	if remaining <= 0 || remaining >= AccessTokenTTL {
		return AccessTokenTTL
	}
	return remaining
}

func (a *AccountClient) purgeTokens(ctx context.Context) {
	id := a.creds.AccountID
	for _, key := range []string{accessKeyPrefix + id, refreshKeyPrefix + id, didKeyPrefix + id} {
		if err := a.client.store.Delete(ctx, key); err != nil {
			a.logger.Warn().Err(err).Str("key", key).Msg("Failed to purge cached token")
		}
	}
}

// ResetSession drops every cached token and the profile and feed caches of
// accountID. It is called whenever the account's handle or password
// changes so the next call logs in as the new identity.
func (c *Client) ResetSession(ctx context.Context, accountID string) error {
	keys := []string{accessKeyPrefix + accountID, refreshKeyPrefix + accountID, didKeyPrefix + accountID, profileKeyPrefix + accountID}
	if err := c.store.Scan(ctx, feedKeyPrefix+accountID+":", func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	}); err != nil {
		return fmt.Errorf("list feed caches: %w", err)
	}

	var errs []error
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Logout removes cached tokens and feed/profile caches, then clears the
// stored credentials on the account. It reports whether everything succeeded.
func (a *AccountClient) Logout(ctx context.Context) bool {
	ok := true
	id := a.creds.AccountID

	if err := a.client.ResetSession(ctx, id); err != nil {
		a.logger.Warn().Err(err).Msg("Logout: failed to drop cached session")
		ok = false
	}

	if a.client.sink != nil {
		if err := a.client.sink.ClearCredentials(ctx, id); err != nil {
			a.logger.Warn().Err(err).Msg("Logout: failed to clear credentials")
			ok = false
		}
	}

	a.logger.Info().Bool("clean", ok).Msg("Account logged out")
	return ok
}

// authorized runs fn with a valid access token. A 401 (or an auth error
// code) purges the access token, re-authenticates once and retries once.
func (a *AccountClient) authorized(ctx context.Context, fn func(token string) error) error {
	token, err := a.accessToken(ctx, false)
	if err != nil {
		return err
	}

	err = fn(token)
	if KindOf(err) != KindAuth {
		return err
	}

	a.logger.Info().Int("status", StatusOf(err)).Str("token", logging.MaskSecret(token)).Msg("Access token rejected, re-authenticating")
	if delErr := a.client.store.Delete(ctx, accessKeyPrefix+a.creds.AccountID); delErr != nil {
		a.logger.Warn().Err(delErr).Msg("Failed to drop rejected access token")
	}
	token, err = a.accessToken(ctx, false)
	if err != nil {
		return err
	}
	return fn(token)
}
