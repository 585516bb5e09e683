// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package bluesky

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

func TestAuthenticate_LoginCachesSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	acct := env.account()
	ctx := context.Background()

	if err := acct.Authenticate(ctx, false); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := acct.Authenticate(ctx, false); err != nil {
		t.Fatalf("second Authenticate: %v", err)
	}

	if got := env.pds.count(nsidCreateSession); got != 1 {
		t.Errorf("expected 1 createSession call, got %d", got)
	}

	var req createSessionRequest
	if err := json.Unmarshal(env.pds.lastBody(nsidCreateSession), &req); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if req.Identifier != testHandle || req.Password != "app-pass" {
		t.Errorf("unexpected login body: %+v", req)
	}

	for key, want := range map[string]string{
		accessKeyPrefix + "acct-1":  "access-1",
		refreshKeyPrefix + "acct-1": "refresh-1",
		didKeyPrefix + "acct-1":     testDID,
	} {
		got, err := env.store.Get(ctx, key)
		if err != nil || string(got) != want {
			t.Errorf("%s = %q (%v), want %q", key, got, err, want)
		}
	}
	if env.sink.dids["acct-1"] != testDID {
		t.Errorf("expected DID pushed to sink, got %v", env.sink.dids)
	}
	if !acct.IsAuthenticated(ctx) {
		t.Error("expected IsAuthenticated after login")
	}
}

func TestAuthenticate_AccessTokenExpires(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	acct := env.account()
	ctx := context.Background()
	env.pds.handle(nsidRefreshSession, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer refresh-1" {
			t.Errorf("refresh called with %q", r.Header.Get("Authorization"))
		}
		writeJSON(w, http.StatusOK, sessionResponse{DID: testDID, AccessJwt: "access-2", RefreshJwt: "refresh-2"})
	})

	if err := acct.Authenticate(ctx, false); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	env.clock.Advance(AccessTokenTTL + time.Second)

	if err := acct.Authenticate(ctx, false); err != nil {
		t.Fatalf("Authenticate after expiry: %v", err)
	}
	if got := env.pds.count(nsidRefreshSession); got != 1 {
		t.Errorf("expected refresh to be used, got %d calls", got)
	}
	if got := env.pds.count(nsidCreateSession); got != 1 {
		t.Errorf("expected no second login, got %d", got)
	}
	tok, _ := env.store.Get(ctx, accessKeyPrefix+"acct-1")
	if string(tok) != "access-2" {
		t.Errorf("expected refreshed access token, got %q", tok)
	}
}

func TestAuthenticate_RefreshFailureFallsBackToLogin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	acct := env.account()
	ctx := context.Background()
	_ = env.store.Set(ctx, refreshKeyPrefix+"acct-1", []byte("stale"), RefreshTokenTTL)
	env.pds.handle(nsidRefreshSession, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, xrpcErrorBody{Error: "ExpiredToken", Message: "Token has expired"})
	})

	if err := acct.Authenticate(ctx, false); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if env.pds.count(nsidRefreshSession) != 1 || env.pds.count(nsidCreateSession) != 1 {
		t.Errorf("expected one refresh then one login, got refresh=%d login=%d",
			env.pds.count(nsidRefreshSession), env.pds.count(nsidCreateSession))
	}
	tok, _ := env.store.Get(ctx, refreshKeyPrefix+"acct-1")
	if string(tok) != "refresh-1" {
		t.Errorf("expected stale refresh token replaced, got %q", tok)
	}
}

func TestAuthenticate_ForceBypassesCache(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	acct := env.account()
	ctx := context.Background()
	_ = env.store.Set(ctx, accessKeyPrefix+"acct-1", []byte("cached"), time.Hour)

	if err := acct.Authenticate(ctx, true); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got := env.pds.count(nsidCreateSession); got != 1 {
		t.Errorf("expected forced login, got %d calls", got)
	}
}

func TestAuthenticate_RejectedCredentials(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	acct := env.account()
	env.pds.handle(nsidCreateSession, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, xrpcErrorBody{Error: "AuthenticationRequired", Message: "Invalid identifier or password"})
	})

	err := acct.Authenticate(context.Background(), false)
	if KindOf(err) != KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
	last := acct.LastError()
	if last == nil {
		t.Fatal("expected LastError to be recorded")
	}
	if last.Code != "AuthenticationRequired" || last.HTTPStatus != http.StatusUnauthorized {
		t.Errorf("unexpected LastError: %+v", last)
	}
	if acct.IsAuthenticated(context.Background()) {
		t.Error("expected no cached token after failed login")
	}
}

func TestAuthenticate_UndecryptablePassword(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	acct := env.client.Account(Credentials{AccountID: "acct-2", Handle: testHandle, EncryptedPassword: "garbage"})

	err := acct.Authenticate(context.Background(), false)
	if KindOf(err) != KindCredentials {
		t.Fatalf("expected credentials error, got %v", err)
	}
	if env.pds.count(nsidCreateSession) != 0 {
		t.Error("expected no network call when the password cannot be decrypted")
	}
}

func TestAccessTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sign := func(exp time.Time) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("test-key"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}

	tests := []struct {
		name  string
		token string
		want  time.Duration
	}{
		{"short lived", sign(now.Add(10 * time.Minute)), 10 * time.Minute},
		{"long lived", sign(now.Add(3 * time.Hour)), AccessTokenTTL},
		{"already expired", sign(now.Add(-time.Minute)), AccessTokenTTL},
		{"opaque", "access-1", AccessTokenTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := accessTTL(tt.token, now); got != tt.want {
				t.Errorf("accessTTL = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	acct := env.account()
	ctx := context.Background()
	if err := acct.Authenticate(ctx, false); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	_ = env.store.Set(ctx, feedKeyPrefix+"acct-1:10:false:false", []byte("[]"), FeedCacheTTL)
	_ = env.store.Set(ctx, feedKeyPrefix+"acct-10:10:false:false", []byte("[]"), FeedCacheTTL)
	_ = env.store.Set(ctx, profileKeyPrefix+"acct-1", []byte("{}"), ProfileCacheTTL)

	if !acct.Logout(ctx) {
		t.Fatal("expected clean logout")
	}

	for _, key := range []string{
		accessKeyPrefix + "acct-1",
		refreshKeyPrefix + "acct-1",
		didKeyPrefix + "acct-1",
		profileKeyPrefix + "acct-1",
		feedKeyPrefix + "acct-1:10:false:false",
	} {
		if _, err := env.store.Get(ctx, key); err == nil {
			t.Errorf("expected %s removed", key)
		}
	}
	if _, err := env.store.Get(ctx, feedKeyPrefix+"acct-10:10:false:false"); err != nil {
		t.Error("expected other account's feed cache untouched")
	}
	if len(env.sink.cleared) != 1 || env.sink.cleared[0] != "acct-1" {
		t.Errorf("expected credentials cleared for acct-1, got %v", env.sink.cleared)
	}
}

func TestResetSession_RenamedAccountLogsInAgain(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Options{})
	env.pds.handle(nsidCreateSession, func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		name := strings.TrimSuffix(req.Identifier, ".bsky.social")
		writeJSON(w, http.StatusOK, sessionResponse{
			DID:        "did:plc:" + name,
			Handle:     req.Identifier,
			AccessJwt:  "tok-" + name,
			RefreshJwt: "refresh-" + name,
		})
	})

	var mu sync.Mutex
	var auths []string
	env.pds.handle(nsidCreateRecord, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		createdRecordHandler(w, r)
	})

	ctx := context.Background()
	post := PostInput{Title: "Hello", URL: "https://example.com/hello"}

	alice := env.client.Account(Credentials{AccountID: "acct-1", Handle: "alice.bsky.social", EncryptedPassword: "enc:pw"})
	if _, err := alice.CreatePost(ctx, post); err != nil {
		t.Fatalf("CreatePost as alice: %v", err)
	}
	_ = env.store.Set(ctx, profileKeyPrefix+"acct-1", []byte("{}"), ProfileCacheTTL)
	_ = env.store.Set(ctx, feedKeyPrefix+"acct-1:10:false:false", []byte("[]"), FeedCacheTTL)

	if err := env.client.ResetSession(ctx, "acct-1"); err != nil {
		t.Fatalf("ResetSession: %v", err)
	}
	for _, key := range []string{
		accessKeyPrefix + "acct-1",
		refreshKeyPrefix + "acct-1",
		didKeyPrefix + "acct-1",
		profileKeyPrefix + "acct-1",
		feedKeyPrefix + "acct-1:10:false:false",
	} {
		if _, err := env.store.Get(ctx, key); err == nil {
			t.Errorf("expected %s removed", key)
		}
	}

	bob := env.client.Account(Credentials{AccountID: "acct-1", Handle: "bob.bsky.social", EncryptedPassword: "enc:pw"})
	if _, err := bob.CreatePost(ctx, post); err != nil {
		t.Fatalf("CreatePost as bob: %v", err)
	}

	if got := env.pds.count(nsidCreateSession); got != 2 {
		t.Errorf("expected a fresh login after the rename, got %d createSession calls", got)
	}
	req := decodeRecord(t, env.pds.lastBody(nsidCreateRecord))
	if req.Repo != "did:plc:bob" {
		t.Errorf("post written to repo %q, want did:plc:bob", req.Repo)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(auths) != 2 || auths[1] != "Bearer tok-bob" {
		t.Errorf("authorization headers = %v", auths)
	}
	if len(env.sink.cleared) != 0 {
		t.Errorf("ResetSession must not clear stored credentials, got %v", env.sink.cleared)
	}
}
