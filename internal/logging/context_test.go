// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestGenerateCorrelationID(t *testing.T) {
	t.Parallel()

	id1 := GenerateCorrelationID()
	id2 := GenerateCorrelationID()

	if len(id1) != 8 {
		t.Errorf("expected 8-character correlation ID, got %d", len(id1))
	}
	if id1 == id2 {
		t.Error("expected unique correlation IDs")
	}
}

func TestGenerateRequestID(t *testing.T) {
	t.Parallel()

	id := GenerateRequestID()
	if len(id) != 36 { // UUID format
		t.Errorf("expected 36-character request ID, got %d", len(id))
	}
}

func TestCorrelationIDContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if id := CorrelationIDFromContext(ctx); id != "" {
		t.Errorf("expected empty correlation ID, got %s", id)
	}

	ctx = ContextWithCorrelationID(ctx, "abc12345")
	if id := CorrelationIDFromContext(ctx); id != "abc12345" {
		t.Errorf("expected abc12345, got %s", id)
	}
}

func TestContextWithNewCorrelationID(t *testing.T) {
	t.Parallel()

	ctx := ContextWithNewCorrelationID(context.Background())
	if id := CorrelationIDFromContext(ctx); len(id) != 8 {
		t.Errorf("expected generated correlation ID, got %q", id)
	}
}

func TestRequestIDContext(t *testing.T) {
	t.Parallel()

	ctx := ContextWithRequestID(context.Background(), "req-1")
	if id := RequestIDFromContext(ctx); id != "req-1" {
		t.Errorf("expected req-1, got %s", id)
	}
}

func TestLoggerFromContext_NoLogger(t *testing.T) {
	t.Parallel()

	l := LoggerFromContext(context.Background())
	if l.GetLevel() == zerolog.Disabled {
		t.Error("expected global logger fallback")
	}
}

func TestCtx(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), NewTestLogger(&buf))
	ctx = ContextWithRequestID(ctx, "req-42")
	ctx = ContextWithCorrelationID(ctx, "corr0001")
	ctx = ContextWithAccount(ctx, "acct-1")
	ctx = ContextWithContent(ctx, "post-9")

	Ctx(ctx).Info().Msg("Post created")

	out := buf.String()
	for _, want := range []string{
		`"request_id":"req-42"`,
		`"correlation_id":"corr0001"`,
		`"account_id":"acct-1"`,
		`"content_id":"post-9"`,
		`"message":"Post created"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got %s", want, out)
		}
	}
}

func TestCtxWith_OmitsEmptyValues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), NewTestLogger(&buf))
	ctx = ContextWithAccount(ctx, "")

	l := CtxWith(ctx).Str("extra", "yes").Logger()
	l.Info().Msg("x")

	out := buf.String()
	if strings.Contains(out, "account_id") {
		t.Errorf("expected empty account id to be omitted, got %s", out)
	}
	if !strings.Contains(out, `"extra":"yes"`) {
		t.Errorf("expected extra field, got %s", out)
	}
}
