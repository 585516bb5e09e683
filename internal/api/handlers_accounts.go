// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/accounts"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/logging"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/validation"
)

// ListAccounts handles GET /api/v1/accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	list, err := h.accounts.List(r.Context())
	if err != nil {
		rw.writeErr(err)
		return
	}
	out := make([]accounts.PublicAccount, 0, len(list))
	for i := range list {
		out = append(out, list[i].Public())
	}
	rw.SuccessWithPagination(out, &PaginationMeta{Count: len(out)})
}

// CreateAccount handles POST /api/v1/accounts.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req CreateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.writeErr(verr)
		return
	}

	id, err := h.accounts.Add(r.Context(), accounts.AddRequest{
		Handle:        req.Handle,
		AppPassword:   req.AppPassword,
		AutoSyndicate: req.AutoSyndicate,
		CategoryRules: req.CategoryRules,
	})
	if err != nil {
		rw.writeErr(err)
		return
	}
	acct, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		rw.writeErr(err)
		return
	}
	rw.Created(acct.Public())
}

// GetAccount handles GET /api/v1/accounts/{id}.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	acct, err := h.accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rw.writeErr(err)
		return
	}
	rw.Success(acct.Public())
}

// UpdateAccount handles PATCH /api/v1/accounts/{id}.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	var req UpdateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.writeErr(verr)
		return
	}
	if err := h.accounts.Update(r.Context(), id, req.Patch()); err != nil {
		rw.writeErr(err)
		return
	}
	acct, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		rw.writeErr(err)
		return
	}
	rw.Success(acct.Public())
}

// DeleteAccount handles DELETE /api/v1/accounts/{id}. Content that still
// references the account is reported, not modified.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	orphaned, err := h.accounts.Remove(r.Context(), id)
	if err != nil {
		rw.writeErr(err)
		return
	}
	rw.Success(map[string]interface{}{
		"id":       id,
		"removed":  true,
		"orphaned": orphaned,
	})
}

// ActivateAccount handles POST /api/v1/accounts/{id}/activate.
func (h *Handler) ActivateAccount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	if err := h.accounts.SetActive(r.Context(), id); err != nil {
		rw.writeErr(err)
		return
	}
	acct, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		rw.writeErr(err)
		return
	}
	rw.Success(acct.Public())
}

// LogoutAccount handles POST /api/v1/accounts/{id}/logout. Cached tokens
// are purged and the stored credentials cleared.
func (h *Handler) LogoutAccount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	acct, err := h.accounts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rw.writeErr(err)
		return
	}
	clean := h.remote.Account(acct.Credentials()).Logout(r.Context())
	if !clean {
		logging.Ctx(r.Context()).Warn().Str("account_id", acct.ID).Msg("Logout finished with errors")
	}
	rw.Success(map[string]interface{}{
		"id":    acct.ID,
		"clean": clean,
	})
}

// AccountProfile handles GET /api/v1/accounts/{id}/profile.
func (h *Handler) AccountProfile(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	remote, err := h.remoteAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rw.writeErr(err)
		return
	}
	profile, err := remote.FetchProfile(r.Context())
	if err != nil {
		rw.writeErr(err)
		return
	}
	rw.Success(profile)
}

// AccountFeed handles GET /api/v1/accounts/{id}/feed.
func (h *Handler) AccountFeed(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	q := FeedQuery{
		Limit:          getIntParam(r, "limit", 10),
		ExcludeReplies: getBoolParam(r, "exclude_replies"),
		ExcludeReposts: getBoolParam(r, "exclude_reposts"),
	}
	if verr := validation.ValidateStruct(&q); verr != nil {
		rw.writeErr(verr)
		return
	}

	remote, err := h.remoteAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rw.writeErr(err)
		return
	}
	items, err := remote.FetchFeed(r.Context(), bluesky.FeedOptions{
		Limit:          q.Limit,
		ExcludeReplies: q.ExcludeReplies,
		ExcludeReposts: q.ExcludeReposts,
	})
	if err != nil {
		rw.writeErr(err)
		return
	}
	rw.SuccessWithPagination(items, &PaginationMeta{Count: len(items), Limit: q.Limit})
}

// getIntParam parses an integer query parameter, returning def when absent
// or malformed.
func getIntParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBoolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
