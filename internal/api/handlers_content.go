// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/validation"
)

// SubmitResult is returned by the content write endpoints.
type SubmitResult struct {
	ContentID string   `json:"content_id"`
	Accounts  []string `json:"accounts"`
	Mode      string   `json:"mode"`
}

// PutContent handles PUT /api/v1/content/{id}: the item is stored and
// delivered to the explicit account list or, when empty, to every account
// whose settings select it.
func (h *Handler) PutContent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	var req ContentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rw.BadRequest(err.Error())
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.writeErr(verr)
		return
	}
	c := req.Content(id)
	if verr := validation.ValidateStruct(c); verr != nil {
		rw.writeErr(verr)
		return
	}
	for _, acctID := range req.AccountIDs {
		if _, err := h.accounts.Get(r.Context(), acctID); err != nil {
			rw.writeErr(err)
			return
		}
	}

	ids, err := h.svc.Submit(r.Context(), c, req.AccountIDs)
	if err != nil {
		rw.writeErr(err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	rw.Accepted(SubmitResult{ContentID: id, Accounts: ids, Mode: h.svc.Mode()})
}

// ContentSyndication handles GET /api/v1/content/{id}/syndication.
func (h *Handler) ContentSyndication(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	st, err := h.svc.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		rw.writeErr(err)
		return
	}
	if st.State == nil && len(st.Accounts) == 0 {
		rw.NotFound("no syndication data for this content")
		return
	}
	rw.Success(st)
}

// RetryContent handles POST /api/v1/content/{id}/retry.
func (h *Handler) RetryContent(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	ids, err := h.svc.Retry(r.Context(), id)
	if err != nil {
		rw.writeErr(err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	rw.Accepted(SubmitResult{ContentID: id, Accounts: ids, Mode: h.svc.Mode()})
}

// UnlinkContent handles DELETE /api/v1/content/{id}/syndication. Remote
// posts are not deleted.
func (h *Handler) UnlinkContent(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Unlink(r.Context(), chi.URLParam(r, "id")); err != nil {
		NewResponseWriter(w, r).writeErr(err)
		return
	}
	NewResponseWriter(w, r).NoContent()
}

// postQuery validates the uri and account query parameters.
func postQuery(r *http.Request) (PostQuery, *validation.RequestValidationError) {
	q := PostQuery{
		URI:     r.URL.Query().Get("uri"),
		Account: r.URL.Query().Get("account"),
	}
	return q, validation.ValidateStruct(&q)
}

// PostThread handles GET /api/v1/posts/thread?uri=&account=.
func (h *Handler) PostThread(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q, verr := postQuery(r)
	if verr != nil {
		rw.writeErr(verr)
		return
	}
	remote, err := h.remoteAccount(r.Context(), q.Account)
	if err != nil {
		rw.writeErr(err)
		return
	}
	thread, err := remote.GetThread(r.Context(), q.URI)
	if err != nil {
		rw.writeErr(err)
		return
	}
	rw.Success(thread)
}

// PostStats handles GET /api/v1/posts/stats?uri=&account=.
func (h *Handler) PostStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q, verr := postQuery(r)
	if verr != nil {
		rw.writeErr(verr)
		return
	}
	remote, err := h.remoteAccount(r.Context(), q.Account)
	if err != nil {
		rw.writeErr(err)
		return
	}
	stats, err := remote.GetPostStats(r.Context(), q.URI)
	if err != nil {
		rw.writeErr(err)
		return
	}
	rw.Success(stats)
}
