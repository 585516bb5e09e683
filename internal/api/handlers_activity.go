// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/feeds"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/ledger"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/logging"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/validation"
)

func (h *Handler) recentActivity(w http.ResponseWriter, r *http.Request) ([]ledger.Event, bool) {
	q := ActivityQuery{Type: r.URL.Query().Get("type")}
	if verr := validation.ValidateStruct(&q); verr != nil {
		NewResponseWriter(w, r).writeErr(verr)
		return nil, false
	}
	events, err := h.svc.Activity(r.Context(), ledger.EventType(q.Type))
	if err != nil {
		NewResponseWriter(w, r).writeErr(err)
		return nil, false
	}
	return events, true
}

// Activity handles GET /api/v1/activity?type=.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	events, ok := h.recentActivity(w, r)
	if !ok {
		return
	}
	if events == nil {
		events = []ledger.Event{}
	}
	NewResponseWriter(w, r).SuccessWithPagination(events, &PaginationMeta{Count: len(events)})
}

// ActivityAtom handles GET /api/v1/activity.atom, the same events as an
// Atom feed for feed readers.
func (h *Handler) ActivityAtom(w http.ResponseWriter, r *http.Request) {
	events, ok := h.recentActivity(w, r)
	if !ok {
		return
	}

	base := requestBaseURL(r)
	updated := time.Now().UTC()
	if len(events) > 0 {
		updated = events[0].Time
	}

	feed := &feeds.Feed{
		Title:       "Syndication activity",
		Link:        &feeds.Link{Href: base + "/api/v1/activity"},
		Description: "Recent syndication events",
		Id:          base + "/api/v1/activity.atom",
		Updated:     updated,
		Created:     updated,
	}
	feed.Items = make([]*feeds.Item, 0, len(events))
	for _, ev := range events {
		link := base + "/api/v1/activity"
		if ev.ContentID != "" {
			link = fmt.Sprintf("%s/api/v1/content/%s/syndication", base, ev.ContentID)
		}
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          base + "/api/v1/activity#" + ev.ID,
			Title:       fmt.Sprintf("%s: %s", ev.Type, ev.Message),
			Link:        &feeds.Link{Href: link},
			Description: ev.Message,
			Created:     ev.Time,
			Updated:     ev.Time,
		})
	}

	atom, err := feed.ToAtom()
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to render activity feed")
		NewResponseWriter(w, r).InternalError("failed to render feed")
		return
	}
	w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(atom)); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to write activity feed")
	}
}

// requestBaseURL reconstructs scheme and host, honouring a TLS-terminating
// proxy.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
