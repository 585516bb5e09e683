// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/config"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/logging"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router from server and security configuration.
func NewRouter(handler *Handler, server *config.ServerConfig, security *config.SecurityConfig) *Router {
	mwConfig := DefaultChiMiddlewareConfig()
	if server != nil {
		mwConfig.CORSAllowedOrigins = server.CORSOrigins
		mwConfig.RateLimitRequests = server.RateLimitRequests
		mwConfig.RateLimitWindow = server.RateLimitWindow
		mwConfig.RateLimitDisabled = server.RateLimitDisabled
	}
	if security != nil {
		mwConfig.APIToken = security.APIToken
	}
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(mwConfig),
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Applied to ALL routes in order
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger())
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight
	r.Use(PrometheusMetrics())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Unauthenticated probes
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.With(router.chiMiddleware.RequireToken()).Get("/", router.handler.Health)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(router.chiMiddleware.RequireToken())

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", router.handler.ListAccounts)
			r.Post("/", router.handler.CreateAccount)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(TagLogContext("id", logging.ContextWithAccount))
				r.Get("/", router.handler.GetAccount)
				r.Patch("/", router.handler.UpdateAccount)
				r.Delete("/", router.handler.DeleteAccount)
				r.Post("/activate", router.handler.ActivateAccount)
				r.Post("/logout", router.handler.LogoutAccount)
				r.Get("/profile", router.handler.AccountProfile)
				r.Get("/feed", router.handler.AccountFeed)
			})
		})

		r.Route("/content/{id}", func(r chi.Router) {
			r.Use(TagLogContext("id", logging.ContextWithContent))
			r.With(router.chiMiddleware.RateLimitWrite()).Put("/", router.handler.PutContent)
			r.Get("/syndication", router.handler.ContentSyndication)
			r.Delete("/syndication", router.handler.UnlinkContent)
			r.With(router.chiMiddleware.RateLimitWrite()).Post("/retry", router.handler.RetryContent)
		})

		r.Get("/posts/thread", router.handler.PostThread)
		r.Get("/posts/stats", router.handler.PostStats)

		r.Get("/activity", router.handler.Activity)
		r.Get("/activity.atom", router.handler.ActivityAtom)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
