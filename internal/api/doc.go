// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

/*
Package api exposes the operator HTTP API on a chi router.

# Endpoints

Health (live and ready need no token):

	GET    /api/v1/health/live
	GET    /api/v1/health/ready
	GET    /api/v1/health                       passive syndication report

Accounts:

	GET    /api/v1/accounts
	POST   /api/v1/accounts
	GET    /api/v1/accounts/{id}
	PATCH  /api/v1/accounts/{id}
	DELETE /api/v1/accounts/{id}
	POST   /api/v1/accounts/{id}/activate
	POST   /api/v1/accounts/{id}/logout
	GET    /api/v1/accounts/{id}/profile
	GET    /api/v1/accounts/{id}/feed?limit=&exclude_replies=&exclude_reposts=

Content and posts:

	PUT    /api/v1/content/{id}                 store and deliver
	GET    /api/v1/content/{id}/syndication
	DELETE /api/v1/content/{id}/syndication     unlink (remote posts stay)
	POST   /api/v1/content/{id}/retry
	GET    /api/v1/posts/thread?uri=&account=
	GET    /api/v1/posts/stats?uri=&account=

Activity:

	GET    /api/v1/activity?type=
	GET    /api/v1/activity.atom?type=

Prometheus metrics are served at /metrics.

# Response Format

Every JSON response uses the APIResponse envelope:

	{"success": true, "data": {...}, "meta": {"request_id": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "ACCOUNT_NOT_FOUND", "message": "...", "request_id": "..."}}

# Middleware

Request ids are attached to the logging context, RealIP and Recoverer come
from chi, CORS from go-chi/cors and per-IP limits from go-chi/httprate.
When security.api_token is set, /api/v1 routes require it as a bearer token.
*/
package api
