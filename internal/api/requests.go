// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package api

// Request structs validated with go-playground/validator tags. Custom tags
// (bskyhandle, atposturi) are registered by the validation package.

import (
	"time"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/accounts"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/syndication"
)

// CreateAccountRequest is the body of POST /accounts.
type CreateAccountRequest struct {
	Handle        string                 `json:"handle" validate:"required,bskyhandle"`
	AppPassword   string                 `json:"app_password" validate:"required,min=4,max=256"`
	AutoSyndicate *bool                  `json:"auto_syndicate,omitempty"`
	CategoryRules accounts.CategoryRules `json:"category_rules"`
}

// UpdateAccountRequest is the body of PATCH /accounts/{id}. Absent fields
// are left unchanged.
type UpdateAccountRequest struct {
	Handle        *string                 `json:"handle,omitempty" validate:"omitempty,bskyhandle"`
	AppPassword   *string                 `json:"app_password,omitempty" validate:"omitempty,min=4,max=256"`
	AutoSyndicate *bool                   `json:"auto_syndicate,omitempty"`
	CategoryRules *accounts.CategoryRules `json:"category_rules,omitempty"`
}

// Patch converts the request into a registry patch.
func (u *UpdateAccountRequest) Patch() accounts.Patch {
	return accounts.Patch{
		Handle:        u.Handle,
		AppPassword:   u.AppPassword,
		AutoSyndicate: u.AutoSyndicate,
		CategoryRules: u.CategoryRules,
	}
}

// ContentRequest is the body of PUT /content/{id}. AccountIDs overrides
// target selection when non-empty.
type ContentRequest struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Excerpt     string    `json:"excerpt,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Langs       []string  `json:"langs,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	AccountIDs  []string  `json:"account_ids,omitempty" validate:"omitempty,max=50,dive,uuid4"`
}

// Content builds the stored record for id.
func (c *ContentRequest) Content(id string) *syndication.Content {
	return &syndication.Content{
		ID:          id,
		Title:       c.Title,
		URL:         c.URL,
		Excerpt:     c.Excerpt,
		ImageURL:    c.ImageURL,
		Categories:  c.Categories,
		Langs:       c.Langs,
		PublishedAt: c.PublishedAt,
	}
}

// FeedQuery holds the query parameters of GET /accounts/{id}/feed.
type FeedQuery struct {
	Limit          int `validate:"min=1,max=100"`
	ExcludeReplies bool
	ExcludeReposts bool
}

// PostQuery holds the query parameters of the /posts endpoints.
type PostQuery struct {
	URI     string `validate:"required,atposturi"`
	Account string `validate:"required,uuid4"`
}

// ActivityQuery holds the query parameters of the activity endpoints.
type ActivityQuery struct {
	Type string `validate:"omitempty,oneof=syndication_success syndication_failed rate_limited circuit_open retry_scheduled auth_error manual_retry"`
}
