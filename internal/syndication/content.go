// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package syndication

import (
	"context"
	"errors"
	"time"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

const contentKeyPrefix = "content:"

// ErrContentNotFound is returned when a content id has no stored record.
var ErrContentNotFound = errors.New("syndication: content not found")

// Content is a locally authored item that can be syndicated.
type Content struct {
	ID          string    `json:"id" validate:"required,max=200"`
	Title       string    `json:"title" validate:"required,max=1000"`
	URL         string    `json:"url" validate:"required,url"`
	Excerpt     string    `json:"excerpt,omitempty" validate:"max=5000"`
	ImageURL    string    `json:"image_url,omitempty" validate:"omitempty,url"`
	Categories  []string  `json:"categories,omitempty"`
	Langs       []string  `json:"langs,omitempty" validate:"omitempty,dive,min=2,max=8"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// PostInput converts the item into a post request.
func (c *Content) PostInput() bluesky.PostInput {
	return bluesky.PostInput{
		Title:    c.Title,
		URL:      c.URL,
		Excerpt:  c.Excerpt,
		ImageURL: c.ImageURL,
		Langs:    c.Langs,
	}
}

// ContentStore persists content records at "content:<id>".
type ContentStore struct {
	store store.Store
}

// NewContentStore creates a ContentStore over s.
func NewContentStore(s store.Store) *ContentStore {
	return &ContentStore{store: s}
}

// Put inserts or replaces a content record.
func (cs *ContentStore) Put(ctx context.Context, c *Content) error {
	if c.ID == "" {
		return errors.New("syndication: content id is required")
	}
	return store.SetJSON(ctx, cs.store, contentKeyPrefix+c.ID, c, 0)
}

// Get loads a content record.
func (cs *ContentStore) Get(ctx context.Context, id string) (*Content, error) {
	var c Content
	found, err := store.GetJSON(ctx, cs.store, contentKeyPrefix+id, &c)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrContentNotFound
	}
	return &c, nil
}

// Delete removes a content record.
func (cs *ContentStore) Delete(ctx context.Context, id string) error {
	return cs.store.Delete(ctx, contentKeyPrefix+id)
}
