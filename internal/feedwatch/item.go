// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package feedwatch

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/syndication"
)

// maxExcerptGraphemes bounds the stored excerpt; post composition trims further.
const maxExcerptGraphemes = 1000

// itemKey derives a stable identity for a feed item. GUID wins, then link.
// An empty result means the item cannot be tracked and is skipped.
func itemKey(item *gofeed.Item) string {
	id := strings.TrimSpace(item.GUID)
	if id == "" {
		id = strings.TrimSpace(item.Link)
	}
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// itemLink returns the item permalink, falling back to a URL-shaped GUID.
func itemLink(item *gofeed.Item) string {
	if item.Link != "" {
		return item.Link
	}
	if strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://") {
		return item.GUID
	}
	return ""
}

// itemImage picks the feed image or the first image enclosure.
func itemImage(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

// toContent converts a parsed item into a content record. It returns nil
// for items without a usable link or title.
func toContent(feed *gofeed.Feed, item *gofeed.Item, key string, policy *bluemonday.Policy) *syndication.Content {
	link := itemLink(item)
	title := bluesky.CleanText(policy, item.Title)
	if link == "" || title == "" {
		return nil
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	c := &syndication.Content{
		ID:         "feed-" + key[:32],
		Title:      title,
		URL:        link,
		Excerpt:    bluesky.Truncate(bluesky.CleanText(policy, summary), maxExcerptGraphemes),
		ImageURL:   itemImage(item),
		Categories: item.Categories,
	}
	if lang := strings.ToLower(strings.TrimSpace(feed.Language)); len(lang) >= 2 && len(lang) <= 8 {
		c.Langs = []string{lang}
	}
	switch {
	case item.PublishedParsed != nil:
		c.PublishedAt = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		c.PublishedAt = item.UpdatedParsed.UTC()
	}
	return c
}
