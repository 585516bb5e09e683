// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package bluesky

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/store"
)

const (
	// FeedCacheTTL bounds staleness of cached author feeds.
	FeedCacheTTL = 5 * time.Minute
	// ProfileCacheTTL bounds staleness of cached profiles.
	ProfileCacheTTL = time.Hour

	// ThreadDepth is the reply depth requested for threads.
	ThreadDepth = 10

	defaultFeedLimit = 10
	maxFeedLimit     = 100

	feedKeyPrefix    = "bsky:feed:"
	profileKeyPrefix = "bsky:profile:"
)

// FetchFeed returns the account's most recent posts. When replies or
// reposts are excluded the client over-fetches (up to 100) so the filtered
// result can still reach the requested limit.
func (a *AccountClient) FetchFeed(ctx context.Context, opts FeedOptions) ([]FeedItem, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}

	cacheKey := fmt.Sprintf("%s%s:%d:%t:%t", feedKeyPrefix, a.creds.AccountID, limit, opts.ExcludeReplies, opts.ExcludeReposts)
	var cached []FeedItem
	if found, err := store.GetJSON(ctx, a.client.store, cacheKey, &cached); err == nil && found {
		return cached, nil
	}

	fetchLimit := limit
	if opts.ExcludeReplies || opts.ExcludeReposts {
		fetchLimit = maxFeedLimit
	}

	var feed authorFeedResponse
	err := a.authorized(ctx, func(token string) error {
		_, err := a.client.doRequest(ctx, requestConfig{
			method: http.MethodGet,
			nsid:   nsidGetAuthorFeed,
			query:  url.Values{"actor": {a.actor(ctx)}, "limit": {strconv.Itoa(fetchLimit)}},
			token:  token,
		}, &feed)
		return err
	})
	if err != nil {
		return nil, err
	}

	items := make([]FeedItem, 0, limit)
	for i := range feed.Feed {
		item := a.client.normalizeFeedPost(&feed.Feed[i])
		if opts.ExcludeReplies && item.IsReply {
			continue
		}
		if opts.ExcludeReposts && item.IsRepost {
			continue
		}
		items = append(items, item)
		if len(items) == limit {
			break
		}
	}

	if err := store.SetJSON(ctx, a.client.store, cacheKey, items, FeedCacheTTL); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to cache feed")
	}
	return items, nil
}

// FetchProfile returns the account's profile, cached for an hour.
func (a *AccountClient) FetchProfile(ctx context.Context) (*Profile, error) {
	cacheKey := profileKeyPrefix + a.creds.AccountID
	var cached Profile
	if found, err := store.GetJSON(ctx, a.client.store, cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	var pv profileView
	err := a.authorized(ctx, func(token string) error {
		_, err := a.client.doRequest(ctx, requestConfig{
			method: http.MethodGet,
			nsid:   nsidGetProfile,
			query:  url.Values{"actor": {a.actor(ctx)}},
			token:  token,
		}, &pv)
		return err
	})
	if err != nil {
		return nil, err
	}

	p := &Profile{
		DID:            pv.DID,
		Handle:         pv.Handle,
		DisplayName:    pv.DisplayName,
		Description:    pv.Description,
		Avatar:         pv.Avatar,
		Banner:         pv.Banner,
		FollowersCount: pv.FollowersCount,
		FollowsCount:   pv.FollowsCount,
		PostsCount:     pv.PostsCount,
	}
	if err := store.SetJSON(ctx, a.client.store, cacheKey, p, ProfileCacheTTL); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to cache profile")
	}
	return p, nil
}

// GetThread returns the post at uri with up to ThreadDepth levels of
// replies. Deleted or blocked replies are omitted.
func (a *AccountClient) GetThread(ctx context.Context, uri string) (*Thread, error) {
	var resp postThreadResponse
	err := a.authorized(ctx, func(token string) error {
		_, err := a.client.doRequest(ctx, requestConfig{
			method: http.MethodGet,
			nsid:   nsidGetPostThread,
			query:  url.Values{"uri": {uri}, "depth": {strconv.Itoa(ThreadDepth)}},
			token:  token,
		}, &resp)
		return err
	})
	if err != nil {
		return nil, err
	}

	if resp.Thread.Type != typeThreadView || resp.Thread.Post == nil {
		return nil, &APIError{Kind: KindClient, Endpoint: nsidGetPostThread, Code: "NotFound", Message: "thread root is not available"}
	}
	t := a.client.normalizeThread(&resp.Thread)
	return &t, nil
}

// GetPostStats returns engagement counters for uri.
func (a *AccountClient) GetPostStats(ctx context.Context, uri string) (*PostStats, error) {
	var resp getPostsResponse
	err := a.authorized(ctx, func(token string) error {
		_, err := a.client.doRequest(ctx, requestConfig{
			method: http.MethodGet,
			nsid:   nsidGetPosts,
			query:  url.Values{"uris": {uri}},
			token:  token,
		}, &resp)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Posts) == 0 {
		return nil, &APIError{Kind: KindClient, Endpoint: nsidGetPosts, Code: "NotFound", Message: "post not found"}
	}
	p := resp.Posts[0]
	return &PostStats{
		URI:         p.URI,
		LikeCount:   p.LikeCount,
		RepostCount: p.RepostCount,
		ReplyCount:  p.ReplyCount,
		QuoteCount:  p.QuoteCount,
	}, nil
}

// actor is the DID once known, else the handle.
func (a *AccountClient) actor(ctx context.Context) string {
	if did := a.DID(ctx); did != "" {
		return did
	}
	return a.creds.Handle
}

func (c *Client) normalizeThread(tv *threadViewPost) Thread {
	t := Thread{Post: c.normalizePost(tv.Post)}
	for i := range tv.Replies {
		r := &tv.Replies[i]
		if r.Type != typeThreadView || r.Post == nil {
			continue
		}
		t.Replies = append(t.Replies, c.normalizeThread(r))
	}
	return t
}

func (c *Client) normalizeFeedPost(fp *feedViewPost) FeedItem {
	item := c.normalizePost(&fp.Post)
	item.IsReply = item.IsReply || len(fp.Reply) > 0
	item.IsRepost = fp.Reason != nil && fp.Reason.Type == typeReasonRepost
	return item
}

func (c *Client) normalizePost(pv *postView) FeedItem {
	item := FeedItem{
		URI:               pv.URI,
		CID:               pv.CID,
		URL:               c.PostURL(pv.Author.DID, pv.URI),
		Text:              pv.Record.Text,
		AuthorDID:         pv.Author.DID,
		AuthorHandle:      pv.Author.Handle,
		AuthorDisplayName: pv.Author.DisplayName,
		AuthorAvatar:      pv.Author.Avatar,
		LikeCount:         pv.LikeCount,
		RepostCount:       pv.RepostCount,
		ReplyCount:        pv.ReplyCount,
		QuoteCount:        pv.QuoteCount,
		IsReply:           len(pv.Record.Reply) > 0 && string(pv.Record.Reply) != "null",
	}
	if ts, err := time.Parse(time.RFC3339, pv.Record.CreatedAt); err == nil {
		item.CreatedAt = ts
	} else if ts, err := time.Parse(time.RFC3339, pv.IndexedAt); err == nil {
		item.CreatedAt = ts
	}

	if pv.Embed != nil {
		switch pv.Embed.Type {
		case typeImagesView:
			for _, img := range pv.Embed.Images {
				item.Images = append(item.Images, Image{Thumb: img.Thumb, Fullsize: img.Fullsize, Alt: img.Alt})
			}
		case typeExternalView:
			if ext := pv.Embed.External; ext != nil {
				item.External = &ExternalLink{URI: ext.URI, Title: ext.Title, Description: ext.Description, Thumb: ext.Thumb}
			}
		}
	}
	return item
}

// PostURL builds the public web URL of a post from its author DID and AT-URI.
func (c *Client) PostURL(did, atURI string) string {
	rkey := RecordKey(atURI)
	if did == "" || rkey == "" {
		return ""
	}
	return c.opts.PublicURL + "/profile/" + did + "/post/" + rkey
}

// RecordKey returns the last path segment of an AT-URI.
func RecordKey(atURI string) string {
	if i := strings.LastIndexByte(atURI, '/'); i >= 0 && i < len(atURI)-1 {
		return atURI[i+1:]
	}
	return ""
}
