// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package bluesky

import (
	"time"

	"github.com/goccy/go-json"
)

// XRPC method IDs.
const (
	nsidCreateSession  = "com.atproto.server.createSession"
	nsidRefreshSession = "com.atproto.server.refreshSession"
	nsidUploadBlob     = "com.atproto.repo.uploadBlob"
	nsidCreateRecord   = "com.atproto.repo.createRecord"
	nsidGetAuthorFeed  = "app.bsky.feed.getAuthorFeed"
	nsidGetProfile     = "app.bsky.actor.getProfile"
	nsidGetPostThread  = "app.bsky.feed.getPostThread"
	nsidGetPosts       = "app.bsky.feed.getPosts"
)

// Record and union type names.
const (
	typePost          = "app.bsky.feed.post"
	typeEmbedExternal = "app.bsky.embed.external"
	typeFacetLink     = "app.bsky.richtext.facet#link"
	typeReasonRepost  = "app.bsky.feed.defs#reasonRepost"
	typeThreadView    = "app.bsky.feed.defs#threadViewPost"
	typeImagesView    = "app.bsky.embed.images#view"
	typeExternalView  = "app.bsky.embed.external#view"
)

// Credentials identifies one configured account to the client.
type Credentials struct {
	AccountID         string
	Handle            string
	EncryptedPassword string
	DID               string
}

// FeedOptions controls FetchFeed.
type FeedOptions struct {
	Limit          int
	ExcludeReplies bool
	ExcludeReposts bool
}

// PostInput is the content to syndicate.
type PostInput struct {
	Title    string
	URL      string
	Excerpt  string
	ImageURL string
	Langs    []string
}

// PostInfo identifies a created post.
type PostInfo struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
	URL string `json:"url"`
}

// PostStats are engagement counters of one post.
type PostStats struct {
	URI         string `json:"uri"`
	LikeCount   int    `json:"like_count"`
	RepostCount int    `json:"repost_count"`
	ReplyCount  int    `json:"reply_count"`
	QuoteCount  int    `json:"quote_count"`
}

// Profile is the normalized actor profile.
type Profile struct {
	DID            string `json:"did"`
	Handle         string `json:"handle"`
	DisplayName    string `json:"display_name,omitempty"`
	Description    string `json:"description,omitempty"`
	Avatar         string `json:"avatar,omitempty"`
	Banner         string `json:"banner,omitempty"`
	FollowersCount int    `json:"followers_count"`
	FollowsCount   int    `json:"follows_count"`
	PostsCount     int    `json:"posts_count"`
}

// Image is an image attached to a post.
type Image struct {
	Thumb    string `json:"thumb"`
	Fullsize string `json:"fullsize"`
	Alt      string `json:"alt,omitempty"`
}

// ExternalLink is a link-card embed.
type ExternalLink struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Thumb       string `json:"thumb,omitempty"`
}

// FeedItem is a normalized post as shown in a feed or thread.
type FeedItem struct {
	URI               string        `json:"uri"`
	CID               string        `json:"cid"`
	URL               string        `json:"url"`
	Text              string        `json:"text"`
	CreatedAt         time.Time     `json:"created_at"`
	AuthorDID         string        `json:"author_did"`
	AuthorHandle      string        `json:"author_handle"`
	AuthorDisplayName string        `json:"author_display_name,omitempty"`
	AuthorAvatar      string        `json:"author_avatar,omitempty"`
	LikeCount         int           `json:"like_count"`
	RepostCount       int           `json:"repost_count"`
	ReplyCount        int           `json:"reply_count"`
	QuoteCount        int           `json:"quote_count"`
	IsReply           bool          `json:"is_reply"`
	IsRepost          bool          `json:"is_repost"`
	Images            []Image       `json:"images,omitempty"`
	External          *ExternalLink `json:"external,omitempty"`
}

// Thread is a post with its nested replies.
type Thread struct {
	Post    FeedItem `json:"post"`
	Replies []Thread `json:"replies,omitempty"`
}

// --- wire types ---

type createSessionRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type sessionResponse struct {
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
}

type xrpcErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type uploadBlobResponse struct {
	Blob json.RawMessage `json:"blob"`
}

type createRecordRequest struct {
	Repo       string     `json:"repo"`
	Collection string     `json:"collection"`
	Record     postRecord `json:"record"`
}

type createRecordResponse struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type postRecord struct {
	Type      string         `json:"$type"`
	Text      string         `json:"text"`
	CreatedAt string         `json:"createdAt"`
	Langs     []string       `json:"langs,omitempty"`
	Facets    []Facet        `json:"facets,omitempty"`
	Embed     *externalEmbed `json:"embed,omitempty"`
}

// Facet annotates a UTF-8 byte range of the post text.
type Facet struct {
	Index    ByteSlice      `json:"index"`
	Features []FacetFeature `json:"features"`
}

// ByteSlice is a half-open UTF-8 byte range.
type ByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

// FacetFeature is a rich-text feature (only links are produced).
type FacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri"`
}

type externalEmbed struct {
	Type     string           `json:"$type"`
	External externalEmbedRef `json:"external"`
}

type externalEmbedRef struct {
	URI         string          `json:"uri"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Thumb       json.RawMessage `json:"thumb,omitempty"`
}

type profileView struct {
	DID            string `json:"did"`
	Handle         string `json:"handle"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	Avatar         string `json:"avatar"`
	Banner         string `json:"banner"`
	FollowersCount int    `json:"followersCount"`
	FollowsCount   int    `json:"followsCount"`
	PostsCount     int    `json:"postsCount"`
}

type authorView struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

type postView struct {
	URI         string          `json:"uri"`
	CID         string          `json:"cid"`
	Author      authorView      `json:"author"`
	Record      postViewRecord  `json:"record"`
	Embed       *embedView      `json:"embed"`
	LikeCount   int             `json:"likeCount"`
	RepostCount int             `json:"repostCount"`
	ReplyCount  int             `json:"replyCount"`
	QuoteCount  int             `json:"quoteCount"`
	IndexedAt   string          `json:"indexedAt"`
	Labels      json.RawMessage `json:"labels,omitempty"`
}

type postViewRecord struct {
	Text      string          `json:"text"`
	CreatedAt string          `json:"createdAt"`
	Reply     json.RawMessage `json:"reply,omitempty"`
}

type embedView struct {
	Type     string `json:"$type"`
	Images   []struct {
		Thumb    string `json:"thumb"`
		Fullsize string `json:"fullsize"`
		Alt      string `json:"alt"`
	} `json:"images"`
	External *struct {
		URI         string `json:"uri"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Thumb       string `json:"thumb"`
	} `json:"external"`
}

type feedViewPost struct {
	Post   postView        `json:"post"`
	Reply  json.RawMessage `json:"reply,omitempty"`
	Reason *struct {
		Type string `json:"$type"`
	} `json:"reason,omitempty"`
}

type authorFeedResponse struct {
	Feed   []feedViewPost `json:"feed"`
	Cursor string         `json:"cursor"`
}

type threadViewPost struct {
	Type    string           `json:"$type"`
	Post    *postView        `json:"post"`
	Replies []threadViewPost `json:"replies"`
}

type postThreadResponse struct {
	Thread threadViewPost `json:"thread"`
}

type getPostsResponse struct {
	Posts []postView `json:"posts"`
}
