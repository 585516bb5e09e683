// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package bluesky

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

var (
	errImageTooLarge = errors.New("image exceeds size limit")
	errNotAnImage    = errors.New("remote resource is not an image")
)

const recordTimeFormat = "2006-01-02T15:04:05.000Z"

// CreatePost publishes one post. With an ImageURL the image is uploaded and
// attached as a link card; otherwise the URL is appended to the text with a
// link facet. Image problems other than rate limiting, an open circuit or
// authentication fall back to the plain link form.
func (a *AccountClient) CreatePost(ctx context.Context, in PostInput) (*PostInfo, error) {
	c := a.client
	title := CleanText(c.sanitizer, in.Title)
	excerpt := CleanText(c.sanitizer, in.Excerpt)
	if title == "" && excerpt == "" && in.URL == "" {
		return nil, &APIError{Kind: KindClient, Endpoint: nsidCreateRecord, Code: "EmptyPost", Message: "nothing to post"}
	}

	langs := in.Langs
	if len(langs) == 0 {
		langs = c.opts.Langs
	}

	var thumb json.RawMessage
	if in.ImageURL != "" && in.URL != "" {
		blob, err := a.uploadThumbnail(ctx, in.ImageURL)
		switch KindOf(err) {
		case "":
			if err != nil {
				a.logger.Warn().Err(err).Str("image_url", in.ImageURL).Msg("Thumbnail skipped, posting plain link")
			}
			thumb = blob
		case KindRateLimit, KindCircuitOpen, KindAuth, KindCredentials:
			return nil, err
		default:
			a.logger.Warn().Err(err).Msg("Thumbnail upload failed, posting plain link")
		}
	}

	record := postRecord{
		Type:      typePost,
		CreatedAt: c.clock.Now().UTC().Format(recordTimeFormat),
		Langs:     langs,
	}
	if thumb != nil {
		record.Text, _ = ComposeText(title, excerpt, "")
		record.Embed = &externalEmbed{
			Type: typeEmbedExternal,
			External: externalEmbedRef{
				URI:         in.URL,
				Title:       title,
				Description: Truncate(excerpt, MaxGraphemes),
				Thumb:       thumb,
			},
		}
	} else {
		record.Text, record.Facets = ComposeText(title, excerpt, in.URL)
	}

	var created createRecordResponse
	var did string
	err := a.authorized(ctx, func(token string) error {
		did = a.DID(ctx)
		_, err := c.doRequest(ctx, requestConfig{
			method: http.MethodPost,
			nsid:   nsidCreateRecord,
			body:   createRecordRequest{Repo: did, Collection: typePost, Record: record},
			token:  token,
		}, &created)
		return err
	})
	if err != nil {
		return nil, err
	}
	if created.URI == "" || created.CID == "" {
		return nil, &APIError{Kind: KindMalformed, Endpoint: nsidCreateRecord, Message: "createRecord response missing uri or cid"}
	}

	info := &PostInfo{URI: created.URI, CID: created.CID, URL: c.PostURL(did, created.URI)}
	a.logger.Info().Str("uri", info.URI).Msg("Post created")
	return info, nil
}

// uploadThumbnail fetches imageURL and uploads it as a blob. Failures to
// fetch the image are returned as plain errors; upload failures as *APIError.
func (a *AccountClient) uploadThumbnail(ctx context.Context, imageURL string) (json.RawMessage, error) {
	data, contentType, err := a.client.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	var out uploadBlobResponse
	err = a.authorized(ctx, func(token string) error {
		_, err := a.client.doRequest(ctx, requestConfig{
			method:      http.MethodPost,
			nsid:        nsidUploadBlob,
			raw:         data,
			contentType: contentType,
			token:       token,
			timeout:     a.client.opts.UploadTimeout,
		}, &out)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(out.Blob) == 0 {
		return nil, &APIError{Kind: KindMalformed, Endpoint: nsidUploadBlob, Message: "uploadBlob response missing blob"}
	}
	return out.Blob, nil
}

func (c *Client) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.UploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("create image request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.imageClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return nil, "", errNotAnImage
	}
	if resp.ContentLength > c.opts.MaxImageBytes {
		return nil, "", errImageTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > c.opts.MaxImageBytes {
		return nil, "", errImageTooLarge
	}
	return data, mediaType, nil
}
