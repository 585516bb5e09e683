// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

// Package validation provides struct validation using go-playground/validator v10.
//
// A thread-safe singleton validator is configured once with two custom tags:
//
//   - bskyhandle: ATProto handle syntax (alice.bsky.social, an optional leading @)
//   - atposturi: at://<repo>/app.bsky.feed.post/<rkey>
//
// Field names in messages are the JSON names of the struct fields.
//
//	type addAccountRequest struct {
//	    Handle   string `json:"handle" validate:"required,bskyhandle"`
//	    Password string `json:"app_password" validate:"required,min=4"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    // apiErr.Code == "VALIDATION_ERROR"
//	}
package validation
