// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package accounts

import (
	"strings"
	"time"

	"github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000/internal/bluesky"
)

// CategoryRules filters content by taxonomy. Exclude wins over include;
// empty rules allow everything.
type CategoryRules struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// Allows reports whether content tagged with categories passes the rules.
// Matching is case-insensitive.
func (r CategoryRules) Allows(categories []string) bool {
	for _, c := range categories {
		if containsFold(r.Exclude, c) {
			return false
		}
	}
	if len(r.Include) == 0 {
		return true
	}
	for _, c := range categories {
		if containsFold(r.Include, c) {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}

// Account is one configured remote identity.
type Account struct {
	ID                string        `json:"id"`
	Handle            string        `json:"handle"`
	EncryptedPassword string        `json:"app_password,omitempty"`
	DID               string        `json:"did,omitempty"`
	IsActive          bool          `json:"is_active"`
	AutoSyndicate     bool          `json:"auto_syndicate"`
	CategoryRules     CategoryRules `json:"category_rules"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// PublicAccount is the API view of an Account; it never carries the secret.
type PublicAccount struct {
	ID             string        `json:"id"`
	Handle         string        `json:"handle"`
	DID            string        `json:"did,omitempty"`
	IsActive       bool          `json:"is_active"`
	AutoSyndicate  bool          `json:"auto_syndicate"`
	CategoryRules  CategoryRules `json:"category_rules"`
	HasCredentials bool          `json:"has_credentials"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Public returns the API view.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:             a.ID,
		Handle:         a.Handle,
		DID:            a.DID,
		IsActive:       a.IsActive,
		AutoSyndicate:  a.AutoSyndicate,
		CategoryRules:  a.CategoryRules,
		HasCredentials: a.EncryptedPassword != "",
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// Credentials binds the account to the API client.
func (a *Account) Credentials() bluesky.Credentials {
	return bluesky.Credentials{
		AccountID:         a.ID,
		Handle:            a.Handle,
		EncryptedPassword: a.EncryptedPassword,
		DID:               a.DID,
	}
}

// NormalizeHandle trims whitespace and a leading '@' and lowercases.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}
