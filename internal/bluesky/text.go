// skysync - Multi-account Bluesky syndication service
// Copyright 2026 The skysync Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geoffreycrofte/bluesky-social-plugin-for-wordpress-sub000

package bluesky

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rivo/uniseg"
)

const (
	// MaxGraphemes is the post length limit enforced by the network.
	MaxGraphemes = 300

	ellipsis = "…"

	paragraphBreak = "\n\n"

	// minExcerptGraphemes is the smallest excerpt worth appending after a title.
	minExcerptGraphemes = 10
)

// GraphemeCount counts user-perceived characters.
func GraphemeCount(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// Truncate shortens s to at most limit graphemes. When it must cut, it
// prefers the last word boundary in the second half and appends an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if GraphemeCount(s) <= limit {
		return s
	}
	if limit == 1 {
		return ellipsis
	}

	var b strings.Builder
	lastSpace := -1
	g := uniseg.NewGraphemes(s)
	for n := 0; n < limit-1 && g.Next(); n++ {
		cluster := g.Str()
		if strings.TrimSpace(cluster) == "" {
			lastSpace = b.Len()
		}
		b.WriteString(cluster)
	}

	out := b.String()
	if lastSpace > len(out)/2 {
		out = out[:lastSpace]
	}
	out = strings.TrimRight(out, " \t\r\n,;:-")
	return out + ellipsis
}

// CleanText strips markup, decodes entities and collapses whitespace.
func CleanText(policy *bluemonday.Policy, s string) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(policy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// ComposeText builds the post body from title and excerpt. When link is
// non-empty it is appended after a blank line and annotated with a link
// facet over its UTF-8 byte range. The result never exceeds MaxGraphemes;
// a link that cannot fit at all is omitted.
func ComposeText(title, excerpt, link string) (string, []Facet) {
	suffix := ""
	if link != "" {
		suffix = paragraphBreak + link
		if GraphemeCount(suffix) >= MaxGraphemes {
			suffix = ""
		}
	}
	avail := MaxGraphemes - GraphemeCount(suffix)

	head := Truncate(title, avail)
	if excerpt != "" {
		if head == "" {
			head = Truncate(excerpt, avail)
		} else if rest := avail - GraphemeCount(head) - GraphemeCount(paragraphBreak); rest >= minExcerptGraphemes {
			head += paragraphBreak + Truncate(excerpt, rest)
		}
	}

	if suffix == "" {
		return head, nil
	}

	text := head + suffix
	if head == "" {
		text = link
	}
	start := len(text) - len(link)
	return text, []Facet{{
		Index:    ByteSlice{ByteStart: start, ByteEnd: len(text)},
		Features: []FacetFeature{{Type: typeFacetLink, URI: link}},
	}}
}
