// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package providers

import (
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"
)

// Matcher selects the provider search result for a library series title.
//
// Two modes exist: "exact" accepts only a normalized-equality hit on the
// primary or an alternate title, "closest" falls back to fuzzy ranking
// over all candidate titles when no exact hit exists.
type Matcher struct {
	closest bool
}

// NewMatcher creates a matcher. Mode is "exact" or "closest"; anything
// else behaves as exact.
func NewMatcher(mode string) *Matcher {
	return &Matcher{closest: mode == "closest"}
}

// Match picks the best candidate for title. The second return is false
// when no candidate qualifies.
func (m *Matcher) Match(title string, results []SearchResult) (*SearchResult, bool) {
	if len(results) == 0 {
		return nil, false
	}
	want := normalizeTitle(title)
	if want == "" {
		return nil, false
	}

	// Exact pass: normalized equality on any candidate title.
	for i := range results {
		for _, candidate := range candidateTitles(&results[i]) {
			if normalizeTitle(candidate) == want {
				return &results[i], true
			}
		}
	}
	if !m.closest {
		return nil, false
	}

	// Fuzzy pass: rank every candidate title and map the winner back to
	// its result.
	var names []string
	var owners []int
	for i := range results {
		for _, candidate := range candidateTitles(&results[i]) {
			names = append(names, normalizeTitle(candidate))
			owners = append(owners, i)
		}
	}

	matches := fuzzy.Find(want, names)
	if len(matches) == 0 {
		return nil, false
	}
	best := matches[0]
	// A match that covers under half the candidate name is noise.
	if len(best.MatchedIndexes)*2 < len(best.Str) {
		return nil, false
	}
	return &results[owners[best.Index]], true
}

func candidateTitles(r *SearchResult) []string {
	titles := make([]string, 0, 1+len(r.AlternateTitles))
	titles = append(titles, r.Title)
	titles = append(titles, r.AlternateTitles...)
	return titles
}

// normalizeTitle lowercases, strips punctuation and collapses whitespace
// so cosmetic differences never break a match.
func normalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	lastSpace := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
