// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package metadata

import (
	"github.com/komf-project/komf/internal/config"
	"github.com/komf-project/komf/internal/providers"
)

// Merger combines per-provider results into one metadata document.
type Merger struct {
	mergeTags   bool
	mergeGenres bool
}

// NewMerger creates a merger from the processing config.
func NewMerger(cfg config.MetadataProcessingConfig) *Merger {
	return &Merger{
		mergeTags:   cfg.MergeTags,
		mergeGenres: cfg.MergeGenres,
	}
}

// Merge folds results ordered by ascending provider priority into one
// document. Scalar fields take the first non-empty value; tag and genre
// sets are unioned across providers only when the merge toggles are on,
// otherwise the first provider that has any wins.
func (m *Merger) Merge(results []*providers.SeriesMetadata) *providers.SeriesMetadata {
	if len(results) == 0 {
		return nil
	}

	merged := &providers.SeriesMetadata{
		Provider:         results[0].Provider,
		ProviderSeriesID: results[0].ProviderSeriesID,
	}

	for _, r := range results {
		if r == nil {
			continue
		}
		mergeScalars(merged, r)

		if m.mergeGenres {
			merged.Genres = unionStrings(merged.Genres, r.Genres)
		} else if len(merged.Genres) == 0 {
			merged.Genres = r.Genres
		}
		if m.mergeTags {
			merged.Tags = unionStrings(merged.Tags, r.Tags)
		} else if len(merged.Tags) == 0 {
			merged.Tags = r.Tags
		}

		merged.AlternateTitles = append(merged.AlternateTitles, r.AlternateTitles...)
		merged.Links = append(merged.Links, r.Links...)
	}
	return merged
}

// MergeBooks folds per-provider book maps, keyed by book number. The
// first provider that knows a number wins; later providers only fill
// numbers nobody covered yet.
func (m *Merger) MergeBooks(results []map[string]providers.BookMetadata) map[string]providers.BookMetadata {
	merged := make(map[string]providers.BookMetadata)
	for _, books := range results {
		for number, book := range books {
			if _, ok := merged[number]; !ok {
				merged[number] = book
			}
		}
	}
	return merged
}

func mergeScalars(dst, src *providers.SeriesMetadata) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if dst.Summary == "" {
		dst.Summary = src.Summary
	}
	if dst.Status == "" {
		dst.Status = src.Status
	}
	if dst.Publisher == "" {
		dst.Publisher = src.Publisher
	}
	if dst.Language == "" {
		dst.Language = src.Language
	}
	if dst.ReleaseYear == 0 {
		dst.ReleaseYear = src.ReleaseYear
	}
	if dst.AgeRating == nil {
		dst.AgeRating = src.AgeRating
	}
	if dst.TotalBookCount == nil {
		dst.TotalBookCount = src.TotalBookCount
	}
	if dst.Score == nil {
		dst.Score = src.Score
	}
	if dst.CoverURL == "" {
		dst.CoverURL = src.CoverURL
	}
	if len(dst.Authors) == 0 {
		dst.Authors = src.Authors
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
