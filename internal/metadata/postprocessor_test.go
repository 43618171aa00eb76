// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package metadata

import (
	"testing"

	"github.com/komf-project/komf/internal/config"
	"github.com/komf-project/komf/internal/providers"
)

func TestPickTitleByLanguage(t *testing.T) {
	post := NewPostProcessor(config.PostProcessingConfig{
		UpdateSeriesTitle:   true,
		SeriesTitleLanguage: "ja-ro",
		AlternativeTitles:   true,
	})

	out := post.Process(&providers.SeriesMetadata{
		Title: "Berserk",
		AlternateTitles: []providers.AlternateTitle{
			{Language: "ja", Title: "ベルセルク"},
			{Language: "ja-ro", Title: "Beruseruku"},
		},
	})

	if out.Title != "Beruseruku" {
		t.Errorf("title = %q", out.Title)
	}
}

func TestPickTitleKeepsPrimaryWhenLanguageMissing(t *testing.T) {
	post := NewPostProcessor(config.PostProcessingConfig{
		UpdateSeriesTitle:   true,
		SeriesTitleLanguage: "fr",
		AlternativeTitles:   true,
	})

	out := post.Process(&providers.SeriesMetadata{
		Title:           "Berserk",
		AlternateTitles: []providers.AlternateTitle{{Language: "ja", Title: "ベルセルク"}},
	})
	if out.Title != "Berserk" {
		t.Errorf("title = %q", out.Title)
	}
}

func TestFallbackToAltTitle(t *testing.T) {
	post := NewPostProcessor(config.PostProcessingConfig{
		UpdateSeriesTitle:  true,
		FallbackToAltTitle: true,
		AlternativeTitles:  true,
	})

	out := post.Process(&providers.SeriesMetadata{
		AlternateTitles: []providers.AlternateTitle{{Language: "ja", Title: "ベルセルク"}},
	})
	if out.Title != "ベルセルク" {
		t.Errorf("title = %q", out.Title)
	}
}

func TestAlternativeTitlesFiltered(t *testing.T) {
	titles := []providers.AlternateTitle{
		{Language: "ja", Title: "ベルセルク"},
		{Language: "en", Title: "Berserk"},
	}

	dropped := NewPostProcessor(config.PostProcessingConfig{AlternativeTitles: false}).
		Process(&providers.SeriesMetadata{AlternateTitles: titles})
	if len(dropped.AlternateTitles) != 0 {
		t.Errorf("alt titles = %v, want none", dropped.AlternateTitles)
	}

	filtered := NewPostProcessor(config.PostProcessingConfig{
		AlternativeTitles:        true,
		AlternativeTitleLanguage: "en",
	}).Process(&providers.SeriesMetadata{AlternateTitles: titles})
	if len(filtered.AlternateTitles) != 1 || filtered.AlternateTitles[0].Title != "Berserk" {
		t.Errorf("alt titles = %v", filtered.AlternateTitles)
	}
}

func TestOverrides(t *testing.T) {
	post := NewPostProcessor(config.PostProcessingConfig{
		ReadingDirection: "RIGHT_TO_LEFT",
		Language:         "ja",
	})

	out := post.Process(&providers.SeriesMetadata{Language: "en"})
	if out.Language != "ja" {
		t.Errorf("language = %q", out.Language)
	}
	if out.ReadingDirection != "RIGHT_TO_LEFT" {
		t.Errorf("reading direction = %q", out.ReadingDirection)
	}
}

func TestScoreTag(t *testing.T) {
	cfg := config.PostProcessingConfig{ScoreTag: true, ScoreTagThreshold: 8}
	post := NewPostProcessor(cfg)

	high := 9.4
	out := post.Process(&providers.SeriesMetadata{Score: &high, Tags: []string{"Pirates"}})
	if len(out.Tags) != 2 || out.Tags[1] != "score: 9" {
		t.Errorf("tags = %v", out.Tags)
	}

	low := 7.9
	out = post.Process(&providers.SeriesMetadata{Score: &low})
	if len(out.Tags) != 0 {
		t.Errorf("tags = %v, below threshold must add nothing", out.Tags)
	}

	out = post.Process(&providers.SeriesMetadata{})
	if len(out.Tags) != 0 {
		t.Errorf("tags = %v, no score must add nothing", out.Tags)
	}
}

func TestProcessDoesNotMutateInput(t *testing.T) {
	post := NewPostProcessor(config.PostProcessingConfig{ScoreTag: true, ScoreTagThreshold: 0})

	score := 8.0
	in := &providers.SeriesMetadata{Score: &score, Tags: []string{"Pirates"}}
	_ = post.Process(in)

	if len(in.Tags) != 1 {
		t.Errorf("input tags = %v, input must stay untouched", in.Tags)
	}
}
