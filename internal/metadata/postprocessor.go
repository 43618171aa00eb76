// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package metadata

import (
	"fmt"
	"math"
	"strings"

	"github.com/komf-project/komf/internal/config"
	"github.com/komf-project/komf/internal/providers"
)

// ProcessedMetadata is the merged document after post-processing, plus
// the fields the processor synthesizes that providers never report.
type ProcessedMetadata struct {
	providers.SeriesMetadata

	ReadingDirection string
}

// PostProcessor applies the configured transformations to merged
// metadata before write-back: title language selection, alternative
// title filtering, language and reading direction overrides, and the
// score tag.
type PostProcessor struct {
	cfg config.PostProcessingConfig
}

// NewPostProcessor creates a post-processor from config.
func NewPostProcessor(cfg config.PostProcessingConfig) *PostProcessor {
	return &PostProcessor{cfg: cfg}
}

// Process returns a processed copy of meta. The input is not modified.
func (p *PostProcessor) Process(meta *providers.SeriesMetadata) *ProcessedMetadata {
	out := &ProcessedMetadata{SeriesMetadata: *meta}

	if p.cfg.UpdateSeriesTitle {
		out.Title = p.pickTitle(meta)
	}

	switch {
	case !p.cfg.AlternativeTitles:
		out.AlternateTitles = nil
	case p.cfg.AlternativeTitleLanguage != "":
		out.AlternateTitles = filterTitlesByLanguage(meta.AlternateTitles, p.cfg.AlternativeTitleLanguage)
	}

	if p.cfg.Language != "" {
		out.Language = p.cfg.Language
	}
	if p.cfg.ReadingDirection != "" {
		out.ReadingDirection = p.cfg.ReadingDirection
	}

	if p.cfg.ScoreTag && meta.Score != nil && *meta.Score >= float64(p.cfg.ScoreTagThreshold) {
		out.Tags = append(append([]string{}, out.Tags...), scoreTag(*meta.Score))
	}

	return out
}

// pickTitle selects the series title in the configured language from
// the alternate titles, keeping the provider's primary title when no
// localized one exists and fallback is disabled.
func (p *PostProcessor) pickTitle(meta *providers.SeriesMetadata) string {
	if p.cfg.SeriesTitleLanguage != "" {
		for _, alt := range meta.AlternateTitles {
			if strings.EqualFold(alt.Language, p.cfg.SeriesTitleLanguage) && alt.Title != "" {
				return alt.Title
			}
		}
	}
	if meta.Title != "" {
		return meta.Title
	}
	if p.cfg.FallbackToAltTitle {
		for _, alt := range meta.AlternateTitles {
			if alt.Title != "" {
				return alt.Title
			}
		}
	}
	return ""
}

func filterTitlesByLanguage(titles []providers.AlternateTitle, language string) []providers.AlternateTitle {
	var out []providers.AlternateTitle
	for _, t := range titles {
		if strings.EqualFold(t.Language, language) {
			out = append(out, t)
		}
	}
	return out
}

func scoreTag(score float64) string {
	return fmt.Sprintf("score: %d", int(math.Floor(score)))
}
