// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package komga

import (
	"github.com/komf-project/komf/internal/mediaserver"
)

func seriesFromKomga(s *komgaSeries) *mediaserver.Series {
	return &mediaserver.Series{
		ID:        s.ID,
		LibraryID: s.LibraryID,
		Name:      s.Name,
		BookCount: s.BooksCount,
		Metadata: mediaserver.SeriesMetadata{
			Status:           s.Metadata.Status,
			Title:            s.Metadata.Title,
			TitleSort:        s.Metadata.TitleSort,
			Summary:          s.Metadata.Summary,
			Publisher:        s.Metadata.Publisher,
			ReadingDirection: s.Metadata.ReadingDirection,
			AgeRating:        s.Metadata.AgeRating,
			Language:         s.Metadata.Language,
			Genres:           s.Metadata.Genres,
			Tags:             s.Metadata.Tags,
			TotalBookCount:   s.Metadata.TotalBookCount,
			AlternateTitles:  alternateTitlesFromKomga(s.Metadata.AlternateTitles),
			Links:            linksFromKomga(s.Metadata.Links),

			StatusLock:           s.Metadata.StatusLock,
			TitleLock:            s.Metadata.TitleLock,
			TitleSortLock:        s.Metadata.TitleSortLock,
			SummaryLock:          s.Metadata.SummaryLock,
			PublisherLock:        s.Metadata.PublisherLock,
			ReadingDirectionLock: s.Metadata.ReadingDirectionLock,
			AgeRatingLock:        s.Metadata.AgeRatingLock,
			LanguageLock:         s.Metadata.LanguageLock,
			GenresLock:           s.Metadata.GenresLock,
			TagsLock:             s.Metadata.TagsLock,
			TotalBookCountLock:   s.Metadata.TotalBookCountLock,
			LinksLock:            s.Metadata.LinksLock,
		},
	}
}

func bookFromKomga(b *komgaBook) *mediaserver.Book {
	return &mediaserver.Book{
		ID:        b.ID,
		SeriesID:  b.SeriesID,
		LibraryID: b.LibraryID,
		Name:      b.Name,
		Number:    b.Number,
		FilePath:  b.URL,
		Metadata: mediaserver.BookMetadata{
			Title:       b.Metadata.Title,
			Summary:     b.Metadata.Summary,
			Number:      b.Metadata.Number,
			NumberSort:  b.Metadata.NumberSort,
			ReleaseDate: b.Metadata.ReleaseDate,
			Authors:     authorsFromKomga(b.Metadata.Authors),
			Tags:        b.Metadata.Tags,
			ISBN:        b.Metadata.ISBN,
			Links:       linksFromKomga(b.Metadata.Links),

			TitleLock:       b.Metadata.TitleLock,
			SummaryLock:     b.Metadata.SummaryLock,
			NumberLock:      b.Metadata.NumberLock,
			NumberSortLock:  b.Metadata.NumberSortLock,
			ReleaseDateLock: b.Metadata.ReleaseDateLock,
			AuthorsLock:     b.Metadata.AuthorsLock,
			TagsLock:        b.Metadata.TagsLock,
			ISBNLock:        b.Metadata.ISBNLock,
			LinksLock:       b.Metadata.LinksLock,
		},
	}
}

func alternateTitlesFromKomga(titles []komgaAlternateTitle) []mediaserver.AlternateTitle {
	if len(titles) == 0 {
		return nil
	}
	out := make([]mediaserver.AlternateTitle, 0, len(titles))
	for _, t := range titles {
		out = append(out, mediaserver.AlternateTitle{Label: t.Label, Title: t.Title})
	}
	return out
}

func linksFromKomga(links []komgaWebLink) []mediaserver.WebLink {
	if len(links) == 0 {
		return nil
	}
	out := make([]mediaserver.WebLink, 0, len(links))
	for _, l := range links {
		out = append(out, mediaserver.WebLink{Label: l.Label, URL: l.URL})
	}
	return out
}

func authorsFromKomga(authors []komgaAuthor) []mediaserver.Author {
	if len(authors) == 0 {
		return nil
	}
	out := make([]mediaserver.Author, 0, len(authors))
	for _, a := range authors {
		out = append(out, mediaserver.Author{Name: a.Name, Role: a.Role})
	}
	return out
}

// seriesPatchToKomga builds the PATCH body. Absent keys leave the server
// value untouched, so only set fields are emitted. Lock flags are emitted
// for every written field when LockAll is requested.
func seriesPatchToKomga(patch *mediaserver.SeriesMetadataUpdate) map[string]any {
	body := map[string]any{}
	set := func(key string, value any) {
		body[key] = value
		if patch.LockAll {
			body[key+"Lock"] = true
		}
	}

	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.TitleSort != nil {
		set("titleSort", *patch.TitleSort)
	}
	if patch.Summary != nil {
		set("summary", *patch.Summary)
	}
	if patch.Publisher != nil {
		set("publisher", *patch.Publisher)
	}
	if patch.ReadingDirection != nil {
		set("readingDirection", *patch.ReadingDirection)
	}
	if patch.AgeRating != nil {
		set("ageRating", *patch.AgeRating)
	}
	if patch.Language != nil {
		set("language", *patch.Language)
	}
	if patch.Genres != nil {
		set("genres", patch.Genres)
	}
	if patch.Tags != nil {
		set("tags", patch.Tags)
	}
	if patch.TotalBookCount != nil {
		set("totalBookCount", *patch.TotalBookCount)
	}
	if patch.AlternateTitles != nil {
		titles := make([]komgaAlternateTitle, 0, len(patch.AlternateTitles))
		for _, t := range patch.AlternateTitles {
			titles = append(titles, komgaAlternateTitle{Label: t.Label, Title: t.Title})
		}
		// Komga has no alternateTitlesLock; emitted without one.
		body["alternateTitles"] = titles
	}
	if patch.Links != nil {
		links := make([]komgaWebLink, 0, len(patch.Links))
		for _, l := range patch.Links {
			links = append(links, komgaWebLink{Label: l.Label, URL: l.URL})
		}
		set("links", links)
	}
	return body
}

func bookPatchToKomga(patch *mediaserver.BookMetadataUpdate) map[string]any {
	body := map[string]any{}
	set := func(key string, value any) {
		body[key] = value
		if patch.LockAll {
			body[key+"Lock"] = true
		}
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Summary != nil {
		set("summary", *patch.Summary)
	}
	if patch.Number != nil {
		set("number", *patch.Number)
	}
	if patch.NumberSort != nil {
		set("numberSort", *patch.NumberSort)
	}
	if patch.ReleaseDate != nil {
		set("releaseDate", *patch.ReleaseDate)
	}
	if patch.Authors != nil {
		authors := make([]komgaAuthor, 0, len(patch.Authors))
		for _, a := range patch.Authors {
			authors = append(authors, komgaAuthor{Name: a.Name, Role: a.Role})
		}
		set("authors", authors)
	}
	if patch.Tags != nil {
		set("tags", patch.Tags)
	}
	if patch.ISBN != nil {
		set("isbn", *patch.ISBN)
	}
	if patch.Links != nil {
		links := make([]komgaWebLink, 0, len(patch.Links))
		for _, l := range patch.Links {
			links = append(links, komgaWebLink{Label: l.Label, URL: l.URL})
		}
		set("links", links)
	}
	return body
}
