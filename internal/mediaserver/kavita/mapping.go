// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package kavita

import (
	"strconv"

	"github.com/komf-project/komf/internal/mediaserver"
)

// kavitaSeries mirrors the Kavita series resource.
type kavitaSeries struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	SortName      string `json:"sortName"`
	LibraryID     int    `json:"libraryId"`
	PagesRead     int    `json:"pagesRead"`
	NameLocked    bool   `json:"nameLocked"`
	SortNameLocked bool  `json:"sortNameLocked"`
}

// kavitaSeriesMetadata mirrors the metadata document Kavita replaces
// wholesale on update.
type kavitaSeriesMetadata struct {
	ID                int           `json:"id"`
	SeriesID          int           `json:"seriesId"`
	Summary           string        `json:"summary"`
	Genres            []kavitaTag   `json:"genres"`
	Tags              []kavitaTag   `json:"tags"`
	Writers           []kavitaPerson `json:"writers"`
	Publishers        []kavitaPerson `json:"publishers"`
	AgeRating         int           `json:"ageRating"`
	Language          string        `json:"language"`
	TotalCount        int           `json:"totalCount"`
	PublicationStatus int           `json:"publicationStatus"`
	WebLinks          string        `json:"webLinks"`

	SummaryLocked           bool `json:"summaryLocked"`
	GenresLocked            bool `json:"genresLocked"`
	TagsLocked              bool `json:"tagsLocked"`
	WriterLocked            bool `json:"writerLocked"`
	PublisherLocked         bool `json:"publisherLocked"`
	AgeRatingLocked         bool `json:"ageRatingLocked"`
	LanguageLocked          bool `json:"languageLocked"`
	PublicationStatusLocked bool `json:"publicationStatusLocked"`
}

type kavitaTag struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

type kavitaPerson struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Role int    `json:"role"`
}

type kavitaVolume struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Number   float64         `json:"minNumber"`
	Chapters []kavitaChapter `json:"chapters"`
}

type kavitaChapter struct {
	ID        int     `json:"id"`
	Title     string  `json:"title"`
	TitleName string  `json:"titleName"`
	Range     string  `json:"range"`
	Number    float64 `json:"minNumber"`
	Pages     int     `json:"pages"`
}

// kavitaChapterDetail is the editable chapter document used by the
// chapter update endpoint.
type kavitaChapterDetail struct {
	ID          int            `json:"id"`
	TitleName   string         `json:"titleName"`
	Summary     string         `json:"summary"`
	ReleaseDate string         `json:"releaseDate"`
	Writers     []kavitaPerson `json:"writers"`
	Tags        []kavitaTag    `json:"tags"`
	ISBN        string         `json:"isbn"`

	TitleNameLocked   bool `json:"titleNameLocked"`
	SummaryLocked     bool `json:"summaryLocked"`
	ReleaseDateLocked bool `json:"releaseDateLocked"`
	WriterLocked      bool `json:"writerLocked"`
	TagsLocked        bool `json:"tagsLocked"`
	ISBNLocked        bool `json:"isbnLocked"`
}

// Kavita publication status enum values.
const (
	statusOngoing   = 0
	statusHiatus    = 1
	statusCompleted = 2
	statusCancelled = 3
	statusEnded     = 4
)

func statusFromKavita(status int) string {
	switch status {
	case statusHiatus:
		return "HIATUS"
	case statusCompleted, statusEnded:
		return "ENDED"
	case statusCancelled:
		return "ABANDONED"
	default:
		return "ONGOING"
	}
}

func statusToKavita(status string) int {
	switch status {
	case "HIATUS":
		return statusHiatus
	case "ENDED":
		return statusEnded
	case "ABANDONED":
		return statusCancelled
	default:
		return statusOngoing
	}
}

func seriesFromKavita(s *kavitaSeries, m *kavitaSeriesMetadata) *mediaserver.Series {
	var publisher string
	if len(m.Publishers) > 0 {
		publisher = m.Publishers[0].Name
	}
	totalCount := m.TotalCount

	return &mediaserver.Series{
		ID:        strconv.Itoa(s.ID),
		LibraryID: strconv.Itoa(s.LibraryID),
		Name:      s.Name,
		Metadata: mediaserver.SeriesMetadata{
			Status:         statusFromKavita(m.PublicationStatus),
			Title:          s.Name,
			TitleSort:      s.SortName,
			Summary:        m.Summary,
			Publisher:      publisher,
			AgeRating:      ageRatingFromKavita(m.AgeRating),
			Language:       m.Language,
			Genres:         tagTitles(m.Genres),
			Tags:           tagTitles(m.Tags),
			TotalBookCount: &totalCount,

			StatusLock:    m.PublicationStatusLocked,
			TitleLock:     s.NameLocked,
			TitleSortLock: s.SortNameLocked,
			SummaryLock:   m.SummaryLocked,
			PublisherLock: m.PublisherLocked,
			AgeRatingLock: m.AgeRatingLocked,
			LanguageLock:  m.LanguageLocked,
			GenresLock:    m.GenresLocked,
			TagsLock:      m.TagsLocked,
		},
	}
}

func bookFromKavita(seriesID string, volume *kavitaVolume, chapter *kavitaChapter) *mediaserver.Book {
	name := chapter.TitleName
	if name == "" {
		name = chapter.Range
	}
	return &mediaserver.Book{
		ID:       strconv.Itoa(chapter.ID),
		SeriesID: seriesID,
		Name:     name,
		Number:   chapter.Number,
		Metadata: mediaserver.BookMetadata{
			Title:  chapter.TitleName,
			Number: strconv.FormatFloat(chapter.Number, 'f', -1, 64),
		},
	}
}

func tagTitles(tags []kavitaTag) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.Title)
	}
	return out
}

func tagsFromTitles(titles []string) []kavitaTag {
	out := make([]kavitaTag, 0, len(titles))
	for _, title := range titles {
		// Id 0 lets Kavita create missing tags server-side.
		out = append(out, kavitaTag{ID: 0, Title: title})
	}
	return out
}

// ageRatingFromKavita maps the Kavita enum to years. Values above 1 encode
// a minimum age directly in the enum ordinal space used by Kavita.
func ageRatingFromKavita(rating int) *int {
	if rating <= 0 {
		return nil
	}
	return &rating
}

// applySeriesPatch merges a partial update into the fetched metadata
// document. Lock flags follow the patch's LockAll request.
func applySeriesPatch(meta *kavitaSeriesMetadata, patch *mediaserver.SeriesMetadataUpdate) {
	lock := patch.LockAll

	if patch.Status != nil {
		meta.PublicationStatus = statusToKavita(*patch.Status)
		meta.PublicationStatusLocked = lock
	}
	if patch.Summary != nil {
		meta.Summary = *patch.Summary
		meta.SummaryLocked = lock
	}
	if patch.Publisher != nil {
		meta.Publishers = []kavitaPerson{{ID: 0, Name: *patch.Publisher}}
		meta.PublisherLocked = lock
	}
	if patch.AgeRating != nil {
		meta.AgeRating = *patch.AgeRating
		meta.AgeRatingLocked = lock
	}
	if patch.Language != nil {
		meta.Language = *patch.Language
		meta.LanguageLocked = lock
	}
	if patch.Genres != nil {
		meta.Genres = tagsFromTitles(patch.Genres)
		meta.GenresLocked = lock
	}
	if patch.Tags != nil {
		meta.Tags = tagsFromTitles(patch.Tags)
		meta.TagsLocked = lock
	}
	if patch.TotalBookCount != nil {
		meta.TotalCount = *patch.TotalBookCount
	}
	if patch.Links != nil {
		links := ""
		for i, l := range patch.Links {
			if i > 0 {
				links += ","
			}
			links += l.URL
		}
		meta.WebLinks = links
	}
}

// applyBookPatch merges a partial update into the fetched chapter document.
func applyBookPatch(chapter *kavitaChapterDetail, patch *mediaserver.BookMetadataUpdate) {
	lock := patch.LockAll

	if patch.Title != nil {
		chapter.TitleName = *patch.Title
		chapter.TitleNameLocked = lock
	}
	if patch.Summary != nil {
		chapter.Summary = *patch.Summary
		chapter.SummaryLocked = lock
	}
	if patch.ReleaseDate != nil {
		chapter.ReleaseDate = *patch.ReleaseDate
		chapter.ReleaseDateLocked = lock
	}
	if patch.Authors != nil {
		writers := make([]kavitaPerson, 0, len(patch.Authors))
		for _, a := range patch.Authors {
			if a.Role == "" || a.Role == "writer" {
				writers = append(writers, kavitaPerson{ID: 0, Name: a.Name})
			}
		}
		chapter.Writers = writers
		chapter.WriterLocked = lock
	}
	if patch.Tags != nil {
		chapter.Tags = tagsFromTitles(patch.Tags)
		chapter.TagsLocked = lock
	}
	if patch.ISBN != nil {
		chapter.ISBN = *patch.ISBN
		chapter.ISBNLocked = lock
	}
}

// clearMetadata resets the document to its empty state with all locks
// released so the next scan repopulates from files.
func clearMetadata(meta *kavitaSeriesMetadata) {
	meta.Summary = ""
	meta.Genres = nil
	meta.Tags = nil
	meta.Writers = nil
	meta.Publishers = nil
	meta.AgeRating = 0
	meta.Language = ""
	meta.PublicationStatus = statusOngoing
	meta.WebLinks = ""

	meta.SummaryLocked = false
	meta.GenresLocked = false
	meta.TagsLocked = false
	meta.WriterLocked = false
	meta.PublisherLocked = false
	meta.AgeRatingLocked = false
	meta.LanguageLocked = false
	meta.PublicationStatusLocked = false
}
