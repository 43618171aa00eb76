// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

/*
updater.go - Lock-Aware Metadata Write-Back

The updater turns processed metadata into partial patches against the
media server. A field is written only when its server-side lock flag is
clear; locked fields are user-pinned and never touched. Write-back is
not transactional: a failing call is reported as a processing error
event and earlier writes stay in place.

Update modes select the write surfaces. "api" patches through the media
server REST API, "comicinfo" embeds ComicInfo.xml into the book
archives for servers that expose file paths.
*/

package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/komf-project/komf/internal/config"
	"github.com/komf-project/komf/internal/jobs"
	"github.com/komf-project/komf/internal/logging"
	"github.com/komf-project/komf/internal/mediaserver"
	"github.com/komf-project/komf/internal/metadata/comicinfo"
	"github.com/komf-project/komf/internal/metrics"
	"github.com/komf-project/komf/internal/models"
	"github.com/komf-project/komf/internal/providers"
)

const (
	UpdateModeAPI       = "api"
	UpdateModeComicInfo = "comicinfo"
)

// ThumbnailStore records uploaded covers so replacements can delete the
// previous upload instead of stacking thumbnails on the server.
type ThumbnailStore interface {
	StoreSeriesThumbnail(ctx context.Context, thumb *models.SeriesThumbnail) error
	GetSeriesThumbnail(ctx context.Context, server, seriesID string) (*models.SeriesThumbnail, error)
	StoreBookThumbnail(ctx context.Context, thumb *models.BookThumbnail) error
	GetBookThumbnail(ctx context.Context, server, bookID string) (*models.BookThumbnail, error)
}

// Updater writes processed metadata back to one media server.
type Updater struct {
	client     mediaserver.Client
	thumbnails ThumbnailStore
	cfg        config.MetadataProcessingConfig
	post       *PostProcessor
	httpClient *http.Client
}

// NewUpdater creates an updater for one processing config.
func NewUpdater(client mediaserver.Client, thumbnails ThumbnailStore, cfg config.MetadataProcessingConfig) *Updater {
	return &Updater{
		client:     client,
		thumbnails: thumbnails,
		cfg:        cfg,
		post:       NewPostProcessor(cfg.PostProcessing),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Update post-processes merged metadata and writes it to every
// configured surface. Individual write failures are emitted as
// processing error events; the first one is also returned so the job
// ends FAILED.
func (u *Updater) Update(
	ctx context.Context,
	series *mediaserver.Series,
	books []mediaserver.Book,
	meta *providers.SeriesMetadata,
	bookMeta map[string]providers.BookMetadata,
	cover *providers.Image,
	emit func(jobs.Event),
) error {
	processed := u.post.Process(meta)

	var firstErr error
	fail := func(scope string, err error) {
		logging.Warn().Str("series_id", series.ID).Str("scope", scope).Err(err).Msg("Write-back failed")
		emit(jobs.Event{Type: jobs.EventProcessingError, SeriesID: series.ID, Message: fmt.Sprintf("%s: %v", scope, err)})
		if firstErr == nil {
			firstErr = err
		}
	}

	if u.modeEnabled(UpdateModeAPI) {
		if err := u.updateSeriesAPI(ctx, series, processed); err != nil {
			fail("series", err)
		}
		u.updateBooksAPI(ctx, series, books, bookMeta, fail)
	}

	if u.modeEnabled(UpdateModeComicInfo) {
		u.updateComicInfo(series, books, processed, bookMeta, fail)
	}

	if u.cfg.SeriesCovers && cover != nil {
		if err := u.uploadSeriesCover(ctx, series, cover); err != nil {
			fail("series cover", err)
		}
	}

	if u.cfg.BookCovers {
		u.uploadBookCovers(ctx, books, bookMeta, fail)
	}

	if firstErr == nil {
		metrics.SeriesUpdated.WithLabelValues(string(u.client.Kind())).Inc()
	}
	return firstErr
}

func (u *Updater) modeEnabled(mode string) bool {
	for _, m := range u.cfg.UpdateModes {
		if m == mode {
			return true
		}
	}
	return false
}

// updateSeriesAPI builds the series patch from unlocked fields only.
func (u *Updater) updateSeriesAPI(ctx context.Context, series *mediaserver.Series, processed *ProcessedMetadata) error {
	current := &series.Metadata
	patch := &mediaserver.SeriesMetadataUpdate{LockAll: false}
	touched := false

	if !current.TitleLock && processed.Title != "" {
		patch.Title = &processed.Title
		patch.TitleSort = &processed.Title
		touched = true
	}
	if !current.SummaryLock && processed.Summary != "" {
		patch.Summary = &processed.Summary
		touched = true
	}
	if !current.StatusLock && processed.Status != "" {
		patch.Status = &processed.Status
		touched = true
	}
	if !current.PublisherLock && processed.Publisher != "" {
		patch.Publisher = &processed.Publisher
		touched = true
	}
	if !current.LanguageLock && processed.Language != "" {
		patch.Language = &processed.Language
		touched = true
	}
	if !current.ReadingDirectionLock && processed.ReadingDirection != "" {
		patch.ReadingDirection = &processed.ReadingDirection
		touched = true
	}
	if !current.AgeRatingLock && processed.AgeRating != nil {
		patch.AgeRating = processed.AgeRating
		touched = true
	}
	if !current.GenresLock && len(processed.Genres) > 0 {
		patch.Genres = processed.Genres
		touched = true
	}
	if !current.TagsLock && len(processed.Tags) > 0 {
		patch.Tags = processed.Tags
		touched = true
	}
	if !current.TotalBookCountLock && processed.TotalBookCount != nil {
		patch.TotalBookCount = processed.TotalBookCount
		touched = true
	}
	if !current.LinksLock && len(processed.Links) > 0 {
		patch.Links = linksToServer(processed.Links)
		touched = true
	}
	if len(processed.AlternateTitles) > 0 {
		patch.AlternateTitles = titlesToServer(processed.AlternateTitles)
		touched = true
	}

	if !touched {
		return nil
	}
	return u.client.UpdateSeriesMetadata(ctx, series.ID, patch)
}

// updateBooksAPI patches each book that has provider metadata for its
// number. With OrderBooks enabled, books additionally get a sequential
// sort number by ascending parsed number.
func (u *Updater) updateBooksAPI(
	ctx context.Context,
	series *mediaserver.Series,
	books []mediaserver.Book,
	bookMeta map[string]providers.BookMetadata,
	fail func(string, error),
) {
	ordered := books
	if u.cfg.PostProcessing.OrderBooks {
		ordered = make([]mediaserver.Book, len(books))
		copy(ordered, books)
		sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })
	}

	for i := range ordered {
		book := &ordered[i]
		meta, ok := bookMeta[bookNumberKey(book)]
		patch := bookPatch(book, meta, ok)

		if u.cfg.PostProcessing.OrderBooks && !book.Metadata.NumberSortLock {
			numberSort := float64(i + 1)
			patch.NumberSort = &numberSort
		}

		if patchEmpty(patch) {
			continue
		}
		if err := u.client.UpdateBookMetadata(ctx, book.ID, patch); err != nil {
			fail(fmt.Sprintf("book %s", book.ID), err)
		}
	}
}

func bookPatch(book *mediaserver.Book, meta providers.BookMetadata, ok bool) *mediaserver.BookMetadataUpdate {
	patch := &mediaserver.BookMetadataUpdate{}
	if !ok {
		return patch
	}
	current := &book.Metadata
	if !current.TitleLock && meta.Title != "" {
		patch.Title = &meta.Title
	}
	if !current.SummaryLock && meta.Summary != "" {
		patch.Summary = &meta.Summary
	}
	if !current.ReleaseDateLock && meta.ReleaseDate != "" {
		patch.ReleaseDate = &meta.ReleaseDate
	}
	if !current.TagsLock && len(meta.Tags) > 0 {
		patch.Tags = meta.Tags
	}
	return patch
}

func patchEmpty(p *mediaserver.BookMetadataUpdate) bool {
	return p.Title == nil && p.Summary == nil && p.Number == nil && p.NumberSort == nil &&
		p.ReleaseDate == nil && p.Authors == nil && p.Tags == nil && p.ISBN == nil && p.Links == nil
}

// updateComicInfo embeds metadata into each book archive. Books without
// a file path (Kavita does not expose one) are skipped with a log line.
func (u *Updater) updateComicInfo(
	series *mediaserver.Series,
	books []mediaserver.Book,
	processed *ProcessedMetadata,
	bookMeta map[string]providers.BookMetadata,
	fail func(string, error),
) {
	for i := range books {
		book := &books[i]
		if book.FilePath == "" {
			logging.Debug().Str("book_id", book.ID).Msg("No file path, skipping comicinfo write")
			continue
		}
		if !comicinfo.SupportedArchive(book.FilePath) {
			logging.Debug().Str("book_id", book.ID).Str("path", book.FilePath).Msg("Unsupported archive, skipping comicinfo write")
			continue
		}

		doc := comicInfoForBook(series, book, processed, bookMeta)
		if err := comicinfo.WriteToArchive(book.FilePath, doc); err != nil {
			fail(fmt.Sprintf("comicinfo %s", book.ID), err)
		}
	}
}

func comicInfoForBook(
	series *mediaserver.Series,
	book *mediaserver.Book,
	processed *ProcessedMetadata,
	bookMeta map[string]providers.BookMetadata,
) *comicinfo.ComicInfo {
	doc := &comicinfo.ComicInfo{
		Series:      processed.Title,
		Number:      book.Metadata.Number,
		Summary:     processed.Summary,
		Year:        processed.ReleaseYear,
		Publisher:   processed.Publisher,
		Genre:       comicinfo.JoinList(processed.Genres),
		Tags:        comicinfo.JoinList(processed.Tags),
		LanguageISO: processed.Language,
	}
	if doc.Series == "" {
		doc.Series = series.Name
	}
	if processed.TotalBookCount != nil {
		doc.Count = *processed.TotalBookCount
	}
	if len(processed.Links) > 0 {
		doc.Web = processed.Links[0].URL
	}

	var writers, pencillers []string
	for _, a := range processed.Authors {
		switch a.Role {
		case "penciller":
			pencillers = append(pencillers, a.Name)
		default:
			writers = append(writers, a.Name)
		}
	}
	doc.Writer = comicinfo.JoinList(writers)
	doc.Penciller = comicinfo.JoinList(pencillers)

	if meta, ok := bookMeta[bookNumberKey(book)]; ok {
		doc.Title = meta.Title
		if meta.Summary != "" {
			doc.Summary = meta.Summary
		}
	}
	return doc
}

// uploadSeriesCover uploads the series cover, honoring the existing
// cover policy, and replaces any thumbnail komf uploaded before.
func (u *Updater) uploadSeriesCover(ctx context.Context, series *mediaserver.Series, cover *providers.Image) error {
	server := string(u.client.Kind())

	existing, err := u.client.GetSeriesThumbnails(ctx, series.ID)
	if err != nil {
		return fmt.Errorf("failed to list thumbnails: %w", err)
	}

	previous, prevErr := u.thumbnails.GetSeriesThumbnail(ctx, server, series.ID)
	hasForeign := hasForeignThumbnail(existing, previous, prevErr == nil)
	if hasForeign && !u.cfg.OverrideExistingCovers {
		logging.Debug().Str("series_id", series.ID).Msg("Existing cover present, skipping upload")
		return nil
	}

	uploaded, err := u.client.UploadSeriesThumbnail(ctx, series.ID,
		mediaserver.Image{Bytes: cover.Bytes, MediaType: cover.MediaType}, u.cfg.LockCovers)
	if err != nil {
		return fmt.Errorf("failed to upload cover: %w", err)
	}
	metrics.ThumbnailsUploaded.WithLabelValues(server, "series").Inc()

	if prevErr == nil && uploaded != nil && previous.ThumbnailID != uploaded.ID {
		if err := u.client.DeleteSeriesThumbnail(ctx, series.ID, previous.ThumbnailID); err != nil {
			logging.Warn().Str("series_id", series.ID).Err(err).Msg("Failed to delete replaced thumbnail")
		}
	}

	if uploaded != nil {
		err = u.thumbnails.StoreSeriesThumbnail(ctx, &models.SeriesThumbnail{
			Server:      server,
			SeriesID:    series.ID,
			ThumbnailID: uploaded.ID,
		})
		if err != nil {
			logging.Warn().Str("series_id", series.ID).Err(err).Msg("Failed to record uploaded thumbnail")
		}
	}
	return nil
}

// uploadBookCovers downloads and uploads per-book covers. The media
// servers have no per-book thumbnail listing, so a user-selected cover
// cannot be detected: a book with no recorded komf upload counts as
// having no cover, and a recorded upload is replaced.
func (u *Updater) uploadBookCovers(
	ctx context.Context,
	books []mediaserver.Book,
	bookMeta map[string]providers.BookMetadata,
	fail func(string, error),
) {
	server := string(u.client.Kind())

	for i := range books {
		book := &books[i]
		meta, ok := bookMeta[bookNumberKey(book)]
		if !ok || meta.CoverURL == "" {
			continue
		}

		previous, prevErr := u.thumbnails.GetBookThumbnail(ctx, server, book.ID)

		image, err := u.downloadCover(ctx, meta.CoverURL)
		if err != nil {
			fail(fmt.Sprintf("book cover %s", book.ID), err)
			continue
		}

		uploaded, err := u.client.UploadBookThumbnail(ctx, book.ID, *image, u.cfg.LockCovers)
		if err != nil {
			fail(fmt.Sprintf("book cover %s", book.ID), err)
			continue
		}
		metrics.ThumbnailsUploaded.WithLabelValues(server, "book").Inc()

		if prevErr == nil && uploaded != nil && previous.ThumbnailID != uploaded.ID {
			if err := u.client.DeleteBookThumbnail(ctx, book.ID, previous.ThumbnailID); err != nil {
				logging.Warn().Str("book_id", book.ID).Err(err).Msg("Failed to delete replaced thumbnail")
			}
		}
		if uploaded != nil {
			err = u.thumbnails.StoreBookThumbnail(ctx, &models.BookThumbnail{
				Server:      server,
				BookID:      book.ID,
				ThumbnailID: uploaded.ID,
			})
			if err != nil {
				logging.Warn().Str("book_id", book.ID).Err(err).Msg("Failed to record uploaded thumbnail")
			}
		}
	}
}

func (u *Updater) downloadCover(ctx context.Context, coverURL string) (*mediaserver.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cover download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cover download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, fmt.Errorf("cover read failed: %w", err)
	}
	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	return &mediaserver.Image{Bytes: data, MediaType: mediaType}, nil
}

// hasForeignThumbnail reports whether the server has a thumbnail komf
// did not upload itself. Covers komf uploaded earlier are always fair
// game for replacement.
func hasForeignThumbnail(existing []mediaserver.Thumbnail, previous *models.SeriesThumbnail, hasPrevious bool) bool {
	for _, thumb := range existing {
		if hasPrevious && thumb.ID == previous.ThumbnailID {
			continue
		}
		return true
	}
	return false
}

func bookNumberKey(book *mediaserver.Book) string {
	if book.Metadata.Number != "" {
		return book.Metadata.Number
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.1f", book.Number), "0"), ".")
}

func linksToServer(links []providers.WebLink) []mediaserver.WebLink {
	out := make([]mediaserver.WebLink, 0, len(links))
	for _, l := range links {
		out = append(out, mediaserver.WebLink{Label: l.Label, URL: l.URL})
	}
	return out
}

func titlesToServer(titles []providers.AlternateTitle) []mediaserver.AlternateTitle {
	out := make([]mediaserver.AlternateTitle, 0, len(titles))
	for _, t := range titles {
		out = append(out, mediaserver.AlternateTitle{Label: t.Language, Title: t.Title})
	}
	return out
}
