// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/komf-project/komf/internal/config"
	"github.com/komf-project/komf/internal/database"
	"github.com/komf-project/komf/internal/mediaserver"
	"github.com/komf-project/komf/internal/models"
	"github.com/komf-project/komf/internal/providers"
)

// jobStore is an in-memory jobs.Store for router tests.
type jobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.MetadataJob
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[string]*models.MetadataJob)}
}

func (s *jobStore) InsertJob(_ context.Context, job *models.MetadataJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *jobStore) FinishJob(_ context.Context, id string, status models.JobStatus, message string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != models.JobStatusRunning {
		return nil
	}
	job.Status = status
	job.Message = message
	job.FinishedAt = &finishedAt
	return nil
}

func (s *jobStore) GetJob(_ context.Context, id string) (*models.MetadataJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, database.ErrJobNotFound)
	}
	copied := *job
	return &copied, nil
}

func (s *jobStore) ListJobs(_ context.Context, status models.JobStatus, page, pageSize int) (*models.JobPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []models.MetadataJob
	for _, job := range s.jobs {
		if status == "" || job.Status == status {
			jobs = append(jobs, *job)
		}
	}
	return &models.JobPage{Jobs: jobs, TotalCount: len(jobs), Page: page, PageSize: pageSize}, nil
}

func (s *jobStore) DeleteAllJobs(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*models.MetadataJob)
	return nil
}

// stubClient satisfies mediaserver.Client for routes that never reach
// the media server synchronously.
type stubClient struct{ kind mediaserver.Kind }

func (c *stubClient) Kind() mediaserver.Kind { return c.kind }

func (c *stubClient) GetSeries(context.Context, string) (*mediaserver.Series, error) {
	return nil, mediaserver.ErrNotFound
}

func (c *stubClient) GetBooks(context.Context, string) ([]mediaserver.Book, error) {
	return nil, nil
}

func (c *stubClient) UpdateSeriesMetadata(context.Context, string, *mediaserver.SeriesMetadataUpdate) error {
	return nil
}

func (c *stubClient) UpdateBookMetadata(context.Context, string, *mediaserver.BookMetadataUpdate) error {
	return nil
}

func (c *stubClient) ResetSeriesMetadata(context.Context, string) error { return nil }

func (c *stubClient) GetSeriesThumbnails(context.Context, string) ([]mediaserver.Thumbnail, error) {
	return nil, nil
}

func (c *stubClient) UploadSeriesThumbnail(context.Context, string, mediaserver.Image, bool) (*mediaserver.Thumbnail, error) {
	return nil, nil
}

func (c *stubClient) DeleteSeriesThumbnail(context.Context, string, string) error { return nil }

func (c *stubClient) UploadBookThumbnail(context.Context, string, mediaserver.Image, bool) (*mediaserver.Thumbnail, error) {
	return nil, nil
}

func (c *stubClient) DeleteBookThumbnail(context.Context, string, string) error { return nil }

// stubProvider is a fixed-response metadata provider.
type stubProvider struct {
	name    string
	results []providers.SearchResult
}

func (p *stubProvider) Name() string  { return p.name }
func (p *stubProvider) Priority() int { return 1 }

func (p *stubProvider) SearchSeries(context.Context, string) ([]providers.SearchResult, error) {
	return p.results, nil
}

func (p *stubProvider) GetSeriesMetadata(context.Context, string) (*providers.SeriesMetadata, error) {
	return nil, providers.ErrNoMatch
}

func (p *stubProvider) GetBookMetadata(context.Context, string) (map[string]providers.BookMetadata, error) {
	return map[string]providers.BookMetadata{}, nil
}

func (p *stubProvider) GetCover(context.Context, string) (*providers.Image, error) {
	return nil, providers.ErrNoMatch
}

// matchStore is an in-memory metadata.MatchStore.
type matchStore struct {
	mu      sync.Mutex
	matches map[string]*models.SeriesMatch
}

func newMatchStore() *matchStore {
	return &matchStore{matches: make(map[string]*models.SeriesMatch)}
}

func (s *matchStore) StoreMatch(_ context.Context, match *models.SeriesMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *match
	s.matches[match.Server+"/"+match.SeriesID] = &copied
	return nil
}

func (s *matchStore) GetMatch(context.Context, string, string) (*models.SeriesMatch, error) {
	return nil, errors.New("match not found")
}

// thumbStore is a no-op metadata.ThumbnailStore.
type thumbStore struct{}

func (thumbStore) StoreSeriesThumbnail(context.Context, *models.SeriesThumbnail) error { return nil }

func (thumbStore) GetSeriesThumbnail(context.Context, string, string) (*models.SeriesThumbnail, error) {
	return nil, errors.New("thumbnail not found")
}

func (thumbStore) StoreBookThumbnail(context.Context, *models.BookThumbnail) error { return nil }

func (thumbStore) GetBookThumbnail(context.Context, string, string) (*models.BookThumbnail, error) {
	return nil, errors.New("thumbnail not found")
}

// pinger is a scriptable Pinger.
type pinger struct{ err error }

func (p *pinger) Ping(context.Context) error { return p.err }

func serverConfig() config.ServerConfig {
	return config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		Timeout:         30 * time.Second,
		CORSOrigins:     []string{"*"},
		RateLimitReqs:   0,
		RateLimitWindow: time.Minute,
		JobEventBuffer:  100,
	}
}
