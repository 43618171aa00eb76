// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/komf-project/komf/internal/config"
	"github.com/komf-project/komf/internal/jobs"
	"github.com/komf-project/komf/internal/mediaserver"
	"github.com/komf-project/komf/internal/metadata"
	"github.com/komf-project/komf/internal/models"
	"github.com/komf-project/komf/internal/providers"
)

type fixture struct {
	router  http.Handler
	tracker *jobs.Tracker
	store   *jobStore
}

func newFixture(t *testing.T, db Pinger) *fixture {
	t.Helper()

	store := newJobStore()
	tracker := jobs.NewTracker(store, 100)
	t.Cleanup(tracker.Stop)

	provider := &stubProvider{
		name: "mangadex",
		results: []providers.SearchResult{
			{Provider: "mangadex", SeriesID: "md-1", Title: "Berserk"},
		},
	}
	sp := metadata.NewServiceProvider(
		&stubClient{kind: mediaserver.KindKomga},
		providers.NewRegistry(provider),
		providers.NewMatcher("exact"),
		newMatchStore(),
		thumbStore{},
		tracker,
		nil,
		config.MetadataUpdateConfig{Default: config.MetadataProcessingConfig{UpdateModes: []string{"api"}}},
	)

	handlers := NewHandlers(tracker, map[string]*metadata.ServiceProvider{"komga": sp}, db, "test")
	return &fixture{
		router:  NewRouter(serverConfig(), handlers),
		tracker: tracker,
		store:   store,
	}
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthOK(t *testing.T) {
	fix := newFixture(t, &pinger{})

	rec := doJSON(t, fix.router, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp models.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body: %v", err)
	}
	if resp.Status != "ok" || resp.Components["database"] != "ok" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Components["komga"] != "configured" {
		t.Errorf("components = %+v", resp.Components)
	}
}

func TestHealthDegradedDatabase(t *testing.T) {
	fix := newFixture(t, &pinger{err: context.DeadlineExceeded})

	rec := doJSON(t, fix.router, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, endpoint stays reachable", rec.Code)
	}
	var resp models.HealthResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
}

func TestSecurityHeaders(t *testing.T) {
	fix := newFixture(t, &pinger{})

	rec := doJSON(t, fix.router, http.MethodGet, "/api/v1/health", "")
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestMatchAccepted(t *testing.T) {
	fix := newFixture(t, &pinger{})

	rec := doJSON(t, fix.router, http.MethodPost, "/api/v1/library/lib-1/series/s1/match",
		`{"provider":"mangadex","providerSeriesId":"md-1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.JobResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.JobID == "" {
		t.Errorf("resp = %s (%v)", rec.Body.String(), err)
	}
}

func TestMatchValidation(t *testing.T) {
	fix := newFixture(t, &pinger{})

	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{`, "INVALID_BODY"},
		{"missing provider", `{"providerSeriesId":"md-1"}`, "VALIDATION_ERROR"},
		{"missing series id", `{"provider":"mangadex"}`, "VALIDATION_ERROR"},
		{"unknown server value", `{"provider":"mangadex","providerSeriesId":"md-1","server":"plex"}`, "VALIDATION_ERROR"},
		{"unconfigured server", `{"provider":"mangadex","providerSeriesId":"md-1","server":"kavita"}`, "UNKNOWN_SERVER"},
		{"unknown provider", `{"provider":"anilist","providerSeriesId":"md-1"}`, "UNKNOWN_PROVIDER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, fix.router, http.MethodPost, "/api/v1/library/lib-1/series/s1/match", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}
			var resp models.ErrorResponse
			_ = json.Unmarshal(rec.Body.Bytes(), &resp)
			if resp.Code != tt.code {
				t.Errorf("code = %q, want %q (%s)", resp.Code, tt.code, resp.Error)
			}
		})
	}
}

func TestSearchReturnsResults(t *testing.T) {
	fix := newFixture(t, &pinger{})

	rec := doJSON(t, fix.router, http.MethodPost, "/api/v1/search", `{"title":"Berserk"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var results []providers.SearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("body: %v", err)
	}
	if len(results) != 1 || results[0].SeriesID != "md-1" {
		t.Errorf("results = %+v", results)
	}
}

func TestSearchRequiresTitle(t *testing.T) {
	fix := newFixture(t, &pinger{})

	rec := doJSON(t, fix.router, http.MethodPost, "/api/v1/search", `{"title":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestJobLifecycleOverAPI(t *testing.T) {
	fix := newFixture(t, &pinger{})

	jobID, err := fix.tracker.Track(context.Background(), "s1", func(context.Context, func(jobs.Event)) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	waitDone(t, fix, jobID)

	rec := doJSON(t, fix.router, http.MethodGet, "/api/v1/jobs/"+jobID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var job models.MetadataJob
	_ = json.Unmarshal(rec.Body.Bytes(), &job)
	if job.Status != models.JobStatusCompleted {
		t.Errorf("job = %+v", job)
	}

	rec = doJSON(t, fix.router, http.MethodGet, "/api/v1/jobs?status=COMPLETED", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var page models.JobPage
	_ = json.Unmarshal(rec.Body.Bytes(), &page)
	if page.TotalCount != 1 {
		t.Errorf("page = %+v", page)
	}

	rec = doJSON(t, fix.router, http.MethodDelete, "/api/v1/jobs", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, fix.router, http.MethodGet, "/api/v1/jobs/"+jobID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestListJobsRejectsBadStatus(t *testing.T) {
	fix := newFixture(t, &pinger{})

	rec := doJSON(t, fix.router, http.MethodGet, "/api/v1/jobs?status=BROKEN", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestJobEventsUnknownJob(t *testing.T) {
	fix := newFixture(t, &pinger{})

	srv := httptest.NewServer(fix.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/jobs/no-such-job/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "event: not-found") {
		t.Errorf("stream = %q, want not-found event", joined)
	}
}

func TestJobEventsStreamsAndCloses(t *testing.T) {
	fix := newFixture(t, &pinger{})

	release := make(chan struct{})
	jobID, err := fix.tracker.Track(context.Background(), "s1", func(_ context.Context, emit func(jobs.Event)) error {
		emit(jobs.Event{Type: jobs.EventProviderSeries, Provider: "mangadex", SeriesID: "s1"})
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("Track: %v", err)
	}

	srv := httptest.NewServer(fix.router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/jobs/" + jobID + "/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(line, "event: provider-series") {
		t.Errorf("first line = %q", line)
	}

	close(release)
	// The stream must terminate once the job completes.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := reader.ReadString('\n'); err != nil {
			return
		}
	}
	t.Fatal("stream did not close after job completion")
}

func waitDone(t *testing.T, fix *fixture, jobID string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := fix.tracker.GetJob(context.Background(), jobID)
		if err == nil && job.Status != models.JobStatusRunning {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("job did not finish")
}

func TestSearchWorksWithTwoServers(t *testing.T) {
	tracker := jobs.NewTracker(newJobStore(), 100)
	t.Cleanup(tracker.Stop)

	provider := &stubProvider{
		name: "mangadex",
		results: []providers.SearchResult{
			{Provider: "mangadex", SeriesID: "md-1", Title: "One Piece"},
		},
	}
	registry := providers.NewRegistry(provider)
	matcher := providers.NewMatcher("exact")
	updateCfg := config.MetadataUpdateConfig{
		Default: config.MetadataProcessingConfig{UpdateModes: []string{"api"}},
	}
	newSP := func(kind mediaserver.Kind) *metadata.ServiceProvider {
		return metadata.NewServiceProvider(
			&stubClient{kind: kind}, registry, matcher,
			newMatchStore(), thumbStore{}, tracker, nil, updateCfg,
		)
	}

	handlers := NewHandlers(tracker, map[string]*metadata.ServiceProvider{
		"komga":  newSP(mediaserver.KindKomga),
		"kavita": newSP(mediaserver.KindKavita),
	}, &pinger{}, "test")
	router := NewRouter(serverConfig(), handlers)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/search", `{"title":"One Piece"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var results []providers.SearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("body: %v", err)
	}
	if len(results) != 1 || results[0].SeriesID != "md-1" {
		t.Errorf("results = %+v", results)
	}
}

func TestSearchUnavailableWithoutServers(t *testing.T) {
	tracker := jobs.NewTracker(newJobStore(), 100)
	t.Cleanup(tracker.Stop)

	handlers := NewHandlers(tracker, map[string]*metadata.ServiceProvider{}, &pinger{}, "test")
	router := NewRouter(serverConfig(), handlers)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/search", `{"title":"One Piece"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp models.ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Code != "NO_SERVER" {
		t.Errorf("code = %q", resp.Code)
	}
}
