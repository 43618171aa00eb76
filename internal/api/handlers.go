// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/komf-project/komf/internal/jobs"
	"github.com/komf-project/komf/internal/logging"
	"github.com/komf-project/komf/internal/metadata"
	"github.com/komf-project/komf/internal/models"
	"github.com/komf-project/komf/internal/providers"
	"github.com/komf-project/komf/internal/validation"
)

// Pinger reports whether a backing component is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers carries the dependencies of every route.
type Handlers struct {
	tracker  *jobs.Tracker
	services map[string]*metadata.ServiceProvider
	db       Pinger
	version  string
}

// NewHandlers wires the route dependencies. services is keyed by media
// server kind ("komga", "kavita"); only configured servers appear.
func NewHandlers(tracker *jobs.Tracker, services map[string]*metadata.ServiceProvider, db Pinger, version string) *Handlers {
	return &Handlers{
		tracker:  tracker,
		services: services,
		db:       db,
		version:  version,
	}
}

// handleHealth reports component health. The endpoint stays 200 while
// the process can serve requests; a degraded component is reported in
// the body and flips the status field.
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:     "ok",
		Version:    h.version,
		Components: map[string]string{},
	}

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Components["database"] = err.Error()
		} else {
			resp.Components["database"] = "ok"
		}
	}
	for server := range h.services {
		resp.Components[server] = "configured"
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleMatch pins a series to a provider result and starts a sync run.
func (h *Handlers) handleMatch(w http.ResponseWriter, r *http.Request) {
	libraryID := chi.URLParam(r, "libraryId")
	seriesID := chi.URLParam(r, "seriesId")

	var req models.MatchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error())
		return
	}

	provider, err := h.serviceProvider(req.Server)
	if err != nil {
		respondError(w, http.StatusBadRequest, "UNKNOWN_SERVER", err.Error())
		return
	}

	svc := provider.ServiceFor(libraryID)
	jobID, err := svc.MatchSeriesWith(r.Context(), seriesID, req.Provider, req.ProviderSeriesID)
	if err != nil {
		if errors.Is(err, metadata.ErrProviderDisabled) {
			respondError(w, http.StatusBadRequest, "UNKNOWN_PROVIDER", err.Error())
			return
		}
		logging.Error().Str("series_id", seriesID).Err(err).Msg("Manual match failed")
		respondError(w, http.StatusInternalServerError, "MATCH_FAILED", "failed to start match job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.JobResponse{JobID: jobID})
}

// handleSearch runs a provider title search without writing anything.
func (h *Handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error())
		return
	}

	provider, err := h.searchProvider()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "NO_SERVER", err.Error())
		return
	}

	results, err := provider.ServiceFor("").SearchSeries(r.Context(), req.Title)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "SEARCH_FAILED", err.Error())
		return
	}
	if results == nil {
		results = []providers.SearchResult{}
	}
	respondJSON(w, http.StatusOK, results)
}

// searchProvider returns any configured service provider. Provider
// search never touches the media server and the provider registry is
// shared, so every server's service returns the same results.
func (h *Handlers) searchProvider() (*metadata.ServiceProvider, error) {
	for _, provider := range h.services {
		return provider, nil
	}
	return nil, errors.New("no media server is configured")
}

// serviceProvider resolves the metadata service provider for a server
// name. An empty name is accepted while exactly one server is configured.
func (h *Handlers) serviceProvider(server string) (*metadata.ServiceProvider, error) {
	if server != "" {
		provider, ok := h.services[server]
		if !ok {
			return nil, fmt.Errorf("media server %q is not configured", server)
		}
		return provider, nil
	}

	if len(h.services) == 1 {
		for _, provider := range h.services {
			return provider, nil
		}
	}
	if len(h.services) == 0 {
		return nil, errors.New("no media server is configured")
	}
	return nil, errors.New("multiple media servers configured, specify one")
}
