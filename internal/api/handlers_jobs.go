// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/komf-project/komf/internal/database"
	"github.com/komf-project/komf/internal/logging"
	"github.com/komf-project/komf/internal/models"
)

const sseKeepAliveInterval = 15 * time.Second

// handleListJobs returns a page of jobs, optionally filtered by status.
func (h *Handlers) handleListJobs(w http.ResponseWriter, r *http.Request) {
	status := models.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !models.ValidJobStatus(status) {
		respondError(w, http.StatusBadRequest, "INVALID_STATUS", "status must be RUNNING, COMPLETED or FAILED")
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", 50)

	jobPage, err := h.tracker.GetJobs(r.Context(), status, page, pageSize)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list jobs")
		respondError(w, http.StatusInternalServerError, "LIST_FAILED", "failed to list jobs")
		return
	}
	respondJSON(w, http.StatusOK, jobPage)
}

// handleGetJob returns a single job by id.
func (h *Handlers) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.tracker.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, "JOB_NOT_FOUND", "no job with that id")
			return
		}
		logging.Error().Str("job_id", jobID).Err(err).Msg("Failed to fetch job")
		respondError(w, http.StatusInternalServerError, "GET_FAILED", "failed to fetch job")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// handleDeleteJobs purges the job history.
func (h *Handlers) handleDeleteJobs(w http.ResponseWriter, r *http.Request) {
	if err := h.tracker.DeleteAll(r.Context()); err != nil {
		logging.Error().Err(err).Msg("Failed to delete job history")
		respondError(w, http.StatusInternalServerError, "DELETE_FAILED", "failed to delete jobs")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleJobEvents streams a job's progress as server-sent events. The
// buffered history replays first, then live events follow until the job
// completes or the client disconnects. Unknown job ids receive a single
// not-found event before the stream closes.
func (h *Handlers) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "response writer does not support streaming")
		return
	}

	events, unsubscribe := h.tracker.Subscribe(jobID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				logging.Error().Str("job_id", jobID).Err(err).Msg("Failed to encode job event")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
