// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/komf-project/komf/internal/config"
)

// NewRouter builds the chi router with the full middleware stack.
func NewRouter(cfg config.ServerConfig, handlers *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(securityHeaders)
		r.Use(instrument)
		if cfg.RateLimitReqs > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		}

		r.Get("/health", handlers.handleHealth)
		r.Post("/search", handlers.handleSearch)
		r.Post("/library/{libraryId}/series/{seriesId}/match", handlers.handleMatch)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", handlers.handleListJobs)
			r.Delete("/", handlers.handleDeleteJobs)
			r.Get("/{jobId}", handlers.handleGetJob)
			r.Get("/{jobId}/events", handlers.handleJobEvents)
		})
	})

	return r
}
