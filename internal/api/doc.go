// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

// Package api exposes the HTTP surface: manual match and search, job
// inspection with an SSE progress stream, health and Prometheus metrics.
//
// Routes (all JSON unless noted):
//
//	GET    /api/v1/health
//	GET    /metrics                                  (Prometheus text format)
//	POST   /api/v1/library/{libraryId}/series/{seriesId}/match
//	POST   /api/v1/search
//	GET    /api/v1/jobs
//	GET    /api/v1/jobs/{jobId}
//	GET    /api/v1/jobs/{jobId}/events               (text/event-stream)
//	DELETE /api/v1/jobs
//
// The router applies request IDs, panic recovery, CORS, per-IP rate
// limiting, security headers and Prometheus instrumentation to every
// API route.
package api
