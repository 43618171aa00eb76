// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

// Package metrics exposes Prometheus instrumentation for the
// synchronization engine: limiter decisions, provider calls, event
// ingestion, job lifecycle, and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Throttle metrics

	ThrottleDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komf_throttle_decisions_total",
			Help: "Limiter decisions by limiter name and kind",
		},
		[]string{"limiter", "kind"},
	)

	ThrottleDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "komf_throttle_delay_seconds",
			Help:    "Delay slept by limiter callers before a grant",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"limiter"},
	)

	// Provider metrics

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "komf_provider_request_duration_seconds",
			Help:    "Duration of metadata provider calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	ProviderRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komf_provider_request_errors_total",
			Help: "Metadata provider call failures",
		},
		[]string{"provider", "operation"},
	)

	// Event ingestion metrics

	ChangeEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komf_change_events_received_total",
			Help: "Raw change events received from media servers",
		},
		[]string{"server", "type"},
	)

	EventBatchesFlushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komf_event_batches_flushed_total",
			Help: "Debounced event batches handed to listeners",
		},
		[]string{"server"},
	)

	EventStreamReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komf_event_stream_reconnects_total",
			Help: "Change-event stream reconnection attempts",
		},
		[]string{"server"},
	)

	// Job metrics

	JobsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "komf_jobs_started_total",
			Help: "Metadata jobs started",
		},
	)

	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komf_jobs_completed_total",
			Help: "Metadata jobs by terminal status",
		},
		[]string{"status"},
	)

	JobEventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "komf_job_event_subscribers",
			Help: "Currently attached job event stream subscribers",
		},
	)

	// Write-back metrics

	SeriesUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komf_series_updated_total",
			Help: "Series metadata write-backs by media server",
		},
		[]string{"server"},
	)

	ThumbnailsUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komf_thumbnails_uploaded_total",
			Help: "Cover thumbnails uploaded by entity kind",
		},
		[]string{"server", "kind"},
	)

	// Circuit breaker metrics

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "komf_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komf_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komf_circuit_breaker_requests_total",
			Help: "Circuit breaker request outcomes",
		},
		[]string{"name", "outcome"},
	)

	// API metrics

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "komf_api_requests_total",
			Help: "HTTP API requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "komf_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// ObserveProviderRequest records one provider call outcome.
func ObserveProviderRequest(provider, operation string, start time.Time, err error) {
	ProviderRequestDuration.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		ProviderRequestErrors.WithLabelValues(provider, operation).Inc()
	}
}

// ObserveAPIRequest records one HTTP API request outcome.
func ObserveAPIRequest(method, path string, status int, start time.Time) {
	APIRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
}
