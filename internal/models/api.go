// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package models

// MatchRequest pins a series to a specific provider result and triggers
// a synchronization run with that match. Server selects the media server
// holding the series; it may be omitted when only one is configured.
type MatchRequest struct {
	Provider         string `json:"provider" validate:"required"`
	ProviderSeriesID string `json:"providerSeriesId" validate:"required"`
	Server           string `json:"server,omitempty" validate:"omitempty,oneof=komga kavita"`
}

// SearchRequest runs a provider search without writing anything back.
type SearchRequest struct {
	Title string `json:"title" validate:"required,min=1,max=500"`
}

// JobResponse is returned when a synchronization run is accepted.
type JobResponse struct {
	JobID string `json:"jobId"`
}

// ErrorResponse is the uniform error body for the HTTP API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse reports component health for the health endpoint.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}
