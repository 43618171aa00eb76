// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package database

import (
	"errors"
	"io"
)

var (
	// ErrMatchNotFound is returned when no stored match exists for a series.
	ErrMatchNotFound = errors.New("series match not found")

	// ErrThumbnailNotFound is returned when no thumbnail record exists.
	ErrThumbnailNotFound = errors.New("thumbnail not found")

	// ErrJobNotFound is returned when a job id is unknown.
	ErrJobNotFound = errors.New("job not found")
)

// closeQuietly closes a resource and explicitly ignores any error.
// Use this in error paths where Close() errors are not actionable.
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close()
	}
}
