// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/komf-project/komf/internal/validation"
)

// Validate checks the whole configuration. Field-level rules run through
// the `validate` struct tags; the checks below cover the cross-field
// conditions tags cannot express (enabled-implies-required, throttle
// bounds mirroring the limiter constructors).
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateKomga(); err != nil {
		return err
	}

	if err := c.validateKavita(); err != nil {
		return err
	}

	if err := c.validateProviders(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	return nil
}

// validateKomga validates Komga configuration (only if enabled).
func (c *Config) validateKomga() error {
	if !c.Komga.Enabled {
		return nil
	}

	if c.Komga.URL == "" {
		return fmt.Errorf("KOMGA_URL is required when KOMGA_ENABLED=true")
	}
	if c.Komga.User == "" || c.Komga.Password == "" {
		return fmt.Errorf("KOMGA_USER and KOMGA_PASSWORD are required when KOMGA_ENABLED=true")
	}
	if c.Komga.EventListener.ReconnectBackoff <= 0 {
		return fmt.Errorf("komga.event_listener.reconnect_backoff must be positive")
	}
	return validateMetadataUpdate("komga", c.Komga.Metadata)
}

// validateKavita validates Kavita configuration (only if enabled).
func (c *Config) validateKavita() error {
	if !c.Kavita.Enabled {
		return nil
	}

	if c.Kavita.URL == "" {
		return fmt.Errorf("KAVITA_URL is required when KAVITA_ENABLED=true")
	}
	if c.Kavita.APIKey == "" {
		return fmt.Errorf("KAVITA_API_KEY is required when KAVITA_ENABLED=true")
	}
	if c.Kavita.EventListener.ReconnectBackoff <= 0 {
		return fmt.Errorf("kavita.event_listener.reconnect_backoff must be positive")
	}
	return validateMetadataUpdate("kavita", c.Kavita.Metadata)
}

func validateMetadataUpdate(server string, cfg MetadataUpdateConfig) error {
	if err := validateProcessing(server+".metadata.default", cfg.Default); err != nil {
		return err
	}
	for libraryID, override := range cfg.Libraries {
		section := fmt.Sprintf("%s.metadata.libraries.%s", server, libraryID)
		if err := validateProcessing(section, override); err != nil {
			return err
		}
	}
	return nil
}

func validateProcessing(section string, cfg MetadataProcessingConfig) error {
	// Direction is accepted in any case; the tag would force uppercase.
	if dir := cfg.PostProcessing.ReadingDirection; dir != "" {
		switch strings.ToUpper(dir) {
		case "LEFT_TO_RIGHT", "RIGHT_TO_LEFT", "VERTICAL", "WEBTOON":
		default:
			return fmt.Errorf("%s.post_processing.reading_direction %q is invalid", section, dir)
		}
	}
	return nil
}

// validateProviders checks every enabled provider's throttle settings.
// The throttle bounds mirror what the rate limiters enforce at
// construction, so a bad config fails at load time rather than panicking
// at startup.
func (c *Config) validateProviders() error {
	providers := map[string]ProviderConfig{
		"mangadex":     c.Providers.MangaDex,
		"mangaupdates": c.Providers.MangaUpdates,
	}
	for name, p := range providers {
		if !p.Enabled {
			continue
		}
		if err := validateThrottle(name, p.Throttle); err != nil {
			return err
		}
	}
	return nil
}

func validateThrottle(provider string, t ThrottleConfig) error {
	if t.EventsPerInterval <= 0 {
		return fmt.Errorf("providers.%s.throttle.events_per_interval must be positive", provider)
	}
	if t.Interval <= 5*time.Millisecond {
		return fmt.Errorf("providers.%s.throttle.interval must be greater than 5ms", provider)
	}
	if t.Interval > 24*time.Hour {
		return fmt.Errorf("providers.%s.throttle.interval must not exceed 24h", provider)
	}
	if t.Warmup < 0 {
		return fmt.Errorf("providers.%s.throttle.warmup must not be negative", provider)
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Server.RateLimitReqs < 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must not be negative")
	}
	if c.Server.JobEventBuffer < 1 {
		return fmt.Errorf("JOB_EVENT_BUFFER must be at least 1")
	}
	return nil
}
