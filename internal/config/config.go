// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package config

import (
	"time"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML config file, and environment variables (highest priority).
//
// Configuration Categories:
//
//  1. Media Servers:
//     - Komga: REST + SSE integration
//     - Kavita: REST + WebSocket integration
//
//  2. Metadata Providers:
//     - MangaDex, MangaUpdates: external metadata sources with per-provider
//       priorities and request throttling
//
//  3. Infrastructure:
//     - Database: DuckDB file for matches, thumbnails and job history
//     - Cache: Badger store for provider search results
//     - Server: HTTP API configuration
//
//  4. Observability:
//     - Logging: Log levels and output formats
//
// Thread Safety:
// Config is immutable after Load() and safe for concurrent read access.
type Config struct {
	Komga         KomgaConfig         `koanf:"komga"`
	Kavita        KavitaConfig        `koanf:"kavita"`
	Providers     ProvidersConfig     `koanf:"providers"`
	Database      DatabaseConfig      `koanf:"database"`
	Cache         CacheConfig         `koanf:"cache"`
	Server        ServerConfig        `koanf:"server"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Logging       LoggingConfig       `koanf:"logging"`
}

// KomgaConfig holds the Komga connection and per-library metadata settings.
//
// Environment Variables:
//   - KOMGA_ENABLED: Enable Komga integration (default: false)
//   - KOMGA_URL: Komga base URL (e.g. http://localhost:25600)
//   - KOMGA_USER / KOMGA_PASSWORD: Basic-auth credentials
type KomgaConfig struct {
	Enabled  bool   `koanf:"enabled"`
	URL      string `koanf:"url" validate:"omitempty,http_url"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	EventListener EventListenerConfig  `koanf:"event_listener"`
	Metadata      MetadataUpdateConfig `koanf:"metadata"`
}

// KavitaConfig holds the Kavita connection and per-library metadata settings.
//
// Environment Variables:
//   - KAVITA_ENABLED: Enable Kavita integration (default: false)
//   - KAVITA_URL: Kavita base URL (e.g. http://localhost:5000)
//   - KAVITA_API_KEY: API key from the Kavita user settings
type KavitaConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url" validate:"omitempty,http_url"`
	APIKey  string `koanf:"api_key"`

	EventListener EventListenerConfig  `koanf:"event_listener"`
	Metadata      MetadataUpdateConfig `koanf:"metadata"`
}

// EventListenerConfig controls the change-event subscription for one server.
// When Libraries is non-empty, only events from those library IDs trigger
// automatic synchronization.
type EventListenerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	Libraries        []string      `koanf:"libraries"`
	ReconnectBackoff time.Duration `koanf:"reconnect_backoff"`
}

// MetadataUpdateConfig carries the default processing settings plus
// per-library overrides keyed by library ID. A library without an override
// uses Default.
type MetadataUpdateConfig struct {
	Default   MetadataProcessingConfig            `koanf:"default"`
	Libraries map[string]MetadataProcessingConfig `koanf:"libraries" validate:"dive"`
}

// ForLibrary resolves the processing settings for a library, falling back
// to the default block when no override exists.
func (c MetadataUpdateConfig) ForLibrary(libraryID string) MetadataProcessingConfig {
	if override, ok := c.Libraries[libraryID]; ok {
		return override
	}
	return c.Default
}

// MetadataProcessingConfig controls what a metadata sync writes back for
// series in one library.
type MetadataProcessingConfig struct {
	// Aggregate merges metadata from all configured providers in priority
	// order instead of taking only the first match.
	Aggregate bool `koanf:"aggregate"`

	// MergeTags and MergeGenres union values across sources instead of
	// letting the highest-priority source win.
	MergeTags   bool `koanf:"merge_tags"`
	MergeGenres bool `koanf:"merge_genres"`

	SeriesCovers           bool `koanf:"series_covers"`
	BookCovers             bool `koanf:"book_covers"`
	OverrideExistingCovers bool `koanf:"override_existing_covers"`

	// UpdateModes selects how metadata is written back. "api" patches via
	// the media server REST API.
	UpdateModes []string `koanf:"update_modes" validate:"min=1,dive,oneof=api comicinfo"`

	// LockCovers marks uploaded thumbnails so later library scans don't
	// replace them.
	LockCovers bool `koanf:"lock_covers"`

	PostProcessing PostProcessingConfig `koanf:"post_processing"`
}

// PostProcessingConfig adjusts the merged metadata before write-back.
type PostProcessingConfig struct {
	// UpdateSeriesTitle replaces the series title with the provider title.
	UpdateSeriesTitle bool `koanf:"update_series_title"`

	// SeriesTitleLanguage picks which localized title to prefer (BCP 47
	// tag, e.g. "en" or "ja-ro"). Empty keeps the provider's primary title.
	SeriesTitleLanguage string `koanf:"series_title_language"`

	// FallbackToAltTitle falls back to an alternate title in the configured
	// language when the primary title has none.
	FallbackToAltTitle bool `koanf:"fallback_to_alt_title"`

	AlternativeTitles        bool   `koanf:"alternative_titles"`
	AlternativeTitleLanguage string `koanf:"alternative_title_language"`

	// OrderBooks renumbers books by parsed volume/chapter numbers.
	OrderBooks bool `koanf:"order_books"`

	// ReadingDirection and Language override the merged values when set.
	ReadingDirection string `koanf:"reading_direction"`
	Language         string `koanf:"language"`

	// ScoreTag appends a "score: N" tag derived from the provider rating.
	ScoreTag          bool `koanf:"score_tag"`
	ScoreTagThreshold int  `koanf:"score_tag_threshold" validate:"gte=0,lte=10"`
}

// ProvidersConfig holds per-provider settings plus the global matcher mode.
type ProvidersConfig struct {
	// NameMatchingMode selects the title matcher: "exact" or "closest".
	NameMatchingMode string `koanf:"name_matching_mode" validate:"oneof=exact closest"`

	MangaDex     ProviderConfig `koanf:"mangadex"`
	MangaUpdates ProviderConfig `koanf:"mangaupdates"`
}

// ProviderConfig configures one external metadata provider.
type ProviderConfig struct {
	Enabled bool `koanf:"enabled"`

	// Priority orders providers during aggregation; lower wins.
	Priority int `koanf:"priority"`

	// SeriesMetadata and BookMetadata toggle which levels the provider
	// contributes to.
	SeriesMetadata bool `koanf:"series_metadata"`
	BookMetadata   bool `koanf:"book_metadata"`

	// MediaType filters searches where the provider supports it
	// (e.g. "manga", "novel").
	MediaType string `koanf:"media_type"`

	Throttle ThrottleConfig `koanf:"throttle"`
}

// ThrottleConfig bounds the request rate against one provider API.
type ThrottleConfig struct {
	// EventsPerInterval is the permit budget per Interval.
	EventsPerInterval int           `koanf:"events_per_interval"`
	Interval          time.Duration `koanf:"interval"`

	// Smooth spaces permits evenly across the interval instead of
	// allowing a full-budget burst at each window start.
	Smooth bool `koanf:"smooth"`

	// Warmup delays enforcement after startup for the given duration.
	Warmup time.Duration `koanf:"warmup"`
}

// DatabaseConfig holds DuckDB settings.
//
// Environment Variables:
//   - DUCKDB_PATH: Database file path (default: /data/komf.duckdb)
//   - DUCKDB_MAX_MEMORY: DuckDB memory limit (default: 512MB)
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = use runtime.NumCPU()
}

// CacheConfig holds the Badger provider-search cache settings.
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	Path    string        `koanf:"path"`
	TTL     time.Duration `koanf:"ttl"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout"`

	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`

	// JobEventBuffer bounds the replay buffer for job progress streams.
	JobEventBuffer int `koanf:"job_event_buffer"`
}

// NotificationsConfig configures outbound notifications sent after a
// successful series update.
type NotificationsConfig struct {
	Discord DiscordConfig `koanf:"discord"`
	Apprise AppriseConfig `koanf:"apprise"`
}

// DiscordConfig holds Discord webhook delivery settings.
type DiscordConfig struct {
	Webhooks    []string `koanf:"webhooks" validate:"dive,http_url"`
	SeriesCover bool     `koanf:"series_cover"`
	// TemplatesDir overrides the built-in message template when set.
	TemplatesDir string `koanf:"templates_dir"`
}

// AppriseConfig holds Apprise CLI delivery settings.
type AppriseConfig struct {
	URLs        []string `koanf:"urls"`
	SeriesCover bool     `koanf:"series_cover"`
}

// LoggingConfig holds logging settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json or console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
