// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found will be used.
var DefaultConfigPaths = []string{
	"komf.yaml",
	"komf.yml",
	"/etc/komf/komf.yaml",
	"/etc/komf/komf.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config
// file path.
const ConfigPathEnvVar = "KOMF_CONFIG_PATH"

// defaultConfig returns a Config struct with all default values. These are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Komga: KomgaConfig{
			Enabled: false,
			URL:     "http://localhost:25600",
			EventListener: EventListenerConfig{
				Enabled:          true,
				ReconnectBackoff: 5 * time.Second,
			},
			Metadata: MetadataUpdateConfig{
				Default: defaultProcessingConfig(),
			},
		},
		Kavita: KavitaConfig{
			Enabled: false,
			URL:     "http://localhost:5000",
			EventListener: EventListenerConfig{
				Enabled:          true,
				ReconnectBackoff: 5 * time.Second,
			},
			Metadata: MetadataUpdateConfig{
				Default: defaultProcessingConfig(),
			},
		},
		Providers: ProvidersConfig{
			NameMatchingMode: "closest",
			MangaDex: ProviderConfig{
				Enabled:        false,
				Priority:       10,
				SeriesMetadata: true,
				BookMetadata:   true,
				MediaType:      "manga",
				Throttle: ThrottleConfig{
					// MangaDex documents 5 req/s per client.
					EventsPerInterval: 5,
					Interval:          time.Second,
					Smooth:            true,
				},
			},
			MangaUpdates: ProviderConfig{
				Enabled:        false,
				Priority:       20,
				SeriesMetadata: true,
				BookMetadata:   false,
				MediaType:      "manga",
				Throttle: ThrottleConfig{
					EventsPerInterval: 30,
					Interval:          time.Minute,
					Smooth:            false,
				},
			},
		},
		Database: DatabaseConfig{
			Path:      "/data/komf.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    "/data/cache",
			TTL:     24 * time.Hour,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8085,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			JobEventBuffer:  1000,
		},
		Notifications: NotificationsConfig{
			Discord: DiscordConfig{
				SeriesCover: false,
			},
			Apprise: AppriseConfig{
				SeriesCover: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// defaultProcessingConfig is the per-library metadata baseline applied when
// neither the config file nor env vars override it.
func defaultProcessingConfig() MetadataProcessingConfig {
	return MetadataProcessingConfig{
		Aggregate:              false,
		MergeTags:              false,
		MergeGenres:            false,
		SeriesCovers:           false,
		BookCovers:             false,
		OverrideExistingCovers: true,
		UpdateModes:            []string{"api"},
		LockCovers:             true,
		PostProcessing: PostProcessingConfig{
			UpdateSeriesTitle:  false,
			FallbackToAltTitle: false,
			OrderBooks:         false,
			ScoreTagThreshold:  0,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence: ENV > File > Defaults.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile loads configuration from an explicit config file path plus env
// vars. Used by the --config CLI flag.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Transform environment variable names to koanf paths:
	// KOMGA_URL -> komga.url, MANGADEX_PRIORITY -> providers.mangadex.priority
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths. Returns
// the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as
// comma-separated slices when they arrive from env vars.
var sliceConfigPaths = []string{
	"komga.event_listener.libraries",
	"kavita.event_listener.libraries",
	"komga.metadata.default.update_modes",
	"kavita.metadata.default.update_modes",
	"server.cors_origins",
	"notifications.discord.webhooks",
	"notifications.apprise.urls",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings, but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML file or defaults).
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config
// paths. Unmapped variables are dropped so random environment variables
// never pollute the config.
//
// Examples:
//   - KOMGA_URL -> komga.url
//   - KAVITA_API_KEY -> kavita.api_key
//   - MANGADEX_ENABLED -> providers.mangadex.enabled
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Komga mappings
		"komga_enabled":           "komga.enabled",
		"komga_url":               "komga.url",
		"komga_user":              "komga.user",
		"komga_password":          "komga.password",
		"komga_events_enabled":    "komga.event_listener.enabled",
		"komga_events_libraries":  "komga.event_listener.libraries",
		"komga_reconnect_backoff": "komga.event_listener.reconnect_backoff",

		// Kavita mappings
		"kavita_enabled":           "kavita.enabled",
		"kavita_url":               "kavita.url",
		"kavita_api_key":           "kavita.api_key",
		"kavita_events_enabled":    "kavita.event_listener.enabled",
		"kavita_events_libraries":  "kavita.event_listener.libraries",
		"kavita_reconnect_backoff": "kavita.event_listener.reconnect_backoff",

		// Provider mappings
		"name_matching_mode":             "providers.name_matching_mode",
		"mangadex_enabled":               "providers.mangadex.enabled",
		"mangadex_priority":              "providers.mangadex.priority",
		"mangadex_series_metadata":       "providers.mangadex.series_metadata",
		"mangadex_book_metadata":         "providers.mangadex.book_metadata",
		"mangadex_throttle_events":       "providers.mangadex.throttle.events_per_interval",
		"mangadex_throttle_interval":     "providers.mangadex.throttle.interval",
		"mangadex_throttle_smooth":       "providers.mangadex.throttle.smooth",
		"mangaupdates_enabled":           "providers.mangaupdates.enabled",
		"mangaupdates_priority":          "providers.mangaupdates.priority",
		"mangaupdates_series_metadata":   "providers.mangaupdates.series_metadata",
		"mangaupdates_book_metadata":     "providers.mangaupdates.book_metadata",
		"mangaupdates_throttle_events":   "providers.mangaupdates.throttle.events_per_interval",
		"mangaupdates_throttle_interval": "providers.mangaupdates.throttle.interval",
		"mangaupdates_throttle_smooth":   "providers.mangaupdates.throttle.smooth",

		// Database mappings
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Cache mappings
		"cache_enabled": "cache.enabled",
		"cache_path":    "cache.path",
		"cache_ttl":     "cache.ttl",

		// Server mappings
		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_timeout":        "server.timeout",
		"cors_origins":        "server.cors_origins",
		"rate_limit_requests": "server.rate_limit_reqs",
		"rate_limit_window":   "server.rate_limit_window",
		"job_event_buffer":    "server.job_event_buffer",

		// Notification mappings
		"discord_webhooks":      "notifications.discord.webhooks",
		"discord_series_cover":  "notifications.discord.series_cover",
		"discord_templates_dir": "notifications.discord.templates_dir",
		"apprise_urls":          "notifications.apprise.urls",
		"apprise_series_cover":  "notifications.apprise.series_cover",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
