// Komf - Media Server Metadata Synchronization
// Copyright 2026 The Komf Authors
// SPDX-License-Identifier: MIT
// https://github.com/komf-project/komf

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8085 {
		t.Errorf("Server.Port = %d, want 8085", cfg.Server.Port)
	}
	if cfg.Providers.NameMatchingMode != "closest" {
		t.Errorf("NameMatchingMode = %q, want closest", cfg.Providers.NameMatchingMode)
	}
	if cfg.Komga.Enabled || cfg.Kavita.Enabled {
		t.Error("media servers should be disabled by default")
	}
	if got := cfg.Providers.MangaDex.Throttle; got.EventsPerInterval != 5 || got.Interval != time.Second || !got.Smooth {
		t.Errorf("MangaDex throttle defaults = %+v", got)
	}
	if cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("Cache.TTL = %v, want 24h", cfg.Cache.TTL)
	}
	if modes := cfg.Komga.Metadata.Default.UpdateModes; len(modes) != 1 || modes[0] != "api" {
		t.Errorf("default update modes = %v, want [api]", modes)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KOMGA_ENABLED", "true")
	t.Setenv("KOMGA_URL", "http://komga.local:25600")
	t.Setenv("KOMGA_USER", "admin")
	t.Setenv("KOMGA_PASSWORD", "secret")
	t.Setenv("KOMGA_RECONNECT_BACKOFF", "30s")
	t.Setenv("MANGADEX_ENABLED", "true")
	t.Setenv("MANGADEX_THROTTLE_EVENTS", "10")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Komga.Enabled || cfg.Komga.URL != "http://komga.local:25600" {
		t.Errorf("komga config = %+v", cfg.Komga)
	}
	if cfg.Komga.EventListener.ReconnectBackoff != 30*time.Second {
		t.Errorf("ReconnectBackoff = %v, want 30s", cfg.Komga.EventListener.ReconnectBackoff)
	}
	if cfg.Providers.MangaDex.Throttle.EventsPerInterval != 10 {
		t.Errorf("MangaDex throttle events = %d, want 10", cfg.Providers.MangaDex.Throttle.EventsPerInterval)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "komf.yaml")
	yaml := `
kavita:
  enabled: true
  url: http://kavita.local:5000
  api_key: k3y
  metadata:
    default:
      aggregate: true
      update_modes: [api]
    libraries:
      lib-1:
        aggregate: false
        series_covers: true
        update_modes: [api, comicinfo]
server:
  port: 9000
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.Kavita.Enabled || cfg.Kavita.APIKey != "k3y" {
		t.Errorf("kavita config = %+v", cfg.Kavita)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}

	def := cfg.Kavita.Metadata.ForLibrary("unknown-lib")
	if !def.Aggregate {
		t.Error("unknown library should fall back to default block")
	}
	lib := cfg.Kavita.Metadata.ForLibrary("lib-1")
	if lib.Aggregate || !lib.SeriesCovers {
		t.Errorf("lib-1 override = %+v", lib)
	}
	if len(lib.UpdateModes) != 2 {
		t.Errorf("lib-1 update modes = %v", lib.UpdateModes)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "komf.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "9191")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want env to win over file", cfg.Server.Port)
	}
}

func TestSliceFieldsFromEnv(t *testing.T) {
	t.Setenv("DISCORD_WEBHOOKS", "https://discord.com/api/webhooks/1, https://discord.com/api/webhooks/2")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(cfg.Notifications.Discord.Webhooks); got != 2 {
		t.Fatalf("webhooks = %v, want 2 entries", cfg.Notifications.Discord.Webhooks)
	}
	if cfg.Notifications.Discord.Webhooks[1] != "https://discord.com/api/webhooks/2" {
		t.Errorf("webhook[1] = %q, want trimmed URL", cfg.Notifications.Discord.Webhooks[1])
	}
	if got := len(cfg.Server.CORSOrigins); got != 2 {
		t.Errorf("cors origins = %v, want 2 entries", cfg.Server.CORSOrigins)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "komga enabled without credentials",
			mutate: func(c *Config) {
				c.Komga.Enabled = true
				c.Komga.URL = "http://localhost:25600"
			},
		},
		{
			name: "komga bad url scheme",
			mutate: func(c *Config) {
				c.Komga.Enabled = true
				c.Komga.URL = "ftp://localhost"
				c.Komga.User = "u"
				c.Komga.Password = "p"
			},
		},
		{
			name: "kavita enabled without api key",
			mutate: func(c *Config) {
				c.Kavita.Enabled = true
				c.Kavita.URL = "http://localhost:5000"
			},
		},
		{
			name:   "invalid matching mode",
			mutate: func(c *Config) { c.Providers.NameMatchingMode = "fuzzy" },
		},
		{
			name: "throttle interval too small",
			mutate: func(c *Config) {
				c.Providers.MangaDex.Enabled = true
				c.Providers.MangaDex.Throttle.Interval = time.Millisecond
			},
		},
		{
			name: "throttle interval too large",
			mutate: func(c *Config) {
				c.Providers.MangaDex.Enabled = true
				c.Providers.MangaDex.Throttle.Interval = 25 * time.Hour
			},
		},
		{
			name: "unknown update mode",
			mutate: func(c *Config) {
				c.Komga.Enabled = true
				c.Komga.URL = "http://localhost:25600"
				c.Komga.User = "u"
				c.Komga.Password = "p"
				c.Komga.Metadata.Default.UpdateModes = []string{"ftp"}
			},
		},
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.Server.Port = 0 },
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.Logging.Level = "verbose" },
		},
		{
			name:   "bad reading direction",
			mutate: func(c *Config) {
				c.Komga.Enabled = true
				c.Komga.URL = "http://localhost:25600"
				c.Komga.User = "u"
				c.Komga.Password = "p"
				c.Komga.Metadata.Default.PostProcessing.ReadingDirection = "sideways"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}

func TestValidateDefaults(t *testing.T) {
	if err := defaultConfig().Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}
