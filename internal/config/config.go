// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

// Package config loads the application configuration from environment
// variables. Directory paths and thumbnail dimensions are explicit
// configuration, passed to the components that need them.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// knownWeakSecrets contains default/example secrets that must be rejected.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
}

// MinSessionSecretLength is the minimum required length for the session secret.
const MinSessionSecretLength = 32

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath        string `env:"CLSF_DB_PATH" envDefault:"./data/classifieds.db"`
	SessionSecret string `env:"CLSF_SESSION_SECRET,required"`
	ServerHost    string `env:"CLSF_SERVER_HOST" envDefault:"localhost"`
	ServerPort    int    `env:"CLSF_SERVER_PORT" envDefault:"8080"`
	Env           string `env:"CLSF_ENV" envDefault:"development"`
	LogLevel      string `env:"CLSF_LOG_LEVEL" envDefault:"info"`

	// Image storage directories. TempDir is the staging area used by
	// the listing asset transaction protocol; files only move from
	// TempDir to UploadDir/ThumbnailDir after a database commit.
	UploadDir    string `env:"CLSF_UPLOAD_DIR" envDefault:"./data/uploads"`
	ThumbnailDir string `env:"CLSF_THUMBNAIL_DIR" envDefault:"./data/uploads/thumbnails"`
	TempDir      string `env:"CLSF_TEMP_DIR" envDefault:"./data/temp"`

	// Thumbnail pixel dimensions (configuration, not a protocol constant).
	ThumbnailWidth  int `env:"CLSF_THUMBNAIL_WIDTH" envDefault:"224"`
	ThumbnailHeight int `env:"CLSF_THUMBNAIL_HEIGHT" envDefault:"224"`

	// Index page showcase configuration.
	ShowcaseCount      int     `env:"CLSF_SHOWCASE_COUNT" envDefault:"6"`
	ShowcaseItems      int     `env:"CLSF_SHOWCASE_ITEMS" envDefault:"5"`
	ShowcaseCategories []int64 `env:"CLSF_SHOWCASE_CATEGORIES"` // Explicit category IDs; empty for auto-selection

	// Cache configuration.
	RedisURL    string `env:"CLSF_REDIS_URL"` // Optional Redis URL for distributed caching
	CachePrefix string `env:"CLSF_CACHE_PREFIX" envDefault:"clsf:"`
	CacheTTL    int    `env:"CLSF_CACHE_TTL" envDefault:"300"` // Seconds

	// Thumbnail backfill sweep schedule (cron expression).
	BackfillSchedule string `env:"CLSF_BACKFILL_SCHEDULE" envDefault:"@hourly"`

	// Seeding configuration.
	DoSeed bool `env:"CLSF_DO_SEED" envDefault:"true"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("CLSF_SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSessionSecretLength, len(cfg.SessionSecret))
	}

	for _, weak := range knownWeakSecrets {
		if cfg.SessionSecret == weak {
			return nil, fmt.Errorf("CLSF_SESSION_SECRET is a known default value and must not be used; " +
				"generate a secure secret with: openssl rand -base64 32")
		}
	}

	if cfg.ThumbnailWidth < 1 || cfg.ThumbnailHeight < 1 {
		return nil, fmt.Errorf("thumbnail dimensions must be positive, got %dx%d",
			cfg.ThumbnailWidth, cfg.ThumbnailHeight)
	}

	for _, dir := range []struct{ name, value string }{
		{"CLSF_UPLOAD_DIR", cfg.UploadDir},
		{"CLSF_THUMBNAIL_DIR", cfg.ThumbnailDir},
		{"CLSF_TEMP_DIR", cfg.TempDir},
	} {
		if strings.TrimSpace(dir.value) == "" {
			return nil, fmt.Errorf("%s must not be empty", dir.name)
		}
	}

	return cfg, nil
}
