// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package cache

import (
	"context"
	"log/slog"

	"github.com/ferabreu/classifieds-go/internal/config"
)

// NewFromConfig selects the cache backend: Redis when a URL is
// configured and reachable, otherwise the in-memory cache. A Redis
// connection failure falls back to memory with a warning rather than
// refusing to start.
func NewFromConfig(ctx context.Context, cfg *config.Config) Cache {
	if !cfg.UseRedisCache() {
		return NewMemory()
	}

	r, err := NewRedis(ctx, cfg.RedisURL, cfg.CachePrefix)
	if err != nil {
		slog.Warn("redis cache unavailable, falling back to in-memory cache", "error", err)
		return NewMemory()
	}

	slog.Info("using redis cache", "prefix", cfg.CachePrefix)
	return r
}
