// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

// Package cache provides a small byte-value cache used for the category
// tree snapshot and the index showcase, with in-memory and Redis
// backends selected by configuration.
package cache

import (
	"context"
	"time"
)

// Cache is the minimal cache contract the application needs.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a value with a TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Delete removes a key.
	Delete(ctx context.Context, key string)
	// Close releases backend resources.
	Close() error
}

// Well-known cache keys.
const (
	KeyCategoryTree = "categories:all"
	KeyShowcase     = "showcase:index"
)
