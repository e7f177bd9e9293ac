// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

// Package showcase selects the categories featured on the index page
// along with their latest listings. Explicitly configured category IDs
// win; otherwise the selection draws a random sample from the busiest
// categories so the index varies between visits without ever featuring
// an empty category.
package showcase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/ferabreu/classifieds-go/internal/cache"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/store"
)

// Section is one featured category with its latest listings.
type Section struct {
	Category model.Category  `json:"category"`
	Listings []model.Listing `json:"listings"`
}

// Service builds the index page showcase.
type Service struct {
	queries      *store.Queries
	cache        cache.Cache
	cacheTTL     time.Duration
	count        int     // Categories shown per page view
	itemsPer     int     // Listings shown per category
	configured   []int64 // Explicit category IDs; empty for auto-selection
	poolMultiple int
}

// NewService creates a showcase service. count is the number of
// featured categories, itemsPer the listings shown under each, and
// configured an optional explicit category list that disables the
// automatic selection.
func NewService(db *sql.DB, c cache.Cache, cacheTTL time.Duration, count, itemsPer int, configured []int64) *Service {
	return &Service{
		queries:      store.New(db),
		cache:        c,
		cacheTTL:     cacheTTL,
		count:        count,
		itemsPer:     itemsPer,
		configured:   configured,
		poolMultiple: 2,
	}
}

// Sections returns the showcase for the index page. The candidate pool
// is cached; the random sample is drawn per call so repeated visits
// rotate through the pool.
func (s *Service) Sections(ctx context.Context) ([]Section, error) {
	ids, err := s.candidateIDs(ctx)
	if err != nil {
		return nil, err
	}

	chosen := ids
	if len(s.configured) == 0 && len(chosen) > s.count {
		chosen = sample(chosen, s.count)
	}

	sections := make([]Section, 0, len(chosen))
	for _, id := range chosen {
		category, err := s.queries.GetCategoryByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			// A configured ID pointing at a deleted category is skipped,
			// not fatal.
			slog.Warn("showcase category no longer exists", "category_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}

		listings, err := s.queries.ListListings(ctx, store.ListListingsParams{
			CategoryIDs: []int64{id},
			Limit:       int64(s.itemsPer),
		})
		if err != nil {
			return nil, err
		}
		if err := s.attachImages(ctx, listings); err != nil {
			return nil, err
		}

		sections = append(sections, Section{Category: category, Listings: listings})
	}
	return sections, nil
}

// candidateIDs returns the configured IDs, or the cached pool of the
// busiest categories.
func (s *Service) candidateIDs(ctx context.Context) ([]int64, error) {
	if len(s.configured) > 0 {
		return s.configuredIDs(ctx)
	}

	if data, ok := s.cache.Get(ctx, cache.KeyShowcase); ok {
		var ids []int64
		if err := json.Unmarshal(data, &ids); err == nil {
			return ids, nil
		}
		slog.Warn("discarding corrupt showcase cache entry")
	}

	// Pool size is a multiple of the display count so the sample has
	// room to vary.
	counts, err := s.queries.ListCategoryListingCounts(ctx, int64(s.count*s.poolMultiple))
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, c := range counts {
		if c.ListingCount > 0 {
			ids = append(ids, c.CategoryID)
		}
	}

	if data, err := json.Marshal(ids); err == nil {
		s.cache.Set(ctx, cache.KeyShowcase, data, s.cacheTTL)
	}
	return ids, nil
}

// configuredIDs keeps only the configured categories that actually have
// listings, capped at the showcase count.
func (s *Service) configuredIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	for _, id := range s.configured {
		n, err := s.queries.CountListings(ctx, store.ListListingsParams{CategoryIDs: []int64{id}})
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		ids = append(ids, id)
		if len(ids) == s.count {
			break
		}
	}
	return ids, nil
}

// attachImages populates the Images field of each listing in one query.
func (s *Service) attachImages(ctx context.Context, listings []model.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	ids := make([]int64, len(listings))
	index := make(map[int64]int, len(listings))
	for i, l := range listings {
		ids[i] = l.ID
		index[l.ID] = i
	}

	images, err := s.queries.ListImagesByListings(ctx, ids)
	if err != nil {
		return err
	}
	for _, img := range images {
		i := index[img.ListingID]
		listings[i].Images = append(listings[i].Images, img)
	}
	return nil
}

// sample returns n random elements without mutating the input.
func sample(ids []int64, n int) []int64 {
	shuffled := make([]int64, len(ids))
	copy(shuffled, ids)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}
