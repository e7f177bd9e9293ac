// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package showcase

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferabreu/classifieds-go/internal/cache"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/store"
	"github.com/ferabreu/classifieds-go/internal/testutil"
)

type fixture struct {
	db      *sql.DB
	queries *store.Queries
	cache   cache.Cache
	user    model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	testutil.SilenceLogs(t)

	db := testutil.TestDB(t)
	c := cache.NewMemory()
	t.Cleanup(func() { _ = c.Close() })

	q := store.New(db)
	user, err := q.CreateUser(context.Background(), store.CreateUserParams{
		Email: "seller@example.com", PasswordHash: "x", FirstName: "S", LastName: "Eller",
	})
	require.NoError(t, err)

	return &fixture{db: db, queries: q, cache: c, user: user}
}

func (f *fixture) addCategory(t *testing.T, name string, listings int) model.Category {
	t.Helper()
	ctx := context.Background()

	cat, err := f.queries.CreateCategory(ctx, store.CreateCategoryParams{
		Name: name, Slug: name,
	})
	require.NoError(t, err)

	for i := 0; i < listings; i++ {
		_, err := f.queries.CreateListing(ctx, store.CreateListingParams{
			Title:       fmt.Sprintf("%s item %d", name, i),
			Description: "Sold as seen, no returns.",
			Price:       float64(i),
			UserID:      f.user.ID,
			CategoryID:  cat.ID,
			CreatedAt:   time.Now(),
		})
		require.NoError(t, err)
	}
	return cat
}

func TestSectionsConfiguredCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.addCategory(t, "alpha", 2)
	f.addCategory(t, "beta", 5)
	empty, err := f.queries.CreateCategory(ctx, store.CreateCategoryParams{Name: "empty", Slug: "empty"})
	require.NoError(t, err)

	// Configured order is kept; a configured category without listings
	// is dropped rather than shown empty.
	s := NewService(f.db, f.cache, time.Minute, 6, 5, []int64{a.ID, empty.ID})
	sections, err := s.Sections(ctx)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, a.ID, sections[0].Category.ID)
	assert.Len(t, sections[0].Listings, 2)
}

func TestSectionsConfiguredCappedAtCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		ids = append(ids, f.addCategory(t, fmt.Sprintf("cat%d", i), 1).ID)
	}

	s := NewService(f.db, f.cache, time.Minute, 2, 5, ids)
	sections, err := s.Sections(ctx)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, ids[0], sections[0].Category.ID)
	assert.Equal(t, ids[1], sections[1].Category.ID)
}

func TestSectionsConfiguredSkipsDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.addCategory(t, "alpha", 1)

	s := NewService(f.db, f.cache, time.Minute, 6, 5, []int64{a.ID, 9999})
	sections, err := s.Sections(ctx)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, a.ID, sections[0].Category.ID)
}

func TestSectionsAutoSelectionSkipsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addCategory(t, "busy", 4)
	f.addCategory(t, "quiet", 1)
	_, err := f.queries.CreateCategory(ctx, store.CreateCategoryParams{Name: "empty", Slug: "empty"})
	require.NoError(t, err)

	s := NewService(f.db, f.cache, time.Minute, 6, 5, nil)
	sections, err := s.Sections(ctx)
	require.NoError(t, err)

	require.Len(t, sections, 2)
	for _, sec := range sections {
		assert.NotEmpty(t, sec.Listings, sec.Category.Name)
	}
}

func TestSectionsAutoSelectionSampleSize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		f.addCategory(t, fmt.Sprintf("cat%d", i), i+1)
	}

	// Display count 3: every call returns exactly 3 non-empty sections.
	s := NewService(f.db, f.cache, time.Minute, 3, 2, nil)
	for i := 0; i < 5; i++ {
		sections, err := s.Sections(ctx)
		require.NoError(t, err)
		assert.Len(t, sections, 3)
		for _, sec := range sections {
			assert.NotEmpty(t, sec.Listings)
			assert.LessOrEqual(t, len(sec.Listings), 2)
		}
	}
}

func TestSectionsListingImagesAttached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cat := f.addCategory(t, "gallery", 1)
	listings, err := f.queries.ListListings(ctx, store.ListListingsParams{
		CategoryIDs: []int64{cat.ID}, Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, listings, 1)

	_, err = f.queries.CreateImage(ctx, store.CreateImageParams{
		Filename: "pic.jpg", ListingID: listings[0].ID,
	})
	require.NoError(t, err)

	s := NewService(f.db, f.cache, time.Minute, 6, 5, []int64{cat.ID})
	sections, err := s.Sections(ctx)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	require.Len(t, sections[0].Listings, 1)
	assert.Len(t, sections[0].Listings[0].Images, 1)
}
