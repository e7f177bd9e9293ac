// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferabreu/classifieds-go/internal/cache"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/store"
	"github.com/ferabreu/classifieds-go/internal/testutil"
)

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db := testutil.TestDB(t)
	c := cache.NewMemory()
	t.Cleanup(func() { _ = c.Close() })
	return NewService(db, c, time.Minute), db
}

func mustCreate(t *testing.T, s *Service, name string, parentID int64) model.Category {
	t.Helper()
	in := Input{Name: name}
	if parentID != 0 {
		in.ParentID = sql.NullInt64{Int64: parentID, Valid: true}
	}
	c, err := s.Create(context.Background(), in)
	require.NoError(t, err)
	return c
}

func TestCreateGeneratesSlug(t *testing.T) {
	s, _ := newTestService(t)

	c, err := s.Create(context.Background(), Input{Name: "Eletrônicos & Cia"})
	require.NoError(t, err)
	assert.Equal(t, "eletronicos-cia", c.Slug)
	assert.False(t, c.ParentID.Valid)
}

func TestCreateRejectsReservedSlug(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.Create(context.Background(), Input{Name: "Admin"})
	assert.ErrorIs(t, err, ErrReservedSlug)
}

func TestCreateRejectsEmptySlug(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.Create(context.Background(), Input{Name: "???"})
	assert.ErrorIs(t, err, ErrEmptySlug)
}

func TestCreateRejectsDuplicateSiblings(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	root := mustCreate(t, s, "Vehicles", 0)
	mustCreate(t, s, "Cars", root.ID)

	// Same name under the same parent, case-insensitive.
	_, err := s.Create(ctx, Input{Name: "cars", ParentID: sql.NullInt64{Int64: root.ID, Valid: true}})
	assert.ErrorIs(t, err, ErrDuplicateName)

	// Different name colliding on the generated slug.
	_, err = s.Create(ctx, Input{Name: "Cars!", ParentID: sql.NullInt64{Int64: root.ID, Valid: true}})
	assert.ErrorIs(t, err, ErrDuplicateSlug)

	// Same name under a different parent is fine.
	other := mustCreate(t, s, "Toys", 0)
	_, err = s.Create(ctx, Input{Name: "Cars", ParentID: sql.NullInt64{Int64: other.ID, Valid: true}})
	assert.NoError(t, err)
}

func TestCreateRejectsDuplicateRoots(t *testing.T) {
	s, _ := newTestService(t)

	mustCreate(t, s, "Books", 0)
	_, err := s.Create(context.Background(), Input{Name: "Books"})
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestResolvePath(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	root := mustCreate(t, s, "Electronics", 0)
	mid := mustCreate(t, s, "Computers", root.ID)
	leaf := mustCreate(t, s, "Laptops", mid.ID)

	got, err := s.ResolvePath(ctx, "electronics/computers/laptops")
	require.NoError(t, err)
	assert.Equal(t, leaf.ID, got.ID)

	got, err = s.ResolvePath(ctx, "electronics")
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ID)

	// Trailing and doubled slashes are tolerated.
	got, err = s.ResolvePath(ctx, "/electronics//computers/")
	require.NoError(t, err)
	assert.Equal(t, mid.ID, got.ID)

	_, err = s.ResolvePath(ctx, "electronics/phones")
	assert.ErrorIs(t, err, ErrNotFound)

	// A valid slug at the wrong depth does not match.
	_, err = s.ResolvePath(ctx, "laptops")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ResolvePath(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPathRoundTrip(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	root := mustCreate(t, s, "Home", 0)
	leaf := mustCreate(t, s, "Furniture", root.ID)

	path, err := s.Path(ctx, leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, "home/furniture", path)

	got, err := s.ResolvePath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, leaf.ID, got.ID)
}

func TestBreadcrumbAndFullPath(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, s, "A", 0)
	b := mustCreate(t, s, "B", a.ID)
	c := mustCreate(t, s, "C", b.ID)

	chain, err := s.Breadcrumb(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, a.ID, chain[0].ID)
	assert.Equal(t, b.ID, chain[1].ID)
	assert.Equal(t, c.ID, chain[2].ID)

	label, err := s.FullPath(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "A > B > C", label)

	_, err = s.Breadcrumb(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDescendantIDs(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	root := mustCreate(t, s, "Root", 0)
	childA := mustCreate(t, s, "Child A", root.ID)
	childB := mustCreate(t, s, "Child B", root.ID)
	grandchild := mustCreate(t, s, "Grandchild", childA.ID)
	mustCreate(t, s, "Unrelated", 0)

	ids, err := s.DescendantIDs(ctx, root.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{root.ID, childA.ID, childB.ID, grandchild.ID}, ids)

	ids, err = s.DescendantIDs(ctx, grandchild.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{grandchild.ID}, ids)
}

func TestUpdateRejectsCycles(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, s, "A", 0)
	b := mustCreate(t, s, "B", a.ID)
	c := mustCreate(t, s, "C", b.ID)

	// Self-parenting.
	_, err := s.Update(ctx, a.ID, Input{Name: "A", ParentID: sql.NullInt64{Int64: a.ID, Valid: true}})
	assert.ErrorIs(t, err, ErrCycle)

	// Reparenting under a descendant.
	_, err = s.Update(ctx, a.ID, Input{Name: "A", ParentID: sql.NullInt64{Int64: c.ID, Valid: true}})
	assert.ErrorIs(t, err, ErrCycle)

	// Reparenting a leaf under another root is fine.
	other := mustCreate(t, s, "Other", 0)
	updated, err := s.Update(ctx, c.ID, Input{Name: "C", ParentID: sql.NullInt64{Int64: other.ID, Valid: true}})
	require.NoError(t, err)
	assert.Equal(t, other.ID, updated.ParentID.Int64)
}

func TestUpdatePromotesToRoot(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, s, "A", 0)
	b := mustCreate(t, s, "B", a.ID)

	updated, err := s.Update(ctx, b.ID, Input{Name: "B"})
	require.NoError(t, err)
	assert.False(t, updated.ParentID.Valid)
}

func TestDeleteBlockedBySubtreeListings(t *testing.T) {
	s, db := newTestService(t)
	ctx := context.Background()
	q := store.New(db)

	root := mustCreate(t, s, "Root", 0)
	child := mustCreate(t, s, "Child", root.ID)

	user, err := q.CreateUser(ctx, store.CreateUserParams{
		Email:        "seller@example.com",
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     "Seller",
	})
	require.NoError(t, err)

	listing, err := q.CreateListing(ctx, store.CreateListingParams{
		Title:       "Old bike",
		Description: "Works fine. Some rust on the frame.",
		Price:       50,
		UserID:      user.ID,
		CategoryID:  child.ID,
	})
	require.NoError(t, err)

	// Listing lives in the child; deleting the parent is still blocked.
	err = s.Delete(ctx, root.ID)
	assert.ErrorIs(t, err, ErrHasListings)

	require.NoError(t, q.DeleteListing(ctx, listing.ID))
	require.NoError(t, s.Delete(ctx, root.ID))

	_, err = s.Get(ctx, child.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCascadesToDescendants(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	root := mustCreate(t, s, "Root", 0)
	child := mustCreate(t, s, "Child", root.ID)
	grandchild := mustCreate(t, s, "Grandchild", child.ID)

	require.NoError(t, s.Delete(ctx, root.ID))

	for _, id := range []int64{root.ID, child.ID, grandchild.ID} {
		_, err := s.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestFlatTreeDepthAndOrder(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, s, "Animals", 0)
	mustCreate(t, s, "Dogs", a.ID)
	mustCreate(t, s, "Books", 0)

	flat, err := s.FlatTree(ctx)
	require.NoError(t, err)
	require.Len(t, flat, 3)

	assert.Equal(t, "Animals", flat[0].Name)
	assert.Equal(t, 0, flat[0].Depth)
	assert.Equal(t, "Dogs", flat[1].Name)
	assert.Equal(t, 1, flat[1].Depth)
	assert.Equal(t, "Books", flat[2].Name)
	assert.Equal(t, 0, flat[2].Depth)
}

func TestChildren(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	root := mustCreate(t, s, "Root", 0)
	mustCreate(t, s, "Zebra", root.ID)
	mustCreate(t, s, "Apple", root.ID)

	children, err := s.Children(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Apple", children[0].Name)
	assert.Equal(t, "Zebra", children[1].Name)

	roots, err := s.Children(ctx, 0)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, root.ID, roots[0].ID)
}

func TestCacheInvalidationOnMutation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	mustCreate(t, s, "First", 0)

	// Prime the cache.
	_, err := s.FlatTree(ctx)
	require.NoError(t, err)

	// A creation after priming must be visible immediately.
	mustCreate(t, s, "Second", 0)

	flat, err := s.FlatTree(ctx)
	require.NoError(t, err)
	assert.Len(t, flat, 2)
}

func TestWouldCreateCycleDepthCutoff(t *testing.T) {
	// A synthetic ancestry deeper than the cutoff reports a cycle even
	// without a true loop.
	categories := make([]model.Category, 0, maxDepth+10)
	for i := int64(1); i <= maxDepth+10; i++ {
		c := model.Category{ID: i, Name: "N", Slug: "n"}
		if i > 1 {
			c.ParentID = sql.NullInt64{Int64: i - 1, Valid: true}
		}
		categories = append(categories, c)
	}
	snap := buildSnapshot(categories)

	assert.True(t, wouldCreateCycle(snap, maxDepth+20, maxDepth+10))
}
