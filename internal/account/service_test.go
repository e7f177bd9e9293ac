// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package account

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferabreu/classifieds-go/internal/cache"
	"github.com/ferabreu/classifieds-go/internal/imaging"
	"github.com/ferabreu/classifieds-go/internal/listing"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/store"
	"github.com/ferabreu/classifieds-go/internal/testutil"
)

func newService(t *testing.T) (*Service, *store.Queries) {
	t.Helper()
	testutil.SilenceLogs(t)

	db := testutil.TestDB(t)
	base := t.TempDir()
	proc := imaging.NewProcessor(
		filepath.Join(base, "uploads"),
		filepath.Join(base, "thumbnails"),
		filepath.Join(base, "temp"),
		224, 224,
	)
	c := cache.NewMemory()
	t.Cleanup(func() { _ = c.Close() })

	coord := listing.NewCoordinator(db, proc, c)
	return NewService(db, coord), store.New(db)
}

func register(t *testing.T, s *Service, email string) model.User {
	t.Helper()
	u, err := s.Register(context.Background(), Input{
		Email:     email,
		FirstName: "Test",
		LastName:  "User",
		Password:  "long-enough-password",
	})
	require.NoError(t, err)
	return u
}

func promote(t *testing.T, s *Service, q *store.Queries, u model.User) model.User {
	t.Helper()
	// Bootstrap an admin directly through the store; Update requires an
	// existing admin actor.
	promoted, err := q.UpdateUser(context.Background(), store.UpdateUserParams{
		ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, IsAdmin: true,
	})
	require.NoError(t, err)
	return promoted
}

func TestRegisterAndAuthenticate(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	u := register(t, s, "alice@example.com")
	assert.False(t, u.IsAdmin)

	got, err := s.Authenticate(ctx, "Alice@Example.com", "long-enough-password")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Authenticate(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Authenticate(ctx, "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, Input{Email: "bad", FirstName: "A", LastName: "B", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = s.Register(ctx, Input{Email: "a@b.com", FirstName: "", LastName: "B", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = s.Register(ctx, Input{Email: "a@b.com", FirstName: strings.Repeat("x", 65), LastName: "B", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrNameTooLong)

	_, err = s.Register(ctx, Input{Email: "a@b.com", FirstName: "A", LastName: "B", Password: "short"})
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	register(t, s, "taken@example.com")
	_, err = s.Register(ctx, Input{Email: "taken@example.com", FirstName: "A", LastName: "B", Password: "long-enough"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestUpdateAuthorization(t *testing.T) {
	s, q := newService(t)
	ctx := context.Background()

	alice := register(t, s, "alice@example.com")
	bob := register(t, s, "bob@example.com")
	admin := promote(t, s, q, register(t, s, "admin@example.com"))

	// A user cannot edit someone else.
	_, err := s.Update(ctx, &alice, bob.ID, Input{Email: bob.Email, FirstName: "X", LastName: "Y"})
	assert.ErrorIs(t, err, ErrForbidden)

	// A user editing themselves cannot self-promote.
	updated, err := s.Update(ctx, &alice, alice.ID, Input{
		Email: alice.Email, FirstName: "Alice", LastName: "User", IsAdmin: true,
	})
	require.NoError(t, err)
	assert.False(t, updated.IsAdmin)

	// An admin can promote.
	updated, err = s.Update(ctx, &admin, bob.ID, Input{
		Email: bob.Email, FirstName: bob.FirstName, LastName: bob.LastName, IsAdmin: true,
	})
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin)
}

func TestLastAdminDemotionBlocked(t *testing.T) {
	s, q := newService(t)
	ctx := context.Background()

	admin := promote(t, s, q, register(t, s, "admin@example.com"))

	_, err := s.Update(ctx, &admin, admin.ID, Input{
		Email: admin.Email, FirstName: admin.FirstName, LastName: admin.LastName, IsAdmin: false,
	})
	assert.ErrorIs(t, err, ErrLastAdmin)

	// With a second admin the demotion goes through.
	promote(t, s, q, register(t, s, "second@example.com"))
	demoted, err := s.Update(ctx, &admin, admin.ID, Input{
		Email: admin.Email, FirstName: admin.FirstName, LastName: admin.LastName, IsAdmin: false,
	})
	require.NoError(t, err)
	assert.False(t, demoted.IsAdmin)
}

func TestLastAdminDeletionBlocked(t *testing.T) {
	s, q := newService(t)
	ctx := context.Background()

	admin := promote(t, s, q, register(t, s, "admin@example.com"))

	assert.ErrorIs(t, s.Delete(ctx, &admin, admin.ID), ErrLastAdmin)

	promote(t, s, q, register(t, s, "second@example.com"))
	assert.NoError(t, s.Delete(ctx, &admin, admin.ID))
}

func TestDeleteRemovesListings(t *testing.T) {
	s, q := newService(t)
	ctx := context.Background()

	admin := promote(t, s, q, register(t, s, "admin@example.com"))
	seller := register(t, s, "seller@example.com")

	cat, err := q.CreateCategory(ctx, store.CreateCategoryParams{Name: "Misc", Slug: "misc"})
	require.NoError(t, err)
	_, err = q.CreateListing(ctx, store.CreateListingParams{
		Title: "Item", Description: "Desc.", Price: 1, UserID: seller.ID, CategoryID: cat.ID,
	})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, &admin, seller.ID))

	ids, err := q.ListListingIDsByUser(ctx, seller.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
	_, err = s.Get(ctx, seller.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChangePassword(t *testing.T) {
	s, q := newService(t)
	ctx := context.Background()

	alice := register(t, s, "alice@example.com")
	admin := promote(t, s, q, register(t, s, "admin@example.com"))

	// Wrong current password.
	err := s.ChangePassword(ctx, &alice, alice.ID, "wrong", "new-long-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Correct current password.
	require.NoError(t, s.ChangePassword(ctx, &alice, alice.ID, "long-enough-password", "new-long-password"))
	_, err = s.Authenticate(ctx, "alice@example.com", "new-long-password")
	assert.NoError(t, err)

	// Admin resets without the current password.
	require.NoError(t, s.ChangePassword(ctx, &admin, alice.ID, "", "admin-set-password"))
	_, err = s.Authenticate(ctx, "alice@example.com", "admin-set-password")
	assert.NoError(t, err)

	// Someone else cannot.
	bob := register(t, s, "bob@example.com")
	err = s.ChangePassword(ctx, &bob, alice.ID, "", "sneaky-password")
	assert.ErrorIs(t, err, ErrForbidden)
}
