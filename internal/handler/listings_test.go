// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferabreu/classifieds-go/internal/listing"
	"github.com/ferabreu/classifieds-go/internal/store"
)

func listListingsAll() store.ListListingsParams {
	return store.ListListingsParams{Limit: 100}
}

func newListingHandler(env *testEnv) *ListingHandler {
	return NewListingHandler(env.db, env.listings, env.catalog, env.renderer, env.sm)
}

// multipartForm builds a multipart request body from plain fields.
func multipartForm(t *testing.T, target string, fields map[string]string) *http.Request {
	t.Helper()

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, target, body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func TestListingIndexShowsListings(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)
	user := env.createUser(t, "seller@example.com", false)
	category := env.createCategory(t, "Electronics", 0)
	env.createListing(t, user, category.ID, "Old Amplifier")

	r := env.withSession(t, httptest.NewRequest(http.MethodGet, "/listings", nil))
	w := httptest.NewRecorder()
	h.Index(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Old Amplifier")
}

func TestListingIndexCategoryFilterIncludesSubtree(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)
	user := env.createUser(t, "seller@example.com", false)
	parent := env.createCategory(t, "Electronics", 0)
	child := env.createCategory(t, "Audio", parent.ID)
	other := env.createCategory(t, "Furniture", 0)
	env.createListing(t, user, child.ID, "Tube Amp")
	env.createListing(t, user, other.ID, "Oak Table")

	r := env.withSession(t, httptest.NewRequest(http.MethodGet,
		"/listings?category="+strconv.FormatInt(parent.ID, 10), nil))
	w := httptest.NewRecorder()
	h.Index(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Tube Amp")
	assert.NotContains(t, w.Body.String(), "Oak Table")
}

func TestListingIndexSearch(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)
	user := env.createUser(t, "seller@example.com", false)
	category := env.createCategory(t, "Electronics", 0)
	env.createListing(t, user, category.ID, "Vintage Radio")
	env.createListing(t, user, category.ID, "New Television")

	r := env.withSession(t, httptest.NewRequest(http.MethodGet, "/listings?q=radio", nil))
	w := httptest.NewRecorder()
	h.Index(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Vintage Radio")
	assert.NotContains(t, w.Body.String(), "New Television")
}

func TestBrowseCategoryResolvesNestedPath(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)
	user := env.createUser(t, "seller@example.com", false)
	parent := env.createCategory(t, "Electronics", 0)
	child := env.createCategory(t, "Audio", parent.ID)
	env.createListing(t, user, child.ID, "Tube Amp")

	r := env.withSession(t, httptest.NewRequest(http.MethodGet, "/c/electronics/audio", nil))
	r = withURLParams(r, map[string]string{"*": "electronics/audio"})
	w := httptest.NewRecorder()
	h.BrowseCategory(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Audio")
	assert.Contains(t, w.Body.String(), "Tube Amp")
}

func TestBrowseCategoryUnknownPath(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)

	r := env.withSession(t, httptest.NewRequest(http.MethodGet, "/c/nope", nil))
	r = withURLParams(r, map[string]string{"*": "nope"})
	w := httptest.NewRecorder()
	h.BrowseCategory(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListingShow(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)
	user := env.createUser(t, "seller@example.com", false)
	category := env.createCategory(t, "Electronics", 0)
	l := env.createListing(t, user, category.ID, "Old Amplifier")

	r := env.withSession(t, httptest.NewRequest(http.MethodGet, "/listings/1", nil))
	r = withURLParams(r, map[string]string{"id": strconv.FormatInt(l.ID, 10)})
	w := httptest.NewRecorder()
	h.Show(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Old Amplifier")
	assert.Contains(t, body, "Test User")
	assert.Contains(t, body, "Electronics")
	// Anonymous visitors get no edit controls.
	assert.NotContains(t, body, "/edit")
}

func TestListingShowOwnerSeesControls(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)
	user := env.createUser(t, "seller@example.com", false)
	category := env.createCategory(t, "Electronics", 0)
	l := env.createListing(t, user, category.ID, "Old Amplifier")

	r := env.asUser(t, httptest.NewRequest(http.MethodGet, "/listings/1", nil), user)
	r = withURLParams(r, map[string]string{"id": strconv.FormatInt(l.ID, 10)})
	w := httptest.NewRecorder()
	h.Show(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/delete")
}

func TestListingShowNotFound(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)

	r := env.withSession(t, httptest.NewRequest(http.MethodGet, "/listings/999", nil))
	r = withURLParams(r, map[string]string{"id": "999"})
	w := httptest.NewRecorder()
	h.Show(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListingCreate(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)
	user := env.createUser(t, "seller@example.com", false)
	category := env.createCategory(t, "Electronics", 0)

	r := multipartForm(t, "/listings/new", map[string]string{
		"title":       "Reel to Reel Deck",
		"description": "Works fine, includes two reels.",
		"price":       "150.00",
		"category_id": strconv.FormatInt(category.ID, 10),
	})
	r = env.asUser(t, r, user)
	w := httptest.NewRecorder()
	h.Create(w, r)

	require.Equal(t, http.StatusSeeOther, w.Code)

	listings, err := env.queries.ListListings(r.Context(), listListingsAll())
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "Reel to Reel Deck", listings[0].Title)
	assert.Equal(t, user.ID, listings[0].UserID)
}

func TestListingCreateValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)
	user := env.createUser(t, "seller@example.com", false)
	category := env.createCategory(t, "Electronics", 0)

	r := multipartForm(t, "/listings/new", map[string]string{
		"title":       "",
		"description": "too short",
		"price":       "-5",
		"category_id": strconv.FormatInt(category.ID, 10),
	})
	r = env.asUser(t, r, user)
	w := httptest.NewRecorder()
	h.Create(w, r)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "title")
	assert.Contains(t, body, "price")
}

func TestListingEditForbiddenForStranger(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)
	owner := env.createUser(t, "owner@example.com", false)
	stranger := env.createUser(t, "stranger@example.com", false)
	category := env.createCategory(t, "Electronics", 0)
	l := env.createListing(t, owner, category.ID, "Old Amplifier")

	r := env.asUser(t, httptest.NewRequest(http.MethodGet, "/listings/1/edit", nil), stranger)
	r = withURLParams(r, map[string]string{"id": strconv.FormatInt(l.ID, 10)})
	w := httptest.NewRecorder()
	h.EditForm(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListingEditUpdatesFields(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)
	owner := env.createUser(t, "owner@example.com", false)
	category := env.createCategory(t, "Electronics", 0)
	l := env.createListing(t, owner, category.ID, "Old Amplifier")

	r := multipartForm(t, "/listings/1/edit", map[string]string{
		"title":       "Restored Amplifier",
		"description": "Fully serviced and recapped last month.",
		"price":       "200.00",
		"category_id": strconv.FormatInt(category.ID, 10),
	})
	r = env.asUser(t, r, owner)
	r = withURLParams(r, map[string]string{"id": strconv.FormatInt(l.ID, 10)})
	w := httptest.NewRecorder()
	h.Edit(w, r)

	require.Equal(t, http.StatusSeeOther, w.Code)

	updated, err := env.listings.Get(r.Context(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Restored Amplifier", updated.Title)
	assert.Equal(t, 200.0, updated.Price)
}

func TestListingDelete(t *testing.T) {
	env := newTestEnv(t)
	h := newListingHandler(env)
	owner := env.createUser(t, "owner@example.com", false)
	stranger := env.createUser(t, "stranger@example.com", false)
	category := env.createCategory(t, "Electronics", 0)
	l := env.createListing(t, owner, category.ID, "Old Amplifier")

	// A stranger cannot delete it.
	r := env.asUser(t, httptest.NewRequest(http.MethodPost, "/listings/1/delete", nil), stranger)
	r = withURLParams(r, map[string]string{"id": strconv.FormatInt(l.ID, 10)})
	w := httptest.NewRecorder()
	h.Delete(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The owner can.
	r = env.asUser(t, httptest.NewRequest(http.MethodPost, "/listings/1/delete", nil), owner)
	r = withURLParams(r, map[string]string{"id": strconv.FormatInt(l.ID, 10)})
	w = httptest.NewRecorder()
	h.Delete(w, r)
	require.Equal(t, http.StatusSeeOther, w.Code)

	_, err := env.listings.Get(context.Background(), l.ID)
	assert.ErrorIs(t, err, listing.ErrNotFound)
}
