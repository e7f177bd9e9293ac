// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHomeEmptySite(t *testing.T) {
	env := newTestEnv(t)
	h := NewHomeHandler(env.catalog, env.showcase, env.renderer)

	r := env.withSession(t, httptest.NewRequest(http.MethodGet, "/", nil))
	w := httptest.NewRecorder()
	h.Home(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "No listings yet")
}

func TestHomeShowsRootsAndShowcase(t *testing.T) {
	env := newTestEnv(t)
	h := NewHomeHandler(env.catalog, env.showcase, env.renderer)
	user := env.createUser(t, "seller@example.com", false)
	parent := env.createCategory(t, "Electronics", 0)
	child := env.createCategory(t, "Audio", parent.ID)
	env.createListing(t, user, child.ID, "Tube Amp")

	r := env.withSession(t, httptest.NewRequest(http.MethodGet, "/", nil))
	w := httptest.NewRecorder()
	h.Home(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	// Root category link, but not the child.
	assert.Contains(t, body, `href="/c/electronics"`)
	assert.NotContains(t, body, `href="/c/audio"`)
	// The listing appears in the showcase.
	assert.Contains(t, body, "Tube Amp")
}
