// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPICategoryChildren(t *testing.T) {
	env := newTestEnv(t)
	h := NewAPIHandler(env.catalog)
	parent := env.createCategory(t, "Electronics", 0)
	env.createCategory(t, "Audio", parent.ID)
	env.createCategory(t, "Video", parent.ID)

	r := httptest.NewRequest(http.MethodGet, "/api/categories/1/children", nil)
	r = withURLParams(r, map[string]string{"id": strconv.FormatInt(parent.ID, 10)})
	w := httptest.NewRecorder()
	h.CategoryChildren(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var payload struct {
		Categories []struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Len(t, payload.Categories, 2)
	assert.Equal(t, "audio", payload.Categories[0].Slug)
	assert.Equal(t, "video", payload.Categories[1].Slug)
}

func TestAPICategoryChildrenRootsAndEmpty(t *testing.T) {
	env := newTestEnv(t)
	h := NewAPIHandler(env.catalog)
	leaf := env.createCategory(t, "Electronics", 0)

	// id zero returns the roots.
	r := httptest.NewRequest(http.MethodGet, "/api/categories/0/children", nil)
	r = withURLParams(r, map[string]string{"id": "0"})
	w := httptest.NewRecorder()
	h.CategoryChildren(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "electronics")

	// A leaf returns an empty array, not null.
	r = httptest.NewRequest(http.MethodGet, "/api/categories/1/children", nil)
	r = withURLParams(r, map[string]string{"id": strconv.FormatInt(leaf.ID, 10)})
	w = httptest.NewRecorder()
	h.CategoryChildren(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"categories":[]`)
}

func TestAPICategoryChildrenNotFound(t *testing.T) {
	env := newTestEnv(t)
	h := NewAPIHandler(env.catalog)

	r := httptest.NewRequest(http.MethodGet, "/api/categories/999/children", nil)
	r = withURLParams(r, map[string]string{"id": "999"})
	w := httptest.NewRecorder()
	h.CategoryChildren(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAPICategoryBreadcrumb(t *testing.T) {
	env := newTestEnv(t)
	h := NewAPIHandler(env.catalog)
	parent := env.createCategory(t, "Electronics", 0)
	child := env.createCategory(t, "Audio", parent.ID)

	r := httptest.NewRequest(http.MethodGet, "/api/categories/2/breadcrumb", nil)
	r = withURLParams(r, map[string]string{"id": strconv.FormatInt(child.ID, 10)})
	w := httptest.NewRecorder()
	h.CategoryBreadcrumb(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Breadcrumb []struct {
			Slug string `json:"slug"`
		} `json:"breadcrumb"`
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Len(t, payload.Breadcrumb, 2)
	assert.Equal(t, "electronics", payload.Breadcrumb[0].Slug)
	assert.Equal(t, "audio", payload.Breadcrumb[1].Slug)
	assert.Equal(t, "electronics/audio", payload.Path)
}

func TestAPICategoryTree(t *testing.T) {
	env := newTestEnv(t)
	h := NewAPIHandler(env.catalog)
	parent := env.createCategory(t, "Electronics", 0)
	env.createCategory(t, "Audio", parent.ID)

	r := httptest.NewRequest(http.MethodGet, "/api/categories", nil)
	w := httptest.NewRecorder()
	h.CategoryTree(w, r)

	require.Equal(t, http.StatusOK, w.Code)

	var payload struct {
		Categories []struct {
			Slug  string `json:"slug"`
			Depth int    `json:"depth"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Len(t, payload.Categories, 2)
	assert.Equal(t, 0, payload.Categories[0].Depth)
	assert.Equal(t, 1, payload.Categories[1].Depth)
}
