// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ferabreu/classifieds-go/internal/middleware"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/render"
	"github.com/ferabreu/classifieds-go/internal/store"
)

// defaultPageSize is the number of listings shown per index page.
const defaultPageSize = 20

// idParam extracts a positive int64 URL parameter, or 0 when absent or
// malformed.
func idParam(r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0
	}
	return id
}

// pageParam extracts the ?page= query parameter, defaulting to 1.
func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// totalPages converts a row count into a page count, minimum 1.
func totalPages(count int64, pageSize int) int {
	pages := int((count + int64(pageSize) - 1) / int64(pageSize))
	if pages < 1 {
		pages = 1
	}
	return pages
}

// renderPage renders a template with the context user attached, logging
// and answering 500 on failure.
func renderPage(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, name string, data render.TemplateData) {
	data.User = middleware.GetUser(r)
	if err := renderer.Render(w, r, name, data); err != nil {
		slog.Error("rendering page", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// attachImages populates the Images field of each listing in one query,
// so index pages can show thumbnails without a query per listing.
func attachImages(ctx context.Context, queries *store.Queries, listings []model.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	ids := make([]int64, len(listings))
	index := make(map[int64]int, len(listings))
	for i, l := range listings {
		ids[i] = l.ID
		index[l.ID] = i
	}

	images, err := queries.ListImagesByListings(ctx, ids)
	if err != nil {
		return err
	}
	for _, img := range images {
		i := index[img.ListingID]
		listings[i].Images = append(listings[i].Images, img)
	}
	return nil
}
