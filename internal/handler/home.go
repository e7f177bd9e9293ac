// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package handler

import (
	"log/slog"
	"net/http"

	"github.com/ferabreu/classifieds-go/internal/catalog"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/render"
	"github.com/ferabreu/classifieds-go/internal/showcase"
)

// HomeHandler serves the index page.
type HomeHandler struct {
	catalog  *catalog.Service
	showcase *showcase.Service
	renderer *render.Renderer
}

// NewHomeHandler creates a HomeHandler.
func NewHomeHandler(cat *catalog.Service, sc *showcase.Service, renderer *render.Renderer) *HomeHandler {
	return &HomeHandler{
		catalog:  cat,
		showcase: sc,
		renderer: renderer,
	}
}

type homeData struct {
	Roots    []model.Category
	Sections []showcase.Section
}

// Home renders the index page: the category roots plus the featured
// category sections.
func (h *HomeHandler) Home(w http.ResponseWriter, r *http.Request) {
	roots, err := h.catalog.Children(r.Context(), 0)
	if err != nil {
		slog.Error("loading category roots", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	sections, err := h.showcase.Sections(r.Context())
	if err != nil {
		// The index still works without the showcase.
		slog.Error("building showcase", "error", err)
		sections = nil
	}

	renderPage(w, r, h.renderer, "home/index", render.TemplateData{
		Title: "Classifieds",
		Data:  homeData{Roots: roots, Sections: sections},
	})
}
