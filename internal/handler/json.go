// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ferabreu/classifieds-go/internal/catalog"
	"github.com/ferabreu/classifieds-go/internal/model"
)

// APIHandler serves the read-only JSON endpoints used by dynamic
// category pickers.
type APIHandler struct {
	catalog *catalog.Service
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(cat *catalog.Service) *APIHandler {
	return &APIHandler{catalog: cat}
}

// CategoryTree returns all categories depth-first with their depth.
func (h *APIHandler) CategoryTree(w http.ResponseWriter, r *http.Request) {
	flat, err := h.catalog.FlatTree(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": flat})
}

// CategoryChildren returns the direct children of a category. An id of
// zero returns the roots.
func (h *APIHandler) CategoryChildren(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")

	if id != 0 {
		if _, err := h.catalog.Get(r.Context(), id); err != nil {
			h.writeCatalogError(w, err)
			return
		}
	}

	children, err := h.catalog.Children(r.Context(), id)
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}
	if children == nil {
		children = []model.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": children})
}

// CategoryBreadcrumb returns the root-to-category chain together with
// its slug path.
func (h *APIHandler) CategoryBreadcrumb(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	if id == 0 {
		writeJSONError(w, http.StatusNotFound, "category not found")
		return
	}

	chain, err := h.catalog.Breadcrumb(r.Context(), id)
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}
	path, err := h.catalog.Path(r.Context(), id)
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"breadcrumb": chain,
		"path":       path,
	})
}

func (h *APIHandler) writeCatalogError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "category not found")
		return
	}
	slog.Error("category api failed", "error", err)
	writeJSONError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encoding json response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
