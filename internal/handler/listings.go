// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package handler

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"

	"github.com/ferabreu/classifieds-go/internal/catalog"
	"github.com/ferabreu/classifieds-go/internal/listing"
	"github.com/ferabreu/classifieds-go/internal/middleware"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/render"
	"github.com/ferabreu/classifieds-go/internal/store"
)

// maxUploadBytes caps the multipart memory of a listing form.
const maxUploadBytes = 32 << 20

// ListingHandler serves listing browsing and management.
type ListingHandler struct {
	listings       *listing.Coordinator
	catalog        *catalog.Service
	queries        *store.Queries
	renderer       *render.Renderer
	sessionManager *scs.SessionManager
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(db *sql.DB, listings *listing.Coordinator, cat *catalog.Service, renderer *render.Renderer, sm *scs.SessionManager) *ListingHandler {
	return &ListingHandler{
		listings:       listings,
		catalog:        cat,
		queries:        store.New(db),
		renderer:       renderer,
		sessionManager: sm,
	}
}

type listingIndexData struct {
	Category        *model.Category
	Children        []model.Category
	ChildPathPrefix string
	Listings        []model.Listing
	Query           string
	Page            int
	TotalPages      int
}

// Index renders the flat listing index, optionally filtered by
// ?category= (including its subtree) and a ?q= search term.
func (h *ListingHandler) Index(w http.ResponseWriter, r *http.Request) {
	var category *model.Category
	var categoryIDs []int64

	if raw := r.URL.Query().Get("category"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			http.NotFound(w, r)
			return
		}
		c, err := h.catalog.Get(r.Context(), id)
		if errors.Is(err, catalog.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			h.serverError(w, "loading category", err)
			return
		}
		category = &c
		if categoryIDs, err = h.catalog.DescendantIDs(r.Context(), id); err != nil {
			h.serverError(w, "collecting category subtree", err)
			return
		}
	}

	h.renderIndex(w, r, category, categoryIDs, nil, "")
}

// BrowseCategory resolves a /c/{slug-path} URL and renders the category
// page: subcategory links plus the listings of the whole subtree.
func (h *ListingHandler) BrowseCategory(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(chi.URLParam(r, "*"), "/")

	category, err := h.catalog.ResolvePath(r.Context(), path)
	if errors.Is(err, catalog.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, "resolving category path", err)
		return
	}

	ids, err := h.catalog.DescendantIDs(r.Context(), category.ID)
	if err != nil {
		h.serverError(w, "collecting category subtree", err)
		return
	}

	crumbs, err := h.breadcrumbsFor(r, category.ID, "")
	if err != nil {
		h.serverError(w, "building breadcrumbs", err)
		return
	}

	h.renderIndex(w, r, &category, ids, crumbs, path+"/")
}

func (h *ListingHandler) renderIndex(w http.ResponseWriter, r *http.Request, category *model.Category, categoryIDs []int64, crumbs []render.Breadcrumb, childPrefix string) {
	page := pageParam(r)
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	params := store.ListListingsParams{
		CategoryIDs: categoryIDs,
		Search:      query,
		Limit:       defaultPageSize,
		Offset:      int64((page - 1) * defaultPageSize),
	}

	listings, err := h.queries.ListListings(r.Context(), params)
	if err != nil {
		h.serverError(w, "listing listings", err)
		return
	}
	if err := attachImages(r.Context(), h.queries, listings); err != nil {
		h.serverError(w, "loading listing images", err)
		return
	}

	count, err := h.queries.CountListings(r.Context(), params)
	if err != nil {
		h.serverError(w, "counting listings", err)
		return
	}

	var children []model.Category
	title := "All listings"
	if category != nil {
		title = category.Name
		if children, err = h.catalog.Children(r.Context(), category.ID); err != nil {
			h.serverError(w, "loading subcategories", err)
			return
		}
	}

	renderPage(w, r, h.renderer, "listings/index", render.TemplateData{
		Title:       title,
		Breadcrumbs: crumbs,
		Data: listingIndexData{
			Category:        category,
			Children:        children,
			ChildPathPrefix: childPrefix,
			Listings:        listings,
			Query:           query,
			Page:            page,
			TotalPages:      totalPages(count, defaultPageSize),
		},
	})
}

type listingShowData struct {
	Listing   model.Listing
	CanManage bool
}

// Show renders a single listing with its gallery and category trail.
func (h *ListingHandler) Show(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	if id == 0 {
		http.NotFound(w, r)
		return
	}

	l, err := h.listings.Get(r.Context(), id)
	if errors.Is(err, listing.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, "loading listing", err)
		return
	}

	if owner, err := h.queries.GetUserByID(r.Context(), l.UserID); err == nil {
		l.OwnerName = owner.FullName()
	}

	crumbs, err := h.breadcrumbsFor(r, l.CategoryID, l.Title)
	if err != nil {
		slog.Warn("building listing breadcrumbs", "listing_id", id, "error", err)
	}

	user := middleware.GetUser(r)
	renderPage(w, r, h.renderer, "listings/show", render.TemplateData{
		Title:       l.Title,
		Breadcrumbs: crumbs,
		Data: listingShowData{
			Listing:   l,
			CanManage: user != nil && user.CanManage(&l),
		},
	})
}

type listingFormData struct {
	Listing    model.Listing
	Categories []model.Category
	Errors     map[string]error
}

// NewForm renders the empty posting form.
func (h *ListingHandler) NewForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, model.Listing{}, nil)
}

// Create handles the posting form submission.
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	in, uploads, _, err := parseListingForm(r)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	created, err := h.listings.Create(r.Context(), middleware.GetUser(r), in, uploads)
	if err != nil {
		var verr *listing.ValidationError
		if errors.As(err, &verr) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			h.renderForm(w, r, draftListing(0, in), verr.Fields)
			return
		}
		h.serverError(w, "creating listing", err)
		return
	}

	h.renderer.SetFlash(r, "Listing posted.", "success")
	http.Redirect(w, r, fmt.Sprintf("/listings/%d", created.ID), http.StatusSeeOther)
}

// EditForm renders the edit form, owner or admin only.
func (h *ListingHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	l, ok := h.manageable(w, r)
	if !ok {
		return
	}
	h.renderForm(w, r, l, nil)
}

// Edit handles the edit form submission.
func (h *ListingHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	if id == 0 {
		http.NotFound(w, r)
		return
	}

	in, uploads, removals, err := parseListingForm(r)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	updated, err := h.listings.Update(r.Context(), middleware.GetUser(r), id, in, uploads, removals)
	switch {
	case errors.Is(err, listing.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, listing.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	case err != nil:
		var verr *listing.ValidationError
		if errors.As(err, &verr) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			h.renderForm(w, r, draftListing(id, in), verr.Fields)
			return
		}
		h.serverError(w, "updating listing", err)
		return
	}

	h.renderer.SetFlash(r, "Listing updated.", "success")
	http.Redirect(w, r, fmt.Sprintf("/listings/%d", updated.ID), http.StatusSeeOther)
}

// Delete handles the delete button, owner or admin only.
func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	if id == 0 {
		http.NotFound(w, r)
		return
	}

	err := h.listings.Delete(r.Context(), middleware.GetUser(r), id)
	switch {
	case errors.Is(err, listing.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, listing.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case err != nil:
		h.serverError(w, "deleting listing", err)
	default:
		h.renderer.SetFlash(r, "Listing deleted.", "success")
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (h *ListingHandler) renderForm(w http.ResponseWriter, r *http.Request, l model.Listing, fieldErrors map[string]error) {
	categories, err := h.catalog.FlatTree(r.Context())
	if err != nil {
		h.serverError(w, "loading category tree", err)
		return
	}

	title := "Post a listing"
	if l.ID != 0 {
		title = "Edit listing"
	}
	renderPage(w, r, h.renderer, "listings/form", render.TemplateData{
		Title: title,
		Data: listingFormData{
			Listing:    l,
			Categories: categories,
			Errors:     fieldErrors,
		},
	})
}

// manageable loads a listing and checks the current user may manage it,
// writing the error response itself when not.
func (h *ListingHandler) manageable(w http.ResponseWriter, r *http.Request) (model.Listing, bool) {
	id := idParam(r, "id")
	if id == 0 {
		http.NotFound(w, r)
		return model.Listing{}, false
	}

	l, err := h.listings.Get(r.Context(), id)
	if errors.Is(err, listing.ErrNotFound) {
		http.NotFound(w, r)
		return model.Listing{}, false
	}
	if err != nil {
		h.serverError(w, "loading listing", err)
		return model.Listing{}, false
	}

	user := middleware.GetUser(r)
	if user == nil || !user.CanManage(&l) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return model.Listing{}, false
	}
	return l, true
}

// breadcrumbsFor builds the Home-to-category trail, with an optional
// unlinked final label for listing pages.
func (h *ListingHandler) breadcrumbsFor(r *http.Request, categoryID int64, final string) ([]render.Breadcrumb, error) {
	chain, err := h.catalog.Breadcrumb(r.Context(), categoryID)
	if err != nil {
		return nil, err
	}

	crumbs := []render.Breadcrumb{{Label: "Home", URL: "/"}}
	path := "/c"
	for _, c := range chain {
		path += "/" + c.Slug
		crumbs = append(crumbs, render.Breadcrumb{Label: c.Name, URL: path})
	}
	if final != "" {
		crumbs = append(crumbs, render.Breadcrumb{Label: final})
	}
	return crumbs, nil
}

// parseListingForm extracts the listing fields, uploads, and image
// removal IDs from a multipart form. The upload readers stay open until
// net/http tears the multipart form down after the handler returns.
func parseListingForm(r *http.Request) (listing.Input, []listing.Upload, []int64, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return listing.Input{}, nil, nil, err
	}

	price, _ := strconv.ParseFloat(r.PostFormValue("price"), 64)
	categoryID, _ := strconv.ParseInt(r.PostFormValue("category_id"), 10, 64)
	in := listing.Input{
		Title:       r.PostFormValue("title"),
		Description: r.PostFormValue("description"),
		Price:       price,
		CategoryID:  categoryID,
	}

	var uploads []listing.Upload
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["images"] {
			if header.Filename == "" || header.Size == 0 {
				continue
			}
			file, err := header.Open()
			if err != nil {
				return listing.Input{}, nil, nil, err
			}
			uploads = append(uploads, listing.Upload{Reader: file, Filename: header.Filename})
		}
	}

	var removals []int64
	for _, raw := range r.PostForm["remove_images"] {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			removals = append(removals, id)
		}
	}

	return in, uploads, removals, nil
}

// draftListing rebuilds a listing value from form input so a failed
// validation redisplays what the user typed.
func draftListing(id int64, in listing.Input) model.Listing {
	return model.Listing{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		CategoryID:  in.CategoryID,
	}
}

func (h *ListingHandler) serverError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
