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

	"github.com/alexedwards/scs/v2"

	"github.com/ferabreu/classifieds-go/internal/account"
	"github.com/ferabreu/classifieds-go/internal/catalog"
	"github.com/ferabreu/classifieds-go/internal/listing"
	"github.com/ferabreu/classifieds-go/internal/middleware"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/render"
	"github.com/ferabreu/classifieds-go/internal/store"
)

// AdminHandler serves the admin area: dashboard, category management,
// listing moderation, user management, and the event log.
type AdminHandler struct {
	accounts       *account.Service
	catalog        *catalog.Service
	listings       *listing.Coordinator
	queries        *store.Queries
	renderer       *render.Renderer
	sessionManager *scs.SessionManager
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *sql.DB, accounts *account.Service, cat *catalog.Service, listings *listing.Coordinator, renderer *render.Renderer, sm *scs.SessionManager) *AdminHandler {
	return &AdminHandler{
		accounts:       accounts,
		catalog:        cat,
		listings:       listings,
		queries:        store.New(db),
		renderer:       renderer,
		sessionManager: sm,
	}
}

// Dashboard renders the admin landing page with the most recent events.
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	events, err := h.queries.ListRecentEvents(r.Context(), 10)
	if err != nil {
		h.serverError(w, "loading recent events", err)
		return
	}
	renderPage(w, r, h.renderer, "admin/dashboard", render.TemplateData{
		Title: "Admin",
		Data:  struct{ Events []model.Event }{events},
	})
}

// Events renders the full event log page.
func (h *AdminHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.queries.ListRecentEvents(r.Context(), 200)
	if err != nil {
		h.serverError(w, "loading events", err)
		return
	}
	renderPage(w, r, h.renderer, "admin/events", render.TemplateData{
		Title: "Event log",
		Data:  struct{ Events []model.Event }{events},
	})
}

type categoriesData struct {
	Categories []model.Category
	Error      string
}

// Categories renders the indented category table with listing counts.
func (h *AdminHandler) Categories(w http.ResponseWriter, r *http.Request) {
	h.renderCategories(w, r, "")
}

func (h *AdminHandler) renderCategories(w http.ResponseWriter, r *http.Request, errMsg string) {
	flat, err := h.catalog.FlatTree(r.Context())
	if err != nil {
		h.serverError(w, "loading category tree", err)
		return
	}

	counts, err := h.queries.ListCategoryListingCounts(r.Context(), int64(len(flat))+1)
	if err != nil {
		h.serverError(w, "loading category listing counts", err)
		return
	}
	countByID := make(map[int64]int64, len(counts))
	for _, c := range counts {
		countByID[c.CategoryID] = c.ListingCount
	}
	for i := range flat {
		flat[i].ListingCount = countByID[flat[i].ID]
	}

	renderPage(w, r, h.renderer, "admin/categories", render.TemplateData{
		Title: "Categories",
		Data:  categoriesData{Categories: flat, Error: errMsg},
	})
}

type categoryFormData struct {
	Category model.Category
	Parents  []model.Category
	Error    string
}

// CategoryNewForm renders the empty category form.
func (h *AdminHandler) CategoryNewForm(w http.ResponseWriter, r *http.Request) {
	h.renderCategoryForm(w, r, model.Category{}, "")
}

// CategoryCreate handles the new-category form.
func (h *AdminHandler) CategoryCreate(w http.ResponseWriter, r *http.Request) {
	in, err := parseCategoryForm(r)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if _, err := h.catalog.Create(r.Context(), in); err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		h.renderCategoryForm(w, r, draftCategory(0, in), catalogErrorMessage(err))
		return
	}

	h.renderer.SetFlash(r, "Category created.", "success")
	http.Redirect(w, r, "/admin/categories", http.StatusSeeOther)
}

// CategoryEditForm renders the edit form for an existing category.
func (h *AdminHandler) CategoryEditForm(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	category, err := h.catalog.Get(r.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, "loading category", err)
		return
	}
	h.renderCategoryForm(w, r, category, "")
}

// CategoryUpdate handles the edit-category form.
func (h *AdminHandler) CategoryUpdate(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	if id == 0 {
		http.NotFound(w, r)
		return
	}

	in, err := parseCategoryForm(r)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if _, err := h.catalog.Update(r.Context(), id, in); err != nil {
		if errors.Is(err, catalog.ErrNotFound) && !in.ParentID.Valid {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		h.renderCategoryForm(w, r, draftCategory(id, in), catalogErrorMessage(err))
		return
	}

	h.renderer.SetFlash(r, "Category updated.", "success")
	http.Redirect(w, r, "/admin/categories", http.StatusSeeOther)
}

// CategoryDelete handles the delete button on the category table.
func (h *AdminHandler) CategoryDelete(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	if id == 0 {
		http.NotFound(w, r)
		return
	}

	err := h.catalog.Delete(r.Context(), id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, catalog.ErrHasListings):
		h.renderCategories(w, r, catalogErrorMessage(err))
	case err != nil:
		h.serverError(w, "deleting category", err)
	default:
		h.renderer.SetFlash(r, "Category deleted.", "success")
		http.Redirect(w, r, "/admin/categories", http.StatusSeeOther)
	}
}

// renderCategoryForm renders the category form. For an existing
// category the parent dropdown excludes its own subtree, keeping the
// obvious cycles out of the UI; the service re-checks on save.
func (h *AdminHandler) renderCategoryForm(w http.ResponseWriter, r *http.Request, category model.Category, errMsg string) {
	flat, err := h.catalog.FlatTree(r.Context())
	if err != nil {
		h.serverError(w, "loading category tree", err)
		return
	}

	parents := flat
	if category.ID != 0 {
		subtree := map[int64]bool{}
		if ids, err := h.catalog.DescendantIDs(r.Context(), category.ID); err == nil {
			for _, id := range ids {
				subtree[id] = true
			}
		}
		parents = make([]model.Category, 0, len(flat))
		for _, c := range flat {
			if !subtree[c.ID] {
				parents = append(parents, c)
			}
		}
	}

	title := "New category"
	if category.ID != 0 {
		title = "Edit category"
	}
	renderPage(w, r, h.renderer, "admin/category_form", render.TemplateData{
		Title: title,
		Data: categoryFormData{
			Category: category,
			Parents:  parents,
			Error:    errMsg,
		},
	})
}

func parseCategoryForm(r *http.Request) (catalog.Input, error) {
	if err := r.ParseForm(); err != nil {
		return catalog.Input{}, err
	}

	var parentID sql.NullInt64
	if raw := r.PostFormValue("parent_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			return catalog.Input{}, fmt.Errorf("invalid parent id %q", raw)
		}
		parentID = sql.NullInt64{Int64: id, Valid: true}
	}

	position, _ := strconv.ParseInt(r.PostFormValue("position"), 10, 64)
	return catalog.Input{
		Name:     r.PostFormValue("name"),
		Slug:     r.PostFormValue("slug"),
		ParentID: parentID,
		Position: position,
	}, nil
}

func draftCategory(id int64, in catalog.Input) model.Category {
	return model.Category{
		ID:       id,
		Name:     in.Name,
		Slug:     in.Slug,
		ParentID: in.ParentID,
		Position: in.Position,
	}
}

// catalogErrorMessage maps catalog errors to user-facing text.
func catalogErrorMessage(err error) string {
	for _, known := range []error{
		catalog.ErrCycle,
		catalog.ErrHasListings,
		catalog.ErrEmptySlug,
		catalog.ErrReservedSlug,
		catalog.ErrDuplicateName,
		catalog.ErrDuplicateSlug,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	if errors.Is(err, catalog.ErrNotFound) {
		return "parent category not found"
	}
	return "Something went wrong, please try again."
}

type adminListingsData struct {
	Listings   []model.Listing
	Query      string
	Page       int
	TotalPages int
}

// Listings renders the listing moderation table.
func (h *AdminHandler) Listings(w http.ResponseWriter, r *http.Request) {
	page := pageParam(r)
	params := store.ListListingsParams{
		Search: r.URL.Query().Get("q"),
		Limit:  defaultPageSize,
		Offset: int64(page-1) * defaultPageSize,
	}

	listings, err := h.queries.ListListings(r.Context(), params)
	if err != nil {
		h.serverError(w, "listing listings", err)
		return
	}
	count, err := h.queries.CountListings(r.Context(), params)
	if err != nil {
		h.serverError(w, "counting listings", err)
		return
	}

	users, err := h.queries.ListUsers(r.Context())
	if err != nil {
		h.serverError(w, "listing users", err)
		return
	}
	nameByID := make(map[int64]string, len(users))
	for _, u := range users {
		nameByID[u.ID] = u.FullName()
	}
	for i := range listings {
		listings[i].OwnerName = nameByID[listings[i].UserID]
	}

	renderPage(w, r, h.renderer, "admin/listings", render.TemplateData{
		Title: "Listings",
		Data: adminListingsData{
			Listings:   listings,
			Query:      params.Search,
			Page:       page,
			TotalPages: totalPages(count, defaultPageSize),
		},
	})
}

// ListingsBulkDelete removes every listing checked in the moderation
// table, images included.
func (h *AdminHandler) ListingsBulkDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	var ids []int64
	for _, raw := range r.PostForm["listing_ids"] {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		http.Redirect(w, r, "/admin/listings", http.StatusSeeOther)
		return
	}

	deleted, err := h.listings.BulkDelete(r.Context(), middleware.GetUser(r), ids)
	if err != nil {
		h.serverError(w, "bulk deleting listings", err)
		return
	}

	h.renderer.SetFlash(r, fmt.Sprintf("Deleted %d listings.", deleted), "success")
	http.Redirect(w, r, "/admin/listings", http.StatusSeeOther)
}

type usersData struct {
	Users []model.User
	Error string
}

// Users renders the admin user table.
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	h.renderUsers(w, r, "")
}

func (h *AdminHandler) renderUsers(w http.ResponseWriter, r *http.Request, errMsg string) {
	users, err := h.accounts.List(r.Context())
	if err != nil {
		h.serverError(w, "listing users", err)
		return
	}
	renderPage(w, r, h.renderer, "admin/users", render.TemplateData{
		Title: "Users",
		Data:  usersData{Users: users, Error: errMsg},
	})
}

type userFormData struct {
	Account model.User
	Error   string
}

// UserEditForm renders the admin edit form for a user.
func (h *AdminHandler) UserEditForm(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Get(r.Context(), idParam(r, "id"))
	if errors.Is(err, account.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, "loading user", err)
		return
	}
	h.renderUserForm(w, r, user, "")
}

// UserUpdate handles the admin user form, admin flag included.
func (h *AdminHandler) UserUpdate(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	if id == 0 {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	in := account.Input{
		Email:     r.PostFormValue("email"),
		FirstName: r.PostFormValue("first_name"),
		LastName:  r.PostFormValue("last_name"),
		IsAdmin:   r.PostFormValue("is_admin") != "",
	}

	if _, err := h.accounts.Update(r.Context(), middleware.GetUser(r), id, in); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		draft := model.User{ID: id, Email: in.Email, FirstName: in.FirstName, LastName: in.LastName, IsAdmin: in.IsAdmin}
		w.WriteHeader(http.StatusUnprocessableEntity)
		h.renderUserForm(w, r, draft, accountErrorMessage(err))
		return
	}

	h.renderer.SetFlash(r, "User updated.", "success")
	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

// UserSetPassword handles the admin password reset form.
func (h *AdminHandler) UserSetPassword(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	if id == 0 {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	err := h.accounts.ChangePassword(r.Context(), middleware.GetUser(r), id, "", r.PostFormValue("new_password"))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		user, getErr := h.accounts.Get(r.Context(), id)
		if getErr != nil {
			h.serverError(w, "loading user", getErr)
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		h.renderUserForm(w, r, user, accountErrorMessage(err))
		return
	}

	h.renderer.SetFlash(r, "Password reset.", "success")
	http.Redirect(w, r, fmt.Sprintf("/admin/users/%d/edit", id), http.StatusSeeOther)
}

// UserDelete handles the delete button on the user table, removing the
// account with all its listings and files.
func (h *AdminHandler) UserDelete(w http.ResponseWriter, r *http.Request) {
	id := idParam(r, "id")
	if id == 0 {
		http.NotFound(w, r)
		return
	}

	err := h.accounts.Delete(r.Context(), middleware.GetUser(r), id)
	switch {
	case errors.Is(err, account.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, account.ErrLastAdmin):
		h.renderUsers(w, r, accountErrorMessage(err))
	case err != nil:
		h.serverError(w, "deleting user", err)
	default:
		h.renderer.SetFlash(r, "User deleted.", "success")
		http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
	}
}

func (h *AdminHandler) renderUserForm(w http.ResponseWriter, r *http.Request, user model.User, errMsg string) {
	renderPage(w, r, h.renderer, "admin/user_form", render.TemplateData{
		Title: "Edit user",
		Data:  userFormData{Account: user, Error: errMsg},
	})
}

func (h *AdminHandler) serverError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
