// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/ferabreu/classifieds-go/internal/account"
	"github.com/ferabreu/classifieds-go/internal/middleware"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/render"
	"github.com/ferabreu/classifieds-go/internal/store"
)

// UserHandler serves the signed-in user's own account pages.
type UserHandler struct {
	accounts       *account.Service
	queries        *store.Queries
	renderer       *render.Renderer
	sessionManager *scs.SessionManager
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(db *sql.DB, accounts *account.Service, renderer *render.Renderer, sm *scs.SessionManager) *UserHandler {
	return &UserHandler{
		accounts:       accounts,
		queries:        store.New(db),
		renderer:       renderer,
		sessionManager: sm,
	}
}

type profileData struct {
	Profile  model.User
	Listings []model.Listing
	Error    string
}

// Profile renders the account page with the user's own listings.
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	h.renderProfile(w, r, *middleware.GetUser(r), "")
}

// UpdateProfile handles the profile form.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	user := middleware.GetUser(r)
	in := account.Input{
		Email:     r.PostFormValue("email"),
		FirstName: r.PostFormValue("first_name"),
		LastName:  r.PostFormValue("last_name"),
	}

	if _, err := h.accounts.Update(r.Context(), user, user.ID, in); err != nil {
		draft := *user
		draft.Email = in.Email
		draft.FirstName = in.FirstName
		draft.LastName = in.LastName
		w.WriteHeader(http.StatusUnprocessableEntity)
		h.renderProfile(w, r, draft, accountErrorMessage(err))
		return
	}

	h.renderer.SetFlash(r, "Profile updated.", "success")
	http.Redirect(w, r, "/users/me", http.StatusSeeOther)
}

// ChangePassword handles the password form on the account page.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	user := middleware.GetUser(r)
	err := h.accounts.ChangePassword(r.Context(), user, user.ID,
		r.PostFormValue("current_password"), r.PostFormValue("new_password"))
	if err != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		h.renderProfile(w, r, *user, accountErrorMessage(err))
		return
	}

	h.renderer.SetFlash(r, "Password changed.", "success")
	http.Redirect(w, r, "/users/me", http.StatusSeeOther)
}

func (h *UserHandler) renderProfile(w http.ResponseWriter, r *http.Request, profile model.User, errMsg string) {
	user := middleware.GetUser(r)

	listings, err := h.queries.ListListings(r.Context(), store.ListListingsParams{
		UserID: user.ID,
		Limit:  100,
	})
	if err == nil {
		err = attachImages(r.Context(), h.queries, listings)
	}
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	renderPage(w, r, h.renderer, "users/profile", render.TemplateData{
		Title: "My account",
		Data: profileData{
			Profile:  profile,
			Listings: listings,
			Error:    errMsg,
		},
	})
}

// accountErrorMessage maps account service errors to user-facing text.
// Unexpected errors get a generic message so internals never leak into
// the page.
func accountErrorMessage(err error) string {
	for _, known := range []error{
		account.ErrEmailTaken,
		account.ErrInvalidEmail,
		account.ErrNameRequired,
		account.ErrNameTooLong,
		account.ErrPasswordTooShort,
		account.ErrInvalidCredentials,
		account.ErrLastAdmin,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "Something went wrong, please try again."
}
