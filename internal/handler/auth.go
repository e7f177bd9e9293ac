// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

// Package handler contains the HTTP handlers for every route: public
// browsing, authentication, listing management, account pages, and the
// admin area.
package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/ferabreu/classifieds-go/internal/account"
	"github.com/ferabreu/classifieds-go/internal/middleware"
	"github.com/ferabreu/classifieds-go/internal/render"
)

// AuthHandler handles login, logout, and registration.
type AuthHandler struct {
	accounts       *account.Service
	renderer       *render.Renderer
	sessionManager *scs.SessionManager
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(accounts *account.Service, renderer *render.Renderer, sm *scs.SessionManager) *AuthHandler {
	return &AuthHandler{
		accounts:       accounts,
		renderer:       renderer,
		sessionManager: sm,
	}
}

type loginData struct {
	Email string
	Error string
}

// LoginForm renders the login page, bouncing already-authenticated users.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.sessionManager.GetInt64(r.Context(), middleware.SessionKeyUserID) > 0 {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, loginData{})
}

// Login processes the login form.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	user, err := h.accounts.Authenticate(r.Context(), email, password)
	if err != nil {
		if !errors.Is(err, account.ErrInvalidCredentials) {
			slog.Error("login failed", "error", err)
		}
		w.WriteHeader(http.StatusUnauthorized)
		h.renderLogin(w, r, loginData{Email: email, Error: "Invalid email or password."})
		return
	}

	// Session fixation guard.
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		slog.Error("renewing session token", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.sessionManager.Put(r.Context(), middleware.SessionKeyUserID, user.ID)

	slog.Info("user logged in", "user_id", user.ID)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout destroys the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := h.sessionManager.GetInt64(r.Context(), middleware.SessionKeyUserID)
	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		slog.Error("destroying session", "error", err)
	}
	if userID != 0 {
		slog.Info("user logged out", "user_id", userID)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type registerData struct {
	Email     string
	FirstName string
	LastName  string
	Error     string
}

// RegisterForm renders the registration page.
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	if h.sessionManager.GetInt64(r.Context(), middleware.SessionKeyUserID) > 0 {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.renderRegister(w, r, registerData{})
}

// Register processes the registration form and signs the new user in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	in := account.Input{
		Email:     r.PostFormValue("email"),
		FirstName: r.PostFormValue("first_name"),
		LastName:  r.PostFormValue("last_name"),
		Password:  r.PostFormValue("password"),
	}

	user, err := h.accounts.Register(r.Context(), in)
	if err != nil {
		data := registerData{Email: in.Email, FirstName: in.FirstName, LastName: in.LastName}
		switch {
		case errors.Is(err, account.ErrEmailTaken),
			errors.Is(err, account.ErrInvalidEmail),
			errors.Is(err, account.ErrNameRequired),
			errors.Is(err, account.ErrPasswordTooShort):
			data.Error = err.Error()
			w.WriteHeader(http.StatusUnprocessableEntity)
			h.renderRegister(w, r, data)
		default:
			slog.Error("registration failed", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		slog.Error("renewing session token", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.sessionManager.Put(r.Context(), middleware.SessionKeyUserID, user.ID)

	h.renderer.SetFlash(r, "Welcome! Your account has been created.", "success")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, data loginData) {
	if err := h.renderer.Render(w, r, "auth/login", render.TemplateData{
		Title: "Log in",
		Data:  data,
	}); err != nil {
		slog.Error("rendering login page", "error", err)
	}
}

func (h *AuthHandler) renderRegister(w http.ResponseWriter, r *http.Request, data registerData) {
	if err := h.renderer.Render(w, r, "auth/register", render.TemplateData{
		Title: "Register",
		Data:  data,
	}); err != nil {
		slog.Error("rendering register page", "error", err)
	}
}
