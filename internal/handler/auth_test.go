// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package handler

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferabreu/classifieds-go/internal/middleware"
)

func postForm(t *testing.T, target string, form url.Values) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestLoginFormRenders(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.accounts, env.renderer, env.sm)

	r := env.withSession(t, httptest.NewRequest(http.MethodGet, "/login", nil))
	w := httptest.NewRecorder()
	h.LoginForm(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Log in")
}

func TestLoginFormRedirectsAuthenticated(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.accounts, env.renderer, env.sm)
	user := env.createUser(t, "in@example.com", false)

	r := env.asUser(t, httptest.NewRequest(http.MethodGet, "/login", nil), user)
	w := httptest.NewRecorder()
	h.LoginForm(w, r)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.accounts, env.renderer, env.sm)
	user := env.createUser(t, "login@example.com", false)

	r := env.withSession(t, postForm(t, "/login", url.Values{
		"email":    {"login@example.com"},
		"password": {"password123"},
	}))
	w := httptest.NewRecorder()
	h.Login(w, r)

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, user.ID, env.sm.GetInt64(r.Context(), middleware.SessionKeyUserID))
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.accounts, env.renderer, env.sm)
	env.createUser(t, "login@example.com", false)

	r := env.withSession(t, postForm(t, "/login", url.Values{
		"email":    {"login@example.com"},
		"password": {"nope"},
	}))
	w := httptest.NewRecorder()
	h.Login(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid email or password")
	assert.Zero(t, env.sm.GetInt64(r.Context(), middleware.SessionKeyUserID))
}

func TestRegisterCreatesAndSignsIn(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.accounts, env.renderer, env.sm)

	r := env.withSession(t, postForm(t, "/register", url.Values{
		"email":      {"new@example.com"},
		"first_name": {"New"},
		"last_name":  {"Person"},
		"password":   {"password123"},
	}))
	w := httptest.NewRecorder()
	h.Register(w, r)

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.NotZero(t, env.sm.GetInt64(r.Context(), middleware.SessionKeyUserID))

	user, err := env.queries.GetUserByEmail(r.Context(), "new@example.com")
	require.NoError(t, err)
	assert.False(t, user.IsAdmin)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.accounts, env.renderer, env.sm)
	env.createUser(t, "taken@example.com", false)

	r := env.withSession(t, postForm(t, "/register", url.Values{
		"email":      {"taken@example.com"},
		"first_name": {"New"},
		"last_name":  {"Person"},
		"password":   {"password123"},
	}))
	w := httptest.NewRecorder()
	h.Register(w, r)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "already registered")
}

func TestLogoutClearsSession(t *testing.T) {
	env := newTestEnv(t)
	h := NewAuthHandler(env.accounts, env.renderer, env.sm)
	user := env.createUser(t, "out@example.com", false)

	r := env.asUser(t, httptest.NewRequest(http.MethodPost, "/logout", nil), user)
	w := httptest.NewRecorder()
	h.Logout(w, r)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Zero(t, env.sm.GetInt64(r.Context(), middleware.SessionKeyUserID))
}
