// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package handler

import (
	"context"
	"database/sql"
	"io/fs"
	"net/http"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/ferabreu/classifieds-go/internal/account"
	"github.com/ferabreu/classifieds-go/internal/cache"
	"github.com/ferabreu/classifieds-go/internal/catalog"
	"github.com/ferabreu/classifieds-go/internal/imaging"
	"github.com/ferabreu/classifieds-go/internal/listing"
	"github.com/ferabreu/classifieds-go/internal/middleware"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/render"
	"github.com/ferabreu/classifieds-go/internal/showcase"
	"github.com/ferabreu/classifieds-go/internal/store"
	"github.com/ferabreu/classifieds-go/internal/testutil"
	"github.com/ferabreu/classifieds-go/web"
)

// testEnv bundles the services and handlers under test against a real
// database, real templates, and temp image directories.
type testEnv struct {
	db       *sql.DB
	queries  *store.Queries
	sm       *scs.SessionManager
	renderer *render.Renderer

	accounts *account.Service
	catalog  *catalog.Service
	listings *listing.Coordinator
	showcase *showcase.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	testutil.SilenceLogs(t)

	db := testutil.TestDB(t)

	sm := scs.New()
	sm.Lifetime = 24 * time.Hour

	templatesFS, err := fs.Sub(web.Templates, "templates")
	require.NoError(t, err)
	renderer, err := render.New(render.Config{TemplatesFS: templatesFS, SessionManager: sm})
	require.NoError(t, err)

	c := cache.NewMemory()
	dir := t.TempDir()
	processor := imaging.NewProcessor(dir+"/uploads", dir+"/thumbs", dir+"/temp", 224, 224)
	listings := listing.NewCoordinator(db, processor, c)

	return &testEnv{
		db:       db,
		queries:  store.New(db),
		sm:       sm,
		renderer: renderer,
		accounts: account.NewService(db, listings),
		catalog:  catalog.NewService(db, c, time.Minute),
		listings: listings,
		showcase: showcase.NewService(db, c, time.Minute, 3, 4, nil),
	}
}

// createUser registers a user, optionally promoting it to admin with a
// direct store update.
func (e *testEnv) createUser(t *testing.T, email string, admin bool) model.User {
	t.Helper()

	user, err := e.accounts.Register(context.Background(), account.Input{
		Email:     email,
		FirstName: "Test",
		LastName:  "User",
		Password:  "password123",
	})
	require.NoError(t, err)

	if admin {
		user, err = e.queries.UpdateUser(context.Background(), store.UpdateUserParams{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			IsAdmin:   true,
			UpdatedAt: time.Now(),
		})
		require.NoError(t, err)
	}
	return user
}

func (e *testEnv) createCategory(t *testing.T, name string, parentID int64) model.Category {
	t.Helper()

	in := catalog.Input{Name: name}
	if parentID != 0 {
		in.ParentID = sql.NullInt64{Int64: parentID, Valid: true}
	}
	category, err := e.catalog.Create(context.Background(), in)
	require.NoError(t, err)
	return category
}

func (e *testEnv) createListing(t *testing.T, owner model.User, categoryID int64, title string) model.Listing {
	t.Helper()

	l, err := e.listings.Create(context.Background(), &owner, listing.Input{
		Title:       title,
		Description: "A perfectly reasonable test description.",
		Price:       25,
		CategoryID:  categoryID,
	}, nil)
	require.NoError(t, err)
	return l
}

// withSession attaches a fresh session context to a request.
func (e *testEnv) withSession(t *testing.T, r *http.Request) *http.Request {
	t.Helper()
	ctx, err := e.sm.Load(r.Context(), "")
	require.NoError(t, err)
	return r.WithContext(ctx)
}

// asUser attaches both the session user ID and the context user, the
// state the Auth and LoadUser middleware produce.
func (e *testEnv) asUser(t *testing.T, r *http.Request, user model.User) *http.Request {
	t.Helper()
	r = e.withSession(t, r)
	e.sm.Put(r.Context(), middleware.SessionKeyUserID, user.ID)
	ctx := context.WithValue(r.Context(), middleware.ContextKeyUser, user)
	return r.WithContext(ctx)
}

// withURLParams adds chi URL parameters to a request.
func withURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
