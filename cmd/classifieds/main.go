// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ferabreu/classifieds-go/internal/account"
	"github.com/ferabreu/classifieds-go/internal/cache"
	"github.com/ferabreu/classifieds-go/internal/catalog"
	"github.com/ferabreu/classifieds-go/internal/config"
	"github.com/ferabreu/classifieds-go/internal/handler"
	"github.com/ferabreu/classifieds-go/internal/imaging"
	"github.com/ferabreu/classifieds-go/internal/listing"
	"github.com/ferabreu/classifieds-go/internal/logging"
	"github.com/ferabreu/classifieds-go/internal/middleware"
	"github.com/ferabreu/classifieds-go/internal/render"
	"github.com/ferabreu/classifieds-go/internal/scheduler"
	"github.com/ferabreu/classifieds-go/internal/session"
	"github.com/ferabreu/classifieds-go/internal/showcase"
	"github.com/ferabreu/classifieds-go/internal/store"
	"github.com/ferabreu/classifieds-go/web"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	runBackfill := flag.Bool("backfill-thumbnails", false, "Regenerate missing thumbnails and exit")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "classifieds - a small classified ads site\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CLSF_SESSION_SECRET    Session encryption key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CLSF_DB_PATH           SQLite database path (default: ./data/classifieds.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CLSF_SERVER_PORT       Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CLSF_ENV               Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CLSF_UPLOAD_DIR        Listing image directory (default: ./data/uploads)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CLSF_REDIS_URL         Redis URL for distributed caching (optional)\n")
	}

	flag.Parse()

	if *showVersion {
		_, _ = fmt.Printf("classifieds %s (commit: %s, built: %s)\n", appVersion, appGitCommit, appBuildTime)
		os.Exit(0)
	}

	if err := run(*runBackfill); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(backfillOnly bool) error {
	// Load .env file if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Ensure the data and image directories exist
	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.UploadDir, cfg.ThumbnailDir, cfg.TempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	// Upgrade logger to also write WARN and ERROR logs to the event log
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logging.NewEventLogHandler(textHandler, db))
	slog.SetDefault(logger)
	slog.Info("event log integration enabled", "min_level", "warn")

	ctx := context.Background()
	if cfg.DoSeed {
		if err := store.Seed(ctx, db); err != nil {
			return fmt.Errorf("seeding database: %w", err)
		}
	}

	// Cache backend and shared services
	cacheBackend := cache.NewFromConfig(ctx, cfg)
	cacheTTL := time.Duration(cfg.CacheTTL) * time.Second

	processor := imaging.NewProcessor(cfg.UploadDir, cfg.ThumbnailDir, cfg.TempDir,
		cfg.ThumbnailWidth, cfg.ThumbnailHeight)
	listings := listing.NewCoordinator(db, processor, cacheBackend)

	if backfillOnly {
		created, err := listings.BackfillThumbnails(ctx)
		if err != nil {
			return fmt.Errorf("backfilling thumbnails: %w", err)
		}
		slog.Info("thumbnail backfill finished", "created", created)
		return nil
	}

	catalogService := catalog.NewService(db, cacheBackend, cacheTTL)
	accounts := account.NewService(db, listings)
	showcaseService := showcase.NewService(db, cacheBackend, cacheTTL,
		cfg.ShowcaseCount, cfg.ShowcaseItems, cfg.ShowcaseCategories)

	// Session manager backed by the database
	sessionManager := session.New(db, cfg.IsDevelopment())
	slog.Info("session manager initialized")

	// Template renderer
	templatesFS, err := fs.Sub(web.Templates, "templates")
	if err != nil {
		return fmt.Errorf("getting templates fs: %w", err)
	}
	renderer, err := render.New(render.Config{
		TemplatesFS:    templatesFS,
		SessionManager: sessionManager,
	})
	if err != nil {
		return fmt.Errorf("initializing renderer: %w", err)
	}
	slog.Info("template renderer initialized")

	// Background thumbnail backfill sweep
	sched := scheduler.New(listings, logger)
	if err := sched.Start(cfg.BackfillSchedule); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	// Handlers
	authHandler := handler.NewAuthHandler(accounts, renderer, sessionManager)
	homeHandler := handler.NewHomeHandler(catalogService, showcaseService, renderer)
	listingHandler := handler.NewListingHandler(db, listings, catalogService, renderer, sessionManager)
	userHandler := handler.NewUserHandler(db, accounts, renderer, sessionManager)
	adminHandler := handler.NewAdminHandler(db, accounts, catalogService, listings, renderer, sessionManager)
	apiHandler := handler.NewAPIHandler(catalogService)

	// Router and middleware stack
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(chimw.GetHead)

	securityConfig := middleware.DefaultSecurityHeadersConfig(cfg.IsDevelopment())
	r.Use(middleware.SecurityHeaders(securityConfig))

	r.Use(sessionManager.LoadAndSave)

	csrfConfig := middleware.DefaultCSRFConfig([]byte(cfg.SessionSecret), cfg.IsDevelopment(), cfg.ServerPort)
	csrfMiddleware := middleware.CSRF(csrfConfig)
	slog.Info("CSRF protection initialized")

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalLoadUser(sessionManager, db))
		r.Get("/", homeHandler.Home)
		r.Get("/listings", listingHandler.Index)
		r.Get("/listings/{id:[0-9]+}", listingHandler.Show)
		r.Get("/c/*", listingHandler.BrowseCategory)
	})

	// Auth routes (public, CSRF-protected, login POST rate limited)
	r.Group(func(r chi.Router) {
		r.Use(csrfMiddleware)
		r.Get("/login", authHandler.LoginForm)
		r.With(middleware.LoginRateLimit(0.5, 5)).Post("/login", authHandler.Login)
		r.Get("/register", authHandler.RegisterForm)
		r.Post("/register", authHandler.Register)
		r.Post("/logout", authHandler.Logout)
		r.Get("/logout", authHandler.Logout)
	})

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(csrfMiddleware)
		r.Use(middleware.Auth(sessionManager))
		r.Use(middleware.LoadUser(sessionManager, db))

		r.Get("/listings/new", listingHandler.NewForm)
		r.Post("/listings/new", listingHandler.Create)
		r.Get("/listings/{id:[0-9]+}/edit", listingHandler.EditForm)
		r.Post("/listings/{id:[0-9]+}/edit", listingHandler.Edit)
		r.Post("/listings/{id:[0-9]+}/delete", listingHandler.Delete)

		r.Get("/users/me", userHandler.Profile)
		r.Post("/users/me", userHandler.UpdateProfile)
		r.Post("/users/me/password", userHandler.ChangePassword)
	})

	// Admin routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(csrfMiddleware)
		r.Use(middleware.Auth(sessionManager))
		r.Use(middleware.LoadUser(sessionManager, db))
		r.Use(middleware.RequireAdmin())

		r.Get("/", adminHandler.Dashboard)
		r.Get("/events", adminHandler.Events)

		r.Get("/categories", adminHandler.Categories)
		r.Get("/categories/new", adminHandler.CategoryNewForm)
		r.Post("/categories/new", adminHandler.CategoryCreate)
		r.Get("/categories/{id:[0-9]+}/edit", adminHandler.CategoryEditForm)
		r.Post("/categories/{id:[0-9]+}/edit", adminHandler.CategoryUpdate)
		r.Post("/categories/{id:[0-9]+}/delete", adminHandler.CategoryDelete)

		r.Get("/listings", adminHandler.Listings)
		r.Post("/listings/delete", adminHandler.ListingsBulkDelete)

		r.Get("/users", adminHandler.Users)
		r.Get("/users/{id:[0-9]+}/edit", adminHandler.UserEditForm)
		r.Post("/users/{id:[0-9]+}/edit", adminHandler.UserUpdate)
		r.Post("/users/{id:[0-9]+}/password", adminHandler.UserSetPassword)
		r.Post("/users/{id:[0-9]+}/delete", adminHandler.UserDelete)
	})

	// Read-only JSON API for category pickers
	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", apiHandler.CategoryTree)
		r.Get("/categories/{id:[0-9]+}/children", apiHandler.CategoryChildren)
		r.Get("/categories/{id:[0-9]+}/breadcrumb", apiHandler.CategoryBreadcrumb)
	})

	// Static assets
	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		return fmt.Errorf("getting static fs: %w", err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Uploaded images and thumbnails
	r.Handle("/media/uploads/*", http.StripPrefix("/media/uploads/",
		http.FileServer(http.Dir(cfg.UploadDir))))
	r.Handle("/media/thumbnails/*", http.StripPrefix("/media/thumbnails/",
		http.FileServer(http.Dir(cfg.ThumbnailDir))))

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second, // Longer to allow for image uploads
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
