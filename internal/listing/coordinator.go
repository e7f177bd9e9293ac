// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

// Package listing coordinates listing mutations across the database and
// the image file store. Deletions follow a stage-commit protocol: image
// files are moved to a staging directory first, the database transaction
// runs, and the staged files are then either deleted (commit) or moved
// back (rollback). After a successful commit the listing is already
// gone, so a failed staged-file deletion is reported as a warning
// instead of failing the operation.
package listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ferabreu/classifieds-go/internal/cache"
	"github.com/ferabreu/classifieds-go/internal/filetx"
	"github.com/ferabreu/classifieds-go/internal/imaging"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/store"
	"github.com/ferabreu/classifieds-go/internal/util"
)

var (
	ErrNotFound  = errors.New("listing not found")
	ErrForbidden = errors.New("not allowed to manage this listing")
)

// ValidationError aggregates per-field form failures.
type ValidationError struct {
	Fields map[string]error
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "invalid listing fields: " + strings.Join(names, ", ")
}

// Input holds the user-supplied fields of a listing form.
type Input struct {
	Title       string
	Description string
	Price       float64
	CategoryID  int64
}

// Upload is one image file submitted with a listing form.
type Upload struct {
	Reader   io.Reader
	Filename string
}

// Coordinator runs listing operations that touch both the database and
// the filesystem.
type Coordinator struct {
	db        *sql.DB
	queries   *store.Queries
	processor *imaging.Processor
	cache     cache.Cache
}

// NewCoordinator creates a listing coordinator.
func NewCoordinator(db *sql.DB, processor *imaging.Processor, c cache.Cache) *Coordinator {
	return &Coordinator{
		db:        db,
		queries:   store.New(db),
		processor: processor,
		cache:     c,
	}
}

// Get returns a listing with its images populated.
func (c *Coordinator) Get(ctx context.Context, id int64) (model.Listing, error) {
	l, err := c.queries.GetListingByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Listing{}, ErrNotFound
	}
	if err != nil {
		return model.Listing{}, err
	}

	images, err := c.queries.ListImagesByListing(ctx, id)
	if err != nil {
		return model.Listing{}, err
	}
	l.Images = images
	return l, nil
}

// Create validates the form, writes the uploaded images and their
// thumbnails to the scratch directory, and inserts the listing with its
// image rows in one transaction. Scratch files only move into permanent
// storage after the commit; a failed transaction removes them, and a
// failed post-commit move is a warning.
func (c *Coordinator) Create(ctx context.Context, actor *model.User, in Input, uploads []Upload) (model.Listing, error) {
	if fields := ValidateInput(in); fields != nil {
		return model.Listing{}, &ValidationError{Fields: fields}
	}

	saved, err := c.saveUploads(ctx, uploads)
	if err != nil {
		return model.Listing{}, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		c.removeSaved(saved)
		return model.Listing{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	qtx := c.queries.WithTx(tx)
	created, err := qtx.CreateListing(ctx, store.CreateListingParams{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		UserID:      actor.ID,
		CategoryID:  in.CategoryID,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		c.removeSaved(saved)
		return model.Listing{}, fmt.Errorf("create listing: %w", err)
	}

	for _, s := range saved {
		if _, err := qtx.CreateImage(ctx, store.CreateImageParams{
			Filename:          s.filename,
			ThumbnailFilename: sql.NullString{String: s.thumbnail, Valid: true},
			ListingID:         created.ID,
		}); err != nil {
			c.removeSaved(saved)
			return model.Listing{}, fmt.Errorf("create image row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		c.removeSaved(saved)
		return model.Listing{}, fmt.Errorf("commit: %w", err)
	}

	c.moveSavedIntoPlace(ctx, saved, actor.ID)
	c.cache.Delete(ctx, cache.KeyShowcase)
	c.logEvent(ctx, model.EventLevelInfo, model.EventCategoryListing,
		fmt.Sprintf("listing %d created", created.ID), actor.ID)
	return c.Get(ctx, created.ID)
}

// Update validates the form, stages the files of any removed images,
// writes any new uploads to the scratch directory, and applies all
// database changes in one transaction. On rollback the staged files
// return to their original locations and the scratch files are removed;
// on commit the staged files are deleted and the scratch files move
// into permanent storage.
func (c *Coordinator) Update(ctx context.Context, actor *model.User, id int64, in Input, uploads []Upload, removeImageIDs []int64) (model.Listing, error) {
	current, err := c.Get(ctx, id)
	if err != nil {
		return model.Listing{}, err
	}
	if !actor.CanManage(&current) {
		return model.Listing{}, ErrForbidden
	}
	if fields := ValidateInput(in); fields != nil {
		return model.Listing{}, &ValidationError{Fields: fields}
	}

	removals := selectImages(current.Images, removeImageIDs)
	moves, err := c.movesFor(removals)
	if err != nil {
		return model.Listing{}, err
	}

	staged, err := filetx.Stage(moves)
	if err != nil {
		return model.Listing{}, fmt.Errorf("staging removed images: %w", err)
	}

	saved, err := c.saveUploads(ctx, uploads)
	if err != nil {
		filetx.Restore(staged)
		return model.Listing{}, err
	}

	rollbackFiles := func() {
		filetx.Restore(staged)
		c.removeSaved(saved)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		rollbackFiles()
		return model.Listing{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	qtx := c.queries.WithTx(tx)
	if _, err := qtx.UpdateListing(ctx, store.UpdateListingParams{
		ID:          id,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		CategoryID:  in.CategoryID,
	}); err != nil {
		rollbackFiles()
		return model.Listing{}, fmt.Errorf("update listing: %w", err)
	}

	for _, img := range removals {
		if err := qtx.DeleteImage(ctx, img.ID); err != nil {
			rollbackFiles()
			return model.Listing{}, fmt.Errorf("delete image row: %w", err)
		}
	}

	for _, s := range saved {
		if _, err := qtx.CreateImage(ctx, store.CreateImageParams{
			Filename:          s.filename,
			ThumbnailFilename: sql.NullString{String: s.thumbnail, Valid: true},
			ListingID:         id,
		}); err != nil {
			rollbackFiles()
			return model.Listing{}, fmt.Errorf("create image row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		rollbackFiles()
		return model.Listing{}, fmt.Errorf("commit: %w", err)
	}

	c.finalize(ctx, staged, actor.ID)
	c.moveSavedIntoPlace(ctx, saved, actor.ID)
	c.cache.Delete(ctx, cache.KeyShowcase)
	c.logEvent(ctx, model.EventLevelInfo, model.EventCategoryListing,
		fmt.Sprintf("listing %d updated", id), actor.ID)
	return c.Get(ctx, id)
}

// Delete removes a listing and its image files. The files are staged
// before the transaction so a database failure leaves them in place.
func (c *Coordinator) Delete(ctx context.Context, actor *model.User, id int64) error {
	current, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanManage(&current) {
		return ErrForbidden
	}

	moves, err := c.movesFor(current.Images)
	if err != nil {
		return err
	}

	staged, err := filetx.Stage(moves)
	if err != nil {
		return fmt.Errorf("staging listing images: %w", err)
	}

	// Image rows cascade with the listing.
	if err := c.queries.DeleteListing(ctx, id); err != nil {
		filetx.Restore(staged)
		return fmt.Errorf("delete listing: %w", err)
	}

	c.finalize(ctx, staged, actor.ID)
	c.cache.Delete(ctx, cache.KeyShowcase)
	c.logEvent(ctx, model.EventLevelInfo, model.EventCategoryListing,
		fmt.Sprintf("listing %d deleted", id), actor.ID)
	return nil
}

// BulkDelete removes several listings at once. Every image file across
// the batch is staged as one unit before a single transaction deletes
// the rows; a database failure restores the whole staged set. IDs that
// no longer exist are skipped. Returns the number of listings deleted.
func (c *Coordinator) BulkDelete(ctx context.Context, actor *model.User, ids []int64) (int, error) {
	if !actor.IsAdmin {
		return 0, ErrForbidden
	}

	var (
		listings []model.Listing
		images   []model.ListingImage
	)
	for _, id := range ids {
		l, err := c.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, err
		}
		listings = append(listings, l)
		images = append(images, l.Images...)
	}
	if len(listings) == 0 {
		return 0, nil
	}

	moves, err := c.movesFor(images)
	if err != nil {
		return 0, err
	}
	staged, err := filetx.Stage(moves)
	if err != nil {
		return 0, fmt.Errorf("staging listing images: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		filetx.Restore(staged)
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	qtx := c.queries.WithTx(tx)
	for _, l := range listings {
		if err := qtx.DeleteListing(ctx, l.ID); err != nil {
			filetx.Restore(staged)
			return 0, fmt.Errorf("delete listing %d: %w", l.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		filetx.Restore(staged)
		return 0, fmt.Errorf("commit: %w", err)
	}

	c.finalize(ctx, staged, actor.ID)
	c.cache.Delete(ctx, cache.KeyShowcase)
	c.logEvent(ctx, model.EventLevelInfo, model.EventCategoryListing,
		fmt.Sprintf("%d listings deleted", len(listings)), actor.ID)
	return len(listings), nil
}

// DeleteAllByUser removes every listing owned by a user, each through
// the staged deletion protocol. Used when an account is removed. The
// first failure stops the sweep.
func (c *Coordinator) DeleteAllByUser(ctx context.Context, actor *model.User, userID int64) error {
	if !actor.IsAdmin && actor.ID != userID {
		return ErrForbidden
	}

	ids, err := c.queries.ListListingIDsByUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := c.Delete(ctx, actor, id); err != nil {
			return fmt.Errorf("deleting listing %d: %w", id, err)
		}
	}
	return nil
}

// BackfillThumbnails generates thumbnails for image rows that have
// none. Per-image failures are logged and skipped so one corrupt file
// cannot stall the sweep. Returns the number of thumbnails created.
func (c *Coordinator) BackfillThumbnails(ctx context.Context) (int, error) {
	pending, err := c.queries.ListImagesWithoutThumbnails(ctx)
	if err != nil {
		return 0, err
	}

	var created int
	for _, img := range pending {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}

		thumbName, err := c.processor.CreateThumbnail(img.Filename)
		if err != nil {
			slog.Warn("thumbnail backfill failed", "image_id", img.ID, "filename", img.Filename, "error", err)
			continue
		}
		if err := c.queries.SetImageThumbnail(ctx, img.ID, thumbName); err != nil {
			slog.Warn("recording backfilled thumbnail failed", "image_id", img.ID, "error", err)
			continue
		}
		created++
	}

	if created > 0 {
		slog.Info("thumbnail backfill complete", "created", created, "pending", len(pending))
	}
	return created, nil
}

// savedUpload tracks one scratch upload so a failure can undo it and a
// commit can move it into place.
type savedUpload struct {
	filename  string
	thumbnail string
}

// saveUploads writes each upload and its thumbnail to the scratch
// directory. A failure anywhere, thumbnail rendering included, removes
// every scratch file already written for this request and aborts;
// nothing reaches permanent storage here.
func (c *Coordinator) saveUploads(ctx context.Context, uploads []Upload) ([]savedUpload, error) {
	var saved []savedUpload
	for _, up := range uploads {
		filename, err := c.processor.SaveUpload(up.Reader, up.Filename)
		if err != nil {
			c.removeSaved(saved)
			return nil, fmt.Errorf("saving %s: %w", up.Filename, err)
		}
		saved = append(saved, savedUpload{filename: filename})

		thumbName, err := c.processor.CreateScratchThumbnail(filename)
		if err != nil {
			c.removeSaved(saved)
			return nil, fmt.Errorf("thumbnail for %s: %w", up.Filename, err)
		}
		saved[len(saved)-1].thumbnail = thumbName
	}
	return saved, nil
}

// removeSaved deletes scratch files written for a request that did not
// commit. Best-effort.
func (c *Coordinator) removeSaved(saved []savedUpload) {
	for _, s := range saved {
		if path, err := util.SafeJoinPath(c.processor.TempDir(), s.filename); err == nil {
			removeQuiet(path)
		}
		if s.thumbnail != "" {
			if path, err := util.SafeJoinPath(c.processor.TempDir(), imaging.ScratchThumbPrefix+s.thumbnail); err == nil {
				removeQuiet(path)
			}
		}
	}
}

// moveSavedIntoPlace moves committed scratch files into permanent
// storage. The rows are already durable, so each failed move is
// recorded as a warning and the scratch file is left behind.
func (c *Coordinator) moveSavedIntoPlace(ctx context.Context, saved []savedUpload, actorID int64) {
	for _, s := range saved {
		c.promote(ctx, s.filename, c.processor.UploadDir(), s.filename, actorID)
		if s.thumbnail != "" {
			c.promote(ctx, imaging.ScratchThumbPrefix+s.thumbnail, c.processor.ThumbnailDir(), s.thumbnail, actorID)
		}
	}
}

// promote renames one scratch file into its permanent directory.
func (c *Coordinator) promote(ctx context.Context, srcName, dstDir, dstName string, actorID int64) {
	err := func() error {
		src, err := util.SafeJoinPath(c.processor.TempDir(), srcName)
		if err != nil {
			return err
		}
		dst, err := util.SafeJoinPath(dstDir, dstName)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dstDir, 0o755); err != nil {
			return err
		}
		return os.Rename(src, dst)
	}()
	if err != nil {
		slog.Warn("moving committed file into place failed", "filename", dstName, "error", err)
		c.logEvent(ctx, model.EventLevelWarning, model.EventCategoryFile,
			fmt.Sprintf("failed to move %s into place", dstName), actorID)
	}
}

// movesFor builds the staging relocation set for a group of images and
// ensures the staging directory exists.
func (c *Coordinator) movesFor(images []model.ListingImage) ([]filetx.Move, error) {
	if len(images) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(c.processor.TempDir(), 0o755); err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}

	moves := make([]filetx.Move, 0, len(images))
	for _, img := range images {
		path, err := util.SafeJoinPath(c.processor.UploadDir(), img.Filename)
		if err != nil {
			return nil, err
		}
		stagedPath, err := util.SafeJoinPath(c.processor.TempDir(), img.Filename)
		if err != nil {
			return nil, err
		}

		m := filetx.Move{Path: path, StagedPath: stagedPath}
		if img.HasThumbnail() {
			thumbPath, err := util.SafeJoinPath(c.processor.ThumbnailDir(), img.ThumbnailFilename.String)
			if err != nil {
				return nil, err
			}
			stagedThumbPath, err := util.SafeJoinPath(c.processor.TempDir(), imaging.ScratchThumbPrefix+img.ThumbnailFilename.String)
			if err != nil {
				return nil, err
			}
			m.ThumbPath = thumbPath
			m.StagedThumbPath = stagedThumbPath
		}
		moves = append(moves, m)
	}
	return moves, nil
}

// finalize deletes staged files after a successful commit. The listing
// change is already durable at this point, so failures here are
// recorded as warnings and never surfaced to the caller.
func (c *Coordinator) finalize(ctx context.Context, staged []filetx.Move, actorID int64) {
	if len(staged) == 0 {
		return
	}
	filetx.Cleanup(staged)

	for _, m := range staged {
		for _, path := range []string{m.StagedPath, m.StagedThumbPath} {
			if path == "" {
				continue
			}
			if _, err := os.Stat(path); err == nil {
				c.logEvent(ctx, model.EventLevelWarning, model.EventCategoryFile,
					fmt.Sprintf("staged file %s survived cleanup", path), actorID)
			}
		}
	}
}

func selectImages(images []model.ListingImage, ids []int64) []model.ListingImage {
	if len(ids) == 0 {
		return nil
	}
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []model.ListingImage
	for _, img := range images {
		if want[img.ID] {
			out = append(out, img)
		}
	}
	return out
}

// logEvent records an audit entry. A zero actorID stores a NULL user.
func (c *Coordinator) logEvent(ctx context.Context, level, category, message string, actorID int64) {
	var userID sql.NullInt64
	if actorID != 0 {
		userID = sql.NullInt64{Int64: actorID, Valid: true}
	}
	if _, err := c.queries.CreateEvent(ctx, store.CreateEventParams{
		Level:     level,
		Category:  category,
		Message:   message,
		UserID:    userID,
		CreatedAt: time.Now(),
	}); err != nil {
		slog.Warn("recording event failed", "message", message, "error", err)
	}
}

func removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove file", "path", path, "error", err)
	}
}
