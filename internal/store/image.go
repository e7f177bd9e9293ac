// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ferabreu/classifieds-go/internal/model"
)

const imageColumns = `id, filename, thumbnail_filename, listing_id`

func scanImage(scanner interface{ Scan(...any) error }) (model.ListingImage, error) {
	var img model.ListingImage
	err := scanner.Scan(&img.ID, &img.Filename, &img.ThumbnailFilename, &img.ListingID)
	return img, err
}

func (q *Queries) queryImages(ctx context.Context, query string, args ...any) ([]model.ListingImage, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var images []model.ListingImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// GetImageByID retrieves an image row by ID.
func (q *Queries) GetImageByID(ctx context.Context, id int64) (model.ListingImage, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM listing_images WHERE id = ?`, id)
	return scanImage(row)
}

// ListImagesByListing returns the images of one listing, oldest first.
func (q *Queries) ListImagesByListing(ctx context.Context, listingID int64) ([]model.ListingImage, error) {
	images, err := q.queryImages(ctx,
		`SELECT `+imageColumns+` FROM listing_images WHERE listing_id = ? ORDER BY id`, listingID)
	if err != nil {
		return nil, fmt.Errorf("list images by listing: %w", err)
	}
	return images, nil
}

// ListImagesByListings returns the images of all given listings.
func (q *Queries) ListImagesByListings(ctx context.Context, listingIDs []int64) ([]model.ListingImage, error) {
	if len(listingIDs) == 0 {
		return nil, nil
	}
	images, err := q.queryImages(ctx,
		`SELECT `+imageColumns+` FROM listing_images WHERE listing_id IN (`+placeholders(len(listingIDs))+`) ORDER BY id`,
		int64Args(listingIDs)...)
	if err != nil {
		return nil, fmt.Errorf("list images by listings: %w", err)
	}
	return images, nil
}

// CreateImageParams holds the fields for creating an image row.
type CreateImageParams struct {
	Filename          string
	ThumbnailFilename sql.NullString
	ListingID         int64
}

// CreateImage inserts a new image row and returns it.
func (q *Queries) CreateImage(ctx context.Context, arg CreateImageParams) (model.ListingImage, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO listing_images (filename, thumbnail_filename, listing_id)
		VALUES (?, ?, ?)
		RETURNING `+imageColumns,
		arg.Filename, arg.ThumbnailFilename, arg.ListingID,
	)
	img, err := scanImage(row)
	if err != nil {
		return model.ListingImage{}, fmt.Errorf("create image: %w", err)
	}
	return img, nil
}

// DeleteImage removes an image row by ID.
func (q *Queries) DeleteImage(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM listing_images WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

// SetImageThumbnail records a generated thumbnail filename. Used by the
// backfill sweep.
func (q *Queries) SetImageThumbnail(ctx context.Context, id int64, thumbnailFilename string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE listing_images SET thumbnail_filename = ? WHERE id = ?`,
		thumbnailFilename, id,
	)
	if err != nil {
		return fmt.Errorf("set image thumbnail: %w", err)
	}
	return nil
}

// ListImagesWithoutThumbnails returns image rows pending thumbnail
// backfill (NULL thumbnail filename).
func (q *Queries) ListImagesWithoutThumbnails(ctx context.Context) ([]model.ListingImage, error) {
	images, err := q.queryImages(ctx,
		`SELECT `+imageColumns+` FROM listing_images WHERE thumbnail_filename IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list images without thumbnails: %w", err)
	}
	return images, nil
}
