// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ferabreu/classifieds-go/internal/model"
)

const listingColumns = `id, title, description, price, user_id, category_id, created_at`

func scanListing(scanner interface{ Scan(...any) error }) (model.Listing, error) {
	var l model.Listing
	err := scanner.Scan(
		&l.ID, &l.Title, &l.Description, &l.Price, &l.UserID, &l.CategoryID, &l.CreatedAt,
	)
	return l, err
}

func (q *Queries) queryListings(ctx context.Context, query string, args ...any) ([]model.Listing, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var listings []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// GetListingByID retrieves a listing by ID.
func (q *Queries) GetListingByID(ctx context.Context, id int64) (model.Listing, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	return scanListing(row)
}

// CreateListingParams holds the fields for creating a listing.
type CreateListingParams struct {
	Title       string
	Description string
	Price       float64
	UserID      int64
	CategoryID  int64
	CreatedAt   time.Time
}

// CreateListing inserts a new listing and returns it.
func (q *Queries) CreateListing(ctx context.Context, arg CreateListingParams) (model.Listing, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO listings (title, description, price, user_id, category_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+listingColumns,
		arg.Title, arg.Description, arg.Price, arg.UserID, arg.CategoryID, arg.CreatedAt,
	)
	l, err := scanListing(row)
	if err != nil {
		return model.Listing{}, fmt.Errorf("create listing: %w", err)
	}
	return l, nil
}

// UpdateListingParams holds the fields for updating a listing.
type UpdateListingParams struct {
	ID          int64
	Title       string
	Description string
	Price       float64
	CategoryID  int64
}

// UpdateListing modifies the mutable fields of a listing.
func (q *Queries) UpdateListing(ctx context.Context, arg UpdateListingParams) (model.Listing, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE listings
		SET title = ?, description = ?, price = ?, category_id = ?
		WHERE id = ?
		RETURNING `+listingColumns,
		arg.Title, arg.Description, arg.Price, arg.CategoryID, arg.ID,
	)
	l, err := scanListing(row)
	if err != nil {
		return model.Listing{}, fmt.Errorf("update listing: %w", err)
	}
	return l, nil
}

// DeleteListing removes a listing. Image rows cascade via foreign key.
func (q *Queries) DeleteListing(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	return nil
}

// ListListingsParams holds paging and filter options for listing queries.
type ListListingsParams struct {
	CategoryIDs []int64 // Empty for all categories
	UserID      int64   // Zero for all users
	Search      string  // Empty for no text filter
	Limit       int64
	Offset      int64
}

// ListListings returns listings newest first, optionally filtered by
// category set, owner, or a title/description substring.
func (q *Queries) ListListings(ctx context.Context, arg ListListingsParams) ([]model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE 1=1`
	var args []any

	if len(arg.CategoryIDs) > 0 {
		query += ` AND category_id IN (` + placeholders(len(arg.CategoryIDs)) + `)`
		args = append(args, int64Args(arg.CategoryIDs)...)
	}
	if arg.UserID != 0 {
		query += ` AND user_id = ?`
		args = append(args, arg.UserID)
	}
	if arg.Search != "" {
		query += ` AND (title LIKE ? OR description LIKE ?)`
		pattern := "%" + arg.Search + "%"
		args = append(args, pattern, pattern)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, arg.Limit, arg.Offset)

	listings, err := q.queryListings(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return listings, nil
}

// CountListings returns the number of listings matching the filters.
func (q *Queries) CountListings(ctx context.Context, arg ListListingsParams) (int64, error) {
	query := `SELECT COUNT(*) FROM listings WHERE 1=1`
	var args []any

	if len(arg.CategoryIDs) > 0 {
		query += ` AND category_id IN (` + placeholders(len(arg.CategoryIDs)) + `)`
		args = append(args, int64Args(arg.CategoryIDs)...)
	}
	if arg.UserID != 0 {
		query += ` AND user_id = ?`
		args = append(args, arg.UserID)
	}
	if arg.Search != "" {
		query += ` AND (title LIKE ? OR description LIKE ?)`
		pattern := "%" + arg.Search + "%"
		args = append(args, pattern, pattern)
	}

	var n int64
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

// ListListingIDsByUser returns the IDs of all listings owned by a user.
func (q *Queries) ListListingIDsByUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id FROM listings WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list listing ids by user: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan listing id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
