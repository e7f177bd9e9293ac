// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ferabreu/classifieds-go/internal/model"
)

const categoryColumns = `id, name, slug, parent_id, position, created_at, updated_at`

func scanCategory(scanner interface{ Scan(...any) error }) (model.Category, error) {
	var c model.Category
	err := scanner.Scan(
		&c.ID, &c.Name, &c.Slug, &c.ParentID, &c.Position, &c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

func (q *Queries) queryCategories(ctx context.Context, query string, args ...any) ([]model.Category, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ListCategories returns all categories ordered by position then name.
func (q *Queries) ListCategories(ctx context.Context) ([]model.Category, error) {
	categories, err := q.queryCategories(ctx,
		`SELECT `+categoryColumns+` FROM categories ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// ListChildCategories returns the direct children of a parent, ordered
// by position then name. A zero parentID selects the roots.
func (q *Queries) ListChildCategories(ctx context.Context, parentID int64) ([]model.Category, error) {
	var (
		categories []model.Category
		err        error
	)
	if parentID == 0 {
		categories, err = q.queryCategories(ctx,
			`SELECT `+categoryColumns+` FROM categories WHERE parent_id IS NULL ORDER BY position, name`)
	} else {
		categories, err = q.queryCategories(ctx,
			`SELECT `+categoryColumns+` FROM categories WHERE parent_id = ? ORDER BY position, name`, parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("list child categories: %w", err)
	}
	return categories, nil
}

// GetCategoryByID retrieves a category by ID.
func (q *Queries) GetCategoryByID(ctx context.Context, id int64) (model.Category, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	return scanCategory(row)
}

// CreateCategoryParams holds the fields for creating a category.
type CreateCategoryParams struct {
	Name      string
	Slug      string
	ParentID  sql.NullInt64
	Position  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateCategory inserts a new category and returns it.
func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (model.Category, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, slug, parent_id, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+categoryColumns,
		arg.Name, arg.Slug, arg.ParentID, arg.Position, arg.CreatedAt, arg.UpdatedAt,
	)
	c, err := scanCategory(row)
	if err != nil {
		return model.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

// UpdateCategoryParams holds the fields for updating a category.
type UpdateCategoryParams struct {
	ID        int64
	Name      string
	Slug      string
	ParentID  sql.NullInt64
	Position  int64
	UpdatedAt time.Time
}

// UpdateCategory modifies an existing category.
func (q *Queries) UpdateCategory(ctx context.Context, arg UpdateCategoryParams) (model.Category, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE categories
		SET name = ?, slug = ?, parent_id = ?, position = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+categoryColumns,
		arg.Name, arg.Slug, arg.ParentID, arg.Position, arg.UpdatedAt, arg.ID,
	)
	c, err := scanCategory(row)
	if err != nil {
		return model.Category{}, fmt.Errorf("update category: %w", err)
	}
	return c, nil
}

// DeleteCategory removes a category. Descendants cascade via the
// parent_id foreign key.
func (q *Queries) DeleteCategory(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

// CategoryListingCount pairs a category with its direct listing count.
type CategoryListingCount struct {
	CategoryID   int64
	ListingCount int64
}

// ListCategoryListingCounts returns categories with at least the given
// number of direct listings, ordered by listing count descending,
// limited to the top N. Used by the index showcase selection.
func (q *Queries) ListCategoryListingCounts(ctx context.Context, limit int64) ([]CategoryListingCount, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.id, COUNT(l.id) AS listing_count
		FROM categories c
		LEFT JOIN listings l ON l.category_id = c.id
		GROUP BY c.id
		ORDER BY listing_count DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list category listing counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []CategoryListingCount
	for rows.Next() {
		var c CategoryListingCount
		if err := rows.Scan(&c.CategoryID, &c.ListingCount); err != nil {
			return nil, fmt.Errorf("scan category listing count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// CountListingsInCategories returns the number of listings whose
// category is any of the given IDs. Used to block deletion of a
// category subtree that still contains listings.
func (q *Queries) CountListingsInCategories(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `SELECT COUNT(*) FROM listings WHERE category_id IN (` + placeholders(len(ids)) + `)`
	var n int64
	if err := q.db.QueryRowContext(ctx, query, int64Args(ids)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings in categories: %w", err)
	}
	return n, nil
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
