// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package model

import (
	"database/sql"
	"time"
)

// Category is a node in the hierarchical category tree. Roots have a
// NULL ParentID. (name, parent) and (slug, parent) are unique among
// siblings.
type Category struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Slug      string        `json:"slug"`
	ParentID  sql.NullInt64 `json:"parent_id"`
	Position  int64         `json:"position"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	// Virtual fields populated by tree builders, not stored.
	Children     []Category `json:"children,omitempty"`
	Depth        int        `json:"depth"`
	ListingCount int64      `json:"listing_count"`
}

// IsRoot reports whether the category has no parent.
func (c *Category) IsRoot() bool {
	return !c.ParentID.Valid
}
