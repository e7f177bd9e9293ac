// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package model

import (
	"database/sql"
	"time"
)

// Listing is an item posted in the classifieds.
type Listing struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	UserID      int64     `json:"user_id"`
	CategoryID  int64     `json:"category_id"`
	CreatedAt   time.Time `json:"created_at"`

	// Virtual fields populated by explicit queries.
	Images    []ListingImage `json:"images,omitempty"`
	OwnerName string         `json:"owner_name,omitempty"`
}

// ListingImage is a stored image belonging to a listing. Filename is a
// server-generated unique token, never the user-supplied name. A NULL
// thumbnail filename means the thumbnail still needs backfilling.
type ListingImage struct {
	ID                int64          `json:"id"`
	Filename          string         `json:"filename"`
	ThumbnailFilename sql.NullString `json:"thumbnail_filename"`
	ListingID         int64          `json:"listing_id"`
}

// HasThumbnail reports whether a thumbnail has been generated.
func (i *ListingImage) HasThumbnail() bool {
	return i.ThumbnailFilename.Valid && i.ThumbnailFilename.String != ""
}
