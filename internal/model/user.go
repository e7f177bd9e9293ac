// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

// Package model defines the domain entities of the classifieds
// application: User, Category, Listing, ListingImage and Event.
package model

import "time"

// User represents a registered account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose in JSON
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	IsAdmin      bool      `json:"is_admin"`
	IsDirectory  bool      `json:"is_directory"` // Account came from directory auth; no local password
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName returns the display name for the user.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// CanManage reports whether the user may edit or delete the given listing.
func (u *User) CanManage(l *Listing) bool {
	return u.IsAdmin || u.ID == l.UserID
}
