// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package model

import (
	"database/sql"
	"time"
)

// Event log levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Event log categories.
const (
	EventCategoryAuth     = "auth"
	EventCategoryListing  = "listing"
	EventCategoryCategory = "category"
	EventCategoryUser     = "user"
	EventCategoryFile     = "file"
	EventCategorySystem   = "system"
)

// Event is an audit log entry. WARN and ERROR slog records are mirrored
// here so operational problems (such as failed post-commit file moves)
// stay visible to administrators.
type Event struct {
	ID        int64         `json:"id"`
	Level     string        `json:"level"`
	Category  string        `json:"category"`
	Message   string        `json:"message"`
	UserID    sql.NullInt64 `json:"user_id"`
	Metadata  string        `json:"metadata"`
	CreatedAt time.Time     `json:"created_at"`
}
