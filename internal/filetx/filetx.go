// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

// Package filetx implements the file relocation primitive behind the
// listing asset transaction protocol: move a set of image files into a
// staging directory, then either restore them (database commit failed)
// or delete them (commit succeeded).
//
// Stage must succeed completely or leave the filesystem untouched.
// Restore and Cleanup are best-effort: they run while an
// earlier failure is being reported, and a secondary failure during
// rollback must never mask the primary one, so they log and continue.
package filetx

import (
	"fmt"
	"log/slog"
	"os"
)

// Move describes one image's relocation: the permanent path, its
// staging destination, and the same pair for the thumbnail. Thumbnail
// paths may be empty when the image has no thumbnail yet.
type Move struct {
	Path            string
	StagedPath      string
	ThumbPath       string
	StagedThumbPath string
}

// staged records a single completed rename so it can be undone.
type staged struct {
	from, to string
}

// Stage moves each existing file of each Move to its staging location.
// Files absent from their original location are skipped, not errors. If
// any rename fails, every rename already performed in this call is
// undone before the error is returned, so callers never observe a
// partially-staged set. On success it returns the subset of moves for
// which at least one file was relocated.
func Stage(moves []Move) ([]Move, error) {
	var done []staged
	var performed []Move

	rollback := func() {
		// Undo in reverse order, best-effort.
		for i := len(done) - 1; i >= 0; i-- {
			if err := os.Rename(done[i].to, done[i].from); err != nil {
				slog.Warn("failed to undo staging move", "from", done[i].to, "to", done[i].from, "error", err)
			}
		}
	}

	for _, m := range moves {
		var touched bool

		if m.Path != "" && fileExists(m.Path) {
			if err := os.Rename(m.Path, m.StagedPath); err != nil {
				rollback()
				return nil, fmt.Errorf("staging %s: %w", m.Path, err)
			}
			done = append(done, staged{from: m.Path, to: m.StagedPath})
			touched = true
		}

		if m.ThumbPath != "" && fileExists(m.ThumbPath) {
			if err := os.Rename(m.ThumbPath, m.StagedThumbPath); err != nil {
				rollback()
				return nil, fmt.Errorf("staging thumbnail %s: %w", m.ThumbPath, err)
			}
			done = append(done, staged{from: m.ThumbPath, to: m.StagedThumbPath})
			touched = true
		}

		if touched {
			performed = append(performed, m)
		}
	}

	return performed, nil
}

// Restore moves every staged file back to its original location.
// Best-effort: per-file failures are logged and the remaining files are
// still attempted.
func Restore(staging []Move) {
	for _, m := range staging {
		if m.StagedPath != "" && fileExists(m.StagedPath) {
			if err := os.Rename(m.StagedPath, m.Path); err != nil {
				slog.Warn("failed to restore staged file", "staged", m.StagedPath, "original", m.Path, "error", err)
			}
		}
		if m.StagedThumbPath != "" && fileExists(m.StagedThumbPath) {
			if err := os.Rename(m.StagedThumbPath, m.ThumbPath); err != nil {
				slog.Warn("failed to restore staged thumbnail", "staged", m.StagedThumbPath, "original", m.ThumbPath, "error", err)
			}
		}
	}
}

// Cleanup deletes every staged file. Best-effort: per-file failures are
// logged, never raised.
func Cleanup(staging []Move) {
	for _, m := range staging {
		removeIfExists(m.StagedPath)
		removeIfExists(m.StagedThumbPath)
	}
}

func removeIfExists(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove staged file", "path", path, "error", err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
