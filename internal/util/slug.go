// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

// Package util provides general-purpose utility functions including
// URL slug generation and filesystem path validation.
package util

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// slugRegex matches non-alphanumeric characters (except hyphens)
	slugRegex = regexp.MustCompile(`[^a-z0-9-]+`)
	// multipleHyphens matches multiple consecutive hyphens
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// reservedSlugs are path segments claimed by the router. A category
// slug that collided with one of these would shadow an application
// route, so the catalog rejects them.
var reservedSlugs = map[string]bool{
	"admin":    true,
	"api":      true,
	"static":   true,
	"login":    true,
	"logout":   true,
	"register": true,
	"listings": true,
	"users":    true,
}

// Slugify converts a display name to a URL-friendly slug. Accented
// characters are decomposed and stripped, remaining non-ASCII runes are
// transliterated rather than dropped, and separator runs collapse to a
// single hyphen. Returns "" for input with no sluggable characters;
// callers must treat an empty result as invalid.
func Slugify(s string) string {
	// Normalize unicode characters (decompose accents)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)

	// Transliterate whatever survives normalization (e.g. ß, Đ) to ASCII
	result = unidecode.Unidecode(result)

	result = strings.ToLower(result)
	result = strings.ReplaceAll(result, " ", "-")
	result = slugRegex.ReplaceAllString(result, "")
	result = multipleHyphens.ReplaceAllString(result, "-")
	result = strings.Trim(result, "-")

	return result
}

// IsValidSlug checks if a string is a valid slug format.
func IsValidSlug(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}

	if s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}

	return !strings.Contains(s, "--")
}

// IsReservedSlug reports whether the slug collides with a routing prefix.
func IsReservedSlug(s string) bool {
	return reservedSlugs[s]
}
