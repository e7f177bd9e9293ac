// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package listing

import (
	"errors"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation errors surfaced to forms as field messages.
var (
	ErrTitleRequired      = errors.New("title must contain at least one word")
	ErrTitleTooLong       = errors.New("title cannot exceed 128 characters")
	ErrDescriptionTooFew  = errors.New("description must contain at least four words")
	ErrDescriptionNoPunct = errors.New("description must read as sentences ending in punctuation")
	ErrPriceNegative      = errors.New("price must be zero or positive")
	ErrPricePrecision     = errors.New("price cannot have more than two decimal places")
	ErrCategoryRequired   = errors.New("a category must be selected")
)

const (
	minDescriptionWords = 4
	maxTitleLength      = 128
)

// sentence-ending punctuation accepted at the end of the description.
var sentenceEnders = map[rune]bool{'.': true, '!': true, '?': true}

// ValidateTitle requires at least one word of at most 128 characters
// total.
func ValidateTitle(title string) error {
	if len(strings.Fields(title)) < 1 {
		return ErrTitleRequired
	}
	if utf8.RuneCountInString(strings.TrimSpace(title)) > maxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

// ValidateDescription requires at least four words and a final
// sentence-ending punctuation mark.
func ValidateDescription(description string) error {
	if len(strings.Fields(description)) < minDescriptionWords {
		return ErrDescriptionTooFew
	}

	trimmed := strings.TrimRightFunc(description, unicode.IsSpace)
	runes := []rune(trimmed)
	if len(runes) == 0 || !sentenceEnders[runes[len(runes)-1]] {
		return ErrDescriptionNoPunct
	}
	return nil
}

// ValidatePrice requires a non-negative amount with at most two decimal
// places.
func ValidatePrice(price float64) error {
	if price < 0 {
		return ErrPriceNegative
	}
	// Comparing against the rounded cent value tolerates float noise
	// from form parsing.
	cents := price * 100
	if math.Abs(cents-math.Round(cents)) > 1e-6 {
		return ErrPricePrecision
	}
	return nil
}

// ValidateInput checks every field of a listing form and returns the
// first failure per field, keyed by field name.
func ValidateInput(in Input) map[string]error {
	fields := make(map[string]error)
	if err := ValidateTitle(in.Title); err != nil {
		fields["title"] = err
	}
	if err := ValidateDescription(in.Description); err != nil {
		fields["description"] = err
	}
	if err := ValidatePrice(in.Price); err != nil {
		fields["price"] = err
	}
	if in.CategoryID == 0 {
		fields["category"] = ErrCategoryRequired
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
