// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package util

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	got, err := SanitizeFilename("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, "passwd", got)

	got, err = SanitizeFilename("photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "photo.jpg", got)

	for _, bad := range []string{"", ".", ".."} {
		_, err := SanitizeFilename(bad)
		assert.Error(t, err, bad)
	}
}

func TestValidatePathWithinBase(t *testing.T) {
	base := t.TempDir()

	assert.NoError(t, ValidatePathWithinBase(base, filepath.Join(base, "file.jpg")))
	assert.NoError(t, ValidatePathWithinBase(base, base))
	assert.NoError(t, ValidatePathWithinBase(base, filepath.Join(base, "sub", "file.jpg")))

	assert.Error(t, ValidatePathWithinBase(base, filepath.Join(base, "..", "escape.jpg")))
	// A sibling directory sharing the base as a name prefix must not pass.
	assert.Error(t, ValidatePathWithinBase(base, base+"-sibling/file.jpg"))
}

func TestSafeJoinPath(t *testing.T) {
	base := t.TempDir()

	got, err := SafeJoinPath(base, "a", "b.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "a", "b.jpg"), got)

	_, err = SafeJoinPath(base, "..", "outside.jpg")
	assert.Error(t, err)

	_, err = SafeJoinPath(base, "../"+filepath.Base(base)+"-evil", "x")
	assert.Error(t, err)
}
