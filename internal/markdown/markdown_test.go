// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderBasicMarkdown(t *testing.T) {
	out := string(Render("Selling my **almost new** bike."))
	assert.Contains(t, out, "<strong>almost new</strong>")
}

func TestRenderHardWraps(t *testing.T) {
	out := string(Render("line one\nline two"))
	assert.Contains(t, out, "<br")
}

func TestRenderStripsScripts(t *testing.T) {
	out := string(Render(`Great deal! <script>alert("xss")</script>`))
	assert.NotContains(t, out, "<script")
	assert.Contains(t, out, "Great deal!")
}

func TestRenderStripsEventHandlers(t *testing.T) {
	out := string(Render(`<img src="x" onerror="alert(1)">`))
	assert.NotContains(t, strings.ToLower(out), "onerror")
}

func TestRenderLinkify(t *testing.T) {
	out := string(Render("Contact me at https://example.com/contact"))
	assert.Contains(t, out, `<a href="https://example.com/contact"`)
}
