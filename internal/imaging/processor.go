// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

// Package imaging handles listing photo uploads and thumbnail
// generation using pure Go libraries.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/webp" // WebP decoder

	"github.com/ferabreu/classifieds-go/internal/util"
)

// ScratchThumbPrefix prefixes thumbnail files while they sit in the
// scratch directory, which holds originals and thumbnails side by side.
const ScratchThumbPrefix = "thumb-"

// Processor saves uploaded listing photos and renders their thumbnails.
type Processor struct {
	uploadDir    string
	thumbnailDir string
	tempDir      string
	thumbWidth   int
	thumbHeight  int
}

// NewProcessor creates an image processor. Directories are created on
// demand by the save operations.
func NewProcessor(uploadDir, thumbnailDir, tempDir string, thumbWidth, thumbHeight int) *Processor {
	return &Processor{
		uploadDir:    uploadDir,
		thumbnailDir: thumbnailDir,
		tempDir:      tempDir,
		thumbWidth:   thumbWidth,
		thumbHeight:  thumbHeight,
	}
}

// UploadDir returns the directory holding committed originals.
func (p *Processor) UploadDir() string { return p.uploadDir }

// ThumbnailDir returns the directory holding committed thumbnails.
func (p *Processor) ThumbnailDir() string { return p.thumbnailDir }

// TempDir returns the staging directory for in-flight relocations.
func (p *Processor) TempDir() string { return p.tempDir }

// SaveUpload validates an uploaded image and writes it to the scratch
// directory under a fresh random name that keeps the original
// extension. Nothing reaches permanent storage here; committed files
// are moved out of scratch afterwards. Returns the stored filename.
func (p *Processor) SaveUpload(r io.Reader, originalName string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading upload: %w", err)
	}

	format := detectFormat(data)
	if format == "" {
		return "", fmt.Errorf("unsupported image format")
	}

	// The stored name never derives from user input beyond the
	// extension, which is normalized from the detected format.
	filename := uuid.NewString() + formatExtension(format)

	path, err := util.SafeJoinPath(p.tempDir, filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("creating scratch directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("saving upload: %w", err)
	}
	return filename, nil
}

// CreateScratchThumbnail renders the thumbnail for an original still in
// the scratch directory, writing it alongside under a ScratchThumbPrefix
// name so a same-named JPEG original cannot collide with it. Returns
// the name the thumbnail takes once moved into the thumbnail directory.
func (p *Processor) CreateScratchThumbnail(filename string) (string, error) {
	srcPath, err := util.SafeJoinPath(p.tempDir, filename)
	if err != nil {
		return "", err
	}
	thumbName := thumbnailName(filename)
	dstPath, err := util.SafeJoinPath(p.tempDir, ScratchThumbPrefix+thumbName)
	if err != nil {
		return "", err
	}
	if err := p.renderThumbnail(srcPath, dstPath); err != nil {
		return "", err
	}
	return thumbName, nil
}

// CreateThumbnail renders a thumbnail for a committed original straight
// into the thumbnail directory. Used by the backfill sweep, which works
// on permanent storage only.
func (p *Processor) CreateThumbnail(filename string) (string, error) {
	srcPath, err := util.SafeJoinPath(p.uploadDir, filename)
	if err != nil {
		return "", err
	}
	thumbName := thumbnailName(filename)
	dstPath, err := util.SafeJoinPath(p.thumbnailDir, thumbName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p.thumbnailDir, 0o755); err != nil {
		return "", fmt.Errorf("creating thumbnail directory: %w", err)
	}
	if err := p.renderThumbnail(srcPath, dstPath); err != nil {
		return "", err
	}
	return thumbName, nil
}

// renderThumbnail decodes the original, auto-rotates it per its EXIF
// orientation, scales it to fit, and pastes it centered onto a white
// canvas of exactly the configured dimensions. The result is stored as
// JPEG regardless of source format.
func (p *Processor) renderThumbnail(srcPath, dstPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("reading original: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding original: %w", err)
	}
	img = applyOrientation(img, readExifOrientation(bytes.NewReader(data)))

	fitted := imaging.Fit(img, p.thumbWidth, p.thumbHeight, imaging.Lanczos)
	canvas := imaging.New(p.thumbWidth, p.thumbHeight, color.White)
	thumb := imaging.PasteCenter(canvas, fitted)

	if err := imaging.Save(thumb, dstPath, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("saving thumbnail: %w", err)
	}
	return nil
}

// thumbnailName maps an original filename to its thumbnail name, which
// always carries a .jpg extension.
func thumbnailName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".jpg"
}

// IsSupportedUpload reports whether the data looks like an image format
// the processor can handle.
func IsSupportedUpload(data []byte) bool {
	return detectFormat(data) != ""
}

// readExifOrientation reads the EXIF orientation tag from image data.
// Returns 1 (normal) if orientation cannot be determined.
func readExifOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return orientation
}

// applyOrientation applies the EXIF orientation transformation.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.FlipH(imaging.Rotate270(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.FlipH(imaging.Rotate90(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// detectFormat detects the image format from raw bytes.
func detectFormat(data []byte) string {
	contentType := http.DetectContentType(data)
	// TIFF is rejected outright (CVE-2023-36308 in disintegration/imaging).
	if strings.Contains(contentType, "tiff") {
		return ""
	}
	switch {
	case strings.Contains(contentType, "jpeg"):
		return "jpeg"
	case strings.Contains(contentType, "png"):
		return "png"
	case strings.Contains(contentType, "gif"):
		return "gif"
	case strings.Contains(contentType, "webp"):
		return "webp"
	default:
		return ""
	}
}

func formatExtension(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png":
		return ".png"
	case "gif":
		return ".gif"
	case "webp":
		return ".webp"
	default:
		return ".bin"
	}
}
