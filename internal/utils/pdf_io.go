package utils

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ExtractPDFRaster extracts the largest raster embedded in the first page of
// a PDF document. Scanned documents are stored as one full-page image, so the
// largest image on page one is the page itself.
func ExtractPDFRaster(data []byte) (image.Image, error) {
	tempDir, err := os.MkdirTemp("", "docflow-pdf-*")
	if err != nil {
		return nil, &ImageProcessingError{Operation: "pdf-extract", Err: err}
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	inFile := filepath.Join(tempDir, "upload.pdf")
	if err := os.WriteFile(inFile, data, 0o600); err != nil {
		return nil, &ImageProcessingError{Operation: "pdf-extract", Err: err}
	}

	outDir := filepath.Join(tempDir, "images")
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return nil, &ImageProcessingError{Operation: "pdf-extract", Err: err}
	}
	if err := api.ExtractImagesFile(inFile, outDir, []string{"1"}, nil); err != nil {
		return nil, &ImageProcessingError{Operation: "pdf-extract", Err: err}
	}

	best, err := largestExtractedImage(outDir)
	if err != nil {
		return nil, &ImageProcessingError{Operation: "pdf-extract", Err: err}
	}
	return best, nil
}

// largestExtractedImage walks a pdfcpu extraction directory and returns the
// image with the largest pixel area.
func largestExtractedImage(dir string) (image.Image, error) {
	var best image.Image
	bestArea := 0

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if _, perr := parsePageFromFilename(info.Name()); perr != nil {
			return nil
		}
		data, rerr := os.ReadFile(path) //nolint:gosec // G304: path comes from a private temp dir
		if rerr != nil {
			return nil
		}
		img, _, derr := DecodeRaster(data)
		if derr != nil {
			return nil
		}
		b := img.Bounds()
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = img, area
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, errors.New("no raster found in PDF page")
	}
	return best, nil
}

// parsePageFromFilename extracts the page number from a pdfcpu extracted
// filename (page_<num>_image_<idx>.<ext>).
func parsePageFromFilename(filename string) (int, error) {
	if !strings.HasPrefix(filename, "page_") {
		return 0, errors.New("not a page file")
	}
	parts := strings.Split(filename, "_")
	if len(parts) < 2 {
		return 0, errors.New("invalid filename format")
	}
	pageNum, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, errors.New("invalid page number")
	}
	return pageNum, nil
}
