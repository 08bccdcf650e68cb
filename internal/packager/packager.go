// Package packager turns a rectified page image into a single-page archive
// PDF under a fixed size budget, compressing progressively until it fits.
package packager

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// DefaultSizeBudget is the maximum archive PDF size accepted by the
// downstream document system.
const DefaultSizeBudget = 300 * 1024

// Compression loop tuning. The first attempt keeps the page at full size and
// high quality; when that overshoots the budget the raster is capped at
// maxRetrySide and re-encoded from retryQuality, then each further attempt
// shrinks quality and dimensions so output size decreases monotonically.
const (
	initialQuality  = 85
	retryQuality    = 30
	maxRetrySide    = 1200
	qualityFactor   = 0.8
	minQuality      = 10
	dimensionFactor = 0.9
	maxAttempts     = 5

	// rough upper bound of pdfcpu's structural overhead around a single
	// embedded JPEG
	pdfOverhead = 24 * 1024
)

// Config controls packaging.
type Config struct {
	SizeBudget int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{SizeBudget: DefaultSizeBudget}
}

// Result is a packaged document.
type Result struct {
	PDF      []byte `json:"-"`
	Filename string `json:"filename"`
	// Placeholder is set when no usable page image existed and a text-only
	// stand-in PDF was generated instead.
	Placeholder bool `json:"placeholder"`
	// Attempts counts compression rounds used to meet the size budget.
	Attempts int `json:"attempts"`
}

// Packager builds archive PDFs.
type Packager struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a packager. A nil logger falls back to slog.Default.
func New(cfg Config, logger *slog.Logger) *Packager {
	if cfg.SizeBudget <= 0 {
		cfg.SizeBudget = DefaultSizeBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Packager{cfg: cfg, logger: logger}
}

// Package wraps the page image in a single-page PDF no larger than the size
// budget. A nil image produces a placeholder PDF describing the document
// instead, so packaging always yields an archivable artifact.
func (p *Packager) Package(img image.Image, filename string) (*Result, error) {
	if img == nil {
		pdf, err := placeholderPDF(filename)
		if err != nil {
			return nil, fmt.Errorf("building placeholder pdf: %w", err)
		}
		p.logger.Warn("packaging placeholder document", "filename", filename)
		return &Result{PDF: pdf, Filename: filename, Placeholder: true}, nil
	}

	quality := initialQuality
	current := img
	var lastSize int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		jpg, err := encodeJPEG(current, quality)
		if err != nil {
			return nil, fmt.Errorf("encoding page image: %w", err)
		}
		if len(jpg)+pdfOverhead <= p.cfg.SizeBudget || attempt == maxAttempts {
			pdf, err := imageToPDF(jpg)
			if err != nil {
				return nil, fmt.Errorf("assembling pdf: %w", err)
			}
			if len(pdf) <= p.cfg.SizeBudget || attempt == maxAttempts {
				if len(pdf) > p.cfg.SizeBudget {
					p.logger.Warn("packaged document exceeds size budget after final attempt",
						"filename", filename, "size", len(pdf), "budget", p.cfg.SizeBudget)
				}
				p.logger.Debug("document packaged",
					"filename", filename, "size", len(pdf), "attempts", attempt)
				return &Result{PDF: pdf, Filename: filename, Attempts: attempt}, nil
			}
		}
		lastSize = len(jpg)

		if attempt == 1 {
			quality = retryQuality
			current = imaging.Fit(current, maxRetrySide, maxRetrySide, imaging.Lanczos)
		} else {
			quality = int(float64(quality) * qualityFactor)
			if quality < minQuality {
				quality = minQuality
			}
			b := current.Bounds()
			w := int(float64(b.Dx()) * dimensionFactor)
			h := int(float64(b.Dy()) * dimensionFactor)
			if w < 1 || h < 1 {
				break
			}
			current = imaging.Resize(current, w, h, imaging.Lanczos)
		}
		p.logger.Debug("shrinking page image to meet size budget",
			"attempt", attempt, "jpegSize", lastSize, "nextQuality", quality, "nextWidth", current.Bounds().Dx())
	}
	return nil, fmt.Errorf("could not compress document under %d bytes", p.cfg.SizeBudget)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// imageToPDF places the JPEG on an A4 page via pdfcpu. pdfcpu's import API
// is file based, so the bytes take a round trip through a temp directory.
func imageToPDF(jpg []byte) ([]byte, error) {
	tempDir, err := os.MkdirTemp("", "docflow-package-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	imgPath := filepath.Join(tempDir, "page.jpg")
	if err := os.WriteFile(imgPath, jpg, 0o600); err != nil {
		return nil, fmt.Errorf("writing temp image: %w", err)
	}
	pdfPath := filepath.Join(tempDir, "page.pdf")

	imp, err := api.Import("form:A4, pos:c, scale:1.0 rel", types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("parsing import parameters: %w", err)
	}
	if err := api.ImportImagesFile([]string{imgPath}, pdfPath, imp, nil); err != nil {
		return nil, fmt.Errorf("importing image: %w", err)
	}
	return os.ReadFile(pdfPath)
}
