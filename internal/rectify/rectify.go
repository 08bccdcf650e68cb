// Package rectify detects the quadrilateral boundary of a photographed
// document page and produces a corrected, cropped raster. Detection failures
// degrade to a uniform margin trim; Apply never fails for "no boundary".
package rectify

import (
	"errors"
	"image"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"
	"github.com/xear-health/docflow/internal/utils"
)

// Result is the output of a rectification run.
type Result struct {
	Image            image.Image
	Width            int
	Height           int
	BoundaryDetected bool
	Quad             [4]image.Point // original-resolution corners, valid when BoundaryDetected
	Strategy         string         // winning strategy name, "" for the margin-trim fallback
}

// Rectifier runs boundary strategies over an edge map and crops the best
// candidate.
type Rectifier struct {
	cfg        Config
	strategies []BoundaryStrategy
}

// New creates a rectifier with the default strategy set.
func New(cfg Config) *Rectifier {
	return &Rectifier{cfg: cfg, strategies: DefaultStrategies()}
}

// NewWithStrategies creates a rectifier with a custom strategy set.
func NewWithStrategies(cfg Config, strategies []BoundaryStrategy) *Rectifier {
	return &Rectifier{cfg: cfg, strategies: strategies}
}

// Apply detects the document boundary and returns a cropped image. When no
// strategy produces a confident candidate, a uniform margin trim is applied
// instead. The output is never larger than the input.
func (r *Rectifier) Apply(img image.Image) (*Result, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}

	scaled, scale, err := utils.ScaleToFit(img, r.cfg.MaxAnalysisSide)
	if err != nil {
		return r.marginTrim(img), nil
	}

	gray := utils.ToGray(scaled)
	blurred := utils.BoxBlur(gray, r.cfg.BlurRadius)
	edges := utils.GradientMagnitude(blurred)

	var bestRect image.Rectangle
	var bestScore float64
	var bestName string
	found := false
	for _, s := range r.strategies {
		rect, score, ok := s.Detect(edges, r.cfg)
		if !ok {
			continue
		}
		slog.Debug("Boundary candidate", "strategy", s.Name(), "rect", rect, "score", score)
		if !found || score > bestScore {
			bestRect, bestScore, bestName = rect, score, s.Name()
			found = true
		}
	}

	if !found {
		slog.Debug("No confident boundary, applying margin trim")
		return r.marginTrim(img), nil
	}

	cropped := utils.CropScaled(img, bestRect, scale)
	cb := cropped.Bounds()
	res := &Result{
		Image:            cropped,
		Width:            cb.Dx(),
		Height:           cb.Dy(),
		BoundaryDetected: true,
		Quad:             scaleQuad(QuadFromRect(bestRect), 1.0/scale),
		Strategy:         bestName,
	}
	slog.Debug("Boundary detected", "strategy", bestName, "score", bestScore,
		"width", res.Width, "height", res.Height)
	return res, nil
}

// marginTrim removes a uniform margin from all four sides as a smart-crop
// fallback.
func (r *Rectifier) marginTrim(img image.Image) *Result {
	b := img.Bounds()
	mx := int(float64(b.Dx()) * r.cfg.MarginTrimRatio)
	my := int(float64(b.Dy()) * r.cfg.MarginTrimRatio)
	rect := image.Rect(b.Min.X+mx, b.Min.Y+my, b.Max.X-mx, b.Max.Y-my)
	out := img
	if !rect.Empty() && rect.In(b) {
		out = imaging.Crop(img, rect)
	}
	ob := out.Bounds()
	return &Result{
		Image:            out,
		Width:            ob.Dx(),
		Height:           ob.Dy(),
		BoundaryDetected: false,
	}
}

func scaleQuad(quad [4]image.Point, factor float64) [4]image.Point {
	var out [4]image.Point
	for i, p := range quad {
		out[i] = image.Point{
			X: int(math.Round(float64(p.X) * factor)),
			Y: int(math.Round(float64(p.Y) * factor)),
		}
	}
	return out
}
