package packager

import (
	"bytes"
	"image"
	"image/color"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noisyImage produces an image that compresses poorly, forcing the
// compression loop to do real work.
func noisyImage(w, h int) image.Image {
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

func flatImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 240, G: 240, B: 240, A: 255})
		}
	}
	return img
}

func TestBuildFilename(t *testing.T) {
	at := time.Date(2025, 6, 1, 14, 30, 5, 0, time.UTC)
	tests := []struct {
		name    string
		patient string
		docType string
		suffix  string
		want    string
	}{
		{"plain", "Ali Veli", "prescription", "", "Ali_Veli_prescription_20250601_143005.pdf"},
		{"turkish letters", "Gülşah Çağlar", "medical-report", "", "Gulsah_Caglar_medical_report_20250601_143005.pdf"},
		{"verify suffix", "Ayşe Demir", "prescription", SuffixVerify, "Ayse_Demir_prescription_VERIFY_20250601_143005.pdf"},
		{"unknown patient", "", "other", SuffixUnmatched, "unknown_other_UNMATCHED_20250601_143005.pdf"},
		{"hostile characters", "a/b\\c?", "x", "", "a_b_c_x_20250601_143005.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildFilename(tt.patient, tt.docType, tt.suffix, at)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPackage_SmallImageFitsFirstAttempt(t *testing.T) {
	p := New(DefaultConfig(), nil)
	res, err := p.Package(flatImage(800, 1100), "test.pdf")
	require.NoError(t, err)
	assert.False(t, res.Placeholder)
	assert.Equal(t, 1, res.Attempts)
	assert.LessOrEqual(t, len(res.PDF), DefaultSizeBudget)
	assert.True(t, bytes.HasPrefix(res.PDF, []byte("%PDF")))
}

// A phone-camera scale page that compresses poorly must still land under the
// budget: retries cap the raster at maxRetrySide and restart from
// retryQuality.
func TestPackage_OversizePageStaysUnderBudget(t *testing.T) {
	p := New(DefaultConfig(), nil)
	res, err := p.Package(noisyImage(2600, 3400), "big.pdf")
	require.NoError(t, err)
	assert.False(t, res.Placeholder)
	assert.Greater(t, res.Attempts, 1)
	assert.LessOrEqual(t, len(res.PDF), DefaultSizeBudget)
}

// Successive retry attempts must shrink: quality and dimensions both go down
// every round.
func TestPackage_CompressionMonotone(t *testing.T) {
	img := noisyImage(1200, 1600)
	quality := retryQuality
	current := img
	prev := int(^uint(0) >> 1)
	for attempt := 0; attempt < 4; attempt++ {
		jpg, err := encodeJPEG(current, quality)
		require.NoError(t, err)
		assert.Less(t, len(jpg), prev)
		prev = len(jpg)
		quality = int(float64(quality) * qualityFactor)
		b := current.Bounds()
		current = flatOrResize(current, int(float64(b.Dx())*dimensionFactor), int(float64(b.Dy())*dimensionFactor))
	}
}

func flatOrResize(img image.Image, w, h int) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	b := img.Bounds()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*b.Dx()/w
			sy := b.Min.Y + y*b.Dy()/h
			out.Set(x, y, img.At(sx, sy))
		}
	}
	return out
}

func TestPackage_NilImageYieldsPlaceholder(t *testing.T) {
	p := New(DefaultConfig(), nil)
	res, err := p.Package(nil, "unknown_other_UNMATCHED_20250601_143005.pdf")
	require.NoError(t, err)
	assert.True(t, res.Placeholder)
	assert.True(t, bytes.HasPrefix(res.PDF, []byte("%PDF")))
	assert.Contains(t, string(res.PDF), "manual review required")
	assert.Less(t, len(res.PDF), 4*1024)
}

func TestPlaceholderPDF_EscapesSpecials(t *testing.T) {
	pdf, err := placeholderPDF("weird_(name)_\\file.pdf")
	require.NoError(t, err)
	assert.Contains(t, string(pdf), `weird_\(name\)_\\file.pdf`)
	assert.Contains(t, string(pdf), "%%EOF")
}

func TestEscapePDFString(t *testing.T) {
	assert.Equal(t, `a\(b\)c`, escapePDFString("a(b)c"))
	assert.Equal(t, "ad", escapePDFString("adı")) // non-ASCII dropped
}
