package utils

import (
	"errors"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ScaleToFit scales an image down so its longest side does not exceed
// maxSide, preserving aspect ratio. Images already within the bound are
// returned unchanged; ScaleToFit never upscales.
func ScaleToFit(img image.Image, maxSide int) (image.Image, float64, error) {
	if img == nil {
		return nil, 0, &ImageProcessingError{Operation: "scale", Err: errors.New("input image is nil")}
	}
	if maxSide <= 0 {
		return nil, 0, &ImageProcessingError{Operation: "scale", Err: errors.New("maxSide must be > 0")}
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxSide {
		return img, 1.0, nil
	}

	scale := float64(maxSide) / float64(longest)
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return imaging.Resize(img, nw, nh, imaging.Lanczos), scale, nil
}

// ToGray converts an image to an 8-bit grayscale buffer.
func ToGray(img image.Image) *image.Gray {
	nrgba := imaging.Grayscale(img)
	b := nrgba.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			// Grayscale images carry R==G==B; take the red channel.
			i := nrgba.PixOffset(b.Min.X+x, b.Min.Y+y)
			gray.Pix[y*gray.Stride+x] = nrgba.Pix[i]
		}
	}
	return gray
}

// BoxBlur applies a simple box blur of the given radius to a grayscale image.
// Radius 0 returns the input unchanged.
func BoxBlur(src *image.Gray, radius int) *image.Gray {
	if src == nil || radius <= 0 {
		return src
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum, n int
			for dy := -radius; dy <= radius; dy++ {
				yy := y + dy
				if yy < 0 || yy >= h {
					continue
				}
				for dx := -radius; dx <= radius; dx++ {
					xx := x + dx
					if xx < 0 || xx >= w {
						continue
					}
					sum += int(src.Pix[yy*src.Stride+xx])
					n++
				}
			}
			dst.Pix[y*dst.Stride+x] = uint8(sum / n)
		}
	}
	return dst
}

// GradientMagnitude computes a Sobel gradient-magnitude edge map. Border
// pixels are left at zero.
func GradientMagnitude(src *image.Gray) *image.Gray {
	if src == nil {
		return nil
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w < 3 || h < 3 {
		return dst
	}
	at := func(x, y int) int { return int(src.Pix[y*src.Stride+x]) }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			mag := math.Hypot(float64(gx), float64(gy))
			if mag > 255 {
				mag = 255
			}
			dst.Pix[y*dst.Stride+x] = uint8(mag)
		}
	}
	return dst
}

// CropScaled crops rect (given in analysis coordinates) from the original
// image after scaling coordinates back by 1/scale. The crop is clamped to the
// original bounds.
func CropScaled(orig image.Image, rect image.Rectangle, scale float64) image.Image {
	if scale <= 0 {
		scale = 1.0
	}
	inv := 1.0 / scale
	ob := orig.Bounds()
	x0 := ob.Min.X + int(math.Floor(float64(rect.Min.X)*inv))
	y0 := ob.Min.Y + int(math.Floor(float64(rect.Min.Y)*inv))
	x1 := ob.Min.X + int(math.Ceil(float64(rect.Max.X)*inv))
	y1 := ob.Min.Y + int(math.Ceil(float64(rect.Max.Y)*inv))
	crop := image.Rect(x0, y0, x1, y1).Intersect(ob)
	if crop.Empty() {
		return orig
	}
	return imaging.Crop(orig, crop)
}
