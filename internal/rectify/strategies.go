package rectify

import (
	"image"
	"math"
)

// BoundaryStrategy locates a document boundary candidate in an edge map and
// scores it. Strategies work in analysis-raster coordinates; the rectifier
// scales the winner back to the original resolution.
type BoundaryStrategy interface {
	Name() string
	Detect(edges *image.Gray, cfg Config) (image.Rectangle, float64, bool)
}

// DefaultStrategies returns the boundary strategies in evaluation order.
func DefaultStrategies() []BoundaryStrategy {
	return []BoundaryStrategy{
		&DensityScan{DensityRatio: 0.08, MinAspect: 0.5, MaxAspect: 2.5},
		&ScoredScan{DensityRatio: 0.10, MinAspect: 0.7, MaxAspect: 1.5, MaxAngleDeviation: 15},
	}
}

// DensityScan scans inward from each image border and stops at the first
// row/column whose edge-pixel density exceeds DensityRatio of the
// perpendicular extent.
type DensityScan struct {
	DensityRatio float64
	MinAspect    float64
	MaxAspect    float64
}

func (s *DensityScan) Name() string { return "density-scan" }

func (s *DensityScan) Detect(edges *image.Gray, cfg Config) (image.Rectangle, float64, bool) {
	rect, ok := scanBorders(edges, cfg.EdgeThreshold, s.DensityRatio)
	if !ok {
		return image.Rectangle{}, 0, false
	}
	b := edges.Bounds()
	areaRatio := rectAreaRatio(rect, b)
	if areaRatio < cfg.MinAreaRatio || areaRatio > cfg.MaxAreaRatio {
		return image.Rectangle{}, 0, false
	}
	aspect := float64(rect.Dx()) / float64(rect.Dy())
	if aspect < s.MinAspect || aspect > s.MaxAspect {
		return image.Rectangle{}, 0, false
	}
	// Coverage is the only quality signal this strategy has.
	return rect, areaRatio, true
}

// ScoredScan uses a stricter density ratio and aspect gate, and scores the
// candidate by area coverage, aspect-ratio proximity to a portrait page, and
// corner rectangularity.
type ScoredScan struct {
	DensityRatio      float64
	MinAspect         float64
	MaxAspect         float64
	MaxAngleDeviation float64 // degrees from 90 a corner may deviate and still score
}

func (s *ScoredScan) Name() string { return "scored-scan" }

func (s *ScoredScan) Detect(edges *image.Gray, cfg Config) (image.Rectangle, float64, bool) {
	rect, ok := scanBorders(edges, cfg.EdgeThreshold, s.DensityRatio)
	if !ok {
		return image.Rectangle{}, 0, false
	}
	b := edges.Bounds()
	areaRatio := rectAreaRatio(rect, b)
	if areaRatio < cfg.MinAreaRatio || areaRatio > cfg.MaxAreaRatio {
		return image.Rectangle{}, 0, false
	}
	aspect := float64(rect.Dx()) / float64(rect.Dy())
	if aspect < s.MinAspect || aspect > s.MaxAspect {
		return image.Rectangle{}, 0, false
	}

	// Aspect term peaks at 1.0 in the middle of the allowed band.
	mid := (s.MinAspect + s.MaxAspect) / 2
	halfBand := (s.MaxAspect - s.MinAspect) / 2
	aspectScore := 1.0 - math.Abs(aspect-mid)/halfBand
	if aspectScore < 0 {
		aspectScore = 0
	}

	angleScore := rectangularityScore(QuadFromRect(rect), s.MaxAngleDeviation)

	score := 0.5*areaRatio + 0.2*aspectScore + 0.3*angleScore
	return rect, score, true
}

// scanBorders locates the first row/column from each border whose edge-pixel
// count exceeds ratio times the perpendicular extent.
func scanBorders(edges *image.Gray, threshold uint8, ratio float64) (image.Rectangle, bool) {
	b := edges.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 4 || h < 4 {
		return image.Rectangle{}, false
	}

	rowCounts := make([]int, h)
	colCounts := make([]int, w)
	for y := 0; y < h; y++ {
		row := y * edges.Stride
		for x := 0; x < w; x++ {
			if edges.Pix[row+x] >= threshold {
				rowCounts[y]++
				colCounts[x]++
			}
		}
	}

	rowNeed := int(ratio * float64(w))
	colNeed := int(ratio * float64(h))

	top := scanForward(rowCounts, rowNeed)
	if top < 0 {
		return image.Rectangle{}, false
	}
	bottom := scanBackward(rowCounts, rowNeed)
	left := scanForward(colCounts, colNeed)
	if left < 0 {
		return image.Rectangle{}, false
	}
	right := scanBackward(colCounts, colNeed)

	if right <= left || bottom <= top {
		return image.Rectangle{}, false
	}
	return image.Rect(left, top, right+1, bottom+1), true
}

func scanForward(counts []int, need int) int {
	for i, c := range counts {
		if c > need {
			return i
		}
	}
	return -1
}

func scanBackward(counts []int, need int) int {
	for i := len(counts) - 1; i >= 0; i-- {
		if counts[i] > need {
			return i
		}
	}
	return -1
}

func rectAreaRatio(rect, frame image.Rectangle) float64 {
	fa := frame.Dx() * frame.Dy()
	if fa == 0 {
		return 0
	}
	return float64(rect.Dx()*rect.Dy()) / float64(fa)
}

// QuadFromRect expands an axis-aligned rectangle into its four corners in
// clockwise order starting top-left.
func QuadFromRect(r image.Rectangle) [4]image.Point {
	return [4]image.Point{
		{X: r.Min.X, Y: r.Min.Y},
		{X: r.Max.X, Y: r.Min.Y},
		{X: r.Max.X, Y: r.Max.Y},
		{X: r.Min.X, Y: r.Max.Y},
	}
}

// rectangularityScore returns the fraction of quad corners whose interior
// angle is within maxDev degrees of 90.
func rectangularityScore(quad [4]image.Point, maxDev float64) float64 {
	good := 0
	for i := 0; i < 4; i++ {
		prev := quad[(i+3)%4]
		cur := quad[i]
		next := quad[(i+1)%4]
		a := cornerAngle(prev, cur, next)
		if math.Abs(a-90) <= maxDev {
			good++
		}
	}
	return float64(good) / 4.0
}

// cornerAngle returns the interior angle at cur formed by prev and next, in
// degrees.
func cornerAngle(prev, cur, next image.Point) float64 {
	v1x, v1y := float64(prev.X-cur.X), float64(prev.Y-cur.Y)
	v2x, v2y := float64(next.X-cur.X), float64(next.Y-cur.Y)
	n1 := math.Hypot(v1x, v1y)
	n2 := math.Hypot(v2x, v2y)
	if n1 == 0 || n2 == 0 {
		return 0
	}
	cos := (v1x*v2x + v1y*v2y) / (n1 * n2)
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}
