package rectify

// Config holds configuration for document boundary detection and cropping.
type Config struct {
	MaxAnalysisSide int     // longest side of the analysis raster in pixels
	BlurRadius      int     // box blur radius applied before edge detection
	EdgeThreshold   uint8   // gradient magnitude above which a pixel counts as an edge
	MarginTrimRatio float64 // uniform margin trimmed when no boundary is found (0-1)
	MinAreaRatio    float64 // minimum candidate area as a fraction of the frame
	MaxAreaRatio    float64 // maximum candidate area as a fraction of the frame
}

// DefaultConfig returns sensible defaults for scanned/photographed documents.
func DefaultConfig() Config {
	return Config{
		MaxAnalysisSide: 1200,
		BlurRadius:      1,
		EdgeThreshold:   40,
		MarginTrimRatio: 0.05,
		MinAreaRatio:    0.20,
		MaxAreaRatio:    0.95,
	}
}
