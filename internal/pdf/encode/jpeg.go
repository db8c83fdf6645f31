// Package encode turns page rasters into lossy image bytes.
package encode

import (
	"bytes"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

const (
	minJPEGQuality = 1
	maxJPEGQuality = 100
)

// JPEGEncoder encodes rasters as baseline JPEG
type JPEGEncoder struct{}

// NewJPEGEncoder creates a JPEG encoder
func NewJPEGEncoder() *JPEGEncoder {
	return &JPEGEncoder{}
}

// Encode writes img as JPEG. quality is a 0.0-1.0 factor mapped onto the 1-100 JPEG scale.
func (e *JPEGEncoder) Encode(img image.Image, quality float64) ([]byte, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("cannot encode an empty raster")
	}
	if math.IsNaN(quality) || quality < 0 || quality > 1 {
		return nil, fmt.Errorf("quality must be within [0, 1], got %v", quality)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality(quality))); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// JPEGQuality maps a 0.0-1.0 factor onto the JPEG 1-100 scale
func JPEGQuality(quality float64) int {
	q := int(math.Round(quality * maxJPEGQuality))
	return min(maxJPEGQuality, max(minJPEGQuality, q))
}
