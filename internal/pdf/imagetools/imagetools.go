// Package imagetools resizes, recompresses and stitches raster images. Every result is a
// JPEG; transparent areas are flattened onto white.
package imagetools

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp" // additional input formats
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

const (
	DefaultQuality = 80
	DefaultWidth   = 800
	MinQuality     = 10
	MaxQuality     = 100

	// MergeQuality is the fixed JPEG quality of stitched images
	MergeQuality = 90

	minMergeInputs = 2
)

// Result is a processed image
type Result struct {
	Data   []byte `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int    `json:"size"`
}

// ResizeImage scales data to width pixels, keeping the aspect ratio, and re-encodes it at
// quality percent
func ResizeImage(data []byte, width, quality int) (*Result, error) {
	if width <= 0 {
		return nil, pdferrors.NewInputError(fmt.Sprintf("width must be positive, got %d", width))
	}
	if err := checkQuality(quality); err != nil {
		return nil, err
	}

	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	resized := imaging.Resize(img, width, 0, imaging.Lanczos)
	return encode(resized, quality)
}

// CompressImage re-encodes data at quality percent without changing its dimensions
func CompressImage(data []byte, quality int) (*Result, error) {
	if err := checkQuality(quality); err != nil {
		return nil, err
	}

	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	return encode(img, quality)
}

// MergeImagesVertical stacks images top to bottom on a canvas as wide as the widest
// input. Narrower images are centered horizontally.
func MergeImagesVertical(images [][]byte) (*Result, error) {
	if len(images) < minMergeInputs {
		return nil, pdferrors.NewInputError(fmt.Sprintf("merge needs at least %d images, got %d", minMergeInputs, len(images)))
	}

	decoded := make([]image.Image, len(images))
	maxWidth, totalHeight := 0, 0
	for i, data := range images {
		img, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("image %d: %w", i+1, err)
		}
		decoded[i] = img
		b := img.Bounds()
		maxWidth = max(maxWidth, b.Dx())
		totalHeight += b.Dy()
	}

	canvas := imaging.New(maxWidth, totalHeight, color.White)
	y := 0
	for _, img := range decoded {
		b := img.Bounds()
		canvas = imaging.Overlay(canvas, img, image.Pt((maxWidth-b.Dx())/2, y), 1.0)
		y += b.Dy()
	}
	return encode(canvas, MergeQuality)
}

func checkQuality(quality int) error {
	if quality < MinQuality || quality > MaxQuality {
		return pdferrors.NewInputError(fmt.Sprintf("quality must be between %d and %d, got %d", MinQuality, MaxQuality, quality))
	}
	return nil
}

func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, pdferrors.NewInputError("image is empty")
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, pdferrors.NewDecodeError(err)
	}
	return img, nil
}

func encode(img image.Image, quality int) (*Result, error) {
	b := img.Bounds()
	flat := imaging.New(b.Dx(), b.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, pdferrors.NewEncodeError(0, err)
	}
	return &Result{
		Data:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
		Size:   buf.Len(),
	}, nil
}
