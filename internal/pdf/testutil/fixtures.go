// Package testutil builds small fixture documents and images for tests.
package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Image returns a w x h image filled with a gradient
func Image(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	return img
}

// JPEG encodes a w x h gradient as JPEG
func JPEG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Image(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg fixture: %v", err)
	}
	return buf.Bytes()
}

// PNG encodes a w x h gradient as PNG
func PNG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, Image(w, h)); err != nil {
		t.Fatalf("encode png fixture: %v", err)
	}
	return buf.Bytes()
}

// PageWidth is the width in points of fixture page i (0-based) for a document starting at first
func PageWidth(first, i int) int {
	return 100 + 10*(first+i)
}

// PageHeight is the height in points of every fixture page
const PageHeight = 60

// PDF builds a document of n image pages. Page i is PageWidth(first, i) points wide so tests
// can tell pages apart after merging or splitting.
func PDF(t testing.TB, n, first int) []byte {
	t.Helper()

	readers := make([]io.Reader, n)
	for i := 0; i < n; i++ {
		readers[i] = bytes.NewReader(JPEG(t, PageWidth(first, i), PageHeight))
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, readers, imp, config()); err != nil {
		t.Fatalf("build pdf fixture: %v", err)
	}
	return buf.Bytes()
}

// PageWidths returns the width in points of every page of doc
func PageWidths(t testing.TB, doc []byte) []int {
	t.Helper()

	dims, err := api.PageDims(bytes.NewReader(doc), config())
	if err != nil {
		t.Fatalf("read page dims: %v", err)
	}
	widths := make([]int, len(dims))
	for i, d := range dims {
		widths[i] = int(d.Width + 0.5)
	}
	return widths
}

func config() *model.Configuration {
	api.DisableConfigDir()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}
