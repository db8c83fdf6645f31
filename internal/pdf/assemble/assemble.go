// Package assemble creates and rearranges PDF documents with pdfcpu: image-page documents
// for the compression engine, plus merge, split, lock and images-to-PDF.
package assemble

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for page image checks
	_ "image/png"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

var disableConfigDir sync.Once

// newConfiguration returns a relaxed pdfcpu configuration that never touches the user's
// config directory
func newConfiguration() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// fullPageImport places each image on its own page sized to the image
func fullPageImport() *pdfcpu.Import {
	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full
	return imp
}

// Assembler creates image-page output documents for the compression engine
type Assembler struct{}

// NewAssembler creates an Assembler
func NewAssembler() *Assembler {
	return &Assembler{}
}

// NewDocument starts an empty output document
func (a *Assembler) NewDocument() compress.OutputDocument {
	return &ImageDocument{}
}

// ImageDocument collects full-bleed image pages and serializes them once on Save
type ImageDocument struct {
	mu    sync.Mutex
	pages [][]byte
	count int
	saved bool
}

// AddImagePage appends a page of width x height points covered by the encoded image.
// The image's pixel size must equal the page size.
func (d *ImageDocument) AddImagePage(encoded []byte, width, height int) error {
	if len(encoded) == 0 {
		return fmt.Errorf("page image is empty")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid page size %dx%d", width, height)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("unreadable page image: %w", err)
	}
	if cfg.Width != width || cfg.Height != height {
		return fmt.Errorf("page image is %dx%d, page is %dx%d", cfg.Width, cfg.Height, width, height)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.saved {
		return fmt.Errorf("document already saved")
	}
	d.pages = append(d.pages, encoded)
	d.count++
	return nil
}

// PageCount returns the number of pages added. It stays valid after Save.
func (d *ImageDocument) PageCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Save serializes the document. It may be called only once.
func (d *ImageDocument) Save() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.saved {
		return nil, fmt.Errorf("document already saved")
	}
	if d.count == 0 {
		return nil, fmt.Errorf("document has no pages")
	}
	d.saved = true

	readers := make([]io.Reader, len(d.pages))
	for i, page := range d.pages {
		readers[i] = bytes.NewReader(page)
	}

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, readers, fullPageImport(), newConfiguration()); err != nil {
		return nil, fmt.Errorf("pdfcpu import: %w", err)
	}
	d.pages = nil
	return buf.Bytes(), nil
}

// PageCount returns the number of pages in a PDF
func PageCount(doc []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(doc), newConfiguration())
	if err != nil {
		return 0, pdferrors.NewDecodeError(err)
	}
	return n, nil
}
