package render

import (
	"fmt"
	"image"
	"log/slog"

	fitz "github.com/gen2brain/go-fitz"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

// FitzDocument is the subset of *fitz.Document used here
type FitzDocument interface {
	NumPage() int
	ImageDPI(pageNumber int, dpi float64) (*image.RGBA, error)
	Close() error
}

var openFitzDocument = func(src []byte) (FitzDocument, error) {
	return fitz.NewFromMemory(src)
}

// MuPDFRenderer rasterizes pages in-process with MuPDF
type MuPDFRenderer struct {
	logger *slog.Logger
}

// NewMuPDFRenderer creates a MuPDF backed renderer
func NewMuPDFRenderer(logger *slog.Logger) *MuPDFRenderer {
	return &MuPDFRenderer{logger: logger}
}

// Open decodes the document held in src
func (r *MuPDFRenderer) Open(src []byte) (compress.SourceDocument, error) {
	doc, err := openFitzDocument(src)
	if err != nil {
		return nil, pdferrors.NewDecodeError(fmt.Errorf("mupdf: %w", err))
	}
	return &muPDFDocument{doc: doc, logger: r.logger}, nil
}

type muPDFDocument struct {
	doc    FitzDocument
	logger *slog.Logger
}

func (d *muPDFDocument) NumPages() int {
	return d.doc.NumPage()
}

func (d *muPDFDocument) RenderPage(index int, scale float64) (image.Image, error) {
	if index < 0 || index >= d.doc.NumPage() {
		return nil, pdferrors.NewRenderError(index+1, fmt.Errorf("page index %d out of range", index))
	}

	img, err := d.doc.ImageDPI(index, dpiForScale(scale))
	if err != nil {
		return nil, pdferrors.NewRenderError(index+1, fmt.Errorf("mupdf: %w", err))
	}
	if img == nil || img.Bounds().Empty() {
		return nil, pdferrors.NewRenderError(index+1, fmt.Errorf("mupdf returned an empty raster"))
	}

	d.logger.Debug("rendered page", "page", index+1, "scale", scale, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, nil
}

func (d *muPDFDocument) Close() error {
	return d.doc.Close()
}

// SetDocumentOpenerForTest replaces the MuPDF opener and returns a restore function
func SetDocumentOpenerForTest(opener func([]byte) (FitzDocument, error)) func() {
	original := openFitzDocument
	openFitzDocument = opener
	return func() {
		openFitzDocument = original
	}
}
