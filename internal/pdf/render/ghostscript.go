package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/assemble"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

// ExecCommand is exec.Command by default, but can be overridden in tests.
var ExecCommand = exec.Command

// GhostscriptRenderer rasterizes pages by running the Ghostscript binary once per page
type GhostscriptRenderer struct {
	binary string
	logger *slog.Logger
}

// NewGhostscriptRenderer creates a renderer that shells out to binary
func NewGhostscriptRenderer(binary string, logger *slog.Logger) *GhostscriptRenderer {
	return &GhostscriptRenderer{
		binary: binary,
		logger: logger,
	}
}

// Open counts pages and spools the document to a temp file for Ghostscript
func (r *GhostscriptRenderer) Open(src []byte) (compress.SourceDocument, error) {
	pages, err := assemble.PageCount(src)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "render_*.pdf")
	if err != nil {
		return nil, pdferrors.NewDecodeError(fmt.Errorf("create temp file: %w", err))
	}
	if _, err := f.Write(src); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, pdferrors.NewDecodeError(fmt.Errorf("spool document: %w", err))
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, pdferrors.NewDecodeError(fmt.Errorf("spool document: %w", err))
	}

	return &ghostscriptDocument{
		binary: r.binary,
		path:   f.Name(),
		pages:  pages,
		logger: r.logger,
	}, nil
}

type ghostscriptDocument struct {
	binary string
	path   string
	pages  int
	logger *slog.Logger
}

func (d *ghostscriptDocument) NumPages() int {
	return d.pages
}

func (d *ghostscriptDocument) RenderPage(index int, scale float64) (image.Image, error) {
	page := index + 1
	if index < 0 || index >= d.pages {
		return nil, pdferrors.NewRenderError(page, fmt.Errorf("page index %d out of range", index))
	}

	args := []string{
		"-q",
		"-dSAFER",
		"-dBATCH",
		"-dNOPAUSE",
		"-sDEVICE=png16m",
		"-dTextAlphaBits=4",
		"-dGraphicsAlphaBits=4",
		"-r" + strconv.FormatFloat(dpiForScale(scale), 'f', -1, 64),
		"-dFirstPage=" + strconv.Itoa(page),
		"-dLastPage=" + strconv.Itoa(page),
		"-sOutputFile=%stdout%",
		d.path,
	}

	var stdout, stderr bytes.Buffer
	cmd := ExecCommand(d.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, pdferrors.NewRenderError(page, fmt.Errorf("ghostscript failed: %w, output: %s", err, stderr.String()))
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, pdferrors.NewRenderError(page, fmt.Errorf("decode ghostscript output: %w", err))
	}

	d.logger.Debug("rendered page", "page", page, "scale", scale, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, nil
}

func (d *ghostscriptDocument) Close() error {
	return os.Remove(d.path)
}
