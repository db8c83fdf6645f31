package assemble

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

const minMergeInputs = 2

// Merge concatenates all pages of all documents in input order
func Merge(docs [][]byte) ([]byte, error) {
	if len(docs) < minMergeInputs {
		return nil, pdferrors.NewInputError(fmt.Sprintf("merge needs at least %d documents, got %d", minMergeInputs, len(docs)))
	}

	readers := make([]io.ReadSeeker, len(docs))
	for i, doc := range docs {
		if len(doc) == 0 {
			return nil, pdferrors.NewInputError(fmt.Sprintf("document %d is empty", i+1))
		}
		readers[i] = bytes.NewReader(doc)
	}

	var buf bytes.Buffer
	if err := api.MergeRaw(readers, &buf, false, newConfiguration()); err != nil {
		return nil, pdferrors.NewSaveError(fmt.Errorf("pdfcpu merge: %w", err))
	}
	return buf.Bytes(), nil
}

// Split emits one single-page document per source page, in page order
func Split(doc []byte) ([][]byte, error) {
	n, err := PageCount(doc)
	if err != nil {
		return nil, err
	}

	conf := newConfiguration()
	pages := make([][]byte, 0, n)
	for i := 1; i <= n; i++ {
		var buf bytes.Buffer
		if err := api.Trim(bytes.NewReader(doc), &buf, []string{strconv.Itoa(i)}, conf); err != nil {
			return nil, pdferrors.NewSaveError(fmt.Errorf("pdfcpu trim page %d: %w", i, err))
		}
		pages = append(pages, buf.Bytes())
	}
	return pages, nil
}

// Lock loads and re-saves the document. It does NOT apply password protection: the
// password is only checked for presence and the output is readable by anyone.
func Lock(doc []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, pdferrors.NewInputError("password cannot be empty")
	}

	conf := newConfiguration()
	ctx, err := api.ReadContext(bytes.NewReader(doc), conf)
	if err != nil {
		return nil, pdferrors.NewDecodeError(err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, pdferrors.NewDecodeError(err)
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, pdferrors.NewSaveError(err)
	}
	return buf.Bytes(), nil
}

// ImageKind reports the sniffed MIME type of image data
func ImageKind(data []byte) string {
	return http.DetectContentType(data)
}

// ImagesToPDF builds a document with one full-page image per JPEG or PNG input, each page
// sized to the image's pixel dimensions. Other inputs are skipped; skipped holds their
// 0-based indices.
func ImagesToPDF(images [][]byte) (doc []byte, skipped []int, err error) {
	readers := make([]io.Reader, 0, len(images))
	for i, img := range images {
		switch ImageKind(img) {
		case "image/jpeg", "image/png":
			readers = append(readers, bytes.NewReader(img))
		default:
			skipped = append(skipped, i)
		}
	}
	if len(readers) == 0 {
		return nil, skipped, pdferrors.NewInputError("no JPEG or PNG images to convert")
	}

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, readers, fullPageImport(), newConfiguration()); err != nil {
		return nil, skipped, pdferrors.NewSaveError(fmt.Errorf("pdfcpu import: %w", err))
	}
	return buf.Bytes(), skipped, nil
}
