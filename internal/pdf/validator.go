package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

var pdfHeader = []byte("%PDF-")

// Validator handles input file checks before any tool touches the content
type Validator struct {
	maxFileSize int64
}

// NewValidator creates a new validator with the specified size limit
func NewValidator(maxFileSize int64) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
	}
}

// ValidateFile reports whether an already resolved path is a readable PDF
func (v *Validator) ValidateFile(path string) *PDFValidateFileResult {
	result := &PDFValidateFileResult{
		Path:  path,
		Valid: false,
	}

	data, err := v.ReadPDF(path)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	pages, err := v.CheckPDF(data)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	result.Valid = true
	result.Pages = pages
	result.Size = int64(len(data))
	return result
}

// ReadPDF reads a file with a .pdf extension, enforcing the size limit
func (v *Validator) ReadPDF(path string) ([]byte, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return nil, pdferrors.NewInputError(fmt.Sprintf("file is not a PDF: %s", path))
	}
	return v.ReadFile(path)
}

// ReadFile reads any input file, enforcing the size limit
func (v *Validator) ReadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, pdferrors.NewInputError(fmt.Sprintf("file does not exist: %s", path))
	}
	if err != nil {
		return nil, pdferrors.NewInputError(fmt.Sprintf("cannot access file: %v", err))
	}

	if info.IsDir() {
		return nil, pdferrors.NewInputError(fmt.Sprintf("path is a directory, not a file: %s", path))
	}
	if info.Size() == 0 {
		return nil, pdferrors.NewInputError(fmt.Sprintf("file is empty: %s", path))
	}
	if info.Size() > v.maxFileSize {
		return nil, pdferrors.NewInputError(fmt.Sprintf("file too large: %d bytes (max: %d bytes)",
			info.Size(), v.maxFileSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pdferrors.NewInputError(fmt.Sprintf("cannot read file: %v", err))
	}
	return data, nil
}

// CheckPDF parses data far enough to count its pages
func (v *Validator) CheckPDF(data []byte) (pages int, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\n\f\r "), pdfHeader) {
		return 0, pdferrors.NewDecodeError(fmt.Errorf("missing %%PDF- header"))
	}

	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = pdferrors.NewDecodeError(fmt.Errorf("invalid PDF file: %v", r))
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, pdferrors.NewDecodeError(fmt.Errorf("invalid PDF file: %w", err))
	}

	pages = r.NumPage()
	if pages == 0 {
		return 0, pdferrors.NewDecodeError(fmt.Errorf("document has no pages"))
	}
	return pages, nil
}

// IsValidPDF performs a quick check to see if a file is a valid PDF
func (v *Validator) IsValidPDF(path string) bool {
	return v.ValidateFile(path).Valid
}
