package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrCompressionFailed is the caller-facing wrapper for every fatal compression failure
var ErrCompressionFailed = stderrors.New("compression failed")

// compressionFailedNotice is the single message shown to end users for compression failures
const compressionFailedNotice = "Compression failed. This might happen with complex or corrupted PDFs."

// PDFError describes a failure in one stage of a document operation
type PDFError struct {
	Type      ErrorType `json:"type"`
	Message   string    `json:"message"`
	Context   string    `json:"context,omitempty"`
	Page      int       `json:"page,omitempty"` // 1-based, 0 when not page specific
	FilePath  string    `json:"file_path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

// ErrorType represents the stage that failed
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeInput
	ErrorTypeDecode
	ErrorTypeRender
	ErrorTypeEncode
	ErrorTypeSave
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity int

const (
	SeverityWarning ErrorSeverity = iota
	SeverityError
	SeverityFatal
)

// Error implements the error interface
func (e *PDFError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type.String(), e.Message)
	if e.Page > 0 {
		msg = fmt.Sprintf("[%s] page %d: %s", e.Type.String(), e.Page, e.Message)
	}
	if e.Context != "" {
		msg += ": " + e.Context
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *PDFError) Unwrap() error {
	return e.Err
}

// Is matches another *PDFError by type, so errors.Is(err, &PDFError{Type: ErrorTypeRender}) works
func (e *PDFError) Is(target error) bool {
	t, ok := target.(*PDFError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeInput:
		return "INVALID_INPUT"
	case ErrorTypeDecode:
		return "DECODE_FAILED"
	case ErrorTypeRender:
		return "RENDER_FAILED"
	case ErrorTypeEncode:
		return "ENCODE_FAILED"
	case ErrorTypeSave:
		return "SAVE_FAILED"
	default:
		return "UNKNOWN"
	}
}

// GetSeverity returns the severity level for a given error type
func (et ErrorType) GetSeverity() ErrorSeverity {
	switch et {
	case ErrorTypeRender:
		return SeverityError
	case ErrorTypeInput:
		return SeverityWarning
	default:
		return SeverityFatal
	}
}

// IsRecoverable reports whether a job may continue past this error type.
// Only a page that could not be rendered can be skipped.
func (et ErrorType) IsRecoverable() bool {
	return et == ErrorTypeRender
}

func newError(errorType ErrorType, message string, err error) *PDFError {
	return &PDFError{
		Type:      errorType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// NewInputError reports a caller mistake (bad argument, missing file, wrong format)
func NewInputError(message string) *PDFError {
	return newError(ErrorTypeInput, message, nil)
}

// NewDecodeError reports an unreadable or corrupt source document
func NewDecodeError(err error) *PDFError {
	return newError(ErrorTypeDecode, "cannot decode document", err)
}

// NewRenderError reports that a page raster could not be produced
func NewRenderError(page int, err error) *PDFError {
	e := newError(ErrorTypeRender, "cannot render page", err)
	e.Page = page
	return e
}

// NewEncodeError reports that a raster could not be encoded
func NewEncodeError(page int, err error) *PDFError {
	e := newError(ErrorTypeEncode, "cannot encode page image", err)
	e.Page = page
	return e
}

// NewSaveError reports that an output document could not be assembled or serialized
func NewSaveError(err error) *PDFError {
	return newError(ErrorTypeSave, "cannot save document", err)
}

// WithContext adds context to an existing PDFError
func (e *PDFError) WithContext(context string) *PDFError {
	e.Context = context
	return e
}

// GetSeverity returns the severity of this specific error
func (e *PDFError) GetSeverity() ErrorSeverity {
	return e.Type.GetSeverity()
}

// TypeOf returns the ErrorType of the first PDFError in err's chain
func TypeOf(err error) ErrorType {
	var pdfErr *PDFError
	if stderrors.As(err, &pdfErr) {
		return pdfErr.Type
	}
	return ErrorTypeUnknown
}

// IsRender reports whether err carries a render failure
func IsRender(err error) bool {
	return TypeOf(err) == ErrorTypeRender
}

// CompressionFailed wraps a stage error so callers can match both the sentinel and the cause
func CompressionFailed(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, ErrCompressionFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCompressionFailed, err)
}

// UserMessage returns the notice shown to end users. Compression failures collapse to one
// generic message; other errors keep their text.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if stderrors.Is(err, ErrCompressionFailed) {
		return compressionFailedNotice
	}
	return err.Error()
}

// ErrorCollection gathers the non-fatal problems of a job
type ErrorCollection struct {
	Errors   []*PDFError `json:"errors"`
	Warnings []*PDFError `json:"warnings"`
	FilePath string      `json:"file_path,omitempty"`
}

// NewErrorCollection creates a new error collection
func NewErrorCollection(filePath string) *ErrorCollection {
	return &ErrorCollection{
		Errors:   make([]*PDFError, 0),
		Warnings: make([]*PDFError, 0),
		FilePath: filePath,
	}
}

// Add adds an error to the appropriate collection based on severity
func (ec *ErrorCollection) Add(err *PDFError) {
	if err.FilePath == "" && ec.FilePath != "" {
		err.FilePath = ec.FilePath
	}

	if err.GetSeverity() == SeverityWarning {
		ec.Warnings = append(ec.Warnings, err)
	} else {
		ec.Errors = append(ec.Errors, err)
	}
}

// Pages returns the page numbers of all collected errors in insertion order
func (ec *ErrorCollection) Pages() []int {
	pages := make([]int, 0, len(ec.Errors))
	for _, err := range ec.Errors {
		if err.Page > 0 {
			pages = append(pages, err.Page)
		}
	}
	return pages
}

// Count returns the total number of errors and warnings
func (ec *ErrorCollection) Count() (errors, warnings int) {
	return len(ec.Errors), len(ec.Warnings)
}

// Summary returns a text summary of all errors and warnings
func (ec *ErrorCollection) Summary() string {
	errorCount, warningCount := ec.Count()
	if errorCount == 0 && warningCount == 0 {
		return "No errors or warnings"
	}
	return fmt.Sprintf("Found %d error(s) and %d warning(s)", errorCount, warningCount)
}
