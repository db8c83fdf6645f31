package pdf

import "github.com/a3tai/mcp-pdf-tools/internal/history"

// FileInfo represents a file written or found by a tool
type FileInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time,omitempty"`
}

// ProgressFunc receives compression progress as an integer percentage
type ProgressFunc func(percent int)

// Request Types

// PDFCompressFileRequest represents a request to compress a PDF towards a target size
type PDFCompressFileRequest struct {
	Path         string `json:"path"`
	TargetSizeKB int    `json:"target_size_kb,omitempty"`
	OutputPath   string `json:"output_path,omitempty"`
}

// PDFCompressBatchRequest represents a request to compress several PDFs with one target
type PDFCompressBatchRequest struct {
	Paths        []string `json:"paths"`
	TargetSizeKB int      `json:"target_size_kb,omitempty"`
}

// PDFMergeFilesRequest represents a request to merge PDFs in order
type PDFMergeFilesRequest struct {
	Paths      []string `json:"paths"`
	OutputPath string   `json:"output_path,omitempty"`
}

// PDFSplitFileRequest represents a request to split a PDF into single pages
type PDFSplitFileRequest struct {
	Path      string `json:"path"`
	OutputDir string `json:"output_dir,omitempty"`
}

// PDFLockFileRequest represents a request to lock a PDF with a password
type PDFLockFileRequest struct {
	Path       string `json:"path"`
	Password   string `json:"password"`
	OutputPath string `json:"output_path,omitempty"`
}

// PDFImagesToPDFRequest represents a request to convert JPEG/PNG images into one PDF
type PDFImagesToPDFRequest struct {
	Paths      []string `json:"paths"`
	OutputPath string   `json:"output_path,omitempty"`
}

// ImageResizeFileRequest represents a request to resize an image to a width
type ImageResizeFileRequest struct {
	Path       string `json:"path"`
	Width      int    `json:"width,omitempty"`
	Quality    int    `json:"quality,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

// ImageCompressFileRequest represents a request to recompress an image
type ImageCompressFileRequest struct {
	Path       string `json:"path"`
	Quality    int    `json:"quality,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
}

// ImageMergeFilesRequest represents a request to stitch images vertically
type ImageMergeFilesRequest struct {
	Paths      []string `json:"paths"`
	OutputPath string   `json:"output_path,omitempty"`
}

// PDFToImagesRequest represents a request to render every page of a PDF to JPEG
type PDFToImagesRequest struct {
	Path      string  `json:"path"`
	OutputDir string  `json:"output_dir,omitempty"`
	Scale     float64 `json:"scale,omitempty"`
	Quality   int     `json:"quality,omitempty"`
}

// PDFValidateFileRequest represents a request to validate a PDF file
type PDFValidateFileRequest struct {
	Path string `json:"path"`
}

// PDFCompressionHistoryRequest represents a request for recent jobs
type PDFCompressionHistoryRequest struct {
	Limit int `json:"limit,omitempty"`
}

// PDFServerInfoRequest represents a request to get server information and capabilities
type PDFServerInfoRequest struct {
	// No parameters needed for server info
}

// Response Types

// PDFCompressFileResult represents the result of a compression job
type PDFCompressFileResult struct {
	Path           string  `json:"path"`
	OutputPath     string  `json:"output_path"`
	OriginalSize   int64   `json:"original_size"`
	CompressedSize int64   `json:"compressed_size"`
	Ratio          int     `json:"ratio"` // percent reduction, negative when the output grew
	TargetSizeKB   int     `json:"target_size_kb"`
	MetTarget      bool    `json:"met_target"`
	Tier           string  `json:"tier"`
	Quality        float64 `json:"quality"`
	Scale          float64 `json:"scale"`
	SourcePages    int     `json:"source_pages"`
	OutputPages    int     `json:"output_pages"`
	SkippedPages   []int   `json:"skipped_pages,omitempty"`
	Passes         int     `json:"passes"`
}

// BatchItem is the outcome of one file in a batch
type BatchItem struct {
	Path   string                 `json:"path"`
	Status string                 `json:"status"` // "completed" or "error"
	Result *PDFCompressFileResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// PDFCompressBatchResult represents the result of a batch compression
type PDFCompressBatchResult struct {
	Items               []BatchItem `json:"items"`
	TotalFiles          int         `json:"total_files"`
	Succeeded           int         `json:"succeeded"`
	Failed              int         `json:"failed"`
	TotalOriginalSize   int64       `json:"total_original_size"`
	TotalCompressedSize int64       `json:"total_compressed_size"`
	OverallRatio        int         `json:"overall_ratio"`
}

// PDFMergeFilesResult represents the result of a merge
type PDFMergeFilesResult struct {
	Inputs     []string `json:"inputs"`
	OutputPath string   `json:"output_path"`
	Pages      int      `json:"pages"`
	Size       int64    `json:"size"`
}

// PDFSplitFileResult represents the result of a split
type PDFSplitFileResult struct {
	Path      string     `json:"path"`
	OutputDir string     `json:"output_dir"`
	Pages     int        `json:"pages"`
	Files     []FileInfo `json:"files"`
}

// PDFLockFileResult represents the result of a lock request. Protected reports whether
// the output is actually encrypted.
type PDFLockFileResult struct {
	Path       string `json:"path"`
	OutputPath string `json:"output_path"`
	Size       int64  `json:"size"`
	Protected  bool   `json:"protected"`
	Message    string `json:"message"`
}

// PDFImagesToPDFResult represents the result of an images-to-PDF conversion
type PDFImagesToPDFResult struct {
	OutputPath string   `json:"output_path"`
	Pages      int      `json:"pages"`
	Size       int64    `json:"size"`
	Skipped    []string `json:"skipped,omitempty"`
}

// ImageFileResult represents the result of an image tool
type ImageFileResult struct {
	Inputs       []string `json:"inputs"`
	OutputPath   string   `json:"output_path"`
	OriginalSize int64    `json:"original_size"`
	Size         int64    `json:"size"`
	Width        int      `json:"width"`
	Height       int      `json:"height"`
	Quality      int      `json:"quality"`
}

// PDFToImagesResult represents the page images written for a PDF
type PDFToImagesResult struct {
	Path      string     `json:"path"`
	OutputDir string     `json:"output_dir"`
	Pages     int        `json:"pages"`
	Scale     float64    `json:"scale"`
	Quality   int        `json:"quality"`
	Files     []FileInfo `json:"files"`
}

// PDFValidateFileResult represents the result of a PDF validation operation
type PDFValidateFileResult struct {
	Valid   bool   `json:"valid"`
	Path    string `json:"path"`
	Pages   int    `json:"pages,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Message string `json:"message,omitempty"`
}

// PDFCompressionHistoryResult represents recent jobs and running totals
type PDFCompressionHistoryResult struct {
	Enabled bool             `json:"enabled"`
	Records []history.Record `json:"records"`
	Totals  history.Totals   `json:"totals"`
}

// PDFServerInfoResult represents server information and usage guidance
type PDFServerInfoResult struct {
	ServerName        string     `json:"server_name"`
	Version           string     `json:"version"`
	DefaultDirectory  string     `json:"default_directory"`
	MaxFileSize       int64      `json:"max_file_size"`
	Renderer          string     `json:"renderer"`
	MaxPasses         int        `json:"max_passes"`
	SkipUnrenderable  bool       `json:"skip_unrenderable"`
	HistoryEnabled    bool       `json:"history_enabled"`
	AvailableTools    []ToolInfo `json:"available_tools"`
	DirectoryContents []FileInfo `json:"directory_contents"`
	UsageGuidance     string     `json:"usage_guidance"`
	SupportedFormats  []string   `json:"supported_formats"`
}

// ToolInfo represents information about an available tool
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
	Parameters  string `json:"parameters"`
}
