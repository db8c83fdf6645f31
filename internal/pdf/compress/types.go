package compress

import "image"

// ProgressFunc receives the integer percentage of pages finished
type ProgressFunc func(percent int)

// Renderer decodes source documents for page rasterization
type Renderer interface {
	Open(src []byte) (SourceDocument, error)
}

// SourceDocument is a decoded, read-only source document
type SourceDocument interface {
	NumPages() int
	// RenderPage rasterizes the 0-based page at the given geometric scale
	// (1.0 renders one pixel per PDF point).
	RenderPage(index int, scale float64) (image.Image, error)
	Close() error
}

// Encoder turns a raster into lossy image bytes at quality 0.0-1.0
type Encoder interface {
	Encode(img image.Image, quality float64) ([]byte, error)
}

// Assembler creates output documents
type Assembler interface {
	NewDocument() OutputDocument
}

// OutputDocument is built page by page and serialized exactly once
type OutputDocument interface {
	// AddImagePage appends a page of width x height points fully covered by the encoded image
	AddImagePage(encoded []byte, width, height int) error
	PageCount() int
	Save() ([]byte, error)
}

// Params are the encoding parameters of one job
type Params struct {
	TargetSizeKB      int     `json:"target_size_kb"`
	OriginalSizeBytes int     `json:"original_size_bytes"`
	SizeRatio         float64 `json:"size_ratio"`
	Quality           float64 `json:"quality"`
	Scale             float64 `json:"scale"`
}

// Result is the outcome of a compression job
type Result struct {
	Data          []byte `json:"-"`
	EstimatedSize int    `json:"estimated_size"`
	Ratio         int    `json:"ratio"` // percentage reduction, negative when the output grew

	Params       Params `json:"params"`
	SourcePages  int    `json:"source_pages"`
	OutputPages  int    `json:"output_pages"`
	SkippedPages []int  `json:"skipped_pages,omitempty"` // 1-based
	Passes       int    `json:"passes"`
	Tier         string `json:"tier"`
}

// Options tune an Engine
type Options struct {
	// SkipUnrenderablePages drops pages whose raster cannot be produced instead of
	// aborting the job. Off by default.
	SkipUnrenderablePages bool

	// MaxPasses bounds the number of full page loops. 1 keeps the single-pass heuristic;
	// higher values re-encode with a lower preset while the output exceeds the target.
	MaxPasses int
}

// DefaultOptions returns the single-pass, fail-fast configuration
func DefaultOptions() Options {
	return Options{
		SkipUnrenderablePages: false,
		MaxPasses:             1,
	}
}
