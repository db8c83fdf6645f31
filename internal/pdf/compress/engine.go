// Package compress implements target-size PDF compression: every page is rasterized,
// re-encoded as a lossy image at a quality and scale derived from the requested size
// budget, and reassembled into a new document. The output approximates the target; it
// is not guaranteed to meet it.
package compress

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

// Engine runs compression jobs. It holds no per-job state, so one Engine may serve
// concurrent jobs on different documents.
type Engine struct {
	renderer  Renderer
	encoder   Encoder
	assembler Assembler
	options   Options
	logger    *slog.Logger
}

// NewEngine wires the collaborators into an engine
func NewEngine(renderer Renderer, encoder Encoder, assembler Assembler, options Options, logger *slog.Logger) (*Engine, error) {
	if renderer == nil || encoder == nil || assembler == nil {
		return nil, fmt.Errorf("renderer, encoder and assembler are required")
	}
	if options.MaxPasses < 1 {
		options.MaxPasses = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		renderer:  renderer,
		encoder:   encoder,
		assembler: assembler,
		options:   options,
		logger:    logger,
	}, nil
}

// Options returns the engine configuration
func (e *Engine) Options() Options {
	return e.options
}

// Compress produces a new document approximating targetSizeKB. onProgress may be nil.
// Every fatal failure is returned wrapped in pdferrors.ErrCompressionFailed.
func (e *Engine) Compress(ctx context.Context, src []byte, targetSizeKB int, onProgress ProgressFunc) (*Result, error) {
	result, err := e.compress(ctx, src, targetSizeKB, onProgress)
	if err != nil {
		e.logger.Error("compression failed", "target_kb", targetSizeKB, "size", len(src), "error", err)
		return nil, pdferrors.CompressionFailed(err)
	}
	return result, nil
}

func (e *Engine) compress(ctx context.Context, src []byte, targetSizeKB int, onProgress ProgressFunc) (*Result, error) {
	originalSize := len(src)
	if originalSize == 0 {
		return nil, pdferrors.NewInputError("document is empty")
	}
	if targetSizeKB <= 0 {
		return nil, pdferrors.NewInputError(fmt.Sprintf("target size must be positive, got %d KB", targetSizeKB))
	}

	doc, err := e.renderer.Open(src)
	if err != nil {
		return nil, asDecodeError(err)
	}
	defer doc.Close()

	numPages := doc.NumPages()
	if numPages <= 0 {
		return nil, pdferrors.NewDecodeError(fmt.Errorf("document has no pages"))
	}

	params := ComputeParams(targetSizeKB, originalSize)
	e.logger.Debug("compression job",
		"pages", numPages,
		"size", originalSize,
		"target_kb", targetSizeKB,
		"ratio", params.SizeRatio,
		"quality", params.Quality,
		"scale", params.Scale)

	best, err := e.runPass(ctx, doc, numPages, params, onProgress)
	if err != nil {
		return nil, err
	}
	best.Passes = 1

	targetBytes := targetSizeKB * 1024
	for pass := 2; pass <= e.options.MaxPasses && best.EstimatedSize > targetBytes; pass++ {
		params = retryParams(params)
		e.logger.Info("output above target, retrying with lower preset",
			"pass", pass,
			"size", best.EstimatedSize,
			"target_kb", targetSizeKB,
			"quality", params.Quality,
			"scale", params.Scale)

		next, err := e.runPass(ctx, doc, numPages, params, nil)
		if err != nil {
			return nil, err
		}
		next.Passes = pass
		if next.EstimatedSize < best.EstimatedSize {
			best = next
		} else {
			best.Passes = pass
		}
	}

	best.Ratio = ReductionRatio(best.EstimatedSize, originalSize)
	best.Tier = Tier(targetSizeKB, originalSize)
	return best, nil
}

// runPass renders, encodes and appends every page in order, then serializes once.
// Pages run strictly sequentially.
func (e *Engine) runPass(ctx context.Context, doc SourceDocument, numPages int, params Params, onProgress ProgressFunc) (*Result, error) {
	out := e.assembler.NewDocument()
	skipped := pdferrors.NewErrorCollection("")

	for i := 0; i < numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := i + 1

		raster, err := doc.RenderPage(i, params.Scale)
		if err != nil {
			renderErr := asRenderError(page, err)
			if !e.options.SkipUnrenderablePages || !renderErr.Type.IsRecoverable() {
				return nil, renderErr
			}
			e.logger.Warn("skipping page that could not be rendered", "page", page, "error", err)
			skipped.Add(renderErr)
			e.report(onProgress, page, numPages)
			continue
		}

		encoded, err := e.encoder.Encode(raster, params.Quality)
		if err != nil {
			return nil, pdferrors.NewEncodeError(page, err)
		}

		bounds := raster.Bounds()
		if err := out.AddImagePage(encoded, bounds.Dx(), bounds.Dy()); err != nil {
			return nil, pdferrors.NewSaveError(err).WithContext(fmt.Sprintf("page %d", page))
		}

		e.report(onProgress, page, numPages)
	}

	outputPages := out.PageCount()
	if outputPages == 0 {
		return nil, pdferrors.NewRenderError(0, fmt.Errorf("none of %d pages could be rendered", numPages))
	}
	if errs, _ := skipped.Count(); errs > 0 {
		e.logger.Warn("pass finished with skipped pages", "summary", skipped.Summary(), "pages", skipped.Pages())
	}

	data, err := out.Save()
	if err != nil {
		return nil, pdferrors.NewSaveError(err)
	}

	return &Result{
		Data:          data,
		EstimatedSize: len(data),
		Params:        params,
		SourcePages:   numPages,
		OutputPages:   outputPages,
		SkippedPages:  skipped.Pages(),
	}, nil
}

func (e *Engine) report(onProgress ProgressFunc, done, total int) {
	if onProgress != nil {
		onProgress(progressPercent(done, total))
	}
}

func asDecodeError(err error) error {
	if pdferrors.TypeOf(err) != pdferrors.ErrorTypeUnknown {
		return err
	}
	return pdferrors.NewDecodeError(err)
}

// asRenderError keeps a typed error from the renderer and tags it with the page.
// Untyped failures become render errors.
func asRenderError(page int, err error) *pdferrors.PDFError {
	var pdfErr *pdferrors.PDFError
	if stderrors.As(err, &pdfErr) {
		pdfErr.Page = page
		return pdfErr
	}
	return pdferrors.NewRenderError(page, err)
}
