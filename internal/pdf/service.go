package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/a3tai/mcp-pdf-tools/internal/history"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/assemble"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/encode"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/imagetools"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/render"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/security"
)

// Tool names, also used to label history records
const (
	ToolCompressFile    = "pdf_compress_file"
	ToolCompressBatch   = "pdf_compress_batch"
	ToolMergeFiles      = "pdf_merge_files"
	ToolSplitFile       = "pdf_split_file"
	ToolLockFile        = "pdf_lock_file"
	ToolImagesToPDF     = "pdf_images_to_pdf"
	ToolToImages        = "pdf_to_images"
	ToolImageResize     = "image_resize_file"
	ToolImageCompress   = "image_compress_file"
	ToolImageMerge      = "image_merge_files"
	ToolValidateFile    = "pdf_validate_file"
	ToolHistory         = "pdf_compression_history"
	ToolServerInfo      = "pdf_server_info"
	defaultBatchWorkers = 4
)

// ServiceConfig holds everything the service needs to build its components
type ServiceConfig struct {
	MaxFileSize int64
	Directory   string

	Renderer        render.Config
	Compress        compress.Options
	DefaultTargetKB int // 0 suggests a target from the input size
	Workers         int

	// History is optional; nil disables job recording
	History *history.Store
	Logger  *slog.Logger
}

// Service handles PDF and image file operations by orchestrating the tool components
type Service struct {
	maxFileSize     int64
	validator       *Validator
	pathValidator   *security.PathValidator
	renderer        compress.Renderer
	encoder         compress.Encoder
	engine          *compress.Engine
	backend         render.Backend
	defaultTargetKB int
	workers         int
	history         *history.Store
	serverInfo      *PDFServerInfo
	logger          *slog.Logger
}

// NewService creates a new service with all components
func NewService(cfg ServiceConfig) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pathValidator, err := security.NewPathValidator(cfg.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to create path validator: %w", err)
	}

	rcfg := cfg.Renderer
	if rcfg.Logger == nil {
		rcfg.Logger = logger
	}
	renderer, err := render.New(rcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	encoder := encode.NewJPEGEncoder()
	engine, err := compress.NewEngine(renderer, encoder, assemble.NewAssembler(), cfg.Compress, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create compression engine: %w", err)
	}

	backend := rcfg.Backend
	if backend == "" {
		backend = render.BackendMuPDF
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultBatchWorkers
	}

	s := &Service{
		maxFileSize:     cfg.MaxFileSize,
		validator:       NewValidator(cfg.MaxFileSize),
		pathValidator:   pathValidator,
		renderer:        renderer,
		encoder:         encoder,
		engine:          engine,
		backend:         backend,
		defaultTargetKB: cfg.DefaultTargetKB,
		workers:         workers,
		history:         cfg.History,
		logger:          logger,
	}
	s.serverInfo = NewPDFServerInfo(s)
	return s, nil
}

// PDFCompressFile compresses one PDF towards the requested size. onProgress may be nil.
func (s *Service) PDFCompressFile(ctx context.Context, req PDFCompressFileRequest, onProgress ProgressFunc) (*PDFCompressFileResult, error) {
	return s.compressFile(ctx, ToolCompressFile, req, onProgress)
}

func (s *Service) compressFile(ctx context.Context, tool string, req PDFCompressFileRequest, onProgress ProgressFunc) (*PDFCompressFileResult, error) {
	if req.TargetSizeKB < 0 {
		return nil, pdferrors.NewInputError(fmt.Sprintf("target_size_kb must be positive, got %d", req.TargetSizeKB))
	}

	inputPath, err := s.pathValidator.ResolveInput(req.Path)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(inputPath), CompressedName(inputPath))
	}
	outputPath, err = s.resolveOutput(outputPath, inputPath)
	if err != nil {
		return nil, err
	}

	data, err := s.validator.ReadPDF(inputPath)
	if err != nil {
		return nil, err
	}
	target := s.targetFor(req.TargetSizeKB, len(data))

	if _, err := s.validator.CheckPDF(data); err != nil {
		s.logger.Warn("source rejected before compression", "path", inputPath, "error", err)
		err = pdferrors.CompressionFailed(err)
		s.record(ctx, &history.Record{
			Tool:         tool,
			Input:        inputPath,
			Status:       history.StatusFailed,
			Error:        err.Error(),
			OriginalSize: int64(len(data)),
			TargetSizeKB: target,
		})
		return nil, err
	}

	var progress compress.ProgressFunc
	if onProgress != nil {
		progress = compress.ProgressFunc(onProgress)
	}

	res, err := s.engine.Compress(ctx, data, target, progress)
	if err != nil {
		s.record(ctx, &history.Record{
			Tool:         tool,
			Input:        inputPath,
			Status:       history.StatusFailed,
			Error:        err.Error(),
			OriginalSize: int64(len(data)),
			TargetSizeKB: target,
		})
		return nil, err
	}

	if _, err := s.write(outputPath, res.Data); err != nil {
		return nil, err
	}

	result := &PDFCompressFileResult{
		Path:           inputPath,
		OutputPath:     outputPath,
		OriginalSize:   int64(len(data)),
		CompressedSize: int64(res.EstimatedSize),
		Ratio:          res.Ratio,
		TargetSizeKB:   target,
		MetTarget:      res.EstimatedSize <= target*1024,
		Tier:           res.Tier,
		Quality:        res.Params.Quality,
		Scale:          res.Params.Scale,
		SourcePages:    res.SourcePages,
		OutputPages:    res.OutputPages,
		SkippedPages:   res.SkippedPages,
		Passes:         res.Passes,
	}

	rec := &history.Record{
		Tool:         tool,
		Input:        inputPath,
		Output:       outputPath,
		OriginalSize: result.OriginalSize,
		OutputSize:   result.CompressedSize,
		Ratio:        float64(result.Ratio),
		TargetSizeKB: target,
		Quality:      result.Quality,
		Scale:        result.Scale,
		Tier:         result.Tier,
		SourcePages:  result.SourcePages,
		OutputPages:  result.OutputPages,
		Passes:       result.Passes,
	}
	if err := rec.SetSkippedPages(result.SkippedPages); err != nil {
		s.logger.Warn("failed to record skipped pages", "path", inputPath, "error", err)
	}
	s.record(ctx, rec)

	s.logger.Info("compressed file", "path", inputPath, "output", outputPath,
		"original", result.OriginalSize, "compressed", result.CompressedSize, "ratio", result.Ratio)
	return result, nil
}

// PDFMergeFiles concatenates the pages of every input in order
func (s *Service) PDFMergeFiles(ctx context.Context, req PDFMergeFilesRequest) (*PDFMergeFilesResult, error) {
	inputs, docs, err := s.readPDFs(req.Paths)
	if err != nil {
		return nil, err
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(inputs[0]), MergedPDFName)
	}
	outputPath, err = s.resolveOutput(outputPath, inputs...)
	if err != nil {
		return nil, err
	}

	merged, err := assemble.Merge(docs)
	if err != nil {
		return nil, err
	}
	pages, err := assemble.PageCount(merged)
	if err != nil {
		return nil, err
	}

	info, err := s.write(outputPath, merged)
	if err != nil {
		return nil, err
	}

	s.record(ctx, &history.Record{
		Tool:         ToolMergeFiles,
		Input:        strings.Join(inputs, ","),
		Output:       outputPath,
		OriginalSize: totalSize(docs),
		OutputSize:   info.Size,
		OutputPages:  pages,
	})

	return &PDFMergeFilesResult{
		Inputs:     inputs,
		OutputPath: outputPath,
		Pages:      pages,
		Size:       info.Size,
	}, nil
}

// PDFSplitFile writes one single-page PDF per source page
func (s *Service) PDFSplitFile(ctx context.Context, req PDFSplitFileRequest) (*PDFSplitFileResult, error) {
	inputPath, err := s.pathValidator.ResolveInput(req.Path)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	outputDir, err := s.outputDir(req.OutputDir, inputPath)
	if err != nil {
		return nil, err
	}

	data, err := s.validator.ReadPDF(inputPath)
	if err != nil {
		return nil, err
	}

	pages, err := assemble.Split(data)
	if err != nil {
		return nil, err
	}

	files, err := s.writeAll(outputDir, pages, SplitPageName, inputPath)
	if err != nil {
		return nil, err
	}

	s.record(ctx, &history.Record{
		Tool:         ToolSplitFile,
		Input:        inputPath,
		Output:       outputDir,
		OriginalSize: int64(len(data)),
		OutputSize:   totalFileSize(files),
		SourcePages:  len(pages),
		OutputPages:  len(pages),
	})

	return &PDFSplitFileResult{
		Path:      inputPath,
		OutputDir: outputDir,
		Pages:     len(pages),
		Files:     files,
	}, nil
}

// PDFLockFile re-saves a PDF after checking the password is present. The output is not
// encrypted and the result says so.
func (s *Service) PDFLockFile(ctx context.Context, req PDFLockFileRequest) (*PDFLockFileResult, error) {
	inputPath, err := s.pathValidator.ResolveInput(req.Path)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(inputPath), LockedPDFName)
	}
	outputPath, err = s.resolveOutput(outputPath, inputPath)
	if err != nil {
		return nil, err
	}

	data, err := s.validator.ReadPDF(inputPath)
	if err != nil {
		return nil, err
	}

	out, err := assemble.Lock(data, req.Password)
	if err != nil {
		return nil, err
	}

	info, err := s.write(outputPath, out)
	if err != nil {
		return nil, err
	}

	s.record(ctx, &history.Record{
		Tool:         ToolLockFile,
		Input:        inputPath,
		Output:       outputPath,
		OriginalSize: int64(len(data)),
		OutputSize:   info.Size,
	})

	return &PDFLockFileResult{
		Path:       inputPath,
		OutputPath: outputPath,
		Size:       info.Size,
		Protected:  false,
		Message:    "document re-saved without encryption; password protection is not applied",
	}, nil
}

// PDFImagesToPDF converts JPEG and PNG images into one PDF, one page per image
func (s *Service) PDFImagesToPDF(ctx context.Context, req PDFImagesToPDFRequest) (*PDFImagesToPDFResult, error) {
	inputs, images, err := s.readFiles(req.Paths)
	if err != nil {
		return nil, err
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(inputs[0]), ImagesPDFName)
	}
	outputPath, err = s.resolveOutput(outputPath, inputs...)
	if err != nil {
		return nil, err
	}

	doc, skipped, err := assemble.ImagesToPDF(images)
	if err != nil {
		return nil, err
	}

	info, err := s.write(outputPath, doc)
	if err != nil {
		return nil, err
	}

	skippedPaths := make([]string, 0, len(skipped))
	for _, i := range skipped {
		skippedPaths = append(skippedPaths, inputs[i])
		s.logger.Warn("skipped unsupported image", "path", inputs[i])
	}

	pages := len(images) - len(skipped)
	s.record(ctx, &history.Record{
		Tool:         ToolImagesToPDF,
		Input:        strings.Join(inputs, ","),
		Output:       outputPath,
		OriginalSize: totalSize(images),
		OutputSize:   info.Size,
		OutputPages:  pages,
	})

	return &PDFImagesToPDFResult{
		OutputPath: outputPath,
		Pages:      pages,
		Size:       info.Size,
		Skipped:    skippedPaths,
	}, nil
}

// ImageResizeFile scales an image to a width, keeping its aspect ratio
func (s *Service) ImageResizeFile(ctx context.Context, req ImageResizeFileRequest) (*ImageFileResult, error) {
	width := req.Width
	if width == 0 {
		width = imagetools.DefaultWidth
	}
	quality := req.Quality
	if quality == 0 {
		quality = imagetools.DefaultQuality
	}

	return s.processImage(ctx, ToolImageResize, req.Path, req.OutputPath, quality, func(data []byte) (*imagetools.Result, error) {
		return imagetools.ResizeImage(data, width, quality)
	})
}

// ImageCompressFile re-encodes an image at a lower quality, keeping its dimensions
func (s *Service) ImageCompressFile(ctx context.Context, req ImageCompressFileRequest) (*ImageFileResult, error) {
	quality := req.Quality
	if quality == 0 {
		quality = imagetools.DefaultQuality
	}

	return s.processImage(ctx, ToolImageCompress, req.Path, req.OutputPath, quality, func(data []byte) (*imagetools.Result, error) {
		return imagetools.CompressImage(data, quality)
	})
}

func (s *Service) processImage(ctx context.Context, tool, path, output string, quality int,
	process func([]byte) (*imagetools.Result, error),
) (*ImageFileResult, error) {
	inputPath, err := s.pathValidator.ResolveInput(path)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}

	if output == "" {
		output = filepath.Join(filepath.Dir(inputPath), ProcessedImageName(inputPath))
	}
	outputPath, err := s.resolveOutput(output, inputPath)
	if err != nil {
		return nil, err
	}

	data, err := s.validator.ReadFile(inputPath)
	if err != nil {
		return nil, err
	}

	res, err := process(data)
	if err != nil {
		return nil, err
	}

	if _, err := s.write(outputPath, res.Data); err != nil {
		return nil, err
	}

	s.record(ctx, &history.Record{
		Tool:         tool,
		Input:        inputPath,
		Output:       outputPath,
		OriginalSize: int64(len(data)),
		OutputSize:   int64(res.Size),
		Ratio:        float64(compress.ReductionRatio(res.Size, len(data))),
		Quality:      float64(quality) / 100,
	})

	return &ImageFileResult{
		Inputs:       []string{inputPath},
		OutputPath:   outputPath,
		OriginalSize: int64(len(data)),
		Size:         int64(res.Size),
		Width:        res.Width,
		Height:       res.Height,
		Quality:      quality,
	}, nil
}

// ImageMergeFiles stitches images top to bottom into one JPEG
func (s *Service) ImageMergeFiles(ctx context.Context, req ImageMergeFilesRequest) (*ImageFileResult, error) {
	inputs, images, err := s.readFiles(req.Paths)
	if err != nil {
		return nil, err
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(inputs[0]), MergedImageName)
	}
	outputPath, err = s.resolveOutput(outputPath, inputs...)
	if err != nil {
		return nil, err
	}

	res, err := imagetools.MergeImagesVertical(images)
	if err != nil {
		return nil, err
	}

	if _, err := s.write(outputPath, res.Data); err != nil {
		return nil, err
	}

	s.record(ctx, &history.Record{
		Tool:         ToolImageMerge,
		Input:        strings.Join(inputs, ","),
		Output:       outputPath,
		OriginalSize: totalSize(images),
		OutputSize:   int64(res.Size),
	})

	return &ImageFileResult{
		Inputs:       inputs,
		OutputPath:   outputPath,
		OriginalSize: totalSize(images),
		Size:         int64(res.Size),
		Width:        res.Width,
		Height:       res.Height,
		Quality:      imagetools.MergeQuality,
	}, nil
}

// PDFValidateFile performs validation on a PDF file
func (s *Service) PDFValidateFile(req PDFValidateFileRequest) (*PDFValidateFileResult, error) {
	inputPath, err := s.pathValidator.ResolveInput(req.Path)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	return s.validator.ValidateFile(inputPath), nil
}

// PDFCompressionHistory returns recent jobs and running totals
func (s *Service) PDFCompressionHistory(ctx context.Context, req PDFCompressionHistoryRequest) (*PDFCompressionHistoryResult, error) {
	if s.history == nil {
		return &PDFCompressionHistoryResult{Enabled: false, Records: []history.Record{}}, nil
	}

	records, err := s.history.Recent(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	totals, err := s.history.Totals(ctx)
	if err != nil {
		return nil, err
	}

	return &PDFCompressionHistoryResult{
		Enabled: true,
		Records: records,
		Totals:  totals,
	}, nil
}

// GetMaxFileSize returns the maximum file size limit
func (s *Service) GetMaxFileSize() int64 {
	return s.maxFileSize
}

// Directory returns the working directory every path is confined to
func (s *Service) Directory() string {
	return s.pathValidator.Root()
}

// targetFor picks the explicit target, then the configured default, then a suggestion
func (s *Service) targetFor(requested, originalSize int) int {
	switch {
	case requested > 0:
		return requested
	case s.defaultTargetKB > 0:
		return s.defaultTargetKB
	default:
		return compress.SuggestTargetSizeKB(originalSize)
	}
}

// resolveOutput validates an output path and refuses to overwrite any of the inputs
func (s *Service) resolveOutput(path string, inputs ...string) (string, error) {
	out, err := s.pathValidator.ResolveOutput(path)
	if err != nil {
		return "", fmt.Errorf("security validation failed: %w", err)
	}
	for _, in := range inputs {
		if out == in {
			return "", fmt.Errorf("output path would overwrite input: %s", path)
		}
	}
	return out, nil
}

// outputDir validates an output directory, defaulting to the input's directory
func (s *Service) outputDir(dir, inputPath string) (string, error) {
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	out, err := s.pathValidator.ResolveDir(dir)
	if err != nil {
		return "", fmt.Errorf("security validation failed: %w", err)
	}
	return out, nil
}

func (s *Service) readPDFs(paths []string) ([]string, [][]byte, error) {
	inputs := make([]string, 0, len(paths))
	docs := make([][]byte, 0, len(paths))
	for _, p := range paths {
		inputPath, err := s.pathValidator.ResolveInput(p)
		if err != nil {
			return nil, nil, fmt.Errorf("security validation failed: %w", err)
		}
		data, err := s.validator.ReadPDF(inputPath)
		if err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, inputPath)
		docs = append(docs, data)
	}
	if len(inputs) == 0 {
		return nil, nil, fmt.Errorf("paths cannot be empty")
	}
	return inputs, docs, nil
}

func (s *Service) readFiles(paths []string) ([]string, [][]byte, error) {
	inputs := make([]string, 0, len(paths))
	files := make([][]byte, 0, len(paths))
	for _, p := range paths {
		inputPath, err := s.pathValidator.ResolveInput(p)
		if err != nil {
			return nil, nil, fmt.Errorf("security validation failed: %w", err)
		}
		data, err := s.validator.ReadFile(inputPath)
		if err != nil {
			return nil, nil, err
		}
		inputs = append(inputs, inputPath)
		files = append(files, data)
	}
	if len(inputs) == 0 {
		return nil, nil, fmt.Errorf("paths cannot be empty")
	}
	return inputs, files, nil
}

// writeAll writes each blob to dir under name(i+1)
func (s *Service) writeAll(dir string, blobs [][]byte, name func(int) string, inputs ...string) ([]FileInfo, error) {
	files := make([]FileInfo, 0, len(blobs))
	for i, blob := range blobs {
		path, err := s.resolveOutput(filepath.Join(dir, name(i+1)), inputs...)
		if err != nil {
			return nil, err
		}
		info, err := s.write(path, blob)
		if err != nil {
			return nil, err
		}
		files = append(files, info)
	}
	return files, nil
}

// write stores an output file and drops cached directory listings
func (s *Service) write(path string, data []byte) (FileInfo, error) {
	info, err := writeOutput(path, data)
	if err != nil {
		return FileInfo{}, err
	}
	s.serverInfo.cache.Invalidate()
	return info, nil
}

// record stores a job in history when enabled. Failures are logged, never returned.
func (s *Service) record(ctx context.Context, r *history.Record) {
	if s.history == nil {
		return
	}
	if err := s.history.Add(context.WithoutCancel(ctx), r); err != nil {
		s.logger.Warn("failed to record job", "tool", r.Tool, "error", err)
	}
}

func totalSize(blobs [][]byte) int64 {
	var n int64
	for _, b := range blobs {
		n += int64(len(b))
	}
	return n
}

func totalFileSize(files []FileInfo) int64 {
	var n int64
	for _, f := range files {
		n += f.Size
	}
	return n
}
