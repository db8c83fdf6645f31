package pdf

import (
	"context"
	"fmt"

	"github.com/a3tai/mcp-pdf-tools/internal/history"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/imagetools"
)

const (
	DefaultPageImageScale   = 1.5
	DefaultPageImageQuality = 90

	minPageImageScale = 0.1
	maxPageImageScale = 4.0
)

// PDFToImages renders every page to a JPEG named page_<n>.jpg
func (s *Service) PDFToImages(ctx context.Context, req PDFToImagesRequest) (*PDFToImagesResult, error) {
	scale := req.Scale
	if scale == 0 {
		scale = DefaultPageImageScale
	}
	if scale < minPageImageScale || scale > maxPageImageScale {
		return nil, pdferrors.NewInputError(fmt.Sprintf("scale must be between %.1f and %.1f, got %g",
			minPageImageScale, maxPageImageScale, scale))
	}
	quality := req.Quality
	if quality == 0 {
		quality = DefaultPageImageQuality
	}
	if quality < imagetools.MinQuality || quality > imagetools.MaxQuality {
		return nil, pdferrors.NewInputError(fmt.Sprintf("quality must be between %d and %d, got %d",
			imagetools.MinQuality, imagetools.MaxQuality, quality))
	}

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

	images, err := s.renderPages(ctx, data, scale, float64(quality)/100)
	if err != nil {
		return nil, err
	}

	files, err := s.writeAll(outputDir, images, PageImageName, inputPath)
	if err != nil {
		return nil, err
	}

	s.record(ctx, &history.Record{
		Tool:         ToolToImages,
		Input:        inputPath,
		Output:       outputDir,
		OriginalSize: int64(len(data)),
		OutputSize:   totalFileSize(files),
		Quality:      float64(quality) / 100,
		Scale:        scale,
		SourcePages:  len(images),
		OutputPages:  len(images),
	})

	return &PDFToImagesResult{
		Path:      inputPath,
		OutputDir: outputDir,
		Pages:     len(images),
		Scale:     scale,
		Quality:   quality,
		Files:     files,
	}, nil
}

// renderPages rasterizes and encodes every page in order; any failure aborts
func (s *Service) renderPages(ctx context.Context, data []byte, scale, quality float64) ([][]byte, error) {
	doc, err := s.renderer.Open(data)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	n := doc.NumPages()
	if n == 0 {
		return nil, pdferrors.NewDecodeError(fmt.Errorf("document has no pages"))
	}

	images := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.RenderPage(i, scale)
		if err != nil {
			return nil, err
		}
		encoded, err := s.encoder.Encode(img, quality)
		if err != nil {
			return nil, pdferrors.NewEncodeError(i+1, err)
		}
		images = append(images, encoded)
	}
	return images, nil
}
