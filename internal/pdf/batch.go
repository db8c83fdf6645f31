package pdf

import (
	"context"
	"fmt"
	"sync"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

// Batch item statuses
const (
	BatchStatusCompleted = "completed"
	BatchStatusError     = "error"
)

type batchJob struct {
	index int
	path  string
}

// PDFCompressBatch compresses independent files concurrently with a bounded pool of
// workers. A failing file does not stop the others; items keep the request order.
func (s *Service) PDFCompressBatch(ctx context.Context, req PDFCompressBatchRequest) (*PDFCompressBatchResult, error) {
	if len(req.Paths) == 0 {
		return nil, fmt.Errorf("paths cannot be empty")
	}
	if req.TargetSizeKB < 0 {
		return nil, fmt.Errorf("target_size_kb must be positive, got %d", req.TargetSizeKB)
	}

	jobs := make(chan batchJob, len(req.Paths))
	for i, p := range req.Paths {
		jobs <- batchJob{index: i, path: p}
	}
	close(jobs)

	items := make([]BatchItem, len(req.Paths))

	var wg sync.WaitGroup
	for w := 0; w < s.workers && w < len(req.Paths); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				items[job.index] = s.batchItem(ctx, job, req.TargetSizeKB)
			}
		}()
	}
	wg.Wait()

	return summarizeBatch(items), nil
}

func (s *Service) batchItem(ctx context.Context, job batchJob, targetKB int) BatchItem {
	item := BatchItem{Path: job.path}

	if err := ctx.Err(); err != nil {
		item.Status = BatchStatusError
		item.Error = err.Error()
		return item
	}

	res, err := s.compressFile(ctx, ToolCompressBatch, PDFCompressFileRequest{
		Path:         job.path,
		TargetSizeKB: targetKB,
	}, nil)
	if err != nil {
		s.logger.Warn("batch item failed", "path", job.path, "error", err)
		item.Status = BatchStatusError
		item.Error = pdferrors.UserMessage(err)
		return item
	}

	item.Status = BatchStatusCompleted
	item.Result = res
	return item
}

func summarizeBatch(items []BatchItem) *PDFCompressBatchResult {
	result := &PDFCompressBatchResult{
		Items:      items,
		TotalFiles: len(items),
	}
	for _, item := range items {
		if item.Status != BatchStatusCompleted {
			result.Failed++
			continue
		}
		result.Succeeded++
		result.TotalOriginalSize += item.Result.OriginalSize
		result.TotalCompressedSize += item.Result.CompressedSize
	}
	if result.TotalOriginalSize > 0 {
		result.OverallRatio = compress.ReductionRatio(int(result.TotalCompressedSize), int(result.TotalOriginalSize))
	}
	return result
}
