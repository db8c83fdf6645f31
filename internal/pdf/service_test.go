package pdf

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/render"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/testutil"
)

func TestNewService(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr string
	}{
		{"defaults", ServiceConfig{MaxFileSize: 1024, Directory: dir}, ""},
		{"ghostscript", ServiceConfig{MaxFileSize: 1024, Directory: dir, Renderer: render.Config{Backend: render.BackendGhostscript, GhostscriptPath: "gs"}}, ""},
		{"missing directory", ServiceConfig{MaxFileSize: 1024, Directory: filepath.Join(dir, "nope")}, "path validator"},
		{"bad renderer", ServiceConfig{MaxFileSize: 1024, Directory: dir, Renderer: render.Config{Backend: "pdfium"}}, "renderer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.cfg)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(1024), svc.GetMaxFileSize())
			assert.Equal(t, 1, svc.engine.Options().MaxPasses)
			assert.Equal(t, defaultBatchWorkers, svc.workers)
		})
	}
}

func TestPDFCompressFile(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "report.pdf", testutil.PDF(t, 3, 0))

	var (
		mu       sync.Mutex
		progress []int
	)
	res, err := env.service.PDFCompressFile(context.Background(), PDFCompressFileRequest{
		Path:         "report.pdf",
		TargetSizeKB: 500,
	}, func(p int) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, []int{33, 67, 100}, progress)
	assert.Equal(t, filepath.Join(env.dir, "optimized_report.pdf"), res.OutputPath)
	assert.Equal(t, 3, res.SourcePages)
	assert.Equal(t, 3, res.OutputPages)
	assert.Equal(t, 3, pageCount(t, res.OutputPath))
	assert.Equal(t, int64(len(readFile(t, res.OutputPath))), res.CompressedSize)
	assert.Equal(t, 500, res.TargetSizeKB)
	assert.Equal(t, compress.TierStandard, res.Tier)
	assert.Equal(t, 1, res.Passes)
	assert.True(t, res.MetTarget)

	records, err := env.history.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ToolCompressFile, records[0].Tool)
	assert.Equal(t, res.OutputPath, records[0].Output)
	assert.Equal(t, res.CompressedSize, records[0].OutputSize)
}

func TestPDFCompressFile_DefaultTarget(t *testing.T) {
	env := newTestEnv(t)
	src := testutil.PDF(t, 1, 0)
	env.write(t, "a.pdf", src)

	res, err := env.service.PDFCompressFile(context.Background(), PDFCompressFileRequest{Path: "a.pdf"}, nil)
	require.NoError(t, err)
	assert.Equal(t, compress.SuggestTargetSizeKB(len(src)), res.TargetSizeKB)

	env.service.defaultTargetKB = 77
	res, err = env.service.PDFCompressFile(context.Background(), PDFCompressFileRequest{
		Path:       "a.pdf",
		OutputPath: "b.pdf",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 77, res.TargetSizeKB)
	assert.Equal(t, filepath.Join(env.dir, "b.pdf"), res.OutputPath)
}

func TestPDFCompressFile_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "ok.pdf", testutil.PDF(t, 1, 0))
	env.write(t, "broken.pdf", []byte("%PDF-1.7 but nothing else"))
	env.write(t, "notes.txt", []byte("hello"))

	tests := []struct {
		name     string
		req      PDFCompressFileRequest
		wantErr  string
		wantType pdferrors.ErrorType
	}{
		{"outside directory", PDFCompressFileRequest{Path: "../ok.pdf"}, "security validation failed", pdferrors.ErrorTypeUnknown},
		{"missing file", PDFCompressFileRequest{Path: "missing.pdf"}, "file not found", pdferrors.ErrorTypeUnknown},
		{"not a pdf", PDFCompressFileRequest{Path: "notes.txt"}, "not a PDF", pdferrors.ErrorTypeInput},
		{"corrupt pdf", PDFCompressFileRequest{Path: "broken.pdf"}, "invalid PDF", pdferrors.ErrorTypeDecode},
		{"negative target", PDFCompressFileRequest{Path: "ok.pdf", TargetSizeKB: -5}, "target_size_kb", pdferrors.ErrorTypeInput},
		{"overwrite input", PDFCompressFileRequest{Path: "ok.pdf", OutputPath: "ok.pdf"}, "overwrite input", pdferrors.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.PDFCompressFile(context.Background(), tt.req, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, tt.wantType, pdferrors.TypeOf(err))
		})
	}
}

func TestPDFCompressFile_CorruptSource(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "broken.pdf", []byte("%PDF-1.7\nthis is not a pdf body"))

	_, err := env.service.PDFCompressFile(context.Background(), PDFCompressFileRequest{Path: "broken.pdf", TargetSizeKB: 10}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, pdferrors.ErrCompressionFailed)
	assert.Equal(t, pdferrors.ErrorTypeDecode, pdferrors.TypeOf(err))
	assert.Equal(t, "Compression failed. This might happen with complex or corrupted PDFs.", pdferrors.UserMessage(err))
	assert.NoFileExists(t, filepath.Join(env.dir, "optimized_broken.pdf"))

	totals, err := env.history.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), totals.Failed)
}

func TestPDFCompressFile_TooLarge(t *testing.T) {
	env := newTestEnv(t, withMaxFileSize(100))
	env.write(t, "big.pdf", testutil.PDF(t, 1, 0))

	_, err := env.service.PDFCompressFile(context.Background(), PDFCompressFileRequest{Path: "big.pdf"}, nil)
	assert.ErrorContains(t, err, "file too large")
}

func TestPDFCompressFile_RenderFailure(t *testing.T) {
	t.Run("aborts by default", func(t *testing.T) {
		env := newTestEnv(t)
		env.write(t, "doc.pdf", testutil.PDF(t, 3, 0))
		env.failOn(1)

		_, err := env.service.PDFCompressFile(context.Background(), PDFCompressFileRequest{Path: "doc.pdf", TargetSizeKB: 100}, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, pdferrors.ErrCompressionFailed))
		assert.True(t, pdferrors.IsRender(err))
		assert.NoFileExists(t, filepath.Join(env.dir, "optimized_doc.pdf"))

		totals, err := env.history.Totals(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), totals.Failed)
		assert.Equal(t, int64(0), totals.Jobs)
	})

	t.Run("skips when enabled", func(t *testing.T) {
		env := newTestEnv(t, withCompressOptions(compress.Options{SkipUnrenderablePages: true, MaxPasses: 1}))
		env.write(t, "doc.pdf", testutil.PDF(t, 3, 0))
		env.failOn(1)

		res, err := env.service.PDFCompressFile(context.Background(), PDFCompressFileRequest{Path: "doc.pdf", TargetSizeKB: 100}, nil)
		require.NoError(t, err)
		assert.Equal(t, []int{2}, res.SkippedPages)
		assert.Equal(t, 2, res.OutputPages)
		assert.Equal(t, 2, pageCount(t, res.OutputPath))

		records, err := env.history.Recent(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, []int{2}, records[0].SkippedPages())
	})
}

func TestPDFCompressBatch(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "one.pdf", testutil.PDF(t, 1, 0))
	env.write(t, "two.pdf", testutil.PDF(t, 2, 0))
	env.write(t, "bad.pdf", []byte("garbage"))

	res, err := env.service.PDFCompressBatch(context.Background(), PDFCompressBatchRequest{
		Paths:        []string{"one.pdf", "bad.pdf", "two.pdf"},
		TargetSizeKB: 200,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalFiles)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Items, 3)

	assert.Equal(t, "one.pdf", res.Items[0].Path)
	assert.Equal(t, BatchStatusCompleted, res.Items[0].Status)
	assert.Equal(t, BatchStatusError, res.Items[1].Status)
	assert.Equal(t, "Compression failed. This might happen with complex or corrupted PDFs.", res.Items[1].Error)
	assert.Equal(t, 2, res.Items[2].Result.OutputPages)

	assert.Equal(t, res.Items[0].Result.OriginalSize+res.Items[2].Result.OriginalSize, res.TotalOriginalSize)
	assert.FileExists(t, filepath.Join(env.dir, "optimized_one.pdf"))
	assert.FileExists(t, filepath.Join(env.dir, "optimized_two.pdf"))

	records, err := env.history.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, ToolCompressBatch, r.Tool)
	}

	totals, err := env.history.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), totals.Jobs)
	assert.Equal(t, int64(1), totals.Failed)
}

func TestPDFCompressBatch_InputErrors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.PDFCompressBatch(context.Background(), PDFCompressBatchRequest{})
	assert.ErrorContains(t, err, "paths cannot be empty")

	_, err = env.service.PDFCompressBatch(context.Background(), PDFCompressBatchRequest{Paths: []string{"a.pdf"}, TargetSizeKB: -1})
	assert.ErrorContains(t, err, "target_size_kb")
}

func TestPDFCompressBatch_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "one.pdf", testutil.PDF(t, 1, 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := env.service.PDFCompressBatch(ctx, PDFCompressBatchRequest{Paths: []string{"one.pdf"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Items[0].Error, context.Canceled.Error())
}

func TestPDFMergeFiles(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.pdf", testutil.PDF(t, 2, 0))
	env.write(t, "b.pdf", testutil.PDF(t, 3, 2))

	res, err := env.service.PDFMergeFiles(context.Background(), PDFMergeFilesRequest{Paths: []string{"a.pdf", "b.pdf"}})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(env.dir, MergedPDFName), res.OutputPath)
	assert.Equal(t, 5, res.Pages)
	assert.Equal(t, []int{100, 110, 120, 130, 140}, testutil.PageWidths(t, readFile(t, res.OutputPath)))

	_, err = env.service.PDFMergeFiles(context.Background(), PDFMergeFilesRequest{Paths: []string{"a.pdf"}})
	assert.Equal(t, pdferrors.ErrorTypeInput, pdferrors.TypeOf(err))
}

func TestPDFSplitFile(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "four.pdf", testutil.PDF(t, 4, 0))
	env.write(t, "out/.keep", nil)

	res, err := env.service.PDFSplitFile(context.Background(), PDFSplitFileRequest{Path: "four.pdf", OutputDir: "out"})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Pages)
	require.Len(t, res.Files, 4)
	for i, f := range res.Files {
		assert.Equal(t, SplitPageName(i+1), f.Name)
		assert.Equal(t, filepath.Join(env.dir, "out", f.Name), f.Path)
		assert.Equal(t, 1, pageCount(t, f.Path))
	}
}

func TestPDFLockFile(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "doc.pdf", testutil.PDF(t, 2, 0))

	res, err := env.service.PDFLockFile(context.Background(), PDFLockFileRequest{Path: "doc.pdf", Password: "secret"})
	require.NoError(t, err)
	assert.False(t, res.Protected)
	assert.Contains(t, res.Message, "without encryption")
	assert.Equal(t, filepath.Join(env.dir, LockedPDFName), res.OutputPath)
	assert.Equal(t, 2, pageCount(t, res.OutputPath))

	_, err = env.service.PDFLockFile(context.Background(), PDFLockFileRequest{Path: "doc.pdf"})
	assert.Equal(t, pdferrors.ErrorTypeInput, pdferrors.TypeOf(err))
}

func TestPDFImagesToPDF(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "a.jpg", testutil.JPEG(t, 120, 60))
	env.write(t, "b.png", testutil.PNG(t, 80, 60))
	skipped := env.write(t, "c.txt", []byte("not an image"))

	res, err := env.service.PDFImagesToPDF(context.Background(), PDFImagesToPDFRequest{Paths: []string{"a.jpg", "c.txt", "b.png"}})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, []string{skipped}, res.Skipped)
	assert.Equal(t, filepath.Join(env.dir, ImagesPDFName), res.OutputPath)
	assert.Equal(t, []int{120, 80}, testutil.PageWidths(t, readFile(t, res.OutputPath)))
}

func TestPDFToImages(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "doc.pdf", testutil.PDF(t, 2, 0))

	res, err := env.service.PDFToImages(context.Background(), PDFToImagesRequest{Path: "doc.pdf"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, DefaultPageImageScale, res.Scale)
	assert.Equal(t, DefaultPageImageQuality, res.Quality)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "page_1.jpg", res.Files[0].Name)
	assert.Equal(t, "page_2.jpg", res.Files[1].Name)
	assert.FileExists(t, res.Files[1].Path)

	_, err = env.service.PDFToImages(context.Background(), PDFToImagesRequest{Path: "doc.pdf", Scale: 10})
	assert.Equal(t, pdferrors.ErrorTypeInput, pdferrors.TypeOf(err))

	env.failOn(0)
	_, err = env.service.PDFToImages(context.Background(), PDFToImagesRequest{Path: "doc.pdf"})
	assert.True(t, pdferrors.IsRender(err))
}

func TestImageTools(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "photo.png", testutil.PNG(t, 400, 200))
	env.write(t, "top.jpg", testutil.JPEG(t, 100, 50))

	resized, err := env.service.ImageResizeFile(context.Background(), ImageResizeFileRequest{Path: "photo.png", Width: 100})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.dir, "processed_photo.jpg"), resized.OutputPath)
	assert.Equal(t, 100, resized.Width)
	assert.Equal(t, 50, resized.Height)
	assert.Equal(t, 80, resized.Quality)

	compressed, err := env.service.ImageCompressFile(context.Background(), ImageCompressFileRequest{
		Path:       "photo.png",
		Quality:    30,
		OutputPath: "small.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, 400, compressed.Width)
	assert.Equal(t, 200, compressed.Height)

	merged, err := env.service.ImageMergeFiles(context.Background(), ImageMergeFilesRequest{Paths: []string{"top.jpg", "photo.png"}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.dir, MergedImageName), merged.OutputPath)
	assert.Equal(t, 400, merged.Width)
	assert.Equal(t, 250, merged.Height)
	assert.Len(t, merged.Inputs, 2)

	_, err = env.service.ImageCompressFile(context.Background(), ImageCompressFileRequest{Path: "photo.png", Quality: 5})
	assert.Equal(t, pdferrors.ErrorTypeInput, pdferrors.TypeOf(err))
}

func TestPDFValidateFile(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "good.pdf", testutil.PDF(t, 2, 0))
	env.write(t, "bad.pdf", []byte("%PDF-1.4 truncated"))

	res, err := env.service.PDFValidateFile(PDFValidateFileRequest{Path: "good.pdf"})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 2, res.Pages)

	res, err = env.service.PDFValidateFile(PDFValidateFileRequest{Path: "bad.pdf"})
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Message)

	_, err = env.service.PDFValidateFile(PDFValidateFileRequest{Path: "/etc/passwd"})
	assert.ErrorContains(t, err, "security validation failed")
}

func TestPDFCompressionHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, withoutHistory())
		res, err := env.service.PDFCompressionHistory(context.Background(), PDFCompressionHistoryRequest{})
		require.NoError(t, err)
		assert.False(t, res.Enabled)
		assert.Empty(t, res.Records)
	})

	t.Run("enabled", func(t *testing.T) {
		env := newTestEnv(t)
		env.write(t, "a.pdf", testutil.PDF(t, 1, 0))
		env.write(t, "b.pdf", testutil.PDF(t, 1, 0))

		_, err := env.service.PDFMergeFiles(context.Background(), PDFMergeFilesRequest{Paths: []string{"a.pdf", "b.pdf"}})
		require.NoError(t, err)
		_, err = env.service.PDFCompressFile(context.Background(), PDFCompressFileRequest{Path: "a.pdf", TargetSizeKB: 50}, nil)
		require.NoError(t, err)

		res, err := env.service.PDFCompressionHistory(context.Background(), PDFCompressionHistoryRequest{Limit: 1})
		require.NoError(t, err)
		assert.True(t, res.Enabled)
		require.Len(t, res.Records, 1)
		assert.Equal(t, ToolCompressFile, res.Records[0].Tool)
		assert.Equal(t, int64(2), res.Totals.Jobs)
		assert.Zero(t, res.Totals.Failed)
	})
}
