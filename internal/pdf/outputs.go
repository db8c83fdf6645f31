package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default output names
const (
	CompressedPrefix = "optimized_"
	ProcessedPrefix  = "processed_"
	MergedPDFName    = "merged_document.pdf"
	ImagesPDFName    = "images.pdf"
	MergedImageName  = "merged.jpg"
	LockedPDFName    = "locked.pdf"

	outputFilePerm = 0o644
)

// CompressedName returns the default output name for a compressed PDF
func CompressedName(input string) string {
	return CompressedPrefix + filepath.Base(input)
}

// SplitPageName returns the output name of the 1-based page n
func SplitPageName(n int) string {
	return fmt.Sprintf("page_%d.pdf", n)
}

// PageImageName returns the output name of the image of 1-based page n
func PageImageName(n int) string {
	return fmt.Sprintf("page_%d.jpg", n)
}

// ProcessedImageName returns the default output name for a resized or compressed image.
// Results are always JPEG.
func ProcessedImageName(input string) string {
	base := filepath.Base(input)
	return ProcessedPrefix + strings.TrimSuffix(base, filepath.Ext(base)) + ".jpg"
}

// writeOutput writes data to an already validated path
func writeOutput(path string, data []byte) (FileInfo, error) {
	if err := os.WriteFile(path, data, outputFilePerm); err != nil {
		return FileInfo{}, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return FileInfo{
		Path:         path,
		Name:         filepath.Base(path),
		Size:         int64(len(data)),
		ModifiedTime: time.Now().Format("2006-01-02 15:04:05"),
	}, nil
}
