package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DirectoryCache provides TTL-based caching for directory contents
type DirectoryCache struct {
	entries map[string]*CacheEntry
	ttl     time.Duration
	mu      sync.RWMutex
}

// CacheEntry represents a cached directory scan result
type CacheEntry struct {
	files      []FileInfo
	lastUpdate time.Time
	scanning   bool
}

// LazyDirectoryScanner lists tool inputs with depth, count and time limits
type LazyDirectoryScanner struct {
	maxDepth   int
	fileLimit  int
	timeLimit  time.Duration
	skipHidden bool
}

// PDFServerInfo builds server info responses
type PDFServerInfo struct {
	cache   *DirectoryCache
	scanner *LazyDirectoryScanner
	service *Service
}

// ScanResult represents the result of a directory scan
type ScanResult struct {
	Files        []FileInfo
	FromCache    bool
	ScanTime     time.Duration
	FilesScanned int
	Truncated    bool
}

// supportedInputs are the extensions tools accept, lower case
var supportedInputs = map[string]bool{
	".pdf":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// NewDirectoryCache creates a new directory cache with specified TTL
func NewDirectoryCache(ttl time.Duration) *DirectoryCache {
	return &DirectoryCache{
		entries: make(map[string]*CacheEntry),
		ttl:     ttl,
	}
}

// Get retrieves cached directory contents if valid
func (c *DirectoryCache) Get(path string) *CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[path]
	if !exists || entry.lastUpdate.IsZero() {
		return nil
	}
	if time.Since(entry.lastUpdate) > c.ttl {
		return nil
	}
	return entry
}

// Set stores directory contents in cache
func (c *DirectoryCache) Set(path string, files []FileInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[path] = &CacheEntry{
		files:      files,
		lastUpdate: time.Now(),
	}
}

// TryStartScan marks path as being scanned. It returns false if a scan is already running.
func (c *DirectoryCache) TryStartScan(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[path]
	if !exists {
		c.entries[path] = &CacheEntry{scanning: true}
		return true
	}
	if entry.scanning {
		return false
	}
	entry.scanning = true
	return true
}

// FinishScan clears the scanning mark of path
func (c *DirectoryCache) FinishScan(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[path]; exists {
		entry.scanning = false
	}
}

// Invalidate drops every entry. Tools call it after writing files.
func (c *DirectoryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for path, entry := range c.entries {
		if !entry.scanning {
			delete(c.entries, path)
		}
	}
}

// NewLazyDirectoryScanner creates a new lazy directory scanner
func NewLazyDirectoryScanner(maxDepth, fileLimit int, timeLimit time.Duration) *LazyDirectoryScanner {
	return &LazyDirectoryScanner{
		maxDepth:   maxDepth,
		fileLimit:  fileLimit,
		timeLimit:  timeLimit,
		skipHidden: true,
	}
}

// ScanDirectory lists supported input files below root
func (s *LazyDirectoryScanner) ScanDirectory(ctx context.Context, root string) (*ScanResult, error) {
	start := time.Now()
	result := &ScanResult{Files: []FileInfo{}}

	err := s.scan(ctx, root, 0, start, result)
	result.ScanTime = time.Since(start)
	return result, err
}

func (s *LazyDirectoryScanner) scan(ctx context.Context, dir string, depth int, start time.Time, result *ScanResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.maxDepth > 0 && depth >= s.maxDepth {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil // Skip directories we can't read
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if (s.fileLimit > 0 && len(result.Files) >= s.fileLimit) ||
			(s.timeLimit > 0 && time.Since(start) > s.timeLimit) {
			result.Truncated = true
			return nil
		}

		result.FilesScanned++
		name := entry.Name()
		if s.skipHidden && strings.HasPrefix(name, ".") {
			continue
		}
		// Symlinks are never followed
		if entry.Type()&os.ModeSymlink != 0 {
			continue
		}

		path := filepath.Join(dir, name)
		if entry.IsDir() {
			if err := s.scan(ctx, path, depth+1, start, result); err != nil {
				return err
			}
			continue
		}

		if !supportedInputs[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		result.Files = append(result.Files, FileInfo{
			Name:         name,
			Path:         path,
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format("2006-01-02 15:04:05"),
		})
	}
	return nil
}

// NewPDFServerInfo creates a new server info handler
func NewPDFServerInfo(service *Service) *PDFServerInfo {
	return &PDFServerInfo{
		cache:   NewDirectoryCache(time.Minute),
		scanner: NewLazyDirectoryScanner(3, 100, 3*time.Second), // max 3 levels, 100 files, 3 second limit
		service: service,
	}
}

// GetServerInfo returns capabilities, configuration and the working directory contents
func (p *PDFServerInfo) GetServerInfo(ctx context.Context, serverName, version string) (*PDFServerInfoResult, error) {
	dir := p.service.Directory()

	files := []FileInfo{}
	if cached := p.cache.Get(dir); cached != nil {
		files = cached.files
	} else if p.cache.TryStartScan(dir) {
		scanCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		scan, err := p.scanner.ScanDirectory(scanCtx, dir)
		cancel()
		p.cache.FinishScan(dir)

		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			files = scan.Files
			p.cache.Set(dir, files)
		}
	}

	return &PDFServerInfoResult{
		ServerName:        serverName,
		Version:           version,
		DefaultDirectory:  dir,
		MaxFileSize:       p.service.maxFileSize,
		Renderer:          string(p.service.backend),
		MaxPasses:         p.service.engine.Options().MaxPasses,
		SkipUnrenderable:  p.service.engine.Options().SkipUnrenderablePages,
		HistoryEnabled:    p.service.history != nil,
		AvailableTools:    availableTools(),
		DirectoryContents: files,
		UsageGuidance:     p.usageGuidance(),
		SupportedFormats:  supportedFormats(),
	}, nil
}

func supportedFormats() []string {
	return []string{"pdf", "jpeg", "png", "webp", "bmp", "tiff"}
}

func availableTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        ToolCompressFile,
			Description: "Compress a PDF towards a target size by re-rendering every page as a JPEG image",
			Usage: "Use this tool to shrink scanned or image-heavy PDFs. Text becomes part of the page image " +
				"and is no longer selectable. Progress is reported when the client sends a progress token.",
			Parameters: "path (required): PDF file, target_size_kb (optional): target size in KB " +
				"(defaults to 40% of the input), output_path (optional): defaults to optimized_<name>",
		},
		{
			Name:        ToolCompressBatch,
			Description: "Compress several PDFs concurrently with one target size",
			Usage:       "Use this tool for many files at once. A failing file is reported without stopping the others.",
			Parameters:  "paths (required): PDF files, target_size_kb (optional): target size in KB per file",
		},
		{
			Name:        ToolMergeFiles,
			Description: "Merge two or more PDFs into one, keeping page order",
			Usage:       "Pages of the first file come first, then the pages of the second, and so on.",
			Parameters:  "paths (required): at least two PDF files, output_path (optional): defaults to merged_document.pdf",
		},
		{
			Name:        ToolSplitFile,
			Description: "Split a PDF into one file per page",
			Usage:       "Writes page_1.pdf, page_2.pdf, ... into the output directory.",
			Parameters:  "path (required): PDF file, output_dir (optional): defaults to the input's directory",
		},
		{
			Name:        ToolLockFile,
			Description: "Re-save a PDF after checking a password was given (no encryption is applied)",
			Usage: "The result reports protected=false. Do not rely on this tool to protect documents; " +
				"it only validates and rewrites the file.",
			Parameters: "path (required): PDF file, password (required): non-empty, output_path (optional): defaults to locked.pdf",
		},
		{
			Name:        ToolImagesToPDF,
			Description: "Convert JPEG and PNG images into one PDF, one page per image",
			Usage:       "Each page has the pixel size of its image. Unsupported formats are skipped and listed.",
			Parameters:  "paths (required): image files, output_path (optional): defaults to images.pdf",
		},
		{
			Name:        ToolToImages,
			Description: "Render every page of a PDF to a JPEG image",
			Usage:       "Writes page_1.jpg, page_2.jpg, ... using the configured renderer.",
			Parameters: "path (required): PDF file, output_dir (optional), scale (optional): 0.1-4.0, default 1.5, " +
				"quality (optional): 10-100, default 90",
		},
		{
			Name:        ToolImageResize,
			Description: "Resize an image to a width, keeping its aspect ratio",
			Usage:       "Output is always JPEG.",
			Parameters: "path (required): image file, width (optional): pixels, default 800, " +
				"quality (optional): 10-100, default 80, output_path (optional): defaults to processed_<name>.jpg",
		},
		{
			Name:        ToolImageCompress,
			Description: "Re-encode an image as JPEG at a lower quality without resizing it",
			Usage:       "Output is always JPEG.",
			Parameters:  "path (required): image file, quality (optional): 10-100, default 80, output_path (optional)",
		},
		{
			Name:        ToolImageMerge,
			Description: "Stitch two or more images top to bottom into one JPEG",
			Usage:       "The canvas is as wide as the widest image; narrower images are centered.",
			Parameters:  "paths (required): at least two image files, output_path (optional): defaults to merged.jpg",
		},
		{
			Name:        ToolValidateFile,
			Description: "Validate if a file is a readable PDF",
			Usage:       "Use this tool to check if a file is a valid PDF before processing it.",
			Parameters:  "path (required): PDF file",
		},
		{
			Name:        ToolHistory,
			Description: "List recent jobs and total bytes saved",
			Usage:       "Only available when the server runs with a history database.",
			Parameters:  "limit (optional): number of records, default 20",
		},
		{
			Name:        ToolServerInfo,
			Description: "Get server information, configuration and the working directory contents",
			Usage:       "Call this first to discover the working directory and available files.",
			Parameters:  "none",
		},
	}
}

func (p *PDFServerInfo) usageGuidance() string {
	maxFileSizeMB := p.service.maxFileSize / (1024 * 1024)

	return fmt.Sprintf(`PDF Tools MCP Server Usage Guide:

1. DISCOVER:
   - Use 'pdf_server_info' to see the working directory and the files in it
   - Use 'pdf_validate_file' to check a PDF before processing it

2. COMPRESS:
   - Use 'pdf_compress_file' with target_size_kb; omit it to aim for 40%% of the input size
   - JPEG quality follows the target/original ratio, clamped to 10-70%%
   - Targets below 30%% of the original render at 1.0x instead of 1.5x
   - Targets below 20%% of the original are reported as the extreme tier
   - The target is a goal, not a guarantee: check met_target in the result
   - Use 'pdf_compress_batch' for several files

3. REARRANGE:
   - 'pdf_merge_files', 'pdf_split_file', 'pdf_images_to_pdf', 'pdf_to_images'

4. IMAGES:
   - 'image_resize_file', 'image_compress_file', 'image_merge_files'

IMPORTANT NOTES:
- Every path must be inside %s; relative paths are resolved against it
- Files up to %dMB are accepted
- Compressed PDFs contain page images only: text, links and form fields are not preserved
- 'pdf_lock_file' does NOT encrypt documents`, p.service.Directory(), maxFileSizeMB)
}

// PDFServerInfo returns server information and usage guidance
func (s *Service) PDFServerInfo(ctx context.Context, _ PDFServerInfoRequest, serverName, version string) (*PDFServerInfoResult, error) {
	return s.serverInfo.GetServerInfo(ctx, serverName, version)
}
