package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/mcp-pdf-tools/internal/config"
	"github.com/a3tai/mcp-pdf-tools/internal/descriptions"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
)

const (
	progressNotification = "notifications/progress"
	shutdownTimeout      = 5 * time.Second
)

// Server represents the MCP server instance
type Server struct {
	config     *config.Config
	pdfService *pdf.Service
	mcpServer  *server.MCPServer
	logger     *slog.Logger
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, pdfService *pdf.Service, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pdfService == nil {
		return nil, fmt.Errorf("pdfService cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false), // the tool set is fixed at startup
		server.WithRecovery(),
	)

	s := &Server{
		config:     cfg,
		pdfService: pdfService,
		mcpServer:  mcpServer,
		logger:     logger,
	}

	s.registerTools()

	return s, nil
}

func stringArray(name, description string) mcp.ToolOption {
	return mcp.WithArray(name,
		mcp.Required(),
		mcp.Description(description),
		mcp.Items(map[string]any{"type": "string"}),
	)
}

func outputPathOption() mcp.ToolOption {
	return mcp.WithString("output_path",
		mcp.Description("Where to write the result (defaults next to the input)"),
	)
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolCompressFile,
		mcp.WithDescription(descriptions.PDFCompressFileDescription),
		mcp.WithString("path", mcp.Required(), mcp.Description("Full path to the PDF file")),
		mcp.WithNumber("target_size_kb",
			mcp.Description("Desired output size in kilobytes (suggested from the input size when omitted)"),
			mcp.Min(1),
		),
		outputPathOption(),
	), s.handlePDFCompressFile)

	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolCompressBatch,
		mcp.WithDescription(descriptions.PDFCompressBatchDescription),
		stringArray("paths", "Full paths to the PDF files"),
		mcp.WithNumber("target_size_kb", mcp.Description("Desired output size per file in kilobytes"), mcp.Min(1)),
	), s.handlePDFCompressBatch)

	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolMergeFiles,
		mcp.WithDescription(descriptions.PDFMergeFilesDescription),
		stringArray("paths", "Full paths to the PDF files, in order"),
		outputPathOption(),
	), s.handlePDFMergeFiles)

	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolSplitFile,
		mcp.WithDescription(descriptions.PDFSplitFileDescription),
		mcp.WithString("path", mcp.Required(), mcp.Description("Full path to the PDF file")),
		mcp.WithString("output_dir", mcp.Description("Directory for page_<n>.pdf files (defaults next to the input)")),
	), s.handlePDFSplitFile)

	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolLockFile,
		mcp.WithDescription(descriptions.PDFLockFileDescription),
		mcp.WithString("path", mcp.Required(), mcp.Description("Full path to the PDF file")),
		mcp.WithString("password", mcp.Required(), mcp.Description("Password to protect the document with")),
		outputPathOption(),
	), s.handlePDFLockFile)

	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolImagesToPDF,
		mcp.WithDescription(descriptions.PDFImagesToPDFDescription),
		stringArray("paths", "Full paths to the image files, in page order"),
		outputPathOption(),
	), s.handlePDFImagesToPDF)

	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolToImages,
		mcp.WithDescription(descriptions.PDFToImagesDescription),
		mcp.WithString("path", mcp.Required(), mcp.Description("Full path to the PDF file")),
		mcp.WithString("output_dir", mcp.Description("Directory for page_<n>.jpg files (defaults next to the input)")),
		mcp.WithNumber("scale", mcp.Description("Render scale relative to 72 DPI (0.1-4.0, default 1.5)")),
		mcp.WithNumber("quality", mcp.Description("JPEG quality percent (10-100, default 90)")),
	), s.handlePDFToImages)

	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolImageResize,
		mcp.WithDescription(descriptions.ImageResizeFileDescription),
		mcp.WithString("path", mcp.Required(), mcp.Description("Full path to the image file")),
		mcp.WithNumber("width", mcp.Description("Target width in pixels (default 800)")),
		mcp.WithNumber("quality", mcp.Description("JPEG quality percent (10-100, default 80)")),
		outputPathOption(),
	), s.handleImageResizeFile)

	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolImageCompress,
		mcp.WithDescription(descriptions.ImageCompressFileDescription),
		mcp.WithString("path", mcp.Required(), mcp.Description("Full path to the image file")),
		mcp.WithNumber("quality", mcp.Description("JPEG quality percent (10-100, default 80)")),
		outputPathOption(),
	), s.handleImageCompressFile)

	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolImageMerge,
		mcp.WithDescription(descriptions.ImageMergeFilesDescription),
		stringArray("paths", "Full paths to the image files, top to bottom"),
		outputPathOption(),
	), s.handleImageMergeFiles)

	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolValidateFile,
		mcp.WithDescription(descriptions.PDFValidateFileDescription),
		mcp.WithString("path", mcp.Required(), mcp.Description("Full path to the PDF file")),
	), s.handlePDFValidateFile)

	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolHistory,
		mcp.WithDescription(descriptions.PDFCompressionHistoryDescription),
		mcp.WithNumber("limit", mcp.Description("Number of records to return (default 20)")),
	), s.handlePDFCompressionHistory)

	s.mcpServer.AddTool(mcp.NewTool(
		pdf.ToolServerInfo,
		mcp.WithDescription(descriptions.PDFServerInfoDescription),
	), s.handlePDFServerInfo)
}

// toolError turns a service error into a tool result. Compression failures are reported
// with a generic notice; the cause is logged.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	s.logger.Warn("tool failed", "tool", tool, "error", err, "type", pdferrors.TypeOf(err).String())
	return mcp.NewToolResultError(pdferrors.UserMessage(err))
}

// progressReporter forwards engine progress to the client when it asked for it
func (s *Server) progressReporter(ctx context.Context, request mcp.CallToolRequest) pdf.ProgressFunc {
	if request.Params.Meta == nil || request.Params.Meta.ProgressToken == nil {
		return nil
	}
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return nil
	}
	token := request.Params.Meta.ProgressToken

	return func(percent int) {
		err := srv.SendNotificationToClient(ctx, progressNotification, map[string]any{
			"progressToken": token,
			"progress":      percent,
			"total":         100,
		})
		if err != nil {
			s.logger.Debug("progress notification dropped", "error", err)
		}
	}
}

// Handler functions
func (s *Server) handlePDFCompressFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := pdf.PDFCompressFileRequest{
		Path:         path,
		TargetSizeKB: request.GetInt("target_size_kb", 0),
		OutputPath:   request.GetString("output_path", ""),
	}
	result, err := s.pdfService.PDFCompressFile(ctx, req, s.progressReporter(ctx, request))
	if err != nil {
		return s.toolError(pdf.ToolCompressFile, err), nil
	}

	return mcp.NewToolResultText(formatCompressResult(result)), nil
}

func (s *Server) handlePDFCompressBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths, err := request.RequireStringSlice("paths")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := pdf.PDFCompressBatchRequest{
		Paths:        paths,
		TargetSizeKB: request.GetInt("target_size_kb", 0),
	}
	result, err := s.pdfService.PDFCompressBatch(ctx, req)
	if err != nil {
		return s.toolError(pdf.ToolCompressBatch, err), nil
	}

	return mcp.NewToolResultText(formatBatchResult(result)), nil
}

func (s *Server) handlePDFMergeFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths, err := request.RequireStringSlice("paths")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := pdf.PDFMergeFilesRequest{Paths: paths, OutputPath: request.GetString("output_path", "")}
	result, err := s.pdfService.PDFMergeFiles(ctx, req)
	if err != nil {
		return s.toolError(pdf.ToolMergeFiles, err), nil
	}

	text := fmt.Sprintf("Merged %d PDF(s) into %s\n", len(result.Inputs), result.OutputPath)
	text += fmt.Sprintf("Pages: %d\n", result.Pages)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handlePDFSplitFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := pdf.PDFSplitFileRequest{Path: path, OutputDir: request.GetString("output_dir", "")}
	result, err := s.pdfService.PDFSplitFile(ctx, req)
	if err != nil {
		return s.toolError(pdf.ToolSplitFile, err), nil
	}

	text := fmt.Sprintf("Split %s into %d page(s) in %s\n", result.Path, result.Pages, result.OutputDir)
	text += formatFiles(result.Files)
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handlePDFLockFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	password, err := request.RequireString("password")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := pdf.PDFLockFileRequest{Path: path, Password: password, OutputPath: request.GetString("output_path", "")}
	result, err := s.pdfService.PDFLockFile(ctx, req)
	if err != nil {
		return s.toolError(pdf.ToolLockFile, err), nil
	}

	text := fmt.Sprintf("Saved %s (%d bytes)\n", result.OutputPath, result.Size)
	text += fmt.Sprintf("Protected: %t\n", result.Protected)
	if result.Message != "" {
		text += fmt.Sprintf("⚠️  %s\n", result.Message)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handlePDFImagesToPDF(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths, err := request.RequireStringSlice("paths")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := pdf.PDFImagesToPDFRequest{Paths: paths, OutputPath: request.GetString("output_path", "")}
	result, err := s.pdfService.PDFImagesToPDF(ctx, req)
	if err != nil {
		return s.toolError(pdf.ToolImagesToPDF, err), nil
	}

	text := fmt.Sprintf("Created %s\n", result.OutputPath)
	text += fmt.Sprintf("Pages: %d\n", result.Pages)
	text += fmt.Sprintf("Size: %d bytes\n", result.Size)
	if len(result.Skipped) > 0 {
		text += fmt.Sprintf("Skipped (not JPEG or PNG): %s\n", strings.Join(result.Skipped, ", "))
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handlePDFToImages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := pdf.PDFToImagesRequest{
		Path:      path,
		OutputDir: request.GetString("output_dir", ""),
		Scale:     request.GetFloat("scale", 0),
		Quality:   request.GetInt("quality", 0),
	}
	result, err := s.pdfService.PDFToImages(ctx, req)
	if err != nil {
		return s.toolError(pdf.ToolToImages, err), nil
	}

	text := fmt.Sprintf("Rendered %d page(s) of %s at scale %.2f, quality %d\n",
		result.Pages, result.Path, result.Scale, result.Quality)
	text += formatFiles(result.Files)
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleImageResizeFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := pdf.ImageResizeFileRequest{
		Path:       path,
		Width:      request.GetInt("width", 0),
		Quality:    request.GetInt("quality", 0),
		OutputPath: request.GetString("output_path", ""),
	}
	result, err := s.pdfService.ImageResizeFile(ctx, req)
	if err != nil {
		return s.toolError(pdf.ToolImageResize, err), nil
	}

	return mcp.NewToolResultText(formatImageResult("Resized", result)), nil
}

func (s *Server) handleImageCompressFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := pdf.ImageCompressFileRequest{
		Path:       path,
		Quality:    request.GetInt("quality", 0),
		OutputPath: request.GetString("output_path", ""),
	}
	result, err := s.pdfService.ImageCompressFile(ctx, req)
	if err != nil {
		return s.toolError(pdf.ToolImageCompress, err), nil
	}

	return mcp.NewToolResultText(formatImageResult("Compressed", result)), nil
}

func (s *Server) handleImageMergeFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths, err := request.RequireStringSlice("paths")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := pdf.ImageMergeFilesRequest{Paths: paths, OutputPath: request.GetString("output_path", "")}
	result, err := s.pdfService.ImageMergeFiles(ctx, req)
	if err != nil {
		return s.toolError(pdf.ToolImageMerge, err), nil
	}

	return mcp.NewToolResultText(formatImageResult("Merged", result)), nil
}

func (s *Server) handlePDFValidateFile(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.pdfService.PDFValidateFile(pdf.PDFValidateFileRequest{Path: path})
	if err != nil {
		return s.toolError(pdf.ToolValidateFile, err), nil
	}

	var responseText string
	if result.Valid {
		responseText = fmt.Sprintf("PDF file %s is valid and readable (%d pages, %d bytes)",
			result.Path, result.Pages, result.Size)
	} else {
		responseText = fmt.Sprintf("PDF validation failed for %s: %s", result.Path, result.Message)
	}

	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handlePDFCompressionHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req := pdf.PDFCompressionHistoryRequest{Limit: request.GetInt("limit", 0)}
	result, err := s.pdfService.PDFCompressionHistory(ctx, req)
	if err != nil {
		return s.toolError(pdf.ToolHistory, err), nil
	}

	if !result.Enabled {
		return mcp.NewToolResultText("Job history is disabled. Start the server with --history <file> to record jobs."), nil
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return s.toolError(pdf.ToolHistory, err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handlePDFServerInfo(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.pdfService.PDFServerInfo(ctx, pdf.PDFServerInfoRequest{}, s.config.ServerName, s.config.Version)
	if err != nil {
		return s.toolError(pdf.ToolServerInfo, err), nil
	}

	return mcp.NewToolResultText(formatServerInfoResult(result)), nil
}

// Formatting functions
func formatCompressResult(result *pdf.PDFCompressFileResult) string {
	text := fmt.Sprintf("Compressed %s\n", result.Path)
	text += fmt.Sprintf("Output: %s\n", result.OutputPath)
	text += fmt.Sprintf("Original size: %d bytes\n", result.OriginalSize)
	text += fmt.Sprintf("Compressed size: %d bytes\n", result.CompressedSize)
	text += fmt.Sprintf("Reduction: %d%%\n", result.Ratio)
	text += fmt.Sprintf("Target: %d KB (%s)\n", result.TargetSizeKB, result.Tier)
	text += fmt.Sprintf("Quality: %.2f, Scale: %.1f, Passes: %d\n", result.Quality, result.Scale, result.Passes)
	text += fmt.Sprintf("Pages: %d of %d\n", result.OutputPages, result.SourcePages)
	if len(result.SkippedPages) > 0 {
		text += fmt.Sprintf("Skipped pages: %v\n", result.SkippedPages)
	}
	if !result.MetTarget {
		text += "\n⚠️  The target size was not reached. Compression to a target is an approximation, not a guarantee.\n"
	}
	return text
}

func formatBatchResult(result *pdf.PDFCompressBatchResult) string {
	text := fmt.Sprintf("Compressed %d of %d file(s)\n", result.Succeeded, result.TotalFiles)
	text += fmt.Sprintf("Total: %d -> %d bytes (%d%% reduction)\n",
		result.TotalOriginalSize, result.TotalCompressedSize, result.OverallRatio)
	text += "\nFiles:\n"
	for i, item := range result.Items {
		if item.Status == pdf.BatchStatusCompleted {
			text += fmt.Sprintf("%d. %s -> %s (%d%%)\n", i+1, item.Path, item.Result.OutputPath, item.Result.Ratio)
		} else {
			text += fmt.Sprintf("%d. %s: %s\n", i+1, item.Path, item.Error)
		}
	}
	return text
}

func formatImageResult(verb string, result *pdf.ImageFileResult) string {
	text := fmt.Sprintf("%s %s into %s\n", verb, strings.Join(result.Inputs, ", "), result.OutputPath)
	text += fmt.Sprintf("Dimensions: %dx%d pixels\n", result.Width, result.Height)
	text += fmt.Sprintf("Size: %d -> %d bytes (JPEG quality %d)\n", result.OriginalSize, result.Size, result.Quality)
	return text
}

func formatFiles(files []pdf.FileInfo) string {
	text := "\nFiles:\n"
	for i, file := range files {
		text += fmt.Sprintf("%d. %s (%d bytes)\n", i+1, file.Path, file.Size)
	}
	return text
}

func formatServerInfoResult(result *pdf.PDFServerInfoResult) string {
	text := fmt.Sprintf("📋 %s v%s - Server Information\n", result.ServerName, result.Version)
	text += fmt.Sprintf("📁 Working Directory: %s\n", result.DefaultDirectory)
	text += fmt.Sprintf("📏 Max File Size: %d MB\n", result.MaxFileSize/(1024*1024))
	text += fmt.Sprintf("🖨️  Renderer: %s, max passes: %d, skip unrenderable pages: %t\n",
		result.Renderer, result.MaxPasses, result.SkipUnrenderable)
	text += fmt.Sprintf("🗂️  Job history: %t\n\n", result.HistoryEnabled)

	if len(result.DirectoryContents) > 0 {
		text += fmt.Sprintf("📂 Directory Contents (%d files found):\n", len(result.DirectoryContents))
		for i, file := range result.DirectoryContents {
			if i >= 10 {
				text += fmt.Sprintf("   ... and %d more files\n", len(result.DirectoryContents)-10)
				break
			}
			text += fmt.Sprintf("   %d. %s (%d bytes)\n", i+1, file.Name, file.Size)
		}
		text += "\n"
	} else {
		text += "📂 Directory Contents: No PDF or image files found in the working directory\n\n"
	}

	text += "🛠️  Available Tools:\n"
	for _, tool := range result.AvailableTools {
		text += fmt.Sprintf("\n• %s\n", tool.Name)
		text += fmt.Sprintf("  Description: %s\n", tool.Description)
		text += fmt.Sprintf("  Usage: %s\n", tool.Usage)
		text += fmt.Sprintf("  Parameters: %s\n", tool.Parameters)
	}

	if len(result.SupportedFormats) > 0 {
		text += "\n🖼️  Supported Image Formats:\n"
		for _, format := range result.SupportedFormats {
			text += fmt.Sprintf("  • %s\n", format)
		}
	}

	text += "\n" + result.UsageGuidance

	return text
}

// Run starts the MCP server in the configured mode
func (s *Server) Run(ctx context.Context) error {
	switch s.config.Mode {
	case config.ModeServer:
		return s.runServerMode(ctx)
	case config.ModeStdio:
		return s.runStdioMode(ctx)
	default:
		return fmt.Errorf("unsupported mode: %s", s.config.Mode)
	}
}

// runStdioMode serves JSON-RPC over stdin/stdout until ctx is done or stdin closes
func (s *Server) runStdioMode(ctx context.Context) error {
	s.logger.Debug("starting stdio transport", "dir", s.config.WorkDirectory)

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}

// runServerMode serves the SSE transport on the configured address until ctx is done
func (s *Server) runServerMode(ctx context.Context) error {
	addr := s.config.Address()
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- sse.Start(addr)
	}()
	s.logger.Info("serving SSE transport", "address", addr, "dir", s.config.WorkDirectory)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve SSE: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := sse.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down SSE server: %w", err)
		}
		return nil
	}
}
