package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/a3tai/mcp-pdf-tools/internal/config"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/assemble"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/render"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/testutil"
)

// flatDocument rasterizes every page as a small grey image, failing on the listed pages
type flatDocument struct {
	pages int
	fail  map[int]bool
}

func (d *flatDocument) NumPage() int { return d.pages }

func (d *flatDocument) ImageDPI(page int, dpi float64) (*image.RGBA, error) {
	if d.fail[page] {
		return nil, errors.New("cannot draw page")
	}
	img := image.NewRGBA(image.Rect(0, 0, int(8.5*dpi/8), int(11*dpi/8)))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 251)
	}
	img.Set(0, 0, color.White)
	return img, nil
}

func (d *flatDocument) Close() error { return nil }

// newTestServer builds a server over a temp working directory with MuPDF faked out
func newTestServer(t *testing.T, failPages ...int) (*Server, string) {
	t.Helper()

	fail := make(map[int]bool)
	for _, p := range failPages {
		fail[p] = true
	}
	restore := render.SetDocumentOpenerForTest(func(src []byte) (render.FitzDocument, error) {
		n, err := assemble.PageCount(src)
		if err != nil {
			return nil, err
		}
		return &flatDocument{pages: n, fail: fail}, nil
	})
	t.Cleanup(restore)

	dir := t.TempDir()
	cfg := &config.Config{
		Mode:          config.ModeStdio,
		Host:          "127.0.0.1",
		WorkDirectory: dir,
		Version:       "1.0.0",
		ServerName:    "test-server",
		MaxFileSize:   10 * 1024 * 1024,
	}

	pdfService, err := pdf.NewService(pdf.ServiceConfig{
		MaxFileSize: cfg.MaxFileSize,
		Directory:   dir,
		Renderer:    render.DefaultConfig(),
		Compress:    compress.DefaultOptions(),
	})
	if err != nil {
		t.Fatalf("Failed to create PDF service: %v", err)
	}

	server, err := NewServer(cfg, pdfService, nil)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return server, dir
}

func writeFile(t *testing.T, path string, data []byte) string {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("result should not be nil")
	}
	if len(result.Content) == 0 {
		t.Fatal("result should have content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

func TestNewServer(t *testing.T) {
	dir := t.TempDir()
	pdfService, err := pdf.NewService(pdf.ServiceConfig{
		MaxFileSize: 1024 * 1024,
		Directory:   dir,
		Renderer:    render.DefaultConfig(),
		Compress:    compress.DefaultOptions(),
	})
	if err != nil {
		t.Fatalf("Failed to create PDF service: %v", err)
	}

	cfg := &config.Config{Mode: config.ModeStdio, WorkDirectory: dir, ServerName: "test-server", Version: "1.0.0"}

	tests := []struct {
		name        string
		config      *config.Config
		service     *pdf.Service
		expectError bool
	}{
		{name: "valid config", config: cfg, service: pdfService},
		{name: "nil service", config: cfg, service: nil, expectError: true},
		{name: "nil config", config: nil, service: pdfService, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewServer(tt.config, tt.service, nil)
			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if server.mcpServer == nil {
				t.Error("mcpServer should be initialized")
			}
			if server.logger == nil {
				t.Error("logger should default when nil")
			}
		})
	}
}

func TestServer_ToolsRegistered(t *testing.T) {
	server, _ := newTestServer(t)

	msg := server.mcpServer.HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}
	var resp struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	got := make(map[string]bool)
	for _, tool := range resp.Result.Tools {
		got[tool.Name] = true
		if !strings.Contains(tool.Description, "**") {
			t.Errorf("tool %s has no long-form description", tool.Name)
		}
	}

	want := []string{
		pdf.ToolCompressFile, pdf.ToolCompressBatch, pdf.ToolMergeFiles, pdf.ToolSplitFile,
		pdf.ToolLockFile, pdf.ToolImagesToPDF, pdf.ToolToImages, pdf.ToolImageResize,
		pdf.ToolImageCompress, pdf.ToolImageMerge, pdf.ToolValidateFile, pdf.ToolHistory,
		pdf.ToolServerInfo,
	}
	if len(got) != len(want) {
		t.Errorf("registered %d tools, want %d", len(got), len(want))
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestServer_HandlePDFCompressFile(t *testing.T) {
	server, dir := newTestServer(t)
	path := writeFile(t, filepath.Join(dir, "report.pdf"), testutil.PDF(t, 3, 0))

	result, err := server.handlePDFCompressFile(context.Background(), callRequest(map[string]any{
		"path":           path,
		"target_size_kb": float64(50),
	}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	text := resultText(t, result)
	output := filepath.Join(dir, "optimized_report.pdf")
	if !strings.Contains(text, "Output: "+output) {
		t.Errorf("expected output path in response, got: %s", text)
	}
	if !strings.Contains(text, "Pages: 3 of 3") {
		t.Errorf("expected page counts in response, got: %s", text)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestServer_HandlePDFCompressFile_Failure(t *testing.T) {
	server, dir := newTestServer(t, 1)
	path := writeFile(t, filepath.Join(dir, "broken.pdf"), testutil.PDF(t, 2, 0))

	result, err := server.handlePDFCompressFile(context.Background(), callRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}

	want := "Compression failed. This might happen with complex or corrupted PDFs."
	if got := resultText(t, result); got != want {
		t.Errorf("error text = %q, want %q", got, want)
	}
}

func TestServer_HandlerArgumentErrors(t *testing.T) {
	server, dir := newTestServer(t)
	outside := filepath.Join(t.TempDir(), "elsewhere.pdf")
	writeFile(t, outside, testutil.PDF(t, 1, 0))
	writeFile(t, filepath.Join(dir, "a.pdf"), testutil.PDF(t, 1, 0))

	type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
	tests := []struct {
		name    string
		handler handler
		args    map[string]any
		wantErr string
	}{
		{"compress without path", server.handlePDFCompressFile, map[string]any{}, "path"},
		{"compress outside directory", server.handlePDFCompressFile, map[string]any{"path": outside}, "security validation failed"},
		{"batch without paths", server.handlePDFCompressBatch, map[string]any{}, "paths"},
		{"merge single file", server.handlePDFMergeFiles, map[string]any{"paths": []any{filepath.Join(dir, "a.pdf")}}, "at least 2"},
		{"lock without password", server.handlePDFLockFile, map[string]any{"path": filepath.Join(dir, "a.pdf")}, "password"},
		{"images without paths", server.handlePDFImagesToPDF, map[string]any{}, "paths"},
		{"split missing file", server.handlePDFSplitFile, map[string]any{"path": filepath.Join(dir, "missing.pdf")}, "security validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.handler(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if !result.IsError {
				t.Fatalf("expected tool error, got: %s", resultText(t, result))
			}
			if text := resultText(t, result); !strings.Contains(text, tt.wantErr) {
				t.Errorf("error text %q does not contain %q", text, tt.wantErr)
			}
		})
	}
}

func TestServer_HandleDocumentTools(t *testing.T) {
	server, dir := newTestServer(t)
	first := writeFile(t, filepath.Join(dir, "first.pdf"), testutil.PDF(t, 2, 0))
	second := writeFile(t, filepath.Join(dir, "second.pdf"), testutil.PDF(t, 1, 2))
	photo := writeFile(t, filepath.Join(dir, "photo.jpg"), testutil.JPEG(t, 40, 30))
	logo := writeFile(t, filepath.Join(dir, "logo.png"), testutil.PNG(t, 20, 10))

	tests := []struct {
		name     string
		call     func() (*mcp.CallToolResult, error)
		contains string
	}{
		{
			name: "merge",
			call: func() (*mcp.CallToolResult, error) {
				return server.handlePDFMergeFiles(context.Background(), callRequest(map[string]any{
					"paths": []any{first, second},
				}))
			},
			contains: "Pages: 3",
		},
		{
			name: "split",
			call: func() (*mcp.CallToolResult, error) {
				return server.handlePDFSplitFile(context.Background(), callRequest(map[string]any{
					"path": first, "output_dir": dir,
				}))
			},
			contains: "page_2.pdf",
		},
		{
			name: "lock",
			call: func() (*mcp.CallToolResult, error) {
				return server.handlePDFLockFile(context.Background(), callRequest(map[string]any{
					"path": second, "password": "secret",
				}))
			},
			contains: "Protected: false",
		},
		{
			name: "images to pdf",
			call: func() (*mcp.CallToolResult, error) {
				return server.handlePDFImagesToPDF(context.Background(), callRequest(map[string]any{
					"paths": []any{photo, logo},
				}))
			},
			contains: "Pages: 2",
		},
		{
			name: "pdf to images",
			call: func() (*mcp.CallToolResult, error) {
				return server.handlePDFToImages(context.Background(), callRequest(map[string]any{
					"path": first, "scale": 1.0,
				}))
			},
			contains: "page_1.jpg",
		},
		{
			name: "image resize",
			call: func() (*mcp.CallToolResult, error) {
				return server.handleImageResizeFile(context.Background(), callRequest(map[string]any{
					"path": photo, "width": float64(20),
				}))
			},
			contains: "Dimensions: 20x15 pixels",
		},
		{
			name: "image compress",
			call: func() (*mcp.CallToolResult, error) {
				return server.handleImageCompressFile(context.Background(), callRequest(map[string]any{
					"path": logo, "quality": float64(50),
				}))
			},
			contains: "JPEG quality 50",
		},
		{
			name: "image merge",
			call: func() (*mcp.CallToolResult, error) {
				return server.handleImageMergeFiles(context.Background(), callRequest(map[string]any{
					"paths": []any{photo, logo},
				}))
			},
			contains: "Dimensions: 40x40 pixels",
		},
		{
			name: "validate",
			call: func() (*mcp.CallToolResult, error) {
				return server.handlePDFValidateFile(context.Background(), callRequest(map[string]any{"path": first}))
			},
			contains: "is valid and readable (2 pages",
		},
		{
			name: "history disabled",
			call: func() (*mcp.CallToolResult, error) {
				return server.handlePDFCompressionHistory(context.Background(), callRequest(nil))
			},
			contains: "Job history is disabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.call()
			if err != nil {
				t.Fatalf("handler failed: %v", err)
			}
			text := resultText(t, result)
			if result.IsError {
				t.Fatalf("unexpected tool error: %s", text)
			}
			if !strings.Contains(text, tt.contains) {
				t.Errorf("expected response to contain %q, got: %s", tt.contains, text)
			}
		})
	}
}

func TestServer_HandlePDFServerInfo(t *testing.T) {
	server, dir := newTestServer(t)
	writeFile(t, filepath.Join(dir, "doc.pdf"), testutil.PDF(t, 1, 0))

	result, err := server.handlePDFServerInfo(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{"test-server v1.0.0", "doc.pdf", pdf.ToolCompressFile, "Renderer: mupdf"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected server info to contain %q", want)
		}
	}
}

// recordingSession captures notifications sent to one client
type recordingSession struct {
	notifications chan mcp.JSONRPCNotification
}

func (r *recordingSession) SessionID() string { return "test-session" }

func (r *recordingSession) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return r.notifications
}

func (r *recordingSession) Initialize() {}

func (r *recordingSession) Initialized() bool { return true }

func TestServer_CompressProgressNotifications(t *testing.T) {
	server, dir := newTestServer(t)
	path := writeFile(t, filepath.Join(dir, "report.pdf"), testutil.PDF(t, 3, 0))

	session := &recordingSession{notifications: make(chan mcp.JSONRPCNotification, 10)}
	ctx := server.mcpServer.WithContext(context.Background(), session)

	request, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      7,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      pdf.ToolCompressFile,
			"arguments": map[string]any{"path": path, "target_size_kb": 50},
			"_meta":     map[string]any{"progressToken": "job-1"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	server.mcpServer.HandleMessage(ctx, request)
	close(session.notifications)

	var progress []any
	for n := range session.notifications {
		if n.Method != progressNotification {
			continue
		}
		if token := n.Params.AdditionalFields["progressToken"]; token != "job-1" {
			t.Errorf("progressToken = %v, want job-1", token)
		}
		progress = append(progress, n.Params.AdditionalFields["progress"])
	}

	want := []any{33, 67, 100}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}
}

func TestServer_Run(t *testing.T) {
	t.Run("unsupported mode", func(t *testing.T) {
		server, _ := newTestServer(t)
		server.config.Mode = "invalid"
		err := server.Run(context.Background())
		if err == nil || !strings.Contains(err.Error(), "unsupported mode") {
			t.Errorf("Run() error = %v, want unsupported mode", err)
		}
	})

	t.Run("server mode stops with context", func(t *testing.T) {
		server, _ := newTestServer(t)
		server.config.Mode = config.ModeServer
		server.config.Port = 0

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- server.Run(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Run() did not return after the context was done")
		}
	})
}
