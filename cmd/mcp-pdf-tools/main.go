package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/mcp-pdf-tools/internal/config"
	"github.com/a3tai/mcp-pdf-tools/internal/history"
	"github.com/a3tai/mcp-pdf-tools/internal/mcp"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/render"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// serviceConfig maps the runtime configuration onto the document service
func serviceConfig(cfg *config.Config, store *history.Store, logger *slog.Logger) pdf.ServiceConfig {
	return pdf.ServiceConfig{
		MaxFileSize: cfg.MaxFileSize,
		Directory:   cfg.WorkDirectory,
		Renderer: render.Config{
			Backend:         render.Backend(cfg.Renderer),
			GhostscriptPath: cfg.GhostscriptPath,
			Logger:          logger,
		},
		Compress: compress.Options{
			SkipUnrenderablePages: cfg.SkipUnrenderable,
			MaxPasses:             cfg.MaxPasses,
		},
		DefaultTargetKB: cfg.DefaultTargetKB,
		Workers:         cfg.Workers,
		History:         store,
		Logger:          logger,
	}
}

// openHistory opens the job history when it is enabled; the returned store may be nil
func openHistory(cfg *config.Config) (*history.Store, error) {
	if !cfg.HistoryEnabled() {
		return nil, nil
	}
	store, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open job history: %w", err)
	}
	return store, nil
}

// runServerMode handles server mode execution with signal handling
func runServerMode(ctx context.Context, cancel context.CancelFunc, server *mcp.Server, logger *slog.Logger) error {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signalCh)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	select {
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()

		if err := <-serverErrCh; err != nil {
			return fmt.Errorf("server shutdown with error: %w", err)
		}

	case err := <-serverErrCh:
		if err != nil {
			return err
		}
	}

	logger.Info("server stopped")
	return nil
}

// runStdioMode handles stdio mode execution. The parent process controls the lifecycle:
// the server returns when stdin closes or the process is interrupted.
func runStdioMode(ctx context.Context, server *mcp.Server) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	pdfService, err := pdf.NewService(serviceConfig(cfg, store, logger))
	if err != nil {
		return fmt.Errorf("failed to create PDF service: %w", err)
	}

	server, err := mcp.NewServer(cfg, pdfService, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.IsServerMode() {
		return runServerMode(ctx, cancel, server, logger)
	}
	return runStdioMode(ctx, server)
}

func main() {
	if isVersionRequest(os.Args[1:]) {
		printVersion(os.Stdout)
		return
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if version != "dev" {
		cfg.Version = version
	}

	logger := config.NewLogger(cfg, os.Stderr)
	slog.SetDefault(logger)
	logger.Debug("starting", "config", cfg.String())

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func isVersionRequest(args []string) bool {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}

// printVersion prints version information
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "MCP PDF Tools\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", gitCommit)
	fmt.Fprintf(w, "Built with: %s\n", runtime.Version())
}
