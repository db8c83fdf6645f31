// Package render rasterizes PDF pages. Backends are selected once at startup through
// Config and are immutable afterwards.
package render

import (
	"fmt"
	"log/slog"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
)

// Backend names a rasterizer implementation
type Backend string

const (
	BackendMuPDF       Backend = "mupdf"
	BackendGhostscript Backend = "ghostscript"

	// pointsPerInch maps scale 1.0 to one pixel per PDF point
	pointsPerInch = 72.0
)

// Config selects and configures the renderer backend
type Config struct {
	Backend         Backend
	GhostscriptPath string
	Logger          *slog.Logger
}

// DefaultConfig renders with MuPDF
func DefaultConfig() Config {
	return Config{
		Backend:         BackendMuPDF,
		GhostscriptPath: "gs",
	}
}

// New creates the renderer described by cfg
func New(cfg Config) (compress.Renderer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case BackendMuPDF, "":
		return NewMuPDFRenderer(logger), nil
	case BackendGhostscript:
		if cfg.GhostscriptPath == "" {
			return nil, fmt.Errorf("ghostscript backend requires a binary path")
		}
		return NewGhostscriptRenderer(cfg.GhostscriptPath, logger), nil
	default:
		return nil, fmt.Errorf("unknown renderer backend: %s", cfg.Backend)
	}
}

// SupportedBackends lists the accepted backend names
func SupportedBackends() []Backend {
	return []Backend{BackendMuPDF, BackendGhostscript}
}

// dpiForScale converts a viewport scale into a rasterization resolution
func dpiForScale(scale float64) float64 {
	return pointsPerInch * scale
}
