package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/mcp-pdf-tools/internal/pdf/render"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Renderer backends
	RendererMuPDF       = string(render.BackendMuPDF)
	RendererGhostscript = string(render.BackendGhostscript)

	// Default values
	DefaultPort            = 8080
	DefaultHost            = "127.0.0.1"
	DefaultLogLevel        = "info"
	DefaultMaxFileSize     = 100 * 1024 * 1024 // 100MB
	DefaultRenderer        = RendererMuPDF
	DefaultGhostscriptPath = "gs"
	DefaultMaxPasses       = 1
	DefaultWorkers         = 4

	// Upper bounds
	MaxPassesLimit = 5
	MaxWorkers     = 64

	// Directory permissions
	DefaultDirPerm = 0o750

	// EnvPrefix is prepended to every configuration key when read from the environment
	EnvPrefix = "MCP_PDF_TOOLS"
)

// Config holds all configuration for the PDF tools MCP server
type Config struct {
	// Server configuration
	Mode string // "server" or "stdio"
	Host string
	Port int

	// WorkDirectory confines every path a tool reads or writes
	WorkDirectory string

	// Compression configuration
	Renderer         string
	GhostscriptPath  string
	DefaultTargetKB  int // 0 suggests a target from the input size
	MaxPasses        int
	SkipUnrenderable bool
	Workers          int

	// HistoryPath is the SQLite job history file; empty disables history
	HistoryPath string

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	MaxFileSize int64 // Maximum input file size in bytes
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:            ModeStdio, // Default to stdio mode for MCP compatibility
		Host:            DefaultHost,
		Port:            DefaultPort,
		WorkDirectory:   currentDir,
		Renderer:        DefaultRenderer,
		GhostscriptPath: DefaultGhostscriptPath,
		MaxPasses:       DefaultMaxPasses,
		Workers:         DefaultWorkers,
		Version:         "1.0.0",
		ServerName:      "mcp-pdf-tools",
		LogLevel:        DefaultLogLevel,
		MaxFileSize:     DefaultMaxFileSize,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	populateConfigFromViper(cfg)

	if cfg.WorkDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.WorkDirectory); err == nil {
			cfg.WorkDirectory = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("dir", cfg.WorkDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("renderer", cfg.Renderer)
	viper.SetDefault("gs", cfg.GhostscriptPath)
	viper.SetDefault("target", cfg.DefaultTargetKB)
	viper.SetDefault("passes", cfg.MaxPasses)
	viper.SetDefault("skip-unrenderable", cfg.SkipUnrenderable)
	viper.SetDefault("workers", cfg.Workers)
	viper.SetDefault("history", cfg.HistoryPath)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP (SSE) server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("dir", cfg.WorkDirectory, "Working directory; every tool path must be inside it")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum input file size in bytes")
	pflag.String("renderer", cfg.Renderer, "Page renderer backend (mupdf, ghostscript)")
	pflag.String("gs", cfg.GhostscriptPath, "Ghostscript binary (ghostscript renderer only)")
	pflag.Int("target", cfg.DefaultTargetKB, "Default target size in KB when a request omits it (0 = 40% of the input)")
	pflag.Int("passes", cfg.MaxPasses, "Maximum compression passes while the output exceeds the target")
	pflag.Bool("skip-unrenderable", cfg.SkipUnrenderable, "Drop pages that cannot be rendered instead of failing the job")
	pflag.Int("workers", cfg.Workers, "Concurrent jobs for batch compression")
	pflag.String("history", cfg.HistoryPath, "SQLite file for job history (empty = disabled)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, key := range []string{
		"mode", "host", "port", "dir", "loglevel", "maxfilesize",
		"renderer", "gs", "target", "passes", "skip-unrenderable", "workers", "history",
	} {
		_ = viper.BindPFlag(key, pflag.Lookup(key))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMCP PDF Tools - A Model Context Protocol server for compressing and rearranging PDF files\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                         "+
			"# stdio mode, current directory (default)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --dir=/path/to/pdfs                     "+
			"# stdio mode with custom directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server --dir=/path/to/pdfs       # server mode\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --renderer=ghostscript --passes=3       # gs rasterizer, retry passes\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %s_MODE               Server mode\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_HOST               Server host\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_PORT               Server port\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_DIR                Working directory\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_LOGLEVEL           Log level\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_MAXFILESIZE        Maximum file size\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_RENDERER           Renderer backend\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_SKIP_UNRENDERABLE  Drop unrenderable pages\n", EnvPrefix)
		fmt.Fprintf(os.Stderr, "  %s_HISTORY            Job history database\n", EnvPrefix)
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.WorkDirectory = viper.GetString("dir")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.Renderer = viper.GetString("renderer")
	cfg.GhostscriptPath = viper.GetString("gs")
	cfg.DefaultTargetKB = viper.GetInt("target")
	cfg.MaxPasses = viper.GetInt("passes")
	cfg.SkipUnrenderable = viper.GetBool("skip-unrenderable")
	cfg.Workers = viper.GetInt("workers")
	cfg.HistoryPath = viper.GetString("history")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Port only matters in server mode
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.WorkDirectory == "" {
		return errors.New("dir cannot be empty")
	}

	// Create the working directory if it doesn't exist
	if _, err := os.Stat(c.WorkDirectory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.WorkDirectory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create dir %s: %w", c.WorkDirectory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access dir %s: %w", c.WorkDirectory, err)
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maxfilesize must be positive")
	}

	backends := render.SupportedBackends()
	if !slices.Contains(backends, render.Backend(c.Renderer)) {
		names := make([]string, len(backends))
		for i, b := range backends {
			names[i] = string(b)
		}
		return fmt.Errorf("invalid renderer: %s (must be one of: %s)", c.Renderer, strings.Join(names, ", "))
	}
	if c.Renderer == RendererGhostscript && c.GhostscriptPath == "" {
		return errors.New("gs cannot be empty with the ghostscript renderer")
	}

	if c.DefaultTargetKB < 0 {
		return errors.New("target cannot be negative")
	}
	if c.MaxPasses < 1 || c.MaxPasses > MaxPassesLimit {
		return fmt.Errorf("passes must be between 1 and %d", MaxPassesLimit)
	}
	if c.Workers < 1 || c.Workers > MaxWorkers {
		return fmt.Errorf("workers must be between 1 and %d", MaxWorkers)
	}

	if _, ok := logLevels[c.LogLevel]; !ok {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger builds a text logger at the configured level writing to w. In stdio mode
// stdout carries the MCP protocol, so callers pass stderr; below debug the output is
// discarded there.
func NewLogger(c *Config, w io.Writer) *slog.Logger {
	level, ok := logLevels[c.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}
	if c.IsStdioMode() && !c.IsDebug() {
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// HistoryEnabled returns true if jobs should be recorded
func (c *Config) HistoryEnabled() bool {
	return c.HistoryPath != ""
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, WorkDirectory: %s, LogLevel: %s, MaxFileSize: %d, "+
		"Renderer: %s, MaxPasses: %d, SkipUnrenderable: %t, Workers: %d, History: %s}",
		c.Mode, c.Host, c.Port, c.WorkDirectory, c.LogLevel, c.MaxFileSize,
		c.Renderer, c.MaxPasses, c.SkipUnrenderable, c.Workers, c.HistoryPath)
}

// IsServerMode returns true if the server is running in HTTP server mode
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the server is running in stdio mode
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
