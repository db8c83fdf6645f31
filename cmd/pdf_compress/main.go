package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/a3tai/mcp-pdf-tools/internal/config"
	"github.com/a3tai/mcp-pdf-tools/internal/history"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
	pdferrors "github.com/a3tai/mcp-pdf-tools/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/render"
)

const (
	formatText = "text"
	formatJSON = "json"
)

var errHelp = errors.New("help requested")

// options holds the parsed command line
type options struct {
	input            string
	output           string
	targetKB         int
	renderer         string
	gsPath           string
	passes           int
	skipUnrenderable bool
	format           string
	history          string
	verbose          bool
}

// logLevel maps --verbose onto the server's log levels
func (o *options) logLevel() string {
	if o.verbose {
		return "debug"
	}
	return "warn"
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	fs := pflag.NewFlagSet("pdf_compress", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVarP(&opts.targetKB, "target", "t", 0, "Target size in KB (0 = 40% of the input, at least 20 KB)")
	fs.StringVarP(&opts.output, "output", "o", "", "Output file (default optimized_<name> next to the input)")
	fs.StringVar(&opts.renderer, "renderer", config.DefaultRenderer, "Page renderer backend (mupdf, ghostscript)")
	fs.StringVar(&opts.gsPath, "gs", config.DefaultGhostscriptPath, "Ghostscript binary (ghostscript renderer only)")
	fs.IntVar(&opts.passes, "passes", config.DefaultMaxPasses, "Maximum compression passes while the output exceeds the target")
	fs.BoolVar(&opts.skipUnrenderable, "skip-unrenderable", false, "Drop pages that cannot be rendered instead of failing")
	fs.StringVar(&opts.format, "format", formatText, "Output format: text, json")
	fs.StringVar(&opts.history, "history", "", "SQLite file to record the job in (empty = disabled)")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable verbose output")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "PDF Compress - shrink a PDF towards a target size by re-encoding every page\n\n")
		fmt.Fprintf(stderr, "USAGE:\n  pdf_compress [OPTIONS] <pdf_file>\n\nOPTIONS:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nEXAMPLES:\n")
		fmt.Fprintf(stderr, "  pdf_compress report.pdf\n")
		fmt.Fprintf(stderr, "  pdf_compress -t 200 -o small.pdf scans/report.pdf\n")
		fmt.Fprintf(stderr, "  pdf_compress --renderer ghostscript --passes 3 --format json report.pdf\n")
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, errHelp
		}
		return nil, err
	}

	if fs.NArg() != 1 {
		fs.Usage()
		return nil, fmt.Errorf("exactly one PDF file path required")
	}
	opts.input = fs.Arg(0)

	if opts.format != formatText && opts.format != formatJSON {
		return nil, fmt.Errorf("invalid format: %s (must be %s or %s)", opts.format, formatText, formatJSON)
	}
	if opts.targetKB < 0 {
		return nil, fmt.Errorf("target must be positive, got %d", opts.targetKB)
	}
	if opts.passes < 1 || opts.passes > config.MaxPassesLimit {
		return nil, fmt.Errorf("passes must be between 1 and %d, got %d", config.MaxPassesLimit, opts.passes)
	}
	return opts, nil
}

// workDirectory returns the directory that confines the job: the input's directory,
// widened to the output's when the two differ
func workDirectory(input, output string) (string, error) {
	in, err := filepath.Abs(input)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(in)
	if output == "" {
		return dir, nil
	}

	out, err := filepath.Abs(output)
	if err != nil {
		return "", err
	}
	outDir := filepath.Dir(out)
	for !isWithin(dir, outDir) {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dir, nil
}

func isWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func run(ctx context.Context, opts *options, stdout, stderr io.Writer) error {
	logger := config.NewLogger(&config.Config{Mode: config.ModeServer, LogLevel: opts.logLevel()}, stderr)

	dir, err := workDirectory(opts.input, opts.output)
	if err != nil {
		return err
	}

	var store *history.Store
	if opts.history != "" {
		store, err = history.Open(opts.history)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	service, err := pdf.NewService(pdf.ServiceConfig{
		MaxFileSize: config.DefaultMaxFileSize,
		Directory:   dir,
		Renderer: render.Config{
			Backend:         render.Backend(opts.renderer),
			GhostscriptPath: opts.gsPath,
			Logger:          logger,
		},
		Compress: compress.Options{
			SkipUnrenderablePages: opts.skipUnrenderable,
			MaxPasses:             opts.passes,
		},
		History: store,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	var output string
	if opts.output != "" {
		if output, err = filepath.Abs(opts.output); err != nil {
			return err
		}
	}
	input, err := filepath.Abs(opts.input)
	if err != nil {
		return err
	}

	onProgress := func(percent int) {
		if opts.format == formatText {
			fmt.Fprintf(stderr, "\rCompressing... %3d%%", percent)
		}
	}

	result, err := service.PDFCompressFile(ctx, pdf.PDFCompressFileRequest{
		Path:         input,
		TargetSizeKB: opts.targetKB,
		OutputPath:   output,
	}, onProgress)
	if opts.format == formatText {
		fmt.Fprintln(stderr)
	}
	if err != nil {
		logger.Debug("compression failed", "error", err)
		return errors.New(pdferrors.UserMessage(err))
	}

	return printResult(stdout, opts.format, result)
}

func printResult(w io.Writer, format string, result *pdf.PDFCompressFileResult) error {
	if format == formatJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	fmt.Fprintf(w, "Output:          %s\n", result.OutputPath)
	fmt.Fprintf(w, "Original size:   %d bytes\n", result.OriginalSize)
	fmt.Fprintf(w, "Compressed size: %d bytes\n", result.CompressedSize)
	fmt.Fprintf(w, "Reduction:       %d%%\n", result.Ratio)
	fmt.Fprintf(w, "Target:          %d KB (%s)\n", result.TargetSizeKB, result.Tier)
	fmt.Fprintf(w, "Quality/scale:   %.2f / %.1f, %d pass(es)\n", result.Quality, result.Scale, result.Passes)
	fmt.Fprintf(w, "Pages:           %d of %d\n", result.OutputPages, result.SourcePages)
	if len(result.SkippedPages) > 0 {
		fmt.Fprintf(w, "Skipped pages:   %v\n", result.SkippedPages)
	}
	if !result.MetTarget {
		fmt.Fprintf(w, "\nThe target size was not reached; the result is an approximation.\n")
	}
	return nil
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, errHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
