package pdf

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-tools/internal/history"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/assemble"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/compress"
	"github.com/a3tai/mcp-pdf-tools/internal/pdf/render"
)

// fakeFitz stands in for MuPDF: it rasterizes a US Letter page as a flat image
type fakeFitz struct {
	pages int
	fail  map[int]bool
}

func (f *fakeFitz) NumPage() int { return f.pages }

func (f *fakeFitz) ImageDPI(page int, dpi float64) (*image.RGBA, error) {
	if f.fail[page] {
		return nil, errors.New("cannot draw page")
	}
	w, h := int(8.5*dpi/4), int(11*dpi/4)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 2), B: uint8(page * 40), A: 255})
		}
	}
	return img, nil
}

func (f *fakeFitz) Close() error { return nil }

type testEnv struct {
	service *Service
	dir     string
	history *history.Store

	mu        sync.Mutex
	failPages map[int]bool
}

type envOption func(*ServiceConfig)

func withCompressOptions(opts compress.Options) envOption {
	return func(c *ServiceConfig) { c.Compress = opts }
}

func withoutHistory() envOption {
	return func(c *ServiceConfig) { c.History = nil }
}

func withMaxFileSize(n int64) envOption {
	return func(c *ServiceConfig) { c.MaxFileSize = n }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{dir: t.TempDir()}

	restore := render.SetDocumentOpenerForTest(func(src []byte) (render.FitzDocument, error) {
		n, err := assemble.PageCount(src)
		if err != nil {
			return nil, err
		}
		env.mu.Lock()
		defer env.mu.Unlock()
		return &fakeFitz{pages: n, fail: env.failPages}, nil
	})
	t.Cleanup(restore)

	store, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	env.history = store

	cfg := ServiceConfig{
		MaxFileSize: 10 * 1024 * 1024,
		Directory:   env.dir,
		Renderer:    render.DefaultConfig(),
		Compress:    compress.DefaultOptions(),
		Workers:     2,
		History:     store,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	svc, err := NewService(cfg)
	require.NoError(t, err)
	env.service = svc
	return env
}

func (e *testEnv) failOn(pages ...int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failPages = make(map[int]bool)
	for _, p := range pages {
		e.failPages[p] = true
	}
}

// write stores data under name in the working directory and returns its path
func (e *testEnv) write(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func pageCount(t *testing.T, path string) int {
	t.Helper()
	n, err := assemble.PageCount(readFile(t, path))
	require.NoError(t, err)
	return n
}
