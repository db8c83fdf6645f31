package compress

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"
)

type fakePage struct {
	width, height float64 // points
	fail          bool
	failErr       error
}

type fakeRenderer struct {
	pages   []fakePage
	openErr error
}

func (r *fakeRenderer) Open(src []byte) (SourceDocument, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	return &fakeDocument{pages: r.pages}, nil
}

type fakeDocument struct {
	mu     sync.Mutex
	pages  []fakePage
	scales []float64
	closed bool
}

func (d *fakeDocument) NumPages() int { return len(d.pages) }

func (d *fakeDocument) RenderPage(index int, scale float64) (image.Image, error) {
	d.mu.Lock()
	d.scales = append(d.scales, scale)
	d.mu.Unlock()

	p := d.pages[index]
	if p.failErr != nil {
		return nil, p.failErr
	}
	if p.fail {
		return nil, errors.New("no drawing surface")
	}
	w := int(math.Round(p.width * scale))
	h := int(math.Round(p.height * scale))
	return image.NewGray(image.Rect(0, 0, w, h)), nil
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

// fakeEncoder emits one byte per 100 pixels scaled by quality, deterministically
type fakeEncoder struct {
	mu        sync.Mutex
	qualities []float64
	err       error
}

func (e *fakeEncoder) Encode(img image.Image, quality float64) ([]byte, error) {
	e.mu.Lock()
	e.qualities = append(e.qualities, quality)
	e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}
	b := img.Bounds()
	n := int(float64(b.Dx()*b.Dy())/100*quality) + 1
	return bytes.Repeat([]byte{0xFF}, n), nil
}

type addedPage struct {
	size          int
	width, height int
}

type fakeAssembler struct {
	mu      sync.Mutex
	docs    []*fakeOutput
	addErr  error
	saveErr error
}

func (a *fakeAssembler) NewDocument() OutputDocument {
	a.mu.Lock()
	defer a.mu.Unlock()
	doc := &fakeOutput{addErr: a.addErr, saveErr: a.saveErr}
	a.docs = append(a.docs, doc)
	return doc
}

func (a *fakeAssembler) last() *fakeOutput {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.docs[len(a.docs)-1]
}

type fakeOutput struct {
	pages   []addedPage
	saves   int
	addErr  error
	saveErr error
}

func (o *fakeOutput) AddImagePage(encoded []byte, width, height int) error {
	if o.addErr != nil {
		return o.addErr
	}
	o.pages = append(o.pages, addedPage{size: len(encoded), width: width, height: height})
	return nil
}

func (o *fakeOutput) PageCount() int { return len(o.pages) }

func (o *fakeOutput) Save() ([]byte, error) {
	o.saves++
	if o.saveErr != nil {
		return nil, o.saveErr
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	for i, p := range o.pages {
		fmt.Fprintf(&buf, "page %d %dx%d\n", i+1, p.width, p.height)
		buf.Write(bytes.Repeat([]byte{0}, p.size))
	}
	return buf.Bytes(), nil
}

func letterPages(n int) []fakePage {
	pages := make([]fakePage, n)
	for i := range pages {
		pages[i] = fakePage{width: 612, height: 792}
	}
	return pages
}
