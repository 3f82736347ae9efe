package pagesource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/local/docsplit/internal/render"
)

// PDF is the transplant-capable adapter. pdfcpu owns the object graph used
// for extraction; the rasterizer is only touched for previews.
type PDF struct {
	path  string
	pages int

	mu     sync.Mutex // pdfcpu contexts are not safe for concurrent use
	pdfCtx *model.Context
	raster render.Doc
	opener render.Opener
	closed bool
}

// OpenPDF reads and validates the document at path. The rasterizer is opened
// lazily on the first render.
func OpenPDF(path string, opener render.Opener) (*PDF, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		if errors.Is(err, pdfcpu.ErrWrongPassword) {
			return nil, fmt.Errorf("%w: document is password protected", ErrUnsupportedFormat)
		}
		return nil, fmt.Errorf("%w: pdfcpu read: %v", ErrUnsupportedFormat, err)
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("pdfcpu page count: %w", err)
	}

	log.Debug().Str("file", path).Int("pages", pdfCtx.PageCount).Msg("opened pdf source")
	return &PDF{path: path, pages: pdfCtx.PageCount, pdfCtx: pdfCtx, opener: opener}, nil
}

func (p *PDF) Kind() Kind { return TransplantCapable }

func (p *PDF) PageCount() int { return p.pages }

func (p *PDF) Path() string { return p.path }

func (p *PDF) rasterDoc() (render.Doc, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.raster == nil {
		if p.opener == nil {
			return nil, errors.New("no rasterizer configured")
		}
		d, err := p.opener.Open(p.path)
		if err != nil {
			return nil, err
		}
		p.raster = d
	}
	return p.raster, nil
}

func (p *PDF) RenderPage(ctx context.Context, index int, scale float64) (image.Image, error) {
	if err := checkIndex(index, p.pages); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d, err := p.rasterDoc()
	if err != nil {
		return nil, err
	}
	return d.Render(index, render.DPI(scale))
}

// ExtractTransplantable copies page index into a fresh single-page PDF
// without re-encoding its content.
func (p *PDF) ExtractTransplantable(ctx context.Context, index int) (*Unit, error) {
	if err := checkIndex(index, p.pages); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	pageCtx, err := pdfcpu.ExtractPages(p.pdfCtx, []int{index + 1}, false)
	if err != nil {
		return nil, fmt.Errorf("extract page %d: %w", index, err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(pageCtx, &buf); err != nil {
		return nil, fmt.Errorf("write page %d: %w", index, err)
	}
	return NewUnit(index, buf.Bytes(), nil), nil
}

func (p *PDF) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.pdfCtx = nil
	if p.raster != nil {
		return p.raster.Close()
	}
	return nil
}
