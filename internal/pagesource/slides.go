package pagesource

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/docsplit/internal/render"
)

// Slides is the raster-only adapter for slide decks. The deck has been made
// renderable by the automation host; pages are only ever seen as images.
type Slides struct {
	mu     sync.Mutex
	raster render.Doc
	pages  int
	closed bool
}

// OpenSlides opens the rendition produced by the automation host.
func OpenSlides(renditionPath string, opener render.Opener) (*Slides, error) {
	d, err := opener.Open(renditionPath)
	if err != nil {
		return nil, err
	}
	return &Slides{raster: d, pages: d.NumPage()}, nil
}

func (s *Slides) Kind() Kind { return RasterCapable }

func (s *Slides) PageCount() int { return s.pages }

func (s *Slides) RenderPage(ctx context.Context, index int, scale float64) (image.Image, error) {
	if err := checkIndex(index, s.pages); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return s.raster.Render(index, render.DPI(scale))
}

func (s *Slides) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.raster.Close()
}

// SlideExporter adds the "give me slide K as an insertable unit" capability to
// a raster source: the slide is rendered at export scale and wrapped as a
// single image page.
type SlideExporter struct {
	*Slides
	Scale   float64
	Quality int
}

func (e *SlideExporter) ExtractTransplantable(ctx context.Context, index int) (*Unit, error) {
	img, err := e.RenderPage(ctx, index, e.Scale)
	if err != nil {
		return nil, fmt.Errorf("export slide %d: %w", index, err)
	}
	pdf, err := ImagePage(img, e.Quality)
	if err != nil {
		return nil, fmt.Errorf("export slide %d: %w", index, err)
	}
	return NewUnit(index, pdf, nil), nil
}

// ImagePage wraps img as a one-page PDF whose page is the size of the image.
func ImagePage(img image.Image, quality int) ([]byte, error) {
	jpg, err := render.EncodeJPEG(img, quality)
	if err != nil {
		return nil, err
	}
	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full
	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, []io.Reader{bytes.NewReader(jpg)}, imp, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("import image page: %w", err)
	}
	return buf.Bytes(), nil
}
