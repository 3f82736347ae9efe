package render

import (
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"
)

// PointsPerInch maps a render scale to DPI: scale 1.0 renders at native page size.
const PointsPerInch = 72.0

// Doc is an opened document that can be rasterized page by page.
type Doc interface {
	NumPage() int
	// Render rasterizes the zero-based page at the given DPI.
	Render(page int, dpi float64) (image.Image, error)
	Close() error
}

// Opener opens a file into a Doc.
type Opener interface {
	Open(path string) (Doc, error)
}

// FitzOpener opens documents with MuPDF through go-fitz.
type FitzOpener struct{}

func (FitzOpener) Open(path string) (Doc, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	return &fitzDoc{doc: doc, pages: doc.NumPage()}, nil
}

type fitzDoc struct {
	mu     sync.Mutex
	doc    *fitz.Document
	pages  int
	closed bool
}

func (d *fitzDoc) NumPage() int { return d.pages }

func (d *fitzDoc) Render(page int, dpi float64) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("render page %d: document closed", page)
	}
	if page < 0 || page >= d.pages {
		return nil, fmt.Errorf("render page %d: out of range [0,%d)", page, d.pages)
	}
	img, err := d.doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	b := img.Bounds()
	log.Debug().Int("page", page).Float64("dpi", dpi).Int("width", b.Dx()).Int("height", b.Dy()).Msg("rendered page")
	return img, nil
}

func (d *fitzDoc) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}

// DPI converts a render scale to dots per inch.
func DPI(scale float64) float64 { return PointsPerInch * scale }
