package pdffixture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/local/docsplit/internal/render"
)

// Raster is a render.Opener that never touches MuPDF. Pages render as solid
// images sized like a US-letter page at the requested DPI, with the page index
// encoded in the red channel.
type Raster struct {
	// Fail lists page indices whose render returns an error.
	Fail map[int]bool
	// Delay is slept before every render.
	Delay time.Duration

	mu      sync.Mutex
	dpis    []float64
	renders atomic.Int64
	opened  atomic.Int64
}

var errFakeRender = errors.New("fake render failure")

func (r *Raster) Open(path string) (render.Doc, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("fake raster open: %w", err)
	}
	r.opened.Add(1)
	return &rasterDoc{r: r, pages: n}, nil
}

// Renders returns how many renders were attempted.
func (r *Raster) Renders() int { return int(r.renders.Load()) }

// Opened returns how many documents were opened.
func (r *Raster) Opened() int { return int(r.opened.Load()) }

// DPIs returns the DPI of every render call in call order.
func (r *Raster) DPIs() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.dpis...)
}

type rasterDoc struct {
	r      *Raster
	pages  int
	closed atomic.Bool
}

func (d *rasterDoc) NumPage() int { return d.pages }

func (d *rasterDoc) Render(page int, dpi float64) (image.Image, error) {
	d.r.renders.Add(1)
	d.r.mu.Lock()
	d.r.dpis = append(d.r.dpis, dpi)
	d.r.mu.Unlock()
	if d.r.Delay > 0 {
		time.Sleep(d.r.Delay)
	}
	if d.closed.Load() {
		return nil, errors.New("fake raster: closed")
	}
	if d.r.Fail[page] {
		return nil, errFakeRender
	}
	w := int(612*dpi/72 + 0.5)
	h := int(792*dpi/72 + 0.5)
	return Solid(w, h, color.RGBA{R: uint8(page), A: 255}), nil
}

func (d *rasterDoc) Close() error {
	d.closed.Store(true)
	return nil
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}
