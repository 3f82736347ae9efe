// Package pagesource adapts paginated documents to the render and transplant
// capabilities the thumbnail pipeline and the recomposition engine consume.
package pagesource

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/local/docsplit/internal/filetype"
)

// Kind tags what a source can do with its pages.
type Kind int

const (
	// RasterCapable sources can only render pages to images. They may still
	// implement Transplanter through an exporter.
	RasterCapable Kind = iota
	// TransplantCapable sources hand out native page objects.
	TransplantCapable
)

func (k Kind) String() string {
	switch k {
	case TransplantCapable:
		return "transplant"
	default:
		return "raster"
	}
}

var (
	ErrTransplantUnsupported = errors.New("page transplant unsupported by source")
	ErrPageOutOfRange        = errors.New("page index out of range")
	ErrUnsupportedFormat     = errors.New("unsupported document format")
	ErrClosed                = errors.New("source closed")
)

// Source is an open paginated document.
type Source interface {
	Kind() Kind
	PageCount() int
	// RenderPage rasterizes the zero-based page at scale (1.0 = 72 dpi).
	RenderPage(ctx context.Context, index int, scale float64) (image.Image, error)
	Close() error
}

// Transplanter hands out a page as a unit that can be inserted losslessly
// into a new document.
type Transplanter interface {
	ExtractTransplantable(ctx context.Context, index int) (*Unit, error)
}

// Unit is one page packaged as a single-page PDF.
type Unit struct {
	Page int
	PDF  []byte

	once    sync.Once
	release func()
}

// NewUnit wraps a single-page PDF. release, if non-nil, runs once on Release.
func NewUnit(page int, pdf []byte, release func()) *Unit {
	return &Unit{Page: page, PDF: pdf, release: release}
}

// Release frees whatever backs the unit. Safe to call more than once.
func (u *Unit) Release() {
	if u == nil {
		return
	}
	u.once.Do(func() {
		if u.release != nil {
			u.release()
		}
		u.PDF = nil
	})
}

// Info describes an opened document.
type Info struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Path      string          `json:"-"`
	MIMEType  string          `json:"mime_type"`
	Family    filetype.Family `json:"family"`
	Kind      string          `json:"kind"`
	PageCount int             `json:"page_count"`
}

func checkIndex(index, count int) error {
	if index < 0 || index >= count {
		return ErrPageOutOfRange
	}
	return nil
}
