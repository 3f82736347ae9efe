package pagesource

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/local/docsplit/internal/converter"
	"github.com/local/docsplit/internal/digest"
	"github.com/local/docsplit/internal/filetype"
	"github.com/local/docsplit/internal/metrics"
	"github.com/local/docsplit/internal/render"
)

// Converter is the automation host: it produces a PDF rendition of a
// proprietary editable format.
type Converter interface {
	Convert(ctx context.Context, inputPath string) (converter.Result, error)
}

// Opener picks the adapter for a file by its detected type.
type Opener struct {
	Detector  *filetype.Detector
	Converter Converter
	Raster    render.Opener

	// SlideExport enables the slide exporter (DirectCopy for decks).
	SlideExport bool
	// ExportScale is the render scale used for exported slide units.
	ExportScale   float64
	ExportQuality int
}

// Open detects the format of path and returns the matching source.
// name is the user-facing document name; empty means the file's base name.
func (o *Opener) Open(ctx context.Context, path, name string) (Source, Info, error) {
	if name == "" {
		name = filepath.Base(path)
	}
	det := o.Detector
	if det == nil {
		det = filetype.New()
	}
	ft, err := det.Detect(path)
	if err != nil {
		return nil, Info{}, err
	}
	info := Info{Name: name, Path: path, MIMEType: ft.MIMEType, Family: ft.Family}
	if !ft.Supported {
		metrics.DocumentOpened(string(ft.Family), "unsupported")
		return nil, info, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ft.Description)
	}
	if info.ID, err = digest.File(path); err != nil {
		return nil, info, err
	}

	src, err := o.open(ctx, path, ft)
	if err != nil {
		metrics.DocumentOpened(string(ft.Family), "failed")
		return nil, info, err
	}
	info.Kind = src.Kind().String()
	info.PageCount = src.PageCount()
	metrics.DocumentOpened(string(ft.Family), "ok")
	log.Info().Str("doc", info.ID).Str("name", name).Str("family", string(ft.Family)).Str("kind", info.Kind).Int("pages", info.PageCount).Msg("document opened")
	return src, info, nil
}

func (o *Opener) open(ctx context.Context, path string, ft *filetype.FileTypeInfo) (Source, error) {
	if !ft.NeedsConversion() {
		return OpenPDF(path, o.Raster)
	}
	if o.Converter == nil {
		return nil, fmt.Errorf("%w: %s needs the automation host", ErrUnsupportedFormat, ft.Description)
	}
	res, err := o.Converter.Convert(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", filepath.Base(path), err)
	}

	switch ft.Family {
	case filetype.FamilySlides:
		s, err := OpenSlides(res.OutputPath, o.Raster)
		if err != nil {
			return nil, err
		}
		if !o.SlideExport {
			return s, nil
		}
		scale := o.ExportScale
		if scale <= 0 {
			scale = 2
		}
		return &SlideExporter{Slides: s, Scale: scale, Quality: o.ExportQuality}, nil
	default:
		// word processing renditions are regular PDFs
		return OpenPDF(res.OutputPath, o.Raster)
	}
}
