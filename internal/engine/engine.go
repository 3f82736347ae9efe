// Package engine turns a document and an ordered page selection into an
// output document, either page for page or packed N-up onto sheets.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docsplit/internal/compose"
	"github.com/local/docsplit/internal/metrics"
	"github.com/local/docsplit/internal/pagesource"
)

// Mode selects how pages are recomposed.
type Mode int

const (
	DirectCopy Mode = iota
	NUp
)

func (m Mode) String() string {
	if m == NUp {
		return "nup"
	}
	return "direct"
}

// ParseMode accepts "direct" and "nup".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "direct", "directcopy", "direct_copy":
		return DirectCopy, nil
	case "nup", "n-up", "n_up":
		return NUp, nil
	default:
		return DirectCopy, fmt.Errorf("unknown mode %q", s)
	}
}

// State is a step of one build.
type State int

const (
	Idle State = iota
	Validating
	Building
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Validating:
		return "validating"
	case Building:
		return "building"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Request describes one export or print.
type Request struct {
	Mode          Mode
	CellsPerSheet int
	// RasterFallback lets DirectCopy of a raster-only source emit image pages.
	RasterFallback bool
}

// resolve returns the effective mode and layout for the request. An explicit
// direct copy ignores a valid cell count; NUp with one cell is a direct copy.
func (r Request) resolve() (Mode, compose.Layout, error) {
	k := r.CellsPerSheet
	if k == 0 && r.Mode == DirectCopy {
		k = 1
	}
	layout, err := compose.LayoutFor(k)
	if err != nil {
		return 0, compose.Layout{}, fmt.Errorf("%w: got %d", ErrUnsupportedCellsPerSheet, k)
	}
	if k == 1 || r.Mode == DirectCopy {
		single, _ := compose.LayoutFor(1)
		return DirectCopy, single, nil
	}
	return NUp, layout, nil
}

// Destination receives a staged output file.
type Destination interface {
	// Validate checks the destination can be written before any work is done.
	Validate(ctx context.Context) error
	// Commit reveals the staged file at the destination and returns its location.
	Commit(ctx context.Context, stagedPath string) (string, error)
}

// Progress receives state changes and percent complete.
type Progress func(state State, percent int)

// Result describes a finished build.
type Result struct {
	Mode          Mode
	CellsPerSheet int
	SourcePages   []int
	OutputPages   int
	Location      string
	Bytes         int64
	Duration      time.Duration
}

// Options configures an Engine.
type Options struct {
	StagingDir string
	// PrintScale is the render scale for image units (1.0 = 72 dpi).
	PrintScale float64
	Fit        compose.Fit
	Quality    int
}

// Engine builds output documents. It is safe for concurrent use; callers
// serialize builds per document.
type Engine struct {
	stagingDir string
	printScale float64
	fit        compose.Fit
	quality    int
}

func New(opts Options) *Engine {
	if opts.StagingDir == "" {
		opts.StagingDir = filepath.Join(os.TempDir(), "docsplit-staging")
	}
	if opts.PrintScale <= 0 {
		opts.PrintScale = 2
	}
	if opts.Quality <= 0 {
		opts.Quality = 90
	}
	return &Engine{stagingDir: opts.StagingDir, printScale: opts.PrintScale, fit: opts.Fit, quality: opts.Quality}
}

// StagingDir returns where builds stage their output.
func (e *Engine) StagingDir() string { return e.stagingDir }

// Build validates the request, assembles the output from src and hands it to
// dst. Nothing reaches dst unless the whole document was produced.
func (e *Engine) Build(ctx context.Context, src pagesource.Source, selection []int, req Request, dst Destination, progress Progress) (res Result, err error) {
	if progress == nil {
		progress = func(State, int) {}
	}
	start := time.Now()
	progress(Validating, 0)

	pages, mode, layout, err := e.validate(ctx, src, selection, req, dst)
	if err != nil {
		progress(Failed, 0)
		log.Warn().Err(err).Msg("build rejected")
		return Result{}, err
	}

	record := metrics.BuildStarted(mode.String())
	defer func() {
		if err != nil {
			record(string(KindOf(err)))
			progress(Failed, 0)
			log.Error().Err(err).Str("mode", mode.String()).Ints("pages", pages).Msg("build failed")
			return
		}
		record("ok")
	}()

	progress(Building, 0)
	units, err := e.collect(ctx, src, pages, mode, req.RasterFallback, progress)
	defer func() {
		for _, u := range units {
			u.Release()
		}
	}()
	if err != nil {
		return Result{}, err
	}

	raw := make([][]byte, len(units))
	for i, u := range units {
		raw[i] = u.PDF
	}
	var out []byte
	if mode == NUp {
		out, err = compose.NUp(raw, layout, e.fit)
	} else {
		out, err = compose.Concat(raw)
	}
	if err != nil {
		return Result{}, fail(KindSaveFailure, "compose", -1, fmt.Errorf("%w: %v", ErrSaveFailure, err))
	}
	progress(Building, 90)

	if err := os.MkdirAll(e.stagingDir, 0o755); err != nil {
		return Result{}, fail(KindSaveFailure, "stage", -1, fmt.Errorf("%w: %v", ErrSaveFailure, err))
	}
	dir, err := os.MkdirTemp(e.stagingDir, "build-")
	if err != nil {
		return Result{}, fail(KindSaveFailure, "stage", -1, fmt.Errorf("%w: %v", ErrSaveFailure, err))
	}
	defer os.RemoveAll(dir)

	staged := filepath.Join(dir, "output.pdf")
	if err := os.WriteFile(staged, out, 0o644); err != nil {
		return Result{}, fail(KindSaveFailure, "save", -1, fmt.Errorf("%w: %v", ErrSaveFailure, err))
	}

	location, err := dst.Commit(ctx, staged)
	if err != nil {
		if errors.Is(err, ErrDestinationUnwritable) {
			return Result{}, fail(KindDestinationUnwritable, "commit", -1, err)
		}
		return Result{}, fail(KindSaveFailure, "commit", -1, fmt.Errorf("%w: %v", ErrSaveFailure, err))
	}

	res = Result{
		Mode:          mode,
		CellsPerSheet: layout.CellsPerSheet,
		SourcePages:   pages,
		OutputPages:   len(pages),
		Location:      location,
		Bytes:         int64(len(out)),
		Duration:      time.Since(start),
	}
	if mode == NUp {
		res.OutputPages = layout.Sheets(len(pages))
	}
	progress(Done, 100)
	log.Info().Str("mode", mode.String()).Int("cells", layout.CellsPerSheet).Int("selected", len(pages)).Int("output_pages", res.OutputPages).Str("location", location).Dur("duration", res.Duration).Msg("build complete")
	return res, nil
}

// Validate checks a build request without touching the adapter.
func (e *Engine) Validate(ctx context.Context, src pagesource.Source, selection []int, req Request, dst Destination) error {
	_, _, _, err := e.validate(ctx, src, selection, req, dst)
	return err
}

// validate runs every precondition before the adapter is touched.
func (e *Engine) validate(ctx context.Context, src pagesource.Source, selection []int, req Request, dst Destination) ([]int, Mode, compose.Layout, error) {
	if src == nil {
		return nil, 0, compose.Layout{}, fail(KindNoDocumentOpen, "validate", -1, ErrNoDocumentOpen)
	}
	pages := normalize(selection)
	if len(pages) == 0 {
		return nil, 0, compose.Layout{}, fail(KindEmptySelection, "validate", -1, ErrEmptySelection)
	}
	mode, layout, err := req.resolve()
	if err != nil {
		return nil, 0, compose.Layout{}, fail(KindUnsupportedCells, "validate", -1, err)
	}
	count := src.PageCount()
	for _, p := range pages {
		if p < 0 || p >= count {
			return nil, 0, compose.Layout{}, fail(KindPageOutOfRange, "validate", p, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, p, count))
		}
	}
	if mode == DirectCopy && !req.RasterFallback {
		if _, ok := src.(pagesource.Transplanter); !ok {
			return nil, 0, compose.Layout{}, fail(KindTransplantUnsupported, "validate", -1, ErrTransplantUnsupported)
		}
	}
	if dst == nil {
		return nil, 0, compose.Layout{}, fail(KindDestinationUnwritable, "validate", -1, ErrDestinationUnwritable)
	}
	if err := dst.Validate(ctx); err != nil {
		if !errors.Is(err, ErrDestinationUnwritable) {
			err = fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
		}
		return nil, 0, compose.Layout{}, fail(KindDestinationUnwritable, "validate", -1, err)
	}
	return pages, mode, layout, nil
}

// collect turns each selected page into a single-page unit, in order.
// Sources without a transplant capability get rendered image pages.
func (e *Engine) collect(ctx context.Context, src pagesource.Source, pages []int, mode Mode, fallback bool, progress Progress) ([]*pagesource.Unit, error) {
	tr, canTransplant := src.(pagesource.Transplanter)
	units := make([]*pagesource.Unit, 0, len(pages))
	for i, p := range pages {
		var (
			u   *pagesource.Unit
			err error
		)
		if canTransplant {
			u, err = tr.ExtractTransplantable(ctx, p)
			if err != nil {
				if errors.Is(err, pagesource.ErrTransplantUnsupported) {
					return units, fail(KindTransplantUnsupported, "extract", p, err)
				}
				return units, fail(KindRenderFailure, "extract", p, fmt.Errorf("%w: %v", ErrRenderFailure, err))
			}
		} else {
			if mode == DirectCopy && !fallback {
				return units, fail(KindTransplantUnsupported, "extract", p, ErrTransplantUnsupported)
			}
			u, err = e.imageUnit(ctx, src, p)
			if err != nil {
				return units, fail(KindRenderFailure, "render", p, fmt.Errorf("%w: %v", ErrRenderFailure, err))
			}
		}
		units = append(units, u)
		progress(Building, (i+1)*80/len(pages))
	}
	return units, nil
}

func (e *Engine) imageUnit(ctx context.Context, src pagesource.Source, page int) (*pagesource.Unit, error) {
	img, err := src.RenderPage(ctx, page, e.printScale)
	if err != nil {
		return nil, err
	}
	pdf, err := pagesource.ImagePage(img, e.quality)
	if err != nil {
		return nil, err
	}
	return pagesource.NewUnit(page, pdf, nil), nil
}

// normalize returns the selection ascending and deduplicated.
func normalize(selection []int) []int {
	out := append([]int(nil), selection...)
	sort.Ints(out)
	n := 0
	for i, p := range out {
		if i > 0 && p == out[n-1] {
			continue
		}
		out[n] = p
		n++
	}
	return out[:n]
}
