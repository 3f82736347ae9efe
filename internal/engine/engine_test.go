package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/local/docsplit/internal/pagesource"
	"github.com/local/docsplit/internal/pdffixture"
)

// memDest keeps the committed file in memory.
type memDest struct {
	validateErr error
	commitErr   error
	commits     int
	data        []byte
	staged      string
}

func (d *memDest) Validate(ctx context.Context) error { return d.validateErr }

func (d *memDest) Commit(ctx context.Context, staged string) (string, error) {
	d.commits++
	d.staged = staged
	if d.commitErr != nil {
		return "", d.commitErr
	}
	data, err := os.ReadFile(staged)
	if err != nil {
		return "", err
	}
	d.data = data
	return "mem://out.pdf", nil
}

// countingPDF counts adapter calls on a real PDF source.
type countingPDF struct {
	*pagesource.PDF
	calls atomic.Int64
}

func (c *countingPDF) ExtractTransplantable(ctx context.Context, i int) (*pagesource.Unit, error) {
	c.calls.Add(1)
	return c.PDF.ExtractTransplantable(ctx, i)
}

func (c *countingPDF) RenderPage(ctx context.Context, i int, scale float64) (image.Image, error) {
	c.calls.Add(1)
	return c.PDF.RenderPage(ctx, i, scale)
}

// rasterOnly is a source with no transplant capability.
type rasterOnly struct {
	pages int
	fail  map[int]bool
	calls atomic.Int64
}

func (r *rasterOnly) Kind() pagesource.Kind { return pagesource.RasterCapable }
func (r *rasterOnly) PageCount() int        { return r.pages }
func (r *rasterOnly) Close() error          { return nil }

func (r *rasterOnly) RenderPage(ctx context.Context, i int, scale float64) (image.Image, error) {
	r.calls.Add(1)
	if r.fail[i] {
		return nil, errors.New("slide export crashed")
	}
	return pdffixture.Solid(int(96*scale), int(72*scale), color.RGBA{R: uint8(i), A: 255}), nil
}

func openFixture(t *testing.T, pages int) *countingPDF {
	t.Helper()
	path := pdffixture.Write(t, t.TempDir(), "src.pdf", pdffixture.Pages(pages))
	src, err := pagesource.OpenPDF(path, &pdffixture.Raster{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { src.Close() })
	return &countingPDF{PDF: src}
}

func newEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	return New(Options{StagingDir: dir, PrintScale: 0.5}), dir
}

func readOut(t *testing.T, data []byte) *model.Context {
	t.Helper()
	ctx, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		t.Fatal(err)
	}
	return ctx
}

func content(t *testing.T, ctx *model.Context, nr int) string {
	t.Helper()
	r, err := pdfcpu.ExtractPageContent(ctx, nr)
	if err != nil {
		t.Fatal(err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func assertStagingEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging dir not cleaned: %d entries", len(entries))
	}
}

func TestDirectCopyInAscendingOrder(t *testing.T) {
	eng, staging := newEngine(t)
	src := openFixture(t, 10)
	dst := &memDest{}
	var states []State
	res, err := eng.Build(context.Background(), src, []int{9, 0, 5}, Request{Mode: DirectCopy}, dst, func(s State, _ int) {
		if len(states) == 0 || states[len(states)-1] != s {
			states = append(states, s)
		}
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if diff := cmp.Diff([]State{Validating, Building, Done}, states); diff != "" {
		t.Errorf("states (-want +got):\n%s", diff)
	}
	if res.OutputPages != 3 || res.Location != "mem://out.pdf" || res.Mode != DirectCopy {
		t.Errorf("result = %+v", res)
	}

	out := readOut(t, dst.data)
	if out.PageCount != 3 {
		t.Fatalf("output pages = %d", out.PageCount)
	}
	for i, want := range []int{0, 5, 9} {
		if c := content(t, out, i+1); !strings.Contains(c, pdffixture.Marker(want)) {
			t.Errorf("output page %d = %q, want source page %d", i, c, want)
		}
	}
	assertStagingEmpty(t, staging)
}

func TestNUpFourCellsOneSheet(t *testing.T) {
	eng, staging := newEngine(t)
	src := openFixture(t, 10)
	dst := &memDest{}
	res, err := eng.Build(context.Background(), src, []int{9, 0, 5}, Request{Mode: NUp, CellsPerSheet: 4}, dst, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.OutputPages != 1 || res.CellsPerSheet != 4 {
		t.Fatalf("result = %+v", res)
	}
	out := readOut(t, dst.data)
	if out.PageCount != 1 {
		t.Fatalf("sheets = %d", out.PageCount)
	}
	if n := strings.Count(content(t, out, 1), " Do"); n != 3 {
		t.Fatalf("placed %d pages, want 3", n)
	}
	assertStagingEmpty(t, staging)
}

func TestNUpSevenOnNine(t *testing.T) {
	eng, _ := newEngine(t)
	src := openFixture(t, 7)
	dst := &memDest{}
	if _, err := eng.Build(context.Background(), src, []int{6, 5, 4, 3, 2, 1, 0}, Request{Mode: NUp, CellsPerSheet: 9}, dst, nil); err != nil {
		t.Fatal(err)
	}
	out := readOut(t, dst.data)
	if out.PageCount != 1 {
		t.Fatalf("sheets = %d", out.PageCount)
	}
	if n := strings.Count(content(t, out, 1), " Do"); n != 7 {
		t.Fatalf("placed %d pages, want 7 with 2 empty slots", n)
	}
}

func TestBlankPageInsideNUpSelection(t *testing.T) {
	pages := pdffixture.Pages(3)
	pages[1].Blank = true
	path := pdffixture.Write(t, t.TempDir(), "blank.pdf", pages)
	pdf, err := pagesource.OpenPDF(path, &pdffixture.Raster{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { pdf.Close() })

	eng, staging := newEngine(t)
	dst := &memDest{}
	res, err := eng.Build(context.Background(), pdf, []int{0, 1, 2}, Request{Mode: NUp, CellsPerSheet: 4}, dst, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.OutputPages != 1 {
		t.Fatalf("result = %+v", res)
	}
	out := readOut(t, dst.data)
	if n := strings.Count(content(t, out, 1), " Do"); n != 3 {
		t.Fatalf("placed %d pages, want 3", n)
	}
	assertStagingEmpty(t, staging)

	copyDst := &memDest{}
	if _, err := eng.Build(context.Background(), pdf, []int{0, 1, 2}, Request{Mode: DirectCopy}, copyDst, nil); err != nil {
		t.Fatalf("direct copy with a blank page: %v", err)
	}
	if got := readOut(t, copyDst.data).PageCount; got != 3 {
		t.Fatalf("output pages = %d", got)
	}
}

func TestValidationHappensBeforeAdapterCalls(t *testing.T) {
	tests := []struct {
		name      string
		selection []int
		req       Request
		dst       *memDest
		nilSource bool
		kind      Kind
		sentinel  error
	}{
		{"empty selection", nil, Request{Mode: DirectCopy}, &memDest{}, false, KindEmptySelection, ErrEmptySelection},
		{"empty nup", []int{}, Request{Mode: NUp, CellsPerSheet: 4}, &memDest{}, false, KindEmptySelection, ErrEmptySelection},
		{"k=3", []int{0}, Request{Mode: NUp, CellsPerSheet: 3}, &memDest{}, false, KindUnsupportedCells, ErrUnsupportedCellsPerSheet},
		{"k=8", []int{0}, Request{Mode: NUp, CellsPerSheet: 8}, &memDest{}, false, KindUnsupportedCells, ErrUnsupportedCellsPerSheet},
		{"k=0 nup", []int{0}, Request{Mode: NUp}, &memDest{}, false, KindUnsupportedCells, ErrUnsupportedCellsPerSheet},
		{"no document", []int{0}, Request{}, &memDest{}, true, KindNoDocumentOpen, ErrNoDocumentOpen},
		{"out of range", []int{0, 4}, Request{}, &memDest{}, false, KindPageOutOfRange, ErrPageOutOfRange},
		{"unwritable", []int{0}, Request{}, &memDest{validateErr: errors.New("read-only")}, false, KindDestinationUnwritable, ErrDestinationUnwritable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, _ := newEngine(t)
			src := openFixture(t, 4)
			var s pagesource.Source = src
			if tt.nilSource {
				s = nil
			}
			var last State
			_, err := eng.Build(context.Background(), s, tt.selection, tt.req, tt.dst, func(st State, _ int) { last = st })
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("err = %v, want %v", err, tt.sentinel)
			}
			var be *BuildError
			if !errors.As(err, &be) || be.Kind != tt.kind || be.Stage != "validate" {
				t.Fatalf("err = %#v, want kind %s", err, tt.kind)
			}
			if KindOf(err) != tt.kind {
				t.Errorf("KindOf = %s", KindOf(err))
			}
			if n := src.calls.Load(); n != 0 {
				t.Errorf("adapter called %d times", n)
			}
			if tt.dst.commits != 0 {
				t.Error("destination committed")
			}
			if last != Failed {
				t.Errorf("final state = %v", last)
			}
		})
	}
}

func TestRasterSourceDirectCopy(t *testing.T) {
	eng, _ := newEngine(t)
	src := &rasterOnly{pages: 3}

	_, err := eng.Build(context.Background(), src, []int{0, 2}, Request{Mode: DirectCopy}, &memDest{}, nil)
	if !errors.Is(err, ErrTransplantUnsupported) || KindOf(err) != KindTransplantUnsupported {
		t.Fatalf("err = %v", err)
	}
	if src.calls.Load() != 0 {
		t.Fatal("adapter called for an unavailable mode")
	}

	dst := &memDest{}
	res, err := eng.Build(context.Background(), src, []int{2, 0}, Request{Mode: DirectCopy, RasterFallback: true}, dst, nil)
	if err != nil {
		t.Fatalf("fallback build: %v", err)
	}
	if res.OutputPages != 2 || readOut(t, dst.data).PageCount != 2 {
		t.Fatalf("fallback output = %+v", res)
	}
}

func TestRasterSourceNUp(t *testing.T) {
	eng, _ := newEngine(t)
	dst := &memDest{}
	res, err := eng.Build(context.Background(), &rasterOnly{pages: 5}, []int{0, 1, 2, 3, 4}, Request{Mode: NUp, CellsPerSheet: 2}, dst, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.OutputPages != 3 || readOut(t, dst.data).PageCount != 3 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRenderFailureAbortsAtomically(t *testing.T) {
	eng, staging := newEngine(t)
	dst := &memDest{}
	_, err := eng.Build(context.Background(), &rasterOnly{pages: 4, fail: map[int]bool{2: true}}, []int{0, 2, 3}, Request{Mode: NUp, CellsPerSheet: 4}, dst, nil)
	var be *BuildError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v", err)
	}
	if be.Kind != KindRenderFailure || be.Page != 2 || be.Stage != "render" {
		t.Fatalf("build error = %+v", be)
	}
	if dst.commits != 0 {
		t.Fatal("partial output committed")
	}
	assertStagingEmpty(t, staging)
}

func TestCommitFailureCleansStaging(t *testing.T) {
	eng, staging := newEngine(t)
	dst := &memDest{commitErr: errors.New("disk full")}
	_, err := eng.Build(context.Background(), openFixture(t, 2), []int{1}, Request{}, dst, nil)
	if KindOf(err) != KindSaveFailure || !errors.Is(err, ErrSaveFailure) {
		t.Fatalf("err = %v", err)
	}
	if _, statErr := os.Stat(dst.staged); !os.IsNotExist(statErr) {
		t.Fatalf("staged file survived: %v", statErr)
	}
	assertStagingEmpty(t, staging)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"direct": DirectCopy, "NUP": NUp, "": DirectCopy} {
		if got, err := ParseMode(in); err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v %v", in, got, err)
		}
	}
	if _, err := ParseMode("booklet"); err == nil {
		t.Error("booklet accepted")
	}
}

func TestNormalize(t *testing.T) {
	if diff := cmp.Diff([]int{0, 5, 9}, normalize([]int{9, 5, 0, 5})); diff != "" {
		t.Fatal(diff)
	}
}
