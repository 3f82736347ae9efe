package pagesource

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/local/docsplit/internal/converter"
	"github.com/local/docsplit/internal/filetype"
	"github.com/local/docsplit/internal/pdffixture"
)

// unitPage returns the page count of a unit and the content stream of its first page.
func unitPage(t *testing.T, pdf []byte) (int, string) {
	t.Helper()
	ctx, err := api.ReadContext(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	if err != nil {
		t.Fatalf("read unit: %v", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		t.Fatal(err)
	}
	r, err := pdfcpu.ExtractPageContent(ctx, 1)
	if err != nil {
		t.Fatalf("extract content: %v", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return ctx.PageCount, string(data)
}

func TestPDFTransplantKeepsPageContent(t *testing.T) {
	path := pdffixture.Write(t, t.TempDir(), "doc.pdf", pdffixture.Pages(5))
	src, err := OpenPDF(path, &pdffixture.Raster{})
	if err != nil {
		t.Fatalf("OpenPDF: %v", err)
	}
	defer src.Close()

	if src.Kind() != TransplantCapable || src.PageCount() != 5 {
		t.Fatalf("kind=%v pages=%d", src.Kind(), src.PageCount())
	}

	for _, idx := range []int{0, 2, 4} {
		u, err := src.ExtractTransplantable(context.Background(), idx)
		if err != nil {
			t.Fatalf("extract %d: %v", idx, err)
		}
		n, content := unitPage(t, u.PDF)
		if n != 1 {
			t.Errorf("unit %d has %d pages", idx, n)
		}
		if !strings.Contains(content, pdffixture.Marker(idx)) {
			t.Errorf("unit %d content %q does not carry %s", idx, content, pdffixture.Marker(idx))
		}
		u.Release()
		u.Release()
	}
}

func TestPDFBounds(t *testing.T) {
	path := pdffixture.Write(t, t.TempDir(), "doc.pdf", pdffixture.Pages(2))
	src, err := OpenPDF(path, &pdffixture.Raster{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := src.ExtractTransplantable(ctx, 2); !errors.Is(err, ErrPageOutOfRange) {
		t.Errorf("extract past end: %v", err)
	}
	if _, err := src.RenderPage(ctx, -1, 0.5); !errors.Is(err, ErrPageOutOfRange) {
		t.Errorf("render negative: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := src.ExtractTransplantable(ctx, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("extract after close: %v", err)
	}
	if _, err := src.RenderPage(ctx, 0, 0.5); !errors.Is(err, ErrClosed) {
		t.Errorf("render after close: %v", err)
	}
}

func TestPDFRenderUsesScale(t *testing.T) {
	raster := &pdffixture.Raster{}
	path := pdffixture.Write(t, t.TempDir(), "doc.pdf", pdffixture.Pages(3))
	src, err := OpenPDF(path, raster)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	img, err := src.RenderPage(context.Background(), 1, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 306 || b.Dy() != 396 {
		t.Errorf("half-scale letter page = %v", b)
	}
	if r, _, _, _ := img.At(0, 0).RGBA(); r>>8 != 1 {
		t.Errorf("rendered the wrong page, red=%d", r>>8)
	}
	if got := raster.DPIs(); len(got) != 1 || got[0] != 36 {
		t.Errorf("dpis = %v, want [36]", got)
	}
	// the rasterizer is opened once and reused
	if _, err := src.RenderPage(context.Background(), 2, 0.5); err != nil {
		t.Fatal(err)
	}
	if raster.Opened() != 1 {
		t.Errorf("rasterizer opened %d times", raster.Opened())
	}
}

func TestOpenPDFRejectsGarbage(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(p, []byte("%PDF-1.4\nthis is not a pdf body\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenPDF(p, nil); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

type fakeConverter struct {
	rendition string
	calls     int
}

func (f *fakeConverter) Convert(ctx context.Context, in string) (converter.Result, error) {
	f.calls++
	return converter.Result{Success: true, OutputPath: f.rendition}, nil
}

func writeDeck(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "deck.pptx")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for _, name := range []string{"[Content_Types].xml", "ppt/presentation.xml"} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte("<xml/>")); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestOpenerSlides(t *testing.T) {
	dir := t.TempDir()
	rendition := pdffixture.Write(t, dir, "rendition.pdf", pdffixture.Pages(4))
	deck := writeDeck(t, dir)

	conv := &fakeConverter{rendition: rendition}
	o := &Opener{Detector: filetype.New(), Converter: conv, Raster: &pdffixture.Raster{}}

	src, info, err := o.Open(context.Background(), deck, "Quarterly.pptx")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()
	if conv.calls != 1 {
		t.Errorf("converter calls = %d", conv.calls)
	}
	if info.Family != filetype.FamilySlides || info.Kind != "raster" || info.PageCount != 4 || info.Name != "Quarterly.pptx" {
		t.Errorf("info = %+v", info)
	}
	if len(info.ID) != 64 {
		t.Errorf("document id = %q", info.ID)
	}
	if _, ok := src.(Transplanter); ok {
		t.Error("deck without exporter must not be transplant capable")
	}
}

func TestOpenerSlidesWithExporter(t *testing.T) {
	dir := t.TempDir()
	rendition := pdffixture.Write(t, dir, "rendition.pdf", pdffixture.Pages(2))
	o := &Opener{
		Converter:   &fakeConverter{rendition: rendition},
		Raster:      &pdffixture.Raster{},
		SlideExport: true,
		ExportScale: 0.25,
	}
	src, _, err := o.Open(context.Background(), writeDeck(t, dir), "")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	if src.Kind() != RasterCapable {
		t.Fatalf("kind = %v", src.Kind())
	}
	tr, ok := src.(Transplanter)
	if !ok {
		t.Fatal("exporter must expose Transplanter")
	}
	u, err := tr.ExtractTransplantable(context.Background(), 1)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer u.Release()
	if n, _ := unitPage(t, u.PDF); n != 1 {
		t.Fatalf("exported unit pages = %d", n)
	}
}

func TestOpenerRejectsUnsupported(t *testing.T) {
	p := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(p, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := (&Opener{}).Open(context.Background(), p, "")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v", err)
	}
}

func TestImagePage(t *testing.T) {
	pdf, err := ImagePage(pdffixture.Solid(40, 60, color.Black), 70)
	if err != nil {
		t.Fatal(err)
	}
	ctx, err := api.ReadContext(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	if err != nil {
		t.Fatal(err)
	}
	if err := ctx.EnsurePageCount(); err != nil || ctx.PageCount != 1 {
		t.Fatalf("pages = %d err = %v", ctx.PageCount, err)
	}
}
