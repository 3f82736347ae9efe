// Package pdffixture writes small, valid PDFs for tests. Every page draws a
// single Helvetica text marker so extracted content can be traced back to its
// source page.
package pdffixture

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// Page describes one generated page.
type Page struct {
	Text   string
	Width  float64
	Height float64
	Rotate int
	// Blank pages carry no /Contents entry.
	Blank bool
}

// Marker is the text drawn on page i of a document built by Pages.
func Marker(i int) string { return "PAGE-" + strconv.Itoa(i) }

// Pages returns n US-letter pages labelled PAGE-0 .. PAGE-(n-1).
func Pages(n int) []Page {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Page{Text: Marker(i), Width: 612, Height: 792}
	}
	return pages
}

// Build renders pages into PDF bytes with a correct xref table.
func Build(pages []Page) []byte {
	// objects: 1 catalog, 2 pages, 3 font, then page/content pairs
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	total := 3 + 2*len(pages)
	offsets := make([]int, total+1)

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), len(pages))

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	for i, p := range pages {
		pageObj, contentObj := 4+2*i, 5+2*i
		w, h := p.Width, p.Height
		if w <= 0 {
			w = 612
		}
		if h <= 0 {
			h = 792
		}
		rotate := ""
		if p.Rotate != 0 {
			rotate = fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		contents := fmt.Sprintf(" /Contents %d 0 R", contentObj)
		if p.Blank {
			contents = ""
		}
		offsets[pageObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %s %s]%s%s /Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n",
			pageObj, num(w), num(h), rotate, contents)

		stream := "BT\n/F1 24 Tf\n72 " + num(h/2) + " Td\n(" + escape(p.Text) + ") Tj\nET"
		offsets[contentObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", contentObj, len(stream), stream)
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", total+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= total; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", total+1, xref)
	return []byte(b.String())
}

// Write builds pages into dir/name and returns the path.
func Write(tb testing.TB, dir, name string, pages []Page) string {
	tb.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, Build(pages), 0o644); err != nil {
		tb.Fatalf("write fixture: %v", err)
	}
	return p
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	return strings.ReplaceAll(s, ")", `\)`)
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
