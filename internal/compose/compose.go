package compose

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var errNoUnits = errors.New("no pages to compose")

// Concat joins single-page units into one document, keeping unit order.
// Page content is copied structurally, never re-encoded.
func Concat(units [][]byte) ([]byte, error) {
	if len(units) == 0 {
		return nil, errNoUnits
	}
	if len(units) == 1 {
		return units[0], nil
	}
	readers := make([]io.ReadSeeker, len(units))
	for i, u := range units {
		readers[i] = bytes.NewReader(u)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("merge %d pages: %w", len(units), err)
	}
	return out.Bytes(), nil
}

// NUp packs units onto layout sheets. Unit j lands in slot j%k of sheet j/k.
// Every source page becomes a form XObject drawn into its cell.
func NUp(units [][]byte, layout Layout, fit Fit) ([]byte, error) {
	if len(units) == 0 {
		return nil, errNoUnits
	}
	merged, err := Concat(units)
	if err != nil {
		return nil, err
	}
	ctx, err := api.ReadContext(bytes.NewReader(merged), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("read merged pages: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	if ctx.PageCount != len(units) {
		return nil, fmt.Errorf("merged document has %d pages, want %d", ctx.PageCount, len(units))
	}

	forms := make([]types.IndirectRef, len(units))
	boxes := make([]Box, len(units))
	for i := range units {
		ref, box, err := formFromPage(ctx, i+1)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		forms[i], boxes[i] = *ref, box
	}

	catalog, err := ctx.Catalog()
	if err != nil {
		return nil, err
	}
	pagesRef := catalog.IndirectRefEntry("Pages")
	if pagesRef == nil {
		return nil, errors.New("catalog has no page tree")
	}
	pages, err := ctx.DereferenceDict(*pagesRef)
	if err != nil {
		return nil, err
	}

	sheetBox := types.RectForWidthAndHeight(0, 0, layout.Sheet.W, layout.Sheet.H)
	plan := layout.Plan(len(units))
	kids := types.Array{}
	for _, slots := range plan {
		xobjects := types.Dict{}
		var content bytes.Buffer
		for i, pos := range slots {
			name := fmt.Sprintf("Fm%d", i)
			xobjects[name] = forms[pos]
			m := Placement(boxes[pos], layout.Cell(i), layout.Sheet.H, fit)
			fmt.Fprintf(&content, "q %s cm /%s Do Q\n", m, name)
		}

		sd, err := ctx.NewStreamDictForBuf(content.Bytes())
		if err != nil {
			return nil, err
		}
		if err := sd.Encode(); err != nil {
			return nil, err
		}
		contentRef, err := ctx.IndRefForNewObject(*sd)
		if err != nil {
			return nil, err
		}

		page := types.Dict{
			"Type":      types.Name("Page"),
			"Parent":    *pagesRef,
			"MediaBox":  sheetBox.Array(),
			"CropBox":   sheetBox.Array(),
			"Resources": types.Dict{"XObject": xobjects},
			"Contents":  *contentRef,
		}
		pageRef, err := ctx.IndRefForNewObject(page)
		if err != nil {
			return nil, err
		}
		kids = append(kids, *pageRef)
	}

	pages["Kids"] = kids
	pages["Count"] = types.Integer(len(kids))
	ctx.PageCount = len(kids)

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, fmt.Errorf("write sheets: %w", err)
	}
	return out.Bytes(), nil
}

// formFromPage wraps page nr of ctx as a form XObject spanning its visible box.
func formFromPage(ctx *model.Context, nr int) (*types.IndirectRef, Box, error) {
	pageDict, _, inh, err := ctx.PageDict(nr, true)
	if err != nil {
		return nil, Box{}, err
	}
	if pageDict == nil || inh == nil {
		return nil, Box{}, errors.New("missing page dict")
	}
	visible := inh.CropBox
	if visible == nil {
		visible = inh.MediaBox
	}
	if visible == nil {
		return nil, Box{}, errors.New("page has no media box")
	}

	// a page without content is blank, not broken
	content, err := ctx.PageContent(pageDict, nr)
	if errors.Is(err, model.ErrNoContent) {
		content, err = []byte{}, nil
	}
	if err != nil {
		return nil, Box{}, fmt.Errorf("page content: %w", err)
	}

	sd, err := ctx.NewStreamDictForBuf(content)
	if err != nil {
		return nil, Box{}, err
	}
	res := inh.Resources
	if res == nil {
		res = types.Dict{}
	}
	sd.Dict["Type"] = types.Name("XObject")
	sd.Dict["Subtype"] = types.Name("Form")
	sd.Dict["BBox"] = visible.Array()
	sd.Dict["Resources"] = res
	if err := sd.Encode(); err != nil {
		return nil, Box{}, err
	}
	ref, err := ctx.IndRefForNewObject(*sd)
	if err != nil {
		return nil, Box{}, err
	}
	box := Box{LLX: visible.LL.X, LLY: visible.LL.Y, W: visible.Width(), H: visible.Height(), Rotate: inh.Rotate}
	return ref, box, nil
}
