package engine

import (
	"errors"
	"fmt"

	"github.com/local/docsplit/internal/pagesource"
)

// Kind names a failure class surfaced to callers.
type Kind string

const (
	KindNoDocumentOpen        Kind = "no_document_open"
	KindEmptySelection        Kind = "empty_selection"
	KindUnsupportedCells      Kind = "unsupported_cells_per_sheet"
	KindPageOutOfRange        Kind = "page_out_of_range"
	KindRenderFailure         Kind = "adapter_render_failure"
	KindTransplantUnsupported Kind = "transplant_unsupported"
	KindSaveFailure           Kind = "adapter_save_failure"
	KindDestinationUnwritable Kind = "destination_unwritable"
	KindBuildBusy             Kind = "build_busy"
	KindOpenPending           Kind = "open_pending"
	KindUnsupportedFormat     Kind = "unsupported_format"
)

var (
	ErrNoDocumentOpen           = errors.New("no document open")
	ErrEmptySelection           = errors.New("selection is empty")
	ErrUnsupportedCellsPerSheet = errors.New("cells per sheet must be one of 1, 2, 4, 6, 9")
	ErrRenderFailure            = errors.New("page render failed")
	ErrSaveFailure              = errors.New("saving output failed")
	ErrDestinationUnwritable    = errors.New("destination is not writable")
	ErrBuildBusy                = errors.New("a build is already running for this document")
	ErrOpenPending              = errors.New("a document open is in progress")

	ErrPageOutOfRange        = pagesource.ErrPageOutOfRange
	ErrTransplantUnsupported = pagesource.ErrTransplantUnsupported
	ErrUnsupportedFormat     = pagesource.ErrUnsupportedFormat
)

var kindErrors = []struct {
	err  error
	kind Kind
}{
	{ErrNoDocumentOpen, KindNoDocumentOpen},
	{ErrEmptySelection, KindEmptySelection},
	{ErrUnsupportedCellsPerSheet, KindUnsupportedCells},
	{ErrPageOutOfRange, KindPageOutOfRange},
	{ErrTransplantUnsupported, KindTransplantUnsupported},
	{ErrDestinationUnwritable, KindDestinationUnwritable},
	{ErrBuildBusy, KindBuildBusy},
	{ErrOpenPending, KindOpenPending},
	{ErrUnsupportedFormat, KindUnsupportedFormat},
	{ErrRenderFailure, KindRenderFailure},
	{ErrSaveFailure, KindSaveFailure},
}

// BuildError reports which stage and page a build failed on.
type BuildError struct {
	Kind  Kind
	Stage string
	// Page is the source page index involved, or -1.
	Page int
	Err  error
}

func (e *BuildError) Error() string {
	msg := string(e.Kind)
	if e.Stage != "" {
		msg += " during " + e.Stage
	}
	if e.Page >= 0 {
		msg += fmt.Sprintf(" (page %d)", e.Page)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BuildError) Unwrap() error { return e.Err }

func fail(kind Kind, stage string, page int, err error) *BuildError {
	return &BuildError{Kind: kind, Stage: stage, Page: page, Err: err}
}

// KindOf classifies err. Errors matching no known sentinel are save failures.
func KindOf(err error) Kind {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Kind
	}
	for _, ke := range kindErrors {
		if errors.Is(err, ke.err) {
			return ke.kind
		}
	}
	return KindSaveFailure
}
