// Package thumbnail renders one preview per page in the background and
// streams the results as they become ready.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docsplit/internal/metrics"
	"github.com/local/docsplit/internal/render"
)

// Renderer is the part of a page source the pipeline needs.
type Renderer interface {
	PageCount() int
	RenderPage(ctx context.Context, index int, scale float64) (image.Image, error)
}

// Options tunes one run.
type Options struct {
	Scale       float64
	Workers     int
	PageTimeout time.Duration
	MaxWidth    int
	MaxHeight   int
	Quality     int
	Grayscale   bool
}

func (o Options) withDefaults() Options {
	if o.Scale <= 0 {
		o.Scale = 0.5
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = 200
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = 150
	}
	return o
}

// Thumbnail is a rendered preview of one page.
type Thumbnail struct {
	PageIndex int
	JPEG      []byte
	Width     int
	Height    int
	// GeneratedAt is the run-local sequence number in emission order.
	GeneratedAt uint64
	Generation  uint64
}

type EventKind int

const (
	EventThumbnail EventKind = iota
	EventComplete
)

func (k EventKind) String() string {
	if k == EventComplete {
		return "complete"
	}
	return "thumbnail"
}

// Event is either a ready thumbnail or the terminal completion signal.
// Rendered and Failed are only set on the completion event.
type Event struct {
	Kind       EventKind
	Generation uint64
	Thumbnail  *Thumbnail
	Rendered   int
	Failed     int
}

var errRenderPanic = errors.New("renderer panicked")

// Run is one pipeline execution over a document. Events arrive unordered
// across pages; exactly one EventComplete follows the last page attempt
// unless the run is cancelled first. The channel is closed when the run ends.
type Run struct {
	generation uint64
	events     chan Event
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	mu      sync.Mutex
	stopped bool

	seq      atomic.Uint64
	rendered atomic.Int64
	failed   atomic.Int64
}

// Start launches a run for src tagged with generation.
func Start(ctx context.Context, src Renderer, generation uint64, opts Options) *Run {
	opts = opts.withDefaults()
	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		generation: generation,
		events:     make(chan Event, opts.Workers),
		ctx:        runCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	pages := src.PageCount()
	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := opts.Workers
	if pages < workers {
		workers = pages
	}
	metrics.ThumbnailRunStarted()
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.loop(id, src, jobs, opts)
		}(i)
	}

	go func() {
		defer close(jobs)
		for i := 0; i < pages; i++ {
			select {
			case jobs <- i:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		metrics.ThumbnailRunFinished()
		rendered, failed := int(r.rendered.Load()), int(r.failed.Load())
		if r.emit(Event{Kind: EventComplete, Generation: generation, Rendered: rendered, Failed: failed}) {
			log.Info().Uint64("generation", generation).Int("pages", pages).Int("rendered", rendered).Int("failed", failed).Msg("thumbnail run complete")
		} else {
			log.Debug().Uint64("generation", generation).Msg("thumbnail run cancelled")
		}
		r.mu.Lock()
		r.stopped = true
		close(r.events)
		r.mu.Unlock()
		cancel()
		close(r.done)
	}()

	log.Debug().Uint64("generation", generation).Int("pages", pages).Int("workers", workers).Msg("thumbnail run started")
	return r
}

// Generation returns the token this run was started with.
func (r *Run) Generation() uint64 { return r.generation }

// Events returns the result stream.
func (r *Run) Events() <-chan Event { return r.events }

// Done is closed after the event channel has been closed.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel stops in-flight work. Once Cancel returns no further event is sent.
func (r *Run) Cancel() {
	r.cancel()
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
}

// Wait blocks until the run has finished or ctx is done.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Run) emit(ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.ctx.Err() != nil {
		return false
	}
	select {
	case r.events <- ev:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Run) loop(id int, src Renderer, jobs <-chan int, opts Options) {
	for page := range jobs {
		if r.ctx.Err() != nil {
			return
		}
		start := time.Now()
		th, err := r.renderOne(src, page, opts)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.failed.Add(1)
			metrics.ThumbnailFailed()
			log.Warn().Err(err).Int("worker", id).Int("page", page).Uint64("generation", r.generation).Msg("thumbnail render failed, skipping page")
			continue
		}
		r.rendered.Add(1)
		metrics.ThumbnailRendered(time.Since(start))
		th.GeneratedAt = r.seq.Add(1)
		r.emit(Event{Kind: EventThumbnail, Generation: r.generation, Thumbnail: th})
	}
}

type renderResult struct {
	img image.Image
	err error
}

func (r *Run) renderOne(src Renderer, page int, opts Options) (*Thumbnail, error) {
	ctx := r.ctx
	if opts.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.PageTimeout)
		defer cancel()
	}

	out := make(chan renderResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				out <- renderResult{err: fmt.Errorf("%w: %v", errRenderPanic, p)}
			}
		}()
		img, err := src.RenderPage(ctx, page, opts.Scale)
		out <- renderResult{img: img, err: err}
	}()

	var res renderResult
	select {
	case res = <-out:
	case <-ctx.Done():
		return nil, fmt.Errorf("render page %d: %w", page, ctx.Err())
	}
	if res.err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, res.err)
	}
	if res.img == nil {
		return nil, fmt.Errorf("render page %d: empty image", page)
	}

	img := render.Fit(res.img, opts.MaxWidth, opts.MaxHeight)
	if opts.Grayscale {
		img = render.Gray(img)
	}
	data, err := render.EncodeJPEG(img, opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("encode page %d: %w", page, err)
	}
	b := img.Bounds()
	return &Thumbnail{PageIndex: page, JPEG: data, Width: b.Dx(), Height: b.Dy(), Generation: r.generation}, nil
}
