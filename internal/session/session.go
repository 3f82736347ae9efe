// Package session owns the open document, its thumbnail run and the page
// selection, and starts export and print jobs against them.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/docsplit/internal/engine"
	"github.com/local/docsplit/internal/fetch"
	"github.com/local/docsplit/internal/filetype"
	"github.com/local/docsplit/internal/limiter"
	"github.com/local/docsplit/internal/pagesource"
	"github.com/local/docsplit/internal/selection"
	"github.com/local/docsplit/internal/sink"
	"github.com/local/docsplit/internal/store"
	"github.com/local/docsplit/internal/thumbnail"
)

// Opener opens a local file as a page source.
type Opener interface {
	Open(ctx context.Context, path, name string) (pagesource.Source, pagesource.Info, error)
}

// Options wires a Session.
type Options struct {
	Opener  Opener
	Fetcher *fetch.Fetcher
	Engine  *engine.Engine
	Jobs    store.Statuses
	Slots   *limiter.Slots

	Thumbnails thumbnail.Options
	// WordWidth and WordHeight replace the thumbnail box for word documents.
	WordWidth  int
	WordHeight int

	Uploader    sink.Uploader
	PrintDir    string
	PrintViewer string
	Launch      sink.Launcher
}

// document is an open source plus the builds still reading it.
type document struct {
	src     pagesource.Source
	info    pagesource.Info
	cleanup func()
	readers sync.WaitGroup
}

func (d *document) release() {
	d.readers.Wait()
	if err := d.src.Close(); err != nil {
		log.Warn().Err(err).Str("doc", d.info.ID).Msg("closing document failed")
	}
	if d.cleanup != nil {
		d.cleanup()
	}
	log.Debug().Str("doc", d.info.ID).Msg("document released")
}

// Session is the single-document workspace. All methods are safe for
// concurrent use.
type Session struct {
	opts Options

	mu         sync.Mutex
	doc        *document
	opening    bool
	generation uint64
	run        *thumbnail.Run
	thumbs     map[int]*thumbnail.Thumbnail
	complete   *thumbnail.Event
	subs       map[int]chan thumbnail.Event
	nextSub    int

	selection *selection.Set
	builds    sync.WaitGroup
	releases  sync.WaitGroup
}

func New(opts Options) *Session {
	if opts.Slots == nil {
		opts.Slots = limiter.New(limiter.Options{MaxInflight: 1})
	}
	if opts.Jobs == nil {
		opts.Jobs = store.NewMemoryStatus(0)
	}
	if opts.Fetcher == nil {
		opts.Fetcher = &fetch.Fetcher{}
	}
	return &Session{
		opts:      opts,
		thumbs:    map[int]*thumbnail.Thumbnail{},
		subs:      map[int]chan thumbnail.Event{},
		selection: selection.New(),
	}
}

// OpenRef resolves ref (path, file://, http(s)://, s3://) and opens it.
func (s *Session) OpenRef(ctx context.Context, ref string) (pagesource.Info, error) {
	loc, err := s.opts.Fetcher.Resolve(ctx, ref)
	if err != nil {
		return pagesource.Info{}, err
	}
	info, err := s.Open(ctx, loc.Path, loc.Name, loc.Cleanup)
	if err != nil {
		loc.Cleanup()
	}
	return info, err
}

// Open replaces the current document with the file at path. The selection is
// cleared, the previous thumbnail run is cancelled and a new one started.
// cleanup, if set, runs once the document is no longer in use.
func (s *Session) Open(ctx context.Context, path, name string, cleanup func()) (pagesource.Info, error) {
	s.mu.Lock()
	if s.opening {
		s.mu.Unlock()
		return pagesource.Info{}, engine.ErrOpenPending
	}
	s.opening = true
	s.mu.Unlock()

	src, info, err := s.opts.Opener.Open(ctx, path, name)
	if err != nil {
		s.mu.Lock()
		s.opening = false
		s.mu.Unlock()
		return info, err
	}

	next := &document{src: src, info: info, cleanup: cleanup}
	s.mu.Lock()
	prev := s.swapLocked(next)
	s.opening = false
	s.mu.Unlock()

	s.retire(prev)
	return info, nil
}

// Close drops the current document.
func (s *Session) Close() {
	s.mu.Lock()
	prev := s.swapLocked(nil)
	s.mu.Unlock()
	s.retire(prev)
}

// Shutdown closes the document and waits for running builds and releases.
func (s *Session) Shutdown(ctx context.Context) error {
	s.Close()
	done := make(chan struct{})
	go func() {
		s.builds.Wait()
		s.releases.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// swapLocked installs next as the current document and returns the old one.
func (s *Session) swapLocked(next *document) *document {
	if s.run != nil {
		s.run.Cancel()
		s.run = nil
	}
	s.generation++
	s.thumbs = map[int]*thumbnail.Thumbnail{}
	s.complete = nil
	s.selection.Clear()

	prev := s.doc
	s.doc = next
	if next != nil {
		opts := s.opts.Thumbnails
		if next.info.Family == filetype.FamilyWord && s.opts.WordWidth > 0 && s.opts.WordHeight > 0 {
			opts.MaxWidth, opts.MaxHeight = s.opts.WordWidth, s.opts.WordHeight
		}
		s.run = thumbnail.Start(context.Background(), next.src, s.generation, opts)
		go s.consume(s.run)
	}
	return prev
}

// retire closes prev once no build reads it any more.
func (s *Session) retire(prev *document) {
	if prev == nil {
		return
	}
	s.releases.Add(1)
	go func() {
		defer s.releases.Done()
		prev.release()
	}()
}

// consume applies run events to the session while the run is current.
// Events of a superseded run are dropped.
func (s *Session) consume(run *thumbnail.Run) {
	for ev := range run.Events() {
		s.mu.Lock()
		if ev.Generation != s.generation {
			s.mu.Unlock()
			continue
		}
		switch ev.Kind {
		case thumbnail.EventThumbnail:
			s.thumbs[ev.Thumbnail.PageIndex] = ev.Thumbnail
		case thumbnail.EventComplete:
			e := ev
			s.complete = &e
		}
		for id, ch := range s.subs {
			select {
			case ch <- ev:
			default:
				log.Warn().Int("subscriber", id).Uint64("generation", ev.Generation).Msg("thumbnail subscriber too slow, event dropped")
			}
		}
		s.mu.Unlock()
	}
}

// Document returns the open document, if any.
func (s *Session) Document() (pagesource.Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return pagesource.Info{}, false
	}
	return s.doc.info, true
}

// Holds reports whether path backs the current document.
func (s *Session) Holds(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc != nil && s.doc.info.Path == path
}

// Generation returns the token of the current document.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// ThumbnailState summarizes the current thumbnail run.
type ThumbnailState struct {
	Generation uint64 `json:"generation"`
	Pages      int    `json:"pages"`
	Ready      []int  `json:"ready"`
	Complete   bool   `json:"complete"`
	Rendered   int    `json:"rendered"`
	Failed     int    `json:"failed"`
}

func (s *Session) Thumbnails() (ThumbnailState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return ThumbnailState{}, engine.ErrNoDocumentOpen
	}
	st := ThumbnailState{Generation: s.generation, Pages: s.doc.info.PageCount, Ready: make([]int, 0, len(s.thumbs))}
	for p := range s.thumbs {
		st.Ready = append(st.Ready, p)
	}
	sort.Ints(st.Ready)
	if s.complete != nil {
		st.Complete = true
		st.Rendered, st.Failed = s.complete.Rendered, s.complete.Failed
	}
	return st, nil
}

// Thumbnail returns the preview of page, if it is ready.
func (s *Session) Thumbnail(page int) (*thumbnail.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, engine.ErrNoDocumentOpen
	}
	if page < 0 || page >= s.doc.info.PageCount {
		return nil, fmt.Errorf("%w: %d", engine.ErrPageOutOfRange, page)
	}
	return s.thumbs[page], nil
}

// Subscribe streams events of the current and later runs. Thumbnails that
// are already ready are replayed first. The returned func unsubscribes.
func (s *Session) Subscribe(buffer int) (<-chan thumbnail.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	replay := make([]thumbnail.Event, 0, len(s.thumbs)+1)
	for _, th := range s.thumbs {
		replay = append(replay, thumbnail.Event{Kind: thumbnail.EventThumbnail, Generation: s.generation, Thumbnail: th})
	}
	if s.complete != nil {
		replay = append(replay, *s.complete)
	}
	if buffer < len(replay) {
		buffer = len(replay) + 16
	}
	ch := make(chan thumbnail.Event, buffer)
	for _, ev := range replay {
		ch <- ev
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
