package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/docsplit/internal/engine"
	"github.com/local/docsplit/internal/sink"
	"github.com/local/docsplit/internal/store"
)

const (
	JobExport = "export"
	JobPrint  = "print"
)

// Job is the handle returned when a build is accepted.
type Job struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	DocumentID string `json:"document_id"`
	Pages      []int  `json:"pages"`
	Mode       string `json:"mode"`
	Cells      int    `json:"cells_per_sheet"`
}

// Export builds the selection into destination (a path or s3://bucket/key).
func (s *Session) Export(ctx context.Context, req engine.Request, destination string) (Job, error) {
	dst, err := sink.Parse(destination, s.opts.Uploader)
	if err != nil {
		// reported by validation, after the document and selection checks
		dst = unusable{err}
	}
	return s.start(ctx, JobExport, req, dst)
}

type unusable struct{ err error }

func (u unusable) Validate(context.Context) error                 { return u.err }
func (u unusable) Commit(context.Context, string) (string, error) { return "", u.err }

// Print builds the selection and hands it to the print viewer.
func (s *Session) Print(ctx context.Context, req engine.Request) (Job, error) {
	dst := &sink.Print{Dir: s.opts.PrintDir, Viewer: s.opts.PrintViewer, Launch: s.opts.Launch}
	return s.start(ctx, JobPrint, req, dst)
}

// Job returns the stored status of a job.
func (s *Session) Job(ctx context.Context, id string) (store.Status, bool, error) {
	return s.opts.Jobs.Get(ctx, id)
}

// start validates synchronously and runs the build in the background.
func (s *Session) start(ctx context.Context, kind string, req engine.Request, dst engine.Destination) (Job, error) {
	s.mu.Lock()
	if s.opening {
		s.mu.Unlock()
		return Job{}, engine.ErrOpenPending
	}
	doc := s.doc
	if doc == nil {
		s.mu.Unlock()
		return Job{}, engine.ErrNoDocumentOpen
	}
	pages := s.selection.Ordered()
	doc.readers.Add(1)
	s.mu.Unlock()

	if err := s.opts.Engine.Validate(ctx, doc.src, pages, req, dst); err != nil {
		doc.readers.Done()
		return Job{}, err
	}
	release, ok := s.opts.Slots.Allow(doc.info.ID)
	if !ok {
		doc.readers.Done()
		return Job{}, fmt.Errorf("%w: document %s", engine.ErrBuildBusy, doc.info.Name)
	}

	job := Job{ID: uuid.NewString(), Kind: kind, DocumentID: doc.info.ID, Pages: pages, Mode: req.Mode.String(), Cells: req.CellsPerSheet}
	now := time.Now()
	meta := map[string]interface{}{"document_id": doc.info.ID, "mode": job.Mode, "cells_per_sheet": job.Cells, "pages": len(pages)}
	if err := s.opts.Jobs.Set(ctx, job.ID, store.Status{Kind: kind, Status: "queued", Start: &now, Metadata: meta}); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record job status")
	}

	buildCtx := context.WithoutCancel(ctx)
	s.builds.Add(1)
	go func() {
		defer s.builds.Done()
		defer doc.readers.Done()
		defer release()
		s.runBuild(buildCtx, job, doc, pages, req, dst, now, meta)
	}()
	log.Info().Str("job_id", job.ID).Str("kind", kind).Str("doc", doc.info.ID).Ints("pages", pages).Str("mode", job.Mode).Msg("build accepted")
	return job, nil
}

func (s *Session) runBuild(ctx context.Context, job Job, doc *document, pages []int, req engine.Request, dst engine.Destination, start time.Time, meta map[string]interface{}) {
	progress := func(state engine.State, pct int) {
		if state == engine.Done || state == engine.Failed {
			return
		}
		if err := s.opts.Jobs.Set(ctx, job.ID, store.Status{Kind: job.Kind, Status: state.String(), Progress: pct, Start: &start, Metadata: meta}); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record job progress")
		}
	}

	res, err := s.opts.Engine.Build(ctx, doc.src, pages, req, dst, progress)
	end := time.Now()
	final := store.Status{Kind: job.Kind, Start: &start, End: &end, Metadata: meta}
	if err != nil {
		final.Status = engine.Failed.String()
		final.Message = err.Error()
		meta["error"] = string(engine.KindOf(err))
		var be *engine.BuildError
		if errors.As(err, &be) {
			meta["stage"] = be.Stage
			if be.Page >= 0 {
				meta["page"] = be.Page
			}
		}
	} else {
		final.Status = engine.Done.String()
		final.Progress = 100
		meta["location"] = res.Location
		meta["output_pages"] = res.OutputPages
		meta["bytes"] = res.Bytes
	}
	if err := s.opts.Jobs.Set(ctx, job.ID, final); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record job result")
	}
}
