// Package api exposes the session over HTTP.
package api

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/rs/zerolog/log"

    "github.com/local/docsplit/internal/engine"
    "github.com/local/docsplit/internal/fetch"
    "github.com/local/docsplit/internal/metrics"
    "github.com/local/docsplit/internal/session"
    "github.com/local/docsplit/internal/statuscheck"
)

// Health reports dependency status for /health.
type Health interface {
    Summary(ctx context.Context) statuscheck.Summary
}

// Options wires the HTTP layer.
type Options struct {
    Session     *session.Session
    Health      Health
    UploadDir   string
    MaxUploadMB int
}

type API struct {
    s         *session.Session
    health    Health
    uploadDir string
    maxUpload int64
}

func New(opts Options) *API {
    if opts.MaxUploadMB <= 0 { opts.MaxUploadMB = 200 }
    if opts.UploadDir == "" { opts.UploadDir = "uploads" }
    return &API{s: opts.Session, health: opts.Health, uploadDir: opts.UploadDir, maxUpload: int64(opts.MaxUploadMB) << 20}
}

// Router returns the service's HTTP handler.
func (a *API) Router() http.Handler {
    r := chi.NewRouter()
    r.Use(middleware.RequestID)
    r.Use(middleware.Recoverer)
    r.Use(requestLogger)

    r.Get("/health", a.handleHealth)
    r.Handle("/metrics", metrics.Handler())

    r.Route("/api", func(r chi.Router) {
        r.Get("/documents", a.handleDocument)
        r.Post("/documents", a.handleOpen)
        r.Post("/documents/upload", a.handleUpload)
        r.Delete("/documents", a.handleClose)

        r.Get("/thumbnails", a.handleThumbnails)
        r.Get("/thumbnails/events", a.handleEvents)
        r.Get("/thumbnails/{page}", a.handleThumbnail)

        r.Get("/selection", a.handleSelection)
        r.Put("/selection", a.handleSetSelection)
        r.Delete("/selection", a.handleClearSelection)
        r.Post("/selection/all", a.handleSelectAll)
        r.Post("/selection/{page}/toggle", a.handleToggle)

        r.Post("/export", a.handleExport)
        r.Post("/print", a.handlePrint)
        r.Get("/jobs/{id}", a.handleJob)
    })
    return r
}

func requestLogger(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
        start := time.Now()
        next.ServeHTTP(ww, r)
        route := r.URL.Path
        if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
            route = rc.RoutePattern()
        }
        metrics.HTTPRequest(r.Method, route, ww.Status())
        log.Debug().
            Str("method", r.Method).
            Str("path", r.URL.Path).
            Int("status", ww.Status()).
            Dur("duration", time.Since(start)).
            Str("request_id", middleware.GetReqID(r.Context())).
            Msg("http request")
    })
}

type errorResp struct {
    Error   string `json:"error"`
    Message string `json:"message"`
    Page    *int   `json:"page,omitempty"`
    Stage   string `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(status)
    _ = json.NewEncoder(w).Encode(v)
}

func writeFail(w http.ResponseWriter, status int, kind, msg string) {
    writeJSON(w, status, errorResp{Error: kind, Message: msg})
}

// writeError maps a domain error onto a status code and the JSON error body.
func writeError(w http.ResponseWriter, err error) {
    switch {
    case errors.Is(err, fetch.ErrNotFound):
        writeFail(w, http.StatusNotFound, "not_found", err.Error()); return
    case errors.Is(err, fetch.ErrUnsupported):
        writeFail(w, http.StatusBadRequest, "unsupported_reference", err.Error()); return
    }
    kind := engine.KindOf(err)
    resp := errorResp{Error: string(kind), Message: err.Error()}
    var be *engine.BuildError
    if errors.As(err, &be) {
        resp.Stage = be.Stage
        if be.Page >= 0 {
            p := be.Page
            resp.Page = &p
        }
    }
    writeJSON(w, statusFor(kind), resp)
}

func statusFor(kind engine.Kind) int {
    switch kind {
    case engine.KindNoDocumentOpen, engine.KindEmptySelection, engine.KindUnsupportedCells,
        engine.KindTransplantUnsupported, engine.KindPageOutOfRange:
        return http.StatusBadRequest
    case engine.KindBuildBusy, engine.KindOpenPending:
        return http.StatusConflict
    case engine.KindDestinationUnwritable:
        return http.StatusUnprocessableEntity
    case engine.KindUnsupportedFormat:
        return http.StatusUnsupportedMediaType
    default:
        return http.StatusBadGateway
    }
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
    if a.health == nil {
        writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}); return
    }
    sum := a.health.Summary(r.Context())
    status := http.StatusOK
    if !sum.Healthy() { status = http.StatusServiceUnavailable }
    writeJSON(w, status, sum)
}
