package api

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "strconv"
    "time"

    "github.com/local/docsplit/internal/thumbnail"
)

func (a *API) handleThumbnails(w http.ResponseWriter, r *http.Request) {
    st, err := a.s.Thumbnails()
    if err != nil { writeError(w, err); return }
    writeJSON(w, http.StatusOK, st)
}

func (a *API) handleThumbnail(w http.ResponseWriter, r *http.Request) {
    page, ok := pageParam(r)
    if !ok {
        writeFail(w, http.StatusBadRequest, "invalid_request", "page must be an integer"); return
    }
    th, err := a.s.Thumbnail(page)
    if err != nil { writeError(w, err); return }
    if th == nil {
        writeFail(w, http.StatusNotFound, "thumbnail_pending", fmt.Sprintf("thumbnail %d not ready", page)); return
    }
    w.Header().Set("Content-Type", "image/jpeg")
    w.Header().Set("Content-Length", strconv.Itoa(len(th.JPEG)))
    w.Header().Set("Cache-Control", "no-store")
    w.Header().Set("X-Thumbnail-Generation", strconv.FormatUint(th.Generation, 10))
    w.WriteHeader(http.StatusOK)
    _, _ = w.Write(th.JPEG)
}

type eventData struct {
    Generation uint64 `json:"generation"`
    Page       *int   `json:"page,omitempty"`
    Width      int    `json:"width,omitempty"`
    Height     int    `json:"height,omitempty"`
    Rendered   *int   `json:"rendered,omitempty"`
    Failed     *int   `json:"failed,omitempty"`
}

func eventPayload(ev thumbnail.Event) eventData {
    d := eventData{Generation: ev.Generation}
    switch ev.Kind {
    case thumbnail.EventThumbnail:
        p := ev.Thumbnail.PageIndex
        d.Page, d.Width, d.Height = &p, ev.Thumbnail.Width, ev.Thumbnail.Height
    case thumbnail.EventComplete:
        rendered, failed := ev.Rendered, ev.Failed
        d.Rendered, d.Failed = &rendered, &failed
    }
    return d
}

// handleEvents streams thumbnail and completion events as server-sent events
// until the client goes away.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
    flusher, ok := w.(http.Flusher)
    if !ok {
        writeFail(w, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported"); return
    }
    events, unsubscribe := a.s.Subscribe(0)
    defer unsubscribe()

    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    w.WriteHeader(http.StatusOK)
    flusher.Flush()

    streamEvents(r.Context(), w, flusher, events, a.s.Generation, 15*time.Second)
}

// streamEvents writes events until ctx is done or events is closed. Events
// whose generation is no longer current belong to a replaced document and
// are dropped.
func streamEvents(ctx context.Context, w io.Writer, flusher http.Flusher, events <-chan thumbnail.Event, current func() uint64, keepaliveEvery time.Duration) {
    keepalive := time.NewTicker(keepaliveEvery)
    defer keepalive.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-keepalive.C:
            if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil { return }
            flusher.Flush()
        case ev, ok := <-events:
            if !ok { return }
            if ev.Generation != current() { continue }
            data, _ := json.Marshal(eventPayload(ev))
            if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil { return }
            flusher.Flush()
        }
    }
}
