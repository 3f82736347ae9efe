package api

import (
    "encoding/json"
    "net/http"

    "github.com/go-chi/chi/v5"

    "github.com/local/docsplit/internal/engine"
)

type buildReq struct {
    Mode           string `json:"mode"`
    CellsPerSheet  int    `json:"cells_per_sheet"`
    Destination    string `json:"destination"`
    RasterFallback bool   `json:"raster_fallback"`
}

func decodeBuild(w http.ResponseWriter, r *http.Request) (buildReq, engine.Request, bool) {
    defer r.Body.Close()
    var req buildReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeFail(w, http.StatusBadRequest, "invalid_request", "invalid json")
        return req, engine.Request{}, false
    }
    mode, err := engine.ParseMode(req.Mode)
    if err != nil {
        writeFail(w, http.StatusBadRequest, "invalid_request", err.Error())
        return req, engine.Request{}, false
    }
    return req, engine.Request{Mode: mode, CellsPerSheet: req.CellsPerSheet, RasterFallback: req.RasterFallback}, true
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
    body, req, ok := decodeBuild(w, r)
    if !ok { return }
    job, err := a.s.Export(r.Context(), req, body.Destination)
    if err != nil { writeError(w, err); return }
    writeJSON(w, http.StatusAccepted, job)
}

func (a *API) handlePrint(w http.ResponseWriter, r *http.Request) {
    _, req, ok := decodeBuild(w, r)
    if !ok { return }
    job, err := a.s.Print(r.Context(), req)
    if err != nil { writeError(w, err); return }
    writeJSON(w, http.StatusAccepted, job)
}

func (a *API) handleJob(w http.ResponseWriter, r *http.Request) {
    id := chi.URLParam(r, "id")
    st, ok, err := a.s.Job(r.Context(), id)
    if err != nil {
        writeFail(w, http.StatusServiceUnavailable, "status_unavailable", err.Error()); return
    }
    if !ok {
        writeFail(w, http.StatusNotFound, "not_found", "unknown job"); return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "job_id":   id,
        "kind":     st.Kind,
        "status":   st.Status,
        "progress": st.Progress,
        "message":  st.Message,
        "start":    st.Start,
        "end":      st.End,
        "metadata": st.Metadata,
    })
}
