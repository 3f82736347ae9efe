package api

import (
    "encoding/json"
    "net/http"
    "strconv"

    "github.com/go-chi/chi/v5"
)

type selectionResp struct {
    Pages    []int `json:"pages"`
    Count    int   `json:"count"`
    Selected *bool `json:"selected,omitempty"`
}

func selectionOf(pages []int) selectionResp {
    if pages == nil { pages = []int{} }
    return selectionResp{Pages: pages, Count: len(pages)}
}

func pageParam(r *http.Request) (int, bool) {
    p, err := strconv.Atoi(chi.URLParam(r, "page"))
    return p, err == nil
}

func (a *API) handleSelection(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, selectionOf(a.s.Selection()))
}

func (a *API) handleSetSelection(w http.ResponseWriter, r *http.Request) {
    defer r.Body.Close()
    var req struct {
        Pages []int `json:"pages"`
    }
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeFail(w, http.StatusBadRequest, "invalid_request", "invalid json"); return
    }
    pages, err := a.s.SetSelection(req.Pages)
    if err != nil { writeError(w, err); return }
    writeJSON(w, http.StatusOK, selectionOf(pages))
}

func (a *API) handleClearSelection(w http.ResponseWriter, r *http.Request) {
    a.s.ClearSelection()
    writeJSON(w, http.StatusOK, selectionOf(nil))
}

func (a *API) handleSelectAll(w http.ResponseWriter, r *http.Request) {
    pages, err := a.s.SelectAll()
    if err != nil { writeError(w, err); return }
    writeJSON(w, http.StatusOK, selectionOf(pages))
}

func (a *API) handleToggle(w http.ResponseWriter, r *http.Request) {
    page, ok := pageParam(r)
    if !ok {
        writeFail(w, http.StatusBadRequest, "invalid_request", "page must be an integer"); return
    }
    selected, err := a.s.Toggle(page)
    if err != nil { writeError(w, err); return }
    resp := selectionOf(a.s.Selection())
    resp.Selected = &selected
    writeJSON(w, http.StatusOK, resp)
}
