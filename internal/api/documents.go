package api

import (
    "encoding/json"
    "fmt"
    "io"
    "net/http"
    "os"
    "path/filepath"
    "strings"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"
)

type openReq struct {
    Ref  string `json:"ref"`
    Name string `json:"name"`
}

func (a *API) handleDocument(w http.ResponseWriter, r *http.Request) {
    info, ok := a.s.Document()
    if !ok {
        writeFail(w, http.StatusNotFound, "no_document_open", "no document open"); return
    }
    writeJSON(w, http.StatusOK, info)
}

func (a *API) handleOpen(w http.ResponseWriter, r *http.Request) {
    defer r.Body.Close()
    var req openReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        writeFail(w, http.StatusBadRequest, "invalid_request", "invalid json"); return
    }
    if strings.TrimSpace(req.Ref) == "" {
        writeFail(w, http.StatusBadRequest, "invalid_request", "missing ref"); return
    }
    info, err := a.s.OpenRef(r.Context(), req.Ref)
    if err != nil {
        log.Warn().Err(err).Str("ref", req.Ref).Msg("open failed")
        writeError(w, err); return
    }
    writeJSON(w, http.StatusCreated, info)
}

// handleUpload stores a multipart upload under the upload dir and opens it.
// The stored file lives until the document is replaced or closed.
func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
    r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
    if err := r.ParseMultipartForm(32 << 20); err != nil {
        writeFail(w, http.StatusBadRequest, "invalid_request", "invalid multipart form"); return
    }
    file, hdr, err := r.FormFile("file")
    if err != nil {
        writeFail(w, http.StatusBadRequest, "invalid_request", "missing file"); return
    }
    defer file.Close()

    if err := os.MkdirAll(a.uploadDir, 0o755); err != nil {
        writeFail(w, http.StatusInternalServerError, "upload_failed", "cannot create upload dir"); return
    }
    name := filepath.Base(hdr.Filename)
    if name == "." || name == string(filepath.Separator) || name == "" { name = "upload.pdf" }
    localPath := filepath.Join(a.uploadDir, fmt.Sprintf("upload-%s%s", uuid.NewString(), strings.ToLower(filepath.Ext(name))))
    out, err := os.Create(localPath)
    if err != nil {
        writeFail(w, http.StatusInternalServerError, "upload_failed", "cannot save upload"); return
    }
    if _, err := io.Copy(out, file); err != nil {
        out.Close()
        os.Remove(localPath)
        writeFail(w, http.StatusInternalServerError, "upload_failed", "write failed"); return
    }
    if err := out.Close(); err != nil {
        os.Remove(localPath)
        writeFail(w, http.StatusInternalServerError, "upload_failed", "write failed"); return
    }

    cleanup := func() { _ = os.Remove(localPath) }
    info, err := a.s.Open(r.Context(), localPath, name, cleanup)
    if err != nil {
        cleanup()
        log.Warn().Err(err).Str("file", name).Msg("upload open failed")
        writeError(w, err); return
    }
    writeJSON(w, http.StatusCreated, info)
}

func (a *API) handleClose(w http.ResponseWriter, r *http.Request) {
    a.s.Close()
    w.WriteHeader(http.StatusNoContent)
}
