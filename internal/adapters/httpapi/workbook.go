package httpapi

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"incidentdb/internal/core"
)

// Reports ---------------------------------------------------------------------

func (h *Handler) handleCountsByType(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": nonNil(h.svc.CountsByType(filter))})
}

func (h *Handler) handleCountsByMonth(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": nonNil(h.svc.CountsByMonth(filter))})
}

func (h *Handler) handleResponseTimes(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response_times": nonNil(h.svc.ResponseTimes(filter))})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Workbook --------------------------------------------------------------------

func (h *Handler) handleDownloadWorkbook(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.svc.Export(r.Context(), &buf); err != nil {
		h.fail(w, r, err)
		return
	}
	name := "incidents.xlsx"
	if src := h.svc.WorkbookPath(); src != "" {
		name = path.Base(src)
	}
	w.Header().Set("Content-Type", core.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

func (h *Handler) handleSaveWorkbook(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.SaveWorkbook(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": h.svc.WorkbookPath(), "at": time.Now().UTC()})
}

func (h *Handler) handleWarnings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"warnings": nonNil(h.svc.Warnings().Violations)})
}

// Published exports -----------------------------------------------------------

func (h *Handler) handlePublishExport(w http.ResponseWriter, r *http.Request) {
	published, err := h.svc.PublishExport(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if published.URL == "" {
		published.URL = "/api/v1/exports/" + published.Info.Key
	}
	writeJSON(w, http.StatusCreated, map[string]any{"export": published})
}

func (h *Handler) handleListExports(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.ListExports(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": nonNil(infos)})
}

func (h *Handler) handleOpenExport(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	info, body, err := h.svc.OpenExport(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer func() { _ = body.Close() }()
	contentType := info.ContentType
	if contentType == "" {
		contentType = core.ContentTypeXLSX
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(info.Key)))
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	_, _ = io.Copy(w, body)
}
