package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"incidentdb/internal/core"
	"incidentdb/pkg/domain"
)

// Child rows ------------------------------------------------------------------

func (h *Handler) handleListChildren(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	kind, err := childKind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows, err := h.svc.ListChildren(kind, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": viewChildren(rows)})
}

func (h *Handler) handleAddChild(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	kind, err := childKind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req fieldsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid row payload")
		return
	}
	fields, err := req.fields()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	row, res, err := h.svc.AddChild(r.Context(), kind, id, fields)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, "row", viewChild(row), res)
}

func (h *Handler) handleGetChild(w http.ResponseWriter, r *http.Request) {
	kind, err := childKind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rowID, err := pathInt(r, "row")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	row, err := h.svc.Child(r.Context(), kind, rowID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"row": viewChild(row)})
}

func (h *Handler) handleUpdateChild(w http.ResponseWriter, r *http.Request) {
	kind, err := childKind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rowID, err := pathInt(r, "row")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req fieldsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid row payload")
		return
	}
	changes, err := req.fields()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.IncidentID != 0 {
		changes[domain.ColumnIncidentID] = domain.Int(req.IncidentID)
	}
	row, res, err := h.svc.UpdateChild(r.Context(), kind, rowID, changes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, "row", viewChild(row), res)
}

func (h *Handler) handleDeleteChild(w http.ResponseWriter, r *http.Request) {
	kind, err := childKind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rowID, err := pathInt(r, "row")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.svc.DeleteChild(r.Context(), kind, rowID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Bulk assignment -------------------------------------------------------------

func (h *Handler) handleAssignPersonnel(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req core.PersonnelAssignment
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid assignment payload")
		return
	}
	req.IncidentID = id
	rows, res, err := h.svc.AddPersonnel(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, "rows", viewChildren(rows), res)
}

func (h *Handler) handleAssignApparatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req core.ApparatusAssignment
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid assignment payload")
		return
	}
	req.IncidentID = id
	rows, res, err := h.svc.AddApparatus(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusCreated, "rows", viewChildren(rows), res)
}

// Rosters and lookups ---------------------------------------------------------

func (h *Handler) handleListRoster(w http.ResponseWriter, r *http.Request) {
	kind, err := rosterKind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries := h.svc.ListRoster(kind)
	out := make([]rosterView, 0, len(entries))
	for _, e := range entries {
		out = append(out, viewRoster(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) handleRosterOptions(w http.ResponseWriter, r *http.Request) {
	kind, err := rosterKind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"options": h.svc.RosterOptions(kind)})
}

func (h *Handler) handleUpsertRoster(w http.ResponseWriter, r *http.Request) {
	kind, err := rosterKind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req fieldsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid roster payload")
		return
	}
	fields, err := req.fields()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entry, res, err := h.svc.UpsertRosterEntry(r.Context(), domain.RosterEntry{Kind: kind, ID: chi.URLParam(r, "id"), Fields: fields})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, "entry", viewRoster(entry), res)
}

func (h *Handler) handleDeleteRoster(w http.ResponseWriter, r *http.Request) {
	kind, err := rosterKind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.svc.DeleteRosterEntry(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetLookup(w http.ResponseWriter, r *http.Request) {
	kind, err := lookupKind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries := h.svc.Lookups(kind)
	if entries == nil {
		entries = []domain.LookupEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleSetLookup(w http.ResponseWriter, r *http.Request) {
	kind, err := lookupKind(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req struct {
		Entries []domain.LookupEntry `json:"entries"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid lookup payload")
		return
	}
	if _, err := h.svc.SetLookup(r.Context(), kind, req.Entries); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": h.svc.Lookups(kind)})
}
