package httpapi

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"incidentdb/internal/core"
	"incidentdb/pkg/domain"
)

type fieldsRequest struct {
	IncidentID int            `json:"incident_id"`
	Fields     map[string]any `json:"fields"`
}

func (req fieldsRequest) fields() (domain.Fields, error) {
	return domain.FieldsFromAny(req.Fields)
}

func (h *Handler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("format"), "csv") || strings.Contains(r.Header.Get("Accept"), "text/csv") {
		streamCSV(w, h.svc, filter)
		return
	}
	out := []incidentView{}
	for inc := range h.svc.Search(filter) {
		out = append(out, viewIncident(inc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": out})
}

func (h *Handler) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var req fieldsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid incident payload")
		return
	}
	fields, err := req.fields()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inc, res, err := h.svc.CreateIncident(r.Context(), domain.Incident{ID: req.IncidentID, Fields: fields})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/incidents/%d", inc.ID))
	writeResult(w, http.StatusCreated, "incident", viewIncident(inc), res)
}

func (h *Handler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inc, err := h.svc.Incident(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": viewIncident(inc)})
}

func (h *Handler) handleUpdateIncident(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req fieldsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid incident payload")
		return
	}
	changes, err := req.fields()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inc, res, err := h.svc.UpdateIncident(r.Context(), id, changes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeResult(w, http.StatusOK, "incident", viewIncident(inc), res)
}

func (h *Handler) handleDeleteIncident(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.svc.DeleteIncident(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	format, err := core.ParseReportFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.svc.Incident(id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	if format == core.ReportPDF {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"incident-%d.pdf\"", id))
	}
	if err := h.svc.WriteReport(r.Context(), w, id, format); err != nil {
		h.logger.Error("render report", "incident", id, "format", format, "error", err)
	}
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snap, err := h.svc.Snapshot(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap})
}

// streamCSV writes matching incidents with the declared columns first, then
// any extra columns in name order.
func streamCSV(w http.ResponseWriter, svc *core.Service, filter domain.Filter) {
	var rows []domain.Incident
	extra := map[string]struct{}{}
	schema := domain.IncidentSchema()
	for inc := range svc.Search(filter) {
		rows = append(rows, inc)
		for name := range inc.Fields {
			if _, ok := schema.Column(name); !ok {
				extra[name] = struct{}{}
			}
		}
	}
	columns := schema.ColumnNames()
	extras := make([]string, 0, len(extra))
	for name := range extra {
		extras = append(extras, name)
	}
	sort.Strings(extras)
	columns = append(columns, extras...)

	filename := fmt.Sprintf("incidents-%s.csv", time.Now().UTC().Format("20060102T150405Z"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(columns); err != nil {
		return
	}
	for _, inc := range rows {
		record := make([]string, len(columns))
		record[0] = inc.Key()
		for i, name := range columns[1:] {
			record[i+1] = inc.Fields.Text(name)
		}
		if err := writer.Write(record); err != nil {
			return
		}
	}
}
