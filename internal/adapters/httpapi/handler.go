// Package httpapi serves the incident service over HTTP/JSON.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"incidentdb/internal/blob"
	"incidentdb/internal/core"
	"incidentdb/pkg/domain"
)

// Handler routes /api/v1 requests to a core.Service.
type Handler struct {
	svc     *core.Service
	logger  core.Logger
	metrics http.Handler
	router  chi.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger logs each request at debug and server errors at error.
func WithLogger(l core.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler constructs the HTTP handler.
func NewHandler(svc *core.Service, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: core.NewLogrusLogger(nil)}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.routes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, h.logRequests)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "incidents": len(h.svc.ListIncidents())})
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/incidents", func(r chi.Router) {
			r.Get("/", h.handleListIncidents)
			r.Post("/", h.handleCreateIncident)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetIncident)
				r.Patch("/", h.handleUpdateIncident)
				r.Delete("/", h.handleDeleteIncident)
				r.Get("/report", h.handleReport)
				r.Get("/snapshot", h.handleSnapshot)
				r.Post("/assignments/personnel", h.handleAssignPersonnel)
				r.Post("/assignments/apparatus", h.handleAssignApparatus)
				r.Get("/{kind}", h.handleListChildren)
				r.Post("/{kind}", h.handleAddChild)
			})
		})
		r.Route("/children/{kind}/{row}", func(r chi.Router) {
			r.Get("/", h.handleGetChild)
			r.Patch("/", h.handleUpdateChild)
			r.Delete("/", h.handleDeleteChild)
		})
		r.Route("/rosters/{kind}", func(r chi.Router) {
			r.Get("/", h.handleListRoster)
			r.Get("/options", h.handleRosterOptions)
			r.Put("/{id}", h.handleUpsertRoster)
			r.Delete("/{id}", h.handleDeleteRoster)
		})
		r.Get("/lookups/{kind}", h.handleGetLookup)
		r.Put("/lookups/{kind}", h.handleSetLookup)
		r.Route("/reports", func(r chi.Router) {
			r.Get("/counts/type", h.handleCountsByType)
			r.Get("/counts/month", h.handleCountsByMonth)
			r.Get("/response-times", h.handleResponseTimes)
		})
		r.Route("/workbook", func(r chi.Router) {
			r.Get("/", h.handleDownloadWorkbook)
			r.Post("/save", h.handleSaveWorkbook)
			r.Get("/warnings", h.handleWarnings)
		})
		r.Route("/exports", func(r chi.Router) {
			r.Get("/", h.handleListExports)
			r.Post("/", h.handlePublishExport)
			r.Get("/*", h.handleOpenExport)
		})
	})
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if ww.Status() >= http.StatusInternalServerError {
			h.logger.Error("request failed", args...)
			return
		}
		h.logger.Debug("request", args...)
	})
}

// Request helpers ------------------------------------------------------------

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func pathInt(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, domain.FieldError{Field: name, Value: raw, Err: errors.New("must be a positive integer")}
	}
	return n, nil
}

func childKind(r *http.Request) (domain.ChildKind, error) {
	kind := domain.ChildKind(strings.ToLower(chi.URLParam(r, "kind")))
	if !kind.Valid() {
		return "", domain.NotFoundError{Entity: "sheet", ID: string(kind)}
	}
	return kind, nil
}

func rosterKind(r *http.Request) (domain.RosterKind, error) {
	kind := domain.RosterKind(strings.ToLower(chi.URLParam(r, "kind")))
	if !kind.Valid() {
		return "", domain.NotFoundError{Entity: "roster", ID: string(kind)}
	}
	return kind, nil
}

func lookupKind(r *http.Request) (domain.LookupKind, error) {
	kind := domain.LookupKind(strings.ToLower(chi.URLParam(r, "kind")))
	if !kind.Valid() {
		return "", domain.NotFoundError{Entity: domain.EntityLookup, ID: string(kind)}
	}
	return kind, nil
}

// filterFromQuery reads from/to (inclusive dates), type, priority, city and
// any number of eq.<Column> / like.<Column> predicates.
func filterFromQuery(r *http.Request) (domain.Filter, error) {
	q := r.URL.Query()
	f := domain.Filter{Equals: map[string]string{}, Contains: map[string]string{}}
	for _, bound := range []struct {
		name string
		dst  *time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := strings.TrimSpace(q.Get(bound.name))
		if raw == "" {
			continue
		}
		t, err := domain.ParseDate(raw)
		if err != nil {
			return domain.Filter{}, domain.FieldError{Field: bound.name, Value: raw, Err: err}
		}
		*bound.dst = t
	}
	if v := q.Get("type"); v != "" {
		f.Equals[domain.ColumnIncidentType] = v
	}
	if v := q.Get("priority"); v != "" {
		f.Equals[domain.ColumnResponsePriority] = v
	}
	if v := q.Get("city"); v != "" {
		f.Contains[domain.ColumnCity] = v
	}
	for key, values := range q {
		if len(values) == 0 {
			continue
		}
		switch {
		case strings.HasPrefix(key, "eq."):
			f.Equals[strings.TrimPrefix(key, "eq.")] = values[0]
		case strings.HasPrefix(key, "like."):
			f.Contains[strings.TrimPrefix(key, "like.")] = values[0]
		}
	}
	return f, nil
}

// Responses -------------------------------------------------------------------

type incidentView struct {
	ID     int            `json:"incident_id"`
	Fields map[string]any `json:"fields"`
}

type childView struct {
	Kind       domain.ChildKind `json:"kind"`
	RowID      int              `json:"row_id"`
	IncidentID int              `json:"incident_id"`
	Fields     map[string]any   `json:"fields"`
}

type rosterView struct {
	Kind   domain.RosterKind `json:"kind"`
	ID     string            `json:"id"`
	Label  string            `json:"label"`
	Active bool              `json:"active"`
	Fields map[string]any    `json:"fields"`
}

func viewIncident(inc domain.Incident) incidentView {
	return incidentView{ID: inc.ID, Fields: inc.Fields.Plain()}
}

func viewChildren(rows []domain.ChildRecord) []childView {
	out := make([]childView, 0, len(rows))
	for _, row := range rows {
		out = append(out, viewChild(row))
	}
	return out
}

func viewChild(row domain.ChildRecord) childView {
	return childView{Kind: row.Kind, RowID: row.RowID, IncidentID: row.IncidentID, Fields: row.Fields.Plain()}
}

func viewRoster(e domain.RosterEntry) rosterView {
	return rosterView{Kind: e.Kind, ID: e.ID, Label: e.Label(), Active: e.Active(), Fields: e.Fields.Plain()}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeResult writes payload alongside any rule warnings.
func writeResult(w http.ResponseWriter, status int, key string, payload any, res domain.Result) {
	body := map[string]any{key: payload}
	if len(res.Violations) > 0 {
		body["warnings"] = res.Violations
	}
	writeJSON(w, status, body)
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var (
		notFound  domain.NotFoundError
		dup       domain.DuplicateKeyError
		ref       domain.InvalidReferenceError
		field     domain.FieldError
		violation domain.RuleViolationError
		syntax    *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &notFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &dup):
		return http.StatusConflict
	case errors.As(err, &ref):
		if ref.Field == "" {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	case errors.As(err, &violation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &field), errors.As(err, &syntax), errors.As(err, &typeErr):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNoBlobStore), errors.Is(err, core.ErrNoWorkbook), errors.Is(err, blob.ErrUnsupported):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		h.logger.Error("handler error", "path", r.URL.Path, "error", err)
	}
	body := map[string]any{"error": err.Error()}
	var violation domain.RuleViolationError
	if errors.As(err, &violation) {
		body["violations"] = violation.Result.Violations
	}
	writeJSON(w, status, body)
}
