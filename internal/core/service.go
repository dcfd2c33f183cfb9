package core

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"incidentdb/internal/blob"
	"incidentdb/internal/infra/persistence/memory"
	"incidentdb/pkg/domain"
)

// Store is the persistence contract the service runs on: transactional CRUD
// plus whole-state snapshots for workbook load and export.
type Store interface {
	domain.PersistentStore
	ExportState() memory.Snapshot
	Replace(ctx context.Context, snapshot memory.Snapshot) error
}

// resumable is implemented by journal-backed stores that restored state from
// a previous session.
type resumable interface {
	Resumed() bool
}

// Service exposes the incident workbook operations: CRUD with consistency
// checks, search, reports, and workbook load/export.
type Service struct {
	store          Store
	clock          Clock
	logger         Logger
	metrics        MetricsRecorder
	tracer         Tracer
	audit          AuditRecorder
	blobs          blob.Store
	workbookPath   string
	requiredSheets []string
	resume         bool
	urlExpiry      time.Duration

	mu       sync.RWMutex
	warnings Result
}

// NewService constructs a service backed by the supplied store.
func NewService(store Store, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &Service{
		store:          store,
		clock:          o.clock,
		logger:         o.logger,
		metrics:        o.metrics,
		tracer:         o.tracer,
		audit:          o.audit,
		blobs:          o.blobs,
		workbookPath:   o.workbookPath,
		requiredSheets: o.requiredSheets,
		resume:         o.resume,
		urlExpiry:      o.urlExpiry,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine selects NewDefaultRulesEngine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() Store { return s.store }

// WorkbookPath returns the configured source workbook.
func (s *Service) WorkbookPath() string { return s.workbookPath }

// run wraps an operation with tracing, metrics, audit, and logging. fn
// returns the affected entity id for the audit trail.
func (s *Service) run(ctx context.Context, op string, entity EntityType, fn func(context.Context) (string, Result, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	id, res, err := fn(ctx)
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)

	entry := AuditEntry{
		Operation:  op,
		Entity:     entity,
		EntityID:   id,
		Status:     AuditStatusSuccess,
		Violations: res.Violations,
		At:         s.clock.Now(),
		Duration:   elapsed,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.logger.Warn("operation failed", "operation", op, "entity", entity, "id", id, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op, "entity", entity, "id", id, "duration", elapsed)
	}
	for _, v := range res.Violations {
		if v.Severity == SeverityWarn {
			s.logger.Warn("rule warning", "rule", v.Rule, "entity", v.Entity, "id", v.EntityID, "message", v.Message)
		}
	}
	s.audit.Record(ctx, entry)
	return res, err
}

// splitKey removes a key column from fields and returns its value.
func splitKey(fields Fields, names ...string) (domain.Value, Fields) {
	out := make(Fields, len(fields))
	key := domain.Empty
	for name, v := range fields {
		matched := false
		for _, keyName := range names {
			if keyName != "" && strings.EqualFold(strings.TrimSpace(name), keyName) {
				matched = true
				break
			}
		}
		if matched {
			key = v
			continue
		}
		out[name] = v
	}
	return key, out
}

func intKey(column string, v domain.Value) (int, error) {
	if v.IsEmpty() {
		return 0, nil
	}
	coerced, err := domain.Coerce(v, domain.ColumnInt)
	if err != nil {
		return 0, domain.FieldError{Field: column, Value: v.String(), Err: err}
	}
	id, _ := coerced.Int()
	if id <= 0 {
		return 0, domain.FieldError{Field: column, Value: v.String(), Err: fmt.Errorf("must be positive")}
	}
	return id, nil
}

// compact drops empty values.
func compact(fields Fields) Fields {
	out := make(Fields, len(fields))
	for name, v := range fields {
		if !v.IsEmpty() {
			out[name] = v
		}
	}
	return out
}

// applyChanges merges normalized changes into fields. Empty values clear the
// column.
func applyChanges(fields, changes Fields) Fields {
	out := fields.Clone()
	for name, v := range changes {
		if v.IsEmpty() {
			delete(out, name)
			continue
		}
		out[name] = v
	}
	return out
}

// Incidents ------------------------------------------------------------------

// CreateIncident stores a new incident. When inc.ID is zero the key may be
// given as an IncidentID field; otherwise max(IncidentID)+1 is assigned.
func (s *Service) CreateIncident(ctx context.Context, inc Incident) (Incident, Result, error) {
	var created Incident
	res, err := s.run(ctx, "create_incident", domain.EntityIncident, func(ctx context.Context) (string, Result, error) {
		schema := domain.IncidentSchema()
		keyValue, rest := splitKey(inc.Fields, append([]string{schema.Key}, schema.KeyAlias...)...)
		if inc.ID == 0 {
			id, err := intKey(schema.Key, keyValue)
			if err != nil {
				return "", Result{}, err
			}
			inc.ID = id
		}
		fields, err := schema.Normalize(rest)
		if err != nil {
			return strconv.Itoa(inc.ID), Result{}, err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateIncident(Incident{ID: inc.ID, Fields: compact(fields)})
			return err
		})
		return created.Key(), res, err
	})
	return created, res, err
}

// UpdateIncident merges changes into an existing incident. The key cannot be
// changed; repeating the current key is allowed.
func (s *Service) UpdateIncident(ctx context.Context, id int, changes Fields) (Incident, Result, error) {
	var updated Incident
	res, err := s.run(ctx, "update_incident", domain.EntityIncident, func(ctx context.Context) (string, Result, error) {
		schema := domain.IncidentSchema()
		keyValue, rest := splitKey(changes, append([]string{schema.Key}, schema.KeyAlias...)...)
		if !keyValue.IsEmpty() {
			if given, err := intKey(schema.Key, keyValue); err != nil || given != id {
				return strconv.Itoa(id), Result{}, domain.FieldError{Field: schema.Key, Value: keyValue.String(), Err: domain.ErrKeyColumn}
			}
		}
		normalized, err := schema.Normalize(rest)
		if err != nil {
			return strconv.Itoa(id), Result{}, err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateIncident(id, func(inc *Incident) error {
				inc.Fields = applyChanges(inc.Fields, normalized)
				return nil
			})
			return err
		})
		return strconv.Itoa(id), res, err
	})
	return updated, res, err
}

// DeleteIncident removes an incident and every child row referencing it.
func (s *Service) DeleteIncident(ctx context.Context, id int) (Result, error) {
	return s.run(ctx, "delete_incident", domain.EntityIncident, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return tx.DeleteIncident(id)
		})
		return strconv.Itoa(id), res, err
	})
}

// Incident returns one incident or NotFoundError.
func (s *Service) Incident(id int) (Incident, error) {
	inc, ok := s.store.GetIncident(id)
	if !ok {
		return Incident{}, domain.NotFoundError{Entity: domain.EntityIncident, ID: strconv.Itoa(id)}
	}
	return inc, nil
}

// ListIncidents returns every incident ordered by IncidentID.
func (s *Service) ListIncidents() []Incident { return s.store.ListIncidents() }

// Search lazily yields the incidents matching filter, ordered by IncidentID.
// The sequence reads a snapshot taken when iteration starts.
func (s *Service) Search(filter Filter) iter.Seq[Incident] {
	return func(yield func(Incident) bool) {
		for inc := range filter.Apply(slices.Values(s.store.ListIncidents())) {
			if !yield(inc) {
				return
			}
		}
	}
}

// Child rows -----------------------------------------------------------------

func childSchema(kind ChildKind) (domain.SheetSchema, error) {
	schema, ok := domain.ChildSchema(kind)
	if !ok {
		return domain.SheetSchema{}, domain.FieldError{Field: "kind", Value: string(kind), Err: fmt.Errorf("unknown child kind")}
	}
	return schema, nil
}

// AddChild appends a child row to an existing incident. Coded columns must
// resolve against their lookup table or roster.
func (s *Service) AddChild(ctx context.Context, kind ChildKind, incidentID int, fields Fields) (ChildRecord, Result, error) {
	var created ChildRecord
	res, err := s.run(ctx, "add_child", kind.Entity(), func(ctx context.Context) (string, Result, error) {
		schema, err := childSchema(kind)
		if err != nil {
			return "", Result{}, err
		}
		_, rest := splitKey(fields, schema.ParentKey, "IncidentNumber")
		normalized, err := schema.Normalize(rest)
		if err != nil {
			return "", Result{}, err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateChild(ChildRecord{Kind: kind, IncidentID: incidentID, Fields: compact(normalized)})
			return err
		})
		return created.Key(), res, err
	})
	return created, res, err
}

// UpdateChild merges changes into a child row. An IncidentID among the
// changes moves the row to that incident.
func (s *Service) UpdateChild(ctx context.Context, kind ChildKind, rowID int, changes Fields) (ChildRecord, Result, error) {
	var updated ChildRecord
	res, err := s.run(ctx, "update_child", kind.Entity(), func(ctx context.Context) (string, Result, error) {
		schema, err := childSchema(kind)
		if err != nil {
			return "", Result{}, err
		}
		parentValue, rest := splitKey(changes, schema.ParentKey, "IncidentNumber")
		parent, err := intKey(schema.ParentKey, parentValue)
		if err != nil {
			return strconv.Itoa(rowID), Result{}, err
		}
		normalized, err := schema.Normalize(rest)
		if err != nil {
			return strconv.Itoa(rowID), Result{}, err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateChild(kind, rowID, func(row *ChildRecord) error {
				if parent != 0 {
					row.IncidentID = parent
				}
				row.Fields = applyChanges(row.Fields, normalized)
				return nil
			})
			return err
		})
		return strconv.Itoa(rowID), res, err
	})
	return updated, res, err
}

// DeleteChild removes one child row.
func (s *Service) DeleteChild(ctx context.Context, kind ChildKind, rowID int) (Result, error) {
	return s.run(ctx, "delete_child", kind.Entity(), func(ctx context.Context) (string, Result, error) {
		if _, err := childSchema(kind); err != nil {
			return "", Result{}, err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return tx.DeleteChild(kind, rowID)
		})
		return strconv.Itoa(rowID), res, err
	})
}

// ListChildren returns rows of one child sheet for an incident in sheet
// order. incidentID 0 lists every row.
func (s *Service) ListChildren(kind ChildKind, incidentID int) ([]ChildRecord, error) {
	if _, err := childSchema(kind); err != nil {
		return nil, err
	}
	if incidentID != 0 {
		if _, ok := s.store.GetIncident(incidentID); !ok {
			return nil, domain.NotFoundError{Entity: domain.EntityIncident, ID: strconv.Itoa(incidentID)}
		}
	}
	return s.store.ListChildren(kind, incidentID), nil
}

// Child returns one child row.
func (s *Service) Child(ctx context.Context, kind ChildKind, rowID int) (ChildRecord, error) {
	var row ChildRecord
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		var ok bool
		row, ok = view.FindChild(kind, rowID)
		if !ok {
			return domain.NotFoundError{Entity: kind.Entity(), ID: strconv.Itoa(rowID)}
		}
		return nil
	})
	return row, err
}
