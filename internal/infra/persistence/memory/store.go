// Package memory provides the in-memory implementation of the incident store.
// Every other backend wraps it and snapshots its state after each commit.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"incidentdb/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Incident aliases domain.Incident.
	Incident = domain.Incident
	// ChildRecord aliases domain.ChildRecord.
	ChildRecord = domain.ChildRecord
	// RosterEntry aliases domain.RosterEntry.
	RosterEntry = domain.RosterEntry
	// LookupEntry aliases domain.LookupEntry.
	LookupEntry = domain.LookupEntry
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// RawSheet is a sheet the loader did not recognise. It is carried through so
// export never drops user data.
type RawSheet struct {
	Name string     `json:"name"`
	Rows [][]string `json:"rows"`
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Incidents map[int]Incident                             `json:"incidents"`
	Children  map[domain.ChildKind]map[int]ChildRecord     `json:"children"`
	Rosters   map[domain.RosterKind]map[string]RosterEntry `json:"rosters"`
	Lookups   map[domain.LookupKind][]LookupEntry          `json:"lookups"`
	Columns   map[string][]string                          `json:"columns,omitempty"`
	Extra     []RawSheet                                   `json:"extra,omitempty"`
}

type memoryState struct {
	incidents map[int]Incident
	children  map[domain.ChildKind]map[int]ChildRecord
	rosters   map[domain.RosterKind]map[string]RosterEntry
	lookups   map[domain.LookupKind][]LookupEntry
	columns   map[string][]string
	extra     []RawSheet
}

func newMemoryState() memoryState {
	s := memoryState{
		incidents: make(map[int]Incident),
		children:  make(map[domain.ChildKind]map[int]ChildRecord),
		rosters:   make(map[domain.RosterKind]map[string]RosterEntry),
		lookups:   make(map[domain.LookupKind][]LookupEntry),
		columns:   make(map[string][]string),
	}
	for _, kind := range domain.ChildKinds() {
		s.children[kind] = make(map[int]ChildRecord)
	}
	for _, kind := range domain.RosterKinds() {
		s.rosters[kind] = make(map[string]RosterEntry)
	}
	return s
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.incidents {
		out.incidents[k] = v.Clone()
	}
	for kind, rows := range s.children {
		dst := make(map[int]ChildRecord, len(rows))
		for k, v := range rows {
			dst[k] = v.Clone()
		}
		out.children[kind] = dst
	}
	for kind, entries := range s.rosters {
		dst := make(map[string]RosterEntry, len(entries))
		for k, v := range entries {
			dst[k] = v.Clone()
		}
		out.rosters[kind] = dst
	}
	for kind, entries := range s.lookups {
		out.lookups[kind] = append([]LookupEntry(nil), entries...)
	}
	for sheet, cols := range s.columns {
		out.columns[sheet] = append([]string(nil), cols...)
	}
	for _, raw := range s.extra {
		rows := make([][]string, len(raw.Rows))
		for i, r := range raw.Rows {
			rows[i] = append([]string(nil), r...)
		}
		out.extra = append(out.extra, RawSheet{Name: raw.Name, Rows: rows})
	}
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	c := state.clone()
	return Snapshot{
		Incidents: c.incidents,
		Children:  c.children,
		Rosters:   c.rosters,
		Lookups:   c.lookups,
		Columns:   c.columns,
		Extra:     c.extra,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		incidents: s.Incidents,
		children:  s.Children,
		rosters:   s.Rosters,
		lookups:   s.Lookups,
		columns:   s.Columns,
		extra:     s.Extra,
	}
	return migrateSnapshot(state.clone())
}

// migrateSnapshot fills nil tables and re-stamps the kind and key fields that
// JSON decoding or hand-built snapshots may leave inconsistent.
func migrateSnapshot(state memoryState) memoryState {
	if state.incidents == nil {
		state.incidents = map[int]Incident{}
	}
	if state.children == nil {
		state.children = map[domain.ChildKind]map[int]ChildRecord{}
	}
	if state.rosters == nil {
		state.rosters = map[domain.RosterKind]map[string]RosterEntry{}
	}
	if state.lookups == nil {
		state.lookups = map[domain.LookupKind][]LookupEntry{}
	}
	if state.columns == nil {
		state.columns = map[string][]string{}
	}
	for id, inc := range state.incidents {
		inc.ID = id
		if inc.Fields == nil {
			inc.Fields = domain.Fields{}
		}
		state.incidents[id] = inc
	}
	for _, kind := range domain.ChildKinds() {
		if state.children[kind] == nil {
			state.children[kind] = map[int]ChildRecord{}
		}
		for rowID, row := range state.children[kind] {
			row.Kind = kind
			row.RowID = rowID
			state.children[kind][rowID] = row
		}
	}
	for _, kind := range domain.RosterKinds() {
		if state.rosters[kind] == nil {
			state.rosters[kind] = map[string]RosterEntry{}
		}
		for id, entry := range state.rosters[kind] {
			entry.Kind = kind
			entry.ID = id
			state.rosters[kind][id] = entry
		}
	}
	return state
}

// Store provides an in-memory transactional store for the incident workbook.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

// Read helpers ---------------------------------------------------------------

func (v transactionView) ListIncidents() []Incident { return listIncidents(v.state) }

func (v transactionView) FindIncident(id int) (Incident, bool) {
	inc, ok := v.state.incidents[id]
	if !ok {
		return Incident{}, false
	}
	return inc.Clone(), true
}

func (v transactionView) ListChildren(kind domain.ChildKind, incidentID int) []ChildRecord {
	return listChildren(v.state, kind, incidentID)
}

func (v transactionView) FindChild(kind domain.ChildKind, rowID int) (ChildRecord, bool) {
	row, ok := v.state.children[kind][rowID]
	if !ok {
		return ChildRecord{}, false
	}
	return row.Clone(), true
}

func (v transactionView) ListRoster(kind domain.RosterKind) []RosterEntry {
	return listRoster(v.state, kind)
}

func (v transactionView) FindRosterEntry(kind domain.RosterKind, id string) (RosterEntry, bool) {
	entry, ok := v.state.rosters[kind][id]
	if !ok {
		return RosterEntry{}, false
	}
	return entry.Clone(), true
}

func (v transactionView) Lookup(kind domain.LookupKind) []LookupEntry {
	return append([]LookupEntry(nil), v.state.lookups[kind]...)
}

func listIncidents(state *memoryState) []Incident {
	out := make([]Incident, 0, len(state.incidents))
	for _, inc := range state.incidents {
		out = append(out, inc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// listChildren returns rows in sheet order; incidentID 0 returns every row.
func listChildren(state *memoryState, kind domain.ChildKind, incidentID int) []ChildRecord {
	rows := state.children[kind]
	out := make([]ChildRecord, 0, len(rows))
	for _, row := range rows {
		if incidentID != 0 && row.IncidentID != incidentID {
			continue
		}
		out = append(out, row.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowID < out[j].RowID })
	return out
}

func listRoster(state *memoryState, kind domain.RosterKind) []RosterEntry {
	entries := state.rosters[kind]
	out := make([]RosterEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return lessKey(out[i].ID, out[j].ID) })
	return out
}

// lessKey orders numeric keys numerically and everything else lexically.
func lessKey(a, b string) bool {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	if aErr == nil && bErr == nil {
		return ai < bi
	}
	if (aErr == nil) != (bErr == nil) {
		return aErr == nil
	}
	return a < b
}

// GetIncident retrieves an incident from committed state.
func (s *Store) GetIncident(id int) (Incident, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.state.incidents[id]
	if !ok {
		return Incident{}, false
	}
	return inc.Clone(), true
}

// ListIncidents returns all incidents ordered by IncidentID.
func (s *Store) ListIncidents() []Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listIncidents(&s.state)
}

// ListChildren returns rows of a child sheet; incidentID 0 returns every row.
func (s *Store) ListChildren(kind domain.ChildKind, incidentID int) []ChildRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listChildren(&s.state, kind, incidentID)
}

// ListRoster returns roster entries ordered by key.
func (s *Store) ListRoster(kind domain.RosterKind) []RosterEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRoster(&s.state, kind)
}

// Lookup returns the entries of a lookup table.
func (s *Store) Lookup(kind domain.LookupKind) []LookupEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]LookupEntry(nil), s.state.lookups[kind]...)
}

// Transaction helpers --------------------------------------------------------

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindIncident exposes incident lookup within the transaction scope.
func (tx *transaction) FindIncident(id int) (Incident, bool) {
	inc, ok := tx.state.incidents[id]
	if !ok {
		return Incident{}, false
	}
	return inc.Clone(), true
}

func (tx *transaction) nextIncidentID() int {
	maxID := 0
	for id := range tx.state.incidents {
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

func (tx *transaction) nextRowID(kind domain.ChildKind) int {
	maxID := 0
	for id := range tx.state.children[kind] {
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

// checkReferences verifies coded columns against lookup tables and rosters.
// Empty values pass, and so does any column whose table has no entries.
func (tx *transaction) checkReferences(entity domain.EntityType, schema domain.SheetSchema, fields domain.Fields) error {
	for _, spec := range schema.References() {
		value := fields.Text(spec.Name)
		if value == "" {
			continue
		}
		switch {
		case spec.Ref.Lookup != "":
			entries := tx.state.lookups[spec.Ref.Lookup]
			if len(entries) == 0 || lookupContains(entries, value) {
				continue
			}
			return domain.InvalidReferenceError{Entity: entity, Field: spec.Name, Value: value, Target: string(spec.Ref.Lookup)}
		case spec.Ref.Roster != "":
			roster := tx.state.rosters[spec.Ref.Roster]
			if len(roster) == 0 {
				continue
			}
			if _, ok := roster[value]; ok {
				continue
			}
			return domain.InvalidReferenceError{Entity: entity, Field: spec.Name, Value: value, Target: string(spec.Ref.Roster)}
		}
	}
	return nil
}

func lookupContains(entries []LookupEntry, value string) bool {
	for _, e := range entries {
		if e.Code == value || strings.EqualFold(e.Code, value) || strings.EqualFold(e.Label, value) {
			return true
		}
	}
	return false
}

// Incidents ------------------------------------------------------------------

// CreateIncident stores a new incident. A zero ID takes the next free key.
func (tx *transaction) CreateIncident(inc Incident) (Incident, error) {
	if inc.ID < 0 {
		return Incident{}, domain.FieldError{Field: domain.ColumnIncidentID, Value: strconv.Itoa(inc.ID), Err: fmt.Errorf("must be positive")}
	}
	if inc.ID == 0 {
		inc.ID = tx.nextIncidentID()
	}
	if _, exists := tx.state.incidents[inc.ID]; exists {
		return Incident{}, domain.DuplicateKeyError{Entity: domain.EntityIncident, Key: inc.Key()}
	}
	if inc.Fields == nil {
		inc.Fields = domain.Fields{}
	}
	if err := tx.checkReferences(domain.EntityIncident, domain.IncidentSchema(), inc.Fields); err != nil {
		return Incident{}, err
	}
	tx.state.incidents[inc.ID] = inc.Clone()
	tx.recordChange(Change{Entity: domain.EntityIncident, Action: domain.ActionCreate, After: inc.Clone()})
	return inc.Clone(), nil
}

// UpdateIncident mutates an incident using the provided mutator function.
func (tx *transaction) UpdateIncident(id int, mutator func(*Incident) error) (Incident, error) {
	current, ok := tx.state.incidents[id]
	if !ok {
		return Incident{}, domain.NotFoundError{Entity: domain.EntityIncident, ID: strconv.Itoa(id)}
	}
	before := current.Clone()
	current = current.Clone()
	if err := mutator(&current); err != nil {
		return Incident{}, err
	}
	current.ID = id
	if err := tx.checkReferences(domain.EntityIncident, domain.IncidentSchema(), current.Fields); err != nil {
		return Incident{}, err
	}
	tx.state.incidents[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityIncident, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteIncident removes an incident and every child row referencing it.
func (tx *transaction) DeleteIncident(id int) error {
	current, ok := tx.state.incidents[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityIncident, ID: strconv.Itoa(id)}
	}
	for _, kind := range domain.ChildKinds() {
		for _, row := range listChildren(&tx.state, kind, id) {
			delete(tx.state.children[kind], row.RowID)
			tx.recordChange(Change{Entity: kind.Entity(), Action: domain.ActionDelete, Before: row})
		}
	}
	delete(tx.state.incidents, id)
	tx.recordChange(Change{Entity: domain.EntityIncident, Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// Child rows -----------------------------------------------------------------

// CreateChild appends a row to a child sheet. The parent incident must exist.
func (tx *transaction) CreateChild(row ChildRecord) (ChildRecord, error) {
	schema, ok := domain.ChildSchema(row.Kind)
	if !ok {
		return ChildRecord{}, fmt.Errorf("unknown child kind %q", row.Kind)
	}
	if _, exists := tx.state.incidents[row.IncidentID]; !exists {
		return ChildRecord{}, domain.NotFoundError{Entity: domain.EntityIncident, ID: strconv.Itoa(row.IncidentID)}
	}
	if row.Fields == nil {
		row.Fields = domain.Fields{}
	}
	if err := tx.checkReferences(row.Kind.Entity(), schema, row.Fields); err != nil {
		return ChildRecord{}, err
	}
	if row.RowID == 0 {
		row.RowID = tx.nextRowID(row.Kind)
	}
	if _, exists := tx.state.children[row.Kind][row.RowID]; exists {
		return ChildRecord{}, domain.DuplicateKeyError{Entity: row.Kind.Entity(), Key: row.Key()}
	}
	tx.state.children[row.Kind][row.RowID] = row.Clone()
	tx.recordChange(Change{Entity: row.Kind.Entity(), Action: domain.ActionCreate, After: row.Clone()})
	return row.Clone(), nil
}

// UpdateChild mutates a child row. Moving it to another incident requires the
// target incident to exist.
func (tx *transaction) UpdateChild(kind domain.ChildKind, rowID int, mutator func(*ChildRecord) error) (ChildRecord, error) {
	schema, ok := domain.ChildSchema(kind)
	if !ok {
		return ChildRecord{}, fmt.Errorf("unknown child kind %q", kind)
	}
	current, ok := tx.state.children[kind][rowID]
	if !ok {
		return ChildRecord{}, domain.NotFoundError{Entity: kind.Entity(), ID: strconv.Itoa(rowID)}
	}
	before := current.Clone()
	current = current.Clone()
	if err := mutator(&current); err != nil {
		return ChildRecord{}, err
	}
	current.Kind = kind
	current.RowID = rowID
	if _, exists := tx.state.incidents[current.IncidentID]; !exists {
		return ChildRecord{}, domain.NotFoundError{Entity: domain.EntityIncident, ID: strconv.Itoa(current.IncidentID)}
	}
	if err := tx.checkReferences(kind.Entity(), schema, current.Fields); err != nil {
		return ChildRecord{}, err
	}
	tx.state.children[kind][rowID] = current.Clone()
	tx.recordChange(Change{Entity: kind.Entity(), Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteChild removes a single child row.
func (tx *transaction) DeleteChild(kind domain.ChildKind, rowID int) error {
	current, ok := tx.state.children[kind][rowID]
	if !ok {
		return domain.NotFoundError{Entity: kind.Entity(), ID: strconv.Itoa(rowID)}
	}
	delete(tx.state.children[kind], rowID)
	tx.recordChange(Change{Entity: kind.Entity(), Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// Rosters and lookups --------------------------------------------------------

// UpsertRosterEntry creates or replaces a roster entry.
func (tx *transaction) UpsertRosterEntry(entry RosterEntry) (RosterEntry, error) {
	schema, ok := domain.RosterSchema(entry.Kind)
	if !ok {
		return RosterEntry{}, fmt.Errorf("unknown roster %q", entry.Kind)
	}
	entry.ID = strings.TrimSpace(entry.ID)
	if entry.ID == "" {
		return RosterEntry{}, domain.FieldError{Field: schema.Key, Err: fmt.Errorf("roster key required")}
	}
	if entry.Fields == nil {
		entry.Fields = domain.Fields{}
	}
	if err := tx.checkReferences(entry.Kind.Entity(), schema, entry.Fields); err != nil {
		return RosterEntry{}, err
	}
	before, existed := tx.state.rosters[entry.Kind][entry.ID]
	tx.state.rosters[entry.Kind][entry.ID] = entry.Clone()
	if existed {
		tx.recordChange(Change{Entity: entry.Kind.Entity(), Action: domain.ActionUpdate, Before: before.Clone(), After: entry.Clone()})
	} else {
		tx.recordChange(Change{Entity: entry.Kind.Entity(), Action: domain.ActionCreate, After: entry.Clone()})
	}
	return entry.Clone(), nil
}

// DeleteRosterEntry removes a roster entry that no child row references.
func (tx *transaction) DeleteRosterEntry(kind domain.RosterKind, id string) error {
	current, ok := tx.state.rosters[kind][id]
	if !ok {
		return domain.NotFoundError{Entity: kind.Entity(), ID: id}
	}
	for _, childKind := range domain.ChildKinds() {
		schema, _ := domain.ChildSchema(childKind)
		for _, spec := range schema.References() {
			if spec.Ref.Roster != kind {
				continue
			}
			for _, row := range listChildren(&tx.state, childKind, 0) {
				if row.Fields.Text(spec.Name) == id {
					return domain.InvalidReferenceError{Entity: kind.Entity(), Value: id, Target: fmt.Sprintf("%s row %d", childKind.Entity(), row.RowID)}
				}
			}
		}
	}
	delete(tx.state.rosters[kind], id)
	tx.recordChange(Change{Entity: kind.Entity(), Action: domain.ActionDelete, Before: current.Clone()})
	return nil
}

// SetLookup replaces a lookup table. Codes must be unique and non-empty.
func (tx *transaction) SetLookup(kind domain.LookupKind, entries []LookupEntry) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown lookup %q", kind)
	}
	seen := make(map[string]struct{}, len(entries))
	cleaned := make([]LookupEntry, 0, len(entries))
	for _, e := range entries {
		e.Code = strings.TrimSpace(e.Code)
		e.Label = strings.TrimSpace(e.Label)
		if e.Code == "" {
			return domain.FieldError{Field: "code", Err: fmt.Errorf("lookup code required")}
		}
		if e.Label == "" {
			e.Label = e.Code
		}
		if len(e.Extra) == 0 {
			e.Extra = nil
		} else {
			e.Extra = maps.Clone(e.Extra)
		}
		key := strings.ToLower(e.Code)
		if _, dup := seen[key]; dup {
			return domain.DuplicateKeyError{Entity: domain.EntityLookup, Key: e.Code}
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, e)
	}
	before := tx.state.lookups[kind]
	tx.state.lookups[kind] = cleaned
	tx.recordChange(Change{Entity: domain.EntityLookup, Action: domain.ActionUpdate, Before: before, After: append([]LookupEntry(nil), cleaned...)})
	return nil
}

// Snapshot buckets ------------------------------------------------------------

// Buckets lists the named parts of a snapshot that durable backends persist
// as separate JSON payloads.
var Buckets = []string{"incidents", "children", "rosters", "lookups", "columns", "extra"}

// BucketValue returns the part of the snapshot stored under bucket.
func (s *Snapshot) BucketValue(bucket string) (any, bool) {
	switch bucket {
	case "incidents":
		return s.Incidents, true
	case "children":
		return s.Children, true
	case "rosters":
		return s.Rosters, true
	case "lookups":
		return s.Lookups, true
	case "columns":
		return s.Columns, true
	case "extra":
		return s.Extra, true
	}
	return nil, false
}

// BucketTarget returns a pointer suitable for decoding the bucket payload into.
func (s *Snapshot) BucketTarget(bucket string) (any, bool) {
	switch bucket {
	case "incidents":
		return &s.Incidents, true
	case "children":
		return &s.Children, true
	case "rosters":
		return &s.Rosters, true
	case "lookups":
		return &s.Lookups, true
	case "columns":
		return &s.Columns, true
	case "extra":
		return &s.Extra, true
	}
	return nil, false
}

// Replace swaps the whole state for snapshot, as when a workbook is loaded.
func (s *Store) Replace(_ context.Context, snapshot Snapshot) error {
	s.ImportState(snapshot)
	return nil
}
