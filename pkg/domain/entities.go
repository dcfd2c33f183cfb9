// Package domain defines the incident records, typed cell values, sheet
// schemas, and rule evaluation primitives used by incidentdb.
package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and errors.
const (
	// EntityIncident identifies a row of the Incidents sheet.
	EntityIncident EntityType = "incident"
	// EntityIncidentDetail identifies an Incident_Details row.
	EntityIncidentDetail EntityType = "incident_detail"
	// EntityIncidentTime identifies an Incident_Times row.
	EntityIncidentTime EntityType = "incident_time"
	// EntityIncidentPersonnel identifies a personnel assignment row.
	EntityIncidentPersonnel EntityType = "incident_personnel"
	// EntityIncidentApparatus identifies an apparatus assignment row.
	EntityIncidentApparatus EntityType = "incident_apparatus"
	// EntityIncidentAction identifies an Incident_Actions row.
	EntityIncidentAction EntityType = "incident_action"
	// EntityPersonnel identifies a personnel roster entry.
	EntityPersonnel EntityType = "personnel"
	// EntityApparatus identifies an apparatus roster entry.
	EntityApparatus EntityType = "apparatus"
	// EntityLookup identifies a lookup table.
	EntityLookup EntityType = "lookup"
)

// ChildKind names a child sheet keyed by IncidentID.
type ChildKind string

// Child sheet kinds.
const (
	ChildDetail    ChildKind = "details"
	ChildTime      ChildKind = "times"
	ChildPersonnel ChildKind = "personnel"
	ChildApparatus ChildKind = "apparatus"
	ChildAction    ChildKind = "actions"
)

// ChildKinds lists every child kind in workbook order.
func ChildKinds() []ChildKind {
	return []ChildKind{ChildDetail, ChildTime, ChildPersonnel, ChildApparatus, ChildAction}
}

// Entity maps a child kind to its entity type.
func (k ChildKind) Entity() EntityType {
	switch k {
	case ChildDetail:
		return EntityIncidentDetail
	case ChildTime:
		return EntityIncidentTime
	case ChildPersonnel:
		return EntityIncidentPersonnel
	case ChildApparatus:
		return EntityIncidentApparatus
	case ChildAction:
		return EntityIncidentAction
	}
	return EntityType("incident_" + string(k))
}

// Valid reports whether k is a known child kind.
func (k ChildKind) Valid() bool {
	_, ok := childSchemas[k]
	return ok
}

// RosterKind names a reference roster.
type RosterKind string

// Roster kinds.
const (
	RosterPersonnel RosterKind = "personnel"
	RosterApparatus RosterKind = "apparatus"
)

// RosterKinds lists every roster.
func RosterKinds() []RosterKind { return []RosterKind{RosterPersonnel, RosterApparatus} }

// Entity maps a roster kind to its entity type.
func (k RosterKind) Entity() EntityType {
	if k == RosterApparatus {
		return EntityApparatus
	}
	return EntityPersonnel
}

// Valid reports whether k is a known roster.
func (k RosterKind) Valid() bool {
	_, ok := rosterSchemas[k]
	return ok
}

// LookupKind names a code/label lookup table.
type LookupKind string

// Lookup tables.
const (
	LookupIncidentTypes LookupKind = "incident_types"
	LookupUnitTypes     LookupKind = "unit_types"
	LookupPriorities    LookupKind = "priorities"
	LookupDispositions  LookupKind = "dispositions"
	LookupActions       LookupKind = "actions"
	LookupStates        LookupKind = "states"
)

// LookupKinds lists every lookup table in a stable order.
func LookupKinds() []LookupKind {
	out := make([]LookupKind, 0, len(lookupSheets))
	for k := range lookupSheets {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Valid reports whether k is a known lookup table.
func (k LookupKind) Valid() bool {
	_, ok := lookupSheets[k]
	return ok
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Incident is one row of the Incidents sheet.
type Incident struct {
	ID     int    `json:"incident_id"`
	Fields Fields `json:"fields"`
}

// Date returns the incident date when present.
func (i Incident) Date() (time.Time, bool) {
	return i.Fields.Get(ColumnIncidentDate).Time()
}

// Type returns the incident type code.
func (i Incident) Type() string { return i.Fields.Text(ColumnIncidentType) }

// Key returns the string form of the incident key.
func (i Incident) Key() string { return strconv.Itoa(i.ID) }

// Clone deep-copies the record.
func (i Incident) Clone() Incident {
	i.Fields = i.Fields.Clone()
	return i
}

// ChildRecord is a row of one of the child sheets. RowID is assigned in sheet
// order when the workbook is loaded and is not written back.
type ChildRecord struct {
	Kind       ChildKind `json:"kind"`
	RowID      int       `json:"row_id"`
	IncidentID int       `json:"incident_id"`
	Fields     Fields    `json:"fields"`
}

// Key returns the string form of the row id.
func (c ChildRecord) Key() string { return strconv.Itoa(c.RowID) }

// Clone deep-copies the record.
func (c ChildRecord) Clone() ChildRecord {
	c.Fields = c.Fields.Clone()
	return c
}

// RosterEntry is a row of the Personnel or Apparatus roster.
type RosterEntry struct {
	Kind   RosterKind `json:"kind"`
	ID     string     `json:"id"`
	Fields Fields     `json:"fields"`
}

// Clone deep-copies the entry.
func (r RosterEntry) Clone() RosterEntry {
	r.Fields = r.Fields.Clone()
	return r
}

// Active reports whether the roster entry is flagged active. Entries with no
// Active value count as active.
func (r RosterEntry) Active() bool {
	switch strings.ToLower(r.Fields.Text("Active")) {
	case "", "yes", "y", "true", "1", "active":
		return true
	}
	return false
}

// Label is the human readable name used in pick lists.
func (r RosterEntry) Label() string {
	if r.Kind == RosterApparatus {
		for _, column := range []string{"CallSign", "UnitNumber", "Name"} {
			if v := r.Fields.Text(column); v != "" {
				return v
			}
		}
		return r.ID
	}
	if name := r.Fields.Text("Name"); name != "" {
		return name
	}
	full := strings.TrimSpace(r.Fields.Text("FirstName") + " " + r.Fields.Text("LastName"))
	if full != "" {
		return full
	}
	return r.ID
}

// LookupEntry is one code of a lookup table. Single-column lists use the
// same text for code and label. Extra holds any further columns of the list
// sheet by header.
type LookupEntry struct {
	Code  string            `json:"code"`
	Label string            `json:"label"`
	Extra map[string]string `json:"extra,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity,omitempty"`
	EntityID string     `json:"entity_id,omitempty"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
