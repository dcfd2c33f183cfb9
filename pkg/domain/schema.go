package domain

import (
	"sort"
	"strings"
)

// Sheet names of the incident workbook.
const (
	SheetIncidents          = "Incidents"
	SheetIncidentDetails    = "Incident_Details"
	SheetIncidentTimes      = "Incident_Times"
	SheetIncidentPersonnel  = "Incident_Personnel"
	SheetIncidentApparatus  = "Incident_Apparatus"
	SheetIncidentActions    = "Incident_Actions"
	SheetPersonnel          = "Personnel"
	SheetApparatus          = "Apparatus"
	lookupSheetPrefix       = "List_"
	ColumnIncidentID        = "IncidentID"
	legacyIncidentKeyColumn = "IncidentNumber"
	ColumnPersonnelID       = "PersonnelID"
	ColumnApparatusID       = "ApparatusID"
	ColumnIncidentDate      = "Date"
	ColumnIncidentType      = "IncidentType"
	ColumnResponsePriority  = "ResponsePriority"
	ColumnCity              = "City"
)

// Reference names the table a coded column must resolve against.
type Reference struct {
	Lookup LookupKind `json:"lookup,omitempty"`
	Roster RosterKind `json:"roster,omitempty"`
}

// IsZero reports whether no reference is declared.
func (r Reference) IsZero() bool { return r.Lookup == "" && r.Roster == "" }

// ColumnSpec declares a known column.
type ColumnSpec struct {
	Name    string     `json:"name"`
	Type    ColumnType `json:"type"`
	Ref     Reference  `json:"ref,omitempty"`
	Aliases []string   `json:"aliases,omitempty"`
}

// SheetSchema lists the key and known columns of a sheet. Columns not listed
// here are still accepted and carried through as extra fields.
type SheetSchema struct {
	Sheet     string       `json:"sheet"`
	Key       string       `json:"key"`
	KeyType   ColumnType   `json:"key_type"`
	KeyAlias  []string     `json:"key_aliases,omitempty"`
	ParentKey string       `json:"parent_key,omitempty"`
	Columns   []ColumnSpec `json:"columns"`
}

func col(name string, t ColumnType, aliases ...string) ColumnSpec {
	return ColumnSpec{Name: name, Type: t, Aliases: aliases}
}

func lookupCol(name string, kind LookupKind) ColumnSpec {
	return ColumnSpec{Name: name, Type: ColumnText, Ref: Reference{Lookup: kind}}
}

func rosterCol(name string, kind RosterKind) ColumnSpec {
	return ColumnSpec{Name: name, Type: ColumnText, Ref: Reference{Roster: kind}}
}

var incidentSchema = SheetSchema{
	Sheet:    SheetIncidents,
	Key:      ColumnIncidentID,
	KeyType:  ColumnInt,
	KeyAlias: []string{legacyIncidentKeyColumn},
	Columns: []ColumnSpec{
		col(ColumnIncidentDate, ColumnDate, "IncidentDate"),
		col("Time", ColumnTime, "IncidentTime"),
		lookupCol(ColumnIncidentType, LookupIncidentTypes),
		lookupCol(ColumnResponsePriority, LookupPriorities),
		col("AlarmLevel", ColumnText),
		lookupCol("Disposition", LookupDispositions),
		col("Shift", ColumnText),
		col("LocationName", ColumnText),
		col("Address", ColumnText),
		col(ColumnCity, ColumnText),
		lookupCol("State", LookupStates),
		col("PostalCode", ColumnText),
		col("Latitude", ColumnNumber),
		col("Longitude", ColumnNumber),
		col("CallerName", ColumnText),
		col("CallerPhone", ColumnText),
		col("Narrative", ColumnText),
		col("ReportWriter", ColumnText, "CreatedBy"),
		col("Approver", ColumnText, "ReviewedBy"),
	},
}

var childSchemas = map[ChildKind]SheetSchema{
	ChildDetail: {
		Sheet: SheetIncidentDetails, ParentKey: ColumnIncidentID,
		Columns: []ColumnSpec{
			col("PropertyUse", ColumnText),
			col("AreaOfOrigin", ColumnText),
			col("CauseOfIgnition", ColumnText),
			col("EstimatedLoss", ColumnNumber),
			col("Injuries", ColumnInt),
			col("Fatalities", ColumnInt),
			col("Notes", ColumnText),
		},
	},
	ChildTime: {
		Sheet: SheetIncidentTimes, ParentKey: ColumnIncidentID,
		Columns: []ColumnSpec{
			col("Alarm", ColumnTime),
			col("Enroute", ColumnTime),
			col("Arrival", ColumnTime),
			col("Clear", ColumnTime),
		},
	},
	ChildPersonnel: {
		Sheet: SheetIncidentPersonnel, ParentKey: ColumnIncidentID,
		Columns: []ColumnSpec{
			rosterCol(ColumnPersonnelID, RosterPersonnel),
			col("Name", ColumnText),
			col("Role", ColumnText),
			col("Hours", ColumnNumber),
			col("RespondedIn", ColumnText),
			col("Notes", ColumnText),
		},
	},
	ChildApparatus: {
		Sheet: SheetIncidentApparatus, ParentKey: ColumnIncidentID,
		Columns: []ColumnSpec{
			rosterCol(ColumnApparatusID, RosterApparatus),
			col("Unit", ColumnText),
			lookupCol("UnitType", LookupUnitTypes),
			col("Role", ColumnText),
			col("Actions", ColumnText),
			col("Notes", ColumnText),
		},
	},
	ChildAction: {
		Sheet: SheetIncidentActions, ParentKey: ColumnIncidentID,
		Columns: []ColumnSpec{
			lookupCol("Action", LookupActions),
			col("Notes", ColumnText),
		},
	},
}

var rosterSchemas = map[RosterKind]SheetSchema{
	RosterPersonnel: {
		Sheet: SheetPersonnel, Key: ColumnPersonnelID, KeyType: ColumnText,
		Columns: []ColumnSpec{
			col("Name", ColumnText),
			col("FirstName", ColumnText),
			col("LastName", ColumnText),
			col("UnitNumber", ColumnText),
			col("Rank", ColumnText),
			col("Badge", ColumnText),
			col("Phone", ColumnText),
			col("Email", ColumnText),
			col("Address", ColumnText),
			col("City", ColumnText),
			col("State", ColumnText),
			col("PostalCode", ColumnText),
			col("Certifications", ColumnText),
			col("Active", ColumnText),
		},
	},
	RosterApparatus: {
		Sheet: SheetApparatus, Key: ColumnApparatusID, KeyType: ColumnText,
		Columns: []ColumnSpec{
			col("UnitNumber", ColumnText),
			col("CallSign", ColumnText),
			lookupCol("UnitType", LookupUnitTypes),
			col("GPM", ColumnNumber),
			col("TankSize", ColumnNumber),
			col("SeatingCapacity", ColumnInt),
			col("Station", ColumnText),
			col("Active", ColumnText),
			col("Name", ColumnText),
		},
	},
}

var lookupSheets = map[LookupKind]string{
	LookupIncidentTypes: lookupSheetPrefix + "IncidentTypes",
	LookupUnitTypes:     lookupSheetPrefix + "UnitTypes",
	LookupPriorities:    lookupSheetPrefix + "Priorities",
	LookupDispositions:  lookupSheetPrefix + "Dispositions",
	LookupActions:       lookupSheetPrefix + "Actions",
	LookupStates:        lookupSheetPrefix + "States",
}

// IncidentSchema describes the Incidents sheet.
func IncidentSchema() SheetSchema { return incidentSchema }

// ChildSchema describes the sheet holding rows of the given kind.
func ChildSchema(kind ChildKind) (SheetSchema, bool) {
	s, ok := childSchemas[kind]
	return s, ok
}

// RosterSchema describes a roster sheet.
func RosterSchema(kind RosterKind) (SheetSchema, bool) {
	s, ok := rosterSchemas[kind]
	return s, ok
}

// LookupSheet returns the sheet name backing a lookup table.
func LookupSheet(kind LookupKind) (string, bool) {
	s, ok := lookupSheets[kind]
	return s, ok
}

// LookupKindForSheet maps a List_* sheet back to its lookup kind.
func LookupKindForSheet(sheet string) (LookupKind, bool) {
	for kind, name := range lookupSheets {
		if strings.EqualFold(name, sheet) {
			return kind, true
		}
	}
	return "", false
}

// ColumnNames lists the known column names in declaration order, key first.
func (s SheetSchema) ColumnNames() []string {
	out := make([]string, 0, len(s.Columns)+1)
	if s.Key != "" {
		out = append(out, s.Key)
	}
	if s.ParentKey != "" {
		out = append(out, s.ParentKey)
	}
	for _, c := range s.Columns {
		out = append(out, c.Name)
	}
	return out
}

// Column resolves a header (or one of its aliases) to the declared column.
func (s SheetSchema) Column(name string) (ColumnSpec, bool) {
	name = strings.TrimSpace(name)
	for _, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
		for _, alias := range c.Aliases {
			if strings.EqualFold(alias, name) {
				return c, true
			}
		}
	}
	return ColumnSpec{}, false
}

// IsKey reports whether name is the sheet's key or parent key column.
func (s SheetSchema) IsKey(name string) bool {
	name = strings.TrimSpace(name)
	if s.Key != "" && strings.EqualFold(s.Key, name) {
		return true
	}
	if s.ParentKey != "" && strings.EqualFold(s.ParentKey, name) {
		return true
	}
	for _, alias := range s.KeyAlias {
		if strings.EqualFold(alias, name) {
			return true
		}
	}
	return s.ParentKey != "" && strings.EqualFold(legacyIncidentKeyColumn, name)
}

// Normalize renames aliased columns and coerces every known column to its
// declared type. Unknown columns are kept as given.
func (s SheetSchema) Normalize(fields Fields) (Fields, error) {
	out := make(Fields, len(fields))
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := fields[name]
		if s.IsKey(name) {
			return nil, FieldError{Field: name, Value: v.String(), Err: ErrKeyColumn}
		}
		spec, ok := s.Column(name)
		if !ok {
			out[strings.TrimSpace(name)] = v
			continue
		}
		coerced, err := Coerce(v, spec.Type)
		if err != nil {
			return nil, FieldError{Field: spec.Name, Value: v.String(), Err: err}
		}
		out[spec.Name] = coerced
	}
	return out, nil
}

// References returns the coded columns of the sheet.
func (s SheetSchema) References() []ColumnSpec {
	var out []ColumnSpec
	for _, c := range s.Columns {
		if !c.Ref.IsZero() {
			out = append(out, c)
		}
	}
	return out
}
