package core

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"incidentdb/pkg/domain"
)

// Rosters and lookups ---------------------------------------------------------

// UpsertRosterEntry creates or replaces a roster entry. The key may be given
// as entry.ID or as the roster's key column.
func (s *Service) UpsertRosterEntry(ctx context.Context, entry RosterEntry) (RosterEntry, Result, error) {
	var saved RosterEntry
	res, err := s.run(ctx, "upsert_roster_entry", entry.Kind.Entity(), func(ctx context.Context) (string, Result, error) {
		schema, ok := domain.RosterSchema(entry.Kind)
		if !ok {
			return "", Result{}, domain.FieldError{Field: "kind", Value: string(entry.Kind), Err: fmt.Errorf("unknown roster")}
		}
		keyValue, rest := splitKey(entry.Fields, schema.Key)
		if strings.TrimSpace(entry.ID) == "" {
			entry.ID = strings.TrimSpace(keyValue.String())
		}
		fields, err := schema.Normalize(rest)
		if err != nil {
			return entry.ID, Result{}, err
		}
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			saved, err = tx.UpsertRosterEntry(RosterEntry{Kind: entry.Kind, ID: entry.ID, Fields: compact(fields)})
			return err
		})
		return entry.ID, res, err
	})
	return saved, res, err
}

// DeleteRosterEntry removes a roster entry. Entries still referenced by an
// incident row are kept and InvalidReferenceError is returned.
func (s *Service) DeleteRosterEntry(ctx context.Context, kind RosterKind, id string) (Result, error) {
	return s.run(ctx, "delete_roster_entry", kind.Entity(), func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return tx.DeleteRosterEntry(kind, id)
		})
		return id, res, err
	})
}

// ListRoster returns roster entries ordered by key.
func (s *Service) ListRoster(kind RosterKind) []RosterEntry { return s.store.ListRoster(kind) }

// RosterOptions returns the pick-list labels of a roster: active entries
// first choice, every entry when none is flagged active. Labels are unique
// and sorted.
func (s *Service) RosterOptions(kind RosterKind) []string {
	entries := s.store.ListRoster(kind)
	var active []RosterEntry
	for _, e := range entries {
		if e.Active() {
			active = append(active, e)
		}
	}
	if len(active) == 0 {
		active = entries
	}
	seen := make(map[string]struct{}, len(active))
	out := make([]string, 0, len(active))
	for _, e := range active {
		label := strings.TrimSpace(e.Label())
		if label == "" {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Lookups returns the entries of a lookup table.
func (s *Service) Lookups(kind LookupKind) []LookupEntry { return s.store.Lookup(kind) }

// SetLookup replaces a lookup table.
func (s *Service) SetLookup(ctx context.Context, kind LookupKind, entries []LookupEntry) (Result, error) {
	return s.run(ctx, "set_lookup", domain.EntityLookup, func(ctx context.Context) (string, Result, error) {
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return tx.SetLookup(kind, entries)
		})
		return string(kind), res, err
	})
}

// Bulk assignment -------------------------------------------------------------

// PersonnelAssignment adds named members to an incident.
type PersonnelAssignment struct {
	IncidentID  int      `json:"incident_id"`
	Names       []string `json:"names"`
	Role        string   `json:"role,omitempty"`
	Hours       *float64 `json:"hours,omitempty"`
	RespondedIn string   `json:"responded_in,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// ApparatusAssignment adds units to an incident.
type ApparatusAssignment struct {
	IncidentID int      `json:"incident_id"`
	Units      []string `json:"units"`
	UnitType   string   `json:"unit_type,omitempty"`
	Role       string   `json:"role,omitempty"`
	Actions    string   `json:"actions,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// normName lowercases and collapses whitespace.
func normName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// personnelVariants lists the labels a member may be picked by.
func personnelVariants(e RosterEntry) []string {
	first := normName(e.Fields.Text("FirstName"))
	last := normName(e.Fields.Text("LastName"))
	rank := normName(e.Fields.Text("Rank"))
	candidates := []string{
		normName(e.Fields.Text("Name")),
		normName(e.Label()),
		strings.TrimSpace(first + " " + last),
		strings.Trim(last+", "+first, ", "),
		strings.TrimSpace(rank + " " + first + " " + last),
		strings.TrimSpace(first + " " + last + " " + rank),
		strings.TrimSpace(rank + " " + last),
		normName(e.ID),
		first,
		last,
	}
	out := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		c = normName(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// apparatusVariants lists the labels a unit may be picked by, call sign first.
func apparatusVariants(e RosterEntry) []string {
	var out []string
	for _, column := range []string{"CallSign", "UnitNumber", "Name"} {
		if v := normName(e.Fields.Text(column)); v != "" {
			out = append(out, v)
		}
	}
	return append(out, normName(e.ID))
}

// rosterIndex maps normalized labels to entries. Earlier variants win, so a
// full name beats a bare first or last name shared by two members.
func rosterIndex(entries []RosterEntry, variants func(RosterEntry) []string) map[string]RosterEntry {
	idx := make(map[string]RosterEntry)
	rank := make(map[string]int)
	for _, e := range entries {
		for pos, label := range variants(e) {
			if prev, ok := rank[label]; ok && prev <= pos {
				continue
			}
			idx[label] = e
			rank[label] = pos
		}
	}
	return idx
}

func rowSignature(fields Fields, columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = normName(fields.Text(c))
	}
	return strings.Join(parts, "\x1f")
}

// addAssignments creates rows in one transaction, skipping any row whose
// signature matches an existing row of the incident or an earlier new row.
func (s *Service) addAssignments(ctx context.Context, op string, kind ChildKind, incidentID int, signature []string, build func(view domain.TransactionView) ([]Fields, error)) ([]ChildRecord, Result, error) {
	var created []ChildRecord
	res, err := s.run(ctx, op, kind.Entity(), func(ctx context.Context) (string, Result, error) {
		schema, _ := domain.ChildSchema(kind)
		res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			created = nil
			view := tx.Snapshot()
			if _, ok := view.FindIncident(incidentID); !ok {
				return domain.NotFoundError{Entity: domain.EntityIncident, ID: strconv.Itoa(incidentID)}
			}
			rows, err := build(view)
			if err != nil {
				return err
			}
			seen := make(map[string]struct{})
			for _, existing := range view.ListChildren(kind, incidentID) {
				seen[rowSignature(existing.Fields, signature)] = struct{}{}
			}
			for _, fields := range rows {
				normalized, err := schema.Normalize(fields)
				if err != nil {
					return err
				}
				normalized = compact(normalized)
				sig := rowSignature(normalized, signature)
				if _, dup := seen[sig]; dup {
					continue
				}
				seen[sig] = struct{}{}
				row, err := tx.CreateChild(ChildRecord{Kind: kind, IncidentID: incidentID, Fields: normalized})
				if err != nil {
					return err
				}
				created = append(created, row)
			}
			return nil
		})
		return strconv.Itoa(incidentID), res, err
	})
	return created, res, err
}

// AddPersonnel adds members to an incident, resolving each name against the
// personnel roster to fill PersonnelID. Unmatched names are added by name
// only. Rows duplicating an existing assignment are skipped.
func (s *Service) AddPersonnel(ctx context.Context, a PersonnelAssignment) ([]ChildRecord, Result, error) {
	signature := []string{domain.ColumnPersonnelID, "Name", "Role", "Hours", "RespondedIn"}
	return s.addAssignments(ctx, "add_personnel", domain.ChildPersonnel, a.IncidentID, signature, func(view domain.TransactionView) ([]Fields, error) {
		idx := rosterIndex(view.ListRoster(domain.RosterPersonnel), personnelVariants)
		rows := make([]Fields, 0, len(a.Names))
		for _, pick := range a.Names {
			pick = strings.TrimSpace(pick)
			if pick == "" {
				continue
			}
			fields := Fields{"Name": domain.Text(pick)}
			if e, ok := idx[normName(pick)]; ok {
				fields[domain.ColumnPersonnelID] = domain.Text(e.ID)
				fields["Name"] = domain.Text(e.Label())
			}
			fields["Role"] = domain.Text(a.Role)
			if a.Hours != nil {
				fields["Hours"] = domain.Number(*a.Hours)
			}
			fields["RespondedIn"] = domain.Text(a.RespondedIn)
			fields["Notes"] = domain.Text(a.Notes)
			rows = append(rows, fields)
		}
		return rows, nil
	})
}

// AddApparatus adds units to an incident, resolving each against the
// apparatus roster by call sign, unit number, name, or id. The unit type
// falls back to the roster's when none is given.
func (s *Service) AddApparatus(ctx context.Context, a ApparatusAssignment) ([]ChildRecord, Result, error) {
	signature := []string{domain.ColumnApparatusID, "Unit", "Role"}
	return s.addAssignments(ctx, "add_apparatus", domain.ChildApparatus, a.IncidentID, signature, func(view domain.TransactionView) ([]Fields, error) {
		idx := rosterIndex(view.ListRoster(domain.RosterApparatus), apparatusVariants)
		rows := make([]Fields, 0, len(a.Units))
		for _, pick := range a.Units {
			pick = strings.TrimSpace(pick)
			if pick == "" {
				continue
			}
			fields := Fields{"Unit": domain.Text(pick), "UnitType": domain.Text(a.UnitType)}
			if e, ok := idx[normName(pick)]; ok {
				fields[domain.ColumnApparatusID] = domain.Text(e.ID)
				fields["Unit"] = domain.Text(e.Label())
				if a.UnitType == "" {
					fields["UnitType"] = domain.Text(e.Fields.Text("UnitType"))
				}
			}
			fields["Role"] = domain.Text(a.Role)
			fields["Actions"] = domain.Text(a.Actions)
			fields["Notes"] = domain.Text(a.Notes)
			rows = append(rows, fields)
		}
		return rows, nil
	})
}
