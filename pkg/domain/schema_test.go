package domain

import (
	"errors"
	"testing"
	"time"
)

func TestIncidentSchemaNormalizeResolvesAliases(t *testing.T) {
	schema := IncidentSchema()
	fields, err := schema.Normalize(Fields{
		"IncidentDate": Text("2024-02-10"),
		"Latitude":     Text("42.35"),
		"CreatedBy":    Text("Lt. Ortiz"),
		"CustomFlag":   Text("x"),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if d, ok := fields.Get("Date").Time(); !ok || !d.Equal(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected Date alias to be coerced, got %v", fields.Get("Date"))
	}
	if f, ok := fields.Get("Latitude").Float(); !ok || f != 42.35 {
		t.Fatalf("expected numeric latitude, got %v", fields.Get("Latitude"))
	}
	if fields.Text("ReportWriter") != "Lt. Ortiz" {
		t.Fatalf("expected CreatedBy alias mapped to ReportWriter")
	}
	if fields.Text("CustomFlag") != "x" {
		t.Fatalf("expected unknown column to be kept")
	}
}

func TestNormalizeRejectsKeysAndBadValues(t *testing.T) {
	schema := IncidentSchema()
	var fe FieldError
	if _, err := schema.Normalize(Fields{"IncidentNumber": Int(4)}); !errors.As(err, &fe) || !errors.Is(err, ErrKeyColumn) {
		t.Fatalf("expected key column error, got %v", err)
	}
	if _, err := schema.Normalize(Fields{"Date": Text("not a date")}); !errors.As(err, &fe) || fe.Field != "Date" {
		t.Fatalf("expected field error for Date, got %v", err)
	}
	child, _ := ChildSchema(ChildPersonnel)
	if _, err := child.Normalize(Fields{"IncidentID": Int(1)}); !errors.Is(err, ErrKeyColumn) {
		t.Fatalf("expected parent key to be rejected, got %v", err)
	}
}

func TestSchemaRegistry(t *testing.T) {
	for _, kind := range ChildKinds() {
		s, ok := ChildSchema(kind)
		if !ok || s.ParentKey != ColumnIncidentID || s.Sheet == "" {
			t.Fatalf("child schema %s incomplete: %+v", kind, s)
		}
		if !kind.Valid() {
			t.Fatalf("expected %s to be valid", kind)
		}
	}
	for _, kind := range RosterKinds() {
		if s, ok := RosterSchema(kind); !ok || s.Key == "" {
			t.Fatalf("roster schema %s incomplete", kind)
		}
	}
	for _, kind := range LookupKinds() {
		sheet, ok := LookupSheet(kind)
		if !ok {
			t.Fatalf("missing sheet for %s", kind)
		}
		back, ok := LookupKindForSheet(sheet)
		if !ok || back != kind {
			t.Fatalf("LookupKindForSheet(%s) = %s", sheet, back)
		}
	}
	names := IncidentSchema().ColumnNames()
	if names[0] != ColumnIncidentID || names[1] != ColumnIncidentDate {
		t.Fatalf("unexpected incident column order %v", names[:2])
	}
	refs := IncidentSchema().References()
	if len(refs) != 4 {
		t.Fatalf("expected four coded incident columns, got %d", len(refs))
	}
}

func TestRosterEntryLabelAndActive(t *testing.T) {
	person := RosterEntry{Kind: RosterPersonnel, ID: "7", Fields: Fields{"FirstName": Text("Ana"), "LastName": Text("Diaz"), "Active": Text("No")}}
	if person.Label() != "Ana Diaz" || person.Active() {
		t.Fatalf("unexpected label/active %q %v", person.Label(), person.Active())
	}
	unit := RosterEntry{Kind: RosterApparatus, ID: "E1", Fields: Fields{"UnitNumber": Text("101"), "CallSign": Text("Engine 1")}}
	if unit.Label() != "Engine 1" || !unit.Active() {
		t.Fatalf("unexpected apparatus label %q", unit.Label())
	}
}
