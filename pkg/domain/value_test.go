package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseValueByColumnType(t *testing.T) {
	cases := []struct {
		raw  string
		typ  ColumnType
		kind ValueKind
		want string
	}{
		{"", ColumnNumber, KindEmpty, ""},
		{"  ", ColumnDate, KindEmpty, ""},
		{"1,250.5", ColumnNumber, KindNumber, "1250.5"},
		{"12", ColumnInt, KindNumber, "12"},
		{"2024-01-05", ColumnDate, KindDate, "2024-01-05"},
		{"1/5/2024", ColumnDate, KindDate, "2024-01-05"},
		{"2024-01-05 13:45:00", ColumnDate, KindDate, "2024-01-05 13:45:00"},
		{"14:30", ColumnTime, KindTime, "14:30"},
		{"2:30 PM", ColumnTime, KindTime, "14:30"},
		{"Yes", ColumnBool, KindBool, "true"},
		{"02139", ColumnText, KindText, "02139"},
	}
	for _, tc := range cases {
		got, err := ParseValue(tc.raw, tc.typ)
		if err != nil {
			t.Fatalf("ParseValue(%q, %s): %v", tc.raw, tc.typ, err)
		}
		if got.Kind() != tc.kind || got.String() != tc.want {
			t.Fatalf("ParseValue(%q, %s) = %s %q, want %s %q", tc.raw, tc.typ, got.Kind(), got.String(), tc.kind, tc.want)
		}
	}
}

func TestParseValueRejectsBadInput(t *testing.T) {
	for _, tc := range []struct {
		raw string
		typ ColumnType
	}{
		{"abc", ColumnNumber},
		{"1.5", ColumnInt},
		{"yesterday", ColumnDate},
		{"25:99", ColumnTime},
		{"maybe", ColumnBool},
	} {
		if _, err := ParseValue(tc.raw, tc.typ); !errors.Is(err, ErrUnparseable) {
			t.Fatalf("ParseValue(%q, %s): expected ErrUnparseable, got %v", tc.raw, tc.typ, err)
		}
	}
}

func TestCoerceAcrossKinds(t *testing.T) {
	v, err := Coerce(Number(2139), ColumnText)
	if err != nil || v.String() != "2139" || v.Kind() != KindText {
		t.Fatalf("number to text: %v %v", v, err)
	}
	v, err = Coerce(Date(time.Date(2024, 3, 1, 8, 15, 0, 0, time.UTC)), ColumnTime)
	if err != nil || v.String() != "08:15" {
		t.Fatalf("date to time: %v %v", v, err)
	}
	if _, err := Coerce(Bool(true), ColumnDate); err == nil {
		t.Fatalf("expected bool to date to fail")
	}
	v, err = Coerce(Number(0), ColumnBool)
	if err != nil || v.String() != "false" {
		t.Fatalf("number to bool: %v %v", v, err)
	}
}

func TestInferColumnType(t *testing.T) {
	cases := []struct {
		samples []string
		want    ColumnType
	}{
		{nil, ColumnText},
		{[]string{"", " "}, ColumnText},
		{[]string{"1", "2.5", ""}, ColumnNumber},
		{[]string{"2024-01-01", "1/31/2024"}, ColumnDate},
		{[]string{"08:00", "17:45"}, ColumnTime},
		{[]string{"yes", "No"}, ColumnBool},
		{[]string{"1", "Engine 1"}, ColumnText},
	}
	for _, tc := range cases {
		if got := InferColumnType(tc.samples); got != tc.want {
			t.Fatalf("InferColumnType(%v) = %s, want %s", tc.samples, got, tc.want)
		}
	}
}

func TestValueJSONPreservesKind(t *testing.T) {
	in := Fields{
		"Date":   DateOf(2024, time.January, 5),
		"Alarm":  ClockTime(9, 5, 0),
		"Loss":   Number(1500.25),
		"Zip":    Text("02139"),
		"Active": Bool(true),
		"Blank":  Empty,
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Fields
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for k, v := range in {
		if !out[k].Equal(v) {
			t.Fatalf("field %s: got %s %q, want %s %q", k, out[k].Kind(), out[k], v.Kind(), v)
		}
	}
}

func TestFieldsFromAny(t *testing.T) {
	fields, err := FieldsFromAny(map[string]any{"City": "Springfield", "Hours": 2.5, "Active": true, "Notes": nil})
	if err != nil {
		t.Fatalf("FieldsFromAny: %v", err)
	}
	if fields["City"].Kind() != KindText || fields["Hours"].Kind() != KindNumber || fields["Active"].Kind() != KindBool || !fields["Notes"].IsEmpty() {
		t.Fatalf("unexpected kinds: %+v", fields.Plain())
	}
	if _, err := FieldsFromAny(map[string]any{"Bad": []string{"x"}}); err == nil {
		t.Fatalf("expected error for unsupported value")
	}
}
