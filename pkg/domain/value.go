package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ValueKind identifies the dynamic type held by a Value.
type ValueKind string

// Supported cell value kinds.
const (
	KindEmpty  ValueKind = ""
	KindText   ValueKind = "text"
	KindNumber ValueKind = "number"
	KindDate   ValueKind = "date"
	KindTime   ValueKind = "time"
	KindBool   ValueKind = "bool"
)

// Value is a single typed spreadsheet cell.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	at   time.Time
	flag bool
}

// Empty is the blank cell.
var Empty = Value{}

// Text wraps a string. Blank strings collapse to Empty.
func Text(s string) Value {
	if strings.TrimSpace(s) == "" {
		return Empty
	}
	return Value{kind: KindText, str: s}
}

// Number wraps a float.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int wraps an integer as a number.
func Int(i int) Value { return Number(float64(i)) }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Date wraps a calendar date, optionally carrying a clock time.
func Date(t time.Time) Value {
	if t.IsZero() {
		return Empty
	}
	return Value{kind: KindDate, at: t.UTC()}
}

// DateOf builds a date value from its calendar parts.
func DateOf(year int, month time.Month, day int) Value {
	return Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// ClockTime wraps a time of day.
func ClockTime(hour, minute, second int) Value {
	return Value{kind: KindTime, at: time.Date(0, 1, 1, hour, minute, second, 0, time.UTC)}
}

// Kind reports the dynamic type.
func (v Value) Kind() ValueKind { return v.kind }

// IsEmpty reports whether the cell is blank.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// Float returns the numeric content.
func (v Value) Float() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Int returns the numeric content when it is integral.
func (v Value) Int() (int, bool) {
	if v.kind != KindNumber || v.num != math.Trunc(v.num) {
		return 0, false
	}
	return int(v.num), true
}

// Time returns the date or clock content.
func (v Value) Time() (time.Time, bool) {
	if v.kind != KindDate && v.kind != KindTime {
		return time.Time{}, false
	}
	return v.at, true
}

// Bool returns the boolean content.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.flag, true
}

func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindDate:
		if hasClock(v.at) {
			return v.at.Format(dateTimeLayout)
		}
		return v.at.Format(dateLayout)
	case KindTime:
		if v.at.Second() != 0 {
			return v.at.Format("15:04:05")
		}
		return v.at.Format("15:04")
	case KindBool:
		if v.flag {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// Interface converts the value to a plain JSON-friendly scalar.
func (v Value) Interface() any {
	switch v.kind {
	case KindEmpty:
		return nil
	case KindNumber:
		return v.num
	case KindBool:
		return v.flag
	default:
		return v.String()
	}
}

// Equal compares kind and content.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindDate, KindTime:
		return v.at.Equal(other.at)
	case KindNumber:
		return v.num == other.num
	default:
		return v.String() == other.String()
	}
}

type valuePayload struct {
	Kind  ValueKind `json:"kind"`
	Value string    `json:"value"`
}

// MarshalJSON encodes the value with its kind so it can be restored exactly.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindEmpty {
		return []byte("null"), nil
	}
	return json.Marshal(valuePayload{Kind: v.kind, Value: v.String()})
}

// UnmarshalJSON restores a value written by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Empty
		return nil
	}
	var p valuePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	parsed, err := ParseValue(p.Value, columnTypeForKind(p.Kind))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ColumnType is the declared or inferred type of a sheet column.
type ColumnType string

// Column types understood by the loader and by field coercion.
const (
	ColumnText   ColumnType = "text"
	ColumnInt    ColumnType = "int"
	ColumnNumber ColumnType = "number"
	ColumnDate   ColumnType = "date"
	ColumnTime   ColumnType = "time"
	ColumnBool   ColumnType = "bool"
)

func columnTypeForKind(k ValueKind) ColumnType {
	switch k {
	case KindNumber:
		return ColumnNumber
	case KindDate:
		return ColumnDate
	case KindTime:
		return ColumnTime
	case KindBool:
		return ColumnBool
	default:
		return ColumnText
	}
}

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

var dateLayouts = []string{
	dateLayout,
	dateTimeLayout,
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"01-02-06",
	"1/2/2006 15:04",
	"1/2/06 15:04",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
}

var clockLayouts = []string{"15:04", "15:04:05", "3:04 PM", "3:04PM", "3:04 pm", "3:04pm"}

// ErrUnparseable is wrapped by coercion failures.
var ErrUnparseable = errors.New("unparseable value")

// ParseDate parses the date layouts commonly found in incident workbooks.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrUnparseable, raw)
}

// ParseClock parses an HH:MM style time of day.
func ParseClock(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return time.Date(0, 1, 1, t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a time of day", ErrUnparseable, raw)
}

func parseNumber(raw string) (float64, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrUnparseable, raw)
	}
	return f, nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "y", "1", "active":
		return true, nil
	case "false", "no", "n", "0", "inactive":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", ErrUnparseable, raw)
}

// ParseValue converts raw cell text into a value of the given column type.
func ParseValue(raw string, t ColumnType) (Value, error) {
	if strings.TrimSpace(raw) == "" {
		return Empty, nil
	}
	return Coerce(Text(raw), t)
}

// Coerce converts v to the column type, returning ErrUnparseable when it cannot.
//
//nolint:gocyclo // one switch arm per column type keeps conversions together.
func Coerce(v Value, t ColumnType) (Value, error) {
	if v.IsEmpty() {
		return Empty, nil
	}
	switch t {
	case ColumnText, "":
		if v.kind == KindText {
			return v, nil
		}
		return Text(v.String()), nil
	case ColumnNumber, ColumnInt:
		var f float64
		switch v.kind {
		case KindNumber:
			f = v.num
		case KindText:
			parsed, err := parseNumber(v.str)
			if err != nil {
				return Empty, err
			}
			f = parsed
		default:
			return Empty, fmt.Errorf("%w: %s value for numeric column", ErrUnparseable, v.kind)
		}
		if t == ColumnInt && f != math.Trunc(f) {
			return Empty, fmt.Errorf("%w: %v is not a whole number", ErrUnparseable, f)
		}
		return Number(f), nil
	case ColumnDate:
		switch v.kind {
		case KindDate:
			return v, nil
		case KindText:
			d, err := ParseDate(v.str)
			if err != nil {
				return Empty, err
			}
			return Date(d), nil
		}
		return Empty, fmt.Errorf("%w: %s value for date column", ErrUnparseable, v.kind)
	case ColumnTime:
		switch v.kind {
		case KindTime:
			return v, nil
		case KindDate:
			return ClockTime(v.at.Hour(), v.at.Minute(), v.at.Second()), nil
		case KindText:
			c, err := ParseClock(v.str)
			if err != nil {
				return Empty, err
			}
			return ClockTime(c.Hour(), c.Minute(), c.Second()), nil
		}
		return Empty, fmt.Errorf("%w: %s value for time column", ErrUnparseable, v.kind)
	case ColumnBool:
		switch v.kind {
		case KindBool:
			return v, nil
		case KindNumber:
			return Bool(v.num != 0), nil
		case KindText:
			b, err := parseBool(v.str)
			if err != nil {
				return Empty, err
			}
			return Bool(b), nil
		}
		return Empty, fmt.Errorf("%w: %s value for boolean column", ErrUnparseable, v.kind)
	}
	return Empty, fmt.Errorf("unknown column type %q", t)
}

// InferColumnType guesses a column type from sample cell text. Blank cells
// are ignored; a column with no data is text.
func InferColumnType(samples []string) ColumnType {
	candidates := []struct {
		t  ColumnType
		ok func(string) bool
	}{
		{ColumnNumber, func(s string) bool { _, err := parseNumber(s); return err == nil }},
		{ColumnDate, func(s string) bool { _, err := ParseDate(s); return err == nil }},
		{ColumnTime, func(s string) bool { _, err := ParseClock(s); return err == nil }},
		{ColumnBool, func(s string) bool {
			switch strings.ToLower(strings.TrimSpace(s)) {
			case "true", "false", "yes", "no":
				return true
			}
			return false
		}},
	}
	seen := 0
	matches := make([]bool, len(candidates))
	for i := range matches {
		matches[i] = true
	}
	for _, s := range samples {
		if strings.TrimSpace(s) == "" {
			continue
		}
		seen++
		for i, c := range candidates {
			if matches[i] && !c.ok(s) {
				matches[i] = false
			}
		}
	}
	if seen == 0 {
		return ColumnText
	}
	for i, c := range candidates {
		if matches[i] {
			return c.t
		}
	}
	return ColumnText
}

func hasClock(t time.Time) bool {
	return t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0
}

// Fields holds the non-key cells of a row keyed by column name.
type Fields map[string]Value

// Clone returns a copy of the map.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Get returns the value stored under column, or Empty.
func (f Fields) Get(column string) Value {
	if f == nil {
		return Empty
	}
	return f[column]
}

// Text returns the string form of a column.
func (f Fields) Text(column string) string {
	return strings.TrimSpace(f.Get(column).String())
}

// Plain flattens the fields into JSON-friendly scalars.
func (f Fields) Plain() map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = v.Interface()
	}
	return out
}

// FieldsFromAny converts decoded JSON into untyped fields. Strings stay text
// so the schema can coerce them to the declared column type.
func FieldsFromAny(in map[string]any) (Fields, error) {
	out := make(Fields, len(in))
	for k, raw := range in {
		switch v := raw.(type) {
		case nil:
			out[k] = Empty
		case string:
			out[k] = Text(v)
		case float64:
			out[k] = Number(v)
		case int:
			out[k] = Int(v)
		case bool:
			out[k] = Bool(v)
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, FieldError{Field: k, Value: v.String(), Err: err}
			}
			out[k] = Number(f)
		default:
			return nil, FieldError{Field: k, Value: fmt.Sprint(raw), Err: fmt.Errorf("%w: unsupported %T", ErrUnparseable, raw)}
		}
	}
	return out, nil
}
