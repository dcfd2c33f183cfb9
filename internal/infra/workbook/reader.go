// Package workbook reads and writes the incident workbook with excelize. It
// translates between sheets and the memory.Snapshot the stores operate on.
package workbook

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"incidentdb/internal/infra/persistence/memory"
	"incidentdb/pkg/domain"
)

// Rule names used for load warnings.
const (
	warnOrphanRow     = "orphan_child_row"
	warnUnknownCode   = "unknown_code"
	warnBadCell       = "unparseable_cell"
	warnDuplicateCode = "duplicate_lookup_code"
	warnHeader        = "duplicate_header"
)

var errNoKeyColumn = errors.New("key column missing from header")

// Options tune how a workbook is read.
type Options struct {
	// RequiredSheets must be present in addition to Incidents.
	RequiredSheets []string
}

// Loaded is the outcome of reading a workbook.
type Loaded struct {
	Snapshot memory.Snapshot
	// Warnings lists data problems that were kept rather than rejected.
	Warnings domain.Result
	// Sheets is the sheet list as found in the file.
	Sheets []string
}

// Load reads the workbook at path.
func Load(path string, opts Options) (Loaded, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return Loaded{}, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f, opts)
}

// Read parses a workbook stream into a snapshot.
func Read(r io.Reader, opts Options) (Loaded, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Loaded{}, fmt.Errorf("read workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	rd := &reader{
		file:    f,
		present: make(map[string]string),
		snap: memory.Snapshot{
			Incidents: make(map[int]domain.Incident),
			Children:  make(map[domain.ChildKind]map[int]domain.ChildRecord),
			Rosters:   make(map[domain.RosterKind]map[string]domain.RosterEntry),
			Lookups:   make(map[domain.LookupKind][]domain.LookupEntry),
			Columns:   make(map[string][]string),
		},
	}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		rd.date1904 = *props.Date1904
	}
	sheets := f.GetSheetList()
	for _, name := range sheets {
		rd.present[strings.ToLower(name)] = name
	}
	required := append([]string{domain.SheetIncidents}, opts.RequiredSheets...)
	for _, name := range required {
		if _, ok := rd.present[strings.ToLower(strings.TrimSpace(name))]; !ok {
			return Loaded{}, domain.MissingSheetError{Sheet: name}
		}
	}
	if err := rd.readAll(sheets); err != nil {
		return Loaded{}, err
	}
	rd.checkOrphans()
	rd.checkCodes()
	return Loaded{Snapshot: rd.snap, Warnings: rd.warnings, Sheets: sheets}, nil
}

type reader struct {
	file     *excelize.File
	date1904 bool
	present  map[string]string
	snap     memory.Snapshot
	warnings domain.Result
}

func (rd *reader) warn(rule string, entity domain.EntityType, id, format string, args ...any) {
	rd.warnings.Violations = append(rd.warnings.Violations, domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityWarn,
		Message:  fmt.Sprintf(format, args...),
		Entity:   entity,
		EntityID: id,
	})
}

func (rd *reader) readAll(sheets []string) error {
	if err := rd.readIncidents(); err != nil {
		return err
	}
	for _, kind := range domain.ChildKinds() {
		if err := rd.readChildren(kind); err != nil {
			return err
		}
	}
	for _, kind := range domain.RosterKinds() {
		if err := rd.readRoster(kind); err != nil {
			return err
		}
	}
	for _, kind := range domain.LookupKinds() {
		if err := rd.readLookup(kind); err != nil {
			return err
		}
	}
	known := map[string]bool{strings.ToLower(domain.SheetIncidents): true}
	for _, kind := range domain.ChildKinds() {
		s, _ := domain.ChildSchema(kind)
		known[strings.ToLower(s.Sheet)] = true
	}
	for _, kind := range domain.RosterKinds() {
		s, _ := domain.RosterSchema(kind)
		known[strings.ToLower(s.Sheet)] = true
	}
	for _, kind := range domain.LookupKinds() {
		s, _ := domain.LookupSheet(kind)
		known[strings.ToLower(s)] = true
	}
	for _, name := range sheets {
		if known[strings.ToLower(name)] {
			continue
		}
		rows, err := rd.file.GetRows(name)
		if err != nil {
			return fmt.Errorf("read sheet %s: %w", name, err)
		}
		rd.snap.Extra = append(rd.snap.Extra, memory.RawSheet{Name: name, Rows: rows})
	}
	return nil
}

// table is a sheet read both as displayed text and as raw cell values.
type table struct {
	sheet     string
	actual    string
	header    []string
	formatted [][]string
	raw       [][]string
}

func (t table) cell(rows [][]string, row, col int) string {
	return strings.TrimSpace(t.verbatim(rows, row, col))
}

// verbatim returns the cell as stored, surrounding spaces included.
func (t table) verbatim(rows [][]string, row, col int) string {
	if row >= len(rows) || col >= len(rows[row]) {
		return ""
	}
	return rows[row][col]
}

func (t table) blank(row int) bool {
	for col := range t.header {
		if t.cell(t.formatted, row, col) != "" {
			return false
		}
	}
	return true
}

// open returns the sheet's table, or false when the workbook lacks it.
func (rd *reader) open(sheet string) (table, bool, error) {
	actual, ok := rd.present[strings.ToLower(sheet)]
	if !ok {
		return table{}, false, nil
	}
	formatted, err := rd.file.GetRows(actual)
	if err != nil {
		return table{}, false, fmt.Errorf("read sheet %s: %w", actual, err)
	}
	raw, err := rd.file.GetRows(actual, excelize.Options{RawCellValue: true})
	if err != nil {
		return table{}, false, fmt.Errorf("read sheet %s: %w", actual, err)
	}
	t := table{sheet: sheet, actual: actual}
	if len(formatted) > 0 {
		t.header = make([]string, len(formatted[0]))
		for i, h := range formatted[0] {
			t.header[i] = strings.TrimSpace(h)
		}
		t.formatted = formatted[1:]
		if len(raw) > 0 {
			t.raw = raw[1:]
		}
	}
	return t, true, nil
}

// layout maps header positions to canonical column names and types.
type layout struct {
	keyCol  int
	names   []string
	types   []domain.ColumnType
	known   []bool
	columns []string
}

func (rd *reader) layoutFor(t table, schema domain.SheetSchema, keyName string) layout {
	l := layout{keyCol: -1, names: make([]string, len(t.header)), types: make([]domain.ColumnType, len(t.header)), known: make([]bool, len(t.header))}
	seen := map[string]bool{}
	for i, h := range t.header {
		if h == "" {
			continue
		}
		name := h
		switch {
		case keyName != "" && schema.IsKey(h):
			name = keyName
			if l.keyCol == -1 {
				l.keyCol = i
			}
		default:
			if spec, ok := schema.Column(h); ok {
				name = spec.Name
				l.types[i] = spec.Type
				l.known[i] = true
			} else {
				samples := make([]string, 0, len(t.formatted))
				for r := range t.formatted {
					samples = append(samples, t.cell(t.formatted, r, i))
				}
				l.types[i] = domain.InferColumnType(samples)
			}
		}
		if seen[strings.ToLower(name)] {
			rd.warn(warnHeader, "", "", "%s: column %q appears more than once; later values win", t.sheet, name)
			l.names[i] = name
			continue
		}
		seen[strings.ToLower(name)] = true
		l.names[i] = name
		l.columns = append(l.columns, name)
	}
	if keyName != "" && l.keyCol == -1 {
		l.columns = append([]string{keyName}, l.columns...)
	}
	return l
}

// inferType picks a type for a column the schema does not declare. A cell
// stored as a string never makes the column numeric or boolean, so codes such
// as "007" keep their leading zeros. Text dates and times still count.
func (rd *reader) inferType(t table, col int) domain.ColumnType {
	samples := make([]string, 0, len(t.formatted))
	for r := range t.formatted {
		text := t.cell(t.formatted, r, col)
		if text == "" {
			continue
		}
		samples = append(samples, text)
		if !rd.storedAsString(t, r, col) {
			continue
		}
		switch domain.InferColumnType([]string{text}) {
		case domain.ColumnNumber, domain.ColumnBool:
			return domain.ColumnText
		}
	}
	return domain.InferColumnType(samples)
}

func (rd *reader) storedAsString(t table, row, col int) bool {
	ref, err := excelize.CoordinatesToCellName(col+1, row+2)
	if err != nil {
		return true
	}
	ct, err := rd.file.GetCellType(t.actual, ref)
	if err != nil {
		return true
	}
	switch ct {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return true
	}
	return false
}

// value converts the cell at (row, col) to the column type. Declared numeric,
// date, and time columns prefer the raw cell value so serial dates and
// formatted numbers are read exactly.
func (rd *reader) value(t table, row, col int, ct domain.ColumnType) (domain.Value, error) {
	text := t.cell(t.formatted, row, col)
	raw := t.cell(t.raw, row, col)
	if text == "" && raw == "" {
		return domain.Empty, nil
	}
	switch ct {
	case domain.ColumnDate, domain.ColumnTime:
		if serial, err := strconv.ParseFloat(raw, 64); err == nil {
			return rd.fromSerial(serial, ct)
		}
	case domain.ColumnNumber, domain.ColumnInt:
		if raw != "" {
			if v, err := domain.ParseValue(raw, ct); err == nil {
				return v, nil
			}
		}
	case domain.ColumnText:
		return domain.Text(t.verbatim(t.formatted, row, col)), nil
	}
	return domain.ParseValue(text, ct)
}

func (rd *reader) fromSerial(serial float64, ct domain.ColumnType) (domain.Value, error) {
	if ct == domain.ColumnTime && serial >= 0 && serial < 1 {
		secs := int(math.Round(serial * 86400))
		return domain.ClockTime(secs/3600%24, secs/60%60, secs%60), nil
	}
	t, err := excelize.ExcelDateToTime(serial, rd.date1904)
	if err != nil {
		return domain.Empty, fmt.Errorf("%w: serial %v", domain.ErrUnparseable, serial)
	}
	t = t.Round(time.Second)
	if ct == domain.ColumnTime {
		return domain.ClockTime(t.Hour(), t.Minute(), t.Second()), nil
	}
	return domain.Date(t), nil
}

// fields reads every non-key cell of a row. Cells that cannot be converted
// are kept as text and reported.
func (rd *reader) fields(t table, l layout, row int, entity domain.EntityType, id string) domain.Fields {
	out := domain.Fields{}
	for col, name := range l.names {
		if name == "" || col == l.keyCol {
			continue
		}
		v, err := rd.value(t, row, col, l.types[col])
		if err != nil {
			text := t.cell(t.formatted, row, col)
			rd.warn(warnBadCell, entity, id, "%s row %d column %s: %v", t.sheet, row+2, name, err)
			v = domain.Text(text)
		}
		if !v.IsEmpty() {
			out[name] = v
		}
	}
	return out
}

func (rd *reader) intKey(t table, l layout, row int, column string) (int, error) {
	if l.keyCol == -1 {
		return 0, domain.MalformedRowError{Sheet: t.sheet, Row: 1, Column: column, Err: errNoKeyColumn}
	}
	raw := t.cell(t.raw, row, l.keyCol)
	if raw == "" {
		raw = t.cell(t.formatted, row, l.keyCol)
	}
	v, err := domain.ParseValue(raw, domain.ColumnInt)
	if err == nil && v.IsEmpty() {
		err = fmt.Errorf("%w: empty key", domain.ErrUnparseable)
	}
	id, _ := v.Int()
	if err == nil && id <= 0 {
		err = fmt.Errorf("%w: key must be positive", domain.ErrUnparseable)
	}
	if err != nil {
		return 0, domain.MalformedRowError{Sheet: t.sheet, Row: row + 2, Column: column, Value: raw, Err: err}
	}
	return id, nil
}

func (rd *reader) readIncidents() error {
	schema := domain.IncidentSchema()
	t, _, err := rd.open(schema.Sheet)
	if err != nil {
		return err
	}
	l := rd.layoutFor(t, schema, schema.Key)
	rd.snap.Columns[schema.Sheet] = l.columns
	for row := range t.formatted {
		if t.blank(row) {
			continue
		}
		id, err := rd.intKey(t, l, row, schema.Key)
		if err != nil {
			return err
		}
		if _, dup := rd.snap.Incidents[id]; dup {
			return domain.DuplicateKeyError{Entity: domain.EntityIncident, Key: strconv.Itoa(id)}
		}
		rd.snap.Incidents[id] = domain.Incident{ID: id, Fields: rd.fields(t, l, row, domain.EntityIncident, strconv.Itoa(id))}
	}
	return nil
}

func (rd *reader) readChildren(kind domain.ChildKind) error {
	schema, _ := domain.ChildSchema(kind)
	rows := make(map[int]domain.ChildRecord)
	rd.snap.Children[kind] = rows
	t, ok, err := rd.open(schema.Sheet)
	if err != nil {
		return err
	}
	if !ok {
		rd.snap.Columns[schema.Sheet] = schema.ColumnNames()
		return nil
	}
	l := rd.layoutFor(t, schema, schema.ParentKey)
	rd.snap.Columns[schema.Sheet] = l.columns
	next := 1
	for row := range t.formatted {
		if t.blank(row) {
			continue
		}
		parent, err := rd.intKey(t, l, row, schema.ParentKey)
		if err != nil {
			return err
		}
		rows[next] = domain.ChildRecord{
			Kind:       kind,
			RowID:      next,
			IncidentID: parent,
			Fields:     rd.fields(t, l, row, kind.Entity(), strconv.Itoa(next)),
		}
		next++
	}
	return nil
}

func (rd *reader) readRoster(kind domain.RosterKind) error {
	schema, _ := domain.RosterSchema(kind)
	entries := make(map[string]domain.RosterEntry)
	rd.snap.Rosters[kind] = entries
	t, ok, err := rd.open(schema.Sheet)
	if err != nil {
		return err
	}
	if !ok {
		rd.snap.Columns[schema.Sheet] = schema.ColumnNames()
		return nil
	}
	l := rd.layoutFor(t, schema, schema.Key)
	rd.snap.Columns[schema.Sheet] = l.columns
	for row := range t.formatted {
		if t.blank(row) {
			continue
		}
		if l.keyCol == -1 {
			return domain.MalformedRowError{Sheet: t.sheet, Row: 1, Column: schema.Key, Err: errNoKeyColumn}
		}
		id := t.cell(t.formatted, row, l.keyCol)
		if id == "" {
			return domain.MalformedRowError{Sheet: t.sheet, Row: row + 2, Column: schema.Key, Err: fmt.Errorf("%w: empty key", domain.ErrUnparseable)}
		}
		if _, dup := entries[id]; dup {
			return domain.DuplicateKeyError{Entity: kind.Entity(), Key: id}
		}
		entries[id] = domain.RosterEntry{Kind: kind, ID: id, Fields: rd.fields(t, l, row, kind.Entity(), id)}
	}
	return nil
}

func (rd *reader) readLookup(kind domain.LookupKind) error {
	sheet, _ := domain.LookupSheet(kind)
	t, ok, err := rd.open(sheet)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if len(t.header) > 0 {
		rd.snap.Columns[sheet] = append([]string(nil), t.header...)
	}
	seen := map[string]bool{}
	var entries []domain.LookupEntry
	for row := range t.formatted {
		code := t.cell(t.formatted, row, 0)
		if code == "" {
			continue
		}
		if seen[strings.ToLower(code)] {
			rd.warn(warnDuplicateCode, domain.EntityLookup, string(kind), "%s: code %q listed more than once", sheet, code)
			continue
		}
		seen[strings.ToLower(code)] = true
		label := t.cell(t.formatted, row, 1)
		if label == "" {
			label = code
		}
		entry := domain.LookupEntry{Code: code, Label: label}
		for col := 2; col < len(t.header); col++ {
			name, value := t.header[col], t.cell(t.formatted, row, col)
			if name == "" || value == "" {
				continue
			}
			if entry.Extra == nil {
				entry.Extra = map[string]string{}
			}
			entry.Extra[name] = value
		}
		entries = append(entries, entry)
	}
	rd.snap.Lookups[kind] = entries
	return nil
}

func (rd *reader) checkOrphans() {
	for _, kind := range domain.ChildKinds() {
		for rowID, row := range rd.snap.Children[kind] {
			if _, ok := rd.snap.Incidents[row.IncidentID]; !ok {
				rd.warn(warnOrphanRow, kind.Entity(), strconv.Itoa(rowID), "%s row references missing incident %d", kind, row.IncidentID)
			}
		}
	}
}

func (rd *reader) checkCodes() {
	check := func(entity domain.EntityType, id string, schema domain.SheetSchema, fields domain.Fields) {
		for _, spec := range schema.References() {
			value := fields.Text(spec.Name)
			if value == "" {
				continue
			}
			if spec.Ref.Lookup != "" {
				entries := rd.snap.Lookups[spec.Ref.Lookup]
				if len(entries) > 0 && !hasCode(entries, value) {
					rd.warn(warnUnknownCode, entity, id, "%s %q is not in %s", spec.Name, value, spec.Ref.Lookup)
				}
				continue
			}
			roster := rd.snap.Rosters[spec.Ref.Roster]
			if _, ok := roster[value]; len(roster) > 0 && !ok {
				rd.warn(warnUnknownCode, entity, id, "%s %q is not in the %s roster", spec.Name, value, spec.Ref.Roster)
			}
		}
	}
	for id, inc := range rd.snap.Incidents {
		check(domain.EntityIncident, strconv.Itoa(id), domain.IncidentSchema(), inc.Fields)
	}
	for _, kind := range domain.ChildKinds() {
		schema, _ := domain.ChildSchema(kind)
		for rowID, row := range rd.snap.Children[kind] {
			check(kind.Entity(), strconv.Itoa(rowID), schema, row.Fields)
		}
	}
}

func hasCode(entries []domain.LookupEntry, value string) bool {
	for _, e := range entries {
		if strings.EqualFold(e.Code, value) || strings.EqualFold(e.Label, value) {
			return true
		}
	}
	return false
}
