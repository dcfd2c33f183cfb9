package workbook

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"incidentdb/internal/infra/persistence/memory"
	"incidentdb/pkg/domain"
)

const (
	dateFormat     = "yyyy-mm-dd"
	dateTimeFormat = "yyyy-mm-dd hh:mm:ss"
)

// Write serialises every table of the snapshot as an .xlsx stream.
func Write(w io.Writer, snap memory.Snapshot) error {
	f, err := build(snap)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Save overwrites path with the snapshot. The workbook is written to a
// temporary file in the same directory and renamed over the target, so a
// failed write leaves the previous file intact.
func Save(path string, snap memory.Snapshot) (retErr error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if err := Write(tmp, snap); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace workbook: %w", err)
	}
	return nil
}

type writer struct {
	file      *excelize.File
	header    int
	date      int
	dateTime  int
	firstUsed bool
}

func build(snap memory.Snapshot) (*excelize.File, error) {
	f := excelize.NewFile()
	w := &writer{file: f}
	var err error
	if w.header, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	df := dateFormat
	if w.date, err = f.NewStyle(&excelize.Style{CustomNumFmt: &df}); err != nil {
		return nil, fmt.Errorf("date style: %w", err)
	}
	dtf := dateTimeFormat
	if w.dateTime, err = f.NewStyle(&excelize.Style{CustomNumFmt: &dtf}); err != nil {
		return nil, fmt.Errorf("date style: %w", err)
	}

	if err := w.writeIncidents(snap); err != nil {
		_ = f.Close()
		return nil, err
	}
	for _, kind := range domain.ChildKinds() {
		if err := w.writeChildren(snap, kind); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	for _, kind := range domain.RosterKinds() {
		if err := w.writeRoster(snap, kind); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	for _, kind := range domain.LookupKinds() {
		if err := w.writeLookup(snap, kind); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	for _, raw := range snap.Extra {
		if err := w.writeRaw(raw); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// sheet adds a new sheet, renaming the default one for the first call.
func (w *writer) sheet(name string) error {
	if !w.firstUsed {
		w.firstUsed = true
		return w.file.SetSheetName(w.file.GetSheetName(0), name)
	}
	_, err := w.file.NewSheet(name)
	return err
}

// columnsFor merges the recorded column order with any field present in the
// records but missing from it, so no data is dropped.
func columnsFor(snap memory.Snapshot, schema domain.SheetSchema, records []domain.Fields) []string {
	cols := snap.Columns[schema.Sheet]
	if len(cols) == 0 {
		cols = schema.ColumnNames()
	}
	cols = append([]string(nil), cols...)
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	for _, key := range []string{schema.Key, schema.ParentKey} {
		if key != "" && !have[key] {
			cols = append([]string{key}, cols...)
			have[key] = true
		}
	}
	var extra []string
	for _, fields := range records {
		for name := range fields {
			if !have[name] {
				have[name] = true
				extra = append(extra, name)
			}
		}
	}
	sort.Strings(extra)
	return append(cols, extra...)
}

func (w *writer) writeHeader(sheet string, cols []string) error {
	for i, name := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := w.file.SetCellStr(sheet, cell, name); err != nil {
			return err
		}
	}
	if len(cols) == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(cols), 1)
	if err != nil {
		return err
	}
	return w.file.SetCellStyle(sheet, "A1", last, w.header)
}

func (w *writer) writeRow(sheet string, row int, cols []string, key func(string) (domain.Value, bool), fields domain.Fields) error {
	for i, name := range cols {
		v, ok := key(name)
		if !ok {
			v = fields.Get(name)
		}
		if v.IsEmpty() {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := w.setValue(sheet, cell, v); err != nil {
			return fmt.Errorf("%s %s: %w", sheet, cell, err)
		}
	}
	return nil
}

func (w *writer) setValue(sheet, cell string, v domain.Value) error {
	switch v.Kind() {
	case domain.KindNumber:
		f, _ := v.Float()
		if f == math.Trunc(f) && math.Abs(f) < 1e15 {
			return w.file.SetCellInt(sheet, cell, int(f))
		}
		return w.file.SetCellFloat(sheet, cell, f, -1, 64)
	case domain.KindBool:
		b, _ := v.Bool()
		return w.file.SetCellBool(sheet, cell, b)
	case domain.KindDate:
		t, _ := v.Time()
		if err := w.file.SetCellValue(sheet, cell, t); err != nil {
			return err
		}
		style := w.date
		if t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 {
			style = w.dateTime
		}
		return w.file.SetCellStyle(sheet, cell, cell, style)
	default:
		// Times of day are stored as HH:MM text.
		return w.file.SetCellStr(sheet, cell, v.String())
	}
}

func (w *writer) writeIncidents(snap memory.Snapshot) error {
	schema := domain.IncidentSchema()
	ids := make([]int, 0, len(snap.Incidents))
	records := make([]domain.Fields, 0, len(snap.Incidents))
	for id, inc := range snap.Incidents {
		ids = append(ids, id)
		records = append(records, inc.Fields)
	}
	sort.Ints(ids)
	cols := columnsFor(snap, schema, records)
	if err := w.sheet(schema.Sheet); err != nil {
		return err
	}
	if err := w.writeHeader(schema.Sheet, cols); err != nil {
		return err
	}
	for i, id := range ids {
		key := func(name string) (domain.Value, bool) {
			if name == schema.Key {
				return domain.Int(id), true
			}
			return domain.Empty, false
		}
		if err := w.writeRow(schema.Sheet, i+2, cols, key, snap.Incidents[id].Fields); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) writeChildren(snap memory.Snapshot, kind domain.ChildKind) error {
	schema, _ := domain.ChildSchema(kind)
	rows := snap.Children[kind]
	ids := make([]int, 0, len(rows))
	records := make([]domain.Fields, 0, len(rows))
	for rowID, row := range rows {
		ids = append(ids, rowID)
		records = append(records, row.Fields)
	}
	sort.Ints(ids)
	cols := columnsFor(snap, schema, records)
	if err := w.sheet(schema.Sheet); err != nil {
		return err
	}
	if err := w.writeHeader(schema.Sheet, cols); err != nil {
		return err
	}
	for i, rowID := range ids {
		row := rows[rowID]
		key := func(name string) (domain.Value, bool) {
			if name == schema.ParentKey {
				return domain.Int(row.IncidentID), true
			}
			return domain.Empty, false
		}
		if err := w.writeRow(schema.Sheet, i+2, cols, key, row.Fields); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) writeRoster(snap memory.Snapshot, kind domain.RosterKind) error {
	schema, _ := domain.RosterSchema(kind)
	entries := snap.Rosters[kind]
	ids := make([]string, 0, len(entries))
	records := make([]domain.Fields, 0, len(entries))
	for id, e := range entries {
		ids = append(ids, id)
		records = append(records, e.Fields)
	}
	sort.Slice(ids, func(i, j int) bool { return lessKey(ids[i], ids[j]) })
	cols := columnsFor(snap, schema, records)
	if err := w.sheet(schema.Sheet); err != nil {
		return err
	}
	if err := w.writeHeader(schema.Sheet, cols); err != nil {
		return err
	}
	for i, id := range ids {
		key := func(name string) (domain.Value, bool) {
			if name == schema.Key {
				// Roster keys stay text so "007" keeps its zeros.
				return domain.Text(id), true
			}
			return domain.Empty, false
		}
		if err := w.writeRow(schema.Sheet, i+2, cols, key, entries[id].Fields); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) writeLookup(snap memory.Snapshot, kind domain.LookupKind) error {
	sheet, _ := domain.LookupSheet(kind)
	entries := snap.Lookups[kind]
	header, recorded := snap.Columns[sheet]
	if !recorded && len(entries) == 0 {
		return nil
	}
	if len(header) == 0 {
		header = []string{"Code", "Label"}
	}
	header = append([]string(nil), header...)
	withLabel := len(header) > 1
	for _, e := range entries {
		if !withLabel && (e.Label != e.Code || len(e.Extra) > 0) {
			header = append(header, "Label")
			withLabel = true
		}
	}
	header = appendExtraColumns(header, entries)
	if err := w.sheet(sheet); err != nil {
		return err
	}
	if err := w.writeHeader(sheet, header); err != nil {
		return err
	}
	for i, e := range entries {
		row := strconv.Itoa(i + 2)
		if err := w.file.SetCellStr(sheet, "A"+row, e.Code); err != nil {
			return err
		}
		if withLabel {
			if err := w.file.SetCellStr(sheet, "B"+row, e.Label); err != nil {
				return err
			}
		}
		for col := 2; col < len(header); col++ {
			value, ok := e.Extra[header[col]]
			if !ok {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := w.file.SetCellStr(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// appendExtraColumns adds the extra keys of entries that the header lacks, in
// name order.
func appendExtraColumns(header []string, entries []domain.LookupEntry) []string {
	have := map[string]bool{}
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, e := range entries {
		for name := range e.Extra {
			if !have[name] {
				have[name] = true
				missing = append(missing, name)
			}
		}
	}
	sort.Strings(missing)
	return append(header, missing...)
}

func (w *writer) writeRaw(raw memory.RawSheet) error {
	if err := w.sheet(raw.Name); err != nil {
		return err
	}
	for r, cells := range raw.Rows {
		for c, text := range cells {
			if strings.TrimSpace(text) == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}
			if err := w.file.SetCellStr(raw.Name, cell, text); err != nil {
				return err
			}
		}
	}
	return nil
}

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
