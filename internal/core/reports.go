package core

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"incidentdb/pkg/domain"
)

// Count is one bucket of a tally.
type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// ResponseTime is the Arrival minus Alarm interval of one Incident_Times row.
// Minutes is nil when either time is missing.
type ResponseTime struct {
	IncidentID int    `json:"incident_id"`
	RowID      int    `json:"row_id"`
	Alarm      string `json:"alarm,omitempty"`
	Arrival    string `json:"arrival,omitempty"`
	Minutes    *int   `json:"minutes"`
}

// IncidentSnapshot summarises who and what was on scene.
type IncidentSnapshot struct {
	IncidentID      int      `json:"incident_id"`
	PersonnelCount  int      `json:"personnel_count"`
	PersonnelByRole []Count  `json:"personnel_by_role,omitempty"`
	Roster          []string `json:"roster,omitempty"`
	ApparatusCount  int      `json:"apparatus_count"`
	Units           []string `json:"units,omitempty"`
}

const unspecifiedRole = "Unspecified"

// sortCounts orders by descending count, then key.
func sortCounts(tally map[string]int) []Count {
	out := make([]Count, 0, len(tally))
	for k, n := range tally {
		out = append(out, Count{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// CountsByType tallies incidents by IncidentType. Incidents without a type
// are not counted.
func (s *Service) CountsByType(filter Filter) []Count {
	tally := make(map[string]int)
	for inc := range s.Search(filter) {
		if t := inc.Type(); t != "" {
			tally[t]++
		}
	}
	return sortCounts(tally)
}

// CountsByMonth tallies incidents by the YYYY-MM of their Date, in month
// order. Incidents without a Date are not counted.
func (s *Service) CountsByMonth(filter Filter) []Count {
	tally := make(map[string]int)
	for inc := range s.Search(filter) {
		if d, ok := inc.Date(); ok {
			tally[d.Format("2006-01")]++
		}
	}
	out := make([]Count, 0, len(tally))
	for k, n := range tally {
		out = append(out, Count{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// ResponseTimes lists Arrival minus Alarm in minutes for every time row of
// the incidents matching filter. Arrival before Alarm is read as crossing
// midnight.
func (s *Service) ResponseTimes(filter Filter) []ResponseTime {
	matched := make(map[int]struct{})
	for inc := range s.Search(filter) {
		matched[inc.ID] = struct{}{}
	}
	var out []ResponseTime
	for _, row := range s.store.ListChildren(domain.ChildTime, 0) {
		if _, ok := matched[row.IncidentID]; !ok {
			continue
		}
		rt := ResponseTime{
			IncidentID: row.IncidentID,
			RowID:      row.RowID,
			Alarm:      row.Fields.Text("Alarm"),
			Arrival:    row.Fields.Text("Arrival"),
		}
		alarm, okA := row.Fields.Get("Alarm").Time()
		arrival, okB := row.Fields.Get("Arrival").Time()
		if okA && okB {
			d := arrival.Sub(alarm)
			if d < 0 {
				d += 24 * time.Hour
			}
			minutes := int(d / time.Minute)
			rt.Minutes = &minutes
		}
		out = append(out, rt)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IncidentID < out[j].IncidentID })
	return out
}

// Snapshot summarises personnel and apparatus on scene for one incident.
func (s *Service) Snapshot(id int) (IncidentSnapshot, error) {
	if _, err := s.Incident(id); err != nil {
		return IncidentSnapshot{}, err
	}
	return s.snapshot(id), nil
}

func (s *Service) snapshot(id int) IncidentSnapshot {
	snap := IncidentSnapshot{IncidentID: id}
	personnel := s.store.ListChildren(domain.ChildPersonnel, id)
	snap.PersonnelCount = len(personnel)
	roles := make(map[string]int)
	for _, row := range personnel {
		role := row.Fields.Text("Role")
		if role == "" {
			role = unspecifiedRole
		}
		roles[role]++
		name := row.Fields.Text("Name")
		if name == "" && row.Fields.Text("Role") == "" {
			continue
		}
		snap.Roster = append(snap.Roster, name+" ("+row.Fields.Text("Role")+")")
	}
	if len(roles) > 0 {
		snap.PersonnelByRole = sortCounts(roles)
	}
	for _, row := range s.store.ListChildren(domain.ChildApparatus, id) {
		if unit := row.Fields.Text("Unit"); unit != "" {
			snap.Units = append(snap.Units, unit)
		}
	}
	snap.ApparatusCount = len(snap.Units)
	return snap
}

// ReportField is a labelled value on the printable report.
type ReportField struct {
	Label string
	Value string
}

// ReportTable is a child sheet section of the printable report.
type ReportTable struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// IncidentReport is the data behind the printable incident report.
type IncidentReport struct {
	Incident  Incident
	Overview  []ReportField
	Location  []ReportField
	Caller    []ReportField
	Authors   []ReportField
	Narrative string
	Snapshot  IncidentSnapshot
	Tables    []ReportTable
	Generated time.Time
}

var (
	reportOverview = []string{"Date", "Time", "IncidentType", "ResponsePriority", "AlarmLevel", "Disposition", "Shift"}
	reportLocation = []string{"LocationName", "Address", "City", "State", "PostalCode"}
	reportCaller   = []string{"CallerName", "CallerPhone"}
	reportAuthors  = []string{"ReportWriter", "Approver"}
)

func reportFields(inc Incident, columns []string) []ReportField {
	var out []ReportField
	for _, c := range columns {
		if v := inc.Fields.Text(c); v != "" {
			out = append(out, ReportField{Label: c, Value: v})
		}
	}
	return out
}

// BuildReport assembles the printable report for one incident.
func (s *Service) BuildReport(id int) (IncidentReport, error) {
	inc, err := s.Incident(id)
	if err != nil {
		return IncidentReport{}, err
	}
	report := IncidentReport{
		Incident:  inc,
		Overview:  reportFields(inc, reportOverview),
		Location:  reportFields(inc, reportLocation),
		Caller:    reportFields(inc, reportCaller),
		Authors:   reportFields(inc, reportAuthors),
		Narrative: inc.Fields.Text("Narrative"),
		Snapshot:  s.snapshot(id),
		Generated: s.clock.Now().UTC(),
	}
	for _, kind := range []ChildKind{domain.ChildTime, domain.ChildPersonnel, domain.ChildApparatus, domain.ChildAction} {
		rows := s.store.ListChildren(kind, id)
		if len(rows) == 0 {
			continue
		}
		schema, _ := domain.ChildSchema(kind)
		report.Tables = append(report.Tables, childTable(schema, rows))
	}
	return report, nil
}

// childTable lays out rows with the declared columns that have data, then
// any extra columns in name order.
func childTable(schema domain.SheetSchema, rows []ChildRecord) ReportTable {
	used := make(map[string]bool)
	for _, row := range rows {
		for name, v := range row.Fields {
			if !v.IsEmpty() {
				used[name] = true
			}
		}
	}
	var columns []string
	for _, c := range schema.Columns {
		if used[c.Name] {
			columns = append(columns, c.Name)
			delete(used, c.Name)
		}
	}
	extra := make([]string, 0, len(used))
	for name := range used {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	columns = append(columns, extra...)

	table := ReportTable{Title: strings.ReplaceAll(schema.Sheet, "_", " "), Columns: columns}
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, c := range columns {
			cells[i] = row.Fields.Text(c)
		}
		table.Rows = append(table.Rows, cells)
	}
	return table
}

// reportTitle is the heading of the printable report.
func reportTitle(id int) string { return "Incident Report #" + strconv.Itoa(id) }
