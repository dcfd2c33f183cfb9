package domain

import (
	"iter"
	"strings"
	"time"
)

// Filter selects incidents. All predicates must hold; a zero Filter matches
// every incident.
type Filter struct {
	// Equals requires the column's text to match exactly.
	Equals map[string]string
	// Contains requires a case-insensitive substring match.
	Contains map[string]string
	// From and To bound the incident Date, both inclusive. Zero means open.
	From time.Time
	To   time.Time
}

// IsZero reports whether the filter has no predicates.
func (f Filter) IsZero() bool {
	return len(f.Equals) == 0 && len(f.Contains) == 0 && f.From.IsZero() && f.To.IsZero()
}

// Match evaluates the filter against one incident.
func (f Filter) Match(inc Incident) bool {
	for column, want := range f.Equals {
		if incidentText(inc, column) != strings.TrimSpace(want) {
			return false
		}
	}
	for column, needle := range f.Contains {
		needle = strings.ToLower(strings.TrimSpace(needle))
		if needle == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(incidentText(inc, column)), needle) {
			return false
		}
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	d, ok := inc.Date()
	if !ok {
		return false
	}
	day := truncateDay(d)
	if !f.From.IsZero() && day.Before(truncateDay(f.From)) {
		return false
	}
	if !f.To.IsZero() && day.After(truncateDay(f.To)) {
		return false
	}
	return true
}

// Apply lazily filters a sequence of incidents.
func (f Filter) Apply(seq iter.Seq[Incident]) iter.Seq[Incident] {
	return func(yield func(Incident) bool) {
		for inc := range seq {
			if !f.Match(inc) {
				continue
			}
			if !yield(inc) {
				return
			}
		}
	}
}

func incidentText(inc Incident, column string) string {
	if strings.EqualFold(column, ColumnIncidentID) || strings.EqualFold(column, legacyIncidentKeyColumn) {
		return inc.Key()
	}
	if spec, ok := incidentSchema.Column(column); ok {
		column = spec.Name
	}
	return inc.Fields.Text(column)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
