package core

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"incidentdb/pkg/domain"
)

// timeSequence is the expected order of the Incident_Times columns.
var timeSequence = []string{"Alarm", "Enroute", "Arrival", "Clear"}

// NewTimeSequenceRule warns when response times run backwards. A step back
// of more than twelve hours is read as crossing midnight.
func NewTimeSequenceRule() domain.Rule {
	return timeSequenceRule{}
}

type timeSequenceRule struct{}

func (timeSequenceRule) Name() string { return "time_sequence" }

func (r timeSequenceRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, row := range changedChildren(changes) {
		if row.Kind != domain.ChildTime {
			continue
		}
		prevName := ""
		var prev time.Time
		for _, name := range timeSequence {
			t, ok := row.Fields.Get(name).Time()
			if !ok {
				continue
			}
			if prevName != "" {
				back := prev.Sub(t)
				if back > 0 && back <= 12*time.Hour {
					res.Violations = append(res.Violations, domain.Violation{
						Rule:     r.Name(),
						Severity: domain.SeverityWarn,
						Message:  fmt.Sprintf("incident %d: %s %s is before %s %s", row.IncidentID, name, row.Fields.Text(name), prevName, row.Fields.Text(prevName)),
						Entity:   row.Kind.Entity(),
						EntityID: strconv.Itoa(row.RowID),
					})
				}
			}
			prevName, prev = name, t
		}
	}
	return res, nil
}
