package core

import (
	"context"
	"fmt"
	"strconv"

	"incidentdb/pkg/domain"
)

// NewReferentialIntegrityRule blocks child rows that point at a missing
// incident.
func NewReferentialIntegrityRule() domain.Rule {
	return referentialIntegrityRule{}
}

type referentialIntegrityRule struct{}

func (referentialIntegrityRule) Name() string { return "referential_integrity" }

func (r referentialIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, row := range changedChildren(changes) {
		if _, ok := view.FindIncident(row.IncidentID); ok {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s row %d references missing incident %d", row.Kind, row.RowID, row.IncidentID),
			Entity:   row.Kind.Entity(),
			EntityID: strconv.Itoa(row.RowID),
		})
	}
	return res, nil
}
