package core

import (
	"context"

	"incidentdb/pkg/domain"
)

// NewRequiredFieldsRule blocks incidents saved without a Date.
func NewRequiredFieldsRule() domain.Rule {
	return requiredFieldsRule{}
}

type requiredFieldsRule struct{}

func (requiredFieldsRule) Name() string { return "required_fields" }

func (r requiredFieldsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, inc := range changedIncidents(changes) {
		if _, ok := inc.Date(); ok {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  "incident " + inc.Key() + " requires a Date",
			Entity:   domain.EntityIncident,
			EntityID: inc.Key(),
		})
	}
	return res, nil
}
