package core

import "incidentdb/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewRequiredFieldsRule())
	engine.Register(NewReferentialIntegrityRule())
	engine.Register(NewTimeSequenceRule())
	return engine
}

// changedIncidents returns the post-change state of incidents created or
// updated in a transaction.
func changedIncidents(changes []domain.Change) []domain.Incident {
	var out []domain.Incident
	for _, ch := range changes {
		if ch.Entity != domain.EntityIncident || ch.Action == domain.ActionDelete {
			continue
		}
		if inc, ok := ch.After.(domain.Incident); ok {
			out = append(out, inc)
		}
	}
	return out
}

// changedChildren returns the post-change state of child rows created or
// updated in a transaction.
func changedChildren(changes []domain.Change) []domain.ChildRecord {
	var out []domain.ChildRecord
	for _, ch := range changes {
		if ch.Action == domain.ActionDelete {
			continue
		}
		if row, ok := ch.After.(domain.ChildRecord); ok {
			out = append(out, row)
		}
	}
	return out
}
