package core

import "incidentdb/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Incident           = domain.Incident
	ChildRecord        = domain.ChildRecord
	ChildKind          = domain.ChildKind
	RosterEntry        = domain.RosterEntry
	RosterKind         = domain.RosterKind
	LookupEntry        = domain.LookupEntry
	LookupKind         = domain.LookupKind
	Fields             = domain.Fields
	Filter             = domain.Filter
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
