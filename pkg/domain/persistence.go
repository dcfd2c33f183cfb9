package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateIncident(Incident) (Incident, error)
	UpdateIncident(id int, mutator func(*Incident) error) (Incident, error)
	DeleteIncident(id int) error
	CreateChild(ChildRecord) (ChildRecord, error)
	UpdateChild(kind ChildKind, rowID int, mutator func(*ChildRecord) error) (ChildRecord, error)
	DeleteChild(kind ChildKind, rowID int) error
	UpsertRosterEntry(RosterEntry) (RosterEntry, error)
	DeleteRosterEntry(kind RosterKind, id string) error
	SetLookup(kind LookupKind, entries []LookupEntry) error
	FindIncident(id int) (Incident, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	FindChild(kind ChildKind, rowID int) (ChildRecord, bool)
	FindRosterEntry(kind RosterKind, id string) (RosterEntry, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetIncident(id int) (Incident, bool)
	ListIncidents() []Incident
	ListChildren(kind ChildKind, incidentID int) []ChildRecord
	ListRoster(kind RosterKind) []RosterEntry
	Lookup(kind LookupKind) []LookupEntry
}
