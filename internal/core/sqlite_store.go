package core

import "incidentdb/internal/infra/persistence/sqlite"

// NewSQLiteStore opens a sqlite-journaled store at path (empty for the
// default file).
func NewSQLiteStore(path string, engine *RulesEngine) (*sqlite.Store, error) {
	return sqlite.NewStore(path, engine)
}
