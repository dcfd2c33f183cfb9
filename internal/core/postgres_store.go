package core

import (
	"context"

	"incidentdb/internal/infra/persistence/postgres"
)

// NewPostgresStore opens a Postgres-journaled store from dsn.
func NewPostgresStore(ctx context.Context, dsn string, engine *RulesEngine) (*postgres.Store, error) {
	return postgres.NewStore(ctx, dsn, engine)
}
