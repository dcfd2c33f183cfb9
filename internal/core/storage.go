package core

import (
	"context"
	"fmt"
	"io"
	"strings"

	"incidentdb/internal/infra/persistence/memory"
)

// StorageDriver identifies how the working state is kept between commits.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only
	StorageSQLite   StorageDriver = "sqlite"   // sqlite session journal
	StoragePostgres StorageDriver = "postgres" // PostgreSQL session journal
)

// StorageConfig selects the store backing the service.
type StorageConfig struct {
	Driver      string
	SQLitePath  string
	PostgresDSN string
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenPersistentStore returns the store described by cfg. Driver defaults to
// memory. The returned closer releases journal connections and is never nil.
func OpenPersistentStore(ctx context.Context, cfg StorageConfig, engine *RulesEngine) (Store, io.Closer, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	driver := StorageDriver(strings.ToLower(strings.TrimSpace(cfg.Driver)))
	if driver == "" {
		driver = StorageMemory
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nopCloser{}, nil
	case StorageSQLite:
		s, err := NewSQLiteStore(cfg.SQLitePath, engine)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case StoragePostgres:
		s, err := NewPostgresStore(ctx, cfg.PostgresDSN, engine)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
