// Package blob selects the storage backend that published workbook exports
// are written to. Callers depend on Store; only this package imports the
// concrete backends.
package blob

import (
	"context"
	"fmt"
	"strings"

	"incidentdb/internal/blob/core"
	"incidentdb/internal/infra/blob/fs"
	"incidentdb/internal/infra/blob/memory"
	"incidentdb/internal/infra/blob/s3"
)

type (
	// Store is the export artifact store.
	Store = core.Store
	// Driver names a backend.
	Driver = core.Driver
	// Info describes a stored export.
	Info = core.Info
	// PutOptions carries content type and metadata for Put.
	PutOptions = core.PutOptions
	// S3Config configures the s3 driver.
	S3Config = s3.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
	DefaultURLExpiry = core.DefaultURLExpiry
)

var (
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
	ErrUnsupported = core.ErrUnsupported
)

// Config selects and configures a backend. Driver defaults to fs.
type Config struct {
	Driver string
	// FSRoot and FSBaseURL apply to the fs driver. FSBaseURL should point at
	// the HTTP route that serves exports back.
	FSRoot    string
	FSBaseURL string
	S3        S3Config
}

// Open returns the Store described by cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := Driver(strings.ToLower(strings.TrimSpace(cfg.Driver)))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot, cfg.FSBaseURL)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-process store, for tests and dry runs.
func NewMemory() Store { return memory.New() }

// NewS3Mock returns an S3 store talking to an in-memory fake endpoint.
func NewS3Mock() Store { return s3.NewMockForTests() }
