package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"incidentdb/internal/blob"
	"incidentdb/internal/infra/persistence/memory"
	"incidentdb/internal/infra/workbook"
	"incidentdb/pkg/domain"
)

// ContentTypeXLSX is the MIME type of exported workbooks.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportPrefix is the blob key prefix published workbooks are stored under.
const ExportPrefix = "exports/"

var (
	// ErrNoWorkbook is returned when an operation needs the source workbook
	// path and none is configured.
	ErrNoWorkbook = errors.New("no workbook path configured")
	// ErrNoBlobStore is returned by PublishExport without a blob store.
	ErrNoBlobStore = errors.New("no blob store configured")
)

// PublishedExport describes a workbook written to the blob store.
type PublishedExport struct {
	Info blob.Info `json:"info"`
	URL  string    `json:"url"`
}

// LoadWorkbook reads the configured workbook into the store, replacing its
// state. With resume enabled and a journal that restored a previous session,
// the journal is kept and the file is not read. Anomalies found in the file
// are returned as warnings.
func (s *Service) LoadWorkbook(ctx context.Context) (Result, error) {
	if r, ok := s.store.(resumable); ok && s.resume && r.Resumed() {
		s.logger.Info("resumed session journal", "incidents", len(s.store.ListIncidents()))
		return s.Warnings(), nil
	}
	if s.workbookPath == "" {
		return Result{}, ErrNoWorkbook
	}
	return s.run(ctx, "load_workbook", domain.EntityIncident, func(ctx context.Context) (string, Result, error) {
		loaded, err := workbook.Load(s.workbookPath, workbook.Options{RequiredSheets: s.requiredSheets})
		if err != nil {
			return s.workbookPath, Result{}, err
		}
		if err := s.store.Replace(ctx, loaded.Snapshot); err != nil {
			return s.workbookPath, Result{}, fmt.Errorf("replace state: %w", err)
		}
		s.setWarnings(loaded.Warnings)
		s.logger.Info("workbook loaded",
			"path", s.workbookPath,
			"incidents", len(loaded.Snapshot.Incidents),
			"sheets", len(loaded.Sheets),
			"warnings", len(loaded.Warnings.Violations),
		)
		return s.workbookPath, loaded.Warnings, nil
	})
}

// ValidateWorkbook loads path without touching the service state and
// evaluates the rules engine over every record. Loader warnings and rule
// violations are returned together.
func (s *Service) ValidateWorkbook(ctx context.Context, path string, engine *RulesEngine) (Result, error) {
	if path == "" {
		path = s.workbookPath
	}
	if path == "" {
		return Result{}, ErrNoWorkbook
	}
	loaded, err := workbook.Load(path, workbook.Options{RequiredSheets: s.requiredSheets})
	if err != nil {
		return Result{}, err
	}
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	scratch := memory.NewStore(engine)
	scratch.ImportState(loaded.Snapshot)

	var changes []domain.Change
	for _, inc := range scratch.ListIncidents() {
		changes = append(changes, domain.Change{Entity: domain.EntityIncident, Action: domain.ActionCreate, After: inc})
	}
	for _, kind := range domain.ChildKinds() {
		for _, row := range scratch.ListChildren(kind, 0) {
			changes = append(changes, domain.Change{Entity: kind.Entity(), Action: domain.ActionCreate, After: row})
		}
	}
	result := loaded.Warnings
	err = scratch.View(ctx, func(view domain.TransactionView) error {
		res, err := engine.Evaluate(ctx, view, changes)
		if err != nil {
			return err
		}
		result.Merge(res)
		return nil
	})
	return result, err
}

// Warnings returns the anomalies reported by the last workbook load.
func (s *Service) Warnings() Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Result{Violations: append([]Violation(nil), s.warnings.Violations...)}
}

func (s *Service) setWarnings(res Result) {
	s.mu.Lock()
	s.warnings = res
	s.mu.Unlock()
}

// Export writes every table as an .xlsx stream.
func (s *Service) Export(ctx context.Context, w io.Writer) error {
	_, err := s.run(ctx, "export_workbook", domain.EntityIncident, func(context.Context) (string, Result, error) {
		return "", Result{}, workbook.Write(w, s.store.ExportState())
	})
	return err
}

// SaveWorkbook overwrites the source workbook with the current state.
func (s *Service) SaveWorkbook(ctx context.Context) error {
	if s.workbookPath == "" {
		return ErrNoWorkbook
	}
	return s.SaveWorkbookAs(ctx, s.workbookPath)
}

// SaveWorkbookAs writes the current state to path, replacing any file there.
// A failed write leaves both the previous file and the in-memory state as
// they were.
func (s *Service) SaveWorkbookAs(ctx context.Context, path string) error {
	_, err := s.run(ctx, "save_workbook", domain.EntityIncident, func(context.Context) (string, Result, error) {
		snap := s.store.ExportState()
		if err := workbook.Save(path, snap); err != nil {
			return path, Result{}, err
		}
		s.logger.Info("workbook saved", "path", path, "incidents", len(snap.Incidents))
		return path, Result{}, nil
	})
	return err
}

// PublishExport writes the workbook to the blob store under
// exports/<date>/<uuid>.xlsx and returns its download link. URL is empty
// for backends that cannot address blobs outside the process.
func (s *Service) PublishExport(ctx context.Context) (PublishedExport, error) {
	var out PublishedExport
	_, err := s.run(ctx, "publish_export", domain.EntityIncident, func(ctx context.Context) (string, Result, error) {
		if s.blobs == nil {
			return "", Result{}, ErrNoBlobStore
		}
		snap := s.store.ExportState()
		var buf bytes.Buffer
		if err := workbook.Write(&buf, snap); err != nil {
			return "", Result{}, err
		}
		now := s.clock.Now().UTC()
		key := fmt.Sprintf("%s%s/%s.xlsx", ExportPrefix, now.Format("2006-01-02"), uuid.NewString())
		meta := map[string]string{
			"incidents":    strconv.Itoa(len(snap.Incidents)),
			"generated_at": now.Format("2006-01-02T15:04:05Z"),
		}
		if s.workbookPath != "" {
			meta["source"] = filepath.Base(s.workbookPath)
		}
		info, err := s.blobs.Put(ctx, key, &buf, blob.PutOptions{ContentType: ContentTypeXLSX, Metadata: meta})
		if err != nil {
			return key, Result{}, fmt.Errorf("store export: %w", err)
		}
		url, err := s.blobs.DownloadURL(ctx, key, s.urlExpiry)
		if err != nil && !errors.Is(err, blob.ErrUnsupported) {
			return key, Result{}, fmt.Errorf("download url: %w", err)
		}
		out = PublishedExport{Info: info, URL: url}
		s.logger.Info("export published", "key", key, "driver", s.blobs.Driver(), "size", info.Size)
		return key, Result{}, nil
	})
	return out, err
}

// ListExports returns published workbooks ordered by key.
func (s *Service) ListExports(ctx context.Context) ([]blob.Info, error) {
	if s.blobs == nil {
		return nil, ErrNoBlobStore
	}
	return s.blobs.List(ctx, ExportPrefix)
}

// OpenExport streams a published workbook. Keys outside exports/ are
// reported as not found so the store cannot be read through this call.
func (s *Service) OpenExport(ctx context.Context, key string) (blob.Info, io.ReadCloser, error) {
	if s.blobs == nil {
		return blob.Info{}, nil, ErrNoBlobStore
	}
	if !isExportKey(key) {
		return blob.Info{}, nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
	}
	return s.blobs.Get(ctx, key)
}

func isExportKey(key string) bool {
	return strings.HasPrefix(key, ExportPrefix) && len(key) > len(ExportPrefix) && path.Clean(key) == key
}
