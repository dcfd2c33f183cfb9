package core_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"incidentdb/internal/blob"
	"incidentdb/internal/core"
	"incidentdb/internal/infra/workbook"
	"incidentdb/pkg/domain"
)

// writeOrphanWorkbook saves a workbook whose only time row points at a
// missing incident.
func writeOrphanWorkbook(t *testing.T, path string) {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	require.NoError(t, f.SetSheetName(f.GetSheetName(0), domain.SheetIncidents))
	require.NoError(t, f.SetSheetRow(domain.SheetIncidents, "A1", &[]any{"IncidentID", "Date", "IncidentType"}))
	require.NoError(t, f.SetSheetRow(domain.SheetIncidents, "A2", &[]any{1, "2024-01-05", "Structure Fire"}))
	_, err := f.NewSheet(domain.SheetIncidentTimes)
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow(domain.SheetIncidentTimes, "A1", &[]any{"IncidentID", "Alarm"}))
	require.NoError(t, f.SetSheetRow(domain.SheetIncidentTimes, "A2", &[]any{7, "10:00"}))
	require.NoError(t, f.SaveAs(path))
}

func populated(t *testing.T, opts ...core.ServiceOption) *core.Service {
	t.Helper()
	svc := core.NewInMemoryService(nil, opts...)
	seedIncidents(t, svc, 3)
	seedRosters(t, svc)
	_, err := svc.SetLookup(context.Background(), domain.LookupPriorities, []domain.LookupEntry{{Code: "P1", Label: "Emergent"}})
	require.NoError(t, err)
	return svc
}

func TestSaveThenLoadWorkbookRestoresState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "incidents.xlsx")
	src := populated(t)
	require.NoError(t, src.SaveWorkbookAs(ctx, path))

	dst := core.NewInMemoryService(nil, core.WithWorkbook(path, domain.SheetIncidentTimes))
	res, err := dst.LoadWorkbook(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Violations)

	require.Len(t, dst.ListIncidents(), 3)
	inc, err := dst.Incident(2)
	require.NoError(t, err)
	d, ok := inc.Date()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), d)

	times, err := dst.ListChildren(domain.ChildTime, 0)
	require.NoError(t, err)
	require.Len(t, times, 3)
	assert.Equal(t, "10:07", times[0].Fields.Text("Arrival"))
	assert.Len(t, dst.ListRoster(domain.RosterPersonnel), 2)
	assert.Equal(t, []domain.LookupEntry{{Code: "P1", Label: "Emergent"}}, dst.Lookups(domain.LookupPriorities))

	// mutate and save back over the source file
	_, err = dst.DeleteIncident(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, dst.SaveWorkbook(ctx))
	loaded, err := workbook.Load(path, workbook.Options{})
	require.NoError(t, err)
	assert.Len(t, loaded.Snapshot.Incidents, 2)
	assert.Len(t, loaded.Snapshot.Children[domain.ChildTime], 2)
}

func TestLoadWorkbookErrors(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	_, err := svc.LoadWorkbook(ctx)
	require.ErrorIs(t, err, core.ErrNoWorkbook)
	require.ErrorIs(t, svc.SaveWorkbook(ctx), core.ErrNoWorkbook)

	path := filepath.Join(t.TempDir(), "partial.xlsx")
	writeOrphanWorkbook(t, path)
	svc = core.NewInMemoryService(nil, core.WithWorkbook(path, domain.SheetPersonnel))
	_, err = svc.LoadWorkbook(ctx)
	var missing domain.MissingSheetError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, domain.SheetPersonnel, missing.Sheet)
	assert.Empty(t, svc.ListIncidents())
}

func TestLoadWorkbookKeepsOrphansAsWarnings(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "orphans.xlsx")
	writeOrphanWorkbook(t, path)

	svc := core.NewInMemoryService(nil, core.WithWorkbook(path))
	res, err := svc.LoadWorkbook(ctx)
	require.NoError(t, err)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, "orphan_child_row", res.Violations[0].Rule)
	assert.Equal(t, res, svc.Warnings())

	rows, err := svc.ListChildren(domain.ChildTime, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 7, rows[0].IncidentID)

	validation, err := svc.ValidateWorkbook(ctx, "", nil)
	require.NoError(t, err)
	rules := make(map[string]domain.Severity)
	for _, v := range validation.Violations {
		rules[v.Rule] = v.Severity
	}
	assert.Equal(t, domain.SeverityWarn, rules["orphan_child_row"])
	assert.Equal(t, domain.SeverityBlock, rules["referential_integrity"])
	assert.True(t, validation.HasBlocking())
}

func TestExportStreamsWorkbook(t *testing.T) {
	ctx := context.Background()
	svc := populated(t)
	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, &buf))

	loaded, err := workbook.Read(&buf, workbook.Options{})
	require.NoError(t, err)
	assert.Len(t, loaded.Snapshot.Incidents, 3)
	assert.Len(t, loaded.Snapshot.Rosters[domain.RosterApparatus], 1)
}

func TestPublishExport(t *testing.T) {
	ctx := context.Background()
	fixed := core.ClockFunc(func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) })

	_, err := populated(t).PublishExport(ctx)
	require.ErrorIs(t, err, core.ErrNoBlobStore)

	t.Run("memory", func(t *testing.T) {
		store := blob.NewMemory()
		svc := populated(t, core.WithBlobStore(store), core.WithClock(fixed), core.WithWorkbook("/data/incidents.xlsx"))
		published, err := svc.PublishExport(ctx)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(published.Info.Key, "exports/2024-05-06/"), published.Info.Key)
		assert.True(t, strings.HasSuffix(published.Info.Key, ".xlsx"))
		assert.Empty(t, published.URL)
		assert.Equal(t, core.ContentTypeXLSX, published.Info.ContentType)
		assert.Equal(t, "3", published.Info.Metadata["incidents"])
		assert.Equal(t, "incidents.xlsx", published.Info.Metadata["source"])
		assert.Equal(t, "2024-05-06T07:08:09Z", published.Info.Metadata["generated_at"])

		listed, err := svc.ListExports(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, published.Info.Key, listed[0].Key)

		_, rc, err := svc.OpenExport(ctx, published.Info.Key)
		require.NoError(t, err)
		defer func() { _ = rc.Close() }()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		loaded, err := workbook.Read(bytes.NewReader(data), workbook.Options{})
		require.NoError(t, err)
		assert.Len(t, loaded.Snapshot.Incidents, 3)

		_, _, err = svc.OpenExport(ctx, "exports/missing.xlsx")
		require.ErrorIs(t, err, blob.ErrNotFound)
	})

	t.Run("s3", func(t *testing.T) {
		svc := populated(t, core.WithBlobStore(blob.NewS3Mock()), core.WithClock(fixed), core.WithURLExpiry(10*time.Minute))
		published, err := svc.PublishExport(ctx)
		require.NoError(t, err)
		assert.Contains(t, published.URL, "X-Amz-Signature")
		assert.Contains(t, published.URL, "X-Amz-Expires=600")
		assert.Positive(t, published.Info.Size)
	})

	t.Run("fs", func(t *testing.T) {
		store, err := blob.Open(ctx, blob.Config{Driver: "fs", FSRoot: t.TempDir(), FSBaseURL: "http://localhost:8080/files"})
		require.NoError(t, err)
		svc := populated(t, core.WithBlobStore(store), core.WithClock(fixed))
		published, err := svc.PublishExport(ctx)
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/files/"+published.Info.Key, published.URL)
	})
}

func TestResumeKeepsSessionJournal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "incidents.xlsx")
	journal := filepath.Join(dir, "session.db")
	require.NoError(t, populated(t).SaveWorkbookAs(ctx, path))

	cfg := core.StorageConfig{Driver: "sqlite", SQLitePath: journal}
	store, closer, err := core.OpenPersistentStore(ctx, cfg, nil)
	require.NoError(t, err)
	svc := core.NewService(store, core.WithWorkbook(path), core.WithResume(true))
	_, err = svc.LoadWorkbook(ctx)
	require.NoError(t, err)
	must(svc.CreateIncident(ctx, domain.Incident{Fields: incidentFields(20, "Alarm")}))(t)
	require.NoError(t, closer.Close())

	store, closer, err = core.OpenPersistentStore(ctx, cfg, nil)
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()
	resumed := core.NewService(store, core.WithWorkbook(path), core.WithResume(true))
	_, err = resumed.LoadWorkbook(ctx)
	require.NoError(t, err)
	assert.Len(t, resumed.ListIncidents(), 4, "journal edits should survive a restart")

	fresh := core.NewService(store, core.WithWorkbook(path))
	_, err = fresh.LoadWorkbook(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh.ListIncidents(), 3, "without resume the workbook wins")
}

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()
	store, closer, err := core.OpenPersistentStore(ctx, core.StorageConfig{}, nil)
	require.NoError(t, err)
	require.NoError(t, closer.Close())
	svc := core.NewService(store)
	must(svc.CreateIncident(ctx, domain.Incident{Fields: incidentFields(1, "Alarm")}))(t)

	_, _, err = core.OpenPersistentStore(ctx, core.StorageConfig{Driver: "dbase"}, nil)
	require.Error(t, err)
}

func TestExportKeepsFieldsAsEntered(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	created := must(svc.CreateIncident(ctx, domain.Incident{Fields: domain.Fields{
		"Date":      domain.DateOf(2024, time.June, 3),
		"Station":   domain.Text("007"),
		"FDID":      domain.Text("00123"),
		"Narrative": domain.Text("  Crew advanced a handline.  "),
	}}))(t)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, &buf))
	loaded, err := workbook.Read(&buf, workbook.Options{})
	require.NoError(t, err)

	got := loaded.Snapshot.Incidents[created.ID].Fields
	for _, name := range []string{"Station", "FDID", "Narrative"} {
		assert.Equal(t, domain.KindText, got.Get(name).Kind(), name)
		assert.Equal(t, created.Fields.Get(name).String(), got.Get(name).String(), name)
	}
}

func TestOpenExportRejectsKeysOutsideExports(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	_, err := store.Put(ctx, "private/roster.csv", strings.NewReader("id,name"), blob.PutOptions{})
	require.NoError(t, err)
	svc := core.NewInMemoryService(nil, core.WithBlobStore(store))

	for _, key := range []string{"private/roster.csv", "exports/../private/roster.csv", "exports/", ""} {
		_, _, err := svc.OpenExport(ctx, key)
		assert.ErrorIs(t, err, blob.ErrNotFound, key)
	}
}
