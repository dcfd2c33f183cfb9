package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"incidentdb/internal/infra/persistence/memory"
	"incidentdb/internal/infra/persistence/postgres/testutil"
	"incidentdb/pkg/domain"
)

func openJournal(t *testing.T) (*sql.DB, *testutil.Journal) {
	t.Helper()
	db, conn := testutil.NewJournalDB()
	restore := OverrideSQLOpen(func(driver, _ string) (*sql.DB, error) {
		if driver != "pgx" {
			t.Fatalf("unexpected driver %s", driver)
		}
		return db, nil
	})
	t.Cleanup(restore)
	return db, conn
}

func TestNewStoreCreatesStateTable(t *testing.T) {
	_, conn := openJournal(t)
	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.Resumed() {
		t.Fatalf("empty state table must not resume")
	}
	if len(conn.Statements) == 0 || !strings.Contains(strings.ToUpper(conn.Statements[0]), "CREATE TABLE IF NOT EXISTS STATE") {
		t.Fatalf("expected state table DDL, got %v", conn.Statements)
	}
}

func TestRunInTransactionPersistsEveryBucket(t *testing.T) {
	_, conn := openJournal(t)
	store, err := NewStore(context.Background(), "ignored", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateIncident(domain.Incident{ID: 12, Fields: domain.Fields{"Date": domain.DateOf(2024, time.May, 1)}})
		return err
	}); err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if got := conn.Buckets(); len(got) != len(memory.Buckets) {
		t.Fatalf("expected %d buckets, got %v", len(memory.Buckets), got)
	}
	payload, ok := conn.Payload("incidents")
	if !ok {
		t.Fatalf("incidents bucket not written")
	}
	var incidents map[int]domain.Incident
	if err := json.Unmarshal(payload, &incidents); err != nil {
		t.Fatalf("decode incidents: %v", err)
	}
	if _, ok := incidents[12]; !ok {
		t.Fatalf("incident 12 missing from payload")
	}
}

func TestNewStoreResumesFromSnapshot(t *testing.T) {
	_, conn := openJournal(t)
	first, err := NewStore(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	snap := memory.Snapshot{Incidents: map[int]domain.Incident{3: {Fields: domain.Fields{"City": domain.Text("Brockway")}}}}
	if err := first.Replace(context.Background(), snap); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	second, err := NewStore(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewStore (resume): %v", err)
	}
	if !second.Resumed() {
		t.Fatalf("expected resume from buckets %v", conn.Buckets())
	}
	inc, ok := second.GetIncident(3)
	if !ok || inc.Fields.Text("City") != "Brockway" {
		t.Fatalf("incident not restored: %+v", inc)
	}
}

func TestStoreSurfacesDriverFailures(t *testing.T) {
	_, conn := openJournal(t)
	conn.FailPing = true
	if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping failure, got %v", err)
	}
	conn.FailPing = false

	store, err := NewStore(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.FailBegin = true
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateIncident(domain.Incident{})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "begin tx") {
		t.Fatalf("expected begin failure, got %v", err)
	}
	conn.FailBegin = false
	conn.FailCommit = true
	if err := store.Replace(context.Background(), memory.Snapshot{}); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
}

func TestOpenErrorIsWrapped(t *testing.T) {
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("boom") })
	defer restore()
	if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected wrapped open error, got %v", err)
	}
}

func TestCorruptPayloadFailsLoad(t *testing.T) {
	_, conn := openJournal(t)
	conn.SetPayload("incidents", []byte("{not json"))
	if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "decode incidents") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestJournalFailureKeepsMemoryChange(t *testing.T) {
	_, conn := openJournal(t)
	store, err := NewStore(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	create := func(city string) error {
		_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, err := tx.CreateIncident(domain.Incident{Fields: domain.Fields{"City": domain.Text(city)}})
			return err
		})
		return err
	}

	conn.FailUpsert = true
	err = create("Ogdenville")
	if !errors.Is(err, domain.ErrJournal) {
		t.Fatalf("expected ErrJournal, got %v", err)
	}
	if _, ok := store.GetIncident(1); !ok {
		t.Fatalf("memory change must survive a journal failure")
	}
	if _, ok := conn.Payload("incidents"); ok {
		t.Fatalf("failed write must not reach the journal")
	}

	conn.FailUpsert = false
	if err := create("North Haverbrook"); err != nil {
		t.Fatalf("create: %v", err)
	}
	payload, _ := conn.Payload("incidents")
	var incidents map[int]domain.Incident
	if err := json.Unmarshal(payload, &incidents); err != nil {
		t.Fatalf("decode incidents: %v", err)
	}
	if len(incidents) != 2 {
		t.Fatalf("journal should catch up with both incidents, got %d", len(incidents))
	}
}
