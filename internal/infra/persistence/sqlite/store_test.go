package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"incidentdb/internal/infra/persistence/memory"
	"incidentdb/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if store.Resumed() {
		t.Fatalf("fresh journal must not report resumed")
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		inc, err := tx.CreateIncident(domain.Incident{Fields: domain.Fields{"Date": domain.DateOf(2024, time.March, 3)}})
		if err != nil {
			return err
		}
		_, err = tx.CreateChild(domain.ChildRecord{Kind: domain.ChildAction, IncidentID: inc.ID, Fields: domain.Fields{"Action": domain.Text("Extinguish")}})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = store.Close()

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if !reloaded.Resumed() {
		t.Fatalf("expected journal to be resumed")
	}
	if got := len(reloaded.ListIncidents()); got != 1 {
		t.Fatalf("expected 1 incident, got %d", got)
	}
	rows := reloaded.ListChildren(domain.ChildAction, 1)
	if len(rows) != 1 || rows[0].Fields.Text("Action") != "Extinguish" {
		t.Fatalf("child row not journaled: %+v", rows)
	}
	inc, _ := reloaded.GetIncident(1)
	if d, ok := inc.Date(); !ok || d.Day() != 3 {
		t.Fatalf("date not restored: %v", inc.Fields.Get("Date"))
	}
}

func TestSQLiteStoreReplaceRewritesJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	snap := memory.Snapshot{
		Incidents: map[int]domain.Incident{7: {Fields: domain.Fields{"City": domain.Text("Ogdenville")}}},
		Lookups:   map[domain.LookupKind][]domain.LookupEntry{domain.LookupStates: {{Code: "OR", Label: "Oregon"}}},
	}
	if err := store.Replace(context.Background(), snap); err != nil {
		t.Fatalf("replace: %v", err)
	}
	var buckets int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&buckets); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if buckets != len(memory.Buckets) {
		t.Fatalf("expected %d buckets, got %d", len(memory.Buckets), buckets)
	}
	_ = store.Close()

	reloaded, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	inc, ok := reloaded.GetIncident(7)
	if !ok || inc.ID != 7 || inc.Fields.Text("City") != "Ogdenville" {
		t.Fatalf("incident 7 not restored: %+v", inc)
	}
	if got := reloaded.Lookup(domain.LookupStates); len(got) != 1 || got[0].Label != "Oregon" {
		t.Fatalf("lookup not restored: %+v", got)
	}
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
}

func TestSQLiteStoreFailedTransactionDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateChild(domain.ChildRecord{Kind: domain.ChildTime, IncidentID: 3})
		return err
	})
	if err == nil {
		t.Fatalf("expected missing parent error")
	}
	var rows int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 0 {
		t.Fatalf("failed transaction must not write the journal, got %d rows", rows)
	}
	_ = store.Close()
}

func TestSQLiteJournalFailureWrapsErrJournal(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "journal.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if err := store.DB().Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateIncident(domain.Incident{Fields: domain.Fields{"City": domain.Text("Capital City")}})
		return err
	})
	if !errors.Is(err, domain.ErrJournal) {
		t.Fatalf("expected ErrJournal, got %v", err)
	}
	if _, ok := store.GetIncident(1); !ok {
		t.Fatalf("incident must stay in memory after a journal failure")
	}
}
