package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"incidentdb/internal/blob/core"
)

func newTempStore(t *testing.T, base string) *Store {
	t.Helper()
	store, err := New(t.TempDir(), base)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_PutGetHeadListDelete(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t, "")
	info, err := store.Put(ctx, "exports/2024-01-31/a.xlsx", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "text/plain", Metadata: map[string]string{"incidents": "3"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "exports/2024-01-31/a.xlsx" || info.Size != 5 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.URL != "http://local.blob/exports/2024-01-31/a.xlsx" {
		t.Fatalf("unexpected url %s", info.URL)
	}
	if _, err := store.Put(ctx, "exports/2024-01-31/a.xlsx", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	h, err := store.Head(ctx, "exports/2024-01-31/a.xlsx")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	g, rc, err := store.Get(ctx, "exports/2024-01-31/a.xlsx")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(b) != "hello" || g.ETag != h.ETag || g.Metadata["incidents"] != "3" {
		t.Fatalf("unexpected get artifacts %+v", g)
	}
	if _, err := store.Put(ctx, "other/b.txt", bytes.NewReader(nil), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Key != "exports/2024-01-31/a.xlsx" {
		t.Fatalf("unexpected list %+v", list)
	}
	ok, err := store.Delete(ctx, "exports/2024-01-31/a.xlsx")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "exports/2024-01-31/a.xlsx")
	if err != nil || ok {
		t.Fatalf("second delete should be false")
	}
	if _, _, err := store.Get(ctx, "exports/2024-01-31/a.xlsx"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_RejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t, "")
	for _, key := range []string{"../escape.txt", "/abs.txt", " ", "x.meta"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
			t.Fatalf("expected %q to be rejected", key)
		}
	}
	if _, err := store.DownloadURL(ctx, "../x", 0); err == nil {
		t.Fatalf("expected traversal error from DownloadURL")
	}
}

func TestStore_DownloadURLUsesBase(t *testing.T) {
	store := newTempStore(t, "http://127.0.0.1:8080/downloads")
	url, err := store.DownloadURL(context.Background(), "exports/x.xlsx", 0)
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	if url != "http://127.0.0.1:8080/downloads/exports/x.xlsx" {
		t.Fatalf("unexpected url %s", url)
	}
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("unexpected driver")
	}
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestStore_PutFailureLeavesNothingBehind(t *testing.T) {
	store := newTempStore(t, "")
	if _, err := store.Put(context.Background(), "bad.bin", errorReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty root, got %d entries", len(entries))
	}
}
