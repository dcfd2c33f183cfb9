package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"incidentdb/internal/blob/core"
)

func newPagedStore(t *testing.T, pageSize int) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{
		Bucket:          "test-bucket",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: newMockTransport(pageSize)},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_MockedBasicFlow(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	info, err := store.Put(ctx, "exports/2024-01-31/file.xlsx", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "text/plain", Metadata: map[string]string{"incidents": "2"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "exports/2024-01-31/file.xlsx" || info.ContentType != "text/plain" || info.Size != 5 {
		t.Fatalf("unexpected info %#v", info)
	}
	if info.Metadata["incidents"] != "2" {
		t.Fatalf("metadata not round-tripped: %#v", info.Metadata)
	}
	if _, err := store.Put(ctx, "exports/2024-01-31/file.xlsx", bytes.NewReader([]byte("again")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := store.Get(ctx, "exports/2024-01-31/file.xlsx")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" {
		t.Fatalf("get mismatch: %q", string(data))
	}
	url, err := store.DownloadURL(ctx, "exports/2024-01-31/file.xlsx", 0)
	if err != nil || !strings.Contains(url, "X-Amz-Signature") {
		t.Fatalf("presign: %v %s", err, url)
	}
	if ok, err := store.Delete(ctx, "exports/2024-01-31/file.xlsx"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "exports/2024-01-31/file.xlsx"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStore_MissingKeysMapToErrNotFound(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
}

func TestStore_ListPaginates(t *testing.T) {
	store := newPagedStore(t, 1)
	ctx := context.Background()
	for _, key := range []string{"exports/b.xlsx", "exports/a.xlsx", "other/c.xlsx"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte(key)), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "exports/a.xlsx" || list[1].Key != "exports/b.xlsx" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list, err := store.List(ctx, "none/"); err != nil || len(list) != 0 {
		t.Fatalf("expected empty list: %v %+v", err, list)
	}
}

func TestStore_NewValidatesAndUsesExpiry(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	store := newPagedStore(t, 0)
	if store.Driver() != core.DriverS3 || store.Bucket() != "test-bucket" {
		t.Fatalf("unexpected driver/bucket")
	}
	url, err := store.DownloadURL(context.Background(), "k.xlsx", 30*time.Second)
	if err != nil || !strings.Contains(url, "X-Amz-Expires=30") {
		t.Fatalf("expected 30s expiry in %s (%v)", url, err)
	}
}

func TestDecodeChunked(t *testing.T) {
	if _, ok := decodeChunked([]byte("not-chunked")); ok {
		t.Fatalf("expected plain payload to be rejected")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected decode hello")
	}
}
