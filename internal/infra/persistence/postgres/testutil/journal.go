// Package testutil provides a database/sql driver that fakes the postgres
// journal's state table in memory.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var journalSeq atomic.Int64

// Journal holds the committed state rows by bucket. Upserts issued inside a
// transaction become visible only on commit.
type Journal struct {
	// Statements lists every statement executed, in order.
	Statements []string

	FailPing   bool
	FailBegin  bool
	FailUpsert bool
	FailCommit bool

	mu       sync.Mutex
	payloads map[string][]byte
	pending  map[string][]byte
}

// NewJournalDB registers a fresh driver and returns a handle backed by it.
func NewJournalDB() (*sql.DB, *Journal) {
	j := &Journal{payloads: map[string][]byte{}}
	name := fmt.Sprintf("journal-%d", journalSeq.Add(1))
	sql.Register(name, journalDriver{j: j})
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	return db, j
}

// Payload returns the committed payload of bucket.
func (j *Journal) Payload(bucket string) ([]byte, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	data, ok := j.payloads[bucket]
	return data, ok
}

// Buckets returns the committed bucket names in order.
func (j *Journal) Buckets() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.payloads))
	for b := range j.payloads {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// SetPayload stores a committed row directly.
func (j *Journal) SetPayload(bucket string, data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.payloads[bucket] = data
}

type journalDriver struct{ j *Journal }

func (d journalDriver) Open(string) (driver.Conn, error) { return &conn{j: d.j}, nil }

type conn struct{ j *Journal }

var (
	_ driver.Pinger         = (*conn)(nil)
	_ driver.ConnBeginTx    = (*conn)(nil)
	_ driver.ExecerContext  = (*conn)(nil)
	_ driver.QueryerContext = (*conn)(nil)
)

func (c *conn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare not supported") }
func (c *conn) Close() error                        { return nil }
func (c *conn) Begin() (driver.Tx, error)           { return c.BeginTx(context.Background(), driver.TxOptions{}) }

func (c *conn) Ping(context.Context) error {
	if c.j.FailPing {
		return errors.New("connection refused")
	}
	return nil
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.j.FailBegin {
		return nil, errors.New("cannot begin")
	}
	c.j.mu.Lock()
	defer c.j.mu.Unlock()
	c.j.pending = map[string][]byte{}
	return tx{j: c.j}, nil
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.j.mu.Lock()
	defer c.j.mu.Unlock()
	c.j.Statements = append(c.j.Statements, query)
	stmt := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(stmt, "CREATE TABLE"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(stmt, "INSERT INTO STATE"):
		if c.j.FailUpsert {
			return nil, errors.New("disk full")
		}
		if len(args) != 2 {
			return nil, fmt.Errorf("state upsert wants 2 args, got %d", len(args))
		}
		bucket, ok := args[0].Value.(string)
		data, ok2 := args[1].Value.([]byte)
		if !ok || !ok2 {
			return nil, fmt.Errorf("state upsert args %T, %T", args[0].Value, args[1].Value)
		}
		row := append([]byte(nil), data...)
		if c.j.pending != nil {
			c.j.pending[bucket] = row
		} else {
			c.j.payloads[bucket] = row
		}
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unsupported statement: %s", query)
}

func (c *conn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.j.mu.Lock()
	defer c.j.mu.Unlock()
	c.j.Statements = append(c.j.Statements, query)
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT BUCKET, PAYLOAD FROM STATE") {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	buckets := make([]string, 0, len(c.j.payloads))
	for b := range c.j.payloads {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	r := &rows{}
	for _, b := range buckets {
		r.values = append(r.values, []driver.Value{b, c.j.payloads[b]})
	}
	return r, nil
}

type tx struct{ j *Journal }

func (t tx) Commit() error {
	t.j.mu.Lock()
	defer t.j.mu.Unlock()
	pending := t.j.pending
	t.j.pending = nil
	if t.j.FailCommit {
		return errors.New("serialization failure")
	}
	for b, data := range pending {
		t.j.payloads[b] = data
	}
	return nil
}

func (t tx) Rollback() error {
	t.j.mu.Lock()
	defer t.j.mu.Unlock()
	t.j.pending = nil
	return nil
}

type rows struct {
	values [][]driver.Value
	next   int
}

func (r *rows) Columns() []string { return []string{"bucket", "payload"} }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.next])
	r.next++
	return nil
}
