// Package testutil provides a stub database driver that understands the
// handful of statements the postgres state store issues.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
)

const (
	createState = "CREATE TABLE IF NOT EXISTS STATE"
	selectState = "SELECT BUCKET, PAYLOAD FROM STATE"
	upsertState = "INSERT INTO STATE(BUCKET,PAYLOAD) VALUES($1,$2) ON CONFLICT(BUCKET) DO UPDATE SET PAYLOAD=EXCLUDED.PAYLOAD"
)

var driverSeq atomic.Int64

// StubConn holds the state table as bucket to payload. Upserts issued inside
// a transaction become visible on commit and are dropped on rollback.
type StubConn struct {
	Execs      []string
	State      map[string]any
	FailExec   bool
	FailCommit bool
	RowsErr    error

	pending map[string]any
}

// NewStubDB registers a sql.DB backed by a fresh stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{State: make(map[string]any)}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailExec {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	c.pending = make(map[string]any)
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	switch stmt := normalize(query); {
	case strings.HasPrefix(stmt, createState):
		return driver.RowsAffected(0), nil
	case stmt == upsertState:
		if len(args) != 2 {
			return nil, fmt.Errorf("upsert expects 2 args, got %d", len(args))
		}
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("bucket must be text, got %T", args[0].Value)
		}
		target := c.State
		if c.pending != nil {
			target = c.pending
		}
		target[bucket] = args[1].Value
		return driver.RowsAffected(1), nil
	default:
		return nil, fmt.Errorf("unsupported statement: %s", query)
	}
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if normalize(query) != selectState {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	buckets := make([]string, 0, len(c.State))
	for bucket := range c.State {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)
	rows := make([][]driver.Value, 0, len(buckets))
	for _, bucket := range buckets {
		rows = append(rows, []driver.Value{bucket, c.State[bucket]})
	}
	return &stubRows{rows: rows, err: c.RowsErr}, nil
}

// normalize upper-cases the statement and collapses runs of whitespace.
func normalize(query string) string {
	return strings.ToUpper(strings.Join(strings.Fields(query), " "))
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	pending := t.conn.pending
	t.conn.pending = nil
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	for bucket, payload := range pending {
		t.conn.State[bucket] = payload
	}
	return nil
}

func (t *stubTx) Rollback() error {
	t.conn.pending = nil
	return nil
}

type stubRows struct {
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
