package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/bulkflow/pkg/dialect"
	"github.com/ajitpratap0/bulkflow/pkg/session"
)

// Statement is one recorded Exec or Query.
type Statement struct {
	SQL   string
	Args  []any
	Query bool
}

// Copy is one recorded bulk copy with the rows it received.
type Copy struct {
	Request session.CopyRequest
	Rows    [][]any
}

// Event names recorded in FakeSession.Log besides statement text.
const (
	EventBegin    = "BEGIN"
	EventCommit   = "COMMIT"
	EventRollback = "ROLLBACK"
	EventCopy     = "COPY"
)

// FakeSession is an in-memory session.Session that records everything it
// is asked to do. Hooks script results; without hooks statements affect
// no rows, queries return nothing and copies accept every row.
type FakeSession struct {
	mu sync.Mutex

	SQLDialect dialect.Dialect
	Timeout    time.Duration

	ExecFunc  func(ctx context.Context, sql string, args []any) (session.Result, error)
	QueryFunc func(ctx context.Context, sql string, args []any) ([][]any, error)
	CopyFunc  func(ctx context.Context, req session.CopyRequest, rows [][]any) (int64, error)
	BeginErr  error
	CommitErr error

	Log        []string
	Statements []Statement
	Copies     []Copy
	Commits    int
	Rollbacks  int

	tx bool
}

var _ session.Session = (*FakeSession)(nil)

// NewFakeSession returns a PostgreSQL-flavoured fake.
func NewFakeSession() *FakeSession {
	return &FakeSession{SQLDialect: dialect.Postgres(), Timeout: session.DefaultCommandTimeout}
}

func (f *FakeSession) Dialect() dialect.Dialect { return f.SQLDialect }

func (f *FakeSession) CommandTimeout() time.Duration { return f.Timeout }

func (f *FakeSession) InTransaction() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tx
}

func (f *FakeSession) record(entry string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Log = append(f.Log, entry)
}

func (f *FakeSession) Exec(ctx context.Context, sql string, args ...any) (session.Result, error) {
	if err := ctx.Err(); err != nil {
		return session.Result{}, err
	}
	f.record(sql)
	f.mu.Lock()
	f.Statements = append(f.Statements, Statement{SQL: sql, Args: args})
	f.mu.Unlock()
	if f.ExecFunc != nil {
		return f.ExecFunc(ctx, sql, args)
	}
	return session.Result{}, nil
}

func (f *FakeSession) Query(ctx context.Context, sql string, args ...any) (session.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.record(sql)
	f.mu.Lock()
	f.Statements = append(f.Statements, Statement{SQL: sql, Args: args, Query: true})
	f.mu.Unlock()
	var rows [][]any
	if f.QueryFunc != nil {
		var err error
		if rows, err = f.QueryFunc(ctx, sql, args); err != nil {
			return nil, err
		}
	}
	return &FakeRows{rows: rows, pos: -1}, nil
}

func (f *FakeSession) CopyFrom(ctx context.Context, req session.CopyRequest, src session.CopySource) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	f.record(EventCopy + " " + req.Table.String())

	var rows [][]any
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return 0, err
		}
		rows = append(rows, append([]any(nil), values...))
	}
	if err := src.Err(); err != nil {
		return 0, err
	}

	f.mu.Lock()
	f.Copies = append(f.Copies, Copy{Request: req, Rows: rows})
	f.mu.Unlock()

	if f.CopyFunc != nil {
		return f.CopyFunc(ctx, req, rows)
	}
	return int64(len(rows)), nil
}

func (f *FakeSession) Begin(ctx context.Context) (session.Tx, error) {
	if f.BeginErr != nil {
		return nil, f.BeginErr
	}
	f.record(EventBegin)
	f.mu.Lock()
	f.tx = true
	f.mu.Unlock()
	return &fakeTx{f: f}, nil
}

// StatementsMatching returns the recorded statements with the given prefix.
func (f *FakeSession) StatementsMatching(prefix string) []Statement {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Statement
	for _, s := range f.Statements {
		if strings.HasPrefix(s.SQL, prefix) {
			out = append(out, s)
		}
	}
	return out
}

type fakeTx struct {
	f *FakeSession
}

func (t *fakeTx) Commit(context.Context) error {
	t.f.record(EventCommit)
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	t.f.tx = false
	if t.f.CommitErr != nil {
		return t.f.CommitErr
	}
	t.f.Commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.f.record(EventRollback)
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	t.f.tx = false
	t.f.Rollbacks++
	return nil
}

// FakeRows iterates scripted query results.
type FakeRows struct {
	rows   [][]any
	pos    int
	closed bool
}

// NewFakeRows builds a result set from literal rows.
func NewFakeRows(rows ...[]any) *FakeRows {
	return &FakeRows{rows: rows, pos: -1}
}

func (r *FakeRows) Next() bool {
	if r.closed || r.pos+1 >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *FakeRows) Values() ([]any, error) { return r.rows[r.pos], nil }
func (r *FakeRows) Err() error             { return nil }
func (r *FakeRows) Close()                 { r.closed = true }

// Closed reports whether Close was called.
func (r *FakeRows) Closed() bool { return r.closed }
