package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/config"
	"github.com/ajitpratap0/bulkflow/pkg/dialect"
	"github.com/ajitpratap0/bulkflow/pkg/logger"
)

// PgxConn is satisfied by *pgx.Conn, *pgxpool.Conn and pgx.Tx.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

var (
	_ PgxConn = (*pgx.Conn)(nil)
	_ PgxConn = (*pgxpool.Conn)(nil)
	_ PgxConn = (pgx.Tx)(nil)
)

// PgxSession runs bulk operations over one pgx connection using COPY FROM
// STDIN. PostgreSQL COPY always checks constraints and fires triggers, so
// those flags need no translation; TableLock is issued as a LOCK TABLE
// statement by the caller.
type PgxSession struct {
	conn    PgxConn
	tx      pgx.Tx
	timeout time.Duration
	release func()
}

var _ Session = (*PgxSession)(nil)

// NewPgx wraps a pgx connection. A zero timeout selects the default.
func NewPgx(conn PgxConn, timeout time.Duration) *PgxSession {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &PgxSession{conn: conn, timeout: timeout}
}

// NewPool builds a pgx pool from database configuration and checks it with
// a ping.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, bulkerrors.New(bulkerrors.ErrorTypeConfig, "connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeConfig, "failed to parse PostgreSQL connection string")
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeConnection, "failed to create PostgreSQL connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeConnection, "PostgreSQL ping failed")
	}

	logger.WithContext(ctx).Info("PostgreSQL connection pool created",
		zap.Int32("max_connections", poolConfig.MaxConns))

	return pool, nil
}

// AcquirePgx pins a pooled connection into a session. Close releases it.
func AcquirePgx(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) (*PgxSession, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeConnection, "failed to acquire connection")
	}
	s := NewPgx(conn, timeout)
	s.release = conn.Release
	return s, nil
}

// Close releases a pooled connection. Sessions built with NewPgx leave the
// connection to the caller.
func (s *PgxSession) Close() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

func (s *PgxSession) Dialect() dialect.Dialect { return dialect.Postgres() }

func (s *PgxSession) CommandTimeout() time.Duration { return s.timeout }

func (s *PgxSession) InTransaction() bool { return s.tx != nil }

func (s *PgxSession) current() PgxConn {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

func (s *PgxSession) Exec(ctx context.Context, sql string, args ...any) (Result, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tag, err := s.current().Exec(ctx, sql, args...)
	if err != nil {
		return Result{}, wrapError(err, "statement failed")
	}
	return Result{RowsAffected: tag.RowsAffected()}, nil
}

func (s *PgxSession) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	rows, err := s.current().Query(ctx, sql, args...)
	if err != nil {
		cancel()
		return nil, wrapError(err, "query failed")
	}
	return &pgxRows{rows: rows, cancel: cancel}, nil
}

func (s *PgxSession) CopyFrom(ctx context.Context, req CopyRequest, src CopySource) (int64, error) {
	ctx, cancel := withTimeout(ctx, timeoutFor(req.Timeout, s.timeout))
	defer cancel()

	n, err := s.current().CopyFrom(ctx, identifier(req.Table), req.Columns, src)
	if err != nil {
		return n, wrapError(err, "bulk copy failed")
	}
	return n, nil
}

func (s *PgxSession) Begin(ctx context.Context) (Tx, error) {
	if s.tx != nil {
		return nil, bulkerrors.New(bulkerrors.ErrorTypeInternal, "transaction already active")
	}
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, wrapError(err, "begin failed")
	}
	s.tx = tx
	return &pgxTx{session: s, tx: tx}, nil
}

type pgxTx struct {
	session *PgxSession
	tx      pgx.Tx
}

func (t *pgxTx) Commit(ctx context.Context) error {
	defer t.done()
	return t.tx.Commit(ctx)
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	defer t.done()
	return t.tx.Rollback(ctx)
}

func (t *pgxTx) done() {
	if t.session.tx == t.tx {
		t.session.tx = nil
	}
}

type pgxRows struct {
	rows   pgx.Rows
	cancel context.CancelFunc
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Values() ([]any, error) { return r.rows.Values() }
func (r *pgxRows) Err() error             { return wrapError(r.rows.Err(), "reading rows failed") }

func (r *pgxRows) Close() {
	r.rows.Close()
	r.cancel()
}

func identifier(t dialect.Table) pgx.Identifier {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}
	}
	return pgx.Identifier{t.Schema, t.Name}
}

func isPgConnectionError(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
