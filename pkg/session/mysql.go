package session

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/config"
	"github.com/ajitpratap0/bulkflow/pkg/dialect"
	"github.com/ajitpratap0/bulkflow/pkg/logger"
)

// SQLConn is satisfied by *sql.Conn and *sql.Tx.
type SQLConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

var (
	_ SQLConn = (*sql.Conn)(nil)
	_ SQLConn = (*sql.Tx)(nil)
)

// MySQLSession runs bulk operations over one database/sql connection to
// MySQL. Bulk copy streams rows through LOAD DATA LOCAL INFILE using a
// registered reader handler, so the server must allow local_infile.
//
// MySQL turns duplicate-key errors of a LOCAL load into warnings, so
// CheckConstraints cannot be enforced there.
type MySQLSession struct {
	conn    *sql.Conn
	tx      *sql.Tx
	timeout time.Duration
}

var _ Session = (*MySQLSession)(nil)

// NewMySQL wraps a pinned database/sql connection. A zero timeout selects
// the default.
func NewMySQL(conn *sql.Conn, timeout time.Duration) *MySQLSession {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &MySQLSession{conn: conn, timeout: timeout}
}

// OpenMySQL opens a MySQL connection pool from database configuration and
// checks it with a ping.
func OpenMySQL(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, bulkerrors.New(bulkerrors.ErrorTypeConfig, "connection string is required")
	}

	mycfg, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeConfig, "failed to parse MySQL connection string")
	}
	mycfg.ParseTime = true

	connector, err := mysql.NewConnector(mycfg)
	if err != nil {
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeConfig, "failed to create MySQL connector")
	}

	db := sql.OpenDB(connector)
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeConnection, "database ping failed")
	}

	logger.WithContext(ctx).Info("MySQL connection pool created",
		zap.String("addr", mycfg.Addr),
		zap.String("database", mycfg.DBName),
		zap.Int("max_connections", cfg.MaxConns))

	return db, nil
}

// AcquireMySQL pins a pooled connection into a session. Close returns it to
// the pool.
func AcquireMySQL(ctx context.Context, db *sql.DB, timeout time.Duration) (*MySQLSession, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, bulkerrors.Wrap(err, bulkerrors.ErrorTypeConnection, "failed to acquire connection")
	}
	return NewMySQL(conn, timeout), nil
}

// Close returns the connection to its pool.
func (s *MySQLSession) Close() error {
	return s.conn.Close()
}

func (s *MySQLSession) Dialect() dialect.Dialect { return dialect.MySQL() }

func (s *MySQLSession) CommandTimeout() time.Duration { return s.timeout }

func (s *MySQLSession) InTransaction() bool { return s.tx != nil }

func (s *MySQLSession) current() SQLConn {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

func (s *MySQLSession) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()
	return s.exec(ctx, query, args...)
}

func (s *MySQLSession) exec(ctx context.Context, query string, args ...any) (Result, error) {
	res, err := s.current().ExecContext(ctx, query, args...)
	if err != nil {
		return Result{}, wrapError(err, "statement failed")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Result{}, wrapError(err, "reading affected rows failed")
	}
	// LastInsertId is optional on drivers without auto increment
	lastID, _ := res.LastInsertId()
	return Result{RowsAffected: affected, LastInsertID: lastID}, nil
}

func (s *MySQLSession) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	rows, err := s.current().QueryContext(ctx, query, args...)
	if err != nil {
		cancel()
		return nil, wrapError(err, "query failed")
	}
	return &sqlRows{rows: rows, cancel: cancel}, nil
}

// CopyFrom streams src as tab separated text into LOAD DATA LOCAL INFILE.
func (s *MySQLSession) CopyFrom(ctx context.Context, req CopyRequest, src CopySource) (int64, error) {
	ctx, cancel := withTimeout(ctx, timeoutFor(req.Timeout, s.timeout))
	defer cancel()

	name := "bulkflow-" + uuid.NewString()
	pr, pw := io.Pipe()
	mysql.RegisterReaderHandler(name, func() io.Reader { return pr })
	defer mysql.DeregisterReaderHandler(name)

	written := make(chan error, 1)
	go func() {
		err := writeInfile(pw, src, len(req.Columns))
		_ = pw.CloseWithError(err)
		written <- err
	}()

	res, execErr := s.exec(ctx, loadDataStatement(name, req))
	// unblocks the writer when the server stopped reading early
	_ = pr.CloseWithError(io.ErrClosedPipe)
	writeErr := <-written

	if writeErr != nil && !errors.Is(writeErr, io.ErrClosedPipe) {
		return 0, writeErr
	}
	if execErr != nil {
		return 0, execErr
	}
	return res.RowsAffected, nil
}

func (s *MySQLSession) Begin(ctx context.Context) (Tx, error) {
	if s.tx != nil {
		return nil, bulkerrors.New(bulkerrors.ErrorTypeInternal, "transaction already active")
	}
	// database/sql rolls a tx back as soon as its ctx is done, which would
	// leave no way to drop staging tables; InTransaction ends it instead
	tx, err := s.conn.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, wrapError(err, "begin failed")
	}
	s.tx = tx
	return &sqlTx{session: s, tx: tx}, nil
}

type sqlTx struct {
	session *MySQLSession
	tx      *sql.Tx
}

// database/sql has no context-aware Commit or Rollback.
func (t *sqlTx) Commit(context.Context) error {
	defer t.done()
	return t.tx.Commit()
}

func (t *sqlTx) Rollback(context.Context) error {
	defer t.done()
	return t.tx.Rollback()
}

func (t *sqlTx) done() {
	if t.session.tx == t.tx {
		t.session.tx = nil
	}
}

type sqlRows struct {
	rows   *sql.Rows
	cancel context.CancelFunc
	cols   int
}

func (r *sqlRows) Next() bool { return r.rows.Next() }

func (r *sqlRows) Values() ([]any, error) {
	if r.cols == 0 {
		cols, err := r.rows.Columns()
		if err != nil {
			return nil, wrapError(err, "reading columns failed")
		}
		r.cols = len(cols)
	}
	values := make([]any, r.cols)
	ptrs := make([]any, r.cols)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, wrapError(err, "scanning row failed")
	}
	return values, nil
}

func (r *sqlRows) Err() error { return wrapError(r.rows.Err(), "reading rows failed") }

func (r *sqlRows) Close() {
	_ = r.rows.Close()
	r.cancel()
}

func loadDataStatement(handler string, req CopyRequest) string {
	d := dialect.MySQL()
	cols := make([]string, len(req.Columns))
	for i, c := range req.Columns {
		cols[i] = d.Quote(c)
	}
	return fmt.Sprintf("LOAD DATA LOCAL INFILE 'Reader::%s' INTO TABLE %s CHARACTER SET utf8mb4 "+
		`FIELDS TERMINATED BY '\t' ESCAPED BY '\\' LINES TERMINATED BY '\n' (%s)`,
		handler, d.QualifiedName(req.Table), strings.Join(cols, ", "))
}

func isMySQLConnectionError(err error) bool {
	return errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)
}

func isConnectionError(err error) bool {
	return isPgConnectionError(err) || isMySQLConnectionError(err)
}
