// Package session abstracts the single database connection a bulk operation
// runs on: statements, queries, the native bulk copy and transactions.
//
// A Session pins one physical connection because staging tables are
// connection scoped. Implementations exist for pgx (PostgreSQL COPY) and
// database/sql with go-sql-driver/mysql (LOAD DATA LOCAL INFILE).
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/config"
	"github.com/ajitpratap0/bulkflow/pkg/dialect"
	"github.com/ajitpratap0/bulkflow/pkg/logger"
)

// DefaultCommandTimeout bounds each statement and copy unless overridden.
const DefaultCommandTimeout = config.DefaultCommandTimeout

// CopyOptions are the native bulk copy flags.
type CopyOptions uint8

const (
	CheckConstraints CopyOptions = 1 << iota
	FireTriggers
	KeepIdentity
	KeepNulls
	TableLock
)

// CopyOptionsNone is the empty flag set.
const CopyOptionsNone CopyOptions = 0

var copyOptionNames = []struct {
	flag CopyOptions
	name string
}{
	{CheckConstraints, "check_constraints"},
	{FireTriggers, "fire_triggers"},
	{KeepIdentity, "keep_identity"},
	{KeepNulls, "keep_nulls"},
	{TableLock, "table_lock"},
}

// Has reports whether all bits of flag are set.
func (o CopyOptions) Has(flag CopyOptions) bool {
	return o&flag == flag
}

func (o CopyOptions) String() string {
	if o == CopyOptionsNone {
		return "none"
	}
	var parts []string
	for _, n := range copyOptionNames {
		if o.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// CopySource yields the rows of a bulk copy. pgx.CopyFromSource has the same
// method set.
type CopySource interface {
	Next() bool
	Values() ([]any, error)
	Err() error
}

// CopyRequest describes one bulk copy into a table.
type CopyRequest struct {
	Table   dialect.Table
	Columns []string
	Options CopyOptions
	// Timeout overrides the session command timeout for this copy
	Timeout time.Duration
}

// Result is the outcome of a statement.
type Result struct {
	RowsAffected int64
	// LastInsertID is set by drivers without RETURNING support
	LastInsertID int64
}

// Rows is a forward-only result set.
type Rows interface {
	Next() bool
	Values() ([]any, error)
	Err() error
	Close()
}

// Tx is an open transaction on a session.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Session is one pinned database connection.
type Session interface {
	Dialect() dialect.Dialect
	CommandTimeout() time.Duration
	Exec(ctx context.Context, sql string, args ...any) (Result, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	CopyFrom(ctx context.Context, req CopyRequest, src CopySource) (int64, error)
	Begin(ctx context.Context) (Tx, error)
	InTransaction() bool
}

// InTransaction runs fn inside the session's active transaction, or inside
// a new one that is committed when fn succeeds and rolled back otherwise.
func InTransaction(ctx context.Context, s Session, fn func(ctx context.Context) error) (err error) {
	if s.InTransaction() {
		return fn(ctx)
	}

	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			logger.WithContext(ctx).Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapError(err, "commit failed")
	}
	return nil
}

// withTimeout applies d to ctx when positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func timeoutFor(req, session time.Duration) time.Duration {
	if req > 0 {
		return req
	}
	return session
}

// wrapError classifies a driver error. Context errors become timeouts,
// everything else keeps its driver cause under ErrorTypeQuery unless it is
// a transport failure.
func wrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	var be *bulkerrors.Error
	if errors.As(err, &be) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return bulkerrors.Wrap(err, bulkerrors.ErrorTypeTimeout, message)
	case isConnectionError(err):
		return bulkerrors.Wrap(err, bulkerrors.ErrorTypeConnection, message)
	}
	return bulkerrors.Wrap(err, bulkerrors.ErrorTypeQuery, message)
}
