// Package processor moves item sequences into and out of a table through
// the session's native bulk copy.
//
// A run has four phases:
//
//   - prepare: create the staging table when generated values must be read
//     back or rows are deleted, and take the table lock if requested
//   - transfer: stream the inbound columns of every item through CopyFrom
//   - commit: insert from staging returning generated values, or delete by
//     joining on the key columns
//   - cleanup: drop the staging table
//
// Inserts without values to read back copy straight into the target.
package processor

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/cursor"
	"github.com/ajitpratap0/bulkflow/pkg/dialect"
	"github.com/ajitpratap0/bulkflow/pkg/logger"
	"github.com/ajitpratap0/bulkflow/pkg/metrics"
	"github.com/ajitpratap0/bulkflow/pkg/observability"
	"github.com/ajitpratap0/bulkflow/pkg/plan"
	"github.com/ajitpratap0/bulkflow/pkg/session"
)

// Phase names used for metrics, spans and logs.
const (
	PhasePrepare  = "prepare"
	PhaseTransfer = "transfer"
	PhaseCommit   = "commit"
	PhaseCleanup  = "cleanup"
)

// cleanupTimeout bounds the staging drop issued after ctx was cancelled.
const cleanupTimeout = 5 * time.Second

// Options configure a processor.
type Options struct {
	// IdentityInsert keeps caller-supplied key values
	IdentityInsert bool
	// Extra flags added to the operation defaults, typically from config
	Extra session.CopyOptions
	// CopyOptions replaces the computed flag set when set
	CopyOptions func(session.CopyOptions) session.CopyOptions
	// Setup adjusts the copy request right before the transfer
	Setup  func(*session.CopyRequest)
	Logger *zap.Logger
}

// Processor runs one bulk operation kind over a column provider.
type Processor[T any] struct {
	op       plan.Operation
	provider plan.Provider
	opts     Options
}

// NewInsert creates an insert processor.
func NewInsert[T any](p plan.Provider, opts Options) *Processor[T] {
	return &Processor[T]{op: plan.Insert, provider: p, opts: opts}
}

// NewDelete creates a delete processor. The provider's inbound columns
// must include the key columns.
func NewDelete[T any](p plan.Provider, opts Options) *Processor[T] {
	return &Processor[T]{op: plan.Delete, provider: p, opts: opts}
}

// Operation returns the processor's operation.
func (p *Processor[T]) Operation() plan.Operation { return p.op }

// CopyOptions returns the flags the transfer runs with. Inserts check
// constraints and fire triggers; deletes and identity inserts also keep
// identity values.
func (p *Processor[T]) CopyOptions() session.CopyOptions {
	opts := session.CheckConstraints | session.FireTriggers
	if p.op == plan.Delete || p.opts.IdentityInsert {
		opts |= session.KeepIdentity
	}
	opts |= p.opts.Extra
	if p.opts.CopyOptions != nil {
		opts = p.opts.CopyOptions(opts)
	}
	return opts
}

// Process runs the operation for items inside the session's transaction,
// or a new one, and returns the affected row count. For inserts that read
// generated values back, those values are written into the items.
func (p *Processor[T]) Process(ctx context.Context, s session.Session, items iter.Seq[T]) (int64, error) {
	table := dialect.Table{Schema: p.provider.Schema(), Name: p.provider.Table()}

	id := logger.OperationID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	ctx = logger.WithOperation(ctx, id, p.op.String(), table.String())

	base := p.opts.Logger
	if base == nil {
		base = logger.Get()
	}

	r := &run[T]{
		processor: p,
		session:   s,
		dialect:   s.Dialect(),
		target:    table,
		log:       logger.FromContext(ctx, base),
		collector: metrics.NewCollector(p.op.String(), table.String()),
	}

	var affected int64
	err := session.InTransaction(ctx, s, func(ctx context.Context) error {
		var err error
		affected, err = r.execute(ctx, items)
		return err
	})
	r.collector.Done(err)
	if err != nil {
		return 0, err
	}
	r.collector.AddAffected(affected)
	return affected, nil
}

type run[T any] struct {
	processor *Processor[T]
	session   session.Session
	dialect   dialect.Dialect
	target    dialect.Table
	log       *zap.Logger
	collector *metrics.Collector

	options  session.CopyOptions
	inbound  []*plan.Column
	outbound []*plan.Column
	staging  dialect.Table
	staged   bool
}

func (r *run[T]) execute(ctx context.Context, items iter.Seq[T]) (n int64, err error) {
	if err := r.split(); err != nil {
		return 0, err
	}

	cur := cursor.New(items, r.inbound, len(r.outbound) > 0)
	defer cur.Close()

	defer func() {
		if r.staged {
			r.cleanup(ctx)
		}
	}()

	if _, err := r.phase(ctx, PhasePrepare, r.prepare); err != nil {
		return 0, err
	}

	copied, err := r.phase(ctx, PhaseTransfer, func(ctx context.Context) (int64, error) {
		return r.transfer(ctx, cur)
	})
	if err != nil {
		return 0, err
	}

	return r.phase(ctx, PhaseCommit, func(ctx context.Context) (int64, error) {
		return r.commit(ctx, cur, copied)
	})
}

// split divides the provider's columns into the transfer and read-back sets.
func (r *run[T]) split() error {
	p := r.processor
	r.options = p.CopyOptions()
	columns := p.provider.Columns()

	r.inbound = plan.Inbound(columns)
	if p.op == plan.Insert {
		if !r.options.Has(session.KeepIdentity) {
			r.inbound = withoutIdentity(r.inbound)
		}
		r.outbound = plan.Outbound(columns)
	}

	if len(r.inbound) == 0 {
		return bulkerrors.Newf(bulkerrors.ErrorTypeUnsupported, "bulk %s of %s has no columns to transfer", p.op, r.target)
	}
	if len(r.outbound) > 0 && !r.dialect.SupportsReturning() {
		return bulkerrors.Newf(bulkerrors.ErrorTypeUnsupported,
			"%s cannot read generated values back from a bulk insert; disable value propagation", r.dialect.Name())
	}
	if p.op == plan.Delete && len(r.keys()) == 0 {
		return bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "bulk delete of %s has no key columns", r.target)
	}
	return nil
}

func (r *run[T]) useStaging() bool {
	return r.processor.op == plan.Delete || len(r.outbound) > 0
}

func (r *run[T]) keys() []*plan.Column {
	return plan.Keys(r.inbound)
}

func (r *run[T]) prepare(ctx context.Context) (int64, error) {
	if r.useStaging() {
		r.staging = r.dialect.StagingTable(r.target, r.processor.op.String())
		if !r.dialect.TransactionScopedStaging() {
			// a connection-scoped leftover would make the create fail
			if _, err := r.session.Exec(ctx, r.dialect.DropStaging(r.staging)); err != nil {
				return 0, bulkerrors.Wrap(err, bulkerrors.TypeOf(err), "dropping stale staging table failed")
			}
		}
		stmt := r.dialect.CreateStaging(r.staging, r.target, plan.Names(r.inbound))
		if _, err := r.session.Exec(ctx, stmt); err != nil {
			return 0, bulkerrors.Wrap(err, bulkerrors.TypeOf(err), "creating staging table failed")
		}
		r.staged = true
	}

	if r.options.Has(session.TableLock) {
		if stmt := r.dialect.LockTable(r.target); stmt != "" {
			if _, err := r.session.Exec(ctx, stmt); err != nil {
				return 0, bulkerrors.Wrap(err, bulkerrors.TypeOf(err), "locking table failed")
			}
		}
	}
	return 0, nil
}

func (r *run[T]) transfer(ctx context.Context, cur *cursor.Cursor[T]) (int64, error) {
	dest := r.target
	if r.staged {
		dest = r.staging
	}

	req := session.CopyRequest{
		Table:   dest,
		Columns: plan.Names(r.inbound),
		Options: r.options,
		Timeout: r.session.CommandTimeout(),
	}
	if r.processor.opts.Setup != nil {
		r.processor.opts.Setup(&req)
	}

	n, err := r.session.CopyFrom(ctx, req, cur)
	r.collector.AddTransferred(n)
	return n, err
}

func (r *run[T]) commit(ctx context.Context, cur *cursor.Cursor[T], copied int64) (int64, error) {
	switch {
	case r.processor.op == plan.Delete:
		stmt := r.dialect.DeleteFromStaging(r.target, r.staging, plan.Names(r.keys()))
		res, err := r.session.Exec(ctx, stmt)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected, nil

	case r.staged:
		return r.insertReturning(ctx, cur.Tracked())
	}
	return copied, nil
}

// insertReturning moves the staged rows into the target and writes the
// returned values into the tracked items by position.
func (r *run[T]) insertReturning(ctx context.Context, items []T) (int64, error) {
	stmt, err := r.dialect.InsertFromStaging(r.target, r.staging,
		plan.Names(r.inbound), plan.Names(r.outbound), hasIdentity(r.inbound))
	if err != nil {
		return 0, err
	}

	rows, err := r.session.Query(ctx, stmt)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	completer, _ := r.processor.provider.(plan.Completer)
	var n int64
	for rows.Next() {
		if n >= int64(len(items)) {
			return n, bulkerrors.Newf(bulkerrors.ErrorTypeInternal,
				"insert returned more rows than the %d transferred", len(items))
		}
		values, err := rows.Values()
		if err != nil {
			return n, err
		}
		if len(values) != len(r.outbound) {
			return n, bulkerrors.Newf(bulkerrors.ErrorTypeInternal,
				"insert returned %d values, expected %d", len(values), len(r.outbound))
		}
		item := items[n]
		for i, col := range r.outbound {
			if err := col.SetValue(item, values[i]); err != nil {
				return n, bulkerrors.Wrap(err, bulkerrors.TypeOf(err), "propagating "+col.Name+" failed")
			}
		}
		if completer != nil {
			if err := completer.Complete(item); err != nil {
				return n, err
			}
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	return n, nil
}

// cleanup drops the staging table. Its failure never replaces the
// operation's own result. Once ctx is done a transaction-scoped staging
// table is left to the rollback; a connection-scoped one is still dropped
// under a detached, bounded context.
func (r *run[T]) cleanup(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		if r.dialect.TransactionScopedStaging() {
			r.log.Debug("skipping staging cleanup", zap.String("staging", r.staging.String()), zap.Error(err))
			return
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
	}
	_, err := r.phase(ctx, PhaseCleanup, func(ctx context.Context) (int64, error) {
		_, err := r.session.Exec(ctx, r.dialect.DropStaging(r.staging))
		return 0, err
	})
	if err != nil {
		r.log.Warn("dropping staging table failed", zap.String("staging", r.staging.String()), zap.Error(err))
	}
}

// phase runs fn with a span, a latency observation and a debug log.
func (r *run[T]) phase(ctx context.Context, name string, fn func(context.Context) (int64, error)) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, bulkerrors.Wrap(err, bulkerrors.ErrorTypeTimeout, "bulk "+name+" cancelled")
	}

	op := r.processor.op.String()
	ctx, span := observability.StartPhase(ctx, op, name, r.target.String())
	timer := metrics.NewTimer(name)

	n, err := fn(ctx)

	elapsed := timer.Stop()
	r.collector.ObservePhase(name, elapsed)
	span.SetRows(n)
	span.End(err)

	r.log.Debug("bulk phase finished",
		zap.String("phase", name),
		zap.Int64("rows", n),
		zap.Duration("duration", elapsed),
		zap.Error(err))
	return n, err
}

func withoutIdentity(columns []*plan.Column) []*plan.Column {
	out := make([]*plan.Column, 0, len(columns))
	for _, c := range columns {
		if !c.Identity {
			out = append(out, c)
		}
	}
	return out
}

func hasIdentity(columns []*plan.Column) bool {
	for _, c := range columns {
		if c.Identity {
			return true
		}
	}
	return false
}
