package batch

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/logger"
	"github.com/ajitpratap0/bulkflow/pkg/metrics"
	"github.com/ajitpratap0/bulkflow/pkg/plan"
	"github.com/ajitpratap0/bulkflow/pkg/processor"
	"github.com/ajitpratap0/bulkflow/pkg/session"
	"github.com/ajitpratap0/bulkflow/pkg/update"
)

// State is the lifecycle position of a Router.
type State int

const (
	Unbound State = iota
	BoundNonBulk
	BoundBulk
	Closed
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case BoundNonBulk:
		return "bound_non_bulk"
	case BoundBulk:
		return "bound_bulk"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Mode label values for routed batches.
const (
	ModeBulk      = "bulk"
	ModeStatement = "statement"
)

// Router decorates a CommandBatch. The first command binds the batch to
// its entity state, table, schema and execution mode; later commands are
// accepted only when all four match. Bulk batches run through the bulk
// processors, the rest through the inner batch.
type Router struct {
	inner    CommandBatch
	settings Settings
	sw       *Switch
	opts     processor.Options

	state       State
	entityState update.EntityState
	schema      string
	table       string
	commands    []*update.Command
}

var _ CommandBatch = (*Router)(nil)

// NewRouter creates an unbound router over inner.
func NewRouter(inner CommandBatch, settings Settings, sw *Switch, opts processor.Options) *Router {
	return &Router{inner: inner, settings: settings, sw: sw, opts: opts}
}

// State returns the router state.
func (r *Router) State() State { return r.state }

func (r *Router) AddCommand(cmd *update.Command) bool {
	bulk := r.sw.Enabled() && r.settings.Enabled(cmd.State)

	switch r.state {
	case Closed:
		return false
	case Unbound:
		if bulk {
			r.commands = append(r.commands, cmd)
			r.state = BoundBulk
		} else {
			if !r.inner.AddCommand(cmd) {
				return false
			}
			r.state = BoundNonBulk
		}
		r.entityState, r.schema, r.table = cmd.State, cmd.Schema, cmd.Table
		return true
	}

	if cmd.State != r.entityState || cmd.Schema != r.schema || cmd.Table != r.table {
		return false
	}
	if bulk != (r.state == BoundBulk) {
		return false
	}
	if r.state == BoundNonBulk {
		return r.inner.AddCommand(cmd)
	}
	r.commands = append(r.commands, cmd)
	return true
}

func (r *Router) Commands() []*update.Command {
	if r.state == BoundNonBulk {
		return r.inner.Commands()
	}
	return r.commands
}

// Execute runs the batch. A bulk batch whose affected-row count differs
// from its command count fails with *update.ConcurrencyError carrying
// every entry of the batch.
func (r *Router) Execute(ctx context.Context, s session.Session) error {
	state := r.state
	r.state = Closed

	switch state {
	case Unbound:
		return nil
	case Closed:
		return bulkerrors.New(bulkerrors.ErrorTypeInternal, "batch already executed")
	case BoundNonBulk:
		metrics.BatchesRouted.WithLabelValues(ModeStatement, r.entityState.String()).Inc()
		return r.inner.Execute(ctx, s)
	}

	metrics.BatchesRouted.WithLabelValues(ModeBulk, r.entityState.String()).Inc()
	r.log(ctx).Debug("executing bulk batch",
		zap.String("state", r.entityState.String()),
		zap.String("table", r.table),
		zap.Int("commands", len(r.commands)))

	provider, err := plan.ForCommands(r.commands)
	if err != nil {
		return err
	}

	var affected int64
	switch r.entityState {
	case update.Added:
		affected, err = processor.NewInsert[*update.Command](provider, r.opts).Process(ctx, s, slices.Values(r.commands))
	case update.Deleted:
		affected, err = processor.NewDelete[*update.Command](provider, r.opts).Process(ctx, s, slices.Values(r.commands))
	default:
		return bulkerrors.Newf(bulkerrors.ErrorTypeUnsupported, "bulk %s is not supported", r.entityState)
	}
	if err != nil {
		return err
	}

	if expected := int64(len(r.commands)); affected != expected {
		metrics.ConcurrencyConflicts.Inc()
		return update.NewConcurrencyError(expected, affected, update.EntriesOf(r.commands))
	}
	return nil
}

func (r *Router) log(ctx context.Context) *zap.Logger {
	if r.opts.Logger != nil {
		return logger.FromContext(ctx, r.opts.Logger)
	}
	return logger.WithContext(ctx)
}
