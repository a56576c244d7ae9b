package bulk

import (
	"context"
	"iter"
	"reflect"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/logger"
	"github.com/ajitpratap0/bulkflow/pkg/model"
	"github.com/ajitpratap0/bulkflow/pkg/plan"
	"github.com/ajitpratap0/bulkflow/pkg/processor"
	"github.com/ajitpratap0/bulkflow/pkg/session"
)

// Option adjusts one Insert or Delete call.
type Option func(*callOptions)

type callOptions struct {
	plan       plan.Options
	processor  processor.Options
	entityName string
}

// WithIdentityInsert sends caller-supplied values for generated keys.
func WithIdentityInsert(on bool) Option {
	return func(o *callOptions) {
		o.plan.IdentityInsert = on
		o.processor.IdentityInsert = on
	}
}

// WithIgnoreDefaultValues sends zero values instead of column defaults.
func WithIgnoreDefaultValues(on bool) Option {
	return func(o *callOptions) { o.plan.IgnoreDefaultValues = on }
}

// WithPropagateValues reads generated values back into inserted items.
func WithPropagateValues(on bool) Option {
	return func(o *callOptions) { o.plan.PropagateValues = on }
}

// WithShadowStore serves shadow property values.
func WithShadowStore(store model.ShadowStore) Option {
	return func(o *callOptions) { o.plan.Shadow = store }
}

// WithCopyOptions replaces the computed copy flags with fn's result.
func WithCopyOptions(fn func(session.CopyOptions) session.CopyOptions) Option {
	return func(o *callOptions) { o.processor.CopyOptions = fn }
}

// WithSetup adjusts the copy request before the transfer starts.
func WithSetup(fn func(*session.CopyRequest)) Option {
	return func(o *callOptions) { o.processor.Setup = fn }
}

// WithEntityType selects the entity type by name. Required for
// *model.Record items.
func WithEntityType(name string) Option {
	return func(o *callOptions) { o.entityName = name }
}

// Insert inserts items and returns the number of rows inserted.
func Insert[T any](ctx context.Context, db *DB, items []T, opts ...Option) (int64, error) {
	return InsertSeq(ctx, db, slices.Values(items), opts...)
}

// InsertSeq inserts the items of seq, which is enumerated once.
func InsertSeq[T any](ctx context.Context, db *DB, seq iter.Seq[T], opts ...Option) (int64, error) {
	return execute(ctx, db, plan.Insert, seq, opts)
}

// Delete deletes items by primary key and returns the number of rows
// deleted.
func Delete[T any](ctx context.Context, db *DB, items []T, opts ...Option) (int64, error) {
	return DeleteSeq(ctx, db, slices.Values(items), opts...)
}

// DeleteSeq deletes the items of seq, which is enumerated once.
func DeleteSeq[T any](ctx context.Context, db *DB, seq iter.Seq[T], opts ...Option) (int64, error) {
	return execute(ctx, db, plan.Delete, seq, opts)
}

func (db *DB) callOptions(opts []Option) *callOptions {
	o := &callOptions{
		plan: plan.Options{
			PropagateValues:     db.cfg.Defaults.PropagateValues,
			IgnoreDefaultValues: db.cfg.Defaults.IgnoreDefaultValues,
			IdentityInsert:      db.cfg.Defaults.IdentityInsert,
		},
		processor: db.processorOptions(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (db *DB) resolve(t reflect.Type, o *callOptions) (*model.EntityType, error) {
	var entity *model.EntityType
	if o.entityName != "" {
		entity = db.model.FindByName(o.entityName)
	} else {
		entity = db.model.FindEntityType(t)
	}
	if entity == nil {
		name := o.entityName
		if name == "" {
			name = t.String()
		}
		return nil, bulkerrors.Newf(bulkerrors.ErrorTypeUnsupported, "entity type %s is not mapped in the model", name)
	}
	if entity.IsDynamic() && o.plan.Shadow == nil {
		o.plan.Shadow = model.RecordStore{}
	}
	return entity, nil
}

func execute[T any](ctx context.Context, db *DB, op plan.Operation, seq iter.Seq[T], opts []Option) (int64, error) {
	o := db.callOptions(opts)
	entity, err := db.resolve(reflect.TypeFor[T](), o)
	if err != nil {
		return 0, err
	}

	provider, err := plan.ForEntity(entity, op, o.plan)
	if err != nil {
		return 0, err
	}

	id := uuid.NewString()
	ctx = logger.WithOperation(ctx, id, op.String(), entity.Table)

	var proc *processor.Processor[T]
	if op == plan.Delete {
		proc = processor.NewDelete[T](provider, o.processor)
	} else {
		proc = processor.NewInsert[T](provider, o.processor)
	}

	start := time.Now()
	n, err := proc.Process(ctx, db.session, seq)
	log := logger.FromContext(ctx, db.log)
	if err != nil {
		log.Error("bulk operation failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return 0, err
	}
	log.Info("bulk operation completed",
		zap.String("entity", entity.Name),
		zap.Int64("rows", n),
		zap.Duration("duration", time.Since(start)))
	return n, nil
}
