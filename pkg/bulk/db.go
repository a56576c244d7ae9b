// Package bulk is the public entry point: bulk insert and delete of entity
// sequences, and a unit-of-work SaveChanges that routes batches of pending
// changes through bulk copy or ordinary statements.
//
// # Basic Usage
//
//	m := model.New()
//	model.Entity[Order](m).Table("orders").MustBuild()
//
//	db := bulk.Open(sess, m, bulk.WithBulkRouting(batch.DefaultSettings()))
//	n, err := bulk.Insert(ctx, db, orders)
//
// Generated keys and computed columns are written back into the inserted
// items unless value propagation is turned off.
package bulk

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/bulkflow/pkg/batch"
	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/config"
	"github.com/ajitpratap0/bulkflow/pkg/logger"
	"github.com/ajitpratap0/bulkflow/pkg/model"
	"github.com/ajitpratap0/bulkflow/pkg/processor"
	"github.com/ajitpratap0/bulkflow/pkg/session"
	"github.com/ajitpratap0/bulkflow/pkg/update"
)

// DB binds a session to a model.
type DB struct {
	session session.Session
	model   *model.Model
	cfg     *config.BulkConfig
	log     *zap.Logger

	routing *batch.Settings
	factory *batch.Factory
}

// DBOption configures a DB.
type DBOption func(*DB)

// WithConfig sets the configuration supplying copy flags and option
// defaults.
func WithConfig(cfg *config.BulkConfig) DBOption {
	return func(db *DB) { db.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) DBOption {
	return func(db *DB) { db.log = l }
}

// WithBulkRouting registers bulk routing for SaveChanges. Without it every
// batch runs as ordinary statements and EnableBulk fails.
func WithBulkRouting(settings batch.Settings) DBOption {
	return func(db *DB) { db.routing = &settings }
}

// Open creates a DB over s.
func Open(s session.Session, m *model.Model, opts ...DBOption) *DB {
	db := &DB{
		session: s,
		model:   m,
		cfg:     config.NewBulkConfig("bulkflow"),
		log:     logger.Get(),
	}
	for _, opt := range opts {
		opt(db)
	}

	if db.routing != nil {
		sw := batch.NewSwitch(!db.cfg.Routing.Disabled)
		db.factory = batch.NewFactory(*db.routing, sw, db.processorOptions())
	}
	return db
}

// Session returns the underlying session.
func (db *DB) Session() session.Session { return db.session }

// Model returns the entity model.
func (db *DB) Model() *model.Model { return db.model }

func (db *DB) processorOptions() processor.Options {
	var extra session.CopyOptions
	c := db.cfg.Copy
	if c.CheckConstraints {
		extra |= session.CheckConstraints
	}
	if c.FireTriggers {
		extra |= session.FireTriggers
	}
	if c.KeepNulls {
		extra |= session.KeepNulls
	}
	if c.TableLock {
		extra |= session.TableLock
	}
	return processor.Options{
		IdentityInsert: db.cfg.Defaults.IdentityInsert,
		Extra:          extra,
		Logger:         db.log,
	}
}

const routingNotRegistered = "bulk routing is not registered; open the DB with WithBulkRouting"

// EnableBulk turns bulk routing on for this DB.
func (db *DB) EnableBulk() error {
	if db.factory == nil {
		return bulkerrors.New(bulkerrors.ErrorTypeConfig, routingNotRegistered)
	}
	db.factory.Switch().Enable()
	return nil
}

// DisableBulk turns bulk routing off for this DB.
func (db *DB) DisableBulk() error {
	if db.factory == nil {
		return bulkerrors.New(bulkerrors.ErrorTypeConfig, routingNotRegistered)
	}
	db.factory.Switch().Disable()
	return nil
}

// BulkEnabled reports whether SaveChanges may route batches to bulk copy.
func (db *DB) BulkEnabled() bool {
	return db.factory != nil && db.factory.Switch().Enabled()
}

// Entry creates a change-tracking entry for entity.
func (db *DB) Entry(entity any, state update.EntityState) (*update.Entry, error) {
	entry, err := update.NewEntry(db.model, entity, state)
	if err != nil {
		return nil, err
	}
	if entry.EntityType.IsDynamic() {
		entry.Shadow = model.RecordStore{}
	}
	return entry, nil
}

func (db *DB) newBatch() batch.CommandBatch {
	if db.factory == nil {
		return batch.NewStatementBatch()
	}
	return db.factory.Create()
}

// SaveChanges writes the pending changes of entries in one transaction and
// returns the number of entries saved. Consecutive entries of the same
// state and table share a batch; unchanged and detached entries are
// skipped.
func (db *DB) SaveChanges(ctx context.Context, entries ...*update.Entry) (int, error) {
	var cmds []*update.Command
	for _, e := range entries {
		switch e.State {
		case update.Added, update.Modified, update.Deleted:
		default:
			continue
		}
		cmd, err := update.NewCommand(e)
		if err != nil {
			return 0, err
		}
		cmds = append(cmds, cmd)
	}
	if len(cmds) == 0 {
		return 0, nil
	}

	var batches []batch.CommandBatch
	current := db.newBatch()
	for _, cmd := range cmds {
		if current.AddCommand(cmd) {
			continue
		}
		batches = append(batches, current)
		current = db.newBatch()
		if !current.AddCommand(cmd) {
			return 0, bulkerrors.New(bulkerrors.ErrorTypeInternal, "fresh batch rejected a command")
		}
	}
	batches = append(batches, current)

	db.log.Debug("saving changes",
		zap.Int("commands", len(cmds)),
		zap.Int("batches", len(batches)),
		zap.Bool("bulk_enabled", db.BulkEnabled()))

	err := session.InTransaction(ctx, db.session, func(ctx context.Context) error {
		for _, b := range batches {
			if err := b.Execute(ctx, db.session); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(cmds), nil
}
