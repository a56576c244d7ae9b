// Package bulkflow inserts and deletes large sets of mapped entities through
// the database's native bulk copy path instead of row-by-row statements.
//
// PostgreSQL rows travel through COPY FROM STDIN and MySQL rows through
// LOAD DATA LOCAL INFILE. When generated keys or computed columns must be
// read back, rows are first copied into a temporary staging table and then
// moved into the target with a single INSERT ... SELECT ... RETURNING, so the
// values can be written back onto the caller's items. Deletes always go
// through staging and a keyed join.
//
// # Quick Start
//
//	type Order struct {
//	    ID    int64  `db:"id,key,identity"`
//	    Name  string `db:"name"`
//	    Total int64  `db:"total"`
//	}
//
//	m := model.New()
//	model.Entity[Order](m).Table("orders").MustBuild()
//
//	pool, _ := session.NewPool(ctx, &cfg.Database)
//	sess, _ := session.AcquirePgx(ctx, pool, cfg.Database.GetCommandTimeout())
//	defer sess.Close()
//
//	db := bulk.Open(sess, m, bulk.WithConfig(cfg))
//	n, err := bulk.Insert(ctx, db, orders)
//
// # Unit of Work
//
// With bulk routing registered, SaveChanges packs pending changes into
// command batches. Added and deleted entities of one table go through bulk
// copy, modified entities through per-row statements, and every batch runs
// in one transaction:
//
//	db := bulk.Open(sess, m, bulk.WithBulkRouting(batch.DefaultSettings()))
//	added, _ := db.Entry(order, update.Added)
//	stale, _ := db.Entry(old, update.Deleted)
//	n, err := db.SaveChanges(ctx, added, stale)
//
// # Key Packages
//
//	pkg/bulk       - Insert, Delete and SaveChanges entry points
//	pkg/model      - entity metadata, converters and shadow properties
//	pkg/plan       - per-operation column plans and value getters/setters
//	pkg/processor  - staged bulk insert/delete pipeline
//	pkg/batch      - command batch router and statement fallback
//	pkg/session    - pgx and MySQL sessions, COPY and LOAD DATA transport
//	pkg/dialect    - SQL text for staging, commit and per-row statements
//	pkg/config     - YAML and environment configuration
//	pkg/logger     - structured logging with operation context
//	pkg/metrics    - Prometheus counters and phase latency
//
// The bulkflow command in cmd/bulkflow loads and deletes JSON-lines files
// with the same machinery.
package bulkflow
