// Package dialect renders the SQL a bulk operation needs around the native
// copy: staging table lifecycle, the set-based commit statements, and the
// per-row statements used when a batch does not go through bulk copy.
package dialect

import (
	"strings"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
)

// Table names a table, optionally inside a schema.
type Table struct {
	Schema string
	Name   string
}

func (t Table) String() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Dialect renders database-specific SQL.
type Dialect interface {
	Name() string
	Quote(ident string) string
	QualifiedName(t Table) string
	// Placeholder returns the n-th (1-based) bind parameter marker
	Placeholder(n int) string

	// StagingTable derives the session-local staging table of a target and
	// operation
	StagingTable(target Table, operation string) Table
	CreateStaging(staging, target Table, columns []string) string
	InsertFromStaging(target, staging Table, write, read []string, overrideIdentity bool) (string, error)
	DeleteFromStaging(target, staging Table, keys []string) string
	DropStaging(staging Table) string
	// TransactionScopedStaging reports whether the staging table disappears
	// when the transaction ends. When false it lives as long as the
	// connection and must be dropped explicitly, even after a rollback.
	TransactionScopedStaging() bool
	// LockTable returns the statement taking a table lock, or "" when the
	// dialect has none usable inside a transaction
	LockTable(target Table) string
	// SupportsReturning reports whether inserts can return generated values
	SupportsReturning() bool

	InsertRow(target Table, write, read []string, overrideIdentity bool) (string, error)
	UpdateRow(target Table, set, keys, read []string) (string, error)
	DeleteRow(target Table, keys []string) string
}

// Names of the supported dialects.
const (
	NamePostgres = "postgres"
	NameMySQL    = "mysql"
)

// For returns the dialect registered under name.
func For(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case NamePostgres, "postgresql", "pgx":
		return Postgres(), nil
	case NameMySQL:
		return MySQL(), nil
	}
	return nil, bulkerrors.Newf(bulkerrors.ErrorTypeConfig, "unsupported dialect %q", name)
}

// StagingName is the staging table name shared by the dialects.
func StagingName(target Table, operation string) string {
	return "tmp_" + target.Name + "_" + operation
}

func quoteList(d Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}

func joinCondition(d Dialect, left, right string, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		q := d.Quote(k)
		parts[i] = left + "." + q + " = " + right + "." + q
	}
	return strings.Join(parts, " AND ")
}

func placeholders(d Dialect, from, count int) string {
	ph := make([]string, count)
	for i := range ph {
		ph[i] = d.Placeholder(from + i)
	}
	return strings.Join(ph, ", ")
}

func assignments(d Dialect, from int, names []string, sep string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = d.Quote(n) + " = " + d.Placeholder(from+i)
	}
	return strings.Join(parts, sep)
}
