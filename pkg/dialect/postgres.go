package dialect

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
)

type postgres struct{}

// Postgres returns the PostgreSQL dialect. Staging tables are temporary
// tables dropped on commit at the latest.
func Postgres() Dialect {
	return postgres{}
}

func (postgres) Name() string { return NamePostgres }

func (postgres) Quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

func (postgres) QualifiedName(t Table) string {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}.Sanitize()
	}
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

func (postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgres) StagingTable(target Table, operation string) Table {
	return Table{Name: StagingName(target, operation)}
}

func (d postgres) CreateStaging(staging, target Table, columns []string) string {
	return fmt.Sprintf("CREATE TEMP TABLE %s ON COMMIT DROP AS SELECT %s FROM %s LIMIT 0",
		d.QualifiedName(staging), quoteList(d, columns), d.QualifiedName(target))
}

func (d postgres) InsertFromStaging(target, staging Table, write, read []string, overrideIdentity bool) (string, error) {
	if len(write) == 0 {
		return "", bulkerrors.New(bulkerrors.ErrorTypeUnsupported, "insert has no writable columns")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)", d.QualifiedName(target), quoteList(d, write))
	if overrideIdentity {
		b.WriteString(" OVERRIDING SYSTEM VALUE")
	}
	fmt.Fprintf(&b, " SELECT %s FROM %s", quoteList(d, write), d.QualifiedName(staging))
	if len(read) > 0 {
		fmt.Fprintf(&b, " RETURNING %s", quoteList(d, read))
	}
	return b.String(), nil
}

func (d postgres) DeleteFromStaging(target, staging Table, keys []string) string {
	return fmt.Sprintf("DELETE FROM %s AS t USING %s AS src WHERE %s",
		d.QualifiedName(target), d.QualifiedName(staging), joinCondition(d, "t", "src", keys))
}

func (d postgres) DropStaging(staging Table) string {
	return "DROP TABLE IF EXISTS " + d.QualifiedName(staging)
}

// Staging tables are created ON COMMIT DROP.
func (postgres) TransactionScopedStaging() bool { return true }

func (d postgres) LockTable(target Table) string {
	return "LOCK TABLE " + d.QualifiedName(target) + " IN SHARE ROW EXCLUSIVE MODE"
}

func (postgres) SupportsReturning() bool { return true }

func (d postgres) InsertRow(target Table, write, read []string, overrideIdentity bool) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s", d.QualifiedName(target))
	if len(write) == 0 {
		b.WriteString(" DEFAULT VALUES")
	} else {
		fmt.Fprintf(&b, " (%s)", quoteList(d, write))
		if overrideIdentity {
			b.WriteString(" OVERRIDING SYSTEM VALUE")
		}
		fmt.Fprintf(&b, " VALUES (%s)", placeholders(d, 1, len(write)))
	}
	if len(read) > 0 {
		fmt.Fprintf(&b, " RETURNING %s", quoteList(d, read))
	}
	return b.String(), nil
}

func (d postgres) UpdateRow(target Table, set, keys, read []string) (string, error) {
	if len(keys) == 0 {
		return "", bulkerrors.New(bulkerrors.ErrorTypeValidation, "update requires key columns")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET ", d.QualifiedName(target))
	if len(set) == 0 {
		q := d.Quote(keys[0])
		b.WriteString(q + " = " + q)
	} else {
		b.WriteString(assignments(d, 1, set, ", "))
	}
	fmt.Fprintf(&b, " WHERE %s", assignments(d, len(set)+1, keys, " AND "))
	if len(read) > 0 {
		fmt.Fprintf(&b, " RETURNING %s", quoteList(d, read))
	}
	return b.String(), nil
}

func (d postgres) DeleteRow(target Table, keys []string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s", d.QualifiedName(target), assignments(d, 1, keys, " AND "))
}
