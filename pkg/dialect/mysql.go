package dialect

import (
	"fmt"
	"strings"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
)

type mysql struct{}

// MySQL returns the MySQL dialect. MySQL cannot return generated values
// from a set-based insert, so bulk inserts that propagate values are
// rejected.
func MySQL() Dialect {
	return mysql{}
}

func (mysql) Name() string { return NameMySQL }

func (mysql) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d mysql) QualifiedName(t Table) string {
	if t.Schema == "" {
		return d.Quote(t.Name)
	}
	return d.Quote(t.Schema) + "." + d.Quote(t.Name)
}

func (mysql) Placeholder(int) string { return "?" }

func (mysql) StagingTable(target Table, operation string) Table {
	return Table{Name: StagingName(target, operation)}
}

func (d mysql) CreateStaging(staging, target Table, columns []string) string {
	return fmt.Sprintf("CREATE TEMPORARY TABLE %s SELECT %s FROM %s LIMIT 0",
		d.QualifiedName(staging), quoteList(d, columns), d.QualifiedName(target))
}

func (d mysql) InsertFromStaging(target, staging Table, write, read []string, _ bool) (string, error) {
	if len(read) > 0 {
		return "", bulkerrors.New(bulkerrors.ErrorTypeUnsupported, "mysql cannot return generated values from a bulk insert")
	}
	if len(write) == 0 {
		return "", bulkerrors.New(bulkerrors.ErrorTypeUnsupported, "insert has no writable columns")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		d.QualifiedName(target), quoteList(d, write), quoteList(d, write), d.QualifiedName(staging)), nil
}

func (d mysql) DeleteFromStaging(target, staging Table, keys []string) string {
	return fmt.Sprintf("DELETE t FROM %s AS t INNER JOIN %s AS src ON %s",
		d.QualifiedName(target), d.QualifiedName(staging), joinCondition(d, "t", "src", keys))
}

func (d mysql) DropStaging(staging Table) string {
	return "DROP TEMPORARY TABLE IF EXISTS " + d.QualifiedName(staging)
}

// Temporary tables survive ROLLBACK and stay until the connection closes.
func (mysql) TransactionScopedStaging() bool { return false }

func (mysql) LockTable(Table) string { return "" }

func (mysql) SupportsReturning() bool { return false }

func (d mysql) InsertRow(target Table, write, _ []string, _ bool) (string, error) {
	if len(write) == 0 {
		return fmt.Sprintf("INSERT INTO %s () VALUES ()", d.QualifiedName(target)), nil
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QualifiedName(target), quoteList(d, write), placeholders(d, 1, len(write))), nil
}

func (d mysql) UpdateRow(target Table, set, keys, _ []string) (string, error) {
	if len(keys) == 0 {
		return "", bulkerrors.New(bulkerrors.ErrorTypeValidation, "update requires key columns")
	}
	setClause := assignments(d, 1, set, ", ")
	if len(set) == 0 {
		q := d.Quote(keys[0])
		setClause = q + " = " + q
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		d.QualifiedName(target), setClause, assignments(d, len(set)+1, keys, " AND ")), nil
}

func (d mysql) DeleteRow(target Table, keys []string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s", d.QualifiedName(target), assignments(d, 1, keys, " AND "))
}
