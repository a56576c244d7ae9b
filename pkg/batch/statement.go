package batch

import (
	"context"

	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/dialect"
	"github.com/ajitpratap0/bulkflow/pkg/session"
	"github.com/ajitpratap0/bulkflow/pkg/update"
)

// StatementBatch executes one parameterized statement per command.
type StatementBatch struct {
	commands []*update.Command
}

var _ CommandBatch = (*StatementBatch)(nil)

// NewStatementBatch creates an empty statement batch.
func NewStatementBatch() *StatementBatch {
	return &StatementBatch{}
}

// AddCommand always accepts.
func (b *StatementBatch) AddCommand(cmd *update.Command) bool {
	b.commands = append(b.commands, cmd)
	return true
}

func (b *StatementBatch) Commands() []*update.Command { return b.commands }

// Execute runs every command in order inside one transaction. A command
// that does not affect exactly one row fails with *update.ConcurrencyError.
func (b *StatementBatch) Execute(ctx context.Context, s session.Session) error {
	return session.InTransaction(ctx, s, func(ctx context.Context) error {
		for _, cmd := range b.commands {
			if err := executeCommand(ctx, s, cmd); err != nil {
				return err
			}
		}
		return nil
	})
}

type statementColumns struct {
	write []*update.ColumnModification
	keys  []*update.ColumnModification
	read  []*update.ColumnModification
}

func splitModifications(cmd *update.Command) statementColumns {
	var sc statementColumns
	for _, m := range cmd.Modifications {
		if m.IsWrite && cmd.State != update.Deleted {
			sc.write = append(sc.write, m)
		}
		if m.IsCondition {
			sc.keys = append(sc.keys, m)
		}
		if m.IsRead {
			sc.read = append(sc.read, m)
		}
	}
	return sc
}

func executeCommand(ctx context.Context, s session.Session, cmd *update.Command) error {
	d := s.Dialect()
	table := dialect.Table{Schema: cmd.Schema, Name: cmd.Table}
	sc := splitModifications(cmd)

	var (
		sql  string
		args []any
		err  error
	)
	switch cmd.State {
	case update.Added:
		if sql, err = d.InsertRow(table, columnNames(sc.write), columnNames(sc.read), false); err == nil {
			args, err = parameters(sc.write)
		}
	case update.Modified:
		if sql, err = d.UpdateRow(table, columnNames(sc.write), columnNames(sc.keys), columnNames(sc.read)); err == nil {
			args, err = parameters(sc.write, sc.keys)
		}
	case update.Deleted:
		sql = d.DeleteRow(table, columnNames(sc.keys))
		args, err = parameters(sc.keys)
		sc.read = nil
	default:
		return bulkerrors.Newf(bulkerrors.ErrorTypeValidation, "no statement for %s commands", cmd.State)
	}
	if err != nil {
		return err
	}

	var affected int64
	if len(sc.read) > 0 && d.SupportsReturning() {
		affected, err = queryReturning(ctx, s, sql, args, sc.read)
	} else {
		affected, err = execStatement(ctx, s, cmd, sql, args, sc.read)
	}
	if err != nil {
		return err
	}

	if affected != 1 {
		return update.NewConcurrencyError(1, affected, cmd.Entries)
	}
	return cmd.PropagateResults()
}

func queryReturning(ctx context.Context, s session.Session, sql string, args []any, read []*update.ColumnModification) (int64, error) {
	rows, err := s.Query(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		n++
		values, err := rows.Values()
		if err != nil {
			return n, err
		}
		if n > 1 {
			continue
		}
		if len(values) != len(read) {
			return n, bulkerrors.Newf(bulkerrors.ErrorTypeInternal, "statement returned %d values, expected %d", len(values), len(read))
		}
		for i, m := range read {
			v, err := m.Property.FromProvider(values[i])
			if err != nil {
				return n, err
			}
			m.Value = v
		}
	}
	return n, rows.Err()
}

// execStatement runs a statement without RETURNING. A single generated key
// is read from the driver's last insert id.
func execStatement(ctx context.Context, s session.Session, cmd *update.Command, sql string, args []any, read []*update.ColumnModification) (int64, error) {
	if len(read) > 0 && (cmd.State != update.Added || len(read) != 1 || !read[0].IsKey) {
		return 0, bulkerrors.Newf(bulkerrors.ErrorTypeUnsupported,
			"%s cannot read generated values other than an auto increment key", s.Dialect().Name())
	}

	res, err := s.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	if len(read) == 1 {
		v, err := read[0].Property.FromProvider(res.LastInsertID)
		if err != nil {
			return res.RowsAffected, err
		}
		read[0].Value = v
	}
	return res.RowsAffected, nil
}

func columnNames(mods []*update.ColumnModification) []string {
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Column
	}
	return names
}

func parameters(groups ...[]*update.ColumnModification) ([]any, error) {
	var args []any
	for _, mods := range groups {
		for _, m := range mods {
			v, err := m.ParameterValue()
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
	}
	return args, nil
}
