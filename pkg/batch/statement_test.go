package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bulkflow/pkg/dialect"
	"github.com/ajitpratap0/bulkflow/pkg/session"
	"github.com/ajitpratap0/bulkflow/pkg/testutil"
	"github.com/ajitpratap0/bulkflow/pkg/update"
)

func affecting(n int64) func(context.Context, string, []any) (session.Result, error) {
	return func(context.Context, string, []any) (session.Result, error) {
		return session.Result{RowsAffected: n}, nil
	}
}

func TestStatementInsertReturning(t *testing.T) {
	m := testModel(t)
	s := testutil.NewFakeSession()
	s.QueryFunc = func(context.Context, string, []any) ([][]any, error) {
		return [][]any{{int64(9)}}, nil
	}
	c := &customer{Name: "ann"}
	b := NewStatementBatch()
	require.True(t, b.AddCommand(command(t, m, c, update.Added)))

	require.NoError(t, b.Execute(context.Background(), s))

	assert.Equal(t, int64(9), c.ID)
	require.Len(t, s.Statements, 1)
	assert.Equal(t, `INSERT INTO "customers" ("name") VALUES ($1) RETURNING "id"`, s.Statements[0].SQL)
	assert.Equal(t, []any{"ann"}, s.Statements[0].Args)
	assert.Equal(t, []string{testutil.EventBegin, s.Statements[0].SQL, testutil.EventCommit}, s.Log)
}

func TestStatementUpdateUsesOriginalKey(t *testing.T) {
	m := testModel(t)
	s := testutil.NewFakeSession()
	s.ExecFunc = affecting(1)
	cmd := command(t, m, &customer{ID: 4, Name: "bob"}, update.Modified)
	cmd.Entries[0].Original = map[string]any{"ID": int64(3)}
	cmd.Modification("id").OriginalValue = int64(3)

	b := NewStatementBatch()
	b.AddCommand(cmd)
	require.NoError(t, b.Execute(context.Background(), s))

	require.Len(t, s.Statements, 1)
	assert.Equal(t, `UPDATE "customers" SET "name" = $1 WHERE "id" = $2`, s.Statements[0].SQL)
	assert.Equal(t, []any{"bob", int64(3)}, s.Statements[0].Args)
}

func TestStatementConcurrencyConflict(t *testing.T) {
	m := testModel(t)
	s := testutil.NewFakeSession()
	s.ExecFunc = affecting(0)
	b := NewStatementBatch()
	b.AddCommand(command(t, m, &customer{ID: 1}, update.Deleted))
	b.AddCommand(command(t, m, &customer{ID: 2}, update.Deleted))

	err := b.Execute(context.Background(), s)

	var conflict *update.ConcurrencyError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(1), conflict.Expected)
	assert.Equal(t, int64(0), conflict.Actual)
	assert.Len(t, conflict.Entries, 1)
	assert.Len(t, s.Statements, 1, "execution stops at the first conflict")
	assert.Equal(t, 1, s.Rollbacks)
}

func TestStatementMySQLLastInsertID(t *testing.T) {
	m := testModel(t)
	s := testutil.NewFakeSession()
	s.SQLDialect = dialect.MySQL()
	s.ExecFunc = func(context.Context, string, []any) (session.Result, error) {
		return session.Result{RowsAffected: 1, LastInsertID: 42}, nil
	}
	c := &customer{Name: "ann"}
	b := NewStatementBatch()
	b.AddCommand(command(t, m, c, update.Added))

	require.NoError(t, b.Execute(context.Background(), s))

	assert.Equal(t, int64(42), c.ID)
	assert.Equal(t, "INSERT INTO `customers` (`name`) VALUES (?)", s.Statements[0].SQL)
}
