package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/bulkflow/pkg/session"
	"github.com/ajitpratap0/bulkflow/pkg/testutil"
)

func TestInTransactionCommits(t *testing.T) {
	s := testutil.NewFakeSession()
	ctx := context.Background()

	err := session.InTransaction(ctx, s, func(ctx context.Context) error {
		assert.True(t, s.InTransaction())
		_, err := s.Exec(ctx, "SELECT 1")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, []string{testutil.EventBegin, "SELECT 1", testutil.EventCommit}, s.Log)
	assert.False(t, s.InTransaction())
}

func TestInTransactionRollsBack(t *testing.T) {
	s := testutil.NewFakeSession()
	boom := errors.New("boom")

	err := session.InTransaction(context.Background(), s, func(context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, s.Rollbacks)
	assert.Equal(t, 0, s.Commits)
}

func TestInTransactionRollsBackOnPanic(t *testing.T) {
	s := testutil.NewFakeSession()

	assert.Panics(t, func() {
		_ = session.InTransaction(context.Background(), s, func(context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, 1, s.Rollbacks)
}

func TestInTransactionJoinsActive(t *testing.T) {
	s := testutil.NewFakeSession()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	err = session.InTransaction(ctx, s, func(context.Context) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 0, s.Commits, "joined transaction must not be committed by the helper")
	assert.True(t, s.InTransaction())
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, 1, s.Commits)
}

func TestInTransactionBeginFailure(t *testing.T) {
	s := testutil.NewFakeSession()
	s.BeginErr = errors.New("no connection")
	called := false

	err := session.InTransaction(context.Background(), s, func(context.Context) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, s.BeginErr)
	assert.False(t, called)
}

func TestInTransactionCommitFailure(t *testing.T) {
	s := testutil.NewFakeSession()
	s.CommitErr = errors.New("serialization failure")

	err := session.InTransaction(context.Background(), s, func(context.Context) error { return nil })

	assert.ErrorIs(t, err, s.CommitErr)
}
