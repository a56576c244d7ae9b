package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/bulkflow/pkg/config"
	"github.com/ajitpratap0/bulkflow/pkg/session"
)

// PostgresDSNEnv names the variable holding the integration database DSN.
const PostgresDSNEnv = "BULKFLOW_TEST_POSTGRES_DSN"

// IntegrationTest marks a test as an integration test
func IntegrationTest(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// PostgresDSN returns the integration DSN or skips the test.
func PostgresDSN(t *testing.T) string {
	t.Helper()
	IntegrationTest(t)
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	return dsn
}

// PostgresSuite provides a PostgreSQL pool for integration suites
type PostgresSuite struct {
	suite.Suite
	ctx       context.Context
	cancel    context.CancelFunc
	pool      *pgxpool.Pool
	startTime time.Time
}

// SetupSuite runs before all tests in the suite
func (s *PostgresSuite) SetupSuite() {
	dsn := PostgresDSN(s.T())

	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)
	s.startTime = time.Now()

	pool, err := session.NewPool(s.ctx, &config.DatabaseConfig{DSN: dsn, MaxConns: 4})
	require.NoError(s.T(), err)
	s.pool = pool

	s.T().Logf("Integration test suite started against %s", pool.Config().ConnConfig.Host)
}

// TearDownSuite runs after all tests in the suite
func (s *PostgresSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.cancel != nil {
		s.cancel()
	}

	duration := time.Since(s.startTime)
	s.T().Logf("Integration test suite completed in %v", duration)
}

// Context returns the suite context
func (s *PostgresSuite) Context() context.Context {
	return s.ctx
}

// Session pins a pooled connection for the current test and releases it
// at cleanup.
func (s *PostgresSuite) Session() *session.PgxSession {
	sess, err := session.AcquirePgx(s.ctx, s.pool, 0)
	require.NoError(s.T(), err)
	s.T().Cleanup(sess.Close)
	return sess
}

// MustExec runs setup SQL outside any session under test.
func (s *PostgresSuite) MustExec(sql string, args ...any) {
	_, err := s.pool.Exec(s.ctx, sql, args...)
	require.NoError(s.T(), err, sql)
}

// QueryInt runs a single-value integer query.
func (s *PostgresSuite) QueryInt(sql string, args ...any) int64 {
	var n int64
	require.NoError(s.T(), s.pool.QueryRow(s.ctx, sql, args...).Scan(&n), sql)
	return n
}

// QueryInts collects a single integer column, in query order.
func (s *PostgresSuite) QueryInts(sql string, args ...any) []int64 {
	rows, err := s.pool.Query(s.ctx, sql, args...)
	require.NoError(s.T(), err, sql)
	out, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	require.NoError(s.T(), err, sql)
	return out
}
