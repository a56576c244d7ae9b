package bulk_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/bulkflow/pkg/batch"
	"github.com/ajitpratap0/bulkflow/pkg/bulk"
	"github.com/ajitpratap0/bulkflow/pkg/bulkerrors"
	"github.com/ajitpratap0/bulkflow/pkg/model"
	"github.com/ajitpratap0/bulkflow/pkg/session"
	"github.com/ajitpratap0/bulkflow/pkg/testutil"
	"github.com/ajitpratap0/bulkflow/pkg/update"
)

type widget struct {
	ID      int64     `db:"id,key,identity"`
	Name    string    `db:"name"`
	Color   string    `db:"color"`
	Created time.Time `db:"created,computed"`
}

type postgresSuite struct {
	testutil.PostgresSuite
	model *model.Model
}

func TestPostgresIntegration(t *testing.T) {
	suite.Run(t, new(postgresSuite))
}

func (s *postgresSuite) SetupTest() {
	s.MustExec(`DROP TABLE IF EXISTS bulkflow_widgets`)
	s.MustExec(`CREATE TABLE bulkflow_widgets (
		id bigint GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		name text NOT NULL UNIQUE,
		color text NOT NULL DEFAULT 'grey',
		created timestamptz NOT NULL DEFAULT now()
	)`)

	s.model = model.New()
	_, err := model.Entity[widget](s.model).Table("bulkflow_widgets").HasDefault("Color", "grey").Build()
	s.Require().NoError(err)
}

func (s *postgresSuite) TearDownTest() {
	s.MustExec(`DROP TABLE IF EXISTS bulkflow_widgets`)
}

func (s *postgresSuite) open(sess session.Session, opts ...bulk.DBOption) *bulk.DB {
	opts = append([]bulk.DBOption{bulk.WithLogger(testutil.TestLogger(s.T()))}, opts...)
	return bulk.Open(sess, s.model, opts...)
}

func (s *postgresSuite) widgets(n int) []*widget {
	out := make([]*widget, n)
	for i := range out {
		out[i] = &widget{Name: fmt.Sprintf("widget-%03d", i)}
	}
	return out
}

func (s *postgresSuite) TestInsertPropagatesGeneratedValues() {
	sess := s.Session()
	items := s.widgets(50)

	n, err := bulk.Insert(s.Context(), s.open(sess), items)

	s.Require().NoError(err)
	s.Equal(int64(50), n)
	seen := make(map[int64]bool)
	for _, w := range items {
		s.NotZero(w.ID)
		s.False(w.Created.IsZero())
		s.False(seen[w.ID], "keys are unique")
		seen[w.ID] = true
	}
	s.Equal(int64(50), s.QueryInt(`SELECT count(*) FROM bulkflow_widgets WHERE color = 'grey'`))
	s.Equal(int64(0), s.QueryInt(`SELECT count(*) FROM pg_class WHERE relname = 'tmp_bulkflow_widgets_insert' AND relpersistence = 't'`))
}

func (s *postgresSuite) TestInsertWithoutPropagation() {
	items := s.widgets(10)

	n, err := bulk.Insert(s.Context(), s.open(s.Session()), items, bulk.WithPropagateValues(false))

	s.Require().NoError(err)
	s.Equal(int64(10), n)
	s.Zero(items[0].ID)
	s.Equal(int64(10), s.QueryInt(`SELECT count(*) FROM bulkflow_widgets`))
}

func (s *postgresSuite) TestIdentityInsert() {
	items := []*widget{{ID: 1000, Name: "fixed"}}

	_, err := bulk.Insert(s.Context(), s.open(s.Session()), items, bulk.WithIdentityInsert(true))

	s.Require().NoError(err)
	s.Equal(int64(1), s.QueryInt(`SELECT count(*) FROM bulkflow_widgets WHERE id = 1000`))
}

func (s *postgresSuite) TestDeleteByKey() {
	db := s.open(s.Session())
	items := s.widgets(5)
	_, err := bulk.Insert(s.Context(), db, items)
	s.Require().NoError(err)

	n, err := bulk.DeleteSeq(s.Context(), db, slices.Values(items[:3]))

	s.Require().NoError(err)
	s.Equal(int64(3), n)
	s.Equal(int64(2), s.QueryInt(`SELECT count(*) FROM bulkflow_widgets`))
}

func (s *postgresSuite) TestIdentityInsertKeepsSuppliedKeys() {
	items := []*widget{{ID: 11, Name: "a"}, {ID: 12, Name: "b"}, {ID: 13, Name: "c"}}

	n, err := bulk.Insert(s.Context(), s.open(s.Session()), items, bulk.WithIdentityInsert(true))

	s.Require().NoError(err)
	s.Equal(int64(3), n)
	s.Equal([]int64{11, 12, 13}, s.QueryInts(`SELECT id FROM bulkflow_widgets ORDER BY id`))
}

func (s *postgresSuite) TestInsertReplacesSuppliedKeys() {
	items := []*widget{{ID: 11, Name: "a"}, {ID: 12, Name: "b"}, {ID: 13, Name: "c"}}

	_, err := bulk.Insert(s.Context(), s.open(s.Session()), items, bulk.WithIdentityInsert(false))

	s.Require().NoError(err)
	ids := s.QueryInts(`SELECT id FROM bulkflow_widgets ORDER BY id`)
	s.Require().Len(ids, 3)
	for _, id := range []int64{11, 12, 13} {
		s.NotContains(ids, id, "supplied key %d must be replaced by the server", id)
	}
	s.ElementsMatch(ids, []int64{items[0].ID, items[1].ID, items[2].ID}, "server keys are written back")
}

func (s *postgresSuite) TestDeleteRemovesExactlyTheMatchedKeys() {
	db := s.open(s.Session())
	items := s.widgets(100)
	_, err := bulk.Insert(s.Context(), db, items)
	s.Require().NoError(err)

	var doomed []*widget
	var kept []int64
	for i, w := range items {
		if i%2 == 0 {
			doomed = append(doomed, w)
		} else {
			kept = append(kept, w.ID)
		}
	}
	s.Require().Len(doomed, 50)

	n, err := bulk.Delete(s.Context(), db, doomed)

	s.Require().NoError(err)
	s.Equal(int64(50), n)
	remaining := s.QueryInts(`SELECT id FROM bulkflow_widgets ORDER BY id`)
	s.ElementsMatch(kept, remaining)
	for _, w := range doomed {
		s.NotContains(remaining, w.ID)
	}
}

func (s *postgresSuite) TestConstraintViolationRollsBack() {
	items := []*widget{{Name: "dup"}, {Name: "dup"}}

	_, err := bulk.Insert(s.Context(), s.open(s.Session()), items)

	s.Require().Error(err)
	s.True(bulkerrors.IsType(err, bulkerrors.ErrorTypeQuery))
	s.Equal(int64(0), s.QueryInt(`SELECT count(*) FROM bulkflow_widgets`))
}

func (s *postgresSuite) TestJoinsCallerTransaction() {
	sess := s.Session()
	db := s.open(sess)

	tx, err := sess.Begin(s.Context())
	s.Require().NoError(err)
	_, err = bulk.Insert(s.Context(), db, s.widgets(3))
	s.Require().NoError(err)
	s.Require().NoError(tx.Rollback(s.Context()))

	s.Equal(int64(0), s.QueryInt(`SELECT count(*) FROM bulkflow_widgets`))
}

func (s *postgresSuite) TestSaveChangesConcurrencyConflict() {
	sess := s.Session()
	db := s.open(sess, bulk.WithBulkRouting(batch.DefaultSettings()))

	var entries []*update.Entry
	for _, w := range []*widget{{ID: 424242}, {ID: 434343}} {
		e, err := db.Entry(w, update.Deleted)
		s.Require().NoError(err)
		entries = append(entries, e)
	}

	_, err := db.SaveChanges(s.Context(), entries...)

	var conflict *update.ConcurrencyError
	s.Require().True(errors.As(err, &conflict))
	s.Equal(int64(0), conflict.Actual)
	s.Len(conflict.Entries, 2)
}

func (s *postgresSuite) TestSaveChangesMixedStates() {
	sess := s.Session()
	db := s.open(sess, bulk.WithBulkRouting(batch.DefaultSettings()))
	existing := s.widgets(1)
	_, err := bulk.Insert(s.Context(), db, existing)
	s.Require().NoError(err)

	added := &widget{Name: "added"}
	existing[0].Color = "red"
	var entries []*update.Entry
	for _, c := range []struct {
		entity any
		state  update.EntityState
	}{{added, update.Added}, {existing[0], update.Modified}} {
		e, err := db.Entry(c.entity, c.state)
		s.Require().NoError(err)
		entries = append(entries, e)
	}

	n, err := db.SaveChanges(s.Context(), entries...)

	s.Require().NoError(err)
	s.Equal(2, n)
	s.NotZero(added.ID)
	s.Equal(int64(1), s.QueryInt(`SELECT count(*) FROM bulkflow_widgets WHERE color = 'red'`))
}

func (s *postgresSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.Context())
	cancel()

	_, err := bulk.Insert(ctx, s.open(s.Session()), s.widgets(3))

	s.Require().Error(err)
	s.Equal(int64(0), s.QueryInt(`SELECT count(*) FROM bulkflow_widgets`))
}

func TestPostgresSuiteSkipsWithoutDSN(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	t.Setenv(testutil.PostgresDSNEnv, "")
	ran := false
	t.Run("gated", func(t *testing.T) {
		testutil.PostgresDSN(t)
		ran = true
	})
	assert.False(t, ran)
}
