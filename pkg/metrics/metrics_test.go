package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	c := NewCollector("insert", "metrics_test_items")

	c.AddTransferred(10)
	c.AddTransferred(5)
	c.AddAffected(15)

	assert.Equal(t, 15.0, testutil.ToFloat64(RowsTransferred.WithLabelValues("insert", "metrics_test_items")))
	assert.Equal(t, 15.0, testutil.ToFloat64(RowsAffected.WithLabelValues("insert", "metrics_test_items")))
}

func TestCollectorDone(t *testing.T) {
	c := NewCollector("metrics_test_op", "t")
	c.Done(nil)
	c.Done(errors.New("boom"))
	c.Done(errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(Operations.WithLabelValues("metrics_test_op", StatusSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(Operations.WithLabelValues("metrics_test_op", StatusFailure)))
}

func TestTimer(t *testing.T) {
	timer := NewTimer("commit")
	time.Sleep(time.Millisecond)

	assert.Equal(t, "commit", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
