package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	assert.NoError(t, m.Track("datasheet:sync").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("datasheet:sync").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("datasheet:sync", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("datasheet:sync", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("datasheet:sync")))
}

func TestAddMerged(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddMerged(3, 0)
	m.AddMerged(1, 2)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.merged.WithLabelValues("inserted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.merged.WithLabelValues("updated")))

	var nilMetrics *Metrics
	nilMetrics.AddMerged(1, 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
