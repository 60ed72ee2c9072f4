package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("gallery:purge_images").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("gallery:purge_images").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("gallery:purge_images", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("gallery:purge_images", "failure")))
}

func TestAddObjectsIgnoresEmptyCounts(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddObjects("deleted", 3)
	m.AddObjects("deleted", 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.objects.WithLabelValues("deleted")))

	var nilMetrics *Metrics
	nilMetrics.AddObjects("deleted", 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
