package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsSplitsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.Observe("outbox-retention", 250*time.Millisecond, nil)
	m.Observe("outbox-retention", time.Second, nil)
	m.Observe("orphan-image-cleanup", time.Second, errors.New("disk full"))
	m.Observe("", time.Millisecond, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.success.WithLabelValues("outbox-retention")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failure.WithLabelValues("orphan-image-cleanup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.success.WithLabelValues("unknown")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	hist := findMetricFamily(mfs, "storefront_cron_job_duration_seconds")
	require.NotNil(t, hist)
	assert.Len(t, hist.GetMetric(), 3)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var nilMetrics *CronJobMetrics
	assert.NotPanics(t, func() { nilMetrics.Observe("x", time.Second, nil) })
	assert.NotPanics(t, func() { NewCronJobMetrics(nil).Observe("x", time.Second, errors.New("x")) })
}
