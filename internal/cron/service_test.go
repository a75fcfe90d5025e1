package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/lock"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLock struct {
	held bool
	err  error
}

func (f *fakeLock) Acquire(context.Context, string) (lock.Release, error) {
	switch {
	case f.err != nil:
		return nil, f.err
	case f.held:
		return nil, lock.ErrNotAcquired
	}
	f.held = true
	return func(context.Context) error { f.held = false; return nil }, nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Run(context.Context) error {
	j.runs++
	return j.err
}

func newTestCronService(t *testing.T, l lock.Locker, jobs ...Job) (*Service, *prometheus.Registry) {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     l,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	return service, reg
}

func TestRunCycleContinuesPastFailingJob(t *testing.T) {
	failure := &testJob{name: "fail", err: errors.New("boom")}
	success := &testJob{name: "success"}
	l := &fakeLock{}
	service, reg := newTestCronService(t, l, failure, success)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 1, failure.runs)
	assert.Equal(t, 1, success.runs)
	assert.False(t, l.held, "lock released after cycle")

	n, err := testutil.GatherAndCount(reg, "storefront_cron_job_success_total", "storefront_cron_job_failure_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	service, _ := newTestCronService(t, &fakeLock{held: true}, job)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Zero(t, job.runs)
}

func TestRunCycleSurfacesLockError(t *testing.T) {
	service, _ := newTestCronService(t, &fakeLock{err: errors.New("redis down")}, &testJob{name: "job"})
	assert.ErrorContains(t, service.runCycle(context.Background()), "redis down")
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	service, _ := newTestCronService(t, lock.NewKeyedMutex(0), job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, service.Run(ctx), context.Canceled)
	assert.Zero(t, job.runs)
}
