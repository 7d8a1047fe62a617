package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestAddJobValidation(t *testing.T) {
	s := newScheduler(t)
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.AddJob("", "0 * * * *", noop))
	assert.Error(t, s.AddJob("x", "", noop))
	assert.Error(t, s.AddJob("x", "0 * * * *", nil))
	assert.Error(t, s.AddJob("x", "not a cron", noop))
	assert.NoError(t, s.AddJob("x", "0 * * * *", noop))

	assert.Error(t, s.RunNow("missing"))
}

type fakePurger struct{ calls atomic.Int32 }

func (p *fakePurger) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	p.calls.Add(1)
	return 3, ctx.Err()
}

type fakeSweeper struct {
	calls atomic.Int32
	age   atomic.Int64
}

func (s *fakeSweeper) SweepTemp(maxAge time.Duration) (int, error) {
	s.calls.Add(1)
	s.age.Store(int64(maxAge))
	return 0, errors.New("disk gone")
}

func TestMaintenanceJobs(t *testing.T) {
	s := newScheduler(t)
	purger := &fakePurger{}
	sweeper := &fakeSweeper{}

	require.NoError(t, s.RegisterMaintenance(Schedules{
		PurgeSessions: "0 3 * * *",
		SweepUploads:  "30 3 * * *",
	}, purger, sweeper))

	require.NoError(t, s.RunNow(PurgeSessionsJob))
	require.NoError(t, s.RunNow(SweepUploadsJob))

	assert.Eventually(t, func() bool {
		return purger.calls.Load() == 1 && sweeper.calls.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(staleUploadAge), sweeper.age.Load())
}

func TestRegisterMaintenanceRejectsBadSchedule(t *testing.T) {
	s := newScheduler(t)
	err := s.RegisterMaintenance(Schedules{PurgeSessions: "61 * * * *", SweepUploads: "0 4 * * *"}, &fakePurger{}, &fakeSweeper{})
	assert.Error(t, err)
}

func TestStopCancelsRunningJob(t *testing.T) {
	s, err := New(zap.NewNop())
	require.NoError(t, err)

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.AddJob("blocker", "0 0 1 1 *", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))
	require.NoError(t, s.RunNow("blocker"))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}
	require.NoError(t, s.Stop())
	assert.Eventually(t, cancelled.Load, time.Second, 10*time.Millisecond)
}
