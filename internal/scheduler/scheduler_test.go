package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modwatch/modwatch/internal/testutil"
)

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(testutil.NopLogger())
	require.NoError(t, err)
	return s
}

func TestRegisterTask_RejectsDuplicateAndBadCron(t *testing.T) {
	s := newScheduler(t)
	defer s.Stop()

	noop := func(context.Context) error { return nil }
	require.NoError(t, s.RegisterTask(TaskConfig{ID: "a", Name: "A", Cron: "0 0 * * *", Func: noop}))
	assert.Error(t, s.RegisterTask(TaskConfig{ID: "a", Name: "A", Cron: "0 0 * * *", Func: noop}))
	assert.Error(t, s.RegisterTask(TaskConfig{ID: "b", Name: "B", Cron: "not a cron", Func: noop}))
}

func TestRunOnStartAndRunNow(t *testing.T) {
	s := newScheduler(t)

	var runs atomic.Int32
	release := make(chan struct{})
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:         "sync",
		Name:       "Sync",
		Cron:       "0 0 1 1 *",
		RunOnStart: true,
		Func: func(ctx context.Context) error {
			runs.Add(1)
			<-release
			return errors.New("boom")
		},
	}))
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool {
		info, err := s.GetTask("sync")
		return err == nil && info.Running
	}, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, s.RunNow("sync"), ErrTaskRunning)
	assert.ErrorIs(t, s.RunNow("missing"), ErrTaskNotFound)

	close(release)
	require.Eventually(t, func() bool {
		info, _ := s.GetTask("sync")
		return !info.Running && info.LastRun != nil
	}, 2*time.Second, 10*time.Millisecond)

	info, err := s.GetTask("sync")
	require.NoError(t, err)
	assert.Equal(t, "boom", info.LastError)
	assert.NotNil(t, info.NextRun)

	require.NoError(t, s.RunNow("sync"))
	require.NoError(t, s.Stop())
	assert.Equal(t, int32(2), runs.Load())
}

func TestStop_CancelsRunningTask(t *testing.T) {
	s := newScheduler(t)

	started := make(chan struct{})
	var sawCancel atomic.Bool
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:   "slow",
		Name: "Slow",
		Cron: "0 0 1 1 *",
		Func: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			sawCancel.Store(true)
			return ctx.Err()
		},
	}))
	require.NoError(t, s.Start())
	require.NoError(t, s.RunNow("slow"))
	<-started

	require.NoError(t, s.Stop())
	assert.True(t, sawCancel.Load())
}

func TestUnregisterAndList(t *testing.T) {
	s := newScheduler(t)
	defer s.Stop()

	noop := func(context.Context) error { return nil }
	require.NoError(t, s.RegisterTask(TaskConfig{ID: "b", Name: "B", Cron: "0 0 * * *", Func: noop}))
	require.NoError(t, s.RegisterTask(TaskConfig{ID: "a", Name: "A", Cron: "0 0 * * *", Func: noop}))

	list := s.ListTasks()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)

	require.NoError(t, s.UnregisterTask("a"))
	require.NoError(t, s.UnregisterTask("a"))
	_, err := s.GetTask("a")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
