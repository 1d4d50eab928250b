package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

func TestAddJob(t *testing.T) {
	s := New(nil)

	require.NoError(t, s.AddJob("daily-evaluation", "5 0 * * *", time.Minute, noop))
	assert.Error(t, s.AddJob("daily-evaluation", "5 0 * * *", time.Minute, noop), "duplicate name")
	assert.Error(t, s.AddJob("broken", "not a schedule", time.Minute, noop))

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "daily-evaluation", jobs[0].Name)
	assert.Equal(t, "5 0 * * *", jobs[0].Schedule)

	s.RemoveJob("daily-evaluation")
	assert.Empty(t, s.ListJobs())
}

func TestListJobsNextRunInLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	s := New(loc)
	require.NoError(t, s.AddJob("daily-evaluation", "5 0 * * *", 0, noop))
	s.Start()
	defer s.Stop()

	// Entries get their next activation once the cron loop runs.
	require.Eventually(t, func() bool {
		jobs := s.ListJobs()
		return len(jobs) == 1 && !jobs[0].NextRun.IsZero()
	}, time.Second, 10*time.Millisecond)

	next := s.ListJobs()[0].NextRun.In(loc)
	assert.Equal(t, 0, next.Hour())
	assert.Equal(t, 5, next.Minute())
}

func TestRunNow(t *testing.T) {
	s := New(time.UTC)

	var deadline bool
	err := s.RunNow("manual", time.Minute, func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return nil
	})
	require.NoError(t, err)
	assert.True(t, deadline)

	boom := errors.New("boom")
	err = s.RunNow("manual", 0, func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)
}
