package scheduler

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownTimezone(t *testing.T) {
	_, err := New("Mars/Olympus_Mons", zerolog.Nop())
	assert.ErrorContains(t, err, "invalid timezone")
}

func TestScrapeSchedule(t *testing.T) {
	assert.Equal(t, "0 */2 * * *", ScrapeSchedule(2))
	assert.Equal(t, "0 */1 * * *", ScrapeSchedule(1))
	assert.Equal(t, "@every 48h", ScrapeSchedule(48))
}

func TestAddAndRemoveJobs(t *testing.T) {
	s, err := New("UTC", zerolog.Nop())
	require.NoError(t, err)

	noop := func(context.Context) error { return nil }
	require.NoError(t, s.AddScrapeJob(2, noop))
	require.NoError(t, s.AddScrapeJob(36, noop), "replaces the scrape entry name")
	assert.ErrorContains(t, s.AddJob("broken", "not a schedule", noop), "failed to schedule job broken")

	s.Start(context.Background())
	defer s.Stop()

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "scrape", jobs[0].Name)
	assert.False(t, jobs[0].NextRun.IsZero())

	s.RemoveJob("scrape")
	assert.Empty(t, s.ListJobs())
	s.RemoveJob("missing")
}

func TestStartLogsScheduledJobs(t *testing.T) {
	var buf bytes.Buffer
	s, err := New("UTC", zerolog.New(&buf))
	require.NoError(t, err)
	require.NoError(t, s.AddScrapeJob(6, func(context.Context) error { return nil }))

	s.Start(context.Background())
	defer s.Stop()

	assert.Contains(t, buf.String(), `"job":"scrape"`)
	assert.Contains(t, buf.String(), `"next_run":`)
	assert.Contains(t, buf.String(), `"message":"job scheduled"`)
}

func TestWrappedJobUsesStartContext(t *testing.T) {
	s, err := New("UTC", zerolog.Nop())
	require.NoError(t, err)
	s.jobTimeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	var got context.Context
	s.wrap("sample", func(jobCtx context.Context) error {
		got = jobCtx
		cancel()
		return errors.New("keyword failed")
	})()

	require.NotNil(t, got)
	_, hasDeadline := got.Deadline()
	assert.True(t, hasDeadline)
	assert.ErrorIs(t, got.Err(), context.Canceled)
}

func TestJobRunsOnSchedule(t *testing.T) {
	s, err := New("UTC", zerolog.Nop())
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	require.NoError(t, s.AddJob("tick", "@every 1s", func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}))

	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not run")
	}
}
