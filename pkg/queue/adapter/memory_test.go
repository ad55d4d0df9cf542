package adapter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestEnvelope(jobType string, priority int) *JobEnvelope {
	return &JobEnvelope{
		TraceID:     "trace-" + jobType,
		Type:        jobType,
		Payload:     json.RawMessage(`{"ok":true}`),
		Priority:    priority,
		MaxAttempts: 3,
	}
}

func TestMemoryAdapter_InsertAppliesDefaults(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	stored, err := m.Insert(ctx, newTestEnvelope("email", 0))
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, stored.JobID)
	require.Equal(t, StatusPending, stored.Status)
	require.False(t, stored.CreatedAt.IsZero())
	require.False(t, stored.ScheduledFor.IsZero())
}

func TestMemoryAdapter_ClaimNoEligibleJob(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	env, err := m.Claim(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.Nil(t, env)
}

func TestMemoryAdapter_ClaimPriorityOrdering(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	a, err := m.Insert(ctx, newTestEnvelope("a", 0))
	require.NoError(t, err)
	b, err := m.Insert(ctx, newTestEnvelope("b", 10))
	require.NoError(t, err)
	c, err := m.Insert(ctx, newTestEnvelope("c", 5))
	require.NoError(t, err)

	first, err := m.Claim(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.Equal(t, b.JobID, first.JobID)

	second, err := m.Claim(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.Equal(t, c.JobID, second.JobID)

	third, err := m.Claim(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.Equal(t, a.JobID, third.JobID)
}

func TestMemoryAdapter_ClaimScheduleGating(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	now := time.Now()
	m.SetClock(func() time.Time { return now })

	env := newTestEnvelope("delayed", 0)
	env.ScheduledFor = now.Add(60 * time.Second)
	_, err := m.Insert(ctx, env)
	require.NoError(t, err)

	claimed, err := m.Claim(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.Nil(t, claimed)

	m.SetClock(func() time.Time { return now.Add(61 * time.Second) })
	claimed, err = m.Claim(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.NotNil(t, claimed)
}

func TestMemoryAdapter_ClaimTypeFilter(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	a, err := m.Insert(ctx, newTestEnvelope("x", 0))
	require.NoError(t, err)
	b, err := m.Insert(ctx, newTestEnvelope("y", 0))
	require.NoError(t, err)

	claimed, err := m.Claim(ctx, "worker-1", []string{"y"})
	require.NoError(t, err)
	require.Equal(t, b.JobID, claimed.JobID)

	claimed, err = m.Claim(ctx, "worker-1", []string{"y"})
	require.NoError(t, err)
	require.Nil(t, claimed)

	claimed, err = m.Claim(ctx, "worker-1", []string{"x"})
	require.NoError(t, err)
	require.Equal(t, a.JobID, claimed.JobID)
}

func TestMemoryAdapter_RetryWithBackoffThenTerminalFail(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	now := time.Now()
	m.SetClock(func() time.Time { return now })

	env := newTestEnvelope("job", 0)
	env.MaxAttempts = 3
	stored, err := m.Insert(ctx, env)
	require.NoError(t, err)

	claimed, err := m.Claim(ctx, "worker-1", nil)
	require.NoError(t, err)
	failed, err := m.Fail(ctx, claimed.JobID, "boom")
	require.NoError(t, err)
	require.Equal(t, StatusPending, failed.Status)
	require.Equal(t, 1, failed.Attempts)
	require.WithinDuration(t, now.Add(30*time.Second), failed.ScheduledFor, time.Second)

	m.SetClock(func() time.Time { return now.Add(31 * time.Second) })
	claimed, err = m.Claim(ctx, "worker-1", nil)
	require.NoError(t, err)
	failed, err = m.Fail(ctx, claimed.JobID, "boom")
	require.NoError(t, err)
	require.Equal(t, StatusPending, failed.Status)
	require.Equal(t, 2, failed.Attempts)

	m.SetClock(func() time.Time { return now.Add(100 * time.Second) })
	claimed, err = m.Claim(ctx, "worker-1", nil)
	require.NoError(t, err)
	failed, err = m.Fail(ctx, claimed.JobID, "boom")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, failed.Status)
	require.Equal(t, 3, failed.Attempts)
	require.Equal(t, "boom", *failed.Error)
	require.Equal(t, stored.JobID, failed.JobID)
}

func TestMemoryAdapter_CompleteStoresResultAndIsIdempotent(t *testing.T) {
	m := NewMemoryAdapter()
	ctx := context.Background()

	stored, err := m.Insert(ctx, newTestEnvelope("email", 0))
	require.NoError(t, err)
	claimed, err := m.Claim(ctx, "worker-1", nil)
	require.NoError(t, err)

	result := map[string]interface{}{"sent": true}
	completed, err := m.Complete(ctx, claimed.JobID, result)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.Equal(t, result, completed.Result)
	require.NotNil(t, completed.CompletedAt)

	again, err := m.Complete(ctx, stored.JobID, result)
	require.NoError(t, err)
	require.Nil(t, again)

	failAgain, err := m.Fail(ctx, stored.JobID, "too late")
	require.NoError(t, err)
	require.Nil(t, failAgain)
}
