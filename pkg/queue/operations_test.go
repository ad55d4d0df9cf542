package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edsonmichaque/durableq/pkg/queue/adapter"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	a := adapter.NewMemoryAdapter()
	q := New(a, nil)
	require.NoError(t, q.Initialize(context.Background()))
	return q
}

func TestQueue_BasicFlow(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	pub, err := q.Publish(ctx, PublishInput{
		Type:    "email",
		Payload: map[string]interface{}{"to": "u@e.com"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, pub.TraceID)

	job, err := q.ClaimNext(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, job.Status)
	require.Equal(t, 1, job.Attempts)
	require.NotNil(t, job.WorkerID)

	result, err := q.Complete(ctx, CompleteInput{JobID: job.JobID, Result: map[string]interface{}{"sent": true}})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, true, result.Result["sent"])
}

func TestQueue_PriorityOrdering(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	a, err := q.Publish(ctx, PublishInput{Type: "a", Payload: map[string]interface{}{}, Priority: 0})
	require.NoError(t, err)
	b, err := q.Publish(ctx, PublishInput{Type: "b", Payload: map[string]interface{}{}, Priority: 10})
	require.NoError(t, err)
	c, err := q.Publish(ctx, PublishInput{Type: "c", Payload: map[string]interface{}{}, Priority: 5})
	require.NoError(t, err)

	first, err := q.ClaimNext(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.Equal(t, b.JobID, first.JobID)

	second, err := q.ClaimNext(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.Equal(t, c.JobID, second.JobID)

	third, err := q.ClaimNext(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.Equal(t, a.JobID, third.JobID)
}

func TestQueue_ScheduleGating(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	mem := q.adapter.(*adapter.MemoryAdapter)
	now := time.Now()
	mem.SetClock(func() time.Time { return now })

	_, err := q.Publish(ctx, PublishInput{
		Type:         "delayed",
		Payload:      map[string]interface{}{},
		ScheduledFor: now.Add(60 * time.Second),
	})
	require.NoError(t, err)

	job, err := q.ClaimNext(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.Nil(t, job)

	mem.SetClock(func() time.Time { return now.Add(61 * time.Second) })
	job, err = q.ClaimNext(ctx, "worker-1", nil)
	require.NoError(t, err)
	require.NotNil(t, job)
}

func TestQueue_RetryWithBackoffThenTerminalFail(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	mem := q.adapter.(*adapter.MemoryAdapter)

	pub, err := q.Publish(ctx, PublishInput{
		Type:        "job",
		Payload:     map[string]interface{}{},
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	// Pin the clock after Publish: its default scheduled_for is the real
	// time at publish, which must not be later than the pinned "now".
	now := time.Now()
	mem.SetClock(func() time.Time { return now })

	job, err := q.ClaimNext(ctx, "worker-1", nil)
	require.NoError(t, err)
	result, err := q.Fail(ctx, FailInput{JobID: job.JobID, Error: "boom"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, result.Status)

	mem.SetClock(func() time.Time { return now.Add(31 * time.Second) })
	job, err = q.ClaimNext(ctx, "worker-1", nil)
	require.NoError(t, err)
	result, err = q.Fail(ctx, FailInput{JobID: job.JobID, Error: "boom"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, result.Status)

	mem.SetClock(func() time.Time { return now.Add(100 * time.Second) })
	job, err = q.ClaimNext(ctx, "worker-1", nil)
	require.NoError(t, err)
	result, err = q.Fail(ctx, FailInput{JobID: job.JobID, Error: "boom"})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	require.Equal(t, "boom", *result.Error)
	require.Equal(t, pub.JobID, result.JobID)
}

func TestQueue_TypeFilter(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	a, err := q.Publish(ctx, PublishInput{Type: "x", Payload: map[string]interface{}{}})
	require.NoError(t, err)
	b, err := q.Publish(ctx, PublishInput{Type: "y", Payload: map[string]interface{}{}})
	require.NoError(t, err)

	claimed, err := q.ClaimNext(ctx, "worker-1", []string{"y"})
	require.NoError(t, err)
	require.Equal(t, b.JobID, claimed.JobID)

	claimed, err = q.ClaimNext(ctx, "worker-1", []string{"y"})
	require.NoError(t, err)
	require.Nil(t, claimed)

	claimed, err = q.ClaimNext(ctx, "worker-1", []string{"x"})
	require.NoError(t, err)
	require.Equal(t, a.JobID, claimed.JobID)
}

func TestQueue_IdempotentTerminal(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	pub, err := q.Publish(ctx, PublishInput{Type: "email", Payload: map[string]interface{}{}})
	require.NoError(t, err)
	job, err := q.ClaimNext(ctx, "worker-1", nil)
	require.NoError(t, err)

	_, err = q.Complete(ctx, CompleteInput{JobID: job.JobID})
	require.NoError(t, err)

	again, err := q.Complete(ctx, CompleteInput{JobID: pub.JobID})
	require.NoError(t, err)
	require.Nil(t, again)

	failed, err := q.Fail(ctx, FailInput{JobID: pub.JobID, Error: "too late"})
	require.NoError(t, err)
	require.Nil(t, failed)
}
