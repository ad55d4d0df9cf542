package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edsonmichaque/durableq/pkg/queue/adapter"
)

// PublishResult is returned from Publish: enough for the caller to
// correlate their input with the stored job without handing back the
// full envelope.
type PublishResult struct {
	JobID   uuid.UUID
	TraceID string
}

// Publish validates input, assigns a job_id and (if absent) a trace_id,
// fills the remaining defaults, and inserts the envelope through the
// adapter. The adapter's response is revalidated before any field of it
// is used, to catch storage drift before it reaches the caller.
func (q *Queue) Publish(ctx context.Context, in PublishInput) (*PublishResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	traceID := in.TraceID
	if traceID == "" {
		traceID = uuid.New().String()
	}

	payload, err := marshalPayload(in.Payload)
	if err != nil {
		return nil, newValidationError("payload", err.Error())
	}

	envelope := &adapter.JobEnvelope{
		JobID:        uuid.New(),
		TraceID:      traceID,
		Type:         in.Type,
		Payload:      payload,
		Priority:     in.Priority,
		MaxAttempts:  in.MaxAttempts,
		ScheduledFor: in.ScheduledFor,
	}

	stored, err := q.adapter.Insert(ctx, envelope)
	if err != nil {
		return nil, newStorageError("insert", err)
	}
	if err := validateEnvelope(stored); err != nil {
		return nil, err
	}

	if q.logger != nil {
		q.logger.Debug("job published", zap.String("job_id", stored.JobID.String()), zap.String("type", stored.Type))
	}

	return &PublishResult{JobID: stored.JobID, TraceID: stored.TraceID}, nil
}

// ClaimNext asks the adapter for the next eligible job of the given
// types (empty means no filter) and revalidates it before returning. A
// nil, nil result means no eligible job was found — not an error.
func (q *Queue) ClaimNext(ctx context.Context, workerName string, jobTypes []string) (*JobEnvelope, error) {
	env, err := q.adapter.Claim(ctx, workerName, jobTypes)
	if err != nil {
		return nil, newStorageError("claim", err)
	}
	if env == nil {
		return nil, nil
	}
	if err := validateEnvelope(env); err != nil {
		return nil, err
	}
	if q.logger != nil {
		q.logger.Debug("job claimed", zap.String("job_id", env.JobID.String()), zap.String("worker_id", workerName))
	}
	return env, nil
}

// Complete validates input and transitions the job to completed. A nil,
// nil result means the job was missing or not in processing — an
// idempotent no-op, not an error.
func (q *Queue) Complete(ctx context.Context, in CompleteInput) (*ResultEnvelope, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	env, err := q.adapter.Complete(ctx, in.JobID, in.Result)
	if err != nil {
		return nil, newStorageError("complete", err)
	}
	if env == nil {
		return nil, nil
	}
	if err := validateEnvelope(env); err != nil {
		return nil, err
	}

	completedAt := env.UpdatedAt
	if env.CompletedAt != nil {
		completedAt = *env.CompletedAt
	}

	return &ResultEnvelope{
		JobID:       env.JobID,
		TraceID:     env.TraceID,
		Type:        env.Type,
		Status:      adapter.StatusCompleted,
		Result:      in.Result,
		CompletedAt: completedAt,
	}, nil
}

// Fail validates input and either requeues the job with backoff or
// terminally fails it, per the adapter's branching rule. The returned
// ResultEnvelope reports the envelope's actual post-update status
// (pending on requeue, failed on terminal failure) rather than
// unconditionally reporting "failed" — see the design notes on this
// operation's surface semantics.
func (q *Queue) Fail(ctx context.Context, in FailInput) (*ResultEnvelope, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	env, err := q.adapter.Fail(ctx, in.JobID, in.Error)
	if err != nil {
		return nil, newStorageError("fail", err)
	}
	if env == nil {
		return nil, nil
	}
	if err := validateEnvelope(env); err != nil {
		return nil, err
	}

	completedAt := env.UpdatedAt
	if env.FailedAt != nil {
		completedAt = *env.FailedAt
	}

	return &ResultEnvelope{
		JobID:       env.JobID,
		TraceID:     env.TraceID,
		Type:        env.Type,
		Status:      env.Status,
		Error:       env.Error,
		CompletedAt: completedAt,
	}, nil
}

func marshalPayload(payload map[string]interface{}) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return b, nil
}
