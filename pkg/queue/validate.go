package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/edsonmichaque/durableq/pkg/queue/adapter"
)

// PublishInput is the caller-supplied shape for publishing a job. Type and
// Payload are required; the rest default per Validate.
type PublishInput struct {
	Type         string
	Payload      map[string]interface{}
	Priority     int
	MaxAttempts  int
	ScheduledFor time.Time
	TraceID      string
}

// Validate checks the required fields and fills in defaults for the
// optional ones, in place. Unknown fields don't exist in a typed struct,
// so there is nothing to ignore here beyond what the type system already
// drops; type and range violations on the fields that do exist fail
// immediately.
func (in *PublishInput) Validate() error {
	if in.Type == "" {
		return newValidationError("type", "must be non-empty")
	}
	if in.Payload == nil {
		return newValidationError("payload", "must be present")
	}
	if in.MaxAttempts < 0 {
		return newValidationError("max_attempts", "must be positive")
	}
	if in.MaxAttempts == 0 {
		in.MaxAttempts = 3
	}
	if in.ScheduledFor.IsZero() {
		in.ScheduledFor = time.Now()
	}
	return nil
}

// CompleteInput is the caller-supplied shape for completing a job.
type CompleteInput struct {
	JobID  uuid.UUID
	Result map[string]interface{}
}

func (in *CompleteInput) Validate() error {
	if in.JobID == uuid.Nil {
		return newValidationError("job_id", "must be a valid UUID")
	}
	return nil
}

// FailInput is the caller-supplied shape for failing a job.
type FailInput struct {
	JobID uuid.UUID
	Error string
}

func (in *FailInput) Validate() error {
	if in.JobID == uuid.Nil {
		return newValidationError("job_id", "must be a valid UUID")
	}
	if in.Error == "" {
		return newValidationError("error", "must be non-empty")
	}
	return nil
}

// validateEnvelope re-validates an envelope returned from an adapter. It
// exists to catch storage drift — a row that no longer satisfies the
// invariants §3.1 of the data model promises — cheaply, before the
// envelope reaches a caller.
func validateEnvelope(env *adapter.JobEnvelope) error {
	if env == nil {
		return nil
	}
	if env.JobID == uuid.Nil {
		return newValidationError("job_id", "adapter returned a zero UUID")
	}
	if env.Type == "" {
		return newValidationError("type", "adapter returned an empty type")
	}
	switch env.Status {
	case adapter.StatusPending, adapter.StatusProcessing, adapter.StatusCompleted, adapter.StatusFailed:
	default:
		return newValidationError("status", "adapter returned an unrecognized status")
	}
	if env.Status == adapter.StatusProcessing && (env.WorkerID == nil || env.StartedAt == nil) {
		return newValidationError("worker_id", "processing envelope missing worker_id or started_at")
	}
	if env.Status == adapter.StatusCompleted && env.CompletedAt == nil {
		return newValidationError("completed_at", "completed envelope missing completed_at")
	}
	if env.Attempts > env.MaxAttempts && (env.Status == adapter.StatusCompleted || env.Status == adapter.StatusFailed) {
		return newValidationError("attempts", "exceeds max_attempts on a terminal envelope")
	}
	return nil
}
