// Package adapter defines the storage contract for the job queue and the
// two backends that implement it: a durable Postgres-backed adapter and an
// in-memory reference adapter used by tests.
package adapter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// JobEnvelope is the canonical record for one unit of work. It is the
// shape persisted by every adapter and the shape handed back to callers.
type JobEnvelope struct {
	JobID        uuid.UUID       `json:"job_id" gorm:"column:id;type:uuid;primary_key;default:gen_random_uuid()"`
	TraceID      string          `json:"trace_id" gorm:"not null"`
	Type         string          `json:"type" gorm:"not null"`
	Payload      json.RawMessage `json:"payload" gorm:"type:jsonb;not null"`
	Status       Status          `json:"status" gorm:"not null;default:pending"`
	Priority     int             `json:"priority" gorm:"not null;default:0"`
	Attempts     int             `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts  int             `json:"max_attempts" gorm:"not null;default:3"`
	CreatedAt    time.Time       `json:"created_at" gorm:"not null;default:now()"`
	UpdatedAt    time.Time       `json:"updated_at" gorm:"not null;default:now()"`
	ScheduledFor time.Time       `json:"scheduled_for" gorm:"not null;default:now()"`
	StartedAt    *time.Time      `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
	FailedAt     *time.Time      `json:"failed_at"`
	Error        *string         `json:"error"`
	WorkerID     *string         `json:"worker_id" gorm:"index"`

	// Result holds the completion result on adapters that keep it on the
	// envelope (the in-memory adapter). The durable adapter has no result
	// column and never populates this; see the result persistence note in
	// DESIGN.md.
	Result map[string]interface{} `json:"result,omitempty" gorm:"-"`
}

// TableName returns the default table name for GORM. Durable adapter
// instances name their configured table on each query with Table(...),
// not by changing the struct tag.
func (JobEnvelope) TableName() string {
	return "jobs"
}

// ResultEnvelope is the derived view returned from Complete/Fail.
type ResultEnvelope struct {
	JobID       uuid.UUID              `json:"job_id"`
	TraceID     string                 `json:"trace_id"`
	Type        string                 `json:"type"`
	Status      Status                 `json:"status"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       *string                `json:"error,omitempty"`
	CompletedAt time.Time              `json:"completed_at"`
}

// Adapter is the narrow storage contract every backend implements. All
// operations are cancellable via ctx. Claim, Complete, and Fail return a
// nil envelope and a nil error when their precondition isn't met (job
// missing, or not in the required state) — this is a silent no-op, not a
// failure.
type Adapter interface {
	// Initialize prepares backing storage. Idempotent, but not
	// concurrency-safe against itself — callers sequence it before first
	// use.
	Initialize(ctx context.Context) error

	// Close releases all resources held by the adapter. Terminal.
	Close() error

	// Insert persists a fully-formed envelope and returns the stored
	// copy, which may have had defaults applied by storage.
	Insert(ctx context.Context, envelope *JobEnvelope) (*JobEnvelope, error)

	// Claim atomically transitions one eligible pending job to
	// processing and returns it. jobTypes empty means no type filter.
	// Returns (nil, nil) if no eligible job exists.
	Claim(ctx context.Context, workerName string, jobTypes []string) (*JobEnvelope, error)

	// Complete transitions a processing job to completed. Returns
	// (nil, nil) if the job is missing or not in processing.
	Complete(ctx context.Context, jobID uuid.UUID, result map[string]interface{}) (*JobEnvelope, error)

	// Fail requeues the job (if attempts < max_attempts after the
	// claim-increment) or terminally fails it. Returns (nil, nil) if the
	// job is missing or not in processing.
	Fail(ctx context.Context, jobID uuid.UUID, reason string) (*JobEnvelope, error)
}

// Backoff is the linear per-attempt delay applied on requeue, per attempt
// count at the moment of failure.
const Backoff = 30 * time.Second
