package adapter

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryAdapter is the in-memory reference implementation of Adapter. It
// gives identical observable semantics to the durable adapter for tests.
// Claim here is a linear scan guarded by the adapter's mutex, so claims
// within one process are serialized; there is no coordination across
// processes like the durable adapter's row locks.
type MemoryAdapter struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*JobEnvelope

	// clock is overridable by tests that need to advance time past a
	// scheduled_for or backoff window without sleeping.
	clock func() time.Time
}

// NewMemoryAdapter creates an empty in-memory adapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		jobs:  make(map[uuid.UUID]*JobEnvelope),
		clock: time.Now,
	}
}

// SetClock overrides the adapter's time source. Intended for tests.
func (m *MemoryAdapter) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
}

// Initialize is a no-op; there is no backing store to prepare.
func (m *MemoryAdapter) Initialize(ctx context.Context) error {
	return nil
}

// Close discards all jobs held by the adapter.
func (m *MemoryAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = nil
	return nil
}

// Insert stores a copy of envelope, applying the same defaults the durable
// adapter applies: a generated job_id if absent, and created_at/updated_at/
// scheduled_for defaulted to now.
func (m *MemoryAdapter) Insert(ctx context.Context, envelope *JobEnvelope) (*JobEnvelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	stored := *envelope
	if stored.JobID == uuid.Nil {
		stored.JobID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}
	if stored.ScheduledFor.IsZero() {
		stored.ScheduledFor = now
	}
	if stored.Status == "" {
		stored.Status = StatusPending
	}

	m.jobs[stored.JobID] = &stored

	result := stored
	return &result, nil
}

// Claim performs a linear scan over the stored jobs, filters to eligible
// candidates (pending, scheduled_for <= now, type match if jobTypes is
// non-empty), sorts by priority DESC then scheduled_for ASC, and claims
// the first. Mutation happens in place under the adapter's mutex, so
// concurrent calls within one process observe the same at-most-once
// semantics the durable adapter gives across processes.
func (m *MemoryAdapter) Claim(ctx context.Context, workerName string, jobTypes []string) (*JobEnvelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	typeFilter := make(map[string]struct{}, len(jobTypes))
	for _, t := range jobTypes {
		typeFilter[t] = struct{}{}
	}

	var candidates []*JobEnvelope
	for _, j := range m.jobs {
		if j.Status != StatusPending {
			continue
		}
		if j.ScheduledFor.After(now) {
			continue
		}
		if len(typeFilter) > 0 {
			if _, ok := typeFilter[j.Type]; !ok {
				continue
			}
		}
		candidates = append(candidates, j)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].ScheduledFor.Before(candidates[j].ScheduledFor)
	})

	chosen := candidates[0]
	chosen.Status = StatusProcessing
	chosen.Attempts++
	chosen.StartedAt = &now
	chosen.UpdatedAt = now
	worker := workerName
	chosen.WorkerID = &worker

	result := *chosen
	return &result, nil
}

// Complete transitions a processing job to completed and stashes the
// caller's result on the envelope itself — unlike the durable adapter,
// which has no result column and echoes the caller's input back via the
// queue operations layer instead (see the result persistence note in
// DESIGN.md).
func (m *MemoryAdapter) Complete(ctx context.Context, jobID uuid.UUID, result map[string]interface{}) (*JobEnvelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != StatusProcessing {
		return nil, nil
	}

	now := m.clock()
	job.Status = StatusCompleted
	job.CompletedAt = &now
	job.UpdatedAt = now
	job.Result = result

	out := *job
	return &out, nil
}

// Fail applies the same branching rule as the durable adapter: terminally
// fail once attempts (already incremented by Claim) reach max_attempts,
// otherwise requeue with linear backoff.
func (m *MemoryAdapter) Fail(ctx context.Context, jobID uuid.UUID, reason string) (*JobEnvelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != StatusProcessing {
		return nil, nil
	}

	now := m.clock()
	job.UpdatedAt = now
	job.Error = &reason

	if job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		job.FailedAt = &now
	} else {
		job.Status = StatusPending
		job.WorkerID = nil
		job.ScheduledFor = now.Add(time.Duration(job.Attempts) * Backoff)
	}

	out := *job
	return &out, nil
}
