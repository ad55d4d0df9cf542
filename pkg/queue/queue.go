// Package queue is the public surface of the job queue: the envelope
// types, input validation, and the five operations (publish, claim_next,
// complete, fail, plus adapter lifecycle) that wrap whichever Adapter
// backs the queue.
package queue

import (
	"context"
	"fmt"

	"github.com/edsonmichaque/durableq/internal/logger"
	"github.com/edsonmichaque/durableq/internal/metrics"
	"github.com/edsonmichaque/durableq/internal/tracing"
	"github.com/edsonmichaque/durableq/pkg/queue/adapter"
)

// JobEnvelope, ResultEnvelope, Status, and Adapter are re-exported from
// the adapter package so callers of this package don't need a second
// import for the shapes they pass around.
type (
	JobEnvelope    = adapter.JobEnvelope
	ResultEnvelope = adapter.ResultEnvelope
	Status         = adapter.Status
	Adapter        = adapter.Adapter
	DatabaseConfig = adapter.DatabaseConfig
)

const (
	StatusPending    = adapter.StatusPending
	StatusProcessing = adapter.StatusProcessing
	StatusCompleted  = adapter.StatusCompleted
	StatusFailed     = adapter.StatusFailed
)

// AdapterType selects which backend NewAdapter constructs.
type AdapterType string

const (
	AdapterDurable AdapterType = "durable"
	AdapterMemory  AdapterType = "memory"
)

// NewAdapter constructs the requested backend. dbConfig is ignored for
// AdapterMemory. log, m, and tracer are optional for both backends; the
// durable adapter treats a nil metrics/tracer as "don't instrument" and
// the in-memory adapter ignores them entirely (there is nothing to
// instrument without I/O).
func NewAdapter(kind AdapterType, dbConfig adapter.DatabaseConfig, log *logger.Logger, m *metrics.Metrics, tracer *tracing.Tracer) (Adapter, error) {
	switch kind {
	case AdapterDurable:
		return adapter.NewDurableAdapter(dbConfig, log, m, tracer)
	case AdapterMemory:
		return adapter.NewMemoryAdapter(), nil
	default:
		return nil, newConfigurationError("kind", fmt.Sprintf("unknown adapter type %q", kind))
	}
}

// Queue wraps an Adapter with the validation and ID-assignment discipline
// of the queue operations layer. It holds no state of its own beyond the
// adapter reference — every method is safe to call concurrently exactly
// to the extent the underlying adapter is.
type Queue struct {
	adapter Adapter
	logger  *logger.Logger
}

// New wraps an already-constructed adapter. Callers are responsible for
// calling Initialize on it (directly, or via Queue.Initialize) before
// first use.
func New(a Adapter, log *logger.Logger) *Queue {
	return &Queue{adapter: a, logger: log}
}

// Initialize prepares the underlying adapter's backing storage.
func (q *Queue) Initialize(ctx context.Context) error {
	if err := q.adapter.Initialize(ctx); err != nil {
		return newConfigurationError("adapter", err.Error())
	}
	return nil
}

// Close releases the underlying adapter's resources.
func (q *Queue) Close() error {
	return q.adapter.Close()
}
