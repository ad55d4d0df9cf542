package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/edsonmichaque/durableq/internal/logger"
	"github.com/edsonmichaque/durableq/internal/metrics"
	"github.com/edsonmichaque/durableq/internal/tracing"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// DatabaseConfig configures the durable adapter. Callers provide either a
// DSN or the discrete connection parameters; DSN wins if both are set. No
// environment variable reading happens here — the caller owns that.
type DatabaseConfig struct {
	DSN string

	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// Schema and Table override the default namespace ("queue") and
	// table ("jobs"). Both are adapter-construction-time settings, not
	// per-call input.
	Schema string
	Table  string
}

func (c DatabaseConfig) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, sslMode)
}

func (c DatabaseConfig) schema() string {
	if c.Schema == "" {
		return "queue"
	}
	return c.Schema
}

func (c DatabaseConfig) table() string {
	if c.Table == "" {
		return "jobs"
	}
	return c.Table
}

func (c DatabaseConfig) qualifiedTable() string {
	return c.schema() + "." + c.table()
}

// DurableAdapter implements Adapter against PostgreSQL using GORM for
// connection management and schema bootstrap, and raw SQL for the
// atomic-claim and backoff statements the spec requires to be evaluated in
// a single round trip.
type DurableAdapter struct {
	db      *gorm.DB
	table   string
	schema  string
	logger  *logger.Logger
	metrics *metrics.Metrics
	tracer  *tracing.Tracer
}

// NewDurableAdapter opens a connection and returns an uninitialized
// adapter; callers must call Initialize before first use.
func NewDurableAdapter(cfg DatabaseConfig, log *logger.Logger, m *metrics.Metrics, tracer *tracing.Tracer) (*DurableAdapter, error) {
	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("durable adapter: connect to postgres: %w", err)
	}

	return &DurableAdapter{
		db:      db,
		table:   cfg.qualifiedTable(),
		schema:  cfg.schema(),
		logger:  log,
		metrics: m,
		tracer:  tracer,
	}, nil
}

// Initialize creates the namespace, table, and the four indexes from the
// claim/lookup hot paths. It is idempotent.
func (d *DurableAdapter) Initialize(ctx context.Context) error {
	if err := d.db.WithContext(ctx).Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, d.schema)).Error; err != nil {
		return fmt.Errorf("durable adapter: create schema: %w", err)
	}

	if err := d.db.WithContext(ctx).Table(d.table).AutoMigrate(&JobEnvelope{}); err != nil {
		return fmt.Errorf("durable adapter: migrate table: %w", err)
	}

	indexes := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_jobs_claim ON %s (priority DESC, scheduled_for ASC) WHERE status = 'pending'`, d.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_jobs_type ON %s (type)`, d.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_jobs_worker ON %s (worker_id) WHERE worker_id IS NOT NULL`, d.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_jobs_trace ON %s (trace_id)`, d.table),
	}
	for _, stmt := range indexes {
		if err := d.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("durable adapter: create index: %w", err)
		}
	}

	return nil
}

// Close releases the underlying connection pool.
func (d *DurableAdapter) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("durable adapter: close: %w", err)
	}
	return sqlDB.Close()
}

func (d *DurableAdapter) observe(operation string, start time.Time) {
	if d.metrics != nil {
		d.metrics.RecordQuery(operation, time.Since(start))
	}
}

// startSpan is a nil-safe wrapper: the tracer is optional, so every query
// path goes through here instead of calling d.tracer directly.
func (d *DurableAdapter) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if d.tracer == nil {
		return noop.NewTracerProvider().Tracer("queue").Start(ctx, operation)
	}
	return d.tracer.StartDatabaseSpan(ctx, operation, d.table)
}

// Insert persists a fully-formed envelope, generating a job_id and default
// scheduled_for when the caller left them unset.
func (d *DurableAdapter) Insert(ctx context.Context, envelope *JobEnvelope) (*JobEnvelope, error) {
	start := time.Now()
	ctx, span := d.startSpan(ctx, "insert")
	defer span.End()

	if envelope.JobID == uuid.Nil {
		envelope.JobID = uuid.New()
	}
	now := time.Now()
	if envelope.CreatedAt.IsZero() {
		envelope.CreatedAt = now
	}
	envelope.UpdatedAt = now
	if envelope.ScheduledFor.IsZero() {
		envelope.ScheduledFor = now
	}
	if envelope.Status == "" {
		envelope.Status = StatusPending
	}

	if err := d.db.WithContext(ctx).Table(d.table).Create(envelope).Error; err != nil {
		return nil, fmt.Errorf("durable adapter: insert: %w", err)
	}

	d.observe("insert", start)
	if d.logger != nil {
		d.logger.Debug("job inserted", zap.String("job_id", envelope.JobID.String()), zap.String("type", envelope.Type))
	}
	return envelope, nil
}

// Claim atomically transitions one eligible pending job to processing
// using FOR UPDATE SKIP LOCKED so idle workers never block on a row
// another worker is in the middle of claiming.
func (d *DurableAdapter) Claim(ctx context.Context, workerName string, jobTypes []string) (*JobEnvelope, error) {
	start := time.Now()
	ctx, span := d.startSpan(ctx, "claim")
	defer span.End()

	var query string
	args := []interface{}{workerName}
	if len(jobTypes) > 0 {
		query = fmt.Sprintf(`
UPDATE %s SET status = 'processing', started_at = now(), updated_at = now(),
              worker_id = ?, attempts = attempts + 1
WHERE id = (
	SELECT id FROM %s
	WHERE status = 'pending' AND scheduled_for <= now() AND type = ANY(?)
	ORDER BY priority DESC, scheduled_for ASC
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING *`, d.table, d.table)
		args = append(args, jobTypes)
	} else {
		query = fmt.Sprintf(`
UPDATE %s SET status = 'processing', started_at = now(), updated_at = now(),
              worker_id = ?, attempts = attempts + 1
WHERE id = (
	SELECT id FROM %s
	WHERE status = 'pending' AND scheduled_for <= now()
	ORDER BY priority DESC, scheduled_for ASC
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING *`, d.table, d.table)
	}

	var envelope JobEnvelope
	result := d.db.WithContext(ctx).Raw(query, args...).Scan(&envelope)
	if result.Error != nil {
		return nil, fmt.Errorf("durable adapter: claim: %w", result.Error)
	}
	d.observe("claim", start)
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &envelope, nil
}

// Complete transitions a processing job to completed. The durable adapter
// does not persist the caller's result map — Queue.Complete in package
// queue echoes the caller's map back on the ResultEnvelope.
func (d *DurableAdapter) Complete(ctx context.Context, jobID uuid.UUID, _ map[string]interface{}) (*JobEnvelope, error) {
	start := time.Now()
	ctx, span := d.startSpan(ctx, "complete")
	defer span.End()

	query := fmt.Sprintf(`
UPDATE %s SET status = 'completed', completed_at = now(), updated_at = now()
WHERE id = ? AND status = 'processing'
RETURNING *`, d.table)

	var envelope JobEnvelope
	result := d.db.WithContext(ctx).Raw(query, jobID).Scan(&envelope)
	if result.Error != nil {
		return nil, fmt.Errorf("durable adapter: complete: %w", result.Error)
	}
	d.observe("complete", start)
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &envelope, nil
}

// Fail requeues the job with linear backoff if attempts (already
// incremented by the preceding Claim) remain under max_attempts, or
// terminally fails it otherwise. Both branches, and the choice between
// them, happen in one statement so the decision is made against the row
// under lock rather than a value read by the client beforehand.
func (d *DurableAdapter) Fail(ctx context.Context, jobID uuid.UUID, reason string) (*JobEnvelope, error) {
	start := time.Now()
	ctx, span := d.startSpan(ctx, "fail")
	defer span.End()

	query := fmt.Sprintf(`
UPDATE %s SET
	status = CASE WHEN attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
	error = ?,
	updated_at = now(),
	failed_at = CASE WHEN attempts >= max_attempts THEN now() ELSE failed_at END,
	worker_id = CASE WHEN attempts >= max_attempts THEN worker_id ELSE NULL END,
	scheduled_for = CASE WHEN attempts >= max_attempts THEN scheduled_for ELSE now() + (attempts * interval '30 seconds') END
WHERE id = ? AND status = 'processing'
RETURNING *`, d.table)

	var envelope JobEnvelope
	result := d.db.WithContext(ctx).Raw(query, reason, jobID).Scan(&envelope)
	if result.Error != nil {
		return nil, fmt.Errorf("durable adapter: fail: %w", result.Error)
	}
	d.observe("fail", start)
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &envelope, nil
}
