package queue

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/edsonmichaque/durableq/internal/metrics"
	"github.com/edsonmichaque/durableq/internal/tracing"
)

// JobHandler executes the work for one claimed job. A non-nil error
// fails the job (requeue or terminal, per the adapter's backoff rule); a
// nil error completes it with the returned result.
type JobHandler func(ctx context.Context, job *JobEnvelope) (result map[string]interface{}, err error)

// PollerConfig configures a Poller. WorkerName identifies the poller to
// the adapter's worker_id column; Types filters which job types it
// claims (empty means no filter).
type PollerConfig struct {
	WorkerName   string
	Types        []string
	Concurrency  int
	PollInterval time.Duration
}

// Poller is a convenience loop built on top of Queue: it repeatedly
// claims the next eligible job, runs a handler, and reports the outcome.
// Nothing about Queue or Adapter requires it — a caller that wants its
// own scheduling can call ClaimNext/Complete/Fail directly instead.
type Poller struct {
	queue       *Queue
	workerName  string
	types       []string
	concurrency int
	interval    time.Duration
	metrics     *metrics.Metrics
	tracer      *tracing.Tracer

	shutdown  chan struct{}
	waitGroup sync.WaitGroup
}

// NewPoller builds a Poller over q. m and tracer are optional; a nil
// value simply skips that instrumentation.
func NewPoller(q *Queue, cfg PollerConfig, m *metrics.Metrics, tracer *tracing.Tracer) *Poller {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Poller{
		queue:       q,
		workerName:  cfg.WorkerName,
		types:       cfg.Types,
		concurrency: cfg.Concurrency,
		interval:    cfg.PollInterval,
		metrics:     m,
		tracer:      tracer,
		shutdown:    make(chan struct{}),
	}
}

// Run starts cfg.Concurrency poll loops and blocks until Stop is called
// or ctx is cancelled.
func (p *Poller) Run(ctx context.Context, handler JobHandler) {
	for i := 0; i < p.concurrency; i++ {
		p.waitGroup.Add(1)
		go p.loop(ctx, i, handler)
	}
	p.waitGroup.Wait()
}

// Stop signals every poll loop to exit after its current iteration.
func (p *Poller) Stop() {
	close(p.shutdown)
}

func (p *Poller) loop(ctx context.Context, id int, handler JobHandler) {
	defer p.waitGroup.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx, handler)
		}
	}
}

// pollOnce claims at most one job and runs it through the instrumented
// handler. A claim miss (no eligible job) is silent, matching the
// adapter's own "nothing to do" semantics.
func (p *Poller) pollOnce(ctx context.Context, handler JobHandler) {
	job, err := p.queue.ClaimNext(ctx, p.workerName, p.types)
	if err != nil {
		if p.queue.logger != nil {
			p.queue.logger.Error("poller: claim failed", zap.Error(err))
		}
		return
	}
	if job == nil {
		return
	}

	result, err := p.runInstrumented(ctx, job, handler)
	if err != nil {
		p.fail(ctx, job, err)
		return
	}
	p.complete(ctx, job, result)
}

// runInstrumented wraps handler with the same recovery/logging/metrics/
// tracing concerns the teacher's middleware chain applies to typed jobs,
// adapted to operate on an envelope instead.
func (p *Poller) runInstrumented(ctx context.Context, job *JobEnvelope, handler JobHandler) (result map[string]interface{}, err error) {
	start := time.Now()

	if p.metrics != nil {
		p.metrics.JobStarted.WithLabelValues(job.Type).Inc()
	}

	ctx, endSpan := p.startSpan(ctx, job)
	defer func() { endSpan(err) }()

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("job handler panicked: %v\n%s", r, buf[:n])
		}

		duration := time.Since(start)
		if p.metrics != nil {
			p.metrics.JobDuration.WithLabelValues(job.Type).Observe(duration.Seconds())
			if err != nil {
				p.metrics.JobFailed.WithLabelValues(job.Type).Inc()
			} else {
				p.metrics.JobCompleted.WithLabelValues(job.Type).Inc()
			}
		}

		if p.queue.logger != nil {
			log := p.queue.logger.WithString("job_id", job.JobID.String()).
				WithString("job_type", job.Type).
				WithDuration("duration", duration)
			if err != nil {
				log.WithError(err).Error("poller: job failed")
			} else {
				log.Info("poller: job completed")
			}
		}
	}()

	result, err = handler(ctx, job)
	return result, err
}

func (p *Poller) startSpan(ctx context.Context, job *JobEnvelope) (context.Context, func(error)) {
	if p.tracer == nil {
		return ctx, func(error) {}
	}
	ctx, span := p.tracer.StartSpanWithAttributes(ctx, fmt.Sprintf("poller.%s", job.Type), map[string]interface{}{
		"job.type":     job.Type,
		"job.priority": job.Priority,
	})
	span.SetAttributes(attribute.String("job.id", job.JobID.String()))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

func (p *Poller) complete(ctx context.Context, job *JobEnvelope, result map[string]interface{}) {
	if _, err := p.queue.Complete(ctx, CompleteInput{JobID: job.JobID, Result: result}); err != nil {
		if p.queue.logger != nil {
			p.queue.logger.WithError(err).Error("poller: complete failed")
		}
	}
}

func (p *Poller) fail(ctx context.Context, job *JobEnvelope, handlerErr error) {
	if _, err := p.queue.Fail(ctx, FailInput{JobID: job.JobID, Error: handlerErr.Error()}); err != nil {
		if p.queue.logger != nil {
			p.queue.logger.WithError(err).Error("poller: fail failed")
		}
	}
}
