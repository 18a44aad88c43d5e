package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cron "github.com/netresearch/go-cron"
)

const (
	// DefaultEvaluationSchedule is used when an assertion spec carries no
	// trigger schedule.
	DefaultEvaluationSchedule = "0 * * * *"
	// DefaultEvaluationTimezone is used when an assertion spec carries a
	// schedule without a timezone.
	DefaultEvaluationTimezone = "America/Los_Angeles"
	// DefaultEvaluationTimeout caps a single evaluation.
	DefaultEvaluationTimeout = 5 * time.Minute
	// DefaultStopTimeout is the graceful shutdown timeout.
	DefaultStopTimeout = 30 * time.Second
)

// SchedulerConfig tunes the assertion scheduler. Zero values mean defaults.
type SchedulerConfig struct {
	DefaultSchedule   string
	DefaultTimezone   string
	EvaluationTimeout time.Duration
	Workers           int
	QueueSize         int
}

func (c *SchedulerConfig) applyDefaults() {
	if c.DefaultSchedule == "" {
		c.DefaultSchedule = DefaultEvaluationSchedule
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = DefaultEvaluationTimezone
	}
	if c.EvaluationTimeout <= 0 {
		c.EvaluationTimeout = DefaultEvaluationTimeout
	}
	if c.Workers <= 0 {
		c.Workers = DefaultPoolWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultPoolQueueSize
	}
}

// AssertionScheduler owns the cron entries for assertion evaluation jobs,
// one entry per assertion urn. Fired entries hand evaluations to a bounded
// worker pool so a slow warehouse cannot stall the cron loop.
type AssertionScheduler struct {
	engine  *AssertionEngine
	pool    *WorkerPool
	logger  *slog.Logger
	metrics MetricsRecorder
	cfg     SchedulerConfig

	cron *cron.Cron

	mu      sync.RWMutex
	jobs    map[string]*scheduledAssertion
	stopped bool
}

// scheduledAssertion is the bound state of one cron entry.
type scheduledAssertion struct {
	entryID  cron.EntryID
	spec     AssertionEvaluationSpec
	evalCtx  EvaluationContext
	cronExpr string
	timezone string
}

func NewAssertionScheduler(engine *AssertionEngine, metrics MetricsRecorder, logger *slog.Logger, cfg SchedulerConfig) *AssertionScheduler {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = NopMetrics{}
	}
	cronLog := newCronLogger(logger)
	cronInstance := cron.New(
		cron.WithParser(cron.FullParser()),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog)),
		cron.WithCapacity(64),
	)
	return &AssertionScheduler{
		engine:  engine,
		pool:    NewWorkerPool(cfg.Workers, cfg.QueueSize, metrics, logger),
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		cron:    cronInstance,
		jobs:    make(map[string]*scheduledAssertion),
	}
}

// Start begins firing scheduled assertions.
func (s *AssertionScheduler) Start() {
	s.logger.Debug("starting assertion scheduler")
	s.cron.Start()
}

// Stop shuts the scheduler down, waiting up to DefaultStopTimeout for
// in-flight evaluations.
func (s *AssertionScheduler) Stop() error {
	return s.StopWithTimeout(DefaultStopTimeout)
}

func (s *AssertionScheduler) StopWithTimeout(timeout time.Duration) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	completed := s.cron.StopWithTimeout(timeout)
	s.pool.Stop()
	if !completed {
		s.logger.Warn("scheduler stop timed out, evaluations may still be running", "timeout", timeout)
		return fmt.Errorf("%w after %v", ErrSchedulerTimeout, timeout)
	}
	s.logger.Debug("scheduler stopped gracefully")
	return nil
}

func (s *AssertionScheduler) IsRunning() bool {
	return s.cron.IsRunning()
}

// ScheduleAssertion registers or replaces the evaluation job for the spec's
// assertion. An existing entry for the same assertion urn is removed first,
// so rescheduling picks up spec changes. Returns the cron entry id.
func (s *AssertionScheduler) ScheduleAssertion(spec AssertionEvaluationSpec, evalCtx EvaluationContext) (string, error) {
	urn := spec.Assertion.URN
	if urn == "" {
		return "", fmt.Errorf("%w: missing assertion urn", ErrMalformedAssertion)
	}

	cronExpr := spec.Schedule.Cron
	if cronExpr == "" {
		cronExpr = s.cfg.DefaultSchedule
	}
	timezone := spec.Schedule.Timezone
	if timezone == "" {
		timezone = s.cfg.DefaultTimezone
	}
	// Validate before touching any existing registration.
	if _, err := ParseCronSchedule(cronExpr, timezone); err != nil {
		return "", WrapAssertionError("schedule", urn, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", ErrSchedulerStopped
	}
	if _, ok := s.jobs[urn]; ok {
		s.removeLocked(urn)
	}

	sa := &scheduledAssertion{
		spec:     spec,
		evalCtx:  evalCtx,
		cronExpr: cronExpr,
		timezone: timezone,
	}
	id, err := s.cron.AddJob("CRON_TZ="+timezone+" "+cronExpr, &assertionJob{s: s, sa: sa}, cron.WithName(urn))
	if err != nil {
		return "", WrapAssertionError("schedule", urn, fmt.Errorf("%w: %v", ErrInvalidCronExpression, err))
	}
	sa.entryID = id
	s.jobs[urn] = sa
	s.metrics.SetScheduledAssertions(len(s.jobs))

	s.logger.Info("assertion scheduled", "urn", urn, "cron", cronExpr, "timezone", timezone, "entryID", id)
	return fmt.Sprintf("%d", id), nil
}

// UnscheduleAssertion removes the evaluation job for an assertion urn.
// Unknown urns are a no-op.
func (s *AssertionScheduler) UnscheduleAssertion(urn string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[urn]; !ok {
		return false
	}
	s.removeLocked(urn)
	s.metrics.SetScheduledAssertions(len(s.jobs))
	s.logger.Info("assertion unscheduled", "urn", urn)
	return true
}

func (s *AssertionScheduler) removeLocked(urn string) {
	s.cron.RemoveByName(urn)
	s.cron.WaitForJobByName(urn)
	delete(s.jobs, urn)
}

// ScheduledURNs returns the urns of all currently scheduled assertions.
func (s *AssertionScheduler) ScheduledURNs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	urns := make([]string, 0, len(s.jobs))
	for urn := range s.jobs {
		urns = append(urns, urn)
	}
	return urns
}

// IsScheduled reports whether the assertion urn has a registered job.
func (s *AssertionScheduler) IsScheduled(urn string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[urn]
	return ok
}

// NextEvaluation returns the next fire time for an assertion urn, or the
// zero time when the urn is unknown.
func (s *AssertionScheduler) NextEvaluation(urn string) time.Time {
	entry := s.cron.EntryByName(urn)
	if !entry.Valid() {
		return time.Time{}
	}
	return entry.Next
}

// TriggerEvaluation fires the assertion's job immediately, outside its
// schedule.
func (s *AssertionScheduler) TriggerEvaluation(urn string) error {
	s.mu.RLock()
	_, ok := s.jobs[urn]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("trigger assertion %q: not scheduled", urn)
	}
	if err := s.cron.TriggerEntryByName(urn); err != nil {
		return fmt.Errorf("trigger assertion %q: %w", urn, err)
	}
	return nil
}

// assertionJob adapts a scheduled assertion to the cron job interface. The
// cron fire only enqueues; the pool runs the evaluation.
type assertionJob struct {
	s  *AssertionScheduler
	sa *scheduledAssertion
}

var _ cron.Job = (*assertionJob)(nil)

func (j *assertionJob) Run() {
	if !j.s.pool.Submit(func() { j.s.runEvaluation(j.sa) }) {
		j.s.logger.Warn("evaluation not enqueued", "urn", j.sa.spec.Assertion.URN)
	}
}

// runEvaluation executes one evaluation under the configured timeout. All
// failures are contained here: one broken assertion must never take down
// the scheduler or its neighbors.
func (s *AssertionScheduler) runEvaluation(sa *scheduledAssertion) {
	urn := sa.spec.Assertion.URN
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("evaluation panicked", "urn", urn, "recover", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.EvaluationTimeout)
	defer cancel()

	result, err := s.engine.Evaluate(ctx, &sa.spec.Assertion, sa.spec.Parameters, sa.evalCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrEvaluationTimeout, err)
		}
		s.logger.Error("assertion evaluation failed", "urn", urn, "error", err)
		return
	}
	s.logger.Info("assertion evaluated", "urn", urn, "result", result.Type, "events", len(result.Events))
}
