package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRefreshInterval is how often the monitor population is reconciled
// against the catalog.
const DefaultRefreshInterval = 1 * time.Minute

// MonitorManager periodically fetches the monitor population from the
// catalog and reconciles the scheduler against it: new or changed
// assertions are (re)scheduled, and assertions that disappeared from the
// catalog are unscheduled.
type MonitorManager struct {
	fetcher   MonitorFetcher
	scheduler *AssertionScheduler
	clock     Clock
	metrics   MetricsRecorder
	logger    *slog.Logger
	interval  time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewMonitorManager(fetcher MonitorFetcher, scheduler *AssertionScheduler, clock Clock, metrics MetricsRecorder, logger *slog.Logger, interval time.Duration) *MonitorManager {
	if clock == nil {
		clock = NewRealClock()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &MonitorManager{
		fetcher:   fetcher,
		scheduler: scheduler,
		clock:     clock,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs an immediate refresh and then the periodic refresh loop until
// Stop is called or the context is canceled.
func (m *MonitorManager) Start(ctx context.Context) {
	m.scheduler.Start()
	m.RefreshMonitors(ctx)

	go func() {
		defer close(m.doneCh)
		ticker := m.clock.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C():
				m.RefreshMonitors(ctx)
			}
		}
	}()
}

// Stop terminates the refresh loop and shuts the scheduler down.
func (m *MonitorManager) Stop() error {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.doneCh
	return m.scheduler.Stop()
}

// RefreshMonitors performs one reconciliation pass. A failed fetch leaves
// the current schedule untouched; partial per-assertion failures only skip
// the affected assertion.
func (m *MonitorManager) RefreshMonitors(ctx context.Context) {
	m.logger.Debug("refreshing monitors")
	monitors, err := m.fetcher.FetchMonitors(ctx)
	if err != nil {
		m.metrics.RecordRefresh(false)
		m.logger.Error("failed to fetch monitors, keeping current schedule", "error", err)
		return
	}

	seen := make(map[string]struct{})
	for i := range monitors {
		monitor := &monitors[i]
		if monitor.Type != MonitorTypeAssertion || monitor.AssertionMonitor == nil {
			m.logger.Warn("skipping monitor of unsupported type", "urn", monitor.URN, "type", monitor.Type)
			continue
		}
		for _, spec := range monitor.AssertionMonitor.Assertions {
			if _, err := m.scheduler.ScheduleAssertion(spec, EvaluationContext{}); err != nil {
				m.logger.Error("failed to schedule assertion", "monitor", monitor.URN, "assertion", spec.Assertion.URN, "error", err)
				continue
			}
			seen[spec.Assertion.URN] = struct{}{}
		}
	}

	// Retire schedules for assertions that no longer exist in the catalog.
	for _, urn := range m.scheduler.ScheduledURNs() {
		if _, ok := seen[urn]; !ok {
			m.scheduler.UnscheduleAssertion(urn)
		}
	}

	m.metrics.RecordRefresh(true)
	m.logger.Debug("monitor refresh complete", "monitors", len(monitors), "assertions", len(seen))
}
