package core

import (
	"context"
	"sync"
)

// captureMetrics records every MetricsRecorder call for assertions.
type captureMetrics struct {
	mu          sync.Mutex
	evaluations map[string]int
	refreshes   map[bool]int
	scheduled   int
	queueDrops  int
}

func newCaptureMetrics() *captureMetrics {
	return &captureMetrics{
		evaluations: make(map[string]int),
		refreshes:   make(map[bool]int),
	}
}

func (m *captureMetrics) RecordEvaluation(assertionType AssertionType, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations[string(assertionType)+"/"+result]++
}

func (m *captureMetrics) RecordRefresh(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes[ok]++
}

func (m *captureMetrics) SetScheduledAssertions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled = n
}

func (m *captureMetrics) RecordQueueDrop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDrops++
}

func (m *captureMetrics) queueDropCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueDrops
}

type fakeEvaluator struct {
	assertionType AssertionType
	result        *EvaluationResult
	err           error
	calls         int
}

func (f *fakeEvaluator) AssertionType() AssertionType { return f.assertionType }

func (f *fakeEvaluator) Evaluate(context.Context, *Assertion, *EvaluationParameters, EvaluationContext) (*EvaluationResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeHandler struct {
	err     error
	handled []*EvaluationResult
}

func (f *fakeHandler) Handle(_ context.Context, _ *Assertion, _ *EvaluationParameters, result *EvaluationResult, _ EvaluationContext) error {
	f.handled = append(f.handled, result)
	return f.err
}

type fakeConnection struct {
	urn      string
	platform string
}

func (c *fakeConnection) URN() string          { return c.urn }
func (c *fakeConnection) PlatformName() string { return c.platform }

type fakeConnectionProvider struct {
	conn Connection
	err  error
}

func (p *fakeConnectionProvider) GetConnection(context.Context, string) (Connection, error) {
	return p.conn, p.err
}

type fakeSource struct {
	events []EntityEvent
	err    error

	lastEntityURN string
	lastEventType EntityEventType
	lastWindow    Window
	lastParams    EventParams
}

func (s *fakeSource) GetEntityEvents(_ context.Context, entityURN string, eventType EntityEventType, window Window, params EventParams) ([]EntityEvent, error) {
	s.lastEntityURN = entityURN
	s.lastEventType = eventType
	s.lastWindow = window
	s.lastParams = params
	return s.events, s.err
}

type fakeSourceProvider struct {
	source Source
	err    error
}

func (p *fakeSourceProvider) SourceForConnection(Connection) (Source, error) {
	return p.source, p.err
}

type fakeFetcher struct {
	mu       sync.Mutex
	monitors []Monitor
	err      error
	calls    int
}

func (f *fakeFetcher) FetchMonitors(context.Context) ([]Monitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.monitors, f.err
}

func (f *fakeFetcher) set(monitors []Monitor, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitors = monitors
	f.err = err
}

func freshnessAssertion(urn, entityURN, connectionURN string) Assertion {
	return Assertion{
		URN:           urn,
		Type:          AssertionTypeFreshness,
		Entity:        AssertionEntity{URN: entityURN, PlatformURN: connectionURN},
		ConnectionURN: connectionURN,
		FreshnessAssertion: &FreshnessAssertion{
			Type: FreshnessAssertionTypeDatasetChange,
			Schedule: FreshnessAssertionSchedule{
				Type: FreshnessScheduleTypeFixedInterval,
				FixedInterval: &FixedIntervalSchedule{
					Unit:     CalendarIntervalHour,
					Multiple: 1,
				},
			},
		},
	}
}
