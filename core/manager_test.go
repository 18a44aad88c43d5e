package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertionMonitor(monitorURN string, specs ...AssertionEvaluationSpec) Monitor {
	return Monitor{
		URN:              monitorURN,
		Type:             MonitorTypeAssertion,
		AssertionMonitor: &AssertionMonitor{Assertions: specs},
	}
}

func newTestManager(t *testing.T, fetcher *fakeFetcher) (*MonitorManager, *AssertionScheduler, *captureMetrics) {
	t.Helper()
	scheduler, _, metrics := newTestScheduler(t)
	manager := NewMonitorManager(fetcher, scheduler, NewFakeClock(time.Now()), metrics, testLogger(), time.Minute)
	return manager, scheduler, metrics
}

func TestManagerRefreshSchedulesAssertions(t *testing.T) {
	fetcher := &fakeFetcher{monitors: []Monitor{
		assertionMonitor("urn:li:monitor:m1",
			evaluationSpec("urn:li:assertion:a", "0 * * * *"),
			evaluationSpec("urn:li:assertion:b", "30 * * * *"),
		),
	}}
	manager, scheduler, metrics := newTestManager(t, fetcher)

	manager.RefreshMonitors(context.Background())
	assert.True(t, scheduler.IsScheduled("urn:li:assertion:a"))
	assert.True(t, scheduler.IsScheduled("urn:li:assertion:b"))
	assert.Equal(t, 1, metrics.refreshes[true])
}

func TestManagerRefreshUnschedulesRemovedAssertions(t *testing.T) {
	fetcher := &fakeFetcher{monitors: []Monitor{
		assertionMonitor("urn:li:monitor:m1",
			evaluationSpec("urn:li:assertion:a", "0 * * * *"),
			evaluationSpec("urn:li:assertion:b", "0 * * * *"),
		),
	}}
	manager, scheduler, _ := newTestManager(t, fetcher)

	manager.RefreshMonitors(context.Background())
	require.Len(t, scheduler.ScheduledURNs(), 2)

	// Assertion b disappears from the catalog.
	fetcher.set([]Monitor{
		assertionMonitor("urn:li:monitor:m1", evaluationSpec("urn:li:assertion:a", "0 * * * *")),
	}, nil)
	manager.RefreshMonitors(context.Background())
	assert.True(t, scheduler.IsScheduled("urn:li:assertion:a"))
	assert.False(t, scheduler.IsScheduled("urn:li:assertion:b"))
}

func TestManagerFailedFetchKeepsSchedule(t *testing.T) {
	fetcher := &fakeFetcher{monitors: []Monitor{
		assertionMonitor("urn:li:monitor:m1", evaluationSpec("urn:li:assertion:a", "0 * * * *")),
	}}
	manager, scheduler, metrics := newTestManager(t, fetcher)

	manager.RefreshMonitors(context.Background())
	require.True(t, scheduler.IsScheduled("urn:li:assertion:a"))

	fetcher.set(nil, errors.New("gms unreachable"))
	manager.RefreshMonitors(context.Background())
	assert.True(t, scheduler.IsScheduled("urn:li:assertion:a"))
	assert.Equal(t, 1, metrics.refreshes[false])
}

func TestManagerSkipsUnsupportedMonitors(t *testing.T) {
	fetcher := &fakeFetcher{monitors: []Monitor{
		{URN: "urn:li:monitor:other", Type: "SLA"},
		{URN: "urn:li:monitor:empty", Type: MonitorTypeAssertion},
		assertionMonitor("urn:li:monitor:m1", evaluationSpec("urn:li:assertion:a", "0 * * * *")),
	}}
	manager, scheduler, _ := newTestManager(t, fetcher)

	manager.RefreshMonitors(context.Background())
	assert.Equal(t, []string{"urn:li:assertion:a"}, scheduler.ScheduledURNs())
}

func TestManagerBadAssertionDoesNotBlockOthers(t *testing.T) {
	bad := evaluationSpec("urn:li:assertion:bad", "not a cron")
	fetcher := &fakeFetcher{monitors: []Monitor{
		assertionMonitor("urn:li:monitor:m1", bad, evaluationSpec("urn:li:assertion:good", "0 * * * *")),
	}}
	manager, scheduler, _ := newTestManager(t, fetcher)

	manager.RefreshMonitors(context.Background())
	assert.False(t, scheduler.IsScheduled("urn:li:assertion:bad"))
	assert.True(t, scheduler.IsScheduled("urn:li:assertion:good"))
}

func TestManagerStartRefreshLoop(t *testing.T) {
	fetcher := &fakeFetcher{}
	scheduler, _, metrics := newTestScheduler(t)
	clock := NewFakeClock(time.Now())
	manager := NewMonitorManager(fetcher, scheduler, clock, metrics, testLogger(), time.Minute)

	manager.Start(context.Background())

	// The initial refresh runs synchronously in Start.
	fetcher.mu.Lock()
	initial := fetcher.calls
	fetcher.mu.Unlock()
	require.Equal(t, 1, initial)

	// Wait for the loop's ticker to register before advancing time.
	require.Eventually(t, func() bool { return clock.TickerCount() == 1 }, 5*time.Second, time.Millisecond)
	clock.Advance(time.Minute)
	assert.Eventually(t, func() bool {
		fetcher.mu.Lock()
		defer fetcher.mu.Unlock()
		return fetcher.calls >= 2
	}, 5*time.Second, time.Millisecond)

	require.NoError(t, manager.Stop())
}
