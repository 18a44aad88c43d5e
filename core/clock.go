package core

import (
	"sync"
	"time"
)

// Clock abstracts wall time so window computation and retry backoff can be
// driven deterministically in tests. Production code always gets the real
// clock from NewRealClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realClock struct{}

func NewRealClock() Clock {
	return &realClock{}
}

func (c *realClock) Now() time.Time {
	return time.Now()
}

func (c *realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

func (c *realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (c *realClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

type realTicker struct {
	ticker *time.Ticker
}

func (t *realTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t *realTicker) Stop() {
	t.ticker.Stop()
}

// FakeClock is a manually driven Clock. It never moves on its own; tests
// call Advance or Set, and any tickers or After waiters whose deadlines
// fall inside the jump fire in deadline order. This is what lets the
// scheduler and retry tests cross hour-scale evaluation windows instantly.
type FakeClock struct {
	mu       sync.RWMutex
	now      time.Time
	tickers  []*fakeTicker
	pending  []afterWaiter
	advanced chan struct{}
}

// afterWaiter is one outstanding After call.
type afterWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{
		now:      start,
		advanced: make(chan struct{}, 100),
	}
}

func (c *FakeClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()

	ft := &fakeTicker{
		clock:    c,
		duration: d,
		ch:       make(chan time.Time, 1),
		nextTick: c.now.Add(d),
	}
	c.tickers = append(c.tickers, ft)
	return ft
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	// Zero and negative delays fire immediately, matching time.After for
	// the zero-backoff retry policies used in tests.
	if d <= 0 {
		ch <- c.now
		return ch
	}

	c.pending = append(c.pending, afterWaiter{
		deadline: c.now.Add(d),
		ch:       ch,
	})
	return ch
}

func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d, firing every ticker and waiter
// whose deadline falls inside the interval.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceTo(c.now.Add(d))
}

// Set jumps the clock to an absolute time. Deadlines between now and t
// still fire; t must not be earlier than the current time.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advanceTo(t)
}

func (c *FakeClock) advanceTo(target time.Time) {
	// Step through intermediate deadlines so a ticker can fire more than
	// once within a single jump.
	for {
		earliest := c.earliestDeadline()

		if earliest == nil || earliest.After(target) {
			c.now = target
			break
		}

		c.now = *earliest
		c.fireTickers()
		c.fireWaiters()
	}

	select {
	case c.advanced <- struct{}{}:
	default:
	}
}

func (c *FakeClock) earliestDeadline() *time.Time {
	var earliest *time.Time

	for _, t := range c.tickers {
		if t.stopped {
			continue
		}
		if earliest == nil || t.nextTick.Before(*earliest) {
			tick := t.nextTick
			earliest = &tick
		}
	}

	for _, w := range c.pending {
		if earliest == nil || w.deadline.Before(*earliest) {
			d := w.deadline
			earliest = &d
		}
	}

	return earliest
}

func (c *FakeClock) fireTickers() {
	for _, t := range c.tickers {
		if t.stopped || t.nextTick.After(c.now) {
			continue
		}
		select {
		case t.ch <- c.now:
		default:
		}
		t.nextTick = c.now.Add(t.duration)
	}
}

func (c *FakeClock) fireWaiters() {
	remaining := make([]afterWaiter, 0, len(c.pending))
	for _, w := range c.pending {
		if !w.deadline.After(c.now) {
			select {
			case w.ch <- c.now:
			default:
			}
		} else {
			remaining = append(remaining, w)
		}
	}
	c.pending = remaining
}

// WaitForAdvance blocks until the next Advance or Set completes. Tests use
// it to sequence a goroutine that is sleeping on the fake clock.
func (c *FakeClock) WaitForAdvance() {
	<-c.advanced
}

// TickerCount reports the number of live tickers, for leak assertions.
func (c *FakeClock) TickerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	count := 0
	for _, t := range c.tickers {
		if !t.stopped {
			count++
		}
	}
	return count
}

type fakeTicker struct {
	clock    *FakeClock
	duration time.Duration
	ch       chan time.Time
	nextTick time.Time
	stopped  bool
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
