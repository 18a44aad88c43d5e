package core

import (
	"fmt"
	"strings"
	"time"

	cron "github.com/netresearch/go-cron"
)

// minPrevFireGap guards against windows that collapse to nothing when the
// evaluation runs within a few seconds of the window boundary itself. When
// the previous fire is this close to now, the window extends one more cron
// period into the past.
const minPrevFireGap = 30 * time.Second

// maxPrevFireLookback bounds the search for the previous cron fire time.
// Anything sparser than yearly is not a sensible freshness schedule.
const maxPrevFireLookback = 366 * 24 * time.Hour

// ParseCronSchedule parses a five-field cron expression with an optional
// IANA timezone into a schedule.
func ParseCronSchedule(expr, timezone string) (cron.Schedule, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidCronExpression)
	}
	spec := expr
	if timezone != "" {
		spec = "CRON_TZ=" + timezone + " " + expr
	}
	sched, err := cron.FullParser().Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidCronExpression, expr, err)
	}
	return sched, nil
}

// NextCronTime returns the next fire time strictly after now.
func NextCronTime(expr, timezone string, now time.Time) (time.Time, error) {
	sched, err := ParseCronSchedule(expr, timezone)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(now)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q never fires after %s", ErrInvalidCronExpression, expr, now)
	}
	return next, nil
}

// PrevCronTime returns the last fire time strictly before now.
func PrevCronTime(expr, timezone string, now time.Time) (time.Time, error) {
	sched, err := ParseCronSchedule(expr, timezone)
	if err != nil {
		return time.Time{}, err
	}
	prev, ok := prevFireTime(sched, now)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q has no fire time before %s", ErrInvalidCronExpression, expr, now)
	}
	return prev, nil
}

// prevFireTime finds the last schedule fire strictly before now. The
// schedule interface only exposes Next, so the search rewinds by doubling
// spans until a fire lands inside, then walks forward to the boundary.
func prevFireTime(sched cron.Schedule, now time.Time) (time.Time, bool) {
	for back := time.Minute; back <= maxPrevFireLookback; back *= 2 {
		t := sched.Next(now.Add(-back))
		if t.IsZero() || !t.Before(now) {
			continue
		}
		for {
			next := sched.Next(t)
			if next.IsZero() || !next.Before(now) {
				return t, true
			}
			t = next
		}
	}
	return time.Time{}, false
}

// CronWindow computes the validation window for a cron-shaped freshness
// schedule. The window ends at the next schedule fire; it starts either a
// fixed offset before that, or at the previous fire.
func CronWindow(schedule FreshnessCronSchedule, now time.Time) (Window, error) {
	sched, err := ParseCronSchedule(schedule.Cron, schedule.Timezone)
	if err != nil {
		return Window{}, err
	}
	end := sched.Next(now)
	if end.IsZero() {
		return Window{}, fmt.Errorf("%w: %q never fires after %s", ErrInvalidCronExpression, schedule.Cron, now)
	}

	var start time.Time
	if schedule.WindowStartOffsetMs != nil {
		start = end.Add(-time.Duration(*schedule.WindowStartOffsetMs) * time.Millisecond)
	} else {
		prev, ok := prevFireTime(sched, now)
		if !ok {
			return Window{}, fmt.Errorf("%w: %q has no fire time before %s", ErrInvalidCronExpression, schedule.Cron, now)
		}
		if now.Sub(prev) < minPrevFireGap {
			if earlier, ok := prevFireTime(sched, prev); ok {
				prev = earlier
			}
		}
		start = prev
	}
	return Window{StartMs: start.UnixMilli(), EndMs: end.UnixMilli()}, nil
}

// FixedIntervalWindow computes the validation window for a fixed-interval
// freshness schedule: the trailing interval ending at now.
func FixedIntervalWindow(schedule FixedIntervalSchedule, now time.Time) (Window, error) {
	var unitMs int64
	switch schedule.Unit {
	case CalendarIntervalMinute:
		unitMs = 60_000
	case CalendarIntervalHour:
		unitMs = 3_600_000
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrUnsupportedScheduleUnit, schedule.Unit)
	}
	endMs := now.UnixMilli()
	return Window{StartMs: endMs - int64(schedule.Multiple)*unitMs, EndMs: endMs}, nil
}
