package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextCronTime(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 17, 0, 0, time.UTC)

	next, err := NextCronTime("0 * * * *", "UTC", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC), next.UTC())

	// Exactly on a boundary: next means strictly after.
	boundary := time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC)
	next, err = NextCronTime("0 * * * *", "UTC", boundary)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), next.UTC())
}

func TestNextCronTimeTimezone(t *testing.T) {
	// 08:00 in New York is 12:00 UTC during DST.
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	next, err := NextCronTime("0 8 * * *", "America/New_York", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), next.UTC())
}

func TestPrevCronTime(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 17, 0, 0, time.UTC)

	prev, err := PrevCronTime("0 * * * *", "UTC", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), prev.UTC())

	// Exactly on a boundary: prev means strictly before.
	boundary := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	prev, err = PrevCronTime("0 * * * *", "UTC", boundary)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC), prev.UTC())
}

func TestPrevCronTimeSparseSchedule(t *testing.T) {
	// Monthly schedule forces the lookback search to widen well past the
	// initial one-minute span.
	now := time.Date(2024, 3, 15, 10, 17, 0, 0, time.UTC)
	prev, err := PrevCronTime("0 0 1 * *", "UTC", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), prev.UTC())
}

func TestParseCronScheduleInvalid(t *testing.T) {
	_, err := ParseCronSchedule("not a cron", "UTC")
	assert.ErrorIs(t, err, ErrInvalidCronExpression)

	_, err = ParseCronSchedule("", "UTC")
	assert.ErrorIs(t, err, ErrInvalidCronExpression)

	_, err = ParseCronSchedule("0 * * * *", "Not/AZone")
	assert.ErrorIs(t, err, ErrInvalidCronExpression)
}

func TestCronWindowPrevFireBoundary(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 17, 0, 0, time.UTC)
	w, err := CronWindow(FreshnessCronSchedule{Cron: "0 * * * *", Timezone: "UTC"}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), w.Start())
	assert.Equal(t, time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC), w.End())
}

func TestCronWindowStartOffset(t *testing.T) {
	offset := int64(2 * 3_600_000)
	now := time.Date(2024, 3, 15, 10, 17, 0, 0, time.UTC)
	w, err := CronWindow(FreshnessCronSchedule{Cron: "0 * * * *", Timezone: "UTC", WindowStartOffsetMs: &offset}, now)
	require.NoError(t, err)
	// Offset counts back from the window end, not from now.
	assert.Equal(t, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC), w.Start())
	assert.Equal(t, time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC), w.End())
}

func TestCronWindowNearBoundaryExtendsOnePeriod(t *testing.T) {
	// Evaluating 5 seconds after the fire would leave an almost-empty
	// window, so the start steps back one more period.
	now := time.Date(2024, 3, 15, 10, 0, 5, 0, time.UTC)
	w, err := CronWindow(FreshnessCronSchedule{Cron: "0 * * * *", Timezone: "UTC"}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC), w.Start())
	assert.Equal(t, time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC), w.End())
}

func TestCronWindowInvalidExpression(t *testing.T) {
	_, err := CronWindow(FreshnessCronSchedule{Cron: "bogus"}, time.Now())
	assert.ErrorIs(t, err, ErrInvalidCronExpression)
}

func TestFixedIntervalWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 17, 0, 0, time.UTC)

	w, err := FixedIntervalWindow(FixedIntervalSchedule{Unit: CalendarIntervalHour, Multiple: 6}, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-6*time.Hour), w.Start())
	assert.Equal(t, now, w.End())

	w, err = FixedIntervalWindow(FixedIntervalSchedule{Unit: CalendarIntervalMinute, Multiple: 90}, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-90*time.Minute), w.Start())
	assert.Equal(t, now, w.End())
}

func TestFixedIntervalWindowUnsupportedUnit(t *testing.T) {
	_, err := FixedIntervalWindow(FixedIntervalSchedule{Unit: CalendarIntervalDay, Multiple: 1}, time.Now())
	assert.ErrorIs(t, err, ErrUnsupportedScheduleUnit)
}
