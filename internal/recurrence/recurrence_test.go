package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
)

func intPtr(i int) *int { return &i }

func TestNextDaily(t *testing.T) {
	// Tuesday 2025-03-11 10:30 UTC, schedule fires at 09:00.
	ref := time.Date(2025, 3, 11, 10, 30, 0, 0, time.UTC)

	next, err := Next(Recurrence{Frequency: models.FrequencyDaily, TimeOfDay: "09:00"}, ref)
	require.NoError(t, err)

	candidate := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, candidate.Add(24*time.Hour), next)
	assert.True(t, next.After(ref))
}

func TestNextDailyFutureTimeOfDay(t *testing.T) {
	// Time of day not yet reached: still exactly candidate+24h, never today.
	ref := time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC)

	next, err := Next(Recurrence{Frequency: models.FrequencyDaily, TimeOfDay: "09:00"}, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC), next)
}

func TestNextWeeklySameDayRollsFullWeek(t *testing.T) {
	// Tuesday, schedule fires Tuesdays at 09:00, but it is already 10:30:
	// next run is a full 7 days after the candidate, never 0 days.
	ref := time.Date(2025, 3, 11, 10, 30, 0, 0, time.UTC)
	require.Equal(t, time.Tuesday, ref.Weekday())

	next, err := Next(Recurrence{
		Frequency: models.FrequencyWeekly,
		DayOfWeek: intPtr(int(time.Tuesday)),
		TimeOfDay: "09:00",
	}, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 18, 9, 0, 0, 0, time.UTC), next)
}

func TestNextWeeklySameDayLaterTime(t *testing.T) {
	ref := time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC) // Tuesday 08:00

	next, err := Next(Recurrence{
		Frequency: models.FrequencyWeekly,
		DayOfWeek: intPtr(int(time.Tuesday)),
		TimeOfDay: "09:00",
	}, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC), next)
}

func TestNextWeeklyOtherDay(t *testing.T) {
	ref := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC) // Tuesday

	next, err := Next(Recurrence{
		Frequency: models.FrequencyWeekly,
		DayOfWeek: intPtr(int(time.Friday)),
		TimeOfDay: "09:00",
	}, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC), next)
}

func TestNextMonthlyClampsToMonthEnd(t *testing.T) {
	// Day 31 targeting February: clamp to Feb 28, never roll into March.
	ref := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	next, err := Next(Recurrence{
		Frequency:  models.FrequencyMonthly,
		DayOfMonth: intPtr(31),
		TimeOfDay:  "10:00",
	}, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC), next)
}

func TestNextMonthlyFromFebruary(t *testing.T) {
	// Triggered in February with day 31: lands on March 31, never April.
	ref := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)

	next, err := Next(Recurrence{
		Frequency:  models.FrequencyMonthly,
		DayOfMonth: intPtr(31),
		TimeOfDay:  "10:00",
	}, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 31, 10, 0, 0, 0, time.UTC), next)
}

func TestNextMonthlyLeapFebruary(t *testing.T) {
	ref := time.Date(2024, 1, 31, 12, 0, 0, 0, time.UTC)

	next, err := Next(Recurrence{
		Frequency:  models.FrequencyMonthly,
		DayOfMonth: intPtr(30),
		TimeOfDay:  "08:00",
	}, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 8, 0, 0, 0, time.UTC), next)
}

func TestNextOnce(t *testing.T) {
	ref := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)

	next, err := Next(Recurrence{Frequency: models.FrequencyOnce, TimeOfDay: "09:00"}, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC), next)

	next, err = Next(Recurrence{Frequency: models.FrequencyOnce, TimeOfDay: "18:00"}, ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 11, 18, 0, 0, 0, time.UTC), next)
}

func TestNextCron(t *testing.T) {
	ref := time.Date(2025, 3, 11, 10, 30, 0, 0, time.UTC)

	next, err := Next(Recurrence{
		Frequency:      models.FrequencyCron,
		CronExpression: "0 9 * * 1",
	}, ref)
	require.NoError(t, err)
	// Next Monday 09:00.
	assert.Equal(t, time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC), next)
}

func TestNextUnknownFrequency(t *testing.T) {
	ref := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)

	_, err := Next(Recurrence{Frequency: "fortnightly", TimeOfDay: "09:00"}, ref)
	assert.ErrorIs(t, err, ErrUnknownFrequency)

	_, err = Next(Recurrence{TimeOfDay: "09:00"}, ref)
	assert.ErrorIs(t, err, ErrUnknownFrequency)
}

func TestNextIsPure(t *testing.T) {
	ref := time.Date(2025, 3, 11, 10, 30, 0, 0, time.UTC)
	rec := Recurrence{Frequency: models.FrequencyWeekly, DayOfWeek: intPtr(3), TimeOfDay: "07:45"}

	first, err := Next(rec, ref)
	require.NoError(t, err)
	second, err := Next(rec, ref)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNextAlwaysStrictlyAfterRef(t *testing.T) {
	refs := []time.Time{
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 28, 23, 59, 0, 0, time.UTC),
		time.Date(2025, 12, 31, 12, 0, 0, 0, time.UTC),
	}
	recs := []Recurrence{
		{Frequency: models.FrequencyDaily, TimeOfDay: "00:00"},
		{Frequency: models.FrequencyWeekly, DayOfWeek: intPtr(0), TimeOfDay: "23:59"},
		{Frequency: models.FrequencyMonthly, DayOfMonth: intPtr(1), TimeOfDay: "12:00"},
		{Frequency: models.FrequencyOnce, TimeOfDay: "06:00"},
	}

	for _, ref := range refs {
		for _, rec := range recs {
			next, err := Next(rec, ref)
			require.NoError(t, err)
			assert.True(t, next.After(ref), "frequency %s ref %s got %s", rec.Frequency, ref, next)
		}
	}
}

func TestNextInvalidTimeOfDay(t *testing.T) {
	ref := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)

	for _, tod := range []string{"", "9", "25:00", "09:60", "aa:bb"} {
		_, err := Next(Recurrence{Frequency: models.FrequencyDaily, TimeOfDay: tod}, ref)
		assert.ErrorIs(t, err, ErrInvalidTimeOfDay, "time_of_day %q", tod)
	}
}

func TestValidate(t *testing.T) {
	valid := []Recurrence{
		{Frequency: models.FrequencyDaily, TimeOfDay: "09:00"},
		{Frequency: models.FrequencyWeekly, DayOfWeek: intPtr(6), TimeOfDay: "09:00"},
		{Frequency: models.FrequencyMonthly, DayOfMonth: intPtr(31), TimeOfDay: "09:00"},
		{Frequency: models.FrequencyOnce, TimeOfDay: "09:00"},
		{Frequency: models.FrequencyCron, CronExpression: "*/5 * * * *"},
	}
	for _, rec := range valid {
		assert.NoError(t, Validate(rec), "frequency %s", rec.Frequency)
	}

	invalid := []Recurrence{
		{Frequency: models.FrequencyDaily, DayOfWeek: intPtr(1), TimeOfDay: "09:00"},
		{Frequency: models.FrequencyWeekly, TimeOfDay: "09:00"},
		{Frequency: models.FrequencyWeekly, DayOfWeek: intPtr(7), TimeOfDay: "09:00"},
		{Frequency: models.FrequencyWeekly, DayOfWeek: intPtr(1), DayOfMonth: intPtr(3), TimeOfDay: "09:00"},
		{Frequency: models.FrequencyMonthly, TimeOfDay: "09:00"},
		{Frequency: models.FrequencyMonthly, DayOfMonth: intPtr(0), TimeOfDay: "09:00"},
		{Frequency: models.FrequencyCron},
		{Frequency: models.FrequencyCron, CronExpression: "not a cron"},
		{Frequency: "hourly", TimeOfDay: "09:00"},
		{Frequency: models.FrequencyDaily, TimeOfDay: "24:00"},
	}
	for _, rec := range invalid {
		assert.Error(t, Validate(rec), "frequency %s", rec.Frequency)
	}
}
