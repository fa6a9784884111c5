// Package recurrence computes the next fire time for a schedule. Next is a
// pure function of its inputs so both trigger paths and the API produce the
// same answer for the same schedule state.
package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/contentpilot-ai/contentpilot/internal/domain/models"
)

var (
	ErrUnknownFrequency  = errors.New("unknown schedule frequency")
	ErrInvalidTimeOfDay  = errors.New("time of day must be HH:MM")
	ErrInvalidDayOfWeek  = errors.New("day of week must be between 0 and 6")
	ErrInvalidDayOfMonth = errors.New("day of month must be between 1 and 31")
	ErrMissingCronExpr   = errors.New("cron frequency requires an expression")
)

var cronParser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow)

// Recurrence is the schedule's timing rule, detached from its persistence.
type Recurrence struct {
	Frequency      string
	DayOfWeek      *int // 0=Sunday..6, weekly only
	DayOfMonth     *int // 1..31, monthly only
	TimeOfDay      string
	CronExpression string
	Timezone       string
}

// FromSchedule extracts the timing rule from a stored schedule.
func FromSchedule(s *models.Schedule) Recurrence {
	rec := Recurrence{
		Frequency:  s.Frequency,
		DayOfWeek:  s.DayOfWeek,
		DayOfMonth: s.DayOfMonth,
		TimeOfDay:  s.TimeOfDay,
		Timezone:   s.Timezone,
	}
	if s.CronExpression != nil {
		rec.CronExpression = *s.CronExpression
	}
	return rec
}

// Next returns the next fire time strictly after ref. An unrecognized
// frequency is an error, never a silently unadjusted candidate.
func Next(rec Recurrence, ref time.Time) (time.Time, error) {
	loc := location(rec.Timezone)
	ref = ref.In(loc)

	if rec.Frequency == models.FrequencyCron {
		if rec.CronExpression == "" {
			return time.Time{}, ErrMissingCronExpr
		}
		schedule, err := cronParser.Parse(rec.CronExpression)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse cron expression: %w", err)
		}
		return schedule.Next(ref), nil
	}

	hour, minute, err := parseTimeOfDay(rec.TimeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	// Candidate: ref's calendar date with the configured wall time.
	candidate := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, loc)

	var next time.Time
	switch rec.Frequency {
	case models.FrequencyDaily:
		next = candidate.Add(24 * time.Hour)

	case models.FrequencyWeekly:
		if rec.DayOfWeek == nil || *rec.DayOfWeek < 0 || *rec.DayOfWeek > 6 {
			return time.Time{}, ErrInvalidDayOfWeek
		}
		offset := (*rec.DayOfWeek - int(candidate.Weekday()) + 7) % 7
		// Same weekday with the time already past means a full week out,
		// never a zero-day offset.
		if offset == 0 && !candidate.After(ref) {
			offset = 7
		}
		next = candidate.AddDate(0, 0, offset)

	case models.FrequencyMonthly:
		if rec.DayOfMonth == nil || *rec.DayOfMonth < 1 || *rec.DayOfMonth > 31 {
			return time.Time{}, ErrInvalidDayOfMonth
		}
		next = monthlyOn(candidate.AddDate(0, 1, -candidate.Day()+1), *rec.DayOfMonth, hour, minute, loc)

	case models.FrequencyOnce:
		next = candidate
		if !next.After(ref) {
			next = next.Add(24 * time.Hour)
		}

	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownFrequency, rec.Frequency)
	}

	// Inputs computed from "now" instead of a previous next_run can still
	// land at or before ref; push one more period.
	for !next.After(ref) {
		switch rec.Frequency {
		case models.FrequencyDaily, models.FrequencyOnce:
			next = next.Add(24 * time.Hour)
		case models.FrequencyWeekly:
			next = next.AddDate(0, 0, 7)
		case models.FrequencyMonthly:
			next = monthlyOn(next.AddDate(0, 1, -next.Day()+1), *rec.DayOfMonth, hour, minute, loc)
		}
	}

	return next, nil
}

// Validate checks the cross-field invariants: day_of_week iff weekly,
// day_of_month iff monthly, both absent otherwise.
func Validate(rec Recurrence) error {
	switch rec.Frequency {
	case models.FrequencyDaily, models.FrequencyOnce:
		if rec.DayOfWeek != nil || rec.DayOfMonth != nil {
			return fmt.Errorf("%s schedules take neither day_of_week nor day_of_month", rec.Frequency)
		}
	case models.FrequencyWeekly:
		if rec.DayOfWeek == nil || *rec.DayOfWeek < 0 || *rec.DayOfWeek > 6 {
			return ErrInvalidDayOfWeek
		}
		if rec.DayOfMonth != nil {
			return errors.New("weekly schedules take day_of_week, not day_of_month")
		}
	case models.FrequencyMonthly:
		if rec.DayOfMonth == nil || *rec.DayOfMonth < 1 || *rec.DayOfMonth > 31 {
			return ErrInvalidDayOfMonth
		}
		if rec.DayOfWeek != nil {
			return errors.New("monthly schedules take day_of_month, not day_of_week")
		}
	case models.FrequencyCron:
		if rec.CronExpression == "" {
			return ErrMissingCronExpr
		}
		if _, err := cronParser.Parse(rec.CronExpression); err != nil {
			return fmt.Errorf("parse cron expression: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFrequency, rec.Frequency)
	}

	if _, _, err := parseTimeOfDay(rec.TimeOfDay); err != nil {
		return err
	}
	return nil
}

// monthlyOn places dayOfMonth within the month of anchor (anchor is the first
// of the target month), clamping to the month's last day rather than rolling
// into the next month.
func monthlyOn(anchor time.Time, dayOfMonth, hour, minute int, loc *time.Location) time.Time {
	days := daysIn(anchor.Month(), anchor.Year())
	day := dayOfMonth
	if day > days {
		day = days
	}
	return time.Date(anchor.Year(), anchor.Month(), day, hour, minute, 0, 0, loc)
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func parseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, ErrInvalidTimeOfDay
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, ErrInvalidTimeOfDay
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, ErrInvalidTimeOfDay
	}
	return hour, minute, nil
}

func location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
