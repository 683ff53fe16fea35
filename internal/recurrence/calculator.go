// internal/recurrence/calculator.go
package recurrence

import (
	"time"

	"github.com/vendaops/vendaops-backend/internal/apperrors"
	"github.com/vendaops/vendaops-backend/internal/model"
)

// Rule is the calendar portion of a recurring schedule. All functions in
// this package are pure: the reference date is always passed in, never read
// from the wall clock.
type Rule struct {
	Type       model.RecurrenceType
	Interval   int
	DayOfWeek  *int
	DayOfMonth *int
	StartDate  time.Time
}

// RuleOf extracts the calendar rule from a stored schedule.
func RuleOf(s *model.RecurringSchedule) Rule {
	return Rule{
		Type:       s.RecurrenceType,
		Interval:   s.RecurrenceInterval,
		DayOfWeek:  s.DayOfWeek,
		DayOfMonth: s.DayOfMonth,
		StartDate:  s.StartDate,
	}
}

// Validate rejects malformed rules before they reach the engine.
func Validate(r Rule) error {
	if r.Interval < 1 {
		return apperrors.NewValidation("recurrence_interval", "must be a positive integer")
	}
	if r.StartDate.IsZero() {
		return apperrors.NewValidation("start_date", "is required")
	}
	switch r.Type {
	case model.RecurrenceDaily:
	case model.RecurrenceWeekly:
		if r.DayOfWeek == nil {
			return apperrors.NewValidation("day_of_week", "required for weekly recurrence")
		}
		if *r.DayOfWeek < 0 || *r.DayOfWeek > 6 {
			return apperrors.NewValidation("day_of_week", "must be between 0 and 6")
		}
	case model.RecurrenceMonthly:
		if r.DayOfMonth == nil {
			return apperrors.NewValidation("day_of_month", "required for monthly recurrence")
		}
		if *r.DayOfMonth < 1 || *r.DayOfMonth > 31 {
			return apperrors.NewValidation("day_of_month", "must be between 1 and 31")
		}
	default:
		return apperrors.NewValidation("recurrence_type", "must be daily, weekly or monthly")
	}
	return nil
}

// Next computes the next occurrence for the rule given a reference date.
// Calendar comparisons are date-precision; the returned timestamp carries
// the start date's time of day. The result never precedes the start date
// and, except for an exact same-day alignment with the start date, is
// strictly after the reference date.
func Next(ref time.Time, r Rule) (time.Time, error) {
	if err := Validate(r); err != nil {
		return time.Time{}, err
	}

	start := r.StartDate.In(ref.Location())
	refDay := dateOf(ref)
	startDay := dateOf(start)

	var day time.Time
	switch r.Type {
	case model.RecurrenceDaily:
		if !startDay.Before(refDay) {
			day = startDay
		} else {
			day = refDay.AddDate(0, 0, r.Interval)
		}

	case model.RecurrenceWeekly:
		target := time.Weekday(*r.DayOfWeek)
		offset := (int(target) - int(refDay.Weekday()) + 7) % 7
		if offset == 0 && !refDay.Equal(startDay) {
			// Already on the target weekday but not the start day itself:
			// force forward progress to the next cycle.
			offset = 7 * r.Interval
		}
		day = refDay.AddDate(0, 0, offset)

	case model.RecurrenceMonthly:
		day = monthlyOn(refDay.Year(), int(refDay.Month()), *r.DayOfMonth, refDay.Location())
		if !day.After(refDay) {
			day = monthlyOn(refDay.Year(), int(refDay.Month())+r.Interval, *r.DayOfMonth, refDay.Location())
		}
	}

	if day.Before(startDay) {
		day = startDay
	}
	return withClock(day, start), nil
}

// Roll computes the occurrence that follows a just-fired one. Unlike Next,
// the result is always strictly after the fired date: the same-day-start
// alignment that lets Next return the start date itself would otherwise
// hand the cursor back unchanged when the first fire lands on the start
// date, re-issuing that occurrence on every pass.
func Roll(fired time.Time, r Rule) (time.Time, error) {
	if err := Validate(r); err != nil {
		return time.Time{}, err
	}

	start := r.StartDate.In(fired.Location())
	firedDay := dateOf(fired)

	var day time.Time
	switch r.Type {
	case model.RecurrenceDaily:
		day = firedDay.AddDate(0, 0, r.Interval)

	case model.RecurrenceWeekly:
		target := time.Weekday(*r.DayOfWeek)
		offset := (int(target) - int(firedDay.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7 * r.Interval
		}
		day = firedDay.AddDate(0, 0, offset)

	case model.RecurrenceMonthly:
		day = monthlyOn(firedDay.Year(), int(firedDay.Month()), *r.DayOfMonth, firedDay.Location())
		if !day.After(firedDay) {
			day = monthlyOn(firedDay.Year(), int(firedDay.Month())+r.Interval, *r.DayOfMonth, firedDay.Location())
		}
	}

	return withClock(day, start), nil
}

// Seed computes the creation-time cursor: reference is the start date, or
// "now" when the start date is already in the past.
func Seed(now time.Time, r Rule) (time.Time, error) {
	ref := r.StartDate
	if dateOf(r.StartDate).Before(dateOf(now.In(r.StartDate.Location()))) {
		ref = now
	}
	return Next(ref, r)
}

// monthlyOn builds the occurrence for a (possibly overflowed) month,
// clamping the day to the month's length. Day 31 in April becomes the
// 30th; February clamps to the 28th or 29th.
func monthlyOn(year, month, dom int, loc *time.Location) time.Time {
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	if last := daysIn(first.Year(), first.Month()); dom > last {
		dom = last
	}
	return time.Date(first.Year(), first.Month(), dom, 0, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func withClock(day, src time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, src.Hour(), src.Minute(), src.Second(), 0, day.Location())
}
