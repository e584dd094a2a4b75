package task

import "time"

// NextDue computes the due time of the next occurrence from the due time of
// the occurrence being completed.
//
// The cadence is anchored to the original schedule, not to completion time:
// this function never reads the clock, so a task completed late does not
// compress or stretch the interval. Time-of-day and timezone offset are
// preserved unchanged.
//
// Calendar edges:
//   - monthly: the day-of-month is clamped to the last valid day of the
//     target month (Jan 31 -> Feb 28, or Feb 29 in leap years)
//   - yearly: Feb 29 clamps to Feb 28 in non-leap target years
//
// Recurrence none returns due unchanged.
func NextDue(due time.Time, r Recurrence) time.Time {
	switch r {
	case RecurDaily:
		return due.AddDate(0, 0, 1)
	case RecurWeekly:
		return due.AddDate(0, 0, 7)
	case RecurBiweekly:
		return due.AddDate(0, 0, 14)
	case RecurMonthly:
		return addMonthClamped(due, 1)
	case RecurYearly:
		return addYearClamped(due, 1)
	default:
		return due
	}
}

// addMonthClamped advances the month index without the day overflow that
// time.AddDate normalizes (Jan 31 + 1 month must be Feb 28/29, not Mar 2/3).
func addMonthClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hh, mm, ss := t.Clock()

	// time.Date normalizes out-of-range months (Dec + 1 -> Jan next year).
	first := time.Date(year, month+time.Month(months), 1, hh, mm, ss, t.Nanosecond(), t.Location())
	if last := lastDayOfMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hh, mm, ss, t.Nanosecond(), t.Location())
}

func addYearClamped(t time.Time, years int) time.Time {
	year, month, day := t.Date()
	hh, mm, ss := t.Clock()

	year += years
	if last := lastDayOfMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, hh, mm, ss, t.Nanosecond(), t.Location())
}

// lastDayOfMonth uses day-zero normalization: day 0 of the following month
// is the last day of this one.
func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
