// Package recurrence expands a weekly session into its bounded series of
// calendar dates. The anchor date is always occurrence 1.
package recurrence

import (
	"fmt"
	"time"
)

// MinSpanDays is how far after the anchor a series must run at minimum.
const MinSpanDays = 7

const cadenceDays = 7

// Date truncates t to its calendar day in UTC, discarding the clock and zone.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MinEndDate returns the earliest acceptable recurrence end date for anchor.
func MinEndDate(anchor time.Time) time.Time {
	return Date(anchor).AddDate(0, 0, MinSpanDays)
}

// DaysBetween counts calendar days from a to b; negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

// Count returns floor(daysBetween(anchor, end)/7) + 1. An end equal to the
// anchor yields 1. An end before the anchor yields 0; rejecting that case is
// the validator's job.
func Count(anchor, end time.Time) int {
	days := DaysBetween(anchor, end)
	if days < 0 {
		return 0
	}
	return days/cadenceDays + 1
}

// Occurrences lists every date of the series in order, starting at anchor.
func Occurrences(anchor, end time.Time) []time.Time {
	n := Count(anchor, end)
	if n == 0 {
		return nil
	}

	start := Date(anchor)
	dates := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		dates = append(dates, start.AddDate(0, 0, i*cadenceDays))
	}
	return dates
}

// Weekday names the day the series repeats on.
func Weekday(anchor time.Time) string {
	return anchor.Weekday().String()
}

// Describe renders the human confirmation line for a series.
func Describe(anchor, end time.Time) string {
	return fmt.Sprintf("repeats every %s until %s (%d sessions)",
		Weekday(anchor), Date(end).Format(time.DateOnly), Count(anchor, end))
}
