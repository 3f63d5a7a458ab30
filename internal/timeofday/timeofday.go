// Package timeofday implements wall-clock "HH:MM" arithmetic used to derive a
// session's end time and attendance window. There is no timezone handling: a
// Time is an offset from midnight on whatever calendar day the caller means.
package timeofday

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the modulus for all arithmetic in this package.
const MinutesPerDay = 24 * 60

// ErrMalformed is returned by Parse for anything that is not HH:MM or HH:MM:SS.
var ErrMalformed = errors.New("timeofday: malformed HH:MM value")

// Time is a wall-clock time expressed in minutes since midnight, 0 <= t < 1440.
type Time int

// Parse reads "HH:MM" (24-hour). A trailing ":SS" is accepted and dropped so
// values read back from a TIME column parse as well.
func Parse(s string) (Time, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	if len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	if len(parts) == 3 {
		seconds, err := strconv.Atoi(parts[2])
		if err != nil || seconds < 0 || seconds > 59 {
			return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
	}

	return Time(hours*60 + minutes), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Of returns the wall-clock time of t in its own location.
func Of(t time.Time) Time {
	return Time(t.Hour()*60 + t.Minute())
}

// Add returns t shifted by the given number of minutes, reduced modulo 24h.
func (t Time) Add(minutes int) Time {
	v := (int(t) + minutes) % MinutesPerDay
	if v < 0 {
		v += MinutesPerDay
	}
	return Time(v)
}

// Minutes returns the offset from midnight.
func (t Time) Minutes() int {
	return int(t)
}

// Hour and Minute split t into its clock components.
func (t Time) Hour() int   { return int(t) / 60 }
func (t Time) Minute() int { return int(t) % 60 }

// String formats t as zero-padded "HH:MM".
func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On places t on the calendar day of date in loc.
func (t Time) On(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
}

// DeriveEndTime returns startTime + durationMinutes as "HH:MM", wrapping past
// midnight. An empty or unparseable start yields "", meaning "not yet
// computable" rather than an error.
func DeriveEndTime(startTime string, durationMinutes int) string {
	return shift(startTime, durationMinutes)
}

// DeriveAttendanceWindowEnd returns endTime + graceMinutes as "HH:MM", with the
// same sentinel behaviour as DeriveEndTime.
func DeriveAttendanceWindowEnd(endTime string, graceMinutes int) string {
	return shift(endTime, graceMinutes)
}

func shift(value string, minutes int) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	t, err := Parse(value)
	if err != nil {
		return ""
	}
	return t.Add(minutes).String()
}
