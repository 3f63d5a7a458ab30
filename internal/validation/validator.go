// Package validation decides whether a session draft may be persisted. It
// collects every violation in a fixed order instead of stopping at the first,
// so a lecturer can fix the whole form in one pass.
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/conflict"
	"github.com/Freeeeeet/class_attendance/internal/recurrence"
	"github.com/Freeeeeet/class_attendance/internal/timeofday"
)

// Allowed values for the enumerated draft fields.
var (
	Durations    = []int{60, 90, 120, 150, 180}
	GraceMinutes = []int{15, 30, 40, 60}
	ClassTypes   = []string{"lecture", "tutorial", "practical", "seminar", "exam"}
)

const (
	MsgTitleRequired      = "Title is required"
	MsgDateRequired       = "Date is required"
	MsgStartRequired      = "Start time is required"
	MsgEndNotDerivable    = "End time could not be derived from the start time"
	MsgLocationRequired   = "Select a room or provide a custom virtual meeting link"
	MsgLocationExclusive  = "Choose either a room or a custom meeting link, not both"
	MsgRecurrenceEndReq   = "Recurrence end date is required for recurring sessions"
	MsgMeetingLinkReq     = "Meeting link is required for a custom virtual room"
	MsgMeetingLinkInvalid = "Meeting link must be a valid http(s) URL"
	MsgWindowOrder        = "Session must end after it starts on the same day, and the attendance window must cover it"
	MsgConflictUnverified = "Could not verify scheduling conflicts; the check will be repeated when you submit"
)

// Draft is a session form as the lecturer filled it in. Derived fields are
// not part of the draft.
type Draft struct {
	Title             string
	ClassType         string
	ScheduledDate     *time.Time
	StartTime         string
	DurationMinutes   int
	GraceMinutes      int
	RoomID            *int64
	UseCustomLink     bool
	MeetingLink       string
	IsRecurring       bool
	RecurrenceEndDate *time.Time
}

// Derived holds the fields computed from the draft. Empty strings mean "not
// yet computable".
type Derived struct {
	EndTime               string `json:"endTime"`
	AttendanceWindowStart string `json:"attendanceWindowStart"`
	AttendanceWindowEnd   string `json:"attendanceWindowEnd"`
}

// Derive computes end time and attendance window. The window opens at the
// session start.
func Derive(d Draft) Derived {
	end := timeofday.DeriveEndTime(d.StartTime, d.DurationMinutes)
	if end == "" {
		return Derived{}
	}
	start, _ := timeofday.Parse(d.StartTime)
	return Derived{
		EndTime:               end,
		AttendanceWindowStart: start.String(),
		AttendanceWindowEnd:   timeofday.DeriveAttendanceWindowEnd(end, d.GraceMinutes),
	}
}

// ConflictStatus is what the validator knows about conflicts for this draft.
// Unverified means the detector call failed; that is reported as a notice and
// does not block.
type ConflictStatus struct {
	Report     conflict.Report
	Unverified bool
}

// Result is the validator's decision.
type Result struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
	Notices    []string `json:"notices"`
	Derived
}

// Validate runs every rule over d and returns all violations. It is pure:
// the same draft and status always produce the same result.
func Validate(d Draft, cs ConflictStatus) Result {
	derived := Derive(d)
	v := make([]string, 0)

	if strings.TrimSpace(d.Title) == "" {
		v = append(v, MsgTitleRequired)
	}
	if d.ScheduledDate == nil {
		v = append(v, MsgDateRequired)
	}
	startGiven := strings.TrimSpace(d.StartTime) != ""
	if !startGiven {
		v = append(v, MsgStartRequired)
	} else if derived.EndTime == "" {
		v = append(v, MsgEndNotDerivable)
	}

	if !containsInt(Durations, d.DurationMinutes) {
		v = append(v, fmt.Sprintf("Duration must be one of %s minutes", joinInts(Durations)))
	}
	if !containsInt(GraceMinutes, d.GraceMinutes) {
		v = append(v, fmt.Sprintf("Grace period must be one of %s minutes", joinInts(GraceMinutes)))
	}
	if d.ClassType != "" && !containsString(ClassTypes, d.ClassType) {
		v = append(v, fmt.Sprintf("Class type must be one of %s", strings.Join(ClassTypes, ", ")))
	}
	if derived.EndTime != "" && !windowOrdered(d.StartTime, derived) {
		v = append(v, MsgWindowOrder)
	}

	switch {
	case d.RoomID == nil && !d.UseCustomLink:
		v = append(v, MsgLocationRequired)
	case d.RoomID != nil && d.UseCustomLink:
		v = append(v, MsgLocationExclusive)
	}

	if d.IsRecurring {
		switch {
		case d.RecurrenceEndDate == nil:
			v = append(v, MsgRecurrenceEndReq)
		case d.ScheduledDate != nil:
			minEnd := recurrence.MinEndDate(*d.ScheduledDate)
			if recurrence.Date(*d.RecurrenceEndDate).Before(minEnd) {
				v = append(v, fmt.Sprintf("Recurrence end date must be on or after %s", minEnd.Format(time.DateOnly)))
			}
		}
	}

	if d.UseCustomLink {
		link := strings.TrimSpace(d.MeetingLink)
		switch {
		case link == "":
			v = append(v, MsgMeetingLinkReq)
		case !validLink(link):
			v = append(v, MsgMeetingLinkInvalid)
		}
	}

	for _, c := range cs.Report.Conflicts {
		v = append(v, c.Message)
	}

	notices := make([]string, 0)
	if cs.Unverified {
		notices = append(notices, MsgConflictUnverified)
	}

	return Result{
		Valid:      len(v) == 0,
		Violations: v,
		Notices:    notices,
		Derived:    derived,
	}
}

// windowOrdered checks windowStart <= start < end <= windowEnd without any
// wrap past midnight.
func windowOrdered(startTime string, d Derived) bool {
	start, err := timeofday.Parse(startTime)
	if err != nil {
		return false
	}
	ws, err1 := timeofday.Parse(d.AttendanceWindowStart)
	end, err2 := timeofday.Parse(d.EndTime)
	we, err3 := timeofday.Parse(d.AttendanceWindowEnd)
	if err1 != nil || err2 != nil || err3 != nil {
		return false
	}
	return ws <= start && start < end && end <= we
}

func validLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, x := range values {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
