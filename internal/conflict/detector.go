// Package conflict finds bookings that overlap a candidate session. Three
// classes are checked independently and all are reported: the same room, the
// same lecturer, and any course sharing at least one enrolled student.
package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/timeofday"
)

// Type classifies an overlap.
type Type string

const (
	TypeRoom     Type = "room"
	TypeLecturer Type = "lecturer"
	TypeStudent  Type = "student"
)

// Conflict is one overlapping booking.
type Conflict struct {
	Type         Type   `json:"type"`
	SessionID    int64  `json:"sessionId"`
	SessionTitle string `json:"sessionTitle"`
	CourseCode   string `json:"courseCode"`
	Date         string `json:"date"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	Message      string `json:"message"`
}

// Report is the detector's result. An overlap is a result, not an error.
type Report struct {
	HasConflicts bool       `json:"hasConflicts"`
	Conflicts    []Conflict `json:"conflicts"`
}

// Candidate is the session being proposed. Start and End must be well-formed
// and End must fall after Start on the same day. RoomID is nil for sessions held at an ad-hoc meeting link.
type Candidate struct {
	AssignmentID     int64
	Date             time.Time
	StartTime        string
	EndTime          string
	RoomID           *int64
	ExcludeSessionID int64
}

// Booking is an existing active session as seen by the detector.
type Booking struct {
	SessionID  int64
	Title      string
	CourseCode string
	RoomCode   string
	Date       time.Time
	StartTime  string
	EndTime    string
}

// Store is the read-only persistence the detector needs. Implementations
// return only active, non-cancelled sessions on the given date.
type Store interface {
	LecturerOf(ctx context.Context, assignmentID int64) (int64, error)
	RoomBookings(ctx context.Context, roomID int64, date time.Time) ([]Booking, error)
	LecturerBookings(ctx context.Context, lecturerID int64, date time.Time) ([]Booking, error)
	CohortBookings(ctx context.Context, assignmentID int64, date time.Time) ([]Booking, error)
}

// Overlaps reports whether [startA,endA) and [startB,endB) intersect.
// Touching endpoints do not overlap.
func Overlaps(startA, endA, startB, endB timeofday.Time) bool {
	return startA < endB && startB < endA
}

// Detector classifies overlapping bookings for a candidate.
type Detector struct {
	store Store
}

// NewDetector returns a detector backed by store.
func NewDetector(store Store) *Detector {
	return &Detector{store: store}
}

// Check queries the store and returns every overlap, room conflicts first,
// then lecturer, then student-cohort.
func (d *Detector) Check(ctx context.Context, c Candidate) (Report, error) {
	start, err := timeofday.Parse(c.StartTime)
	if err != nil {
		return Report{}, fmt.Errorf("candidate start: %w", err)
	}
	end, err := timeofday.Parse(c.EndTime)
	if err != nil {
		return Report{}, fmt.Errorf("candidate end: %w", err)
	}
	// Intervals are compared within a single day.
	if end <= start {
		return Report{}, fmt.Errorf("candidate %s-%s crosses midnight: %w", start, end, timeofday.ErrMalformed)
	}

	report := Report{Conflicts: []Conflict{}}

	if c.RoomID != nil {
		bookings, err := d.store.RoomBookings(ctx, *c.RoomID, c.Date)
		if err != nil {
			return Report{}, fmt.Errorf("room bookings: %w", err)
		}
		report.add(TypeRoom, c, start, end, bookings, func(b Booking) string {
			return fmt.Sprintf("Room %s is already booked on %s: %s %s (%s-%s)",
				b.RoomCode, formatDate(b.Date), b.CourseCode, b.Title, b.StartTime, b.EndTime)
		})
	}

	lecturerID, err := d.store.LecturerOf(ctx, c.AssignmentID)
	if err != nil {
		return Report{}, fmt.Errorf("lecturer of assignment: %w", err)
	}
	bookings, err := d.store.LecturerBookings(ctx, lecturerID, c.Date)
	if err != nil {
		return Report{}, fmt.Errorf("lecturer bookings: %w", err)
	}
	report.add(TypeLecturer, c, start, end, bookings, func(b Booking) string {
		return fmt.Sprintf("Lecturer has another class on %s: %s %s (%s-%s)",
			formatDate(b.Date), b.CourseCode, b.Title, b.StartTime, b.EndTime)
	})

	bookings, err = d.store.CohortBookings(ctx, c.AssignmentID, c.Date)
	if err != nil {
		return Report{}, fmt.Errorf("cohort bookings: %w", err)
	}
	report.add(TypeStudent, c, start, end, bookings, func(b Booking) string {
		return fmt.Sprintf("Students have a conflicting class on %s: %s %s (%s-%s)",
			formatDate(b.Date), b.CourseCode, b.Title, b.StartTime, b.EndTime)
	})

	report.HasConflicts = len(report.Conflicts) > 0
	return report, nil
}

func (r *Report) add(kind Type, c Candidate, start, end timeofday.Time, bookings []Booking, message func(Booking) string) {
	for _, b := range bookings {
		if c.ExcludeSessionID != 0 && b.SessionID == c.ExcludeSessionID {
			continue
		}
		bStart, err := timeofday.Parse(b.StartTime)
		if err != nil {
			continue
		}
		bEnd, err := timeofday.Parse(b.EndTime)
		if err != nil {
			continue
		}
		if !Overlaps(start, end, bStart, bEnd) {
			continue
		}
		if b.Date.IsZero() {
			b.Date = c.Date
		}
		r.Conflicts = append(r.Conflicts, Conflict{
			Type:         kind,
			SessionID:    b.SessionID,
			SessionTitle: b.Title,
			CourseCode:   b.CourseCode,
			Date:         formatDate(b.Date),
			StartTime:    bStart.String(),
			EndTime:      bEnd.String(),
			Message:      message(b),
		})
	}
}

// Merge concatenates reports in order, e.g. one per occurrence of a series.
func Merge(reports ...Report) Report {
	merged := Report{Conflicts: []Conflict{}}
	for _, r := range reports {
		merged.Conflicts = append(merged.Conflicts, r.Conflicts...)
	}
	merged.HasConflicts = len(merged.Conflicts) > 0
	return merged
}

// CountByType tallies conflicts per class.
func (r Report) CountByType() map[Type]int {
	counts := make(map[Type]int, 3)
	for _, c := range r.Conflicts {
		counts[c.Type]++
	}
	return counts
}

func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}
