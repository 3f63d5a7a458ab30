package model

import (
	"time"

	"github.com/google/uuid"
)

type ClassType string

const (
	ClassTypeLecture   ClassType = "lecture"
	ClassTypeTutorial  ClassType = "tutorial"
	ClassTypePractical ClassType = "practical"
	ClassTypeSeminar   ClassType = "seminar"
	ClassTypeExam      ClassType = "exam"
)

type AttendanceMethod string

const (
	MethodManual          AttendanceMethod = "manual"
	MethodFaceRecognition AttendanceMethod = "face_recognition"
	MethodBoth            AttendanceMethod = "both"
)

// Allows reports whether a mark made with verification method m is accepted
// by a session configured with this method.
func (a AttendanceMethod) Allows(m AttendanceMethod) bool {
	if a == MethodBoth {
		return m == MethodManual || m == MethodFaceRecognition
	}
	return a == m
}

// Session is one concrete class meeting. A recurring series is stored as one
// Session per occurrence sharing a SeriesID.
type Session struct {
	ID                    int64            `json:"id"`
	SeriesID              *uuid.UUID       `json:"series_id,omitempty"`
	AssignmentID          int64            `json:"course_assignment_id"`
	Title                 string           `json:"title"`
	Description           string           `json:"description"`
	ClassType             ClassType        `json:"class_type"`
	ScheduledDate         time.Time        `json:"scheduled_date"`
	StartTime             string           `json:"start_time"` // HH:MM
	EndTime               string           `json:"end_time"`   // всегда вычисляется из StartTime + DurationMinutes
	DurationMinutes       int              `json:"duration_minutes"`
	GraceMinutes          int              `json:"grace_minutes"`
	AttendanceWindowStart string           `json:"attendance_window_start"`
	AttendanceWindowEnd   string           `json:"attendance_window_end"`
	RoomID                *int64           `json:"room_id,omitempty"`
	MeetingLink           string           `json:"meeting_link,omitempty"`
	AttendanceMethod      AttendanceMethod `json:"attendance_method"`
	IsRecurring           bool             `json:"is_recurring"`
	RecurrenceEndDate     *time.Time       `json:"recurrence_end_date,omitempty"`
	IsActive              bool             `json:"is_active"`
	IsCancelled           bool             `json:"is_cancelled"`
	CancellationReason    string           `json:"cancellation_reason,omitempty"`
	AttendanceFinalized   bool             `json:"attendance_finalized"`
	CreatedBy             int64            `json:"created_by"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`

	// Дополнительные поля для удобства (не из таблицы class_sessions)
	LecturerID int64  `json:"lecturer_id,omitempty"`
	CourseCode string `json:"course_code,omitempty"`
	Room       *Room  `json:"room,omitempty"`
}

// EffectiveMeetingLink returns the session's own link, falling back to the
// default link of a virtual room.
func (s *Session) EffectiveMeetingLink() string {
	if s.MeetingLink != "" {
		return s.MeetingLink
	}
	if s.Room != nil && s.Room.IsVirtual() {
		return s.Room.DefaultMeetingLink
	}
	return ""
}

// Open reports whether the session can still take attendance marks.
func (s *Session) Open() bool {
	return s.IsActive && !s.IsCancelled
}

// SessionFilter narrows a session listing.
type SessionFilter struct {
	LecturerID *int64
	StudentID  *int64
	Date       *time.Time
}
