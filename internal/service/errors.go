package service

import (
	"errors"
	"strings"

	"github.com/Freeeeeet/class_attendance/internal/conflict"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrForbidden          = errors.New("action not allowed for this role")
	ErrAssignmentNotFound = errors.New("course assignment not found")
	ErrNotAssignmentOwner = errors.New("only the course lecturer can manage its sessions")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomUnavailable    = errors.New("room is not available for booking")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSeriesNotFound     = errors.New("session series not found")
	ErrSessionCancelled   = errors.New("session is cancelled")
	ErrRoomDoubleBooked   = errors.New("room was booked by another session in the meantime")

	ErrAttendanceNotOpen = errors.New("attendance window is not open yet")
	ErrAttendanceClosed  = errors.New("attendance window is closed")
	ErrNotEnrolled       = errors.New("student is not enrolled in this course")
	ErrAlreadyMarked     = errors.New("attendance already marked for this session")
	ErrMethodNotAllowed  = errors.New("verification method not allowed for this session")
	ErrImageRequired     = errors.New("captured image is required for face verification")
	ErrFaceNotRecognized = errors.New("face not recognized")
	ErrFaceUnavailable   = errors.New("face verification is unavailable, try again later")
)

// ValidationError несёт полный список нарушений в порядке проверки и,
// если нарушения вызваны пересечениями, отчёт детектора.
type ValidationError struct {
	Violations []string
	Report     conflict.Report
}

func (e *ValidationError) Error() string {
	return "invalid session: " + strings.Join(e.Violations, "; ")
}

// HasConflicts сообщает, что среди нарушений есть пересечения расписания
func (e *ValidationError) HasConflicts() bool {
	return e.Report.HasConflicts
}
