package model

import "time"

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceExcused AttendanceStatus = "excused"
)

type Attendance struct {
	ID                 int64            `json:"id"`
	SessionID          int64            `json:"session_id"`
	StudentID          int64            `json:"student_id"`
	Status             AttendanceStatus `json:"status"`
	VerificationMethod AttendanceMethod `json:"verification_method"`
	FaceVerified       bool             `json:"face_verified"`
	MarkedAt           time.Time        `json:"marked_at"`
	Notes              string           `json:"notes,omitempty"`

	StudentName string `json:"student_name,omitempty"`
}
