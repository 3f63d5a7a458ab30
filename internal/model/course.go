package model

import "time"

type Course struct {
	ID             int64  `json:"id"`
	Code           string `json:"code"` // например "CSC-302"
	Title          string `json:"title"`
	DepartmentCode string `json:"department_code"`
	Level          string `json:"level"`
}

// CourseAssignment binds one course to one lecturer for a term. Sessions
// belong to an assignment.
type CourseAssignment struct {
	ID           int64     `json:"id"`
	CourseID     int64     `json:"course_id"`
	LecturerID   int64     `json:"lecturer_id"`
	AcademicYear string    `json:"academic_year"` // "2024/2025"
	Semester     string    `json:"semester"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`

	Course *Course `json:"course,omitempty"`
}

type EnrollmentStatus string

const (
	EnrollmentPending   EnrollmentStatus = "pending"
	EnrollmentApproved  EnrollmentStatus = "approved"
	EnrollmentRejected  EnrollmentStatus = "rejected"
	EnrollmentWithdrawn EnrollmentStatus = "withdrawn"
	EnrollmentCompleted EnrollmentStatus = "completed"
)

type Enrollment struct {
	ID           int64            `json:"id"`
	StudentID    int64            `json:"student_id"`
	AssignmentID int64            `json:"assignment_id"`
	Status       EnrollmentStatus `json:"status"`
	EnrolledAt   time.Time        `json:"enrolled_at"`
}
