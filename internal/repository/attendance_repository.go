package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AttendanceRepository struct {
	*base.Repository
}

func NewAttendanceRepository(pool *pgxpool.Pool) *AttendanceRepository {
	return &AttendanceRepository{Repository: base.NewRepository(pool)}
}

// Create сохраняет отметку. Повторная отметка того же студента даёт ErrDuplicate.
func (r *AttendanceRepository) Create(ctx context.Context, a *model.Attendance) error {
	query := `
		INSERT INTO class_attendances (session_id, student_id, status, verification_method, face_verified, marked_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.Pool().QueryRow(
		ctx, query,
		a.SessionID,
		a.StudentID,
		a.Status,
		a.VerificationMethod,
		a.FaceVerified,
		a.MarkedAt,
		a.Notes,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("create attendance: %w", mapWriteError(err))
	}
	return nil
}

// Get получает отметку студента на занятии
func (r *AttendanceRepository) Get(ctx context.Context, sessionID, studentID int64) (*model.Attendance, error) {
	query := `
		SELECT a.id, a.session_id, a.student_id, a.status, a.verification_method, a.face_verified, a.marked_at, a.notes, u.full_name
		FROM class_attendances a
		JOIN users u ON u.id = a.student_id
		WHERE a.session_id = $1 AND a.student_id = $2
	`

	a, err := scanAttendance(r.Pool().QueryRow(ctx, query, sessionID, studentID))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	return a, nil
}

// ListBySession возвращает все отметки занятия
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID int64) ([]*model.Attendance, error) {
	query := `
		SELECT a.id, a.session_id, a.student_id, a.status, a.verification_method, a.face_verified, a.marked_at, a.notes, u.full_name
		FROM class_attendances a
		JOIN users u ON u.id = a.student_id
		WHERE a.session_id = $1
		ORDER BY u.full_name
	`

	rows, err := r.Pool().Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Attendance, 0)
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// FinalizeAbsences проставляет "absent" всем записанным студентам без отметки и
// закрывает занятие для дальнейших проставлений. Возвращает число новых пропусков.
func (r *AttendanceRepository) FinalizeAbsences(ctx context.Context, sessionID int64) (int64, error) {
	var inserted int64
	err := r.InTx(ctx, func(q base.Querier) error {
		query := `
			INSERT INTO class_attendances (session_id, student_id, status, verification_method)
			SELECT s.id, e.student_id, 'absent', 'manual'
			FROM class_sessions s
			JOIN enrollments e ON e.assignment_id = s.assignment_id AND e.status = 'approved'
			WHERE s.id = $1
			ON CONFLICT (session_id, student_id) DO NOTHING
		`
		n, err := base.ExecAffected(ctx, q, query, sessionID)
		if err != nil {
			return fmt.Errorf("insert absences: %w", err)
		}
		inserted = n

		if _, err := q.Exec(ctx, `UPDATE class_sessions SET attendance_finalized = TRUE WHERE id = $1`, sessionID); err != nil {
			return fmt.Errorf("mark finalized: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("finalize absences: %w", err)
	}
	return inserted, nil
}

func scanAttendance(row pgx.Row) (*model.Attendance, error) {
	var a model.Attendance
	err := row.Scan(
		&a.ID,
		&a.SessionID,
		&a.StudentID,
		&a.Status,
		&a.VerificationMethod,
		&a.FaceVerified,
		&a.MarkedAt,
		&a.Notes,
		&a.StudentName,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
