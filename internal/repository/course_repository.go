package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/repository/base"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CourseRepository struct {
	pool *pgxpool.Pool
}

func NewCourseRepository(pool *pgxpool.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

const assignmentColumns = `
	ca.id, ca.course_id, ca.lecturer_id, ca.academic_year, ca.semester, ca.is_active, ca.created_at,
	c.id, c.code, c.title, c.department_code, c.level`

func scanAssignment(row pgx.Row) (*model.CourseAssignment, error) {
	var a model.CourseAssignment
	var c model.Course
	err := row.Scan(
		&a.ID,
		&a.CourseID,
		&a.LecturerID,
		&a.AcademicYear,
		&a.Semester,
		&a.IsActive,
		&a.CreatedAt,
		&c.ID,
		&c.Code,
		&c.Title,
		&c.DepartmentCode,
		&c.Level,
	)
	if err != nil {
		return nil, err
	}
	a.Course = &c
	return &a, nil
}

// GetAssignment получает назначение курса вместе с курсом
func (r *CourseRepository) GetAssignment(ctx context.Context, id int64) (*model.CourseAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM course_assignments ca
		JOIN courses c ON c.id = ca.course_id
		WHERE ca.id = $1
	`

	a, err := scanAssignment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

// ListByLecturer возвращает активные назначения преподавателя
func (r *CourseRepository) ListByLecturer(ctx context.Context, lecturerID int64) ([]*model.CourseAssignment, error) {
	query := `
		SELECT ` + assignmentColumns + `
		FROM course_assignments ca
		JOIN courses c ON c.id = ca.course_id
		WHERE ca.lecturer_id = $1 AND ca.is_active
		ORDER BY c.code
	`

	rows, err := r.pool.Query(ctx, query, lecturerID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var result []*model.CourseAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// IsEnrolled проверяет, что студент записан на курс и запись одобрена
func (r *CourseRepository) IsEnrolled(ctx context.Context, studentID, assignmentID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM enrollments
			WHERE student_id = $1 AND assignment_id = $2 AND status = 'approved'
		)
	`

	var enrolled bool
	if err := r.pool.QueryRow(ctx, query, studentID, assignmentID).Scan(&enrolled); err != nil {
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return enrolled, nil
}

// ListNotifiableStudents возвращает студентов с одобренной записью на курс,
// у которых привязан Telegram
func (r *CourseRepository) ListNotifiableStudents(ctx context.Context, assignmentID int64) ([]*model.User, error) {
	query := `
		SELECT u.id, u.telegram_id, u.full_name, u.email, u.role, u.created_at
		FROM users u
		JOIN enrollments e ON e.student_id = u.id
		WHERE e.assignment_id = $1 AND e.status = 'approved' AND u.telegram_id IS NOT NULL
		ORDER BY u.id
	`

	rows, err := r.pool.Query(ctx, query, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list notifiable students: %w", err)
	}
	defer rows.Close()

	var result []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		result = append(result, user)
	}
	return result, rows.Err()
}
