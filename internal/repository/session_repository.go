package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/conflict"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository хранит занятия. Время хранится в колонках TIME и
// читается строками HH:MM.
type SessionRepository struct {
	*base.Repository
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{Repository: base.NewRepository(pool)}
}

var _ conflict.Store = (*SessionRepository)(nil)

const sessionColumns = `
	s.id, s.series_id, s.assignment_id, s.title, s.description, s.class_type, s.scheduled_date,
	to_char(s.start_time, 'HH24:MI'), to_char(s.end_time, 'HH24:MI'),
	s.duration_minutes, s.grace_minutes,
	to_char(s.attendance_window_start, 'HH24:MI'), to_char(s.attendance_window_end, 'HH24:MI'),
	s.room_id, s.meeting_link, s.attendance_method, s.is_recurring, s.recurrence_end_date,
	s.is_active, s.is_cancelled, s.cancellation_reason, s.attendance_finalized,
	s.created_by, s.created_at, s.updated_at,
	ca.lecturer_id, c.code,
	r.name, r.code, r.room_type, r.default_meeting_link`

const sessionFrom = `
	FROM class_sessions s
	JOIN course_assignments ca ON ca.id = s.assignment_id
	JOIN courses c ON c.id = ca.course_id
	LEFT JOIN rooms r ON r.id = s.room_id`

func scanSession(row pgx.Row) (*model.Session, error) {
	var s model.Session
	var roomName, roomCode, roomType, roomLink *string
	err := row.Scan(
		&s.ID,
		&s.SeriesID,
		&s.AssignmentID,
		&s.Title,
		&s.Description,
		&s.ClassType,
		&s.ScheduledDate,
		&s.StartTime,
		&s.EndTime,
		&s.DurationMinutes,
		&s.GraceMinutes,
		&s.AttendanceWindowStart,
		&s.AttendanceWindowEnd,
		&s.RoomID,
		&s.MeetingLink,
		&s.AttendanceMethod,
		&s.IsRecurring,
		&s.RecurrenceEndDate,
		&s.IsActive,
		&s.IsCancelled,
		&s.CancellationReason,
		&s.AttendanceFinalized,
		&s.CreatedBy,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.LecturerID,
		&s.CourseCode,
		&roomName,
		&roomCode,
		&roomType,
		&roomLink,
	)
	if err != nil {
		return nil, err
	}
	if s.RoomID != nil && roomCode != nil {
		s.Room = &model.Room{
			ID:                 *s.RoomID,
			Name:               deref(roomName),
			Code:               *roomCode,
			Type:               model.RoomType(deref(roomType)),
			DefaultMeetingLink: deref(roomLink),
			IsAvailable:        true,
		}
	}
	return &s, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func collectSessions(rows pgx.Rows) ([]*model.Session, error) {
	defer rows.Close()

	sessions := make([]*model.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func insertSession(ctx context.Context, q base.Querier, s *model.Session) error {
	query := `
		INSERT INTO class_sessions (
			series_id, assignment_id, title, description, class_type, scheduled_date,
			start_time, end_time, duration_minutes, grace_minutes,
			attendance_window_start, attendance_window_end,
			room_id, meeting_link, attendance_method, is_recurring, recurrence_end_date,
			is_active, created_by
		)
		VALUES ($1, $2, $3, $4, $5, $6,
			$7::text::time, $8::text::time, $9, $10,
			$11::text::time, $12::text::time,
			$13, $14, $15, $16, $17,
			TRUE, $18)
		RETURNING id, is_active, created_at, updated_at
	`

	return q.QueryRow(
		ctx, query,
		s.SeriesID,
		s.AssignmentID,
		s.Title,
		s.Description,
		s.ClassType,
		s.ScheduledDate,
		s.StartTime,
		s.EndTime,
		s.DurationMinutes,
		s.GraceMinutes,
		s.AttendanceWindowStart,
		s.AttendanceWindowEnd,
		s.RoomID,
		s.MeetingLink,
		s.AttendanceMethod,
		s.IsRecurring,
		s.RecurrenceEndDate,
		s.CreatedBy,
	).Scan(&s.ID, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
}

// CreateSeries сохраняет все занятия серии в одной транзакции: либо все, либо ни одного
func (r *SessionRepository) CreateSeries(ctx context.Context, sessions []*model.Session) error {
	err := r.InTx(ctx, func(q base.Querier) error {
		for _, s := range sessions {
			if err := insertSession(ctx, q, s); err != nil {
				return fmt.Errorf("insert session on %s: %w", s.ScheduledDate.Format(time.DateOnly), mapWriteError(err))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create sessions: %w", err)
	}
	return nil
}

// GetByID получает занятие по ID
func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + sessionFrom + ` WHERE s.id = $1`

	s, err := scanSession(r.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session by id: %w", err)
	}
	return s, nil
}

// Update перезаписывает редактируемые поля одного занятия
func (r *SessionRepository) Update(ctx context.Context, s *model.Session) error {
	query := `
		UPDATE class_sessions SET
			title = $2,
			description = $3,
			class_type = $4,
			scheduled_date = $5,
			start_time = $6::text::time,
			end_time = $7::text::time,
			duration_minutes = $8,
			grace_minutes = $9,
			attendance_window_start = $10::text::time,
			attendance_window_end = $11::text::time,
			room_id = $12,
			meeting_link = $13,
			attendance_method = $14,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.Pool().QueryRow(
		ctx, query,
		s.ID,
		s.Title,
		s.Description,
		s.ClassType,
		s.ScheduledDate,
		s.StartTime,
		s.EndTime,
		s.DurationMinutes,
		s.GraceMinutes,
		s.AttendanceWindowStart,
		s.AttendanceWindowEnd,
		s.RoomID,
		s.MeetingLink,
		s.AttendanceMethod,
	).Scan(&s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update session: %w", mapWriteError(err))
	}
	return nil
}

// Cancel помечает занятие отменённым. Отменённые занятия не участвуют в проверке конфликтов.
func (r *SessionRepository) Cancel(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE class_sessions
		SET is_cancelled = TRUE, cancellation_reason = $2, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.Pool().Exec(ctx, query, id, reason); err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	return nil
}

// Delete удаляет одно занятие
func (r *SessionRepository) Delete(ctx context.Context, id int64) (int64, error) {
	affected, err := base.ExecAffected(ctx, r.Pool(), `DELETE FROM class_sessions WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}
	return affected, nil
}

// DeleteSeries удаляет все занятия серии
func (r *SessionRepository) DeleteSeries(ctx context.Context, seriesID uuid.UUID) (int64, error) {
	affected, err := base.ExecAffected(ctx, r.Pool(), `DELETE FROM class_sessions WHERE series_id = $1`, seriesID)
	if err != nil {
		return 0, fmt.Errorf("delete series: %w", err)
	}
	return affected, nil
}

// ListSeries возвращает занятия серии по дате
func (r *SessionRepository) ListSeries(ctx context.Context, seriesID uuid.UUID) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + sessionFrom + `
		WHERE s.series_id = $1
		ORDER BY s.scheduled_date`

	rows, err := r.Pool().Query(ctx, query, seriesID)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	return collectSessions(rows)
}

// List возвращает занятия по фильтру. Для студента только курсы с одобренной записью.
func (r *SessionRepository) List(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + sessionFrom + `
		WHERE ($1::bigint IS NULL OR ca.lecturer_id = $1)
		  AND ($2::bigint IS NULL OR EXISTS (
				SELECT 1 FROM enrollments e
				WHERE e.assignment_id = s.assignment_id AND e.student_id = $2 AND e.status = 'approved'))
		  AND ($3::date IS NULL OR s.scheduled_date = $3)
		ORDER BY s.scheduled_date, s.start_time`

	rows, err := r.Pool().Query(ctx, query, filter.LecturerID, filter.StudentID, filter.Date)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return collectSessions(rows)
}

// ListFinalizable возвращает активные занятия до указанной даты включительно,
// по которым ещё не проставлены пропуски
func (r *SessionRepository) ListFinalizable(ctx context.Context, upTo time.Time) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + sessionFrom + `
		WHERE s.is_active AND NOT s.is_cancelled AND NOT s.attendance_finalized
		  AND s.scheduled_date <= $1
		ORDER BY s.scheduled_date, s.start_time`

	rows, err := r.Pool().Query(ctx, query, upTo)
	if err != nil {
		return nil, fmt.Errorf("list finalizable sessions: %w", err)
	}
	return collectSessions(rows)
}

// LecturerOf возвращает преподавателя назначения
func (r *SessionRepository) LecturerOf(ctx context.Context, assignmentID int64) (int64, error) {
	var lecturerID int64
	err := r.Pool().QueryRow(ctx, `SELECT lecturer_id FROM course_assignments WHERE id = $1`, assignmentID).Scan(&lecturerID)
	if err != nil {
		return 0, fmt.Errorf("get lecturer of assignment %d: %w", assignmentID, err)
	}
	return lecturerID, nil
}

const bookingSelect = `
	SELECT s.id, s.title, c.code, COALESCE(r.code, ''), s.scheduled_date,
		to_char(s.start_time, 'HH24:MI'), to_char(s.end_time, 'HH24:MI')
	FROM class_sessions s
	JOIN course_assignments ca ON ca.id = s.assignment_id
	JOIN courses c ON c.id = ca.course_id
	LEFT JOIN rooms r ON r.id = s.room_id
	WHERE s.scheduled_date = $2 AND s.is_active AND NOT s.is_cancelled`

// RoomBookings активные занятия в аудитории на дату
func (r *SessionRepository) RoomBookings(ctx context.Context, roomID int64, date time.Time) ([]conflict.Booking, error) {
	return r.bookings(ctx, bookingSelect+` AND s.room_id = $1 ORDER BY s.start_time`, roomID, date)
}

// LecturerBookings активные занятия преподавателя на дату
func (r *SessionRepository) LecturerBookings(ctx context.Context, lecturerID int64, date time.Time) ([]conflict.Booking, error) {
	return r.bookings(ctx, bookingSelect+` AND ca.lecturer_id = $1 ORDER BY s.start_time`, lecturerID, date)
}

// CohortBookings активные занятия на дату у курсов, с которыми у назначения
// есть хотя бы один общий студент (включая само назначение)
func (r *SessionRepository) CohortBookings(ctx context.Context, assignmentID int64, date time.Time) ([]conflict.Booking, error) {
	query := bookingSelect + `
		AND EXISTS (
			SELECT 1
			FROM enrollments mine
			JOIN enrollments theirs ON theirs.student_id = mine.student_id
			WHERE mine.assignment_id = $1 AND mine.status = 'approved'
			  AND theirs.assignment_id = s.assignment_id AND theirs.status = 'approved'
		)
		ORDER BY s.start_time`
	return r.bookings(ctx, query, assignmentID, date)
}

func (r *SessionRepository) bookings(ctx context.Context, query string, id int64, date time.Time) ([]conflict.Booking, error) {
	rows, err := r.Pool().Query(ctx, query, id, date)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []conflict.Booking
	for rows.Next() {
		var b conflict.Booking
		if err := rows.Scan(&b.SessionID, &b.Title, &b.CourseCode, &b.RoomCode, &b.Date, &b.StartTime, &b.EndTime); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}
