package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/face"
	"github.com/Freeeeeet/class_attendance/internal/metrics"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/repository"
	"github.com/Freeeeeet/class_attendance/internal/window"
	"go.uber.org/zap"
)

// AttendanceStore хранилище отметок. Реализуется repository.AttendanceRepository.
type AttendanceStore interface {
	Create(ctx context.Context, a *model.Attendance) error
	Get(ctx context.Context, sessionID, studentID int64) (*model.Attendance, error)
	ListBySession(ctx context.Context, sessionID int64) ([]*model.Attendance, error)
	FinalizeAbsences(ctx context.Context, sessionID int64) (int64, error)
}

// FinalizableLister отдаёт занятия, по которым ещё не проставлены пропуски
type FinalizableLister interface {
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	ListFinalizable(ctx context.Context, upTo time.Time) ([]*model.Session, error)
}

// MarkRequest запрос студента на отметку
type MarkRequest struct {
	SessionID int64
	Method    model.AttendanceMethod
	Image     []byte
	Notes     string
}

type AttendanceService struct {
	sessions    FinalizableLister
	assignments AssignmentStore
	attendance  AttendanceStore
	verifier    face.Verifier
	classifier  *window.Classifier
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewAttendanceService(
	sessions FinalizableLister,
	assignments AssignmentStore,
	attendance AttendanceStore,
	verifier face.Verifier,
	classifier *window.Classifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AttendanceService {
	return &AttendanceService{
		sessions:    sessions,
		assignments: assignments,
		attendance:  attendance,
		verifier:    verifier,
		classifier:  classifier,
		metrics:     m,
		logger:      logger,
	}
}

// Mark отмечает студента на занятии. Статус (present/late) определяется по
// состоянию окна в момент записи, а не по сохранённому заранее значению.
func (s *AttendanceService) Mark(ctx context.Context, student *model.User, req MarkRequest) (*model.Attendance, error) {
	a, err := s.mark(ctx, student, req)
	if err != nil {
		s.metrics.AttendanceRejected(rejectionReason(err))
		return nil, err
	}
	return a, nil
}

func (s *AttendanceService) mark(ctx context.Context, student *model.User, req MarkRequest) (*model.Attendance, error) {
	if !student.IsStudent() {
		return nil, ErrForbidden
	}

	session, err := s.sessions.GetByID(ctx, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !session.Open() {
		return nil, ErrSessionCancelled
	}

	enrolled, err := s.assignments.IsEnrolled(ctx, student.ID, session.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNotEnrolled
	}

	method := req.Method
	if method == "" {
		method = model.MethodManual
	}
	if !session.AttendanceMethod.Allows(method) {
		return nil, ErrMethodNotAllowed
	}

	if _, err := s.classify(session); err != nil {
		return nil, err
	}

	existing, err := s.attendance.Get(ctx, session.ID, student.ID)
	if err != nil {
		return nil, fmt.Errorf("get attendance: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyMarked
	}

	faceVerified := false
	if method == model.MethodFaceRecognition {
		if len(req.Image) == 0 {
			return nil, ErrImageRequired
		}
		verdict, err := s.verifier.Verify(ctx, student.ID, req.Image)
		if err != nil {
			if errors.Is(err, face.ErrUnavailable) {
				return nil, ErrFaceUnavailable
			}
			return nil, fmt.Errorf("verify face: %w", err)
		}
		if !verdict.Match {
			s.logger.Info("Face not recognized",
				zap.Int64("session_id", session.ID),
				zap.Int64("student_id", student.ID),
				zap.Float64("confidence", verdict.Confidence),
			)
			return nil, ErrFaceNotRecognized
		}
		faceVerified = true
	}

	// Проверка лица может занять время: окно пересчитывается перед записью
	c, err := s.classify(session)
	if err != nil {
		return nil, err
	}

	status := model.AttendancePresent
	if c.Tag == window.TagLate {
		status = model.AttendanceLate
	}

	a := &model.Attendance{
		SessionID:          session.ID,
		StudentID:          student.ID,
		Status:             status,
		VerificationMethod: method,
		FaceVerified:       faceVerified,
		MarkedAt:           s.classifier.Now(),
		Notes:              req.Notes,
		StudentName:        student.FullName,
	}
	if err := s.attendance.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyMarked
		}
		return nil, fmt.Errorf("create attendance: %w", err)
	}

	s.metrics.AttendanceMarked(string(status), string(method))
	s.logger.Info("Attendance marked",
		zap.Int64("session_id", session.ID),
		zap.Int64("student_id", student.ID),
		zap.String("status", string(status)),
		zap.String("method", string(method)),
	)
	return a, nil
}

// classify проверяет, что окно открыто прямо сейчас
func (s *AttendanceService) classify(session *model.Session) (window.Classification, error) {
	if session.AttendanceFinalized {
		return window.Classification{}, ErrAttendanceClosed
	}
	c, err := s.classifier.Evaluate(session.ScheduledDate,
		session.AttendanceWindowStart, session.StartTime, session.AttendanceWindowEnd)
	if err != nil {
		return window.Classification{}, fmt.Errorf("session %d window: %w", session.ID, err)
	}
	switch c.State {
	case window.StateUpcoming:
		return c, ErrAttendanceNotOpen
	case window.StateClosed:
		return c, ErrAttendanceClosed
	}
	return c, nil
}

// Roster список отметок занятия для преподавателя курса
func (s *AttendanceService) Roster(ctx context.Context, actor *model.User, sessionID int64) ([]*model.Attendance, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !canManage(actor, session.LecturerID) {
		return nil, ErrNotAssignmentOwner
	}

	list, err := s.attendance.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return list, nil
}

// FinalizeClosed проставляет пропуски по всем занятиям, окно которых уже закрыто
func (s *AttendanceService) FinalizeClosed(ctx context.Context) (int64, error) {
	now := s.classifier.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	sessions, err := s.sessions.ListFinalizable(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("list finalizable sessions: %w", err)
	}

	var total int64
	for _, session := range sessions {
		c, err := s.classifier.Evaluate(session.ScheduledDate,
			session.AttendanceWindowStart, session.StartTime, session.AttendanceWindowEnd)
		if err != nil {
			s.logger.Warn("Skipping session with malformed window",
				zap.Int64("session_id", session.ID), zap.Error(err))
			continue
		}
		if c.State != window.StateClosed {
			continue
		}

		n, err := s.attendance.FinalizeAbsences(ctx, session.ID)
		if err != nil {
			return total, fmt.Errorf("finalize session %d: %w", session.ID, err)
		}
		total += n
		s.logger.Info("Attendance finalized",
			zap.Int64("session_id", session.ID),
			zap.Int64("absences", n),
		)
	}

	s.metrics.AbsencesRecorded(total)
	return total, nil
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrAttendanceNotOpen):
		return "not_open"
	case errors.Is(err, ErrAttendanceClosed):
		return "closed"
	case errors.Is(err, ErrNotEnrolled):
		return "not_enrolled"
	case errors.Is(err, ErrAlreadyMarked):
		return "already_marked"
	case errors.Is(err, ErrMethodNotAllowed):
		return "method_not_allowed"
	case errors.Is(err, ErrFaceNotRecognized), errors.Is(err, ErrImageRequired):
		return "face_rejected"
	case errors.Is(err, ErrFaceUnavailable):
		return "face_unavailable"
	case errors.Is(err, ErrSessionCancelled), errors.Is(err, ErrSessionNotFound):
		return "session"
	default:
		return "other"
	}
}
