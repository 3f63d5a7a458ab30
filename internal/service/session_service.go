package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/conflict"
	"github.com/Freeeeeet/class_attendance/internal/metrics"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/recurrence"
	"github.com/Freeeeeet/class_attendance/internal/repository"
	"github.com/Freeeeeet/class_attendance/internal/timeofday"
	"github.com/Freeeeeet/class_attendance/internal/validation"
	"github.com/Freeeeeet/class_attendance/internal/window"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionStore хранилище занятий. Реализуется repository.SessionRepository.
type SessionStore interface {
	conflict.Store
	CreateSeries(ctx context.Context, sessions []*model.Session) error
	GetByID(ctx context.Context, id int64) (*model.Session, error)
	Update(ctx context.Context, s *model.Session) error
	Cancel(ctx context.Context, id int64, reason string) error
	Delete(ctx context.Context, id int64) (int64, error)
	DeleteSeries(ctx context.Context, seriesID uuid.UUID) (int64, error)
	ListSeries(ctx context.Context, seriesID uuid.UUID) ([]*model.Session, error)
	List(ctx context.Context, filter model.SessionFilter) ([]*model.Session, error)
}

// AssignmentStore доступ к назначениям курсов и записям студентов
type AssignmentStore interface {
	GetAssignment(ctx context.Context, id int64) (*model.CourseAssignment, error)
	IsEnrolled(ctx context.Context, studentID, assignmentID int64) (bool, error)
	ListByLecturer(ctx context.Context, lecturerID int64) ([]*model.CourseAssignment, error)
}

// RoomStore доступ к аудиториям
type RoomStore interface {
	GetByID(ctx context.Context, id int64) (*model.Room, error)
	List(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error)
}

// SessionInput поля формы занятия. EndTime и окно отметки не вводятся,
// а вычисляются.
type SessionInput struct {
	AssignmentID      int64
	Title             string
	Description       string
	ClassType         string
	ScheduledDate     *time.Time
	StartTime         string
	DurationMinutes   int
	GraceMinutes      int
	RoomID            *int64
	UseCustomLink     bool
	MeetingLink       string
	AttendanceMethod  model.AttendanceMethod
	IsRecurring       bool
	RecurrenceEndDate *time.Time
}

func (in SessionInput) draft() validation.Draft {
	return validation.Draft{
		Title:             in.Title,
		ClassType:         in.ClassType,
		ScheduledDate:     in.ScheduledDate,
		StartTime:         in.StartTime,
		DurationMinutes:   in.DurationMinutes,
		GraceMinutes:      in.GraceMinutes,
		RoomID:            in.RoomID,
		UseCustomLink:     in.UseCustomLink,
		MeetingLink:       in.MeetingLink,
		IsRecurring:       in.IsRecurring,
		RecurrenceEndDate: in.RecurrenceEndDate,
	}
}

// dates возвращает даты всех занятий, которые будут созданы
func (in SessionInput) dates() []time.Time {
	if in.ScheduledDate == nil {
		return nil
	}
	if in.IsRecurring && in.RecurrenceEndDate != nil {
		return recurrence.Occurrences(*in.ScheduledDate, *in.RecurrenceEndDate)
	}
	return []time.Time{recurrence.Date(*in.ScheduledDate)}
}

// Preview результат проверки формы без сохранения
type Preview struct {
	validation.Result
	Conflicts   conflict.Report `json:"conflicts"`
	Occurrences int             `json:"occurrences"`
	Weekday     string          `json:"weekday,omitempty"`
	Summary     string          `json:"summary,omitempty"`
}

// SessionWindow состояние окна отметки для конкретного занятия
type SessionWindow struct {
	SessionID   int64        `json:"sessionId"`
	State       window.State `json:"state"`
	Tag         window.Tag   `json:"tag"`
	CanMark     bool         `json:"canMark"`
	Cancelled   bool         `json:"cancelled"`
	WindowStart time.Time    `json:"windowStart"`
	WindowEnd   time.Time    `json:"windowEnd"`
}

type SessionService struct {
	sessions    SessionStore
	assignments AssignmentStore
	rooms       RoomStore
	detector    *conflict.Detector
	classifier  *window.Classifier
	metrics     *metrics.Metrics
	logger      *zap.Logger

	students StudentLister
	notifier Notifier
}

func NewSessionService(
	sessions SessionStore,
	assignments AssignmentStore,
	rooms RoomStore,
	classifier *window.Classifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessions:    sessions,
		assignments: assignments,
		rooms:       rooms,
		detector:    conflict.NewDetector(sessions),
		classifier:  classifier,
		metrics:     m,
		logger:      logger,
	}
}

// CheckConflicts проверяет одно предполагаемое занятие
func (s *SessionService) CheckConflicts(ctx context.Context, c conflict.Candidate) (conflict.Report, error) {
	start := time.Now()
	report, err := s.detector.Check(ctx, c)
	if err != nil {
		s.metrics.ConflictCheck("error", time.Since(start))
		s.logger.Warn("Conflict check failed",
			zap.Int64("assignment_id", c.AssignmentID),
			zap.String("date", c.Date.Format(time.DateOnly)),
			zap.Error(err),
		)
		return conflict.Report{}, fmt.Errorf("check conflicts: %w", err)
	}

	outcome := "clear"
	if report.HasConflicts {
		outcome = "conflict"
		for kind, n := range report.CountByType() {
			s.metrics.ConflictFound(string(kind), n)
		}
	}
	s.metrics.ConflictCheck(outcome, time.Since(start))
	return report, nil
}

// CheckConflictsFor проверяет занятие от имени пользователя: расписание
// назначения видят только его преподаватель и администратор
func (s *SessionService) CheckConflictsFor(ctx context.Context, actor *model.User, c conflict.Candidate) (conflict.Report, error) {
	if _, err := s.ownedAssignment(ctx, actor, c.AssignmentID); err != nil {
		return conflict.Report{}, err
	}
	return s.CheckConflicts(ctx, c)
}

// checkAll проверяет все даты серии и объединяет отчёты
func (s *SessionService) checkAll(ctx context.Context, in SessionInput, endTime string, excludeID int64) (conflict.Report, error) {
	reports := make([]conflict.Report, 0)
	for _, date := range in.dates() {
		report, err := s.CheckConflicts(ctx, conflict.Candidate{
			AssignmentID:     in.AssignmentID,
			Date:             date,
			StartTime:        in.StartTime,
			EndTime:          endTime,
			RoomID:           in.RoomID,
			ExcludeSessionID: excludeID,
		})
		if err != nil {
			return conflict.Report{}, err
		}
		reports = append(reports, report)
	}
	return conflict.Merge(reports...), nil
}

// Validate прогоняет все правила формы и проверку пересечений. Ошибка
// детектора не блокирует: результат помечается как непроверенный.
// Проверять форму может преподаватель назначения или администратор.
func (s *SessionService) Validate(ctx context.Context, actor *model.User, in SessionInput) (Preview, error) {
	if !actor.IsLecturer() && !actor.IsAdmin() {
		return Preview{}, ErrForbidden
	}
	if in.AssignmentID != 0 {
		if _, err := s.ownedAssignment(ctx, actor, in.AssignmentID); err != nil {
			return Preview{}, err
		}
	}
	return s.preview(ctx, in, 0), nil
}

func (s *SessionService) preview(ctx context.Context, in SessionInput, excludeID int64) Preview {
	derived := validation.Derive(in.draft())

	var status validation.ConflictStatus
	if derived.EndTime != "" && in.ScheduledDate != nil && in.AssignmentID != 0 {
		report, err := s.checkAll(ctx, in, derived.EndTime, excludeID)
		switch {
		case errors.Is(err, timeofday.ErrMalformed):
			// время уже отклонено правилами формы
		case err != nil:
			status.Unverified = true
		default:
			status.Report = report
		}
	}

	p := Preview{
		Result:    validation.Validate(in.draft(), status),
		Conflicts: status.Report,
	}
	if p.Conflicts.Conflicts == nil {
		p.Conflicts.Conflicts = []conflict.Conflict{}
	}
	if in.ScheduledDate != nil {
		p.Occurrences = len(in.dates())
		p.Weekday = recurrence.Weekday(*in.ScheduledDate)
		if in.IsRecurring && in.RecurrenceEndDate != nil {
			p.Summary = recurrence.Describe(*in.ScheduledDate, *in.RecurrenceEndDate)
		}
	}
	return p
}

// Create создаёт занятие или серию еженедельных занятий. Все занятия серии
// сохраняются в одной транзакции.
func (s *SessionService) Create(ctx context.Context, actor *model.User, in SessionInput) ([]*model.Session, error) {
	assignment, err := s.ownedAssignment(ctx, actor, in.AssignmentID)
	if err != nil {
		return nil, err
	}
	room, err := s.checkRoom(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}

	p := s.preview(ctx, in, 0)
	if !p.Valid {
		return nil, &ValidationError{Violations: p.Violations, Report: p.Conflicts}
	}

	method := in.AttendanceMethod
	if method == "" {
		method = model.MethodManual
	}

	var seriesID *uuid.UUID
	var recurrenceEnd *time.Time
	if in.IsRecurring {
		id := uuid.New()
		seriesID = &id
		end := recurrence.Date(*in.RecurrenceEndDate)
		recurrenceEnd = &end
	}

	dates := in.dates()
	sessions := make([]*model.Session, 0, len(dates))
	for _, date := range dates {
		sessions = append(sessions, &model.Session{
			SeriesID:              seriesID,
			AssignmentID:          assignment.ID,
			Title:                 strings.TrimSpace(in.Title),
			Description:           in.Description,
			ClassType:             classTypeOrDefault(in.ClassType),
			ScheduledDate:         date,
			StartTime:             mustNormalize(in.StartTime),
			EndTime:               p.EndTime,
			DurationMinutes:       in.DurationMinutes,
			GraceMinutes:          in.GraceMinutes,
			AttendanceWindowStart: p.AttendanceWindowStart,
			AttendanceWindowEnd:   p.AttendanceWindowEnd,
			RoomID:                in.RoomID,
			MeetingLink:           meetingLink(in),
			AttendanceMethod:      method,
			IsRecurring:           in.IsRecurring,
			RecurrenceEndDate:     recurrenceEnd,
			IsActive:              true,
			CreatedBy:             actor.ID,
			LecturerID:            assignment.LecturerID,
			Room:                  room,
		})
	}

	if err := s.sessions.CreateSeries(ctx, sessions); err != nil {
		if errors.Is(err, repository.ErrRoomOverlap) {
			s.logger.Warn("Room double-booking rejected by database",
				zap.Int64("assignment_id", assignment.ID),
				zap.Int64p("room_id", in.RoomID),
			)
			return nil, ErrRoomDoubleBooked
		}
		return nil, fmt.Errorf("create sessions: %w", err)
	}

	s.metrics.SessionsCreated(len(sessions))
	s.logger.Info("Sessions created",
		zap.Int64("assignment_id", assignment.ID),
		zap.Int64("lecturer_id", actor.ID),
		zap.Int("count", len(sessions)),
		zap.Bool("recurring", in.IsRecurring),
	)
	s.notifyStudents(ctx, assignment.ID, Notification{Kind: NotifyScheduled, Sessions: sessions})
	return sessions, nil
}

// Update редактирует одно занятие (не всю серию). Само занятие исключается
// из проверки пересечений.
func (s *SessionService) Update(ctx context.Context, actor *model.User, id int64, in SessionInput) (*model.Session, error) {
	session, err := s.ownedSession(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if session.IsCancelled {
		return nil, ErrSessionCancelled
	}
	room, err := s.checkRoom(ctx, in.RoomID)
	if err != nil {
		return nil, err
	}

	in.AssignmentID = session.AssignmentID
	in.IsRecurring = false
	in.RecurrenceEndDate = nil

	p := s.preview(ctx, in, session.ID)
	if !p.Valid {
		return nil, &ValidationError{Violations: p.Violations, Report: p.Conflicts}
	}

	session.Title = strings.TrimSpace(in.Title)
	session.Description = in.Description
	session.ClassType = classTypeOrDefault(in.ClassType)
	session.ScheduledDate = recurrence.Date(*in.ScheduledDate)
	session.StartTime = mustNormalize(in.StartTime)
	session.EndTime = p.EndTime
	session.DurationMinutes = in.DurationMinutes
	session.GraceMinutes = in.GraceMinutes
	session.AttendanceWindowStart = p.AttendanceWindowStart
	session.AttendanceWindowEnd = p.AttendanceWindowEnd
	session.RoomID = in.RoomID
	session.Room = room
	session.MeetingLink = meetingLink(in)
	if in.AttendanceMethod != "" {
		session.AttendanceMethod = in.AttendanceMethod
	}

	if err := s.sessions.Update(ctx, session); err != nil {
		if errors.Is(err, repository.ErrRoomOverlap) {
			return nil, ErrRoomDoubleBooked
		}
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.logger.Info("Session updated", zap.Int64("session_id", id), zap.Int64("lecturer_id", actor.ID))
	s.notifyStudents(ctx, session.AssignmentID, Notification{Kind: NotifyUpdated, Sessions: []*model.Session{session}})
	return session, nil
}

// Cancel отменяет занятие. Отмена окончательна.
func (s *SessionService) Cancel(ctx context.Context, actor *model.User, id int64, reason string) error {
	session, err := s.ownedSession(ctx, actor, id)
	if err != nil {
		return err
	}
	if session.IsCancelled {
		return ErrSessionCancelled
	}

	reason = strings.TrimSpace(reason)
	if err := s.sessions.Cancel(ctx, id, reason); err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	session.IsCancelled = true
	session.CancellationReason = reason

	s.logger.Info("Session cancelled", zap.Int64("session_id", id), zap.String("reason", reason))
	s.notifyStudents(ctx, session.AssignmentID, Notification{Kind: NotifyCancelled, Sessions: []*model.Session{session}, Reason: reason})
	return nil
}

// Delete удаляет одно занятие
func (s *SessionService) Delete(ctx context.Context, actor *model.User, id int64) error {
	if _, err := s.ownedSession(ctx, actor, id); err != nil {
		return err
	}

	affected, err := s.sessions.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected == 0 {
		return ErrSessionNotFound
	}

	s.logger.Info("Session deleted", zap.Int64("session_id", id))
	return nil
}

// DeleteSeries удаляет все занятия серии
func (s *SessionService) DeleteSeries(ctx context.Context, actor *model.User, seriesID uuid.UUID) (int64, error) {
	series, err := s.sessions.ListSeries(ctx, seriesID)
	if err != nil {
		return 0, fmt.Errorf("list series: %w", err)
	}
	if len(series) == 0 {
		return 0, ErrSeriesNotFound
	}
	if !canManage(actor, series[0].LecturerID) {
		return 0, ErrNotAssignmentOwner
	}

	affected, err := s.sessions.DeleteSeries(ctx, seriesID)
	if err != nil {
		return 0, fmt.Errorf("delete series: %w", err)
	}

	s.logger.Info("Session series deleted",
		zap.String("series_id", seriesID.String()),
		zap.Int64("deleted", affected),
	)
	return affected, nil
}

// Get возвращает занятие, если пользователь имеет к нему отношение
func (s *SessionService) Get(ctx context.Context, actor *model.User, id int64) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	switch actor.Role {
	case model.RoleAdmin:
	case model.RoleLecturer:
		if session.LecturerID != actor.ID {
			return nil, ErrNotAssignmentOwner
		}
	default:
		enrolled, err := s.assignments.IsEnrolled(ctx, actor.ID, session.AssignmentID)
		if err != nil {
			return nil, fmt.Errorf("check enrollment: %w", err)
		}
		if !enrolled {
			return nil, ErrNotEnrolled
		}
	}
	return session, nil
}

// List возвращает занятия пользователя: свои для преподавателя, по записям
// для студента, все для администратора
func (s *SessionService) List(ctx context.Context, actor *model.User, date *time.Time) ([]*model.Session, error) {
	filter := model.SessionFilter{Date: date}
	switch actor.Role {
	case model.RoleLecturer:
		filter.LecturerID = &actor.ID
	case model.RoleStudent:
		filter.StudentID = &actor.ID
	}

	sessions, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Window вычисляет текущее состояние окна отметки. Часы читаются при каждом вызове.
func (s *SessionService) Window(ctx context.Context, actor *model.User, id int64) (*SessionWindow, error) {
	session, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.windowOf(session)
}

func (s *SessionService) windowOf(session *model.Session) (*SessionWindow, error) {
	bounds, err := window.BoundsFor(session.ScheduledDate,
		session.AttendanceWindowStart, session.StartTime, session.AttendanceWindowEnd,
		s.classifier.Location())
	if err != nil {
		return nil, fmt.Errorf("session %d window: %w", session.ID, err)
	}
	c := window.Classify(bounds, s.classifier.Now())

	return &SessionWindow{
		SessionID:   session.ID,
		State:       c.State,
		Tag:         c.Tag,
		CanMark:     c.CanMark() && session.Open() && !session.AttendanceFinalized,
		Cancelled:   session.IsCancelled,
		WindowStart: bounds.WindowStart,
		WindowEnd:   bounds.WindowEnd,
	}, nil
}

// Assignments возвращает активные назначения преподавателя
func (s *SessionService) Assignments(ctx context.Context, actor *model.User) ([]*model.CourseAssignment, error) {
	if !actor.IsLecturer() {
		return nil, ErrForbidden
	}
	list, err := s.assignments.ListByLecturer(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return list, nil
}

func (s *SessionService) ownedAssignment(ctx context.Context, actor *model.User, assignmentID int64) (*model.CourseAssignment, error) {
	assignment, err := s.assignments.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	if assignment == nil || !assignment.IsActive {
		return nil, ErrAssignmentNotFound
	}
	if !canManage(actor, assignment.LecturerID) {
		return nil, ErrNotAssignmentOwner
	}
	return assignment, nil
}

func (s *SessionService) ownedSession(ctx context.Context, actor *model.User, id int64) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !canManage(actor, session.LecturerID) {
		return nil, ErrNotAssignmentOwner
	}
	return session, nil
}

func (s *SessionService) checkRoom(ctx context.Context, roomID *int64) (*model.Room, error) {
	if roomID == nil {
		return nil, nil
	}
	room, err := s.rooms.GetByID(ctx, *roomID)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if !room.IsAvailable {
		return nil, ErrRoomUnavailable
	}
	return room, nil
}

func canManage(actor *model.User, lecturerID int64) bool {
	return actor.IsAdmin() || (actor.IsLecturer() && actor.ID == lecturerID)
}

func classTypeOrDefault(ct string) model.ClassType {
	if ct == "" {
		return model.ClassTypeLecture
	}
	return model.ClassType(ct)
}

func meetingLink(in SessionInput) string {
	if in.UseCustomLink {
		return strings.TrimSpace(in.MeetingLink)
	}
	return ""
}

// mustNormalize приводит уже провалидированное время к виду HH:MM
func mustNormalize(v string) string {
	return timeofday.MustParse(v).String()
}
