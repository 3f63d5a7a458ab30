package service

import (
	"context"

	"github.com/Freeeeeet/class_attendance/internal/model"
	"go.uber.org/zap"
)

// NotificationKind вид уведомления студентам
type NotificationKind string

const (
	NotifyScheduled NotificationKind = "class_scheduled"
	NotifyUpdated   NotificationKind = "class_updated"
	NotifyCancelled NotificationKind = "class_cancelled"
)

// Notification сообщение об изменении расписания. Для серии Sessions
// содержит все созданные занятия.
type Notification struct {
	Kind     NotificationKind
	Sessions []*model.Session
	Reason   string
}

// Notifier доставляет уведомление одному студенту. Реализуется контроллером бота.
type Notifier interface {
	Notify(ctx context.Context, student *model.User, n Notification) error
}

// StudentLister возвращает студентов с подтверждённой записью, которым
// можно отправить сообщение. Реализуется repository.CourseRepository.
type StudentLister interface {
	ListNotifiableStudents(ctx context.Context, assignmentID int64) ([]*model.User, error)
}

// SetNotifier подключает рассылку. Бот создаётся позже сервиса, поэтому
// уведомления подключаются отдельно. Без вызова рассылка не выполняется.
func (s *SessionService) SetNotifier(students StudentLister, notifier Notifier) {
	s.students = students
	s.notifier = notifier
}

// notifyStudents рассылает уведомление всем записанным студентам.
// Ошибки только логируются: изменение уже сохранено.
func (s *SessionService) notifyStudents(ctx context.Context, assignmentID int64, n Notification) {
	if s.notifier == nil || s.students == nil || len(n.Sessions) == 0 {
		return
	}

	students, err := s.students.ListNotifiableStudents(ctx, assignmentID)
	if err != nil {
		s.logger.Warn("Failed to list students for notification",
			zap.Int64("assignment_id", assignmentID),
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
		return
	}

	sent := 0
	for _, student := range students {
		if err := s.notifier.Notify(ctx, student, n); err != nil {
			s.metrics.NotificationSent(string(n.Kind), "failed")
			s.logger.Warn("Failed to notify student",
				zap.Int64("student_id", student.ID),
				zap.Int64("session_id", n.Sessions[0].ID),
				zap.String("kind", string(n.Kind)),
				zap.Error(err),
			)
			continue
		}
		s.metrics.NotificationSent(string(n.Kind), "sent")
		sent++
	}

	s.logger.Info("Students notified",
		zap.Int64("assignment_id", assignmentID),
		zap.String("kind", string(n.Kind)),
		zap.Int("sent", sent),
		zap.Int("total", len(students)),
	)
}
