package handlers

import (
	"context"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/conflict"
	"github.com/Freeeeeet/class_attendance/internal/controller/state"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/service"
	"github.com/Freeeeeet/class_attendance/internal/window"
	"go.uber.org/zap"
)

type UserService interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	LinkTelegram(ctx context.Context, telegramID int64, email string) (*model.User, error)
}

type SessionService interface {
	Assignments(ctx context.Context, actor *model.User) ([]*model.CourseAssignment, error)
	List(ctx context.Context, actor *model.User, date *time.Time) ([]*model.Session, error)
	Create(ctx context.Context, actor *model.User, in service.SessionInput) ([]*model.Session, error)
	CheckConflicts(ctx context.Context, c conflict.Candidate) (conflict.Report, error)
	Window(ctx context.Context, actor *model.User, id int64) (*service.SessionWindow, error)
}

type AttendanceService interface {
	Mark(ctx context.Context, student *model.User, req service.MarkRequest) (*model.Attendance, error)
}

type RoomService interface {
	List(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error)
}

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	userService       UserService
	sessionService    SessionService
	attendanceService AttendanceService
	roomService       RoomService
	classifier        *window.Classifier
	stateManager      *state.Manager
	quietPeriod       time.Duration
	logger            *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	userService UserService,
	sessionService SessionService,
	attendanceService AttendanceService,
	roomService RoomService,
	classifier *window.Classifier,
	stateManager *state.Manager,
	quietPeriod time.Duration,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		userService:       userService,
		sessionService:    sessionService,
		attendanceService: attendanceService,
		roomService:       roomService,
		classifier:        classifier,
		stateManager:      stateManager,
		quietPeriod:       quietPeriod,
		logger:            logger,
	}
}
