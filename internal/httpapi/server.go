// Package httpapi exposes scheduling and attendance over a JSON REST API.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/conflict"
	"github.com/Freeeeeet/class_attendance/internal/metrics"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// UserHeader carries the acting user's ID. Authentication happens upstream.
const UserHeader = "X-User-ID"

type SessionAPI interface {
	CheckConflictsFor(ctx context.Context, actor *model.User, c conflict.Candidate) (conflict.Report, error)
	Validate(ctx context.Context, actor *model.User, in service.SessionInput) (service.Preview, error)
	Create(ctx context.Context, actor *model.User, in service.SessionInput) ([]*model.Session, error)
	Update(ctx context.Context, actor *model.User, id int64, in service.SessionInput) (*model.Session, error)
	Cancel(ctx context.Context, actor *model.User, id int64, reason string) error
	Delete(ctx context.Context, actor *model.User, id int64) error
	DeleteSeries(ctx context.Context, actor *model.User, seriesID uuid.UUID) (int64, error)
	Get(ctx context.Context, actor *model.User, id int64) (*model.Session, error)
	List(ctx context.Context, actor *model.User, date *time.Time) ([]*model.Session, error)
	Window(ctx context.Context, actor *model.User, id int64) (*service.SessionWindow, error)
}

type AttendanceAPI interface {
	Mark(ctx context.Context, student *model.User, req service.MarkRequest) (*model.Attendance, error)
	Roster(ctx context.Context, actor *model.User, sessionID int64) ([]*model.Attendance, error)
}

type RoomAPI interface {
	List(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

type Server struct {
	sessions   SessionAPI
	attendance AttendanceAPI
	rooms      RoomAPI
	users      UserLookup
	gatherer   prometheus.Gatherer
	metrics    *metrics.Metrics
	validate   *validator.Validate
	trans      ut.Translator
	logger     *zap.Logger
}

func NewServer(
	sessions SessionAPI,
	attendance AttendanceAPI,
	rooms RoomAPI,
	users UserLookup,
	gatherer prometheus.Gatherer,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	validate, trans := newValidator()
	return &Server{
		sessions:   sessions,
		attendance: attendance,
		rooms:      rooms,
		users:      users,
		gatherer:   gatherer,
		metrics:    m,
		validate:   validate,
		trans:      trans,
		logger:     logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.identify)

		r.Get("/rooms", s.handleListRooms)

		r.Post("/sessions/check-conflicts", s.handleCheckConflicts)
		r.Post("/sessions/validate", s.handleValidateSession)
		r.Post("/sessions", s.handleCreateSession)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{sessionId}", s.handleGetSession)
		r.Put("/sessions/{sessionId}", s.handleUpdateSession)
		r.Delete("/sessions/{sessionId}", s.handleDeleteSession)
		r.Post("/sessions/{sessionId}/cancel", s.handleCancelSession)
		r.Get("/sessions/{sessionId}/window", s.handleSessionWindow)
		r.Get("/sessions/{sessionId}/attendance", s.handleSessionRoster)
		r.Delete("/series/{seriesId}", s.handleDeleteSeries)

		r.Post("/attendance", s.handleMarkAttendance)
	})

	return r
}

// Middleware

type userKey struct{}

func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(UserHeader), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+UserHeader+" header")
			return
		}
		user, err := s.users.GetByID(r.Context(), id)
		if err != nil {
			s.logger.Error("Failed to load acting user", zap.Int64("user_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userKey{}).(*model.User)
	return user
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.HTTPRequest(route, strconv.Itoa(status))

		s.logger.Info("HTTP request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
