package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Freeeeeet/class_attendance/internal/conflict"
	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/service"
	"github.com/Freeeeeet/class_attendance/internal/timeofday"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// sessionRequest is the session form. Tags only check shape; business rules
// are reported by the session validator as a full violation list.
type sessionRequest struct {
	CourseAssignmentID int64  `json:"courseAssignmentId" validate:"gte=0"`
	Title              string `json:"title" validate:"max=200"`
	Description        string `json:"description"`
	ClassType          string `json:"classType" validate:"omitempty,oneof=lecture tutorial practical seminar exam"`
	ScheduledDate      string `json:"scheduledDate" validate:"omitempty,datetime=2006-01-02"`
	StartTime          string `json:"startTime"`
	DurationMinutes    int    `json:"durationMinutes" validate:"gte=0"`
	GraceMinutes       int    `json:"graceMinutes" validate:"gte=0"`
	RoomID             *int64 `json:"roomId" validate:"omitempty,gt=0"`
	UseCustomLink      bool   `json:"useCustomLink"`
	MeetingLink        string `json:"meetingLink"`
	AttendanceMethod   string `json:"attendanceMethod" validate:"omitempty,oneof=manual face_recognition both"`
	IsRecurring        bool   `json:"isRecurring"`
	RecurrenceEndDate  string `json:"recurrenceEndDate" validate:"omitempty,datetime=2006-01-02"`
}

func (req sessionRequest) input() (service.SessionInput, error) {
	date, err := parseDate(req.ScheduledDate)
	if err != nil {
		return service.SessionInput{}, err
	}
	end, err := parseDate(req.RecurrenceEndDate)
	if err != nil {
		return service.SessionInput{}, err
	}
	return service.SessionInput{
		AssignmentID:      req.CourseAssignmentID,
		Title:             req.Title,
		Description:       req.Description,
		ClassType:         req.ClassType,
		ScheduledDate:     date,
		StartTime:         req.StartTime,
		DurationMinutes:   req.DurationMinutes,
		GraceMinutes:      req.GraceMinutes,
		RoomID:            req.RoomID,
		UseCustomLink:     req.UseCustomLink,
		MeetingLink:       req.MeetingLink,
		AttendanceMethod:  model.AttendanceMethod(req.AttendanceMethod),
		IsRecurring:       req.IsRecurring,
		RecurrenceEndDate: end,
	}, nil
}

func (s *Server) bindSession(w http.ResponseWriter, r *http.Request) (service.SessionInput, bool) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeBindError(w, err)
		return service.SessionInput{}, false
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeBindError(w, err)
		return service.SessionInput{}, false
	}
	in, err := req.input()
	if err != nil {
		s.writeBindError(w, err)
		return service.SessionInput{}, false
	}
	return in, true
}

type conflictRequest struct {
	CourseAssignmentID int64  `json:"courseAssignmentId" validate:"required,gt=0"`
	ScheduledDate      string `json:"scheduledDate" validate:"required,datetime=2006-01-02"`
	StartTime          string `json:"startTime" validate:"required"`
	EndTime            string `json:"endTime"`
	DurationMinutes    int    `json:"durationMinutes" validate:"gte=0"`
	RoomID             *int64 `json:"roomId" validate:"omitempty,gt=0"`
	ExcludeSessionID   int64  `json:"excludeSessionId" validate:"gte=0"`
}

func (s *Server) handleCheckConflicts(w http.ResponseWriter, r *http.Request) {
	var req conflictRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeBindError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeBindError(w, err)
		return
	}
	date, err := parseDate(req.ScheduledDate)
	if err != nil {
		s.writeBindError(w, err)
		return
	}

	endTime := req.EndTime
	if endTime == "" && req.DurationMinutes > 0 {
		endTime = timeofday.DeriveEndTime(req.StartTime, req.DurationMinutes)
	}
	if endTime == "" {
		writeError(w, http.StatusBadRequest, "endTime or durationMinutes is required")
		return
	}

	report, err := s.sessions.CheckConflictsFor(r.Context(), userFromContext(r.Context()), conflict.Candidate{
		AssignmentID:     req.CourseAssignmentID,
		Date:             *date,
		StartTime:        req.StartTime,
		EndTime:          endTime,
		RoomID:           req.RoomID,
		ExcludeSessionID: req.ExcludeSessionID,
	})
	if err != nil {
		switch {
		case errors.Is(err, timeofday.ErrMalformed):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, service.ErrAssignmentNotFound),
			errors.Is(err, service.ErrNotAssignmentOwner):
			s.writeServiceError(w, r, err)
			return
		}
		// Клиент не блокирует форму, но показывает, что проверка не выполнена
		writeError(w, http.StatusServiceUnavailable, "could not verify scheduling conflicts")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	in, ok := s.bindSession(w, r)
	if !ok {
		return
	}
	preview, err := s.sessions.Validate(r.Context(), userFromContext(r.Context()), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	in, ok := s.bindSession(w, r)
	if !ok {
		return
	}

	created, err := s.sessions.Create(r.Context(), userFromContext(r.Context()), in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"sessions": created,
		"count":    len(created),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	sessions, err := s.sessions.List(r.Context(), userFromContext(r.Context()), date)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	session, err := s.sessions.Get(r.Context(), userFromContext(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{Session: session, EffectiveMeetingLink: session.EffectiveMeetingLink()})
}

// sessionView adds the resolved meeting link to a session.
type sessionView struct {
	*model.Session
	EffectiveMeetingLink string `json:"effective_meeting_link,omitempty"`
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	in, ok := s.bindSession(w, r)
	if !ok {
		return
	}

	session, err := s.sessions.Update(r.Context(), userFromContext(r.Context()), id, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (s *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeBindError(w, err)
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validate.Struct(req); err != nil {
		s.writeBindError(w, err)
		return
	}

	if err := s.sessions.Cancel(r.Context(), userFromContext(r.Context()), id, req.Reason); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	if err := s.sessions.Delete(r.Context(), userFromContext(r.Context()), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteSeries(w http.ResponseWriter, r *http.Request) {
	seriesID, err := uuid.Parse(chi.URLParam(r, "seriesId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid series id")
		return
	}

	deleted, err := s.sessions.DeleteSeries(r.Context(), userFromContext(r.Context()), seriesID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (s *Server) handleSessionWindow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	win, err := s.sessions.Window(r.Context(), userFromContext(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

func (s *Server) handleSessionRoster(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "sessionId")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	roster, err := s.attendance.Roster(r.Context(), userFromContext(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RoomFilter{
		Type:          model.RoomType(q.Get("type")),
		AvailableOnly: q.Get("available") == "true",
	}
	if filter.Type != "" && filter.Type != model.RoomTypePhysical && filter.Type != model.RoomTypeVirtual {
		writeError(w, http.StatusBadRequest, "type must be physical or virtual")
		return
	}

	rooms, err := s.rooms.List(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}
