package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Freeeeeet/class_attendance/internal/conflict"
	"github.com/Freeeeeet/class_attendance/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error      string           `json:"error"`
	Violations []string         `json:"violations,omitempty"`
	Conflicts  *conflict.Report `json:"conflicts,omitempty"`
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError переводит ошибки сервисов в HTTP-ответ. Каждый ответ
// об ошибке содержит хотя бы одно сообщение.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		status := http.StatusUnprocessableEntity
		var report *conflict.Report
		if verr.HasConflicts() {
			status = http.StatusConflict
			report = &verr.Report
		}
		writeJSON(w, status, errorResponse{
			Error:      "session is not valid",
			Violations: verr.Violations,
			Conflicts:  report,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrSeriesNotFound),
		errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNotAssignmentOwner),
		errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrNotEnrolled):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrSessionCancelled),
		errors.Is(err, service.ErrRoomDoubleBooked),
		errors.Is(err, service.ErrAlreadyMarked),
		errors.Is(err, service.ErrAttendanceNotOpen),
		errors.Is(err, service.ErrAttendanceClosed):
		status = http.StatusConflict
	case errors.Is(err, service.ErrMethodNotAllowed),
		errors.Is(err, service.ErrImageRequired),
		errors.Is(err, service.ErrFaceNotRecognized),
		errors.Is(err, service.ErrRoomUnavailable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrFaceUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// writeBindError отвечает 400 на тело, не прошедшее декодирование или
// проверку тегов validate
func (s *Server) writeBindError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		messages := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			messages = append(messages, fe.Translate(s.trans))
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request", Violations: messages})
		return
	}
	writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
