package httpapi

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/Freeeeeet/class_attendance/internal/model"
	"github.com/Freeeeeet/class_attendance/internal/service"
)

const maxImageBytes = 5 << 20

type markRequest struct {
	SessionID          int64  `json:"sessionId" validate:"required,gt=0"`
	VerificationMethod string `json:"verificationMethod" validate:"omitempty,oneof=manual face_recognition"`
	CapturedImage      []byte `json:"capturedImage" validate:"max=5242880"`
	Notes              string `json:"notes" validate:"max=500"`
}

// bindMark accepts either a JSON body (image base64-encoded) or a multipart
// form with the image in the "capturedImage" file field.
func (s *Server) bindMark(r *http.Request) (markRequest, error) {
	var req markRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			return req, err
		}
		req.SessionID, _ = strconv.ParseInt(r.FormValue("sessionId"), 10, 64)
		req.VerificationMethod = r.FormValue("verificationMethod")
		req.Notes = r.FormValue("notes")

		file, _, err := r.FormFile("capturedImage")
		if err == nil {
			defer file.Close()
			req.CapturedImage, err = io.ReadAll(io.LimitReader(file, maxImageBytes+1))
			if err != nil {
				return req, err
			}
		} else if err != http.ErrMissingFile {
			return req, err
		}
	} else if err := decodeJSON(r, &req); err != nil {
		return req, err
	}

	return req, s.validate.Struct(req)
}

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxImageBytes)

	req, err := s.bindMark(r)
	if err != nil {
		s.writeBindError(w, err)
		return
	}

	a, err := s.attendance.Mark(r.Context(), userFromContext(r.Context()), service.MarkRequest{
		SessionID: req.SessionID,
		Method:    model.AttendanceMethod(req.VerificationMethod),
		Image:     req.CapturedImage,
		Notes:     req.Notes,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
