package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"smartclassroom/server/internal/qr"
)

type generateTokenRequest struct {
	ClassID      string `json:"class_id" validate:"required"`
	PeriodNumber int    `json:"period_number" validate:"omitempty,min=1"`
	BaseURL      string `json:"base_url" validate:"omitempty,url"`
}

func (s *Server) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	var req generateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed")
		return
	}
	if req.PeriodNumber == 0 {
		req.PeriodNumber = 1
	}
	info, err := s.qr.GenerateToken(r.Context(), req.ClassID, req.PeriodNumber, req.BaseURL)
	if err != nil {
		if errors.Is(err, qr.ErrClassNotFound) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeEnvelope(w, http.StatusOK, "token generated", info)
}

func (s *Server) handleCurrentCode(w http.ResponseWriter, r *http.Request) {
	info, err := s.qr.CurrentCodeForClass(r.Context(), chi.URLParam(r, "classId"))
	if err != nil {
		if errors.Is(err, qr.ErrClassNotFound) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeEnvelope(w, http.StatusOK, "current code", info)
}

func (s *Server) handleClassPeriods(w http.ResponseWriter, r *http.Request) {
	class, periods, current, err := s.qr.ClassPeriods(r.Context(), chi.URLParam(r, "classId"))
	if err != nil {
		if errors.Is(err, qr.ErrClassNotFound) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeEnvelope(w, http.StatusOK, "class periods", map[string]interface{}{
		"class_id":   class.ClassID,
		"class_name": class.ClassName,
		"start_time": class.StartTime,
		"end_time":   class.EndTime,
		"periods":    periods,
		// null when the class is not in session right now
		"current_period": current,
	})
}

// handleValidateToken answers with a bare payload: the scanning page has no
// session and expects the status object directly.
func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	status, err := s.qr.ValidateToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req qr.VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed")
		return
	}
	result, err := s.qr.VerifyCode(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, qr.ErrTokenInvalid):
			writeError(w, http.StatusGone, "token_invalid")
		case errors.Is(err, qr.ErrCodeInvalid):
			writeError(w, http.StatusUnprocessableEntity, "code_invalid")
		case errors.Is(err, qr.ErrStudentNotFound):
			writeError(w, http.StatusNotFound, "student_not_found")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}
	// A repeat check-in is a success with already_registered set, not an
	// error.
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAttendanceByPeriod(w http.ResponseWriter, r *http.Request) {
	rolls, err := s.qr.AttendanceByPeriod(r.Context(), chi.URLParam(r, "classId"))
	if err != nil {
		if errors.Is(err, qr.ErrClassNotFound) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeEnvelope(w, http.StatusOK, "attendance by period", map[string]interface{}{
		"class_id": chi.URLParam(r, "classId"),
		"periods":  rolls,
	})
}
