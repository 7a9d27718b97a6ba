package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"smartclassroom/server/internal/db"
	"smartclassroom/server/internal/model"
)

type createClassRequest struct {
	ClassID   string    `json:"class_id" validate:"required"`
	ClassName string    `json:"class_name" validate:"required"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
}

func (s *Server) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	var req createClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed")
		return
	}
	class := model.ClassSession{
		ID:        uuid.NewString(),
		ClassID:   req.ClassID,
		ClassName: req.ClassName,
		TeacherID: claims.UserID,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.classes.CreateClassSession(r.Context(), class); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			writeError(w, http.StatusConflict, "class_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	classes, err := s.classes.ListClassSessionsByTeacher(r.Context(), claims.UserID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

func (s *Server) handleGetClass(w http.ResponseWriter, r *http.Request) {
	class, err := s.classes.GetClassSession(r.Context(), chi.URLParam(r, "classId"))
	if err != nil {
		if db.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, class)
}

type createStudentRequest struct {
	Cedula string `json:"cedula" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Email  string `json:"email" validate:"omitempty,email"`
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed")
		return
	}
	student := model.Student{
		Cedula:    req.Cedula,
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.classes.CreateStudent(r.Context(), student); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			writeError(w, http.StatusConflict, "student_exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusCreated, student)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	student, err := s.classes.GetStudentByCedula(r.Context(), chi.URLParam(r, "cedula"))
	if err != nil {
		if db.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, student)
}
