package http

import (
	"errors"
	"net/http"
	"time"

	"smartclassroom/server/internal/identity"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"full_name" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	AccessToken string           `json:"access_token"`
	Credential  string           `json:"credential"`
	ExpiresAt   time.Time        `json:"expires_at"`
	User        identity.Profile `json:"user"`
}

func toSessionResponse(s *identity.Session) sessionResponse {
	return sessionResponse{
		AccessToken: s.AccessToken,
		Credential:  s.Credential,
		ExpiresAt:   s.ExpiresAt,
		User:        s.User,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed")
		return
	}
	session, err := s.identity.SignUp(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrEmailTaken):
			writeError(w, http.StatusConflict, "email_taken")
		case errors.Is(err, identity.ErrInvalidCredentials):
			writeError(w, http.StatusBadRequest, "invalid_credentials")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed")
		return
	}
	session, err := s.identity.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Credential == "" {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := s.identity.RevokeCredential(r.Context(), req.Credential); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	profile, err := s.identity.UserByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrNoSession) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	var req struct {
		FullName *string `json:"full_name"`
		Password *string `json:"password" validate:"omitempty,min=8"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed")
		return
	}
	profile, err := s.identity.UpdateProfile(r.Context(), claims.UserID, identity.Update{
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed")
		return
	}
	if err := s.identity.SendPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	// Same answer whether or not the address exists.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset_sent"})
}

func (s *Server) handleResetPasswordConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token" validate:"required"`
		Password string `json:"password" validate:"required,min=8"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed")
		return
	}
	if err := s.identity.ConsumePasswordReset(r.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, identity.ErrResetTokenInvalid) {
			writeError(w, http.StatusBadRequest, "reset_token_invalid")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_updated"})
}
