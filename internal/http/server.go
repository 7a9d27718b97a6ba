// Package http exposes the attendance workflow and identity endpoints over
// REST.
package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smartclassroom/server/internal/identity"
	"smartclassroom/server/internal/model"
	"smartclassroom/server/internal/qr"
)

// IdentityService is the slice of the identity provider the handlers use.
// *identity.Service satisfies it.
type IdentityService interface {
	SignUp(ctx context.Context, email, password, fullName string) (*identity.Session, error)
	SignIn(ctx context.Context, email, password string) (*identity.Session, error)
	RevokeCredential(ctx context.Context, credential string) error
	UserByID(ctx context.Context, userID string) (*identity.Profile, error)
	UpdateProfile(ctx context.Context, userID string, update identity.Update) (*identity.Profile, error)
	SendPasswordReset(ctx context.Context, email string) error
	ConsumePasswordReset(ctx context.Context, token, newPassword string) error
}

// ClassStore covers class and student persistence. *db.Store satisfies it.
type ClassStore interface {
	CreateClassSession(ctx context.Context, class model.ClassSession) error
	GetClassSession(ctx context.Context, classID string) (model.ClassSession, error)
	ListClassSessionsByTeacher(ctx context.Context, teacherID string, limit int) ([]model.ClassSession, error)
	CreateStudent(ctx context.Context, student model.Student) error
	GetStudentByCedula(ctx context.Context, cedula string) (model.Student, error)
}

type Server struct {
	identity   IdentityService
	classes    ClassStore
	qr         *qr.Service
	jwtSecret  string
	jwtIssuer  string
	adminEmail string
	validate   *validator.Validate
	router     chi.Router
}

func NewServer(identitySvc IdentityService, classes ClassStore, qrSvc *qr.Service, jwtSecret, jwtIssuer, adminEmail string) *Server {
	s := &Server{
		identity:   identitySvc,
		classes:    classes,
		qr:         qrSvc,
		jwtSecret:  jwtSecret,
		jwtIssuer:  jwtIssuer,
		adminEmail: adminEmail,
		validate:   validator.New(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/reset-password", s.handleResetPassword)
		r.Post("/reset-password/confirm", s.handleResetPasswordConfirm)
		r.With(s.authMiddleware).Post("/logout", s.handleLogout)
		r.With(s.authMiddleware).Get("/me", s.handleMe)
		r.With(s.authMiddleware).Patch("/me", s.handleUpdateMe)
	})

	r.Route("/classes", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/", s.handleCreateClass)
		r.Get("/", s.handleListClasses)
		r.Get("/{classId}", s.handleGetClass)
	})

	r.Route("/students", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireAdmin).Post("/", s.handleCreateStudent)
		r.Get("/{cedula}", s.handleGetStudent)
	})

	r.Route("/qr", func(r chi.Router) {
		// The verification endpoints are reached from a scanned phone with
		// no account; they stay public.
		r.Get("/validate/{token}", s.handleValidateToken)
		r.Post("/verify-code", s.handleVerifyCode)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/generate", s.handleGenerateToken)
			r.Get("/code/{classId}", s.handleCurrentCode)
			r.Get("/class/{classId}/periods", s.handleClassPeriods)
			r.Get("/attendance/{classId}/by-period", s.handleAttendanceByPeriod)
		})
	})

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
