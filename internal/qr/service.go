package qr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"smartclassroom/server/internal/crypto"
	"smartclassroom/server/internal/db"
	"smartclassroom/server/internal/model"
)

var (
	ErrClassNotFound   = errors.New("class not found")
	ErrTokenInvalid    = errors.New("token invalid or expired")
	ErrCodeInvalid     = errors.New("verification code invalid")
	ErrStudentNotFound = errors.New("student not found")
)

// Store is the persistence surface the service needs. *db.Store satisfies it.
type Store interface {
	GetClassSession(ctx context.Context, classID string) (model.ClassSession, error)
	UpsertQRToken(ctx context.Context, token model.QRToken) error
	GetActiveQRToken(ctx context.Context, token string) (model.QRToken, error)
	GetStudentByCedula(ctx context.Context, cedula string) (model.Student, error)
	GetAttendance(ctx context.Context, cedula, classID string) (model.AttendanceRecord, error)
	CreateAttendance(ctx context.Context, record model.AttendanceRecord) error
	ListAttendanceByClass(ctx context.Context, classID string) ([]model.AttendanceRecord, error)
}

type Config struct {
	Secret           string
	Rotation         time.Duration
	TokenMinValidity time.Duration
	PeriodDuration   time.Duration
	LateThreshold    time.Duration
	BaseURL          string
}

type Service struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func NewService(store Store, cfg Config) *Service {
	return &Service{store: store, cfg: cfg, now: time.Now}
}

// TokenInfo is the result of issuing a QR token for a class period.
type TokenInfo struct {
	Token        string    `json:"token"`
	ClassID      string    `json:"class_id"`
	ClassName    string    `json:"class_name"`
	PeriodNumber int       `json:"period_number"`
	ExpiresAt    time.Time `json:"expires_at"`
	QRURL        string    `json:"qr_url"`
	QRImage      string    `json:"qr_image"`
	Code         CodeInfo  `json:"current_code"`
}

// GenerateToken issues (or refreshes) the QR token for a class period. Tokens
// outlive the class itself so late scans still resolve, bounded below by the
// configured minimum validity. baseURL overrides the configured verification
// origin when the caller serves the scan page itself; empty keeps the default.
func (s *Service) GenerateToken(ctx context.Context, classID string, period int, baseURL string) (*TokenInfo, error) {
	class, err := s.store.GetClassSession(ctx, classID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrClassNotFound
		}
		return nil, err
	}
	if period < 1 {
		period = 1
	}

	now := s.now().UTC()
	token, err := crypto.NewQRToken(classID, period, now)
	if err != nil {
		return nil, err
	}
	expiresAt := class.EndTime
	if floor := now.Add(s.cfg.TokenMinValidity); floor.After(expiresAt) {
		expiresAt = floor
	}
	err = s.store.UpsertQRToken(ctx, model.QRToken{
		Token:        token,
		ClassID:      classID,
		PeriodNumber: period,
		ExpiresAt:    expiresAt,
		Active:       true,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	if baseURL == "" {
		baseURL = s.cfg.BaseURL
	}
	qrURL := fmt.Sprintf("%s/verificar-asistencia?token=%s", strings.TrimRight(baseURL, "/"), token)
	png, err := qrcode.Encode(qrURL, qrcode.Medium, 256)
	if err != nil {
		return nil, err
	}

	return &TokenInfo{
		Token:        token,
		ClassID:      classID,
		ClassName:    class.ClassName,
		PeriodNumber: period,
		ExpiresAt:    expiresAt,
		QRURL:        qrURL,
		QRImage:      "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		Code:         CurrentCode(s.cfg.Secret, classID, s.cfg.Rotation, now),
	}, nil
}

// TokenStatus reports whether a scanned token is currently usable.
type TokenStatus struct {
	Valid        bool      `json:"valid"`
	ClassID      string    `json:"class_id,omitempty"`
	ClassName    string    `json:"class_name,omitempty"`
	PeriodNumber int       `json:"period_number,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// ValidateToken resolves a scanned token. An unknown, inactive or expired
// token is not an error, just an invalid status.
func (s *Service) ValidateToken(ctx context.Context, token string) (*TokenStatus, error) {
	row, err := s.store.GetActiveQRToken(ctx, token)
	if err != nil {
		if db.IsNotFound(err) {
			return &TokenStatus{}, nil
		}
		return nil, err
	}
	if s.now().UTC().After(row.ExpiresAt) {
		return &TokenStatus{}, nil
	}
	status := &TokenStatus{
		Valid:        true,
		ClassID:      row.ClassID,
		PeriodNumber: row.PeriodNumber,
		ExpiresAt:    row.ExpiresAt,
	}
	if class, err := s.store.GetClassSession(ctx, row.ClassID); err == nil {
		status.ClassName = class.ClassName
	}
	return status, nil
}

// CurrentCodeForClass returns the code in effect for a class right now.
func (s *Service) CurrentCodeForClass(ctx context.Context, classID string) (*CodeInfo, error) {
	if _, err := s.store.GetClassSession(ctx, classID); err != nil {
		if db.IsNotFound(err) {
			return nil, ErrClassNotFound
		}
		return nil, err
	}
	info := CurrentCode(s.cfg.Secret, classID, s.cfg.Rotation, s.now().UTC())
	return &info, nil
}

// ClassPeriods lists a class's periods annotated against the current time,
// along with the currently-active one. current is nil when the class is out
// of session.
func (s *Service) ClassPeriods(ctx context.Context, classID string) (class *model.ClassSession, periods []Period, current *Period, err error) {
	row, err := s.store.GetClassSession(ctx, classID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil, nil, ErrClassNotFound
		}
		return nil, nil, nil, err
	}
	now := s.now().UTC()
	periods = Annotate(CalculatePeriods(row.StartTime, row.EndTime, s.cfg.PeriodDuration), now, s.cfg.LateThreshold)
	if p, ok := CurrentPeriod(periods, now); ok {
		current = &p
	}
	return &row, periods, current, nil
}

type VerifyRequest struct {
	Token  string `json:"token" validate:"required"`
	Code   string `json:"code" validate:"required,len=6,numeric"`
	Cedula string `json:"cedula" validate:"required"`
}

type VerifyResult struct {
	Status            string    `json:"status"`
	AlreadyRegistered bool      `json:"already_registered"`
	StudentName       string    `json:"student_name"`
	Cedula            string    `json:"cedula"`
	ClassID           string    `json:"class_id"`
	PeriodNumber      int       `json:"period_number"`
	AttendanceStatus  string    `json:"attendance_status"`
	RecordedAt        time.Time `json:"recorded_at"`
}

// VerifyCode runs the public check-in pipeline: token, then code, then
// student, then idempotent registration. A repeat check-in for the same
// period succeeds with AlreadyRegistered set rather than failing.
func (s *Service) VerifyCode(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	tokenRow, err := s.store.GetActiveQRToken(ctx, req.Token)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	now := s.now().UTC()
	if now.After(tokenRow.ExpiresAt) {
		return nil, ErrTokenInvalid
	}

	if !ValidateCode(s.cfg.Secret, tokenRow.ClassID, req.Code, s.cfg.Rotation, now) {
		return nil, ErrCodeInvalid
	}

	student, err := s.store.GetStudentByCedula(ctx, req.Cedula)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}

	class, err := s.store.GetClassSession(ctx, tokenRow.ClassID)
	if err != nil {
		return nil, err
	}
	periodStart := class.StartTime
	for _, p := range CalculatePeriods(class.StartTime, class.EndTime, s.cfg.PeriodDuration) {
		if p.Number == tokenRow.PeriodNumber {
			periodStart = p.Start
			break
		}
	}
	status := AttendanceStatus(periodStart, now, s.cfg.LateThreshold)

	// Attendance is stored under a per-period class id so each period is its
	// own idempotence scope.
	periodClassID := PeriodClassID(tokenRow.ClassID, tokenRow.PeriodNumber)
	result := &VerifyResult{
		Status:           "verified",
		StudentName:      student.Name,
		Cedula:           student.Cedula,
		ClassID:          tokenRow.ClassID,
		PeriodNumber:     tokenRow.PeriodNumber,
		AttendanceStatus: status,
		RecordedAt:       now,
	}

	if existing, err := s.store.GetAttendance(ctx, student.Cedula, periodClassID); err == nil {
		result.AlreadyRegistered = true
		result.AttendanceStatus = existing.Status
		result.RecordedAt = existing.Timestamp
		return result, nil
	} else if !db.IsNotFound(err) {
		return nil, err
	}

	err = s.store.CreateAttendance(ctx, model.AttendanceRecord{
		ID:         uuid.NewString(),
		Cedula:     student.Cedula,
		ClassID:    periodClassID,
		Status:     status,
		Confidence: 1,
		Timestamp:  now,
	})
	if errors.Is(err, db.ErrDuplicate) {
		// Raced with another check-in for the same student and period.
		result.AlreadyRegistered = true
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// PeriodClassID is the storage id under which a period's attendance lives.
func PeriodClassID(classID string, period int) string {
	return fmt.Sprintf("%s_P%d", classID, period)
}

// PeriodAttendance is one period's attendance roll with per-status counts.
type PeriodAttendance struct {
	Period       Period                   `json:"period"`
	Records      []model.AttendanceRecord `json:"records"`
	PresentCount int                      `json:"present_count"`
	LateCount    int                      `json:"late_count"`
	Count        int                      `json:"total_registered"`
}

// AttendanceByPeriod aggregates a class's attendance, one roll per period.
func (s *Service) AttendanceByPeriod(ctx context.Context, classID string) ([]PeriodAttendance, error) {
	class, err := s.store.GetClassSession(ctx, classID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrClassNotFound
		}
		return nil, err
	}
	periods := CalculatePeriods(class.StartTime, class.EndTime, s.cfg.PeriodDuration)
	out := make([]PeriodAttendance, 0, len(periods))
	for _, p := range periods {
		records, err := s.store.ListAttendanceByClass(ctx, PeriodClassID(classID, p.Number))
		if err != nil {
			return nil, err
		}
		roll := PeriodAttendance{Period: p, Records: records, Count: len(records)}
		for _, record := range records {
			switch record.Status {
			case StatusPresent:
				roll.PresentCount++
			case StatusLate:
				roll.LateCount++
			}
		}
		out = append(out, roll)
	}
	return out, nil
}
