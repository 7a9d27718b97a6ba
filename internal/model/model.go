package model

import "time"

type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type AuthSession struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent *string
	IPAddress *string
}

type ClassSession struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	ClassName string    `json:"class_name"`
	TeacherID string    `json:"teacher_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	CreatedAt time.Time `json:"created_at"`
}

type QRToken struct {
	Token        string    `json:"token"`
	ClassID      string    `json:"class_id"`
	PeriodNumber int       `json:"period_number"`
	ExpiresAt    time.Time `json:"expires_at"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type AttendanceRecord struct {
	ID         string    `json:"id"`
	Cedula     string    `json:"cedula"`
	ClassID    string    `json:"class_id"`
	Status     string    `json:"status"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"recorded_at"`
}

type Student struct {
	Cedula    string    `json:"cedula"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
