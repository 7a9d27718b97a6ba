package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"smartclassroom/server/internal/model"
)

var (
	ErrDuplicate = errors.New("duplicate row")
	ErrNotFound  = errors.New("not found")
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Class sessions

func (s *Store) CreateClassSession(ctx context.Context, class model.ClassSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO class_sessions (id, class_id, class_name, teacher_id, start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, class.ID, class.ClassID, class.ClassName, class.TeacherID, class.StartTime, class.EndTime, class.CreatedAt)
	return mapDuplicate(err)
}

func (s *Store) GetClassSession(ctx context.Context, classID string) (model.ClassSession, error) {
	var class model.ClassSession
	row := s.pool.QueryRow(ctx, `
		SELECT id, class_id, class_name, teacher_id, start_time, end_time, created_at
		FROM class_sessions
		WHERE class_id = $1
	`, classID)
	err := row.Scan(
		&class.ID,
		&class.ClassID,
		&class.ClassName,
		&class.TeacherID,
		&class.StartTime,
		&class.EndTime,
		&class.CreatedAt,
	)
	return class, mapNotFound(err)
}

func (s *Store) ListClassSessionsByTeacher(ctx context.Context, teacherID string, limit int) ([]model.ClassSession, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, class_id, class_name, teacher_id, start_time, end_time, created_at
		FROM class_sessions
		WHERE teacher_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, teacherID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	classes := make([]model.ClassSession, 0)
	for rows.Next() {
		var class model.ClassSession
		if err := rows.Scan(&class.ID, &class.ClassID, &class.ClassName, &class.TeacherID, &class.StartTime, &class.EndTime, &class.CreatedAt); err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}
	return classes, rows.Err()
}

// QR tokens

func (s *Store) UpsertQRToken(ctx context.Context, token model.QRToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO qr_tokens (token, class_id, period_number, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token) DO UPDATE
		SET class_id = EXCLUDED.class_id,
		    period_number = EXCLUDED.period_number,
		    expires_at = EXCLUDED.expires_at,
		    is_active = EXCLUDED.is_active
	`, token.Token, token.ClassID, token.PeriodNumber, token.ExpiresAt, token.Active, token.CreatedAt)
	return err
}

func (s *Store) GetActiveQRToken(ctx context.Context, token string) (model.QRToken, error) {
	var result model.QRToken
	row := s.pool.QueryRow(ctx, `
		SELECT token, class_id, period_number, expires_at, is_active, created_at
		FROM qr_tokens
		WHERE token = $1 AND is_active = true
	`, token)
	err := row.Scan(&result.Token, &result.ClassID, &result.PeriodNumber, &result.ExpiresAt, &result.Active, &result.CreatedAt)
	return result, mapNotFound(err)
}

func (s *Store) DeactivateExpiredQRTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE qr_tokens
		SET is_active = false
		WHERE is_active = true AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Students

func (s *Store) GetStudentByCedula(ctx context.Context, cedula string) (model.Student, error) {
	var student model.Student
	row := s.pool.QueryRow(ctx, `
		SELECT cedula, name, email, created_at
		FROM students
		WHERE cedula = $1
	`, cedula)
	err := row.Scan(&student.Cedula, &student.Name, &student.Email, &student.CreatedAt)
	return student, mapNotFound(err)
}

func (s *Store) CreateStudent(ctx context.Context, student model.Student) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO students (cedula, name, email, created_at)
		VALUES ($1, $2, $3, $4)
	`, student.Cedula, student.Name, student.Email, student.CreatedAt)
	return mapDuplicate(err)
}

// Attendance

func (s *Store) GetAttendance(ctx context.Context, cedula, classID string) (model.AttendanceRecord, error) {
	var record model.AttendanceRecord
	row := s.pool.QueryRow(ctx, `
		SELECT id, cedula, class_id, status, confidence, recorded_at
		FROM attendance
		WHERE cedula = $1 AND class_id = $2
	`, cedula, classID)
	err := row.Scan(&record.ID, &record.Cedula, &record.ClassID, &record.Status, &record.Confidence, &record.Timestamp)
	return record, mapNotFound(err)
}

func (s *Store) CreateAttendance(ctx context.Context, record model.AttendanceRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance (id, cedula, class_id, status, confidence, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.ID, record.Cedula, record.ClassID, record.Status, record.Confidence, record.Timestamp)
	return mapDuplicate(err)
}

func (s *Store) ListAttendanceByClass(ctx context.Context, classID string) ([]model.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, cedula, class_id, status, confidence, recorded_at
		FROM attendance
		WHERE class_id = $1
		ORDER BY recorded_at ASC
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]model.AttendanceRecord, 0)
	for rows.Next() {
		var record model.AttendanceRecord
		if err := rows.Scan(&record.ID, &record.Cedula, &record.ClassID, &record.Status, &record.Confidence, &record.Timestamp); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func mapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
