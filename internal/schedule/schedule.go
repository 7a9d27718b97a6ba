// Package schedule keeps the weekly course timetable in a local sqlite file,
// so the capture station knows which course is in session without a round
// trip to the backend.
package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one weekly slot of a course. DayOfWeek follows time.Weekday
// (Sunday = 0); times are local wall clock in HH:MM.
type Entry struct {
	CourseID  string
	DayOfWeek int
	StartTime string
	EndTime   string
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS schedule (
			course_id   TEXT NOT NULL,
			day_of_week INTEGER NOT NULL,
			start_time  TEXT NOT NULL,
			end_time    TEXT NOT NULL,
			PRIMARY KEY (course_id, day_of_week, start_time)
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(ctx context.Context, entry Entry) error {
	if err := validateEntry(entry); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedule (course_id, day_of_week, start_time, end_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (course_id, day_of_week, start_time) DO UPDATE
		SET end_time = excluded.end_time
	`, entry.CourseID, entry.DayOfWeek, entry.StartTime, entry.EndTime)
	return err
}

func (s *Store) ForCourse(ctx context.Context, courseID string) ([]Entry, error) {
	return s.query(ctx, `
		SELECT course_id, day_of_week, start_time, end_time
		FROM schedule
		WHERE course_id = ?
		ORDER BY day_of_week, start_time
	`, courseID)
}

func (s *Store) ForDay(ctx context.Context, day int) ([]Entry, error) {
	return s.query(ctx, `
		SELECT course_id, day_of_week, start_time, end_time
		FROM schedule
		WHERE day_of_week = ?
		ORDER BY start_time
	`, day)
}

func (s *Store) DeleteCourse(ctx context.Context, courseID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedule WHERE course_id = ?`, courseID)
	return err
}

// InSessionAt returns the entries for which now falls inside [start, end) on
// the matching weekday.
func (s *Store) InSessionAt(ctx context.Context, now time.Time) ([]Entry, error) {
	entries, err := s.ForDay(ctx, int(now.Weekday()))
	if err != nil {
		return nil, err
	}
	wall := now.Format("15:04")
	active := make([]Entry, 0)
	for _, entry := range entries {
		if entry.StartTime <= wall && wall < entry.EndTime {
			active = append(active, entry)
		}
	}
	return active, nil
}

func (s *Store) query(ctx context.Context, q string, args ...interface{}) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.CourseID, &entry.DayOfWeek, &entry.StartTime, &entry.EndTime); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func validateEntry(entry Entry) error {
	if entry.CourseID == "" {
		return fmt.Errorf("schedule: empty course id")
	}
	if entry.DayOfWeek < 0 || entry.DayOfWeek > 6 {
		return fmt.Errorf("schedule: day %d out of range", entry.DayOfWeek)
	}
	for _, value := range []string{entry.StartTime, entry.EndTime} {
		if _, err := time.Parse("15:04", value); err != nil {
			return fmt.Errorf("schedule: bad time %q: %w", value, err)
		}
	}
	if entry.EndTime <= entry.StartTime {
		return fmt.Errorf("schedule: end %q not after start %q", entry.EndTime, entry.StartTime)
	}
	return nil
}
