package schedule

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "schedule.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutAndQuery(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		{CourseID: "MAT101", DayOfWeek: 1, StartTime: "08:00", EndTime: "10:00"},
		{CourseID: "MAT101", DayOfWeek: 3, StartTime: "08:00", EndTime: "10:00"},
		{CourseID: "FIS202", DayOfWeek: 1, StartTime: "10:00", EndTime: "12:00"},
	}
	for _, entry := range entries {
		if err := store.Put(ctx, entry); err != nil {
			t.Fatalf("Put(%+v): %v", entry, err)
		}
	}

	got, err := store.ForCourse(ctx, "MAT101")
	if err != nil {
		t.Fatalf("ForCourse: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ForCourse returned %d entries, want 2", len(got))
	}
	if got[0].DayOfWeek != 1 || got[1].DayOfWeek != 3 {
		t.Fatalf("ordering off: %+v", got)
	}

	monday, err := store.ForDay(ctx, 1)
	if err != nil {
		t.Fatalf("ForDay: %v", err)
	}
	if len(monday) != 2 {
		t.Fatalf("ForDay returned %d entries, want 2", len(monday))
	}
	if monday[0].CourseID != "MAT101" || monday[1].CourseID != "FIS202" {
		t.Fatalf("monday ordering: %+v", monday)
	}
}

func TestPutUpsertsEndTime(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entry := Entry{CourseID: "MAT101", DayOfWeek: 1, StartTime: "08:00", EndTime: "10:00"}
	if err := store.Put(ctx, entry); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entry.EndTime = "09:30"
	if err := store.Put(ctx, entry); err != nil {
		t.Fatalf("Put upsert: %v", err)
	}

	got, err := store.ForCourse(ctx, "MAT101")
	if err != nil {
		t.Fatalf("ForCourse: %v", err)
	}
	if len(got) != 1 || got[0].EndTime != "09:30" {
		t.Fatalf("upsert result: %+v", got)
	}
}

func TestPutValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	bad := []Entry{
		{DayOfWeek: 1, StartTime: "08:00", EndTime: "10:00"},
		{CourseID: "X", DayOfWeek: 7, StartTime: "08:00", EndTime: "10:00"},
		{CourseID: "X", DayOfWeek: 1, StartTime: "8am", EndTime: "10:00"},
		{CourseID: "X", DayOfWeek: 1, StartTime: "10:00", EndTime: "08:00"},
	}
	for _, entry := range bad {
		if err := store.Put(ctx, entry); err == nil {
			t.Fatalf("Put(%+v) accepted invalid entry", entry)
		}
	}
}

func TestInSessionAt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// 2026-03-09 is a Monday.
	if err := store.Put(ctx, Entry{CourseID: "MAT101", DayOfWeek: 1, StartTime: "08:00", EndTime: "10:00"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	during := time.Date(2026, 3, 9, 9, 30, 0, 0, time.Local)
	active, err := store.InSessionAt(ctx, during)
	if err != nil {
		t.Fatalf("InSessionAt: %v", err)
	}
	if len(active) != 1 || active[0].CourseID != "MAT101" {
		t.Fatalf("active = %+v", active)
	}

	after := time.Date(2026, 3, 9, 10, 0, 0, 0, time.Local)
	active, err = store.InSessionAt(ctx, after)
	if err != nil {
		t.Fatalf("InSessionAt: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("class still active at its end instant: %+v", active)
	}

	tuesday := time.Date(2026, 3, 10, 9, 30, 0, 0, time.Local)
	active, err = store.InSessionAt(ctx, tuesday)
	if err != nil {
		t.Fatalf("InSessionAt: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("class active on the wrong day: %+v", active)
	}
}
