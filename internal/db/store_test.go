package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"smartclassroom/server/internal/model"
)

// These tests run against a real database and skip otherwise.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := NewPool(context.Background(), url)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	return NewStore(pool)
}

func TestClassSessionRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	classID := "TST-" + uuid.NewString()[:8]
	start := time.Now().UTC().Truncate(time.Second)
	class := model.ClassSession{
		ID:        uuid.NewString(),
		ClassID:   classID,
		ClassName: "Test class",
		TeacherID: uuid.NewString(),
		StartTime: start,
		EndTime:   start.Add(2 * time.Hour),
		CreatedAt: start,
	}
	if err := store.CreateClassSession(ctx, class); err != nil {
		t.Fatalf("CreateClassSession: %v", err)
	}
	if err := store.CreateClassSession(ctx, class); err != ErrDuplicate {
		t.Fatalf("duplicate class: %v", err)
	}

	got, err := store.GetClassSession(ctx, classID)
	if err != nil {
		t.Fatalf("GetClassSession: %v", err)
	}
	if got.ClassName != class.ClassName || !got.StartTime.Equal(class.StartTime) {
		t.Fatalf("got %+v", got)
	}

	if _, err := store.GetClassSession(ctx, "missing-"+classID); !IsNotFound(err) {
		t.Fatalf("missing class: %v", err)
	}
}

func TestQRTokenLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	token := model.QRToken{
		Token:        uuid.NewString()[:32],
		ClassID:      "TST-" + uuid.NewString()[:8],
		PeriodNumber: 1,
		ExpiresAt:    now.Add(-time.Minute),
		Active:       true,
		CreatedAt:    now,
	}
	if err := store.UpsertQRToken(ctx, token); err != nil {
		t.Fatalf("UpsertQRToken: %v", err)
	}

	got, err := store.GetActiveQRToken(ctx, token.Token)
	if err != nil {
		t.Fatalf("GetActiveQRToken: %v", err)
	}
	if got.ClassID != token.ClassID {
		t.Fatalf("got %+v", got)
	}

	if _, err := store.DeactivateExpiredQRTokens(ctx, now); err != nil {
		t.Fatalf("DeactivateExpiredQRTokens: %v", err)
	}
	if _, err := store.GetActiveQRToken(ctx, token.Token); !IsNotFound(err) {
		t.Fatalf("expired token still active: %v", err)
	}
}
