package qr

import (
	"testing"
	"time"
)

const (
	testSecret   = "smart_classroom_2026"
	testRotation = 2 * time.Minute
)

func TestCurrentCodeDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 3, 17, 0, time.UTC)

	a := CurrentCode(testSecret, "MAT101", testRotation, now)
	b := CurrentCode(testSecret, "MAT101", testRotation, now.Add(30*time.Second))
	if a.Code != b.Code {
		t.Fatalf("same slot produced different codes: %q vs %q", a.Code, b.Code)
	}
	if len(a.Code) != 6 {
		t.Fatalf("code %q is not 6 digits", a.Code)
	}
	for _, r := range a.Code {
		if r < '0' || r > '9' {
			t.Fatalf("code %q contains non-digit %q", a.Code, r)
		}
	}

	if other := CurrentCode(testSecret, "FIS202", testRotation, now); other.Code == a.Code {
		t.Fatalf("different classes produced the same code %q", a.Code)
	}
}

func TestCurrentCodeValidityWindow(t *testing.T) {
	// 08:03:17 sits in the 08:02-08:04 slot.
	now := time.Date(2026, 3, 10, 8, 3, 17, 0, time.UTC)
	info := CurrentCode(testSecret, "MAT101", testRotation, now)

	wantUntil := time.Date(2026, 3, 10, 8, 4, 0, 0, time.UTC)
	if !info.ValidUntil.Equal(wantUntil) {
		t.Fatalf("ValidUntil = %s, want %s", info.ValidUntil, wantUntil)
	}
	if info.RemainingSeconds != 43 {
		t.Fatalf("RemainingSeconds = %d, want 43", info.RemainingSeconds)
	}
	if info.RotationMinutes != 2 {
		t.Fatalf("RotationMinutes = %d, want 2", info.RotationMinutes)
	}
}

func TestValidateCodeRotationAndGrace(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 3, 0, 0, time.UTC)
	code := CurrentCode(testSecret, "MAT101", testRotation, now).Code

	if !ValidateCode(testSecret, "MAT101", code, testRotation, now) {
		t.Fatalf("current code rejected")
	}
	// One slot later the old code still passes as grace.
	if !ValidateCode(testSecret, "MAT101", code, testRotation, now.Add(testRotation)) {
		t.Fatalf("previous slot's code rejected within grace")
	}
	// Two slots later it is gone.
	if ValidateCode(testSecret, "MAT101", code, testRotation, now.Add(2*testRotation)) {
		t.Fatalf("stale code accepted after grace window")
	}
	if ValidateCode(testSecret, "MAT101", "000000", testRotation, now) &&
		code != "000000" {
		t.Fatalf("arbitrary code accepted")
	}
	if ValidateCode(testSecret, "FIS202", code, testRotation, now) {
		t.Fatalf("code for one class accepted for another")
	}
}
