package auth

import (
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		UserID:   "user-1",
		Email:    "teacher@example.local",
		FullName: "Test Teacher",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", "issuer", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if claims.UserID != "user-1" || claims.Email != "teacher@example.local" {
		t.Fatalf("unexpected claims")
	}
}

func TestParseTokenRejectsWrongIssuer(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", "other-issuer", token); err == nil {
		t.Fatalf("expected issuer mismatch to error")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", -time.Minute, Claims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", "issuer", token); err == nil {
		t.Fatalf("expected expired token to error")
	}
}
