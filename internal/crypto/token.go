package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

func NewSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// NewQRToken derives the 32-char hex token tied to one class period.
func NewQRToken(classID string, periodNumber int, issuedAt time.Time) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	data := fmt.Sprintf("%s:%d:%s:%s", classID, periodNumber, issuedAt.Format(time.RFC3339Nano), hex.EncodeToString(buf))
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:32], nil
}
