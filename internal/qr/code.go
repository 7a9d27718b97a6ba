// Package qr implements the rotating-code attendance workflow: QR token
// issuance, time-slotted verification codes, class periods and the public
// verification pipeline.
package qr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// CodeInfo is a verification code together with its validity window.
type CodeInfo struct {
	Code             string    `json:"code"`
	ValidUntil       time.Time `json:"code_valid_until"`
	RemainingSeconds int       `json:"remaining_seconds"`
	RotationMinutes  int       `json:"rotation_minutes"`
}

// slotAt maps an instant to its rotation slot. All clocks that agree on the
// minute agree on the slot, so the code can be derived independently on both
// ends without a handshake.
func slotAt(t time.Time, rotation time.Duration) int64 {
	minutes := int64(rotation / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return (t.Unix() / 60) / minutes
}

func slotStart(slot int64, rotation time.Duration) time.Time {
	minutes := int64(rotation / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return time.Unix(slot*minutes*60, 0).UTC()
}

// deriveCode computes the 6-digit code for a class and slot. The first 8 hex
// characters of the digest are interpreted as an integer and reduced mod 10^6;
// leading zeros are kept.
func deriveCode(secret, classID string, slot int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", secret, classID, slot)))
	digest := hex.EncodeToString(sum[:])
	n, _ := strconv.ParseInt(digest[:8], 16, 64)
	return fmt.Sprintf("%06d", n%1000000)
}

// CurrentCode returns the code in effect for classID at now. The code is
// valid until the start of the next slot, exclusive.
func CurrentCode(secret, classID string, rotation time.Duration, now time.Time) CodeInfo {
	slot := slotAt(now, rotation)
	validUntil := slotStart(slot+1, rotation)
	return CodeInfo{
		Code:             deriveCode(secret, classID, slot),
		ValidUntil:       validUntil,
		RemainingSeconds: int(validUntil.Sub(now) / time.Second),
		RotationMinutes:  int(rotation / time.Minute),
	}
}

// ValidateCode accepts the current slot's code and, as grace for scans
// straddling a rotation boundary, the previous slot's.
func ValidateCode(secret, classID, code string, rotation time.Duration, now time.Time) bool {
	slot := slotAt(now, rotation)
	return code == deriveCode(secret, classID, slot) || code == deriveCode(secret, classID, slot-1)
}
