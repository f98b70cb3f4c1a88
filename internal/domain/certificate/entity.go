// Package certificate holds the immutable proof of course completion and
// its public verification identifier.
package certificate

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	// VerificationIDBytes is the entropy of a verification identifier.
	VerificationIDBytes = 16

	// VerificationIDLength is the encoded length (base64url, no padding).
	VerificationIDLength = 22
)

// Certificate is created once per (learner, course) and never mutated.
type Certificate struct {
	// ID is the internal row identifier.
	ID string

	// VerificationID is the public, globally unique token.
	VerificationID string

	LearnerID string
	CourseID  string
	Score     int
	IssuedAt  time.Time
}

// Record returns the flat rendering contract for c.
func (c *Certificate) Record() Record {
	return Record{
		VerificationID: c.VerificationID,
		LearnerID:      c.LearnerID,
		CourseID:       c.CourseID,
		Score:          c.Score,
		IssuedAt:       c.IssuedAt,
	}
}

// OwnedBy reports whether learnerID is the certificate holder.
func (c *Certificate) OwnedBy(learnerID string) bool {
	return learnerID != "" && c.LearnerID == learnerID
}

// Record is the certificate shape handed to renderers and to public verification.
type Record struct {
	VerificationID string    `json:"verification_id"`
	LearnerID      string    `json:"learner_id"`
	CourseID       string    `json:"course_id"`
	Score          int       `json:"score"`
	IssuedAt       time.Time `json:"issued_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// VERIFICATION ID
// ══════════════════════════════════════════════════════════════════════════════

// IDGenerator produces verification identifiers.
type IDGenerator func() (string, error)

// NewVerificationID returns 128 bits from crypto/rand encoded as URL-safe
// base64 without padding.
func NewVerificationID() (string, error) {
	b := make([]byte, VerificationIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("certificate: read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IsWellFormedVerificationID reports whether s could have been produced by
// NewVerificationID. Malformed ids can be rejected without a store lookup.
func IsWellFormedVerificationID(s string) bool {
	if len(s) != VerificationIDLength {
		return false
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil && len(b) == VerificationIDBytes
}

// FileName is the download name of a rendered certificate.
func FileName(verificationID, ext string) string {
	return "certiva-certificate-" + verificationID + ext
}
