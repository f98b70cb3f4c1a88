package certificate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const urlSafeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func TestNewVerificationID_Shape(t *testing.T) {
	id, err := NewVerificationID()
	require.NoError(t, err)

	assert.Len(t, id, VerificationIDLength)
	for _, r := range id {
		assert.True(t, strings.ContainsRune(urlSafeAlphabet, r), "unexpected rune %q", r)
	}
	assert.True(t, IsWellFormedVerificationID(id))
}

func TestNewVerificationID_Unique(t *testing.T) {
	const draws = 10000
	seen := make(map[string]struct{}, draws)

	for i := 0; i < draws; i++ {
		id, err := NewVerificationID()
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup, "duplicate verification id after %d draws", i)
		seen[id] = struct{}{}
	}
}

func TestIsWellFormedVerificationID(t *testing.T) {
	assert.False(t, IsWellFormedVerificationID(""))
	assert.False(t, IsWellFormedVerificationID("short"))
	assert.False(t, IsWellFormedVerificationID(strings.Repeat("A", 23)))
	assert.False(t, IsWellFormedVerificationID(strings.Repeat("+", 22)))
	assert.False(t, IsWellFormedVerificationID(strings.Repeat("A", 21)+"="))
	assert.True(t, IsWellFormedVerificationID(strings.Repeat("A", 22)))
}

func TestCertificate_RecordAndOwner(t *testing.T) {
	issued := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	c := &Certificate{VerificationID: "v", LearnerID: "L1", CourseID: "C1", Score: 85, IssuedAt: issued}

	assert.Equal(t, Record{VerificationID: "v", LearnerID: "L1", CourseID: "C1", Score: 85, IssuedAt: issued}, c.Record())
	assert.True(t, c.OwnedBy("L1"))
	assert.False(t, c.OwnedBy("L2"))
	assert.False(t, c.OwnedBy(""))

	assert.Equal(t, "certiva-certificate-v.png", FileName("v", ".png"))
}
