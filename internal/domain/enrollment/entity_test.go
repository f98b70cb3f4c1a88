package enrollment

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certiva/certiva-engine/internal/domain/shared"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newEnrollment(t *testing.T) *Enrollment {
	t.Helper()
	e, err := New("L1", "C1", t0)
	require.NoError(t, err)
	return e
}

func TestNew(t *testing.T) {
	e := newEnrollment(t)
	assert.Equal(t, 0, e.Progress)
	assert.Nil(t, e.CompletedAt)
	assert.Equal(t, StageEnrolled, e.Stage())
	assert.Equal(t, int64(1), e.Version)

	_, err := New("", "C1", t0)
	assert.ErrorIs(t, err, shared.ErrInvalidLearnerID)

	_, err = New("L1", "   ", t0)
	assert.ErrorIs(t, err, shared.ErrInvalidCourseID)
}

func TestApply_ThresholdBoundary(t *testing.T) {
	tests := []struct {
		name          string
		startProgress int
		score         int
		wantProgress  int
		wantCompleted bool
	}{
		{"exactly threshold completes", 0, 70, 100, true},
		{"one below threshold gives floor", 0, 69, 50, false},
		{"fail keeps higher progress", 80, 10, 80, false},
		{"zero score gives floor", 0, 0, 50, false},
		{"perfect score completes", 50, 100, 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnrollment(t)
			e.Progress = tt.startProgress

			next, out, err := e.Apply(tt.score, 70, t0.Add(time.Hour))
			require.NoError(t, err)

			assert.Equal(t, tt.wantProgress, next.Progress)
			assert.Equal(t, tt.wantCompleted, next.CompletedAt != nil)
			assert.Equal(t, tt.wantCompleted, out.JustCompleted)
			assert.Equal(t, tt.startProgress, out.OldProgress)
			assert.Equal(t, e.Version, next.Version, "Apply must not bump the version")
			assert.Equal(t, tt.startProgress, e.Progress, "receiver must be untouched")
		})
	}
}

func TestApply_InvalidScore(t *testing.T) {
	e := newEnrollment(t)
	for _, score := range []int{-1, 101, 1000} {
		_, _, err := e.Apply(score, 70, t0)
		assert.ErrorIs(t, err, shared.ErrInvalidScore, "score %d", score)
	}
}

func TestApply_CompletedAtSetOnce(t *testing.T) {
	e := newEnrollment(t)

	first, _, err := e.Apply(90, 70, t0.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)

	second, out, err := first.Apply(95, 70, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, out.JustCompleted)
	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))

	third, _, err := second.Apply(5, 70, t0.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 100, third.Progress)
	require.NotNil(t, third.CompletedAt)
	assert.True(t, first.CompletedAt.Equal(*third.CompletedAt))
	assert.Equal(t, 95, third.CertificateScore(), "failing score must not replace the passing score")
}

func TestApply_Idempotent(t *testing.T) {
	e := newEnrollment(t)

	once, _, err := e.Apply(40, 70, t0)
	require.NoError(t, err)
	twice, _, err := once.Apply(40, 70, t0)
	require.NoError(t, err)

	assert.Equal(t, once.Progress, twice.Progress)
	assert.Equal(t, once.CompletedAt, twice.CompletedAt)
}

func TestApply_MonotonicOverRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 200; run++ {
		threshold := rng.Intn(101)
		e := newEnrollment(t)
		completed := false

		for step := 0; step < 20; step++ {
			next, _, err := e.Apply(rng.Intn(101), threshold, t0.Add(time.Duration(step)*time.Minute))
			require.NoError(t, err)

			require.GreaterOrEqual(t, next.Progress, e.Progress)
			if completed {
				require.NotNil(t, next.CompletedAt)
				require.True(t, e.CompletedAt.Equal(*next.CompletedAt))
			}
			completed = next.CompletedAt != nil
			e = next
		}
	}
}

func TestStage(t *testing.T) {
	e := newEnrollment(t)
	assert.Equal(t, StageEnrolled, e.Stage())

	e.Progress = 50
	assert.Equal(t, StageInProgress, e.Stage())

	e.Progress = 100
	assert.Equal(t, StageCompleted, e.Stage())
	assert.True(t, e.IsCompleted())
}

func TestClone_IsDeep(t *testing.T) {
	e := newEnrollment(t)
	next, _, err := e.Apply(80, 70, t0)
	require.NoError(t, err)

	cp := next.Clone()
	*cp.PassingScore = 1
	*cp.CompletedAt = t0.Add(48 * time.Hour)

	assert.Equal(t, 80, *next.PassingScore)
	assert.True(t, next.CompletedAt.Equal(t0))
}
