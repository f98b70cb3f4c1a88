package command

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/certiva/certiva-engine/internal/domain/course"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/internal/infrastructure/persistence/memory"
	"github.com/certiva/certiva-engine/pkg/logger"
)

func enrolled(t *testing.T, f *fixture, learnerID, courseID string) {
	t.Helper()
	_, err := f.enroll.Handle(context.Background(), EnrollCommand{LearnerID: learnerID, CourseID: courseID})
	require.NoError(t, err)
}

func TestSubmit_NotEnrolled(t *testing.T) {
	f := newFixture(t, 70, nil)

	_, err := f.submit.Handle(context.Background(), SubmitAssessmentCommand{LearnerID: "L1", CourseID: "C1", Score: 90})
	assert.ErrorIs(t, err, shared.ErrNotEnrolled)
	assert.Equal(t, shared.CodeNotEnrolled, shared.ErrorCode(err))
	assert.False(t, shared.IsRetryable(err))
}

func TestSubmit_InvalidScore(t *testing.T) {
	f := newFixture(t, 70, nil)
	enrolled(t, f, "L1", "C1")

	for _, score := range []int{-1, 101} {
		_, err := f.submit.Handle(context.Background(), SubmitAssessmentCommand{LearnerID: "L1", CourseID: "C1", Score: score})
		assert.ErrorIs(t, err, shared.ErrInvalidScore)
		assert.Equal(t, shared.CodeInvalidScore, shared.ErrorCode(err))
	}
}

func TestSubmit_ThresholdBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("score equal to threshold completes", func(t *testing.T) {
		f := newFixture(t, 70, nil)
		enrolled(t, f, "L1", "C1")

		res, err := f.submit.Handle(ctx, SubmitAssessmentCommand{LearnerID: "L1", CourseID: "C1", Score: 70})
		require.NoError(t, err)
		assert.Equal(t, 100, res.Enrollment.Progress)
		assert.NotNil(t, res.Enrollment.CompletedAt)
		assert.Equal(t, 1, f.events.count(shared.EventCourseCompleted))
	})

	t.Run("score below threshold gives partial credit", func(t *testing.T) {
		f := newFixture(t, 70, nil)
		enrolled(t, f, "L1", "C1")

		res, err := f.submit.Handle(ctx, SubmitAssessmentCommand{LearnerID: "L1", CourseID: "C1", Score: 69})
		require.NoError(t, err)
		assert.Equal(t, 50, res.Enrollment.Progress)
		assert.Nil(t, res.Enrollment.CompletedAt)
		assert.Equal(t, 0, f.events.count(shared.EventCourseCompleted))
	})

	t.Run("per-course threshold", func(t *testing.T) {
		f := newFixture(t, 90, nil)
		enrolled(t, f, "L1", "C1")

		res, err := f.submit.Handle(ctx, SubmitAssessmentCommand{LearnerID: "L1", CourseID: "C1", Score: 85})
		require.NoError(t, err)
		assert.Equal(t, 50, res.Enrollment.Progress)
	})
}

func TestSubmit_LowerScoreAfterPassKeepsCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 70, nil)
	enrolled(t, f, "L1", "C1")

	passed, err := f.submit.Handle(ctx, SubmitAssessmentCommand{LearnerID: "L1", CourseID: "C1", Score: 80})
	require.NoError(t, err)

	failed, err := f.submit.Handle(ctx, SubmitAssessmentCommand{LearnerID: "L1", CourseID: "C1", Score: 10})
	require.NoError(t, err)

	assert.Equal(t, 100, failed.Enrollment.Progress)
	require.NotNil(t, failed.Enrollment.CompletedAt)
	assert.True(t, passed.Enrollment.CompletedAt.Equal(*failed.Enrollment.CompletedAt))
	assert.Equal(t, 1, f.events.count(shared.EventCourseCompleted))
	assert.Equal(t, 2, f.events.count(shared.EventAssessmentSubmitted))
}

func TestSubmit_CASConflictIsReapplied(t *testing.T) {
	ctx := context.Background()
	repo := &interferingEnrollments{EnrollmentRepository: memory.NewEnrollmentRepository(), competingScore: 95}
	seedEnrollment(t, repo.EnrollmentRepository, "L1", "C1", 0)

	h := NewSubmitAssessmentHandler(repo, course.StaticProvider(70), nil, logger.Nop(), DefaultSubmitAssessmentHandlerConfig())
	res, err := h.Handle(ctx, SubmitAssessmentCommand{LearnerID: "L1", CourseID: "C1", Score: 30})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, 100, res.Enrollment.Progress, "the competing pass must not be lost")
	assert.NotNil(t, res.Enrollment.CompletedAt)
	assert.Equal(t, 2, res.Enrollment.Attempts)
}

func TestSubmit_ConflictRetriesExhausted(t *testing.T) {
	repo := &alwaysConflictEnrollments{EnrollmentRepository: memory.NewEnrollmentRepository()}
	seedEnrollment(t, repo.EnrollmentRepository, "L1", "C1", 0)

	h := NewSubmitAssessmentHandler(repo, nil, nil, nil, SubmitAssessmentHandlerConfig{MaxConflictRetries: 3})
	_, err := h.Handle(context.Background(), SubmitAssessmentCommand{LearnerID: "L1", CourseID: "C1", Score: 80})

	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
	assert.True(t, shared.IsRetryable(err))
}

func TestSubmit_ConcurrentSubmissionsAreSerialized(t *testing.T) {
	f := newFixture(t, 70, nil)
	enrolled(t, f, "L1", "C1")

	const n = 40
	scores := make([]int, n)
	rng := rand.New(rand.NewSource(7))
	anyPass := false
	for i := range scores {
		scores[i] = rng.Intn(101)
		anyPass = anyPass || scores[i] >= 70
	}

	// Each lost CAS means another submission won, so n retries always suffice.
	h := NewSubmitAssessmentHandler(f.enrollments, course.StaticProvider(70), f.events, nil,
		SubmitAssessmentHandlerConfig{MaxConflictRetries: n})

	g, ctx := errgroup.WithContext(context.Background())
	for _, s := range scores {
		g.Go(func() error {
			_, err := h.Handle(ctx, SubmitAssessmentCommand{LearnerID: "L1", CourseID: "C1", Score: s})
			return err
		})
	}
	require.NoError(t, g.Wait())

	final, err := f.enrollments.Get(context.Background(), "L1", "C1")
	require.NoError(t, err)
	assert.Equal(t, n, final.Attempts, "no submission may be lost")
	assert.Equal(t, int64(n+1), final.Version)
	if anyPass {
		assert.Equal(t, 100, final.Progress)
		assert.NotNil(t, final.CompletedAt)
		assert.Equal(t, 1, f.events.count(shared.EventCourseCompleted))
	} else {
		assert.Equal(t, 50, final.Progress)
	}
}
