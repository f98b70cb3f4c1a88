package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/certiva/certiva-engine/internal/domain/course"
	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT ASSESSMENT COMMAND
// Applies an assessment result to an enrollment with compare-and-swap.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitAssessmentCommand contains a scored assessment.
type SubmitAssessmentCommand struct {
	LearnerID     string
	CourseID      string
	Score         int
	CorrelationID string
}

// Validate validates the command. Score range is checked before any store read.
func (c SubmitAssessmentCommand) Validate() error {
	if err := enrollment.ValidateKey(c.LearnerID, c.CourseID); err != nil {
		return err
	}
	return enrollment.ValidateScore(c.Score)
}

// SubmitAssessmentResult contains the updated enrollment.
type SubmitAssessmentResult struct {
	Enrollment *enrollment.Enrollment
	Outcome    enrollment.Outcome

	// Retries is the number of CAS conflicts resolved along the way.
	Retries int
}

// SubmitAssessmentHandlerConfig contains configuration for the handler.
type SubmitAssessmentHandlerConfig struct {
	// MaxConflictRetries bounds re-read-and-apply loops under contention.
	MaxConflictRetries int
}

// DefaultSubmitAssessmentHandlerConfig returns default configuration.
func DefaultSubmitAssessmentHandlerConfig() SubmitAssessmentHandlerConfig {
	return SubmitAssessmentHandlerConfig{
		MaxConflictRetries: 16,
	}
}

// SubmitAssessmentHandler handles the SubmitAssessmentCommand.
type SubmitAssessmentHandler struct {
	enrollments    enrollment.Repository
	policies       course.PolicyProvider
	eventPublisher shared.EventPublisher
	log            *logger.Logger
	now            func() time.Time

	maxConflictRetries int
}

// NewSubmitAssessmentHandler creates a new SubmitAssessmentHandler.
func NewSubmitAssessmentHandler(
	enrollments enrollment.Repository,
	policies course.PolicyProvider,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	config SubmitAssessmentHandlerConfig,
) *SubmitAssessmentHandler {
	if config.MaxConflictRetries <= 0 {
		config = DefaultSubmitAssessmentHandlerConfig()
	}
	if policies == nil {
		policies = course.StaticProvider(course.DefaultPassThreshold)
	}

	return &SubmitAssessmentHandler{
		enrollments:        enrollments,
		policies:           policies,
		eventPublisher:     publisherOrNop(eventPublisher),
		log:                loggerOrNop(log).With(logger.Component("enrollment_manager")),
		now:                utcNow,
		maxConflictRetries: config.MaxConflictRetries,
	}
}

// Handle executes the submit assessment command.
func (h *SubmitAssessmentHandler) Handle(ctx context.Context, cmd SubmitAssessmentCommand) (*SubmitAssessmentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	threshold, err := h.policies.PassThreshold(ctx, cmd.CourseID)
	if err != nil {
		return nil, fmt.Errorf("submit_assessment: resolve threshold: %w", err)
	}

	for retries := 0; ; retries++ {
		current, err := h.enrollments.Get(ctx, cmd.LearnerID, cmd.CourseID)
		if errors.Is(err, shared.ErrEnrollmentNotFound) {
			return nil, shared.ErrNotEnrolled
		}
		if err != nil {
			return nil, fmt.Errorf("submit_assessment: %w", err)
		}

		next, outcome, err := current.Apply(cmd.Score, threshold, h.now())
		if err != nil {
			return nil, err
		}

		err = h.enrollments.UpdateProgress(ctx, next, current.Version)
		if errors.Is(err, shared.ErrEnrollmentConflict) {
			if retries >= h.maxConflictRetries {
				h.log.Warn("assessment conflict retries exhausted",
					logger.LearnerID(cmd.LearnerID), logger.CourseID(cmd.CourseID), logger.Attempt(retries))
				return nil, shared.StoreUnavailable("SubmitAssessment", err)
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("submit_assessment: %w", err)
		}

		h.log.Debug("assessment applied",
			logger.LearnerID(cmd.LearnerID),
			logger.CourseID(cmd.CourseID),
			logger.Score(cmd.Score),
			logger.Progress(next.Progress),
			logger.Bool("passed", outcome.Passed),
		)
		h.publishOutcome(ctx, cmd, next, outcome)

		return &SubmitAssessmentResult{Enrollment: next, Outcome: outcome, Retries: retries}, nil
	}
}

func (h *SubmitAssessmentHandler) publishOutcome(ctx context.Context, cmd SubmitAssessmentCommand, e *enrollment.Enrollment, out enrollment.Outcome) {
	submitted := shared.NewAssessmentSubmittedEvent(
		e.LearnerID, e.CourseID, out.Score, out.Passed, out.OldProgress, out.NewProgress, e.UpdatedAt)
	submitted.BaseEvent = submitted.WithCorrelationID(cmd.CorrelationID)
	publish(ctx, h.eventPublisher, h.log, submitted)

	if out.JustCompleted {
		completed := shared.NewCourseCompletedEvent(e.LearnerID, e.CourseID, out.Score, *e.CompletedAt)
		completed.BaseEvent = completed.WithCorrelationID(cmd.CorrelationID)
		publish(ctx, h.eventPublisher, h.log, completed)
	}
}
