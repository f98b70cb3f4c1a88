// Package command contains write operations (CQRS - Commands).
// Commands move an enrollment along its lifecycle and issue certificates.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL COMMAND
// Creates the enrollment for a (learner, course) pair. Idempotent.
// ══════════════════════════════════════════════════════════════════════════════

// EnrollCommand contains the data needed to enroll a learner.
type EnrollCommand struct {
	// LearnerID is the resolved principal.
	LearnerID string

	CourseID string

	// CorrelationID for tracing across services.
	CorrelationID string
}

// Validate validates the command.
func (c EnrollCommand) Validate() error {
	return enrollment.ValidateKey(c.LearnerID, c.CourseID)
}

// EnrollResult contains the enrollment and whether this call created it.
type EnrollResult struct {
	Enrollment *enrollment.Enrollment
	Created    bool
}

// EnrollHandler handles the EnrollCommand.
type EnrollHandler struct {
	enrollments    enrollment.Repository
	eventPublisher shared.EventPublisher
	log            *logger.Logger
	now            func() time.Time
}

// NewEnrollHandler creates a new EnrollHandler.
func NewEnrollHandler(
	enrollments enrollment.Repository,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *EnrollHandler {
	return &EnrollHandler{
		enrollments:    enrollments,
		eventPublisher: publisherOrNop(eventPublisher),
		log:            loggerOrNop(log).With(logger.Component("enrollment_manager")),
		now:            utcNow,
	}
}

// Handle executes the enroll command.
func (h *EnrollHandler) Handle(ctx context.Context, cmd EnrollCommand) (*EnrollResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	existing, err := h.enrollments.Get(ctx, cmd.LearnerID, cmd.CourseID)
	if err == nil {
		return &EnrollResult{Enrollment: existing}, nil
	}
	if !errors.Is(err, shared.ErrEnrollmentNotFound) {
		return nil, fmt.Errorf("enroll: %w", err)
	}

	e, err := enrollment.New(cmd.LearnerID, cmd.CourseID, h.now())
	if err != nil {
		return nil, err
	}

	if err := h.enrollments.Create(ctx, e); err != nil {
		if !errors.Is(err, shared.ErrEnrollmentExists) {
			return nil, fmt.Errorf("enroll: %w", err)
		}
		// Lost the insert race; the winner's record is the answer.
		existing, err := h.enrollments.Get(ctx, cmd.LearnerID, cmd.CourseID)
		if err != nil {
			return nil, fmt.Errorf("enroll: re-read after conflict: %w", err)
		}
		return &EnrollResult{Enrollment: existing}, nil
	}

	h.log.Debug("learner enrolled", logger.LearnerID(cmd.LearnerID), logger.CourseID(cmd.CourseID))

	event := shared.NewEnrollmentCreatedEvent(e.LearnerID, e.CourseID, e.CreatedAt)
	event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
	publish(ctx, h.eventPublisher, h.log, event)

	return &EnrollResult{Enrollment: e, Created: true}, nil
}
