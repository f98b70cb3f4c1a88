package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/pkg/logger"
	"github.com/certiva/certiva-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// GENERATE CERTIFICATE COMMAND
// Issues the certificate for a completed enrollment exactly once.
// ══════════════════════════════════════════════════════════════════════════════

// GenerateCertificateCommand requests the certificate for a pair.
type GenerateCertificateCommand struct {
	LearnerID     string
	CourseID      string
	CorrelationID string
}

// Validate validates the command.
func (c GenerateCertificateCommand) Validate() error {
	return enrollment.ValidateKey(c.LearnerID, c.CourseID)
}

// GenerateCertificateResult contains the certificate and whether this call inserted it.
type GenerateCertificateResult struct {
	Certificate *certificate.Certificate
	Issued      bool
}

// GenerateCertificateHandlerConfig contains configuration for the handler.
type GenerateCertificateHandlerConfig struct {
	// IDGenerator draws verification ids. Defaults to certificate.NewVerificationID.
	IDGenerator certificate.IDGenerator
}

// GenerateCertificateHandler handles the GenerateCertificateCommand.
type GenerateCertificateHandler struct {
	enrollments    enrollment.Repository
	certificates   certificate.Repository
	eventPublisher shared.EventPublisher
	log            *logger.Logger
	now            func() time.Time

	newID   certificate.IDGenerator
	retrier *retry.Retrier
}

// NewGenerateCertificateHandler creates a new GenerateCertificateHandler.
func NewGenerateCertificateHandler(
	enrollments enrollment.Repository,
	certificates certificate.Repository,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	config GenerateCertificateHandlerConfig,
) *GenerateCertificateHandler {
	if config.IDGenerator == nil {
		config.IDGenerator = certificate.NewVerificationID
	}

	return &GenerateCertificateHandler{
		enrollments:    enrollments,
		certificates:   certificates,
		eventPublisher: publisherOrNop(eventPublisher),
		log:            loggerOrNop(log).With(logger.Component("certificate_registry")),
		now:            utcNow,
		newID:          config.IDGenerator,
		retrier: retry.IssuanceRetrier(func(err error) bool {
			return errors.Is(err, shared.ErrVerificationIDCollision)
		}),
	}
}

// Handle executes the generate certificate command.
func (h *GenerateCertificateHandler) Handle(ctx context.Context, cmd GenerateCertificateCommand) (*GenerateCertificateResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	e, err := h.enrollments.Get(ctx, cmd.LearnerID, cmd.CourseID)
	if errors.Is(err, shared.ErrEnrollmentNotFound) {
		return nil, shared.ErrNotCompleted
	}
	if err != nil {
		return nil, fmt.Errorf("generate_certificate: %w", err)
	}
	if !e.IsCompleted() {
		return nil, shared.ErrNotCompleted
	}

	existing, err := h.certificates.GetByLearnerCourse(ctx, cmd.LearnerID, cmd.CourseID)
	if err == nil {
		return &GenerateCertificateResult{Certificate: existing}, nil
	}
	if !errors.Is(err, shared.ErrCertificateNotFound) {
		return nil, fmt.Errorf("generate_certificate: %w", err)
	}

	created, err := h.issue(ctx, e)
	switch {
	case err == nil:
		h.log.Info("certificate issued",
			logger.LearnerID(created.LearnerID),
			logger.CourseID(created.CourseID),
			logger.VerificationID(created.VerificationID),
			logger.Score(created.Score),
		)
		event := shared.NewCertificateIssuedEvent(
			created.VerificationID, created.LearnerID, created.CourseID, created.Score, created.IssuedAt)
		event.BaseEvent = event.WithCorrelationID(cmd.CorrelationID)
		publish(ctx, h.eventPublisher, h.log, event)
		return &GenerateCertificateResult{Certificate: created, Issued: true}, nil

	case errors.Is(err, shared.ErrCertificateExists):
		// A concurrent call issued first; return its certificate.
		winner, err := h.certificates.GetByLearnerCourse(ctx, cmd.LearnerID, cmd.CourseID)
		if err != nil {
			return nil, fmt.Errorf("generate_certificate: re-read after conflict: %w", err)
		}
		return &GenerateCertificateResult{Certificate: winner}, nil

	case errors.Is(err, shared.ErrVerificationIDCollision):
		h.log.Error("verification id collisions exhausted issuance attempts",
			logger.LearnerID(cmd.LearnerID), logger.CourseID(cmd.CourseID), logger.Attempt(h.retrier.MaxAttempts()))
		return nil, shared.ErrIssuanceFailed.Wrap(err)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, shared.StoreUnavailable("GenerateCertificate", err)

	default:
		return nil, fmt.Errorf("generate_certificate: %w", err)
	}
}

// issue inserts a new certificate, drawing a fresh verification id per attempt.
func (h *GenerateCertificateHandler) issue(ctx context.Context, e *enrollment.Enrollment) (*certificate.Certificate, error) {
	var created *certificate.Certificate

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		vid, err := h.newID()
		if err != nil {
			return retry.Permanent(err)
		}

		c := &certificate.Certificate{
			ID:             uuid.NewString(),
			VerificationID: vid,
			LearnerID:      e.LearnerID,
			CourseID:       e.CourseID,
			Score:          e.CertificateScore(),
			IssuedAt:       h.now(),
		}
		if err := h.certificates.Create(ctx, c); err != nil {
			if errors.Is(err, shared.ErrVerificationIDCollision) {
				h.log.Warn("verification id collision, retrying",
					logger.VerificationID(vid), logger.LearnerID(e.LearnerID), logger.CourseID(e.CourseID))
			}
			return err
		}
		created = c
		return nil
	})

	return created, err
}
