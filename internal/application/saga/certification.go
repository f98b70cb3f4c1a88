// Package saga contains multi-step processes that react to lifecycle events
// and drive further lifecycle operations.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/certiva/certiva-engine/internal/application/command"
	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/pkg/logger"
	"github.com/certiva/certiva-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CERTIFICATION SAGA
// Issues the certificate as soon as a course is completed.
// Flow: Validate Event → Issue Certificate (retried on transient faults) → Complete
//
// Issuance is idempotent, so the saga may race a learner's own request for
// the same certificate; both end with the same verification id.
// ══════════════════════════════════════════════════════════════════════════════

// Issuer generates certificates. command.GenerateCertificateHandler satisfies it.
type Issuer interface {
	Handle(ctx context.Context, cmd command.GenerateCertificateCommand) (*command.GenerateCertificateResult, error)
}

// CertificationStep names a step of the saga.
type CertificationStep string

const (
	StepValidateEvent    CertificationStep = "validate_event"
	StepIssueCertificate CertificationStep = "issue_certificate"
	StepComplete         CertificationStep = "complete"
)

// CertificationState tracks one run of the saga.
type CertificationState struct {
	CurrentStep CertificationStep
	Event       shared.CourseCompletedEvent
	Certificate *certificate.Certificate
	Issued      bool
	Attempts    int
	StartedAt   time.Time
	CompletedAt *time.Time
	FailedStep  CertificationStep
	Error       error
}

// CertificationResult is returned by a successful run.
type CertificationResult struct {
	Certificate *certificate.Certificate

	// Issued is false when the certificate already existed.
	Issued bool

	Attempts int
	Duration time.Duration
}

// CertificationSagaConfig configures the saga.
type CertificationSagaConfig struct {
	// Timeout bounds a whole run, retries included.
	Timeout time.Duration

	// Retrier decides which issuance failures are retried. Defaults to
	// retry.FollowUpRetrier with shared.IsRetryable.
	Retrier *retry.Retrier
}

// DefaultCertificationConfig returns the default configuration.
func DefaultCertificationConfig() CertificationSagaConfig {
	return CertificationSagaConfig{
		Timeout: 10 * time.Second,
		Retrier: retry.FollowUpRetrier(shared.IsRetryable),
	}
}

// CertificationSaga turns a CourseCompleted event into an issued certificate.
type CertificationSaga struct {
	issuer  Issuer
	retrier *retry.Retrier
	timeout time.Duration
	log     *logger.Logger
}

// NewCertificationSaga creates a CertificationSaga.
func NewCertificationSaga(issuer Issuer, log *logger.Logger, config CertificationSagaConfig) *CertificationSaga {
	defaults := DefaultCertificationConfig()
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Retrier == nil {
		config.Retrier = defaults.Retrier
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CertificationSaga{
		issuer:  issuer,
		retrier: config.Retrier,
		timeout: config.Timeout,
		log:     log.With(logger.Component("certification_saga")),
	}
}

// Handle implements shared.EventHandler. Events other than CourseCompleted
// are ignored.
func (s *CertificationSaga) Handle(ctx context.Context, event shared.Event) error {
	completed, ok := event.(shared.CourseCompletedEvent)
	if !ok {
		s.log.Warn("received unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}
	_, err := s.Execute(ctx, completed)
	return err
}

// Execute runs the saga for a completed enrollment.
func (s *CertificationSaga) Execute(ctx context.Context, event shared.CourseCompletedEvent) (*CertificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	state := &CertificationState{
		CurrentStep: StepValidateEvent,
		Event:       event,
		StartedAt:   time.Now().UTC(),
	}

	// Step 1: Validate event
	if err := s.stepValidateEvent(state); err != nil {
		return nil, s.fail(state, err)
	}

	// Step 2: Issue certificate
	state.CurrentStep = StepIssueCertificate
	if err := s.stepIssueCertificate(ctx, state); err != nil {
		return nil, s.fail(state, err)
	}

	// Complete
	state.CurrentStep = StepComplete
	now := time.Now().UTC()
	state.CompletedAt = &now

	s.log.Info("certification completed",
		logger.LearnerID(event.LearnerID),
		logger.CourseID(event.CourseID),
		logger.VerificationID(state.Certificate.VerificationID),
		logger.Bool("issued", state.Issued),
		logger.Attempt(state.Attempts),
	)

	return &CertificationResult{
		Certificate: state.Certificate,
		Issued:      state.Issued,
		Attempts:    state.Attempts,
		Duration:    now.Sub(state.StartedAt),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

func (s *CertificationSaga) stepValidateEvent(state *CertificationState) error {
	if err := enrollment.ValidateKey(state.Event.LearnerID, state.Event.CourseID); err != nil {
		state.FailedStep = StepValidateEvent
		return err
	}
	return nil
}

func (s *CertificationSaga) stepIssueCertificate(ctx context.Context, state *CertificationState) error {
	cmd := command.GenerateCertificateCommand{
		LearnerID:     state.Event.LearnerID,
		CourseID:      state.Event.CourseID,
		CorrelationID: state.Event.CorrelationID,
	}

	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		state.Attempts++
		res, err := s.issuer.Handle(ctx, cmd)
		if err != nil {
			if shared.IsRetryable(err) {
				s.log.Warn("certificate issuance failed, will retry",
					logger.LearnerID(cmd.LearnerID),
					logger.CourseID(cmd.CourseID),
					logger.Attempt(state.Attempts),
					logger.Err(err),
				)
			}
			return err
		}
		state.Certificate = res.Certificate
		state.Issued = res.Issued
		return nil
	})
	if err != nil {
		state.FailedStep = StepIssueCertificate
		return err
	}
	return nil
}

func (s *CertificationSaga) fail(state *CertificationState, err error) error {
	state.Error = err
	s.log.Error("certification failed",
		logger.LearnerID(state.Event.LearnerID),
		logger.CourseID(state.Event.CourseID),
		logger.String("step", string(state.FailedStep)),
		logger.Attempt(state.Attempts),
		logger.Err(err),
	)
	return &CertificationError{
		Step:      state.FailedStep,
		LearnerID: state.Event.LearnerID,
		CourseID:  state.Event.CourseID,
		Cause:     err,
		Message:   fmt.Sprintf("certification failed at step '%s': %v", state.FailedStep, err),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// CertificationError reports the step at which a run failed.
type CertificationError struct {
	Step      CertificationStep
	LearnerID string
	CourseID  string
	Cause     error
	Message   string
}

// Error implements the error interface.
func (e *CertificationError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *CertificationError) Unwrap() error {
	return e.Cause
}

// FailedAt reports whether err is a CertificationError raised at step.
func FailedAt(err error, step CertificationStep) bool {
	var ce *CertificationError
	return errors.As(err, &ce) && ce.Step == step
}
