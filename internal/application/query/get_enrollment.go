package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT QUERIES
// Learner dashboard: progress per course and the certificate, if issued.
// ══════════════════════════════════════════════════════════════════════════════

// StageCertified is reported once a certificate exists for the enrollment.
const StageCertified = "certified"

// EnrollmentDTO is the read model of an enrollment.
type EnrollmentDTO struct {
	LearnerID    string     `json:"learner_id"`
	CourseID     string     `json:"course_id"`
	Progress     int        `json:"progress"`
	Stage        string     `json:"stage"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Attempts     int        `json:"attempts"`
	LastScore    *int       `json:"last_score,omitempty"`
	PassingScore *int       `json:"passing_score,omitempty"`
	EnrolledAt   time.Time  `json:"enrolled_at"`

	// VerificationID is set once the enrollment is certified.
	VerificationID string `json:"verification_id,omitempty"`
}

// NewEnrollmentDTO maps an enrollment and its optional certificate.
func NewEnrollmentDTO(e *enrollment.Enrollment, c *certificate.Certificate) EnrollmentDTO {
	dto := EnrollmentDTO{
		LearnerID:    e.LearnerID,
		CourseID:     e.CourseID,
		Progress:     e.Progress,
		Stage:        string(e.Stage()),
		CompletedAt:  e.CompletedAt,
		Attempts:     e.Attempts,
		LastScore:    e.LastScore,
		PassingScore: e.PassingScore,
		EnrolledAt:   e.CreatedAt,
	}
	if c != nil {
		dto.Stage = StageCertified
		dto.VerificationID = c.VerificationID
	}
	return dto
}

// GetEnrollmentQuery reads one enrollment.
type GetEnrollmentQuery struct {
	LearnerID string
	CourseID  string
}

// ListEnrollmentsQuery reads all enrollments of a learner.
type ListEnrollmentsQuery struct {
	LearnerID string
}

// EnrollmentsHandler handles GetEnrollmentQuery and ListEnrollmentsQuery.
type EnrollmentsHandler struct {
	enrollments  enrollment.Repository
	certificates certificate.Repository
}

// NewEnrollmentsHandler creates a new EnrollmentsHandler.
func NewEnrollmentsHandler(enrollments enrollment.Repository, certificates certificate.Repository) *EnrollmentsHandler {
	return &EnrollmentsHandler{enrollments: enrollments, certificates: certificates}
}

// Get returns shared.ErrEnrollmentNotFound if the learner is not enrolled.
func (h *EnrollmentsHandler) Get(ctx context.Context, q GetEnrollmentQuery) (*EnrollmentDTO, error) {
	if err := enrollment.ValidateKey(q.LearnerID, q.CourseID); err != nil {
		return nil, err
	}

	e, err := h.enrollments.Get(ctx, q.LearnerID, q.CourseID)
	if err != nil {
		if errors.Is(err, shared.ErrEnrollmentNotFound) {
			return nil, shared.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("get_enrollment: %w", err)
	}

	var cert *certificate.Certificate
	if e.IsCompleted() {
		cert, err = h.certificates.GetByLearnerCourse(ctx, q.LearnerID, q.CourseID)
		if err != nil && !errors.Is(err, shared.ErrCertificateNotFound) {
			return nil, fmt.Errorf("get_enrollment: %w", err)
		}
	}

	dto := NewEnrollmentDTO(e, cert)
	return &dto, nil
}

// List returns every enrollment of the learner, oldest first.
func (h *EnrollmentsHandler) List(ctx context.Context, q ListEnrollmentsQuery) ([]EnrollmentDTO, error) {
	if err := enrollment.ValidateLearnerID(q.LearnerID); err != nil {
		return nil, err
	}

	list, err := h.enrollments.ListByLearner(ctx, q.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("list_enrollments: %w", err)
	}
	certs, err := h.certificates.ListByLearner(ctx, q.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("list_enrollments: %w", err)
	}

	byCourse := make(map[string]*certificate.Certificate, len(certs))
	for _, c := range certs {
		byCourse[c.CourseID] = c
	}

	out := make([]EnrollmentDTO, 0, len(list))
	for _, e := range list {
		out = append(out, NewEnrollmentDTO(e, byCourse[e.CourseID]))
	}
	return out, nil
}
