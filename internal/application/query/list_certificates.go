package query

import (
	"context"
	"fmt"

	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/enrollment"
)

// ListCertificatesQuery lists the certificates held by a learner.
type ListCertificatesQuery struct {
	LearnerID string
}

// ListCertificatesHandler handles ListCertificatesQuery.
type ListCertificatesHandler struct {
	certificates certificate.Repository
}

// NewListCertificatesHandler creates a new ListCertificatesHandler.
func NewListCertificatesHandler(certificates certificate.Repository) *ListCertificatesHandler {
	return &ListCertificatesHandler{certificates: certificates}
}

// Handle returns the learner's certificates, newest first.
func (h *ListCertificatesHandler) Handle(ctx context.Context, q ListCertificatesQuery) ([]certificate.Record, error) {
	if err := enrollment.ValidateLearnerID(q.LearnerID); err != nil {
		return nil, err
	}

	certs, err := h.certificates.ListByLearner(ctx, q.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("list_certificates: %w", err)
	}

	out := make([]certificate.Record, 0, len(certs))
	for _, c := range certs {
		out = append(out, c.Record())
	}
	return out, nil
}
