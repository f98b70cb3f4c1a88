package query

import (
	"context"
	"errors"
	"time"

	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// VERIFY CERTIFICATE QUERY
// Public, unauthenticated lookup. A missing id is an answer, not an error.
// ══════════════════════════════════════════════════════════════════════════════

// VerifyCertificateQuery carries the token presented for verification.
type VerifyCertificateQuery struct {
	VerificationID string
}

// VerificationDTO is the verification answer.
type VerificationDTO struct {
	Valid       bool                `json:"valid"`
	Certificate *certificate.Record `json:"certificate,omitempty"`
}

// VerifyCertificateHandler handles VerifyCertificateQuery.
type VerifyCertificateHandler struct {
	registry *GetCertificateHandler
	log      *logger.Logger
}

// NewVerifyCertificateHandler creates a new VerifyCertificateHandler.
func NewVerifyCertificateHandler(registry *GetCertificateHandler, log *logger.Logger) *VerifyCertificateHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &VerifyCertificateHandler{
		registry: registry,
		log:      log.With(logger.Component("verification_service")),
	}
}

// Handle returns {valid:true, certificate} on a hit and {valid:false} on a miss.
// Store faults are returned as errors.
func (h *VerifyCertificateHandler) Handle(ctx context.Context, q VerifyCertificateQuery) (*VerificationDTO, error) {
	start := time.Now()

	c, err := h.registry.Handle(ctx, GetCertificateQuery(q))
	switch {
	case errors.Is(err, shared.ErrCertificateNotFound):
		h.log.Debug("verification miss", logger.VerificationID(q.VerificationID), logger.Latency(time.Since(start)))
		return &VerificationDTO{Valid: false}, nil
	case err != nil:
		h.log.Warn("verification failed", logger.VerificationID(q.VerificationID), logger.Err(err))
		return nil, err
	}

	rec := c.Record()
	h.log.Debug("verification hit", logger.VerificationID(q.VerificationID), logger.Latency(time.Since(start)))
	return &VerificationDTO{Valid: true, Certificate: &rec}, nil
}
