// Package eventhandler contains reactions to lifecycle events. Handlers run
// after the triggering operation has committed; their failures are logged by
// the bus and never reach the caller of that operation.
package eventhandler

import (
	"context"
	"time"

	"github.com/certiva/certiva-engine/internal/application/query"
	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON CERTIFICATE ISSUED HANDLER
// Records the issuance and pre-loads the verification cache so the first
// public lookup of a fresh certificate does not hit the store.
// ═══════════════════════════════════════════════════════════════════════════

// CertificateReader is the registry read path. A read through it fills the cache.
type CertificateReader interface {
	Handle(ctx context.Context, q query.GetCertificateQuery) (*certificate.Certificate, error)
}

// CertificateIssuedConfig configures OnCertificateIssuedHandler.
type CertificateIssuedConfig struct {
	// WarmCache enables the read-through after issuance.
	WarmCache bool

	// WarmTimeout bounds the warm-up read.
	WarmTimeout time.Duration
}

// DefaultCertificateIssuedConfig returns the default configuration.
func DefaultCertificateIssuedConfig() CertificateIssuedConfig {
	return CertificateIssuedConfig{
		WarmCache:   true,
		WarmTimeout: 2 * time.Second,
	}
}

// OnCertificateIssuedHandler handles shared.CertificateIssuedEvent.
type OnCertificateIssuedHandler struct {
	registry CertificateReader
	log      *logger.Logger
	config   CertificateIssuedConfig
}

// NewOnCertificateIssuedHandler creates the handler. registry may be nil when
// warming is disabled.
func NewOnCertificateIssuedHandler(registry CertificateReader, log *logger.Logger, config CertificateIssuedConfig) *OnCertificateIssuedHandler {
	if log == nil {
		log = logger.Nop()
	}
	if config.WarmTimeout <= 0 {
		config.WarmTimeout = DefaultCertificateIssuedConfig().WarmTimeout
	}
	return &OnCertificateIssuedHandler{
		registry: registry,
		log:      log.With(logger.Component("on_certificate_issued")),
		config:   config,
	}
}

// Handle implements shared.EventHandler.
func (h *OnCertificateIssuedHandler) Handle(ctx context.Context, event shared.Event) error {
	issued, ok := event.(shared.CertificateIssuedEvent)
	if !ok {
		h.log.Warn("received unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	h.log.Info("certificate issued",
		logger.VerificationID(issued.VerificationID),
		logger.LearnerID(issued.LearnerID),
		logger.CourseID(issued.CourseID),
		logger.Score(issued.Score),
	)

	if !h.config.WarmCache || h.registry == nil {
		return nil
	}

	warmCtx, cancel := context.WithTimeout(ctx, h.config.WarmTimeout)
	defer cancel()

	_, err := h.registry.Handle(warmCtx, query.GetCertificateQuery{VerificationID: issued.VerificationID})
	return err
}
