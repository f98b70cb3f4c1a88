package query

import (
	"context"
	"fmt"

	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// RenderCertificateQuery asks for the downloadable document of a certificate.
type RenderCertificateQuery struct {
	VerificationID string

	// RequesterID is the authenticated learner; only the holder may download.
	RequesterID string
}

// RenderedCertificate is a rendered document ready to be served.
type RenderedCertificate struct {
	FileName    string
	ContentType string
	Data        []byte
}

// RenderCertificateHandler handles RenderCertificateQuery.
type RenderCertificateHandler struct {
	registry *GetCertificateHandler
	renderer certificate.Renderer
	log      *logger.Logger
}

// NewRenderCertificateHandler creates a new RenderCertificateHandler.
// A nil renderer disables downloads.
func NewRenderCertificateHandler(registry *GetCertificateHandler, renderer certificate.Renderer, log *logger.Logger) *RenderCertificateHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RenderCertificateHandler{
		registry: registry,
		renderer: renderer,
		log:      log.With(logger.Component("certificate_renderer")),
	}
}

// Handle renders the certificate for its owner.
func (h *RenderCertificateHandler) Handle(ctx context.Context, q RenderCertificateQuery) (*RenderedCertificate, error) {
	if h.renderer == nil {
		return nil, shared.ErrRenderingDisabled
	}

	c, err := h.registry.Handle(ctx, GetCertificateQuery{VerificationID: q.VerificationID})
	if err != nil {
		return nil, err
	}
	if !c.OwnedBy(q.RequesterID) {
		return nil, shared.ErrNotCertificateOwner
	}

	data, err := h.renderer.Render(ctx, c.Record())
	if err != nil {
		h.log.Error("render failed", logger.VerificationID(c.VerificationID), logger.Err(err))
		return nil, fmt.Errorf("render_certificate: %w", err)
	}

	return &RenderedCertificate{
		FileName:    certificate.FileName(c.VerificationID, h.renderer.Extension()),
		ContentType: h.renderer.ContentType(),
		Data:        data,
	}, nil
}
