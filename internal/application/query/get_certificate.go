// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CERTIFICATE QUERY
// Registry read path by verification id. Certificates are immutable, so a
// read-through cache never goes stale; misses are never cached.
// ══════════════════════════════════════════════════════════════════════════════

// CertificateCache is an optional read-through cache keyed by verification id.
type CertificateCache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, verificationID string) (c *certificate.Certificate, ok bool, err error)
	Set(ctx context.Context, c *certificate.Certificate) error
}

// GetCertificateQuery looks a certificate up by its public token.
type GetCertificateQuery struct {
	VerificationID string
}

// GetCertificateHandler handles GetCertificateQuery.
type GetCertificateHandler struct {
	certificates certificate.Repository
	cache        CertificateCache
	log          *logger.Logger

	// inflight coalesces concurrent store reads for the same id.
	inflight singleflight.Group
}

// NewGetCertificateHandler creates a new GetCertificateHandler. cache may be nil.
func NewGetCertificateHandler(certificates certificate.Repository, cache CertificateCache, log *logger.Logger) *GetCertificateHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetCertificateHandler{
		certificates: certificates,
		cache:        cache,
		log:          log.With(logger.Component("certificate_registry")),
	}
}

// Handle returns the certificate or shared.ErrCertificateNotFound.
func (h *GetCertificateHandler) Handle(ctx context.Context, q GetCertificateQuery) (*certificate.Certificate, error) {
	if !certificate.IsWellFormedVerificationID(q.VerificationID) {
		return nil, shared.ErrCertificateNotFound
	}

	if h.cache != nil {
		c, ok, err := h.cache.Get(ctx, q.VerificationID)
		if err != nil {
			h.log.Debug("certificate cache read failed", logger.VerificationID(q.VerificationID), logger.Err(err))
		} else if ok {
			return c, nil
		}
	}

	ch := h.inflight.DoChan(q.VerificationID, func() (interface{}, error) {
		return h.certificates.GetByVerificationID(context.WithoutCancel(ctx), q.VerificationID)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, shared.StoreUnavailable("GetCertificate", ctx.Err())
	case res = <-ch:
	}

	if res.Err != nil {
		if errors.Is(res.Err, shared.ErrCertificateNotFound) {
			return nil, shared.ErrCertificateNotFound
		}
		return nil, fmt.Errorf("get_certificate: %w", res.Err)
	}

	c := res.Val.(*certificate.Certificate)
	if h.cache != nil {
		if err := h.cache.Set(ctx, c); err != nil {
			h.log.Debug("certificate cache write failed", logger.VerificationID(c.VerificationID), logger.Err(err))
		}
	}

	// Shared result; hand each caller its own copy.
	cp := *c
	return &cp, nil
}
