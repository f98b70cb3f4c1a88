package redis

import (
	"context"
	"errors"
	"time"

	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/pkg/circuitbreaker"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// CertificateCache implements query.CertificateCache. Calls go through a
// circuit breaker so a failing Redis costs one fast rejection per lookup
// instead of a network timeout.
type CertificateCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// cachedCertificate is the stored JSON shape.
type cachedCertificate struct {
	ID             string    `json:"id"`
	VerificationID string    `json:"verification_id"`
	LearnerID      string    `json:"learner_id"`
	CourseID       string    `json:"course_id"`
	Score          int       `json:"score"`
	IssuedAt       time.Time `json:"issued_at"`
}

// NewCertificateCache creates a CertificateCache. A non-positive ttl means TTLCertificate.
func NewCertificateCache(cache *Cache, ttl time.Duration, log *logger.Logger) *CertificateCache {
	if ttl <= 0 {
		ttl = TTLCertificate
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("verification_cache"))

	return &CertificateCache{
		cache: cache,
		ttl:   ttl,
		breaker: circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
	}
}

// Get implements query.CertificateCache.
func (c *CertificateCache) Get(ctx context.Context, verificationID string) (*certificate.Certificate, bool, error) {
	var row cachedCertificate

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		err := c.cache.Get(ctx, CertificateKey(verificationID), &row)
		if errors.Is(err, ErrCacheMiss) {
			// A miss is a healthy answer.
			return nil
		}
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if row.VerificationID == "" {
		return nil, false, nil
	}

	return &certificate.Certificate{
		ID:             row.ID,
		VerificationID: row.VerificationID,
		LearnerID:      row.LearnerID,
		CourseID:       row.CourseID,
		Score:          row.Score,
		IssuedAt:       row.IssuedAt,
	}, true, nil
}

// Set implements query.CertificateCache.
func (c *CertificateCache) Set(ctx context.Context, cert *certificate.Certificate) error {
	if cert == nil {
		return ErrCacheNilValue
	}

	row := cachedCertificate{
		ID:             cert.ID,
		VerificationID: cert.VerificationID,
		LearnerID:      cert.LearnerID,
		CourseID:       cert.CourseID,
		Score:          cert.Score,
		IssuedAt:       cert.IssuedAt,
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, CertificateKey(cert.VerificationID), row, c.ttl)
	})
}

// Breaker exposes the breaker state for health reporting.
func (c *CertificateCache) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}
