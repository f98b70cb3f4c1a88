package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/shared"
)

// CertificateRepository implements certificate.Repository with both
// uniqueness constraints checked under one lock.
type CertificateRepository struct {
	mu             sync.RWMutex
	byPair         map[pairKey]*certificate.Certificate
	byVerification map[string]*certificate.Certificate
}

// NewCertificateRepository creates an empty repository.
func NewCertificateRepository() *CertificateRepository {
	return &CertificateRepository{
		byPair:         make(map[pairKey]*certificate.Certificate),
		byVerification: make(map[string]*certificate.Certificate),
	}
}

func cloneCert(c *certificate.Certificate) *certificate.Certificate {
	cp := *c
	return &cp
}

// Create implements certificate.Repository.
func (r *CertificateRepository) Create(ctx context.Context, c *certificate.Certificate) error {
	if err := ctx.Err(); err != nil {
		return shared.StoreUnavailable("CreateCertificate", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := pairKey{c.LearnerID, c.CourseID}
	if _, ok := r.byPair[k]; ok {
		return shared.ErrCertificateExists
	}
	if _, ok := r.byVerification[c.VerificationID]; ok {
		return shared.ErrVerificationIDCollision
	}

	stored := cloneCert(c)
	r.byPair[k] = stored
	r.byVerification[c.VerificationID] = stored
	return nil
}

// GetByLearnerCourse implements certificate.Repository.
func (r *CertificateRepository) GetByLearnerCourse(ctx context.Context, learnerID, courseID string) (*certificate.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StoreUnavailable("GetCertificate", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byPair[pairKey{learnerID, courseID}]
	if !ok {
		return nil, shared.ErrCertificateNotFound
	}
	return cloneCert(c), nil
}

// GetByVerificationID implements certificate.Repository.
func (r *CertificateRepository) GetByVerificationID(ctx context.Context, verificationID string) (*certificate.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StoreUnavailable("GetCertificate", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byVerification[verificationID]
	if !ok {
		return nil, shared.ErrCertificateNotFound
	}
	return cloneCert(c), nil
}

// ListByLearner implements certificate.Repository.
func (r *CertificateRepository) ListByLearner(ctx context.Context, learnerID string) ([]*certificate.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StoreUnavailable("ListCertificates", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*certificate.Certificate, 0)
	for k, c := range r.byPair {
		if k.learnerID == learnerID {
			out = append(out, cloneCert(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

// Len returns the number of stored certificates.
func (r *CertificateRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPair)
}
