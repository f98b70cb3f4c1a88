package memory

import (
	"context"
	"sort"
	"time"

	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
)

// UncertifiedFinder implements enrollment.UncertifiedFinder over the two
// in-memory repositories.
type UncertifiedFinder struct {
	enrollments  *EnrollmentRepository
	certificates *CertificateRepository
}

// NewUncertifiedFinder creates a finder joining enrollments and certificates.
func NewUncertifiedFinder(enrollments *EnrollmentRepository, certificates *CertificateRepository) *UncertifiedFinder {
	return &UncertifiedFinder{enrollments: enrollments, certificates: certificates}
}

// ListUncertified implements enrollment.UncertifiedFinder.
func (f *UncertifiedFinder) ListUncertified(ctx context.Context, completedBefore time.Time, limit int) ([]*enrollment.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StoreUnavailable("ListUncertified", err)
	}

	// Lock order: enrollments, then certificates.
	f.enrollments.mu.RLock()
	defer f.enrollments.mu.RUnlock()
	f.certificates.mu.RLock()
	defer f.certificates.mu.RUnlock()

	out := make([]*enrollment.Enrollment, 0)
	for k, e := range f.enrollments.rows {
		if e.CompletedAt == nil || !e.CompletedAt.Before(completedBefore) {
			continue
		}
		if _, ok := f.certificates.byPair[k]; ok {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(*out[j].CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
