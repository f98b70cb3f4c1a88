package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
)

type pairKey struct {
	learnerID string
	courseID  string
}

// EnrollmentRepository implements enrollment.Repository.
type EnrollmentRepository struct {
	mu   sync.RWMutex
	rows map[pairKey]*enrollment.Enrollment
}

// NewEnrollmentRepository creates an empty repository.
func NewEnrollmentRepository() *EnrollmentRepository {
	return &EnrollmentRepository{rows: make(map[pairKey]*enrollment.Enrollment)}
}

// Create implements enrollment.Repository.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	if err := ctx.Err(); err != nil {
		return shared.StoreUnavailable("CreateEnrollment", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := pairKey{e.LearnerID, e.CourseID}
	if _, ok := r.rows[k]; ok {
		return shared.ErrEnrollmentExists
	}
	if e.Version == 0 {
		e.Version = 1
	}
	r.rows[k] = e.Clone()
	return nil
}

// Get implements enrollment.Repository.
func (r *EnrollmentRepository) Get(ctx context.Context, learnerID, courseID string) (*enrollment.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StoreUnavailable("GetEnrollment", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.rows[pairKey{learnerID, courseID}]
	if !ok {
		return nil, shared.ErrEnrollmentNotFound
	}
	return e.Clone(), nil
}

// ListByLearner implements enrollment.Repository.
func (r *EnrollmentRepository) ListByLearner(ctx context.Context, learnerID string) ([]*enrollment.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StoreUnavailable("ListEnrollments", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*enrollment.Enrollment, 0)
	for k, e := range r.rows {
		if k.learnerID == learnerID {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CourseID < out[j].CourseID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateProgress implements enrollment.Repository.
func (r *EnrollmentRepository) UpdateProgress(ctx context.Context, e *enrollment.Enrollment, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return shared.StoreUnavailable("UpdateProgress", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	k := pairKey{e.LearnerID, e.CourseID}
	cur, ok := r.rows[k]
	if !ok || cur.Version != expectedVersion {
		return shared.ErrEnrollmentConflict
	}

	e.Version = expectedVersion + 1
	r.rows[k] = e.Clone()
	return nil
}

// Len returns the number of stored enrollments.
func (r *EnrollmentRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
