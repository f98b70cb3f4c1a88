package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/certiva/certiva-engine/internal/domain/course"
	"github.com/certiva/certiva-engine/internal/domain/shared"
)

// CoursePolicyRepository implements course.PolicyRepository.
type CoursePolicyRepository struct {
	mu   sync.RWMutex
	rows map[string]course.Policy
}

// NewCoursePolicyRepository creates an empty repository.
func NewCoursePolicyRepository() *CoursePolicyRepository {
	return &CoursePolicyRepository{rows: make(map[string]course.Policy)}
}

// Get implements course.PolicyRepository.
func (r *CoursePolicyRepository) Get(ctx context.Context, courseID string) (*course.Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StoreUnavailable("GetCoursePolicy", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.rows[courseID]
	if !ok {
		return nil, course.ErrPolicyNotFound
	}
	return &p, nil
}

// Upsert implements course.PolicyRepository.
func (r *CoursePolicyRepository) Upsert(ctx context.Context, p *course.Policy) error {
	if err := ctx.Err(); err != nil {
		return shared.StoreUnavailable("UpsertCoursePolicy", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rows[p.CourseID] = *p
	return nil
}

// List implements course.PolicyRepository.
func (r *CoursePolicyRepository) List(ctx context.Context) ([]*course.Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, shared.StoreUnavailable("ListCoursePolicies", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*course.Policy, 0, len(r.rows))
	for _, p := range r.rows {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CourseID < out[j].CourseID })
	return out, nil
}
