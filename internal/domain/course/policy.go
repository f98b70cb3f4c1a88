// Package course models the slice of a course the lifecycle engine needs:
// its identifier and its pass threshold.
package course

import (
	"context"
	"errors"
	"time"

	"github.com/certiva/certiva-engine/internal/domain/shared"
)

// DefaultPassThreshold applies to courses without an explicit policy.
const DefaultPassThreshold = 70

// ErrPolicyNotFound is returned by a PolicyRepository when a course has no stored policy.
var ErrPolicyNotFound = errors.New("course policy not found")

// Policy is the per-course completion configuration.
type Policy struct {
	CourseID      string    `json:"course_id" yaml:"course_id"`
	PassThreshold int       `json:"pass_threshold" yaml:"pass_threshold"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"-"`
}

// Validate checks the policy fields.
func (p Policy) Validate() error {
	if p.CourseID == "" {
		return shared.ErrInvalidCourseID
	}
	return ValidateThreshold(p.PassThreshold)
}

// ValidateThreshold checks that threshold is on the 0–100 scale.
func ValidateThreshold(threshold int) error {
	if threshold < 0 || threshold > 100 {
		return shared.ErrCoursePolicyInvalid
	}
	return nil
}

// PolicyProvider resolves the pass threshold of a course.
type PolicyProvider interface {
	PassThreshold(ctx context.Context, courseID string) (int, error)
}

// PolicyRepository stores explicit course policies.
type PolicyRepository interface {
	// Get returns ErrPolicyNotFound when the course has no stored policy.
	Get(ctx context.Context, courseID string) (*Policy, error)
	Upsert(ctx context.Context, p *Policy) error
	List(ctx context.Context) ([]*Policy, error)
}

// StaticProvider returns the same threshold for every course.
type StaticProvider int

// PassThreshold implements PolicyProvider.
func (s StaticProvider) PassThreshold(context.Context, string) (int, error) {
	return int(s), nil
}
