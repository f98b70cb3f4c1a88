package coursepolicy

import (
	"context"
	"errors"

	"github.com/certiva/certiva-engine/internal/domain/course"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// Provider implements course.PolicyProvider.
type Provider struct {
	repo      course.PolicyRepository
	file      map[string]int
	threshold int
	log       *logger.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithRepository adds the policy table as the first lookup layer.
func WithRepository(repo course.PolicyRepository) Option {
	return func(p *Provider) { p.repo = repo }
}

// WithFile adds a parsed policy file. Its default, if set, replaces the
// configured one.
func WithFile(f *File) Option {
	return func(p *Provider) {
		if f == nil {
			return
		}
		p.file = f.Thresholds()
		if f.DefaultPassThreshold != nil {
			p.threshold = *f.DefaultPassThreshold
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// NewProvider creates a provider falling back to defaultThreshold.
func NewProvider(defaultThreshold int, opts ...Option) *Provider {
	p := &Provider{
		file:      map[string]int{},
		threshold: defaultThreshold,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PassThreshold implements course.PolicyProvider.
func (p *Provider) PassThreshold(ctx context.Context, courseID string) (int, error) {
	if p.repo != nil {
		pol, err := p.repo.Get(ctx, courseID)
		switch {
		case err == nil:
			return pol.PassThreshold, nil
		case !errors.Is(err, course.ErrPolicyNotFound):
			p.log.Warn("course policy lookup failed", logger.CourseID(courseID), logger.Err(err))
			return 0, err
		}
	}

	if t, ok := p.file[courseID]; ok {
		return t, nil
	}
	return p.threshold, nil
}

// Default returns the fallback threshold.
func (p *Provider) Default() int {
	return p.threshold
}
