package command

import (
	"context"
	"sync"
	"testing"

	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/course"
	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/internal/infrastructure/persistence/memory"
	"github.com/certiva/certiva-engine/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) count(t shared.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}

type fixture struct {
	enrollments  *memory.EnrollmentRepository
	certificates *memory.CertificateRepository
	events       *recordingPublisher

	enroll   *EnrollHandler
	submit   *SubmitAssessmentHandler
	generate *GenerateCertificateHandler
}

func newFixture(t *testing.T, threshold int, gen certificate.IDGenerator) *fixture {
	t.Helper()

	f := &fixture{
		enrollments:  memory.NewEnrollmentRepository(),
		certificates: memory.NewCertificateRepository(),
		events:       &recordingPublisher{},
	}
	log := logger.Nop()

	f.enroll = NewEnrollHandler(f.enrollments, f.events, log)
	f.submit = NewSubmitAssessmentHandler(f.enrollments, course.StaticProvider(threshold), f.events, log,
		DefaultSubmitAssessmentHandlerConfig())
	f.generate = NewGenerateCertificateHandler(f.enrollments, f.certificates, f.events, log,
		GenerateCertificateHandlerConfig{IDGenerator: gen})
	return f
}

// sequenceIDs returns the given ids in order, then fresh random ids.
func sequenceIDs(ids ...string) certificate.IDGenerator {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(ids) == 0 {
			return certificate.NewVerificationID()
		}
		id := ids[0]
		ids = ids[1:]
		return id, nil
	}
}

// seedEnrollment stores an enrollment at the given progress directly.
func seedEnrollment(t *testing.T, repo enrollment.Repository, learnerID, courseID string, progress int) {
	t.Helper()
	e, err := enrollment.New(learnerID, courseID, utcNow())
	if err != nil {
		t.Fatal(err)
	}
	e.Progress = progress
	if progress == enrollment.ProgressComplete {
		at := utcNow()
		score := 90
		e.CompletedAt = &at
		e.PassingScore = &score
	}
	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatal(err)
	}
}

// missFirstGetEnrollments hides the record on the first Get, as if a
// concurrent caller inserted it right after our read.
type missFirstGetEnrollments struct {
	*memory.EnrollmentRepository
	once sync.Once
}

func (r *missFirstGetEnrollments) Get(ctx context.Context, learnerID, courseID string) (*enrollment.Enrollment, error) {
	missed := false
	r.once.Do(func() { missed = true })
	if missed {
		return nil, shared.ErrEnrollmentNotFound
	}
	return r.EnrollmentRepository.Get(ctx, learnerID, courseID)
}

// interferingEnrollments applies a competing submission just before the
// first UpdateProgress so that update loses the CAS.
type interferingEnrollments struct {
	*memory.EnrollmentRepository
	competingScore int
	once           sync.Once
}

func (r *interferingEnrollments) UpdateProgress(ctx context.Context, e *enrollment.Enrollment, expected int64) error {
	r.once.Do(func() {
		cur, err := r.EnrollmentRepository.Get(ctx, e.LearnerID, e.CourseID)
		if err != nil {
			return
		}
		next, _, err := cur.Apply(r.competingScore, 70, utcNow())
		if err != nil {
			return
		}
		_ = r.EnrollmentRepository.UpdateProgress(ctx, next, cur.Version)
	})
	return r.EnrollmentRepository.UpdateProgress(ctx, e, expected)
}

// alwaysConflictEnrollments never lets an update through.
type alwaysConflictEnrollments struct {
	*memory.EnrollmentRepository
}

func (r *alwaysConflictEnrollments) UpdateProgress(context.Context, *enrollment.Enrollment, int64) error {
	return shared.ErrEnrollmentConflict
}

// missFirstGetCertificates hides the certificate on the first pair lookup.
type missFirstGetCertificates struct {
	*memory.CertificateRepository
	once sync.Once
}

func (r *missFirstGetCertificates) GetByLearnerCourse(ctx context.Context, learnerID, courseID string) (*certificate.Certificate, error) {
	missed := false
	r.once.Do(func() { missed = true })
	if missed {
		return nil, shared.ErrCertificateNotFound
	}
	return r.CertificateRepository.GetByLearnerCourse(ctx, learnerID, courseID)
}
