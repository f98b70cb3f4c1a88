package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certiva/certiva-engine/internal/application/command"
	"github.com/certiva/certiva-engine/internal/application/saga"
	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/internal/infrastructure/persistence/memory"
	"github.com/certiva/certiva-engine/internal/infrastructure/scheduler"
	"github.com/certiva/certiva-engine/pkg/logger"
)

type fixture struct {
	enrollments *memory.EnrollmentRepository
	certs       *memory.CertificateRepository
	generate    *command.GenerateCertificateHandler
	saga        *saga.CertificationSaga
}

func newFixture() *fixture {
	f := &fixture{
		enrollments: memory.NewEnrollmentRepository(),
		certs:       memory.NewCertificateRepository(),
	}
	f.generate = command.NewGenerateCertificateHandler(f.enrollments, f.certs, shared.NopPublisher{}, nil, command.GenerateCertificateHandlerConfig{})
	f.saga = saga.NewCertificationSaga(f.generate, nil, saga.DefaultCertificationConfig())
	return f
}

func (f *fixture) complete(t *testing.T, learnerID, courseID string, score int, at time.Time) {
	t.Helper()
	ctx := context.Background()
	e, err := enrollment.New(learnerID, courseID, at)
	require.NoError(t, err)
	require.NoError(t, f.enrollments.Create(ctx, e))
	next, _, err := e.Apply(score, 70, at)
	require.NoError(t, err)
	require.NoError(t, f.enrollments.UpdateProgress(ctx, next, e.Version))
}

func TestReconcileCertificatesJob_IssuesMissedCertificates(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	now := time.Now().UTC()

	f.complete(t, "learner-1", "go-101", 88, now.Add(-10*time.Minute))
	f.complete(t, "learner-2", "go-101", 95, now.Add(-5*time.Minute))
	f.complete(t, "learner-3", "go-101", 90, now)

	job := NewReconcileCertificatesJob(
		memory.NewUncertifiedFinder(f.enrollments, f.certs),
		f.saga,
		logger.Nop(),
		ReconcileCertificatesConfig{Grace: time.Minute, BatchSize: 10},
	)

	stats, err := job.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Found)
	assert.Equal(t, 2, stats.Issued)
	assert.Equal(t, stats, job.LastStats())

	cert, err := f.certs.GetByLearnerCourse(ctx, "learner-1", "go-101")
	require.NoError(t, err)
	assert.Equal(t, 88, cert.Score)

	_, err = f.certs.GetByLearnerCourse(ctx, "learner-3", "go-101")
	assert.ErrorIs(t, err, shared.ErrCertificateNotFound, "completions inside the grace period are left to events")

	again, err := job.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Found)
}

func TestReconcileCertificatesJob_RespectsBatchSize(t *testing.T) {
	f := newFixture()
	past := time.Now().UTC().Add(-time.Hour)
	for _, id := range []string{"a", "b", "c"} {
		f.complete(t, "learner-"+id, "go-101", 80, past)
	}

	job := NewReconcileCertificatesJob(memory.NewUncertifiedFinder(f.enrollments, f.certs), f.saga, nil,
		ReconcileCertificatesConfig{BatchSize: 2})

	stats, err := job.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Found)
	assert.Equal(t, 2, f.certs.Len())
}

type failingCertifier struct{ calls int }

func (c *failingCertifier) Execute(context.Context, shared.CourseCompletedEvent) (*saga.CertificationResult, error) {
	c.calls++
	return nil, shared.StoreUnavailable("certificate.Create", errors.New("down"))
}

func TestReconcileCertificatesJob_ContinuesPastFailures(t *testing.T) {
	f := newFixture()
	past := time.Now().UTC().Add(-time.Hour)
	f.complete(t, "learner-1", "go-101", 80, past)
	f.complete(t, "learner-2", "go-101", 80, past)

	certifier := &failingCertifier{}
	job := NewReconcileCertificatesJob(memory.NewUncertifiedFinder(f.enrollments, f.certs), certifier, nil,
		DefaultReconcileCertificatesConfig())

	stats, err := job.Reconcile(context.Background())
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
	assert.Equal(t, 2, certifier.calls)
	assert.Equal(t, 2, stats.Failed)
}

func TestReconcileCertificatesJob_RunsUnderScheduler(t *testing.T) {
	f := newFixture()
	f.complete(t, "learner-1", "go-101", 80, time.Now().UTC().Add(-time.Hour))

	job := NewReconcileCertificatesJob(memory.NewUncertifiedFinder(f.enrollments, f.certs), f.saga, nil,
		DefaultReconcileCertificatesConfig())

	s := scheduler.NewScheduler(scheduler.SchedulerConfig{Logger: logger.Nop()})
	require.NoError(t, s.Register(job, scheduler.NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), ReconcileCertificatesJobName)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, f.certs.Len())
}
