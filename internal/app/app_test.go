package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certiva/certiva-engine/config"
	"github.com/certiva/certiva-engine/internal/application/command"
	"github.com/certiva/certiva-engine/internal/application/query"
	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/internal/infrastructure/scheduler/jobs"
	"github.com/certiva/certiva-engine/pkg/logger"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_DRIVER", config.StorageMemory)
	t.Setenv("REDIS_DISABLED", "true")

	cfg, err := config.LoadFrom("")
	require.NoError(t, err)
	return cfg
}

func TestNew_MemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(t), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	require.NotNil(t, a.Bus)
	require.NotNil(t, a.Renderer)

	enrolled, err := a.Enroll.Handle(ctx, command.EnrollCommand{LearnerID: "learner-1", CourseID: "go-101"})
	require.NoError(t, err)
	assert.True(t, enrolled.Created)

	submitted, err := a.Submit.Handle(ctx, command.SubmitAssessmentCommand{LearnerID: "learner-1", CourseID: "go-101", Score: 90})
	require.NoError(t, err)
	assert.Equal(t, enrollment.StageCompleted, submitted.Enrollment.Stage())

	// The certification saga may have issued it already; either way there is one certificate.
	issued, err := a.Generate.Handle(ctx, command.GenerateCertificateCommand{LearnerID: "learner-1", CourseID: "go-101"})
	require.NoError(t, err)
	assert.Equal(t, 90, issued.Certificate.Score)

	verified, err := a.Verify.Handle(ctx, query.VerifyCertificateQuery{VerificationID: issued.Certificate.VerificationID})
	require.NoError(t, err)
	assert.True(t, verified.Valid)

	rendered, err := a.Render.Handle(ctx, query.RenderCertificateQuery{
		VerificationID: issued.Certificate.VerificationID,
		RequesterID:    "learner-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "image/png", rendered.ContentType)
	assert.NotEmpty(t, rendered.Data)
}

func TestNew_PolicyFileAndOverrides(t *testing.T) {
	cfg := memoryConfig(t)

	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
courses:
  - course_id: hard-101
    pass_threshold: 95
`), 0o600))
	cfg.Certificates.PoliciesFile = path

	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	threshold, err := a.Thresholds.PassThreshold(ctx, "hard-101")
	require.NoError(t, err)
	assert.Equal(t, 95, threshold)

	threshold, err = a.Thresholds.PassThreshold(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 70, threshold)

	_, err = a.UpsertPolicy.Handle(ctx, command.UpsertCoursePolicyCommand{CourseID: "hard-101", PassThreshold: 60})
	require.NoError(t, err)

	threshold, err = a.Thresholds.PassThreshold(ctx, "hard-101")
	require.NoError(t, err)
	assert.Equal(t, 60, threshold, "stored policies win over the file")
}

func TestNew_MissingPolicyFile(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Certificates.PoliciesFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNew_FeaturesOff(t *testing.T) {
	cfg := memoryConfig(t)
	require.NoError(t, cfg.Features.DisableFeature(config.FeatureCertificateEvents))
	require.NoError(t, cfg.Features.DisableFeature(config.FeatureCertificateRendering))

	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Nil(t, a.Bus)
	assert.IsType(t, shared.NopPublisher{}, a.Publisher)
	assert.Nil(t, a.Renderer)

	_, err = a.Render.Handle(ctx, query.RenderCertificateQuery{VerificationID: "x", RequesterID: "learner-1"})
	assert.ErrorIs(t, err, shared.ErrRenderingDisabled)
}

func TestNew_AutoIssueOnCompletion(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Redis.Disabled = true

	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	_, err = a.Enroll.Handle(ctx, command.EnrollCommand{LearnerID: "learner-2", CourseID: "go-101"})
	require.NoError(t, err)
	_, err = a.Submit.Handle(ctx, command.SubmitAssessmentCommand{LearnerID: "learner-2", CourseID: "go-101", Score: 75})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		certs, err := a.ListCertificates.Handle(ctx, query.ListCertificatesQuery{LearnerID: "learner-2"})
		return err == nil && len(certs) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthChecker_MemoryDriver(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	status := a.HealthChecker().Check(context.Background())
	assert.True(t, status.Ready)
}

func TestNew_ReconcilerRecoversLostEvents(t *testing.T) {
	cfg := memoryConfig(t)
	require.NoError(t, cfg.Features.DisableFeature(config.FeatureAutoIssue))
	cfg.Reconcile.Grace = 0

	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	require.NotNil(t, a.Scheduler)

	_, err = a.Enroll.Handle(ctx, command.EnrollCommand{LearnerID: "learner-3", CourseID: "go-101"})
	require.NoError(t, err)
	_, err = a.Submit.Handle(ctx, command.SubmitAssessmentCommand{LearnerID: "learner-3", CourseID: "go-101", Score: 80})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	result, err := a.Scheduler.RunNow(ctx, jobs.ReconcileCertificatesJobName)
	require.NoError(t, err)
	assert.True(t, result.Success)

	certs, err := a.ListCertificates.Handle(ctx, query.ListCertificatesQuery{LearnerID: "learner-3"})
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, 80, certs[0].Score)
}

func TestNew_ReconcileDisabled(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Reconcile.Enabled = false

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Nil(t, a.Scheduler)
	assert.NotNil(t, a.Reconciler)
}

func TestNew_InvalidReconcileSchedule(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Reconcile.Schedule = "whenever"

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}
