// Package jobs contains the periodic jobs run by the scheduler.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/certiva/certiva-engine/internal/application/saga"
	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// ReconcileCertificatesJobName is the scheduler name of the job.
const ReconcileCertificatesJobName = "reconcile_certificates"

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE CERTIFICATES JOB
// CourseCompleted events are best effort. This job finds completed enrollments
// that still have no certificate and issues them through the certification
// saga, so a lost event delays a certificate instead of losing it.
// ══════════════════════════════════════════════════════════════════════════════

// Certifier runs the certification saga. *saga.CertificationSaga satisfies it.
type Certifier interface {
	Execute(ctx context.Context, event shared.CourseCompletedEvent) (*saga.CertificationResult, error)
}

// ReconcileCertificatesConfig configures the job.
type ReconcileCertificatesConfig struct {
	// Grace skips enrollments completed less than Grace ago, leaving them
	// to the event-driven path.
	Grace time.Duration

	// BatchSize bounds the enrollments handled per run.
	BatchSize int
}

// DefaultReconcileCertificatesConfig returns the default configuration.
func DefaultReconcileCertificatesConfig() ReconcileCertificatesConfig {
	return ReconcileCertificatesConfig{
		Grace:     time.Minute,
		BatchSize: 100,
	}
}

// ReconcileStats summarizes the latest run.
type ReconcileStats struct {
	Found         int
	Issued        int
	AlreadyIssued int
	Failed        int
	RunAt         time.Time
	Duration      time.Duration
}

// ReconcileCertificatesJob issues certificates missed by the event path.
type ReconcileCertificatesJob struct {
	finder    enrollment.UncertifiedFinder
	certifier Certifier
	config    ReconcileCertificatesConfig
	log       *logger.Logger
	now       func() time.Time

	mu        sync.Mutex
	lastStats ReconcileStats
}

// NewReconcileCertificatesJob creates the job.
func NewReconcileCertificatesJob(
	finder enrollment.UncertifiedFinder,
	certifier Certifier,
	log *logger.Logger,
	config ReconcileCertificatesConfig,
) *ReconcileCertificatesJob {
	defaults := DefaultReconcileCertificatesConfig()
	if config.Grace < 0 {
		config.Grace = defaults.Grace
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ReconcileCertificatesJob{
		finder:    finder,
		certifier: certifier,
		config:    config,
		log:       log.With(logger.Component(ReconcileCertificatesJobName)),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Name implements scheduler.Job.
func (j *ReconcileCertificatesJob) Name() string {
	return ReconcileCertificatesJobName
}

// Description implements scheduler.Job.
func (j *ReconcileCertificatesJob) Description() string {
	return "Issues certificates for completed enrollments that have none"
}

// Run implements scheduler.Job. Failures for individual enrollments do not
// stop the batch; they are joined into the returned error.
func (j *ReconcileCertificatesJob) Run(ctx context.Context) error {
	_, err := j.Reconcile(ctx)
	return err
}

// Reconcile runs one batch and returns its statistics.
func (j *ReconcileCertificatesJob) Reconcile(ctx context.Context) (ReconcileStats, error) {
	startedAt := j.now()
	stats := ReconcileStats{RunAt: startedAt}

	pending, err := j.finder.ListUncertified(ctx, startedAt.Add(-j.config.Grace), j.config.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("list uncertified enrollments: %w", err)
	}
	stats.Found = len(pending)

	var errs []error
	for _, e := range pending {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		event := shared.NewCourseCompletedEvent(e.LearnerID, e.CourseID, e.CertificateScore(), *e.CompletedAt)
		res, err := j.certifier.Execute(ctx, event)
		switch {
		case err != nil:
			stats.Failed++
			errs = append(errs, err)
		case res.Issued:
			stats.Issued++
		default:
			stats.AlreadyIssued++
		}
	}

	stats.Duration = time.Since(startedAt)
	j.mu.Lock()
	j.lastStats = stats
	j.mu.Unlock()

	if stats.Found > 0 {
		j.log.Info("reconciliation finished",
			logger.Int("found", stats.Found),
			logger.Int("issued", stats.Issued),
			logger.Int("already_issued", stats.AlreadyIssued),
			logger.Int("failed", stats.Failed),
			logger.Latency(stats.Duration),
		)
	}

	return stats, errors.Join(errs...)
}

// LastStats returns the statistics of the latest run.
func (j *ReconcileCertificatesJob) LastStats() ReconcileStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastStats
}
