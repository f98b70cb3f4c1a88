package enrollment

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository persists enrollments. The store is the single source of truth
// for uniqueness and serialization of updates.
type Repository interface {
	// Create inserts e if no enrollment exists for its pair.
	// Returns shared.ErrEnrollmentExists when the pair is taken.
	Create(ctx context.Context, e *Enrollment) error

	// Get returns the enrollment for the pair.
	// Returns shared.ErrEnrollmentNotFound if absent.
	Get(ctx context.Context, learnerID, courseID string) (*Enrollment, error)

	// ListByLearner returns every enrollment of a learner, oldest first.
	ListByLearner(ctx context.Context, learnerID string) ([]*Enrollment, error)

	// UpdateProgress stores e only if the stored version still equals
	// expectedVersion, then sets e.Version to expectedVersion+1.
	// Returns shared.ErrEnrollmentConflict when the version moved.
	UpdateProgress(ctx context.Context, e *Enrollment, expectedVersion int64) error
}

// UncertifiedFinder finds completed enrollments that have no certificate yet.
// Reconciliation uses it to recover from lost CourseCompleted events.
type UncertifiedFinder interface {
	// ListUncertified returns up to limit completed enrollments whose
	// CompletedAt is before completedBefore and that have no certificate,
	// oldest completion first.
	ListUncertified(ctx context.Context, completedBefore time.Time, limit int) ([]*Enrollment, error)
}
