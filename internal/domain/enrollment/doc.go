// Package enrollment holds the per-learner, per-course progress record and
// the assessment transition rule.
//
// # Lifecycle
//
//	UNENROLLED → ENROLLED(0) → IN_PROGRESS(50..99) → COMPLETED(100)
//
// Transitions are one-directional. Progress never decreases and CompletedAt,
// once set, is never cleared:
//
//	e, _ := enrollment.New("learner-1", "go-101", time.Now())
//	next, out, err := e.Apply(85, 70, time.Now())
//	// next.Progress == 100, out.JustCompleted == true
//
// # Concurrency
//
// Apply is pure. Callers persist the result with Repository.UpdateProgress,
// passing the version they read; on shared.ErrEnrollmentConflict they
// re-read and apply again.
package enrollment
