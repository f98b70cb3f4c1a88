package enrollment

import (
	"strings"
	"time"

	"github.com/certiva/certiva-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSTANTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MinScore and MaxScore bound an assessment score.
	MinScore = 0
	MaxScore = 100

	// ProgressComplete is the progress value of a completed course.
	ProgressComplete = 100

	// PartialCreditFloor is the progress granted by a failed attempt.
	PartialCreditFloor = 50

	// MaxIDLength bounds learner and course identifiers.
	MaxIDLength = 128
)

// ══════════════════════════════════════════════════════════════════════════════
// STAGE
// ══════════════════════════════════════════════════════════════════════════════

// Stage is the lifecycle position of an enrollment.
// CERTIFIED is tracked by the certificate registry, not here.
type Stage string

const (
	StageEnrolled   Stage = "enrolled"
	StageInProgress Stage = "in_progress"
	StageCompleted  Stage = "completed"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: ENROLLMENT
// ══════════════════════════════════════════════════════════════════════════════

// Enrollment is the per-learner, per-course progress record.
type Enrollment struct {
	LearnerID string
	CourseID  string

	// Progress is in [0,100] and never decreases.
	Progress int

	// CompletedAt is set the first time Progress reaches 100 and never cleared.
	CompletedAt *time.Time

	// Attempts counts accepted assessment submissions.
	Attempts int

	// LastScore is the most recent submitted score.
	LastScore *int

	// PassingScore is the most recent score that met the pass threshold.
	// It becomes the certificate score.
	PassingScore *int

	// Version is bumped on every successful update and used for
	// compare-and-swap at the store.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a fresh enrollment with zero progress.
func New(learnerID, courseID string, now time.Time) (*Enrollment, error) {
	if err := ValidateKey(learnerID, courseID); err != nil {
		return nil, err
	}
	return &Enrollment{
		LearnerID: learnerID,
		CourseID:  courseID,
		Progress:  0,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateKey checks the composite identity of an enrollment.
func ValidateKey(learnerID, courseID string) error {
	if !validID(learnerID) {
		return shared.ErrInvalidLearnerID
	}
	if !validID(courseID) {
		return shared.ErrInvalidCourseID
	}
	return nil
}

// ValidateLearnerID checks a learner identifier on its own.
func ValidateLearnerID(learnerID string) error {
	if !validID(learnerID) {
		return shared.ErrInvalidLearnerID
	}
	return nil
}

func validID(id string) bool {
	return strings.TrimSpace(id) != "" && len(id) <= MaxIDLength
}

// ValidateScore checks that score is in [0,100].
func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return shared.ErrInvalidScore
	}
	return nil
}

// IsCompleted reports whether the course has been completed.
func (e *Enrollment) IsCompleted() bool {
	return e.Progress >= ProgressComplete
}

// Stage derives the lifecycle stage from progress.
func (e *Enrollment) Stage() Stage {
	switch {
	case e.Progress >= ProgressComplete:
		return StageCompleted
	case e.Progress > 0:
		return StageInProgress
	default:
		return StageEnrolled
	}
}

// CertificateScore returns the score a certificate for this enrollment carries.
func (e *Enrollment) CertificateScore() int {
	if e.PassingScore != nil {
		return *e.PassingScore
	}
	if e.LastScore != nil {
		return *e.LastScore
	}
	return 0
}

// Clone returns a deep copy.
func (e *Enrollment) Clone() *Enrollment {
	cp := *e
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		cp.CompletedAt = &t
	}
	if e.LastScore != nil {
		s := *e.LastScore
		cp.LastScore = &s
	}
	if e.PassingScore != nil {
		s := *e.PassingScore
		cp.PassingScore = &s
	}
	return &cp
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION
// ══════════════════════════════════════════════════════════════════════════════

// Outcome describes what a single submission changed.
type Outcome struct {
	Score       int
	Threshold   int
	Passed      bool
	OldProgress int
	NewProgress int

	// JustCompleted is true only for the submission that set CompletedAt.
	JustCompleted bool
}

// Apply computes the enrollment that results from submitting score against
// threshold. The receiver is not modified; the returned copy still carries
// the receiver's Version so it can be used as the CAS expectation.
//
// A passing score moves progress to 100 and stamps CompletedAt if unset.
// A failing score grants partial credit up to the floor and never lowers
// progress already earned.
func (e *Enrollment) Apply(score, threshold int, now time.Time) (*Enrollment, Outcome, error) {
	if err := ValidateScore(score); err != nil {
		return nil, Outcome{}, err
	}

	next := e.Clone()
	out := Outcome{
		Score:       score,
		Threshold:   threshold,
		Passed:      score >= threshold,
		OldProgress: e.Progress,
	}

	if out.Passed {
		next.Progress = ProgressComplete
		if next.CompletedAt == nil {
			at := now
			next.CompletedAt = &at
			out.JustCompleted = true
		}
		s := score
		next.PassingScore = &s
	} else {
		next.Progress = max(next.Progress, PartialCreditFloor)
	}

	s := score
	next.LastScore = &s
	next.Attempts++
	next.UpdatedAt = now
	out.NewProgress = next.Progress

	return next, out, nil
}
