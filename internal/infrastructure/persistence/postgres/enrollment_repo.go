package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// EnrollmentRepository implements enrollment.Repository for PostgreSQL.
type EnrollmentRepository struct {
	conn *Connection
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(conn *Connection) *EnrollmentRepository {
	return &EnrollmentRepository{conn: conn}
}

const enrollmentColumns = `
	learner_id, course_id, progress, completed_at, attempts,
	last_score, passing_score, version, created_at, updated_at
`

// Create implements enrollment.Repository.
func (r *EnrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	query := `
		INSERT INTO enrollments (` + enrollmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if e.Version == 0 {
		e.Version = 1
	}

	_, err := r.conn.Exec(ctx, query,
		e.LearnerID,
		e.CourseID,
		e.Progress,
		e.CompletedAt,
		e.Attempts,
		e.LastScore,
		e.PassingScore,
		e.Version,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		if ViolatedConstraint(err) == constraintEnrollmentPair {
			return shared.ErrEnrollmentExists
		}
		return shared.StoreUnavailable("CreateEnrollment", err)
	}
	return nil
}

// Get implements enrollment.Repository.
func (r *EnrollmentRepository) Get(ctx context.Context, learnerID, courseID string) (*enrollment.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE learner_id = $1 AND course_id = $2`

	e, err := scanEnrollment(r.conn.QueryRow(ctx, query, learnerID, courseID))
	if IsNoRows(err) {
		return nil, shared.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, shared.StoreUnavailable("GetEnrollment", err)
	}
	return e, nil
}

// ListByLearner implements enrollment.Repository.
func (r *EnrollmentRepository) ListByLearner(ctx context.Context, learnerID string) ([]*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE learner_id = $1
		ORDER BY created_at, course_id
	`

	rows, err := r.conn.Query(ctx, query, learnerID)
	if err != nil {
		return nil, shared.StoreUnavailable("ListEnrollments", err)
	}
	defer rows.Close()

	out := make([]*enrollment.Enrollment, 0)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, shared.StoreUnavailable("ListEnrollments", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreUnavailable("ListEnrollments", err)
	}
	return out, nil
}

// ListUncertified implements enrollment.UncertifiedFinder.
func (r *EnrollmentRepository) ListUncertified(ctx context.Context, completedBefore time.Time, limit int) ([]*enrollment.Enrollment, error) {
	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE completed_at IS NOT NULL
		  AND completed_at < $1
		  AND NOT EXISTS (
			SELECT 1 FROM certificates c
			WHERE c.learner_id = enrollments.learner_id
			  AND c.course_id = enrollments.course_id
		  )
		ORDER BY completed_at
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, completedBefore, limit)
	if err != nil {
		return nil, shared.StoreUnavailable("ListUncertified", err)
	}
	defer rows.Close()

	out := make([]*enrollment.Enrollment, 0)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, shared.StoreUnavailable("ListUncertified", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreUnavailable("ListUncertified", err)
	}
	return out, nil
}

// UpdateProgress implements enrollment.Repository. The WHERE clause on
// version makes the update a compare-and-swap.
func (r *EnrollmentRepository) UpdateProgress(ctx context.Context, e *enrollment.Enrollment, expectedVersion int64) error {
	query := `
		UPDATE enrollments SET
			progress = $1,
			completed_at = $2,
			attempts = $3,
			last_score = $4,
			passing_score = $5,
			updated_at = $6,
			version = version + 1
		WHERE learner_id = $7 AND course_id = $8 AND version = $9
	`

	result, err := r.conn.Exec(ctx, query,
		e.Progress,
		e.CompletedAt,
		e.Attempts,
		e.LastScore,
		e.PassingScore,
		e.UpdatedAt,
		e.LearnerID,
		e.CourseID,
		expectedVersion,
	)
	if err != nil {
		return shared.StoreUnavailable("UpdateProgress", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrEnrollmentConflict
	}

	e.Version = expectedVersion + 1
	return nil
}

func scanEnrollment(row pgx.Row) (*enrollment.Enrollment, error) {
	var (
		e            enrollment.Enrollment
		lastScore    *int16
		passingScore *int16
		progress     int16
	)

	err := row.Scan(
		&e.LearnerID,
		&e.CourseID,
		&progress,
		&e.CompletedAt,
		&e.Attempts,
		&lastScore,
		&passingScore,
		&e.Version,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Progress = int(progress)
	e.LastScore = widen(lastScore)
	e.PassingScore = widen(passingScore)
	return &e, nil
}

func widen(v *int16) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
