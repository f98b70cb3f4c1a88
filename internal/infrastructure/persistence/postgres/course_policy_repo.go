package postgres

import (
	"context"

	"github.com/certiva/certiva-engine/internal/domain/course"
	"github.com/certiva/certiva-engine/internal/domain/shared"
)

// CoursePolicyRepository implements course.PolicyRepository for PostgreSQL.
type CoursePolicyRepository struct {
	conn *Connection
}

// NewCoursePolicyRepository creates a new CoursePolicyRepository.
func NewCoursePolicyRepository(conn *Connection) *CoursePolicyRepository {
	return &CoursePolicyRepository{conn: conn}
}

// Get implements course.PolicyRepository.
func (r *CoursePolicyRepository) Get(ctx context.Context, courseID string) (*course.Policy, error) {
	query := `SELECT course_id, pass_threshold, updated_at FROM course_policies WHERE course_id = $1`

	var (
		p         course.Policy
		threshold int16
	)
	err := r.conn.QueryRow(ctx, query, courseID).Scan(&p.CourseID, &threshold, &p.UpdatedAt)
	if IsNoRows(err) {
		return nil, course.ErrPolicyNotFound
	}
	if err != nil {
		return nil, shared.StoreUnavailable("GetCoursePolicy", err)
	}
	p.PassThreshold = int(threshold)
	return &p, nil
}

// Upsert implements course.PolicyRepository.
func (r *CoursePolicyRepository) Upsert(ctx context.Context, p *course.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO course_policies (course_id, pass_threshold, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (course_id) DO UPDATE SET
			pass_threshold = EXCLUDED.pass_threshold,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.conn.Exec(ctx, query, p.CourseID, p.PassThreshold, p.UpdatedAt); err != nil {
		return shared.StoreUnavailable("UpsertCoursePolicy", err)
	}
	return nil
}

// List implements course.PolicyRepository.
func (r *CoursePolicyRepository) List(ctx context.Context) ([]*course.Policy, error) {
	query := `SELECT course_id, pass_threshold, updated_at FROM course_policies ORDER BY course_id`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, shared.StoreUnavailable("ListCoursePolicies", err)
	}
	defer rows.Close()

	out := make([]*course.Policy, 0)
	for rows.Next() {
		var (
			p         course.Policy
			threshold int16
		)
		if err := rows.Scan(&p.CourseID, &threshold, &p.UpdatedAt); err != nil {
			return nil, shared.StoreUnavailable("ListCoursePolicies", err)
		}
		p.PassThreshold = int(threshold)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreUnavailable("ListCoursePolicies", err)
	}
	return out, nil
}
