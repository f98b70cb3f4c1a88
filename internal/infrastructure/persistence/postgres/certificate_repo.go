package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CERTIFICATE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CertificateRepository implements certificate.Repository for PostgreSQL.
// Rows are insert-only.
type CertificateRepository struct {
	conn *Connection
}

// NewCertificateRepository creates a new CertificateRepository.
func NewCertificateRepository(conn *Connection) *CertificateRepository {
	return &CertificateRepository{conn: conn}
}

const certificateColumns = `id, verification_id, learner_id, course_id, score, issued_at`

// Create implements certificate.Repository. The two unique constraints are
// reported separately so the issuer can tell a lost race from an id collision.
func (r *CertificateRepository) Create(ctx context.Context, c *certificate.Certificate) error {
	query := `
		INSERT INTO certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.conn.Exec(ctx, query,
		c.ID,
		c.VerificationID,
		c.LearnerID,
		c.CourseID,
		c.Score,
		c.IssuedAt,
	)
	if err != nil {
		switch ViolatedConstraint(err) {
		case constraintCertificatePair:
			return shared.ErrCertificateExists
		case constraintCertificateVerifyID:
			return shared.ErrVerificationIDCollision
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrEnrollmentNotFound
		}
		return shared.StoreUnavailable("CreateCertificate", err)
	}
	return nil
}

// GetByLearnerCourse implements certificate.Repository.
func (r *CertificateRepository) GetByLearnerCourse(ctx context.Context, learnerID, courseID string) (*certificate.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE learner_id = $1 AND course_id = $2`
	return r.getOne(ctx, "GetCertificate", query, learnerID, courseID)
}

// GetByVerificationID implements certificate.Repository.
func (r *CertificateRepository) GetByVerificationID(ctx context.Context, verificationID string) (*certificate.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE verification_id = $1`
	return r.getOne(ctx, "VerifyCertificate", query, verificationID)
}

// ListByLearner implements certificate.Repository.
func (r *CertificateRepository) ListByLearner(ctx context.Context, learnerID string) ([]*certificate.Certificate, error) {
	query := `
		SELECT ` + certificateColumns + `
		FROM certificates
		WHERE learner_id = $1
		ORDER BY issued_at DESC, course_id
	`

	rows, err := r.conn.Query(ctx, query, learnerID)
	if err != nil {
		return nil, shared.StoreUnavailable("ListCertificates", err)
	}
	defer rows.Close()

	out := make([]*certificate.Certificate, 0)
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, shared.StoreUnavailable("ListCertificates", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StoreUnavailable("ListCertificates", err)
	}
	return out, nil
}

func (r *CertificateRepository) getOne(ctx context.Context, op, query string, args ...interface{}) (*certificate.Certificate, error) {
	c, err := scanCertificate(r.conn.QueryRow(ctx, query, args...))
	if IsNoRows(err) {
		return nil, shared.ErrCertificateNotFound
	}
	if err != nil {
		return nil, shared.StoreUnavailable(op, err)
	}
	return c, nil
}

func scanCertificate(row pgx.Row) (*certificate.Certificate, error) {
	var (
		c     certificate.Certificate
		score int16
	)
	if err := row.Scan(&c.ID, &c.VerificationID, &c.LearnerID, &c.CourseID, &score, &c.IssuedAt); err != nil {
		return nil, err
	}
	c.Score = int(score)
	c.IssuedAt = c.IssuedAt.UTC()
	return &c, nil
}
