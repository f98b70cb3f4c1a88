package certificate

import "context"

// Repository persists certificates. The store enforces two independent
// uniqueness constraints: one certificate per (learner, course), and a
// globally unique verification id.
type Repository interface {
	// Create inserts c.
	// Returns shared.ErrCertificateExists when the pair already has a certificate,
	// shared.ErrVerificationIDCollision when the verification id is taken.
	Create(ctx context.Context, c *Certificate) error

	// GetByLearnerCourse returns shared.ErrCertificateNotFound if absent.
	GetByLearnerCourse(ctx context.Context, learnerID, courseID string) (*Certificate, error)

	// GetByVerificationID returns shared.ErrCertificateNotFound if absent.
	GetByVerificationID(ctx context.Context, verificationID string) (*Certificate, error)

	// ListByLearner returns a learner's certificates, newest first.
	ListByLearner(ctx context.Context, learnerID string) ([]*Certificate, error)
}

// Renderer turns a certificate record into a downloadable document.
type Renderer interface {
	Render(ctx context.Context, rec Record) ([]byte, error)

	// ContentType is the MIME type of rendered documents.
	ContentType() string

	// Extension is the file extension including the dot.
	Extension() string
}
