package postgres

// Constraint names the repositories translate into domain errors.
const (
	constraintEnrollmentPair      = "enrollments_pkey"
	constraintCertificatePair     = "certificates_learner_course_key"
	constraintCertificateVerifyID = "certificates_verification_id_key"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One row per (learner, course); never deleted.
CREATE TABLE IF NOT EXISTS enrollments (
    learner_id VARCHAR(128) NOT NULL,
    course_id VARCHAR(128) NOT NULL,
    progress SMALLINT NOT NULL DEFAULT 0,
    completed_at TIMESTAMP WITH TIME ZONE,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_score SMALLINT,
    passing_score SMALLINT,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT enrollments_pkey PRIMARY KEY (learner_id, course_id),
    CONSTRAINT valid_progress CHECK (progress BETWEEN 0 AND 100),
    CONSTRAINT valid_last_score CHECK (last_score IS NULL OR last_score BETWEEN 0 AND 100),
    CONSTRAINT valid_passing_score CHECK (passing_score IS NULL OR passing_score BETWEEN 0 AND 100),
    CONSTRAINT completed_means_full CHECK (completed_at IS NULL OR progress = 100)
);

CREATE INDEX IF NOT EXISTS idx_enrollments_learner ON enrollments(learner_id, created_at);
`

const migration001Down = `
DROP TABLE IF EXISTS enrollments;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE CERTIFICATES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Append-only; two independent uniqueness constraints.
CREATE TABLE IF NOT EXISTS certificates (
    id UUID NOT NULL,
    verification_id VARCHAR(64) NOT NULL,
    learner_id VARCHAR(128) NOT NULL,
    course_id VARCHAR(128) NOT NULL,
    score SMALLINT NOT NULL,
    issued_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT certificates_pkey PRIMARY KEY (id),
    CONSTRAINT certificates_verification_id_key UNIQUE (verification_id),
    CONSTRAINT certificates_learner_course_key UNIQUE (learner_id, course_id),
    CONSTRAINT certificates_enrollment_fkey FOREIGN KEY (learner_id, course_id)
        REFERENCES enrollments(learner_id, course_id),
    CONSTRAINT valid_score CHECK (score BETWEEN 0 AND 100)
);

CREATE INDEX IF NOT EXISTS idx_certificates_learner ON certificates(learner_id, issued_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS certificates;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE COURSE POLICIES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS course_policies (
    course_id VARCHAR(128) PRIMARY KEY,
    pass_threshold SMALLINT NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_pass_threshold CHECK (pass_threshold BETWEEN 0 AND 100)
);
`

const migration003Down = `
DROP TABLE IF EXISTS course_policies;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: INDEX COMPLETED ENROLLMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
CREATE INDEX IF NOT EXISTS idx_enrollments_completed
    ON enrollments(completed_at)
    WHERE completed_at IS NOT NULL;
`

const migration004Down = `
DROP INDEX IF EXISTS idx_enrollments_completed;
`
