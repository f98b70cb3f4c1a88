// Package shared contains common domain types, errors and events used across
// the enrollment, course and certificate packages. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds. Concrete domain errors wrap one of these so callers can
// branch with errors.Is without knowing the concrete value.
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Infrastructure errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrExhausted          = errors.New("retries exhausted")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "enrollment", "certificate"
	Op      string // Operation that failed, e.g., "SubmitAssessment"
	Kind    error  // Base error type for errors.Is() checking
	Code    string // Stable machine-checkable code
	Message string // Human-readable message, safe to show to callers
	Err     error  // Underlying error (optional, never shown to callers)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching. A DomainError matches its Kind, its
// wrapped cause, and the sentinel it was derived from via Wrap or WithOp.
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok && other.Err == nil &&
		other.Domain == e.Domain && other.Code == e.Code && other.Message == e.Message {
		return true
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// Wrap returns a copy of e carrying cause as its underlying error.
func (e *DomainError) Wrap(cause error) *DomainError {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithOp returns a copy of e with a different operation name.
func (e *DomainError) WithOp(op string) *DomainError {
	cp := *e
	cp.Op = op
	return &cp
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, code, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, code, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Stable error codes exposed to callers.
const (
	CodeNotEnrolled      = "not_enrolled"
	CodeInvalidScore     = "invalid_score"
	CodeNotCompleted     = "not_completed"
	CodeIssuanceFailed   = "issuance_failed"
	CodeStoreUnavailable = "store_unavailable"
	CodeNotFound         = "not_found"
	CodeInvalidInput     = "invalid_input"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)

// Lifecycle errors
var (
	ErrNotEnrolled    = NewDomainError("enrollment", "SubmitAssessment", ErrNotFound, CodeNotEnrolled, "learner is not enrolled in this course")
	ErrInvalidScore   = NewDomainError("enrollment", "SubmitAssessment", ErrValueOutOfRange, CodeInvalidScore, "score must be between 0 and 100")
	ErrNotCompleted   = NewDomainError("certificate", "Generate", ErrInvalidState, CodeNotCompleted, "course is not completed yet")
	ErrIssuanceFailed = NewDomainError("certificate", "Generate", ErrExhausted, CodeIssuanceFailed, "could not allocate a verification identifier, try again")

	ErrStoreUnavailable = NewDomainError("store", "Access", ErrServiceUnavailable, CodeStoreUnavailable, "storage is temporarily unavailable")

	ErrInvalidLearnerID = NewDomainError("enrollment", "Validate", ErrInvalidID, CodeInvalidInput, "learner id is required")
	ErrInvalidCourseID  = NewDomainError("enrollment", "Validate", ErrInvalidID, CodeInvalidInput, "course id is required")
)

// Store-level conflicts. These never reach callers of the lifecycle
// operations; handlers turn them into the idempotent read path.
var (
	ErrEnrollmentExists        = NewDomainError("enrollment", "Create", ErrAlreadyExists, CodeInternal, "enrollment already exists")
	ErrEnrollmentConflict      = NewDomainError("enrollment", "UpdateProgress", ErrConcurrentModification, CodeInternal, "enrollment was modified concurrently")
	ErrCertificateExists       = NewDomainError("certificate", "Create", ErrAlreadyExists, CodeInternal, "certificate already exists for learner and course")
	ErrVerificationIDCollision = NewDomainError("certificate", "Create", ErrAlreadyExists, CodeInternal, "verification id already taken")
)

// Lookup errors
var (
	ErrEnrollmentNotFound  = NewDomainError("enrollment", "Find", ErrNotFound, CodeNotFound, "enrollment not found")
	ErrCertificateNotFound = NewDomainError("certificate", "Find", ErrNotFound, CodeNotFound, "certificate not found")
	ErrCoursePolicyInvalid = NewDomainError("course", "Validate", ErrValueOutOfRange, CodeInvalidInput, "pass threshold must be between 0 and 100")
	ErrNotCertificateOwner = NewDomainError("certificate", "Render", ErrForbidden, CodeForbidden, "certificate belongs to another learner")
	ErrRenderingDisabled   = NewDomainError("certificate", "Render", ErrServiceUnavailable, CodeUnavailable, "certificate rendering is disabled")
)

// StoreUnavailable wraps a persistence fault. The cause is kept for logs only.
func StoreUnavailable(op string, cause error) error {
	return ErrStoreUnavailable.WithOp(op).Wrap(cause)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrExhausted)
}

// ErrorCode returns the stable code for err. Unknown errors map to CodeInternal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrTimeout):
		return CodeStoreUnavailable
	case IsNotFound(err):
		return CodeNotFound
	case IsValidation(err):
		return CodeInvalidInput
	default:
		return CodeInternal
	}
}

// PublicMessage returns a caller-safe message for err.
func PublicMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Code != CodeInternal {
		return de.Message
	}
	return "internal error"
}
