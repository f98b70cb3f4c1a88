package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Lifecycle event types. Each one marks a step of the
// enrollment → completion → certificate state machine.
const (
	EventEnrollmentCreated   EventType = "enrollment.created"
	EventAssessmentSubmitted EventType = "enrollment.assessment_submitted"
	EventCourseCompleted     EventType = "enrollment.course_completed"
	EventCertificateIssued   EventType = "certificate.issued"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// EnrollmentAggregateID is the aggregate id used for enrollment events.
func EnrollmentAggregateID(learnerID, courseID string) string {
	return learnerID + "/" + courseID
}

// ═══════════════════════════════════════════════════════════════════════════
// Enrollment Events
// ═══════════════════════════════════════════════════════════════════════════

// EnrollmentCreatedEvent is emitted the first time a learner enrolls in a course.
type EnrollmentCreatedEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	CourseID  string `json:"course_id"`
}

// NewEnrollmentCreatedEvent creates a new EnrollmentCreatedEvent.
func NewEnrollmentCreatedEvent(learnerID, courseID string, at time.Time) EnrollmentCreatedEvent {
	return EnrollmentCreatedEvent{
		BaseEvent: NewBaseEvent(EventEnrollmentCreated, EnrollmentAggregateID(learnerID, courseID), at),
		LearnerID: learnerID,
		CourseID:  courseID,
	}
}

// Payload implements Event interface.
func (e EnrollmentCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id": e.LearnerID,
		"course_id":  e.CourseID,
	}
}

// AssessmentSubmittedEvent is emitted for every accepted assessment submission.
type AssessmentSubmittedEvent struct {
	BaseEvent
	LearnerID   string `json:"learner_id"`
	CourseID    string `json:"course_id"`
	Score       int    `json:"score"`
	Passed      bool   `json:"passed"`
	OldProgress int    `json:"old_progress"`
	NewProgress int    `json:"new_progress"`
}

// NewAssessmentSubmittedEvent creates a new AssessmentSubmittedEvent.
func NewAssessmentSubmittedEvent(learnerID, courseID string, score int, passed bool, oldProgress, newProgress int, at time.Time) AssessmentSubmittedEvent {
	return AssessmentSubmittedEvent{
		BaseEvent:   NewBaseEvent(EventAssessmentSubmitted, EnrollmentAggregateID(learnerID, courseID), at),
		LearnerID:   learnerID,
		CourseID:    courseID,
		Score:       score,
		Passed:      passed,
		OldProgress: oldProgress,
		NewProgress: newProgress,
	}
}

// Payload implements Event interface.
func (e AssessmentSubmittedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":   e.LearnerID,
		"course_id":    e.CourseID,
		"score":        e.Score,
		"passed":       e.Passed,
		"old_progress": e.OldProgress,
		"new_progress": e.NewProgress,
	}
}

// CourseCompletedEvent is emitted once, when progress first reaches 100.
type CourseCompletedEvent struct {
	BaseEvent
	LearnerID   string    `json:"learner_id"`
	CourseID    string    `json:"course_id"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewCourseCompletedEvent creates a new CourseCompletedEvent.
func NewCourseCompletedEvent(learnerID, courseID string, score int, completedAt time.Time) CourseCompletedEvent {
	return CourseCompletedEvent{
		BaseEvent:   NewBaseEvent(EventCourseCompleted, EnrollmentAggregateID(learnerID, courseID), completedAt),
		LearnerID:   learnerID,
		CourseID:    courseID,
		Score:       score,
		CompletedAt: completedAt,
	}
}

// Payload implements Event interface.
func (e CourseCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"learner_id":   e.LearnerID,
		"course_id":    e.CourseID,
		"score":        e.Score,
		"completed_at": e.CompletedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Certificate Events
// ═══════════════════════════════════════════════════════════════════════════

// CertificateIssuedEvent is emitted only by the call that actually inserted
// the certificate, never by idempotent repeats.
type CertificateIssuedEvent struct {
	BaseEvent
	VerificationID string    `json:"verification_id"`
	LearnerID      string    `json:"learner_id"`
	CourseID       string    `json:"course_id"`
	Score          int       `json:"score"`
	IssuedAt       time.Time `json:"issued_at"`
}

// NewCertificateIssuedEvent creates a new CertificateIssuedEvent.
func NewCertificateIssuedEvent(verificationID, learnerID, courseID string, score int, issuedAt time.Time) CertificateIssuedEvent {
	return CertificateIssuedEvent{
		BaseEvent:      NewBaseEvent(EventCertificateIssued, verificationID, issuedAt),
		VerificationID: verificationID,
		LearnerID:      learnerID,
		CourseID:       courseID,
		Score:          score,
		IssuedAt:       issuedAt,
	}
}

// Payload implements Event interface.
func (e CertificateIssuedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"verification_id": e.VerificationID,
		"learner_id":      e.LearnerID,
		"course_id":       e.CourseID,
		"score":           e.Score,
		"issued_at":       e.IssuedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Publishing
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher publishes domain events. Publishing is best-effort from the
// point of view of the lifecycle operations.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
