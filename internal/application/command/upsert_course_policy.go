package command

import (
	"context"
	"fmt"
	"time"

	"github.com/certiva/certiva-engine/internal/domain/course"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// UpsertCoursePolicyCommand sets the pass threshold of a course.
type UpsertCoursePolicyCommand struct {
	CourseID      string
	PassThreshold int
}

// Validate validates the command.
func (c UpsertCoursePolicyCommand) Validate() error {
	return course.Policy{CourseID: c.CourseID, PassThreshold: c.PassThreshold}.Validate()
}

// UpsertCoursePolicyHandler handles the UpsertCoursePolicyCommand.
// Thresholds only affect later submissions; completed enrollments stay completed.
type UpsertCoursePolicyHandler struct {
	policies course.PolicyRepository
	log      *logger.Logger
	now      func() time.Time
}

// NewUpsertCoursePolicyHandler creates a new UpsertCoursePolicyHandler.
func NewUpsertCoursePolicyHandler(policies course.PolicyRepository, log *logger.Logger) *UpsertCoursePolicyHandler {
	return &UpsertCoursePolicyHandler{
		policies: policies,
		log:      loggerOrNop(log).With(logger.Component("course_policy")),
		now:      utcNow,
	}
}

// Handle executes the command.
func (h *UpsertCoursePolicyHandler) Handle(ctx context.Context, cmd UpsertCoursePolicyCommand) (*course.Policy, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	p := &course.Policy{
		CourseID:      cmd.CourseID,
		PassThreshold: cmd.PassThreshold,
		UpdatedAt:     h.now(),
	}
	if err := h.policies.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("upsert_course_policy: %w", err)
	}

	h.log.Info("course policy updated", logger.CourseID(p.CourseID), logger.Int("pass_threshold", p.PassThreshold))
	return p, nil
}
