package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/internal/infrastructure/persistence/memory"
)

func TestUpsertCoursePolicy(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCoursePolicyRepository()
	h := NewUpsertCoursePolicyHandler(repo, nil)

	p, err := h.Handle(ctx, UpsertCoursePolicyCommand{CourseID: "C1", PassThreshold: 85})
	require.NoError(t, err)
	assert.False(t, p.UpdatedAt.IsZero())

	stored, err := repo.Get(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 85, stored.PassThreshold)

	_, err = h.Handle(ctx, UpsertCoursePolicyCommand{CourseID: "C1", PassThreshold: 120})
	assert.ErrorIs(t, err, shared.ErrCoursePolicyInvalid)

	_, err = h.Handle(ctx, UpsertCoursePolicyCommand{PassThreshold: 50})
	assert.ErrorIs(t, err, shared.ErrInvalidCourseID)
}
