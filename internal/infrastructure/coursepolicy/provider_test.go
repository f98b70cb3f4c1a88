package coursepolicy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certiva/certiva-engine/internal/domain/course"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/internal/infrastructure/persistence/memory"
)

const sample = `
default_pass_threshold: 65
courses:
  - course_id: go-101
    pass_threshold: 80
  - course_id: rust-201
    pass_threshold: 90
`

func TestParseFile(t *testing.T) {
	f, err := ParseFile([]byte(sample))
	require.NoError(t, err)
	require.NotNil(t, f.DefaultPassThreshold)
	assert.Equal(t, 65, *f.DefaultPassThreshold)
	assert.Equal(t, map[string]int{"go-101": 80, "rust-201": 90}, f.Thresholds())
}

func TestParseFile_Rejects(t *testing.T) {
	tests := map[string]string{
		"threshold above 100": "courses:\n  - course_id: a\n    pass_threshold: 101\n",
		"missing course id":   "courses:\n  - pass_threshold: 50\n",
		"duplicate course":    "courses:\n  - course_id: a\n    pass_threshold: 50\n  - course_id: a\n    pass_threshold: 60\n",
		"unknown key":         "threshold: 50\n",
		"negative default":    "default_pass_threshold: -1\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFile([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Courses, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestProvider_Layers(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCoursePolicyRepository()
	require.NoError(t, repo.Upsert(ctx, &course.Policy{CourseID: "go-101", PassThreshold: 55}))

	f, err := ParseFile([]byte(sample))
	require.NoError(t, err)

	p := NewProvider(course.DefaultPassThreshold, WithRepository(repo), WithFile(f))

	got, err := p.PassThreshold(ctx, "go-101")
	require.NoError(t, err)
	assert.Equal(t, 55, got, "table wins over file")

	got, err = p.PassThreshold(ctx, "rust-201")
	require.NoError(t, err)
	assert.Equal(t, 90, got, "file wins over default")

	got, err = p.PassThreshold(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, 65, got, "file default replaces configured default")
}

func TestProvider_DefaultOnly(t *testing.T) {
	p := NewProvider(course.DefaultPassThreshold)
	got, err := p.PassThreshold(context.Background(), "any")
	require.NoError(t, err)
	assert.Equal(t, 70, got)
}

func TestProvider_StoreFaultPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewProvider(70, WithRepository(memory.NewCoursePolicyRepository()))
	_, err := p.PassThreshold(ctx, "go-101")
	assert.ErrorIs(t, err, shared.ErrStoreUnavailable)
}
