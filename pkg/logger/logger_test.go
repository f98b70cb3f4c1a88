package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level.zapLevel())
	return New(Options{Level: level, Core: core}), logs
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestLogger_FieldsAndLevels(t *testing.T) {
	log, logs := newObserved(LevelInfo)

	log.Debug("dropped")
	log.With(Component("registry")).Info("certificate issued",
		LearnerID("L1"), CourseID("C1"), VerificationID("abc"), Score(85))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, "certificate issued", entry.Message)

	ctx := entry.ContextMap()
	assert.Equal(t, "registry", ctx["component"])
	assert.Equal(t, "L1", ctx["learner_id"])
	assert.Equal(t, "abc", ctx["verification_id"])
	assert.EqualValues(t, 85, ctx["score"])
}

func TestLogger_Err(t *testing.T) {
	assert.Nil(t, Err(nil).Value)
	assert.Equal(t, "boom", Err(errors.New("boom")).Value)
}

func TestLogger_WithLevel(t *testing.T) {
	log, logs := newObserved(LevelDebug)

	log.WithLevel(LevelError).Warn("filtered")
	log.Warn("kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func TestContextRoundTrip(t *testing.T) {
	log, logs := newObserved(LevelInfo)
	ctx := WithContext(context.Background(), log.WithRequestID("req-1"))

	FromContext(ctx).Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "req-1", logs.All()[0].ContextMap()[RequestIDKey])
	assert.NotNil(t, FromContext(context.Background()))
}
