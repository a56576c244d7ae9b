package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx := WithOperation(context.Background(), "op-1", "insert", "items")
	FromContext(ctx, base).Info("copied")

	entries := logs.All()
	assert.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "op-1", fields["operation_id"])
	assert.Equal(t, "insert", fields["operation"])
	assert.Equal(t, "items", fields["table"])
}

func TestFromContextWithoutFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	FromContext(context.Background(), zap.New(core)).Info("plain")

	assert.Empty(t, logs.All()[0].ContextMap())
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	_, err := newLogger(Config{Level: "loud", Encoding: "json"})
	assert.Error(t, err)
}
