package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/careatlas-systems/pulse/common/middleware"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestNew(t *testing.T) {
	assert.NotNil(t, New(slog.LevelInfo, "json"))
	assert.NotNil(t, New(slog.LevelDebug, "text"))
	assert.NotNil(t, New(slog.LevelInfo, ""))
}

func TestWithContextAddsRequestID(t *testing.T) {
	logger := New(slog.LevelInfo, "json")

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")
	assert.NotNil(t, logger.WithContext(ctx))

	// Without a request ID the base logger is returned unchanged.
	assert.Equal(t, logger.Logger, logger.WithContext(context.Background()))
}
