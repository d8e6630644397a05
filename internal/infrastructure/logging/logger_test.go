package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestContextLoggerRoundTrip(t *testing.T) {
	logger := zap.NewNop()
	ctx := SetLoggerInContext(context.Background(), logger)

	assert.Same(t, logger, ExtractLoggerFromContext(ctx))
}

func TestExtractLoggerBareContext(t *testing.T) {
	// callers fall back to their own logger when no request logger is set
	assert.Nil(t, ExtractLoggerFromContext(context.Background()))
}
