package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureLogger(t *testing.T) {
	logger, buf := NewCaptureLogger()
	logger.Warn("load success rate below threshold", "table", "sales", "rate", 0.5)
	logger.Debug("loaded batch", "table", "vendors")

	assert.True(t, buf.Contains("level=WARN", "below threshold", "table=sales"))
	assert.True(t, buf.Contains("loaded batch"))
	assert.False(t, buf.Contains("level=WARN", "vendors"))
}

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	logger.Info("visible with -v")
}
