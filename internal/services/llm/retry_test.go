package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.False(t, IsRateLimitError(errors.New("connection refused")))
	assert.True(t, IsRateLimitError(errors.New("Error 429: too many requests")))
	assert.True(t, IsRateLimitError(errors.New("Status: RESOURCE_EXHAUSTED")))
	assert.True(t, IsRateLimitError(errors.New("anthropic: rate_limit_error")))
	assert.True(t, IsRateLimitError(errors.New("quota exceeded for model")))
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: quota exceeded. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	require.InDelta(t, 45.387, delay.Seconds(), 0.001)

	assert.Zero(t, ExtractRetryDelay(errors.New("no delay hint here")))
	assert.Zero(t, ExtractRetryDelay(nil))
}

func TestCalculateBackoff(t *testing.T) {
	cfg := NewDefaultRetryConfig()

	// First attempt without an API hint uses the initial backoff
	assert.Equal(t, 45*time.Second, cfg.CalculateBackoff(0, 0))

	// API-provided delay overrides the base, plus a small buffer
	assert.Equal(t, 35*time.Second, cfg.CalculateBackoff(0, 30*time.Second))

	// Growth is capped at MaxBackoff
	assert.Equal(t, 90*time.Second, cfg.CalculateBackoff(5, 0))
}
