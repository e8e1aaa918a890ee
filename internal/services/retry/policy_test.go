package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/mcp-openai/internal/services/ai"
)

func TestNewRequestPolicy(t *testing.T) {
	p, err := NewRequestPolicy(60, 3)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, p.Timeout)
	assert.Equal(t, 4, p.MaxAttempts())

	for _, tc := range []struct{ timeout, retries int }{{29, 3}, {301, 3}, {60, -1}, {60, 6}} {
		_, err := NewRequestPolicy(tc.timeout, tc.retries)
		var aiErr *ai.Error
		require.ErrorAs(t, err, &aiErr, "%+v", tc)
		assert.Equal(t, ai.ReasonInvalidParams, aiErr.Reason)
	}
	for _, tc := range []struct{ timeout, retries int }{{30, 0}, {300, 5}} {
		_, err := NewRequestPolicy(tc.timeout, tc.retries)
		assert.NoError(t, err, "%+v", tc)
	}
}

func TestRequestPolicy_ValidateAllowsShortDeadlines(t *testing.T) {
	assert.NoError(t, RequestPolicy{Timeout: 10 * time.Millisecond, MaxRetries: 2}.Validate())
	assert.Error(t, RequestPolicy{Timeout: 0, MaxRetries: 2}.Validate())
	assert.Error(t, RequestPolicy{Timeout: time.Second, MaxRetries: 6}.Validate())
}
