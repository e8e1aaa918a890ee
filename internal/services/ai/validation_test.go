package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletionRequest_Validate(t *testing.T) {
	valid := CompletionRequest{Query: "hi", Model: "gpt-4", Temperature: 0.7, MaxTokens: 500}
	require.NoError(t, valid.Validate())

	tests := map[string]func(r *CompletionRequest){
		"empty query":        func(r *CompletionRequest) { r.Query = "  " },
		"unknown model":      func(r *CompletionRequest) { r.Model = "gpt-2" },
		"negative temp":      func(r *CompletionRequest) { r.Temperature = -0.1 },
		"temp above 2":       func(r *CompletionRequest) { r.Temperature = 2.01 },
		"zero max tokens":    func(r *CompletionRequest) { r.MaxTokens = 0 },
		"max tokens too big": func(r *CompletionRequest) { r.MaxTokens = 4001 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := valid
			mutate(&r)
			err := r.Validate()
			var aiErr *Error
			require.ErrorAs(t, err, &aiErr)
			assert.Equal(t, KindPermanent, aiErr.Kind)
			assert.Equal(t, ReasonInvalidParams, aiErr.Reason)
		})
	}
}

func TestImageRequest_ModelMatrix(t *testing.T) {
	tests := []struct {
		model, size, quality string
		ok                   bool
	}{
		{"dall-e-3", "1024x1024", "standard", true},
		{"dall-e-3", "1792x1024", "hd", true},
		{"dall-e-3", "1024x1792", "standard", true},
		{"dall-e-3", "256x256", "standard", true},
		{"dall-e-2", "256x256", "standard", true},
		{"dall-e-2", "512x512", "standard", true},
		{"dall-e-2", "1792x1024", "standard", false},
		{"dall-e-2", "1024x1792", "standard", false},
		{"dall-e-2", "1024x1024", "hd", false},
		{"dall-e-3", "2048x2048", "standard", false},
		{"dall-e-9", "1024x1024", "standard", false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s_%s", tt.model, tt.size, tt.quality), func(t *testing.T) {
			err := ImageRequest{Prompt: "p", Model: tt.model, Size: tt.size, Quality: tt.quality, N: 1}.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestImageRequest_CountBounds(t *testing.T) {
	base := ImageRequest{Prompt: "p", Model: "dall-e-2", Size: "256x256", Quality: "standard"}
	for _, n := range []int{0, 11, -1} {
		r := base
		r.N = n
		assert.Error(t, r.Validate(), "n=%d", n)
	}
	for _, n := range []int{1, 10} {
		r := base
		r.N = n
		assert.NoError(t, r.Validate(), "n=%d", n)
	}
}

func TestOrientation(t *testing.T) {
	assert.Equal(t, "landscape", Orientation("1792x1024"))
	assert.Equal(t, "portrait", Orientation("1024x1792"))
	assert.Equal(t, "square", Orientation("512x512"))
}

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o timeout" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify("op", nil))

	already := NewValidationError("op", "bad")
	assert.Same(t, already, Classify("op", fmt.Errorf("wrapped: %w", already)))

	assert.Equal(t, ReasonTimeout, Classify("op", context.DeadlineExceeded).Reason)
	assert.Equal(t, ReasonCancelled, Classify("op", context.Canceled).Reason)
	assert.Equal(t, ReasonTimeout, Classify("op", timeoutNetErr{}).Reason)

	refused := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	got := Classify("op", refused)
	assert.Equal(t, KindTransient, got.Kind)
	assert.Equal(t, ReasonNetwork, got.Reason)

	apiErr := &openai.APIError{HTTPStatusCode: 503, Message: "overloaded"}
	got = Classify("op", apiErr)
	assert.Equal(t, KindTransient, got.Kind)
	assert.True(t, got.Retryable())
	assert.Equal(t, "overloaded", got.Message)
	assert.ErrorIs(t, got, apiErr)

	got = Classify("op", errors.New("something odd"))
	assert.Equal(t, KindPermanent, got.Kind)
	assert.Equal(t, ReasonUnknown, got.Reason)
	assert.False(t, got.Retryable())
	assert.False(t, (&Error{Kind: KindExhausted}).Retryable())
}
