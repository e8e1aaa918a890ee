// File: internal/services/ai/interface.go
package ai

import "context"

// CompletionRequest carries the ask-openai parameters.
type CompletionRequest struct {
	Query       string
	Model       string
	Temperature float32
	MaxTokens   int
}

// ImageRequest carries the create-image parameters.
type ImageRequest struct {
	Prompt  string
	Model   string
	Size    string
	Quality string
	N       int
}

// ImageArtifact is handed upward untouched. Either URL or Data is set,
// depending on the configured response format.
type ImageArtifact struct {
	URL           string `json:"url,omitempty"`
	Data          []byte `json:"-"`
	MediaType     string `json:"media_type"`
	Size          string `json:"size"`
	Quality       string `json:"quality"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// CompletionProvider handles chat completions
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ImageProvider handles image generation
type ImageProvider interface {
	GenerateImages(ctx context.Context, req ImageRequest) ([]ImageArtifact, error)
}

// Provider performs exactly one upstream round trip per call and returns
// either a payload or an *Error.
type Provider interface {
	CompletionProvider
	ImageProvider
	Close() error
}
