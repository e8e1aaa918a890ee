// File: internal/services/ai/config.go
package ai

import (
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type Config struct {
	// Credentials
	APIKey       string
	BaseURL      string
	Organization string

	// Shared upstream limiter, applies across all concurrent invocations
	RequestsPerSecond float64
	Burst             int

	// Image generation
	ImageResponseFormat string

	// Chat
	SystemPrompt string
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return NewConfigError("OPENAI_API_KEY is required")
	}
	if c.RequestsPerSecond <= 0 {
		return NewConfigError("requests per second must be positive")
	}
	if c.Burst < 1 {
		return NewConfigError("burst must be at least 1")
	}
	switch c.ImageResponseFormat {
	case openai.CreateImageResponseFormatURL, openai.CreateImageResponseFormatB64JSON:
	default:
		return NewConfigError(fmt.Sprintf("unsupported image response format %q", c.ImageResponseFormat))
	}
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		RequestsPerSecond:   2,
		Burst:               4,
		ImageResponseFormat: openai.CreateImageResponseFormatURL,
		SystemPrompt:        "You are a helpful assistant.",
	}
}
