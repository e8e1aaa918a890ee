// File: internal/services/ai/openai_provider.go
package ai

import (
	"context"
	"encoding/base64"
	"math"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

type OpenAIProvider struct {
	config  *Config
	client  *openai.Client
	limiter *rate.Limiter

	inFlight atomic.Int64
	closed   atomic.Bool
}

func NewOpenAIProvider(config *Config) (*OpenAIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.OrgID = config.Organization

	return &OpenAIProvider{
		config:  config,
		client:  openai.NewClientWithConfig(clientConfig),
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
	}, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	const op = "completion"
	if err := p.admit(ctx, op, req.Validate); err != nil {
		return "", err
	}
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	temperature := req.Temperature
	if temperature == 0 {
		// go-openai drops a zero temperature via omitempty, which the API reads as 1.
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.config.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Query},
		},
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", Classify(op, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", NewEmptyResponseError(op, "empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) GenerateImages(ctx context.Context, req ImageRequest) ([]ImageArtifact, error) {
	const op = "image"
	if err := p.admit(ctx, op, req.Validate); err != nil {
		return nil, err
	}
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)

	resp, err := p.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          req.Model,
		N:              req.N,
		Size:           req.Size,
		Quality:        req.Quality,
		ResponseFormat: p.config.ImageResponseFormat,
	})
	if err != nil {
		return nil, Classify(op, err)
	}
	if len(resp.Data) == 0 {
		return nil, NewEmptyResponseError(op, "image response contained no data")
	}

	artifacts := make([]ImageArtifact, 0, len(resp.Data))
	for _, item := range resp.Data {
		artifact := ImageArtifact{
			URL:           item.URL,
			MediaType:     "image/png",
			Size:          req.Size,
			Quality:       req.Quality,
			RevisedPrompt: item.RevisedPrompt,
		}
		if item.B64JSON != "" {
			data, err := base64.StdEncoding.DecodeString(item.B64JSON)
			if err != nil {
				return nil, &Error{Kind: KindTransient, Reason: ReasonEmptyResponse, Op: op, Message: "malformed image payload", Cause: err}
			}
			artifact.Data = data
		}
		if artifact.URL == "" && artifact.Data == nil {
			return nil, NewEmptyResponseError(op, "image entry carried neither url nor data")
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// InFlight reports the number of upstream calls currently on the wire.
func (p *OpenAIProvider) InFlight() int64 {
	return p.inFlight.Load()
}

func (p *OpenAIProvider) Close() error {
	p.closed.Store(true)
	return nil
}

// admit rejects calls on a closed provider or with invalid parameters, then
// waits on the shared limiter.
func (p *OpenAIProvider) admit(ctx context.Context, op string, validate func() error) error {
	if p.closed.Load() {
		return &Error{Kind: KindPermanent, Reason: ReasonConfig, Op: op, Message: "provider is closed"}
	}
	if err := validate(); err != nil {
		return err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return Classify(op, ctx.Err())
		}
		return &Error{Kind: KindTransient, Reason: ReasonRateLimit, Op: op, Message: "local request budget exhausted", Cause: err}
	}
	return nil
}
