// File: internal/services/tool_service.go
package services

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/iyunix/mcp-openai/internal/domain"
	"github.com/iyunix/mcp-openai/internal/repository/invocation"
	"github.com/iyunix/mcp-openai/internal/services/ai"
	"github.com/iyunix/mcp-openai/internal/services/images"
	"github.com/iyunix/mcp-openai/internal/services/progress"
	"github.com/iyunix/mcp-openai/internal/services/retry"
)

const (
	ToolAskOpenAI   = "ask-openai"
	ToolCreateImage = "create-image"

	postProcessTimeout = 60 * time.Second
	recordTimeout      = 5 * time.Second
)

// Previewer downloads and shrinks generated images.
type Previewer interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
	Compress(data []byte) (*images.Preview, error)
}

// ImageStore keeps originals for the download server.
type ImageStore interface {
	Save(data []byte, mediaType string) (string, error)
}

// LinkSigner issues download tokens.
type LinkSigner interface {
	Sign(filename string) (string, time.Time, error)
}

// Defaults fill in policy arguments the caller omitted.
type Defaults struct {
	TimeoutSeconds int
	MaxRetries     int
}

type AskRequest struct {
	ai.CompletionRequest
	TimeoutSeconds int
	MaxRetries     int
}

type ImageToolRequest struct {
	ai.ImageRequest
	TimeoutSeconds int
	MaxRetries     int
}

// RenderedImage is one generated image plus what the gateway added to it.
type RenderedImage struct {
	ai.ImageArtifact
	Preview      *images.Preview
	StoredName   string
	DownloadURL  string
	LinkExpires  time.Time
	PreviewError string
}

// ToolResult wraps the terminal outcome with tool-specific extras.
type ToolResult struct {
	Outcome *retry.Outcome
	Images  []RenderedImage
}

type ToolServiceOptions struct {
	Previewer     Previewer
	Store         ImageStore
	Links         LinkSigner
	Invocations   invocation.InvocationRepository
	PublicBaseURL string
	Defaults      Defaults
	Logger        Logger
}

type ToolService struct {
	provider     ai.Provider
	orchestrator *retry.Orchestrator
	previewer    Previewer
	store        ImageStore
	links        LinkSigner
	invocations  invocation.InvocationRepository
	baseURL      string
	defaults     Defaults
	logger       Logger
}

func NewToolService(provider ai.Provider, orchestrator *retry.Orchestrator, opts ToolServiceOptions) (*ToolService, error) {
	if provider == nil {
		return nil, errors.New("AI provider is required")
	}
	if orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}

	defaults := opts.Defaults
	if defaults.TimeoutSeconds == 0 {
		defaults.TimeoutSeconds = 60
	}
	if _, err := retry.NewRequestPolicy(defaults.TimeoutSeconds, defaults.MaxRetries); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}

	return &ToolService{
		provider:     provider,
		orchestrator: orchestrator,
		previewer:    opts.Previewer,
		store:        opts.Store,
		links:        opts.Links,
		invocations:  opts.Invocations,
		baseURL:      opts.PublicBaseURL,
		defaults:     defaults,
		logger:       logger,
	}, nil
}

func (s *ToolService) Defaults() Defaults {
	return s.defaults
}

// AskOpenAI runs one chat completion through the retry orchestrator.
func (s *ToolService) AskOpenAI(ctx context.Context, req AskRequest, sink progress.Sink) *ToolResult {
	requestID := ulid.Make().String()
	policy, err := retry.NewRequestPolicy(req.TimeoutSeconds, req.MaxRetries)
	if err != nil {
		return s.finish(ctx, &ToolResult{Outcome: retry.Rejected(requestID, ToolAskOpenAI, err)}, req.Model, policy)
	}

	s.logger.Info("ask-openai started", "request_id", requestID, "model", req.Model,
		"timeout", policy.Timeout, "max_retries", policy.MaxRetries)

	outcome := s.orchestrator.Invoke(ctx, retry.Invocation{
		RequestID: requestID,
		Tool:      ToolAskOpenAI,
		Policy:    policy,
		Sink:      sink,
	}, func(ctx context.Context) (retry.Payload, error) {
		text, err := s.provider.Complete(ctx, req.CompletionRequest)
		return retry.Payload{Text: text}, err
	})
	return s.finish(ctx, &ToolResult{Outcome: outcome}, req.Model, policy)
}

// CreateImage generates images, then stores originals and builds inline
// previews. Post-processing failures degrade the preview, never the outcome.
func (s *ToolService) CreateImage(ctx context.Context, req ImageToolRequest, sink progress.Sink) *ToolResult {
	requestID := ulid.Make().String()
	policy, err := retry.NewRequestPolicy(req.TimeoutSeconds, req.MaxRetries)
	if err != nil {
		return s.finish(ctx, &ToolResult{Outcome: retry.Rejected(requestID, ToolCreateImage, err)}, req.Model, policy)
	}

	s.logger.Info("create-image started", "request_id", requestID, "model", req.Model,
		"size", req.Size, "quality", req.Quality, "n", req.N,
		"timeout", policy.Timeout, "max_retries", policy.MaxRetries)

	outcome := s.orchestrator.Invoke(ctx, retry.Invocation{
		RequestID: requestID,
		Tool:      ToolCreateImage,
		Policy:    policy,
		Sink:      sink,
	}, func(ctx context.Context) (retry.Payload, error) {
		artifacts, err := s.provider.GenerateImages(ctx, req.ImageRequest)
		return retry.Payload{Images: artifacts}, err
	})

	result := &ToolResult{Outcome: outcome}
	if !outcome.Failed() {
		result.Images = s.renderImages(ctx, requestID, outcome.Payload.Images)
	}
	return s.finish(ctx, result, req.Model, policy)
}

func (s *ToolService) renderImages(ctx context.Context, requestID string, artifacts []ai.ImageArtifact) []RenderedImage {
	ctx, cancel := context.WithTimeout(ctx, postProcessTimeout)
	defer cancel()

	rendered := make([]RenderedImage, len(artifacts))
	for i, artifact := range artifacts {
		rendered[i] = RenderedImage{ImageArtifact: artifact}
		if ctx.Err() != nil {
			rendered[i].PreviewError = "post-processing cancelled"
			continue
		}

		data, mediaType := artifact.Data, artifact.MediaType
		if data == nil && artifact.URL != "" && s.previewer != nil {
			var err error
			data, mediaType, err = s.previewer.Fetch(ctx, artifact.URL)
			if err != nil {
				s.logger.Warn("image download failed", "request_id", requestID, "index", i, "error", err)
				rendered[i].PreviewError = err.Error()
				continue
			}
		}
		if data == nil {
			continue
		}

		if s.store != nil {
			name, err := s.store.Save(data, mediaType)
			if err != nil {
				s.logger.Warn("image store failed", "request_id", requestID, "index", i, "error", err)
			} else {
				rendered[i].StoredName = name
				rendered[i].DownloadURL, rendered[i].LinkExpires = s.downloadURL(name)
			}
		}

		if s.previewer != nil {
			preview, err := s.previewer.Compress(data)
			if err != nil {
				s.logger.Warn("preview compression failed", "request_id", requestID, "index", i, "error", err)
				rendered[i].PreviewError = err.Error()
				continue
			}
			rendered[i].Preview = preview
		}
	}
	return rendered
}

func (s *ToolService) downloadURL(name string) (string, time.Time) {
	if s.baseURL == "" {
		return "", time.Time{}
	}
	link := s.baseURL + "/images/" + url.PathEscape(name)
	if s.links == nil {
		return link, time.Time{}
	}
	token, expires, err := s.links.Sign(name)
	if err != nil {
		s.logger.Warn("link signing failed", "file", name, "error", err)
		return "", time.Time{}
	}
	return link + "?token=" + url.QueryEscape(token), expires
}

// finish records the outcome. A cancelled caller still gets its audit row.
func (s *ToolService) finish(ctx context.Context, result *ToolResult, model string, policy retry.RequestPolicy) *ToolResult {
	if s.invocations == nil {
		return result
	}
	out := result.Outcome

	record := &domain.Invocation{
		RequestID:      out.RequestID,
		Tool:           out.Tool,
		State:          string(out.State),
		Reason:         string(out.Reason),
		Attempts:       out.AttemptCount(),
		ElapsedMS:      out.Elapsed.Milliseconds(),
		TimeoutSeconds: int(policy.Timeout / time.Second),
		MaxRetries:     policy.MaxRetries,
		Model:          model,
		ImageCount:     len(out.Payload.Images),
		Hint:           out.Hint,
	}
	if out.Err != nil {
		record.ErrorMessage = out.Err.Error()
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.invocations.Create(recordCtx, record); err != nil {
		s.logger.Error("failed to record invocation", "request_id", out.RequestID, "error", err)
	}
	return result
}
