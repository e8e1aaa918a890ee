// File: cmd/diagnostic/llm_diagnostic.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iyunix/mcp-openai/internal/config"
	"github.com/iyunix/mcp-openai/internal/services"
	"github.com/iyunix/mcp-openai/internal/services/ai"
	"github.com/iyunix/mcp-openai/internal/services/progress"
	"github.com/iyunix/mcp-openai/internal/services/retry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "llm diagnostic: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	query := flag.String("query", "What is the answer to life, universe and everything?", "question to ask")
	model := flag.String("model", "gpt-4", "chat model")
	timeout := flag.Int("timeout", 0, "per-attempt timeout in seconds (default from config)")
	retries := flag.Int("max-retries", -1, "retries after the first attempt (default from config)")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if *timeout == 0 {
		*timeout = cfg.DefaultTimeoutSecs
	}
	if *retries < 0 {
		*retries = cfg.DefaultMaxRetries
	}

	logger := services.NewProductionLoggerTo(os.Stderr, "mcp-openai-diagnostic", services.ParseLogLevel(cfg.LogLevel))

	aiConfig := ai.DefaultConfig()
	aiConfig.APIKey = cfg.OpenAIAPIKey
	aiConfig.BaseURL = cfg.OpenAIBaseURL
	aiConfig.Organization = cfg.OpenAIOrganization
	provider, err := ai.NewOpenAIProvider(aiConfig)
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	defer provider.Close()

	tools, err := services.NewToolService(provider, retry.NewOrchestrator(logger), services.ToolServiceOptions{Logger: logger})
	if err != nil {
		return fmt.Errorf("tool service: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Asking %s (timeout %ds, max retries %d)...\n", *model, *timeout, *retries)

	printer := progress.SinkFunc(func(_ context.Context, e progress.Event) error {
		fmt.Printf("  [%3.0f%%] attempt %d, %d remaining: %s\n", e.Percent, e.AttemptIndex, e.RemainingAttempts, e.Message)
		return nil
	})

	result := tools.AskOpenAI(ctx, services.AskRequest{
		CompletionRequest: ai.CompletionRequest{
			Query:       *query,
			Model:       *model,
			Temperature: 0.7,
			MaxTokens:   500,
		},
		TimeoutSeconds: *timeout,
		MaxRetries:     *retries,
	}, printer)

	out := result.Outcome
	if out.Failed() {
		return fmt.Errorf("%s: %s", out.State, out.Summary())
	}
	fmt.Printf("OK after %d attempt(s) in %s\n\n%s\n", out.AttemptCount(), out.Elapsed, out.Payload.Text)
	return nil
}
