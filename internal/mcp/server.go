// Package mcp exposes the gateway's tools as a Model Context Protocol server.
// Sessions, framing and request cancellation come from the MCP Go SDK; this
// package decodes tool arguments, runs the tools and renders their outcomes.
package mcp

import (
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/iyunix/mcp-openai/internal/services"
	"github.com/iyunix/mcp-openai/internal/services/progress"
	"github.com/iyunix/mcp-openai/internal/services/retry"
)

const instructions = "Tools call the OpenAI API with a per-attempt timeout and bounded retries. " +
	"Send a progress token to follow retries as they happen."

var (
	errCancelled = errors.New("tool call cancelled")
	errInternal  = errors.New("internal error")
)

type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ToolRunner executes the gateway's tools.
type ToolRunner interface {
	Defaults() services.Defaults
	AskOpenAI(ctx context.Context, req services.AskRequest, sink progress.Sink) *services.ToolResult
	CreateImage(ctx context.Context, req services.ImageToolRequest, sink progress.Sink) *services.ToolResult
}

type Option func(*Server)

// WithProgressSink mirrors every progress event to sink in addition to the
// client's progress notifications.
func WithProgressSink(sink progress.Sink) Option {
	return func(s *Server) { s.mirror = sink }
}

func WithServerInfo(name, version string) Option {
	return func(s *Server) { s.name, s.version = name, version }
}

// Server registers the tools on an SDK server. Every tool call runs in its
// own handler goroutine with a context the client can cancel.
type Server struct {
	tools   ToolRunner
	logger  Logger
	mirror  progress.Sink
	name    string
	version string
	sdk     *mcpsdk.Server
}

func NewServer(tools ToolRunner, logger Logger, opts ...Option) *Server {
	s := &Server{
		tools:   tools,
		logger:  logger,
		name:    "mcp-openai",
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.sdk = mcpsdk.NewServer(
		&mcpsdk.Implementation{Name: s.name, Version: s.version},
		&mcpsdk.ServerOptions{Instructions: instructions},
	)
	handlers := map[string]mcpsdk.ToolHandler{
		services.ToolAskOpenAI:   s.askOpenAI,
		services.ToolCreateImage: s.createImage,
	}
	for _, tool := range toolDefinitions(tools.Defaults()) {
		s.sdk.AddTool(tool, s.guard(tool.Name, handlers[tool.Name]))
	}
	return s
}

// Run serves one session over t until the client disconnects or ctx is
// done. Cancelling ctx cancels the tool calls still running.
func (s *Server) Run(ctx context.Context, t mcpsdk.Transport) error {
	return s.sdk.Run(ctx, t)
}

func (s *Server) guard(name string, h mcpsdk.ToolHandler) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (result *mcpsdk.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("tool call panicked", "tool", name, "panic", r)
				result, err = nil, errInternal
			}
		}()
		s.logger.Debug("tool call", "tool", name)
		return h(ctx, req)
	}
}

func (s *Server) askOpenAI(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	args, err := decodeAskArgs(req.Params.Arguments, s.tools.Defaults())
	if err != nil {
		return toolError(err.Error()), nil
	}
	result := s.tools.AskOpenAI(ctx, args, s.sinkFor(req))
	if wasCancelled(result) {
		return nil, s.abandon(req, result)
	}
	return renderAnswer(result), nil
}

func (s *Server) createImage(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	args, err := decodeImageArgs(req.Params.Arguments, s.tools.Defaults())
	if err != nil {
		return toolError(err.Error()), nil
	}
	result := s.tools.CreateImage(ctx, args, s.sinkFor(req))
	if wasCancelled(result) {
		return nil, s.abandon(req, result)
	}
	return renderImages(args, result), nil
}

func wasCancelled(result *services.ToolResult) bool {
	return result.Outcome.State == retry.StateCancelled
}

// abandon reports a cancelled call as a protocol error; it never renders as
// a tool result.
func (s *Server) abandon(req *mcpsdk.CallToolRequest, result *services.ToolResult) error {
	s.logger.Info("tool call cancelled", "tool", req.Params.Name, "request_id", result.Outcome.RequestID)
	return fmt.Errorf("%w: %s", errCancelled, result.Outcome.RequestID)
}

func (s *Server) sinkFor(req *mcpsdk.CallToolRequest) progress.Sink {
	var sinks progress.MultiSink
	if token := req.Params.GetProgressToken(); token != nil && req.Session != nil {
		sinks = append(sinks, sessionSink{session: req.Session, token: token})
	}
	if s.mirror != nil {
		sinks = append(sinks, s.mirror)
	}
	if len(sinks) == 0 {
		return nil
	}
	return sinks
}

// sessionSink turns progress events into notifications/progress for the
// token the client attached to its request.
type sessionSink struct {
	session *mcpsdk.ServerSession
	token   any
}

func (k sessionSink) Deliver(ctx context.Context, event progress.Event) error {
	return k.session.NotifyProgress(ctx, &mcpsdk.ProgressNotificationParams{
		ProgressToken: k.token,
		Progress:      event.Percent,
		Total:         100,
		Message:       event.Message,
	})
}
