// File: cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/iyunix/mcp-openai/internal/config"
	"github.com/iyunix/mcp-openai/internal/mcp"
	"github.com/iyunix/mcp-openai/internal/services"
)

const (
	serviceName     = "mcp-openai"
	version         = "0.3.0"
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := services.NewProductionLoggerTo(os.Stderr, serviceName, services.ParseLogLevel(cfg.LogLevel))

	app, err := buildApplication(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Close(ctx); err != nil {
			logger.Warn("shutdown cleanup reported errors", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	server := mcp.NewServer(app.Tools, logger.With("mcp"),
		mcp.WithServerInfo(serviceName, version),
		mcp.WithProgressSink(app.ProgressSink()),
	)
	g.Go(func() error {
		// The client closing stdin ends the session and the process.
		defer cancel()
		logger.Info("serving MCP on stdio", "version", version)
		err := server.Run(gctx, &mcpsdk.StdioTransport{})
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("mcp session: %w", err)
	})

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           app.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("http server listening", "addr", cfg.HTTPAddr, "public_base_url", cfg.PublicBaseURL)
			// A failed listener leaves the stdio session running.
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", "addr", cfg.HTTPAddr, "error", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
