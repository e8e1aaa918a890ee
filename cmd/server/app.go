// File: cmd/server/app.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/iyunix/mcp-openai/internal/auth"
	"github.com/iyunix/mcp-openai/internal/config"
	"github.com/iyunix/mcp-openai/internal/domain"
	"github.com/iyunix/mcp-openai/internal/handlers"
	"github.com/iyunix/mcp-openai/internal/middleware"
	"github.com/iyunix/mcp-openai/internal/observability"
	"github.com/iyunix/mcp-openai/internal/ratelimit"
	"github.com/iyunix/mcp-openai/internal/repository/invocation"
	"github.com/iyunix/mcp-openai/internal/services"
	"github.com/iyunix/mcp-openai/internal/services/ai"
	"github.com/iyunix/mcp-openai/internal/services/images"
	"github.com/iyunix/mcp-openai/internal/services/progress"
	"github.com/iyunix/mcp-openai/internal/services/retry"
)

// Application aggregates everything main wires together.
type Application struct {
	Config          *config.Config
	Logger          *services.ProductionLogger
	DB              *gorm.DB
	Invocations     invocation.InvocationRepository
	Provider        *ai.OpenAIProvider
	Tools           *services.ToolService
	Store           *images.Store
	Links           *auth.LinkSigner
	NATS            *progress.NATSSink
	Tracing         *observability.TracerProvider
	DownloadLimiter *ratelimit.MemoryRateLimiter
	APILimiter      *ratelimit.MemoryRateLimiter
}

func buildApplication(cfg *config.Config, logger *services.ProductionLogger) (*Application, error) {
	app := &Application{
		Config:          cfg,
		Logger:          logger,
		DownloadLimiter: ratelimit.NewMemoryRateLimiter(ratelimit.DefaultDownloadConfig()),
		APILimiter:      ratelimit.NewMemoryRateLimiter(ratelimit.DefaultAPIConfig()),
	}
	fail := func(err error) (*Application, error) {
		app.Close(context.Background())
		return nil, err
	}

	if cfg.TraceStdout {
		tp, err := observability.NewTracerProvider(serviceName, version, os.Stderr)
		if err != nil {
			return fail(err)
		}
		app.Tracing = tp
	}

	if cfg.DBPath != "" {
		db, err := openDatabase(cfg.DBPath)
		if err != nil {
			return fail(err)
		}
		app.DB = db
		app.Invocations = invocation.NewInvocationRepository(db)
	}

	aiConfig := ai.DefaultConfig()
	aiConfig.APIKey = cfg.OpenAIAPIKey
	aiConfig.BaseURL = cfg.OpenAIBaseURL
	aiConfig.Organization = cfg.OpenAIOrganization
	aiConfig.RequestsPerSecond = cfg.OpenAIRPS
	aiConfig.Burst = cfg.OpenAIBurst
	aiConfig.ImageResponseFormat = cfg.OpenAIImageFormat
	provider, err := ai.NewOpenAIProvider(aiConfig)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize OpenAI provider: %w", err))
	}
	app.Provider = provider

	opts := services.ToolServiceOptions{
		Previewer:     images.NewPreviewer(nil, cfg.PreviewMaxBytes, logger.With("images")),
		Invocations:   app.Invocations,
		PublicBaseURL: cfg.PublicBaseURL,
		Defaults:      services.Defaults{TimeoutSeconds: cfg.DefaultTimeoutSecs, MaxRetries: cfg.DefaultMaxRetries},
		Logger:        logger.With("tools"),
	}
	if cfg.ImageDir != "" {
		store, err := images.NewStore(cfg.ImageDir)
		if err != nil {
			return fail(err)
		}
		app.Store = store
		opts.Store = store
	}
	if cfg.ImageLinkSecret != "" {
		links, err := auth.NewLinkSigner([]byte(cfg.ImageLinkSecret), cfg.ImageLinkTTL)
		if err != nil {
			return fail(err)
		}
		app.Links = links
		opts.Links = links
	}

	if cfg.NATSURL != "" {
		sink, err := progress.NewNATSSink(progress.NATSConfig{URL: cfg.NATSURL, Subject: cfg.NATSSubject})
		if err != nil {
			return fail(err)
		}
		app.NATS = sink
	}

	orchestrator := retry.NewOrchestrator(logger.With("retry"), orchestratorOptions(cfg, app.Tracing)...)
	tools, err := services.NewToolService(provider, orchestrator, opts)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize tool service: %w", err))
	}
	app.Tools = tools
	return app, nil
}

func orchestratorOptions(cfg *config.Config, tracing *observability.TracerProvider) []retry.Option {
	opts := []retry.Option{
		retry.WithNotifierOptions(
			progress.WithFlushTimeout(cfg.ProgressFlush),
			progress.WithQueueSize(cfg.ProgressQueueSize),
		),
	}
	if tracing != nil {
		opts = append(opts, retry.WithTracer(tracing.Tracer(serviceName)))
	}
	return opts
}

// openDatabase keeps gorm's logger off stdout, which carries the MCP stream.
func openDatabase(path string) (*gorm.DB, error) {
	dbLogger := gormlogger.New(log.New(os.Stderr, "", log.LstdFlags), gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&domain.Invocation{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// ProgressSink logs every event and mirrors it to NATS when configured.
func (a *Application) ProgressSink() progress.Sink {
	sinks := progress.MultiSink{progress.LogSink{Logger: a.Logger.With("progress")}}
	if a.NATS != nil {
		sinks = append(sinks, a.NATS)
	}
	return sinks
}

// Router serves downloads, health, metrics and the audit API.
func (a *Application) Router() http.Handler {
	logger := a.Logger.With("http")

	r := mux.NewRouter()
	r.Use(middleware.RecoverPanic(logger), middleware.LoggingMiddleware(logger))

	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if a.Store != nil {
		var verifier middleware.LinkVerifier
		if a.Links != nil {
			verifier = a.Links
		}
		imageHandler := handlers.NewImageHandler(a.Store, logger)
		downloads := r.PathPrefix("/images").Subrouter()
		downloads.Use(
			middleware.RateLimitMiddleware(a.DownloadLimiter, "images", logger),
			middleware.NewLinkTokenMiddleware(verifier, logger),
		)
		downloads.HandleFunc("/{filename}", imageHandler.Download).Methods(http.MethodGet)
	}

	if a.Invocations != nil {
		invocationHandler := handlers.NewInvocationHandler(a.Invocations, logger)
		api := r.PathPrefix("/api").Subrouter()
		api.Use(middleware.RateLimitMiddleware(a.APILimiter, "api", logger))
		api.HandleFunc("/invocations", invocationHandler.Recent).Methods(http.MethodGet)
		api.HandleFunc("/invocations/stats", invocationHandler.Stats).Methods(http.MethodGet)
	}
	return r
}

// Close releases everything buildApplication opened. Safe on a partially
// built Application.
func (a *Application) Close(ctx context.Context) error {
	var errs []error
	if a.NATS != nil {
		errs = append(errs, a.NATS.Close())
	}
	if a.Provider != nil {
		errs = append(errs, a.Provider.Close())
	}
	if a.DownloadLimiter != nil {
		a.DownloadLimiter.Close()
	}
	if a.APILimiter != nil {
		a.APILimiter.Close()
	}
	if a.Tracing != nil {
		errs = append(errs, a.Tracing.Shutdown(ctx))
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
