// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chatty-app/chat-service/internal/config"
	"github.com/chatty-app/chat-service/internal/handler"
	"github.com/chatty-app/chat-service/internal/llm"
	natsclient "github.com/chatty-app/chat-service/internal/nats"
	"github.com/chatty-app/chat-service/internal/repository"
	"github.com/chatty-app/chat-service/internal/service"
	"github.com/chatty-app/chat-service/internal/typing"
	"github.com/chatty-app/chat-service/pkg/logger"
	"github.com/chatty-app/chat-service/pkg/tracing"
)

const serviceName = "chat-service"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewWithOptions(logger.Options{
		Level:   cfg.LogLevel,
		Console: os.Getenv("ENV") == "development",
		Fields:  []zap.Field{zap.String("service", serviceName)},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server")
	ctx := context.Background()

	// Initialize tracing if enabled
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.Tracing.Endpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Database
	db, err := repository.Open(repository.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return err
	}
	if err := repository.Migrate(db); err != nil {
		return err
	}
	store := repository.NewStore(db)
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	checks := []handler.Check{{Name: "database", Fn: store.Ping}}

	// Typing indicators
	var typingStore typing.Store = typing.NewMemoryStore()
	if cfg.RedisURL != "" {
		pool := typing.NewRedisPool(cfg.RedisURL)
		redisStore := typing.NewRedisStore(pool, cfg.Chat.TypingWindow)
		defer redisStore.Close()
		typingStore = redisStore
		checks = append(checks, handler.Check{Name: "redis", Fn: redisStore.Ping})
		log.Info("typing indicators backed by redis")
	}

	// Connect to NATS
	connectCtx, cancelConnect := context.WithTimeout(ctx, 10*time.Second)
	natsClient, err := natsclient.Connect(connectCtx, natsclient.Config(cfg.NATS), log.Named("nats"))
	cancelConnect()
	if err != nil {
		return err
	}
	defer natsClient.Close()

	// Ensure JetStream stream exists
	streamManager := natsclient.NewStreamManager(natsClient, log.Named("events"))
	if err := streamManager.EnsureStream(ctx); err != nil {
		return err
	}
	checks = append(checks, handler.Check{Name: "nats", Fn: natsClient.Ping})

	// Initialize LLM client
	llmClient := newLLMClient(cfg, log)

	// Initialize services
	deps := service.Deps{Store: store, Publisher: streamManager, Logger: log}
	services := handler.Services{
		Users:         service.NewUserService(deps),
		Conversations: service.NewConversationService(deps),
		ReadState:     service.NewReadStateService(deps),
		Messages:      service.NewMessageService(deps, typingStore, cfg.Chat.EditWindow),
		Reactions:     service.NewReactionService(deps),
		Typing:        service.NewTypingService(deps, typingStore, cfg.Chat.TypingWindow),
		Summaries:     service.NewSummaryService(deps, llmClient),
	}

	router := handler.NewRouter(handler.RouterConfig{
		Services:          services,
		Events:            streamManager,
		Checks:            checks,
		Logger:            log,
		JWTSecret:         cfg.Auth.JWTSecret,
		WebhookSecret:     cfg.Auth.WebhookSecret,
		AllowedOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitWindow:   cfg.RateLimit.Window,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return err
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// newLLMClient returns the summary provider, or nil when none is
// configured.
func newLLMClient(cfg *config.Config, log *logger.Logger) llm.Client {
	client, err := llm.Select(llm.Provider(cfg.LLM.Provider), map[llm.Provider]string{
		llm.ProviderAnthropic: cfg.LLM.AnthropicAPIKey,
		llm.ProviderOpenAI:    cfg.LLM.OpenAIAPIKey,
	})
	switch {
	case errors.Is(err, llm.ErrNoProvider):
		log.Info("no LLM provider configured, summaries disabled")
		return nil
	case err != nil:
		log.Warn("failed to create LLM client, summaries disabled", zap.Error(err))
		return nil
	}
	log.Info("summaries enabled", zap.String("provider", client.Name()))
	return client
}
