package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/collectiq/copilot/internal/artifact"
	"github.com/collectiq/copilot/internal/config"
	"github.com/collectiq/copilot/internal/engine"
	"github.com/collectiq/copilot/internal/inference"
	"github.com/collectiq/copilot/internal/model"
	"github.com/collectiq/copilot/internal/render"
	"github.com/collectiq/copilot/pkg/statehub"
)

func main() {
	// 1. Load environment variables
	instanceName := os.Getenv("COPILOT_INSTANCE_NAME")
	redisURL := os.Getenv("REDIS_URL")
	apiKey := os.Getenv("GEMINI_API_KEY")

	if instanceName == "" || redisURL == "" {
		fmt.Fprintf(os.Stderr, "Error: COPILOT_INSTANCE_NAME and REDIS_URL must be set\n")
		os.Exit(1)
	}
	if apiKey == "" {
		fmt.Fprintf(os.Stderr, "Error: GEMINI_API_KEY must be set\n")
		os.Exit(1)
	}

	// 2. Structured logger for everything past startup
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 3. Parse Redis URL and create hub client
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid REDIS_URL: %v\n", err)
		os.Exit(1)
	}

	hub, err := statehub.NewClient(redisOpts, instanceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create hub client: %v\n", err)
		os.Exit(1)
	}
	defer hub.Close()

	// 4. Verify Redis connectivity
	ctx := context.Background()
	if err := hub.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Redis not accessible: %v\n", err)
		os.Exit(1)
	}

	// 5. Load copilot.yml configuration (defaults if absent)
	configPath := os.Getenv("COPILOT_CONFIG")
	if configPath == "" {
		configPath = "copilot.yml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load %s: %v\n", configPath, err)
		os.Exit(1)
	}

	// 6. Inference and rendering collaborators
	infer, err := inference.NewGeminiClient(ctx, apiKey, cfg.Inference.Model,
		*cfg.Inference.Temperature, cfg.Inference.Timeout.Std())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create inference client: %v\n", err)
		os.Exit(1)
	}

	artifacts := artifact.NewRegistry(hub, cfg.Artifacts.TTL.Std(), cfg.Artifacts.MaxPerSession)
	renderer := render.NewReportRenderer(model.Label)

	logger.Info("copilotd starting",
		zap.String("instance", instanceName),
		zap.String("model", cfg.Inference.Model))

	// 7. Create engine and set up graceful shutdown
	eng := engine.New(hub, infer, renderer, artifacts, cfg, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		errCh <- eng.Run(runCtx)
	}()

	// 8. Wait for shutdown signal or engine error
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
		<-errCh
	case runErr := <-errCh:
		if runErr != nil {
			logger.Error("engine failed", zap.Error(runErr))
			os.Exit(1)
		}
	}

	logger.Info("copilotd stopped")
}
