package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/recordsql/recordsql/internal/cli/recordsql"
	"github.com/recordsql/recordsql/internal/completion"
	"github.com/recordsql/recordsql/internal/config"
	"github.com/recordsql/recordsql/internal/embedding"
	"github.com/recordsql/recordsql/internal/observability"
	"github.com/recordsql/recordsql/internal/runner"
)

func main() {
	cfg, err := config.LoadFromEnv("recordsql")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = observability.ContextWithRunID(ctx, observability.NewRunID())
	logger := observability.NewLogger(cfg, os.Stderr)

	if cfg.Observability.MetricsAddr != "" {
		go func() {
			if err := observability.ServeMetrics(ctx, cfg.Observability.MetricsAddr, logger); err != nil {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	code := recordsql.Run(ctx, os.Args[1:], recordsql.Options{
		Build: func(context.Context) (*runner.Runner, error) {
			return newRunner(cfg, logger)
		},
		OutputPath: cfg.Pipeline.OutputPath,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	})
	stop()
	os.Exit(code)
}

func newRunner(cfg config.Config, logger *slog.Logger) (*runner.Runner, error) {
	client, err := completion.NewOpenAIClient(completion.OpenAIConfig{
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		TopP:        cfg.AI.TopP,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("completion client: %w", err)
	}
	embedderKey := cfg.Embedding.APIKey
	if embedderKey == "" {
		embedderKey = cfg.AI.APIKey
	}
	embedder, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  embedderKey,
		Model:   cfg.Embedding.Model,
		Timeout: cfg.Embedding.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	return &runner.Runner{
		Config:    cfg,
		Completer: completion.NewRateLimited(client, cfg.AI.RequestsPerSecond, cfg.AI.Burst),
		Embedder:  embedder,
		Logger:    logger,
	}, nil
}
