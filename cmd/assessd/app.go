package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/assessd/internal/config"
	"github.com/fyrsmithlabs/assessd/internal/embeddings"
	"github.com/fyrsmithlabs/assessd/internal/llm"
	"github.com/fyrsmithlabs/assessd/internal/loader"
	"github.com/fyrsmithlabs/assessd/internal/logging"
	"github.com/fyrsmithlabs/assessd/internal/recommend"
	"github.com/fyrsmithlabs/assessd/internal/secrets"
	"github.com/fyrsmithlabs/assessd/internal/telemetry"
	"github.com/fyrsmithlabs/assessd/internal/vectorstore"
	"go.uber.org/zap"
)

// app holds every dependency a command needs.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	embedder  embeddings.Provider
	orch      *recommend.Orchestrator
}

// appOptions tune construction per command.
type appOptions struct {
	// requireLLM fails construction when no LLM credential is configured.
	requireLLM bool
	// logToStderr keeps stdout free for command output.
	logToStderr bool
}

// newApp wires configuration, logging, telemetry, embeddings, the vector
// store, the LLM client and the orchestrator, in that order.
func newApp(ctx context.Context, root *rootOptions, opts appOptions) (_ *app, err error) {
	if err := config.LoadDotEnv(root.envFiles...); err != nil {
		return nil, err
	}
	cfg, err := config.LoadWithFile(root.configPath)
	if err != nil {
		return nil, err
	}
	if root.logLevel != "" {
		cfg.Logging.Level = root.logLevel
	}

	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Observability, version), nil)
	if err != nil {
		return nil, err
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logCfg.Output.Stderr = opts.logToStderr
	logCfg.Output.OTEL = tel.Enabled()
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, telemetry: tel}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.embedder, err = embeddings.NewProvider(embeddings.FromSettings(cfg.Embeddings), logger.Underlying().Named("embeddings"))
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	store, err := vectorstore.NewStore(cfg, a.embedder, logger.Underlying().Named("vectorstore"))
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	var generator recommend.Generator
	llmModel := "unavailable"
	client, err := llm.New(llm.FromSettings(cfg.LLM), logger)
	switch {
	case err == nil:
		generator = client
		llmModel = client.Model()
	case opts.requireLLM:
		_ = store.Close()
		return nil, &recommend.Error{Kind: recommend.KindConfiguration, Op: "llm", Err: err}
	default:
		logger.Debug(ctx, "llm not configured", zap.Error(err))
		generator = unavailableGenerator{err: err}
		err = nil
	}

	scrubber, err := secrets.New(secrets.FromSettings(cfg.Scrub))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("compiling scrub rules: %w", err)
	}

	a.orch, err = recommend.New(recommend.Options{
		Loader:    loader.New(logger.Underlying().Named("loader")),
		Store:     store,
		Generator: generator,
		Scrubber:  scrubber,
		Config:    recommend.FromSettings(cfg),
		Logger:    logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Info(ctx, "assessd initialized",
		zap.String("version", version),
		zap.String("embeddings", vectorstore.EmbeddingModelKey(cfg.Embeddings)),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("llm", cfg.LLM.Provider+":"+llmModel),
		zap.Bool("telemetry", tel.Enabled()),
	)
	return a, nil
}

// close releases resources in reverse order of construction.
func (a *app) close(ctx context.Context) {
	var errs []error
	if a.orch != nil {
		errs = append(errs, a.orch.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn(ctx, "errors during shutdown", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// unavailableGenerator stands in for the LLM in commands that never
// generate, such as index.
type unavailableGenerator struct {
	err error
}

func (g unavailableGenerator) Generate(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: %w", llm.ErrGenerationFailed, g.err)
}
