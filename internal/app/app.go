package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"clause_lens/internal/config"
	"clause_lens/internal/index"
	"clause_lens/internal/llm"
	"clause_lens/internal/logger"
	"clause_lens/internal/pipeline"
	"clause_lens/internal/risk"
	"clause_lens/internal/store"
)

// App связывает разбор договоров с хранилищем и поисковым индексом
type App struct {
	cfg    *config.Config
	log    *logger.Logger
	parser *pipeline.Parser
	store  *store.Store
	index  *index.Index // nil, если INDEX_ENABLED=false

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a := &App{cfg: cfg, log: log}

	engine, err := riskEngine(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := a.buildService(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.parser, err = pipeline.NewParser(svc, engine, cfg.Segment, cfg.ParseTimeout, log)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("failed to create parser: %w", err)
	}

	a.store, err = store.Open(cfg.DBFile)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)

	if cfg.IndexEnabled {
		if err := index.EnsureOllamaModel(ctx, cfg.Ollama, nil, log); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("ollama model check failed: %w", err)
		}
		a.index, err = index.Open(cfg.IndexFile, index.OllamaEmbedding(cfg.Ollama), log)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	log.Info("Application initialized",
		"dataDir", cfg.DataDir,
		"provider", cfg.LLM.Provider,
		"index", cfg.IndexEnabled)
	return a, nil
}

// Close освобождает соединения в обратном порядке
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func riskEngine(cfg *config.Config) (*risk.Engine, error) {
	if cfg.KeywordsFile == "" {
		return risk.Default(), nil
	}
	tables, err := risk.LoadTables(cfg.KeywordsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load keyword tables: %w", err)
	}
	return risk.NewEngine(tables), nil
}

// buildService выбирает сервис сегментации по LLM_PROVIDER и, если задан REDIS_ADDR,
// оборачивает его кешем ответов. nil - сегментация только правилами
func (a *App) buildService(ctx context.Context) (llm.Service, error) {
	var svc llm.Service
	switch a.cfg.LLM.Provider {
	case "none":
		a.log.Info("No segmentation service configured, using structure rules")
		return nil, nil
	case "gemini":
		g, err := llm.NewGemini(ctx, a.cfg.Gemini, a.cfg.LLM)
		if err != nil {
			return nil, err
		}
		svc = g
	default:
		svc = llm.NewOpenAI(a.cfg.LLM, a.log)
	}

	if a.cfg.Redis.Addr == "" {
		return svc, nil
	}
	cache, err := llm.NewRedisCache(ctx, a.cfg.Redis)
	if err != nil {
		a.log.Warn("⚠️ Redis unavailable, responses will not be cached", "addr", a.cfg.Redis.Addr, "error", err)
		return svc, nil
	}
	a.closers = append(a.closers, cache.Close)
	return llm.WithCache(svc, cache, a.log), nil
}
