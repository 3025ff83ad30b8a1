package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"deskmemo/internal/analyzer"
	"deskmemo/internal/config"
	"deskmemo/internal/logger"
	"deskmemo/internal/storage"
	"deskmemo/internal/vectorindex"
)

// openStore loads the config and opens the database.
func openStore() (*config.Config, storage.Storage, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Storage.EnsureDBPath(); err != nil {
		return nil, nil, fmt.Errorf("failed to create db path: %w", err)
	}
	st, err := storage.NewStorage(cfg.Storage.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return cfg, st, nil
}

func newAnalyzer(cfg *config.Config) (*analyzer.OpenAI, error) {
	timeout, err := cfg.Analyzer.GetTimeout()
	if err != nil {
		return nil, err
	}
	return analyzer.NewOpenAI(analyzer.Options{
		APIKey:        cfg.Analyzer.APIKey,
		BaseURL:       cfg.Analyzer.BaseURL,
		Model:         cfg.Analyzer.Model,
		SummaryModel:  cfg.Analyzer.SummaryModel,
		MaxTokens:     cfg.Analyzer.MaxTokens,
		Timeout:       timeout,
		Prompt:        cfg.Analyzer.PromptContent,
		SummaryPrompt: cfg.Analyzer.SummaryPromptContent,
	}), nil
}

// openIndex connects to Qdrant. It returns a nil Index when semantic search
// is disabled or unreachable; the caller then runs keyword-only.
func openIndex(ctx context.Context, cfg *config.Config) (vectorindex.Index, io.Closer) {
	if cfg.Qdrant.URL == "" {
		logger.GetLogger().Info("Qdrant not configured, semantic search disabled")
		return nil, nil
	}

	embedder := vectorindex.NewEmbeddingsClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey,
		cfg.Embedding.Model, cfg.Embedding.VectorSize)
	idx, err := vectorindex.NewQdrantIndex(cfg.Qdrant.URL, cfg.Qdrant.Collection, embedder)
	if err != nil {
		logger.GetLogger().Warnf("Vector index unavailable, semantic search disabled: %v", err)
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := idx.EnsureCollection(ctx, cfg.Embedding.VectorSize); err != nil {
		logger.GetLogger().Warnf("Vector index unavailable, semantic search disabled: %v", err)
		_ = idx.Close()
		return nil, nil
	}
	return idx, idx
}
