package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aituberkit/mcp-proxy/internal/adapter/cache"
	"github.com/aituberkit/mcp-proxy/internal/adapter/docs"
	"github.com/aituberkit/mcp-proxy/internal/adapter/mcp"
	"github.com/aituberkit/mcp-proxy/internal/adapter/openai"
	"github.com/aituberkit/mcp-proxy/internal/config"
	"github.com/aituberkit/mcp-proxy/internal/core/port"
	"github.com/aituberkit/mcp-proxy/internal/core/service"
	"github.com/spf13/cobra"
)

const openAITimeout = 60 * time.Second

func newDocsCmd(run func(context.Context, config.DocsOverrides) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Serve the AITuberKit documentation search tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), docsOverrides(cmd))
		},
	}

	f := cmd.Flags()
	f.String("docs-dir", "", "directory holding index.json and the documents (env: DOCS_DIR)")
	f.Int("max-results", 3, "documents returned per search (env: DOCS_MAX_RESULTS)")
	f.String("openai-model", "gpt-4o-mini", "chat model used to rank documents (env: OPENAI_MODEL)")
	return cmd
}

func docsOverrides(cmd *cobra.Command) config.DocsOverrides {
	return config.DocsOverrides{
		CommonOverrides: commonOverrides(cmd),
		DocsDir:         changedString(cmd, "docs-dir"),
		MaxResults:      changedInt(cmd, "max-results"),
		OpenAIModel:     changedString(cmd, "openai-model"),
	}
}

func runDocs(ctx context.Context, o config.DocsOverrides) error {
	cfg, err := config.LoadDocs(o)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting docs server",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("transport", cfg.Transport),
		slog.String("docs_dir", cfg.DocsDir),
		slog.String("openai_model", cfg.OpenAIModel),
		slog.Int("max_results", cfg.MaxResults),
	)

	tracer, inst, shutdown, err := setupTelemetry(ctx, cfg.Common, "mcp-proxy-docs", logger)
	if err != nil {
		return err
	}
	defer shutdown()

	store, err := docs.NewStore(os.DirFS(cfg.DocsDir))
	if err != nil {
		return fmt.Errorf("loading docs index: %w", err)
	}
	entries, _ := store.Index(ctx)
	logger.Info("docs index loaded", slog.Int("documents", len(entries)))

	ranker := openai.NewRanker(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel,
		&http.Client{Timeout: openAITimeout})

	var selections port.SelectionCache
	if cfg.CacheRedisURL != "" {
		c, err := cache.NewRedisSelectionCache(ctx, cfg.CacheRedisURL, cfg.CacheTTL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = c.Close() }()
		selections = c
		logger.Info("docs selection cache enabled", slog.String("ttl", cfg.CacheTTL.String()))
	}

	docsSvc := service.NewDocsService(store, ranker, selections, cfg.MaxResults, logger, tracer, inst)
	srv := mcp.NewDocsServer(version, docsSvc, logger, tracer, inst)

	return serve(ctx, cfg.Common, srv, logger)
}
