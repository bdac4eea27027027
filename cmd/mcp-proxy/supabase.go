package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aituberkit/mcp-proxy/internal/adapter/mcp"
	"github.com/aituberkit/mcp-proxy/internal/adapter/policy"
	"github.com/aituberkit/mcp-proxy/internal/adapter/postgres"
	"github.com/aituberkit/mcp-proxy/internal/adapter/supabase"
	"github.com/aituberkit/mcp-proxy/internal/audit"
	"github.com/aituberkit/mcp-proxy/internal/config"
	"github.com/aituberkit/mcp-proxy/internal/core/domain"
	"github.com/aituberkit/mcp-proxy/internal/core/port"
	"github.com/aituberkit/mcp-proxy/internal/core/service"
	"github.com/spf13/cobra"
)

func newSupabaseCmd(run func(context.Context, config.SupabaseOverrides) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "supabase",
		Short: "Serve the policy-checked Supabase SQL tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), supabaseOverrides(cmd))
		},
	}

	f := cmd.Flags()
	f.String("policy-file", "", "path to the SQL policy YAML (env: POLICY_FILE)")
	f.String("query-backend", config.BackendManagementAPI, "management-api or postgres (env: QUERY_BACKEND)")
	f.String("sql-extractor", config.ExtractorLexical, "table/column extraction: lexical or parser (env: SQL_EXTRACTOR)")
	f.String("database-url", "", "Postgres connection string for the postgres backend (env: DATABASE_URL)")
	f.Duration("query-timeout", 0, "per-statement timeout (env: QUERY_TIMEOUT)")
	f.Bool("explain-only", false, "run EXPLAIN for accepted statements instead of executing them")
	f.String("audit-log", "", "append an NDJSON audit record per SQL call to this file")
	f.Int32("pool-max-conns", 0, "maximum Postgres connections (env: POOL_MAX_CONNS)")
	f.Int32("pool-min-conns", 0, "minimum idle Postgres connections (env: POOL_MIN_CONNS)")
	f.Duration("pool-max-conn-lifetime", 0, "maximum Postgres connection lifetime (env: POOL_MAX_CONN_LIFETIME)")
	return cmd
}

func supabaseOverrides(cmd *cobra.Command) config.SupabaseOverrides {
	explainOnly, _ := cmd.Flags().GetBool("explain-only")
	auditLog, _ := cmd.Flags().GetString("audit-log")
	return config.SupabaseOverrides{
		CommonOverrides:     commonOverrides(cmd),
		PolicyFile:          changedString(cmd, "policy-file"),
		QueryBackend:        changedString(cmd, "query-backend"),
		SQLExtractor:        changedString(cmd, "sql-extractor"),
		DatabaseURL:         changedString(cmd, "database-url"),
		QueryTimeout:        changedDuration(cmd, "query-timeout"),
		ExplainOnly:         explainOnly,
		AuditLog:            auditLog,
		PoolMaxConns:        changedInt32(cmd, "pool-max-conns"),
		PoolMinConns:        changedInt32(cmd, "pool-min-conns"),
		PoolMaxConnLifetime: changedDuration(cmd, "pool-max-conn-lifetime"),
	}
}

func runSupabase(ctx context.Context, o config.SupabaseOverrides) error {
	cfg, err := config.LoadSupabase(o)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting supabase server",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("transport", cfg.Transport),
		slog.String("query_backend", cfg.QueryBackend),
		slog.String("sql_extractor", cfg.SQLExtractor),
		slog.String("query_timeout", cfg.QueryTimeout.String()),
		slog.Bool("explain_only", cfg.ExplainOnly),
	)

	tracer, inst, shutdown, err := setupTelemetry(ctx, cfg.Common, "mcp-proxy-supabase", logger)
	if err != nil {
		return err
	}
	defer shutdown()

	pol, err := policy.Load(cfg.PolicyFile)
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}
	logger.Info("policy loaded",
		slog.String("file", cfg.PolicyFile),
		slog.Any("operations", pol.AllowedOperations),
		slog.Int("tables", len(pol.AllowedColumns)),
		slog.Bool("allow_all_tables", pol.AllowAllTables),
		slog.Int("max_result_rows", pol.MaxResultRows),
	)

	var opts []domain.ValidatorOption
	if cfg.SQLExtractor == config.ExtractorParser {
		opts = append(opts, domain.WithExtractor(domain.ParserExtractor{}))
	}
	validator := domain.NewStatementValidator(pol, opts...)

	var executor port.QueryExecutor
	switch cfg.QueryBackend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		logger.Info("database pool connected",
			slog.String("db.system", "postgresql"),
			slog.String("db.url", redactDSN(cfg.DatabaseURL)),
		)
		executor = postgres.NewExecutor(pool, cfg.QueryTimeout)
	default:
		executor = supabase.NewExecutor(cfg.APIURL, cfg.QueryTimeout,
			supabase.WithDefaultCredentials(port.Credentials{
				AccessToken: cfg.AccessToken,
				ProjectRef:  cfg.ProjectRef,
			}),
		)
	}

	if cfg.ExplainOnly {
		executor = postgres.NewExplainOnlyExecutor(executor)
	}

	var auditor port.QueryAuditor = port.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		auditor = fa
		logger.Info("audit log enabled", slog.String("path", cfg.AuditLog))
	}
	defer func() { _ = auditor.Close() }()

	querySvc := service.NewQueryService(validator, executor, auditor, logger, tracer, inst)
	srv := mcp.NewSupabaseServer(version, querySvc, logger, tracer, inst)

	return serve(ctx, cfg.Common, srv, logger)
}
