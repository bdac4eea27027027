package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aituberkit/mcp-proxy/internal/adapter/openai"
	"github.com/aituberkit/mcp-proxy/internal/adapter/supabase"
	"github.com/aituberkit/mcp-proxy/internal/core/domain"
	"github.com/aituberkit/mcp-proxy/internal/core/service"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Tool names
const (
	toolSupabase       = "supabase"
	toolValidateSQL    = "validate_sql"
	toolDescribePolicy = "describe_policy"
	toolSearchDocs     = "search_aituberkit_docs"
)

// Tool descriptions
const (
	descSupabase = "Execute SQL queries on Supabase using Management API. " +
		"Statements are checked against the server's SQL policy before they are sent: " +
		"only allowed operations, tables and columns pass, and results are capped at the policy's row ceiling. " +
		"Call describe_policy first to see what is allowed."

	descSupabaseParam = "The SQL query to execute"

	descValidateSQL = "Check a SQL statement against the server's SQL policy without executing it. " +
		"Returns whether it would be accepted, the rejection reason, and any warnings."

	descValidateSQLParam = "The SQL statement to check"

	descDescribePolicy = "Show the SQL policy enforced by the supabase tool: allowed operations, " +
		"accessible tables and their columns, forbidden keywords, the row ceiling and masked columns."

	descSearchDocs = "Search AITuberKit documentation based on a query"

	descSearchDocsParam = "The search query for finding relevant AITuberKit documentation"
)

// policyView is the describe_policy payload.
type policyView struct {
	AllowedOperations []string            `json:"allowed_operations"`
	AllowAllTables    bool                `json:"allow_all_tables"`
	Tables            map[string][]string `json:"tables"`
	ForbiddenKeywords []string            `json:"forbidden_keywords"`
	MaxResultRows     int                 `json:"max_result_rows"`
	MaskedColumns     []string            `json:"masked_columns,omitempty"`
}

func RegisterSupabaseTools(s *server.MCPServer, query *service.QueryService, logger *slog.Logger) {
	s.AddTool(
		mcp.NewTool(toolSupabase,
			mcp.WithDescription(descSupabase),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descSupabaseParam),
			),
		),
		supabaseHandler(query, logger),
	)

	s.AddTool(
		mcp.NewTool(toolValidateSQL,
			mcp.WithDescription(descValidateSQL),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descValidateSQLParam),
			),
		),
		validateSQLHandler(query),
	)

	s.AddTool(
		mcp.NewTool(toolDescribePolicy,
			mcp.WithDescription(descDescribePolicy),
		),
		describePolicyHandler(query),
	)
}

func RegisterDocsTools(s *server.MCPServer, docs *service.DocsService, logger *slog.Logger) {
	s.AddTool(
		mcp.NewTool(toolSearchDocs,
			mcp.WithDescription(descSearchDocs),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description(descSearchDocsParam),
			),
		),
		searchDocsHandler(docs, logger),
	)
}

func supabaseHandler(query *service.QueryService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok {
			return mcp.NewToolResultError("sql is required"), nil
		}

		ctx = service.WithToolName(ctx, toolSupabase)
		result, err := query.Execute(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "query")), nil
		}

		data, err := json.MarshalIndent(result.Rows, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		content := []mcp.Content{mcp.NewTextContent(string(data))}
		for _, w := range result.Warnings {
			content = append(content, mcp.NewTextContent("Warning: "+w))
		}
		return &mcp.CallToolResult{Content: content}, nil
	}
}

func validateSQLHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok {
			return mcp.NewToolResultError("sql is required"), nil
		}

		verdict := query.Validate(ctx, sql)
		data, err := json.MarshalIndent(verdict, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal verdict: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func describePolicyHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p := query.Policy()
		view := policyView{
			AllowedOperations: p.AllowedOperations,
			AllowAllTables:    p.AllowAllTables,
			Tables:            p.AllowedColumns,
			ForbiddenKeywords: p.ForbiddenKeywords,
			MaxResultRows:     p.MaxResultRows,
		}
		for col := range p.Masks {
			view.MaskedColumns = append(view.MaskedColumns, col)
		}
		slices.Sort(view.MaskedColumns)

		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal policy: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func searchDocsHandler(docs *service.DocsService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, ok := request.GetArguments()["query"].(string)
		if !ok {
			return mcp.NewToolResultError("query is required"), nil
		}

		found, err := docs.Search(ctx, query)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "search documentation")), nil
		}
		return mcp.NewToolResultText(domain.FormatSearchResult(query, found)), nil
	}
}

// sanitizeError turns an error into text safe to return to the client.
// Policy rejections and Supabase or OpenAI API answers are shown as is;
// anything else is logged and replaced with a generic message.
func sanitizeError(logger *slog.Logger, err error, op string) string {
	var rejected *service.RejectedError
	if errors.As(err, &rejected) {
		return rejected.Error()
	}

	var upstream *supabase.UpstreamError
	if errors.As(err, &upstream) {
		return "Error: " + upstream.Error()
	}

	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return "Error searching documentation: " + openaiErr.Error()
	}

	switch {
	case errors.Is(err, supabase.ErrMissingAccessToken):
		return "Missing access token"
	case errors.Is(err, supabase.ErrMissingProjectRef):
		return "Missing project reference"
	case errors.Is(err, domain.ErrNoDocuments), errors.Is(err, domain.ErrEmptyQuery):
		return err.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, supabase.ErrUpstreamTimeout):
		return op + " timed out"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "57014" {
			return op + " timed out"
		}
		return fmt.Sprintf("Error: %s (SQLSTATE %s)", pgErr.Message, pgErr.Code)
	}

	logger.Error("tool error",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return fmt.Sprintf("%s failed: internal error; check server logs", op)
}
