package mcp

import (
	"log/slog"

	"github.com/aituberkit/mcp-proxy/internal/core/port"
	"github.com/aituberkit/mcp-proxy/internal/core/service"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

// Server metadata
const (
	SupabaseServerName = "SupabaseMCP Server"
	DocsServerName     = "AITuberKit Documentation MCP Server"
)

// NewSupabaseServer creates the MCP server exposing the SQL tools.
func NewSupabaseServer(version string, query *service.QueryService, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		SupabaseServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterSupabaseTools(s, query, logger)

	return s
}

// NewDocsServer creates the MCP server exposing the documentation search tool.
func NewDocsServer(version string, docs *service.DocsService, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		DocsServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterDocsTools(s, docs, logger)

	return s
}
