package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aituberkit/mcp-proxy/internal/adapter/mcp"
	"github.com/aituberkit/mcp-proxy/internal/config"
	"github.com/aituberkit/mcp-proxy/internal/core/port"
	"github.com/aituberkit/mcp-proxy/internal/telemetry"
	"go.opentelemetry.io/otel/trace"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

const shutdownTimeout = 10 * time.Second

// newLogger writes JSON to stderr; stdout is reserved for the stdio transport.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// setupTelemetry returns noop instruments unless OTel is enabled.
func setupTelemetry(ctx context.Context, cfg config.Common, serviceName string, logger *slog.Logger) (trace.Tracer, port.Instrumentation, func(), error) {
	if !cfg.OTelEnabled {
		return telemetry.NoopTracer(), telemetry.NoopInstruments(), func() {}, nil
	}

	provider, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName: serviceName,
		Version:     version,
		Transport:   cfg.Transport,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	logger.Info("opentelemetry enabled", slog.String("service.name", serviceName))

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}
	return provider.Tracer(), provider.Instruments(), shutdown, nil
}

// serve runs srv on the configured transport until ctx is cancelled.
func serve(ctx context.Context, cfg config.Common, srv *mcpserver.MCPServer, logger *slog.Logger) error {
	if cfg.Transport == "http" {
		return serveHTTP(ctx, cfg, srv, logger)
	}

	stdioServer := mcpserver.NewStdioServer(srv)
	logger.Info("serving MCP over stdio")
	if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// newTransports builds the SSE and streamable HTTP transports for srv. Both
// copy request credentials onto the context of every tool call.
func newTransports(srv *mcpserver.MCPServer) (routes, *mcpserver.SSEServer) {
	sse := mcpserver.NewSSEServer(srv,
		mcpserver.WithSSEEndpoint(sseEndpoint),
		mcpserver.WithMessageEndpoint(sseMessageEndpoint),
		mcpserver.WithSSEContextFunc(mcp.CredentialsFromRequest),
	)
	streamable := mcpserver.NewStreamableHTTPServer(srv,
		mcpserver.WithEndpointPath(streamableEndpoint),
		mcpserver.WithHTTPContextFunc(mcp.CredentialsFromRequest),
	)
	return routes{
		sse:        sse.SSEHandler(),
		message:    sse.MessageHandler(),
		streamable: streamable,
	}, sse
}

func serveHTTP(ctx context.Context, cfg config.Common, srv *mcpserver.MCPServer, logger *slog.Logger) error {
	rt, sse := newTransports(srv)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newHTTPHandler(rt, cfg.CORSAllowedOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over HTTP",
			slog.String("server.address", cfg.HTTPAddr),
			slog.Any("cors.allowed_origins", cfg.CORSAllowedOrigins),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sse.Shutdown(shutdownCtx); err != nil {
		logger.Warn("sse shutdown", slog.String("error", err.Error()))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
