package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"

	"github.com/aituberkit/mcp-proxy/internal/adapter/mcp"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const (
	sseEndpoint        = "/sse"
	sseMessageEndpoint = "/sse/message"
	streamableEndpoint = "/mcp"
)

// routes are the MCP transport handlers mounted by newHTTPHandler.
type routes struct {
	sse        http.Handler
	message    http.Handler
	streamable http.Handler
}

func newHTTPHandler(rt routes, allowedOrigins []string, logger *slog.Logger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.Handle(sseEndpoint, rt.sse).Methods(http.MethodGet)
	r.Handle(sseMessageEndpoint, rt.message).Methods(http.MethodPost)
	r.Handle(streamableEndpoint, rt.streamable).Methods(http.MethodGet, http.MethodPost, http.MethodDelete)
	r.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	var h http.Handler = r
	if len(allowedOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", mcp.ProjectRefHeader, "Mcp-Session-Id", "Mcp-Protocol-Version"},
			ExposedHeaders: []string{"Mcp-Session-Id"},
		}).Handler(h)
	}
	return recoveryMiddleware(h, logger)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, fmt.Sprintf("not found: %s", r.URL.Path), http.StatusNotFound)
}

// recoveryMiddleware turns a handler panic into a 500 and logs the stack.
func recoveryMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("http handler panic",
					slog.String("http.route", r.URL.Path),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// redactDSN masks the password of a connection string for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
