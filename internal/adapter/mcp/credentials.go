package mcp

import (
	"context"
	"net/http"
	"strings"

	"github.com/aituberkit/mcp-proxy/internal/core/port"
)

// ProjectRefHeader names the Supabase project a request targets.
const ProjectRefHeader = "X-Project-Ref"

// CredentialsFromRequest copies the bearer token and project reference of an
// incoming HTTP request onto ctx. It is used as the context function of both
// the SSE and the streamable HTTP transports, so every tool call sees the
// headers of the request that carried it.
func CredentialsFromRequest(ctx context.Context, r *http.Request) context.Context {
	creds := port.Credentials{
		AccessToken: bearerToken(r.Header.Get("Authorization")),
		ProjectRef:  strings.TrimSpace(r.Header.Get(ProjectRefHeader)),
	}
	if creds.AccessToken == "" && creds.ProjectRef == "" {
		return ctx
	}
	return port.WithCredentials(ctx, creds)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
