package main

import (
	"context"
	"time"

	"github.com/aituberkit/mcp-proxy/internal/config"
	"github.com/spf13/cobra"
)

// runners are the server entry points; tests swap them to capture overrides.
type runners struct {
	supabase func(ctx context.Context, o config.SupabaseOverrides) error
	docs     func(ctx context.Context, o config.DocsOverrides) error
}

func newRootCmd(r runners) *cobra.Command {
	root := &cobra.Command{
		Use:   "mcp-proxy",
		Short: "MCP servers for Supabase SQL access and AITuberKit documentation search",
		Long: `mcp-proxy exposes two MCP servers:

  supabase  forwards policy-checked SQL to a Supabase project
  docs      answers questions with the most relevant AITuberKit documents

Both speak MCP over stdio (default) or HTTP (SSE and streamable HTTP).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("log-level", "info", "log level: debug, info, warn, error (env: LOG_LEVEL)")
	pf.String("transport", "stdio", "transport: stdio or http (env: TRANSPORT)")
	pf.String("http-addr", ":8080", "listen address for the http transport (env: HTTP_ADDR)")
	pf.Bool("otel", false, "enable OpenTelemetry tracing and metrics (env: OTEL_ENABLED)")

	root.AddCommand(newSupabaseCmd(r.supabase))
	root.AddCommand(newDocsCmd(r.docs))
	root.AddCommand(newValidateCmd())
	return root
}

func commonOverrides(cmd *cobra.Command) config.CommonOverrides {
	otel, _ := cmd.Flags().GetBool("otel")
	return config.CommonOverrides{
		LogLevel:    changedString(cmd, "log-level"),
		Transport:   changedString(cmd, "transport"),
		HTTPAddr:    changedString(cmd, "http-addr"),
		OTelEnabled: otel,
	}
}

// changedString returns the flag value only when it was set on the command
// line, so environment variables keep precedence over flag defaults.
func changedString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func changedInt(cmd *cobra.Command, name string) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt(name)
	return &v
}

func changedInt32(cmd *cobra.Command, name string) *int32 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt32(name)
	return &v
}

func changedDuration(cmd *cobra.Command, name string) *time.Duration {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetDuration(name)
	return &v
}
