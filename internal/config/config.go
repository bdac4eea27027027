package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Query backends.
const (
	BackendManagementAPI = "management-api"
	BackendPostgres      = "postgres"
)

// Table extractors.
const (
	ExtractorLexical = "lexical"
	ExtractorParser  = "parser"
)

// Common holds the settings shared by every server.
type Common struct {
	// Logging.
	LogLevel slog.Level

	// Transport.
	Transport          string   // "stdio" (default) or "http"
	HTTPAddr           string   // listen address for HTTP transport (default ":8080")
	CORSAllowedOrigins []string // empty disables CORS headers

	// Observability.
	OTelEnabled bool
}

// Supabase configures the SQL proxy.
type Supabase struct {
	Common

	PolicyFile   string // optional path to policy YAML
	QueryBackend string // "management-api" (default) or "postgres"
	SQLExtractor string // "lexical" (default) or "parser"
	QueryTimeout time.Duration

	// Management API. Token and project ref are fallbacks for requests that
	// carry no headers (stdio).
	APIURL      string
	AccessToken string
	ProjectRef  string

	// Direct Postgres backend.
	DatabaseURL         string
	PoolMaxConns        int32         // default: 5
	PoolMinConns        int32         // default: 1
	PoolMaxConnLifetime time.Duration // default: 30m

	// CLI-only fields (not settable via env vars).
	ExplainOnly bool
	AuditLog    string // path to NDJSON audit log file
}

// Docs configures the documentation search server.
type Docs struct {
	Common

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	DocsDir    string
	MaxResults int

	CacheRedisURL string // empty disables the selection cache
	CacheTTL      time.Duration
}

// CommonOverrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type CommonOverrides struct {
	LogLevel    *string
	Transport   *string
	HTTPAddr    *string
	OTelEnabled bool
}

type SupabaseOverrides struct {
	CommonOverrides

	PolicyFile   *string
	QueryBackend *string
	SQLExtractor *string
	DatabaseURL  *string
	QueryTimeout *time.Duration
	ExplainOnly  bool
	AuditLog     string

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

type DocsOverrides struct {
	CommonOverrides

	DocsDir     *string
	MaxResults  *int
	OpenAIModel *string
}

// LoadSupabase builds a Supabase config from environment variables, then
// applies CLI overrides, then validates the result.
func LoadSupabase(o SupabaseOverrides) (*Supabase, error) {
	cfg := &Supabase{
		Common:              commonDefaults(),
		QueryBackend:        BackendManagementAPI,
		SQLExtractor:        ExtractorLexical,
		QueryTimeout:        30 * time.Second,
		APIURL:              "https://api.supabase.com",
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}

	if err := loadCommonEnv(&cfg.Common); err != nil {
		return nil, err
	}
	if err := loadSupabaseEnv(cfg); err != nil {
		return nil, err
	}
	if err := applyCommonOverrides(&cfg.Common, o.CommonOverrides); err != nil {
		return nil, err
	}
	if err := applySupabaseOverrides(cfg, o); err != nil {
		return nil, err
	}
	if err := validateSupabase(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDocs builds a Docs config from environment variables, then applies
// CLI overrides, then validates the result.
func LoadDocs(o DocsOverrides) (*Docs, error) {
	cfg := &Docs{
		Common:        commonDefaults(),
		OpenAIBaseURL: "https://api.openai.com",
		OpenAIModel:   "gpt-4o-mini",
		MaxResults:    3,
		CacheTTL:      time.Hour,
	}

	if err := loadCommonEnv(&cfg.Common); err != nil {
		return nil, err
	}
	if err := loadDocsEnv(cfg); err != nil {
		return nil, err
	}
	if err := applyCommonOverrides(&cfg.Common, o.CommonOverrides); err != nil {
		return nil, err
	}
	if o.DocsDir != nil {
		cfg.DocsDir = *o.DocsDir
	}
	if o.MaxResults != nil {
		if *o.MaxResults <= 0 {
			return nil, fmt.Errorf("invalid --max-results value: must be a positive integer")
		}
		cfg.MaxResults = *o.MaxResults
	}
	if o.OpenAIModel != nil {
		cfg.OpenAIModel = *o.OpenAIModel
	}
	if err := validateDocs(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func commonDefaults() Common {
	return Common{
		LogLevel:  slog.LevelInfo,
		Transport: "stdio",
		HTTPAddr:  ":8080",
	}
}

// loadCommonEnv reads the environment variables every server understands.
func loadCommonEnv(cfg *Common) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := ParseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.CORSAllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}
	return nil
}

func loadSupabaseEnv(cfg *Supabase) error {
	cfg.PolicyFile = os.Getenv("POLICY_FILE")
	if v := os.Getenv("QUERY_BACKEND"); v != "" {
		cfg.QueryBackend = v
	}
	if v := os.Getenv("SQL_EXTRACTOR"); v != "" {
		cfg.SQLExtractor = v
	}
	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid QUERY_TIMEOUT value %q: %w", v, err)
		}
		cfg.QueryTimeout = d
	}

	if v := os.Getenv("SUPABASE_API_URL"); v != "" {
		cfg.APIURL = v
	}
	cfg.AccessToken = os.Getenv("SUPABASE_ACCESS_TOKEN")
	cfg.ProjectRef = os.Getenv("SUPABASE_PROJECT_REF")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	return loadPoolEnvVars(cfg)
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Supabase) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	if v := os.Getenv("POOL_MAX_CONN_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POOL_MAX_CONN_LIFETIME value %q: %w", v, err)
		}
		cfg.PoolMaxConnLifetime = d
	}
	return nil
}

func loadDocsEnv(cfg *Docs) error {
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.OpenAIBaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	cfg.DocsDir = os.Getenv("DOCS_DIR")

	if v := os.Getenv("DOCS_MAX_RESULTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid DOCS_MAX_RESULTS value %q: must be a positive integer", v)
		}
		cfg.MaxResults = n
	}

	cfg.CacheRedisURL = os.Getenv("DOCS_CACHE_REDIS_URL")
	if v := os.Getenv("DOCS_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid DOCS_CACHE_TTL value %q: %w", v, err)
		}
		cfg.CacheTTL = d
	}
	return nil
}

// applyCommonOverrides applies CLI flag values on top of the env-loaded config.
func applyCommonOverrides(cfg *Common, o CommonOverrides) error {
	if o.LogLevel != nil {
		level, err := ParseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.Transport != nil {
		cfg.Transport = *o.Transport
	}
	if o.HTTPAddr != nil {
		cfg.HTTPAddr = *o.HTTPAddr
	}
	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled
	return nil
}

func applySupabaseOverrides(cfg *Supabase, o SupabaseOverrides) error {
	if o.PolicyFile != nil {
		cfg.PolicyFile = *o.PolicyFile
	}
	if o.QueryBackend != nil {
		cfg.QueryBackend = *o.QueryBackend
	}
	if o.SQLExtractor != nil {
		cfg.SQLExtractor = *o.SQLExtractor
	}
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.QueryTimeout != nil {
		cfg.QueryTimeout = *o.QueryTimeout
	}

	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}

	cfg.ExplainOnly = o.ExplainOnly
	cfg.AuditLog = o.AuditLog
	return nil
}

func validateCommon(cfg *Common) error {
	switch cfg.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("invalid TRANSPORT value %q: must be \"stdio\" or \"http\"", cfg.Transport)
	}
	return nil
}

// validateSupabase checks cross-field constraints on the final config.
func validateSupabase(cfg *Supabase) error {
	if err := validateCommon(&cfg.Common); err != nil {
		return err
	}

	switch cfg.QueryBackend {
	case BackendManagementAPI:
		if cfg.APIURL == "" {
			return fmt.Errorf("SUPABASE_API_URL must not be empty")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when QUERY_BACKEND is %q (set via env var or --database-url flag)", BackendPostgres)
		}
	default:
		return fmt.Errorf("invalid QUERY_BACKEND value %q: must be %q or %q", cfg.QueryBackend, BackendManagementAPI, BackendPostgres)
	}

	switch cfg.SQLExtractor {
	case ExtractorLexical, ExtractorParser:
	default:
		return fmt.Errorf("invalid SQL_EXTRACTOR value %q: must be %q or %q", cfg.SQLExtractor, ExtractorLexical, ExtractorParser)
	}

	if cfg.QueryTimeout <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT must be positive, got %s", cfg.QueryTimeout)
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}
	return nil
}

func validateDocs(cfg *Docs) error {
	if err := validateCommon(&cfg.Common); err != nil {
		return err
	}
	if cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if cfg.DocsDir == "" {
		return fmt.Errorf("DOCS_DIR is required (set via env var or --docs-dir flag)")
	}
	if info, err := os.Stat(cfg.DocsDir); err != nil {
		return fmt.Errorf("DOCS_DIR %q: %w", cfg.DocsDir, err)
	} else if !info.IsDir() {
		return fmt.Errorf("DOCS_DIR %q is not a directory", cfg.DocsDir)
	}
	if cfg.CacheRedisURL != "" && cfg.CacheTTL <= 0 {
		return fmt.Errorf("DOCS_CACHE_TTL must be positive, got %s", cfg.CacheTTL)
	}
	return nil
}

// ParseLogLevel maps debug|info|warn|error to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
