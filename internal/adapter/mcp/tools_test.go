package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/aituberkit/mcp-proxy/internal/adapter/openai"
	"github.com/aituberkit/mcp-proxy/internal/adapter/supabase"
	"github.com/aituberkit/mcp-proxy/internal/core/domain"
	"github.com/aituberkit/mcp-proxy/internal/core/port"
	"github.com/aituberkit/mcp-proxy/internal/core/service"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock QueryExecutor ---

type mockExecutor struct {
	result  []map[string]any
	err     error
	called  bool
	lastSQL string
	creds   port.Credentials
}

func (m *mockExecutor) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	m.called = true
	m.lastSQL = sql
	m.creds, _ = port.CredentialsFromContext(ctx)
	return m.result, m.err
}

// --- docs fakes ---

type stubStore struct {
	docs map[string]string
}

func (s *stubStore) Index(context.Context) ([]domain.DocEntry, error) {
	entries := make([]domain.DocEntry, 0, len(s.docs))
	for p := range s.docs {
		entries = append(entries, domain.DocEntry{Path: p})
	}
	return entries, nil
}

func (s *stubStore) Load(_ context.Context, path string) (string, error) {
	if c, ok := s.docs[path]; ok {
		return c, nil
	}
	return "", domain.ErrDocNotFound
}

type stubRanker struct {
	paths []string
	err   error
}

func (r *stubRanker) Rank(context.Context, string, []domain.DocEntry, int) ([]string, error) {
	return r.paths, r.err
}

// --- helpers ---

var sessionCounter atomic.Int64

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// callTool runs one tools/call round trip on a fresh in-process session.
func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	return callToolCtx(t, context.Background(), s, toolName, args)
}

func callToolCtx(t *testing.T, ctx context.Context, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	session := server.NewInProcessSession(fmt.Sprintf("test-%d", sessionCounter.Add(1)), nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}

func toolText(result *mcp.CallToolResult) string {
	return contentText(result, 0)
}

func contentText(result *mcp.CallToolResult, i int) string {
	if len(result.Content) <= i {
		return ""
	}
	tc, ok := result.Content[i].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

func testPolicy() domain.Policy {
	p := domain.DefaultPolicy()
	p.AllowedColumns = map[string][]string{
		"public_messages": {},
		"my_tweets":       {"id", "text", "like_count"},
	}
	p.MaxResultRows = 5
	p.Masks = map[string]domain.MaskType{"author": domain.MaskPartial}
	return p
}

func setupSupabaseServer(executor *mockExecutor) *server.MCPServer {
	logger := discardLogger()
	validator := domain.NewStatementValidator(testPolicy())
	querySvc := service.NewQueryService(validator, executor, port.NoopAuditor{}, logger, nil, nil)
	return NewSupabaseServer("test", querySvc, logger, nil, nil)
}

func setupDocsServer(store *stubStore, ranker *stubRanker) *server.MCPServer {
	logger := discardLogger()
	docsSvc := service.NewDocsService(store, ranker, nil, 3, logger, nil, nil)
	return NewDocsServer("test", docsSvc, logger, nil, nil)
}

// --- supabase ---

func TestSupabase_ReturnsRows(t *testing.T) {
	exec := &mockExecutor{result: []map[string]any{
		{"id": 1, "author": "viewer1", "content": "hello"},
	}}
	s := setupSupabaseServer(exec)

	result := callTool(t, s, toolSupabase, map[string]any{
		"sql": "SELECT id, author, content FROM public_messages LIMIT 1",
	})
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))
	assert.Equal(t, "SELECT id, author, content FROM public_messages LIMIT 1", exec.lastSQL)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "hello", rows[0]["content"])
	assert.Equal(t, "***wer1", rows[0]["author"])
	assert.Len(t, result.Content, 1)
}

func TestSupabase_NoLimitAddsWarning(t *testing.T) {
	exec := &mockExecutor{result: []map[string]any{{"id": 1}}}
	s := setupSupabaseServer(exec)

	result := callTool(t, s, toolSupabase, map[string]any{"sql": "SELECT id FROM my_tweets"})
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))
	assert.Equal(t, "SELECT * FROM (SELECT id FROM my_tweets) AS _q LIMIT 5", exec.lastSQL)
	require.Len(t, result.Content, 2)
	assert.Contains(t, contentText(result, 1), "Warning: no LIMIT clause specified")
}

func TestSupabase_Rejections(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{"delete", "DELETE FROM my_tweets", "forbidden keyword found: DELETE"},
		{"comment", "SELECT id FROM my_tweets -- hi", "forbidden keyword found: --"},
		{"union", "SELECT id FROM my_tweets UNION SELECT id FROM my_tweets", "forbidden keyword found: UNION"},
		{"table", "SELECT * FROM secrets", "table not allowed: secrets"},
		{"column", "SELECT password FROM my_tweets", "column not allowed: password"},
		{"limit", "SELECT id FROM my_tweets LIMIT 6", "LIMIT 6 exceeds the maximum of 5 rows"},
		{"empty", "   ", "empty statement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &mockExecutor{}
			s := setupSupabaseServer(exec)

			result := callTool(t, s, toolSupabase, map[string]any{"sql": tt.sql})
			assert.True(t, result.IsError)
			assert.Contains(t, toolText(result), tt.want)
			assert.False(t, exec.called, "rejected statements must not reach the executor")
		})
	}
}

func TestSupabase_MissingArgument(t *testing.T) {
	s := setupSupabaseServer(&mockExecutor{})

	result := callTool(t, s, toolSupabase, map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "sql is required")
}

func TestSupabase_UpstreamErrorPassesThrough(t *testing.T) {
	exec := &mockExecutor{err: &supabase.UpstreamError{
		Status:     400,
		StatusText: "Bad Request",
		Body:       `{"message": "relation does not exist"}`,
	}}
	s := setupSupabaseServer(exec)

	result := callTool(t, s, toolSupabase, map[string]any{"sql": "SELECT * FROM public_messages LIMIT 1"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "Error: 400 Bad Request")
	assert.Contains(t, toolText(result), "relation does not exist")
}

func TestSupabase_CredentialsReachExecutor(t *testing.T) {
	exec := &mockExecutor{result: []map[string]any{}}
	s := setupSupabaseServer(exec)

	ctx := port.WithCredentials(context.Background(), port.Credentials{AccessToken: "tok", ProjectRef: "abc"})
	result := callToolCtx(t, ctx, s, toolSupabase, map[string]any{"sql": "SELECT * FROM public_messages LIMIT 1"})
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))
	assert.Equal(t, port.Credentials{AccessToken: "tok", ProjectRef: "abc"}, exec.creds)
	assert.Equal(t, "[]", toolText(result))
}

// --- validate_sql ---

func TestValidateSQL(t *testing.T) {
	exec := &mockExecutor{}
	s := setupSupabaseServer(exec)

	result := callTool(t, s, toolValidateSQL, map[string]any{"sql": "SELECT id FROM my_tweets"})
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))

	var verdict domain.Verdict
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &verdict))
	assert.True(t, verdict.Accepted)
	assert.Equal(t, "SELECT", verdict.Verb)
	assert.Len(t, verdict.Warnings, 1)
	assert.False(t, exec.called)

	result = callTool(t, s, toolValidateSQL, map[string]any{"sql": "UPDATE my_tweets SET text = ''"})
	require.False(t, result.IsError, "a rejected verdict is still a successful tool call")
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &verdict))
	assert.False(t, verdict.Accepted)
	assert.Contains(t, verdict.Reason, "forbidden keyword found")
}

// --- describe_policy ---

func TestDescribePolicy(t *testing.T) {
	s := setupSupabaseServer(&mockExecutor{})

	result := callTool(t, s, toolDescribePolicy, nil)
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))

	var view policyView
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &view))
	assert.Equal(t, []string{"SELECT"}, view.AllowedOperations)
	assert.Equal(t, 5, view.MaxResultRows)
	assert.Contains(t, view.Tables, "my_tweets")
	assert.Equal(t, []string{"id", "text", "like_count"}, view.Tables["my_tweets"])
	assert.Equal(t, []string{"author"}, view.MaskedColumns)
	assert.Contains(t, view.ForbiddenKeywords, "DROP")
}

// --- search_aituberkit_docs ---

func TestSearchDocs(t *testing.T) {
	store := &stubStore{docs: map[string]string{
		"guide/voice.md": "Pick a voice engine.",
		"guide/setup.md": "Run npm install.",
	}}
	s := setupDocsServer(store, &stubRanker{paths: []string{"guide/voice.md"}})

	result := callTool(t, s, toolSearchDocs, map[string]any{"query": "voice"})
	require.False(t, result.IsError, "unexpected error: %s", toolText(result))

	text := toolText(result)
	assert.Contains(t, text, `Found 1 relevant document(s) for: "voice"`)
	assert.Contains(t, text, "# guide/voice.md")
	assert.Contains(t, text, "Pick a voice engine.")
	assert.NotContains(t, text, "npm install")
}

func TestSearchDocs_NoDocuments(t *testing.T) {
	s := setupDocsServer(&stubStore{docs: map[string]string{}}, &stubRanker{paths: []string{"missing.md"}})

	result := callTool(t, s, toolSearchDocs, map[string]any{"query": "anything"})
	assert.True(t, result.IsError)
	assert.Equal(t, domain.ErrNoDocuments.Error(), toolText(result))
}

func TestSearchDocs_RankerFailureIsSanitized(t *testing.T) {
	store := &stubStore{docs: map[string]string{"a.md": "a"}}
	s := setupDocsServer(store, &stubRanker{err: errors.New("dial tcp 10.0.0.3:443: connection refused")})

	result := callTool(t, s, toolSearchDocs, map[string]any{"query": "anything"})
	assert.True(t, result.IsError)
	assert.Equal(t, "search documentation failed: internal error; check server logs", toolText(result))
}

func TestSearchDocs_OpenAIErrorPassesThrough(t *testing.T) {
	store := &stubStore{docs: map[string]string{"a.md": "a"}}
	s := setupDocsServer(store, &stubRanker{err: &openai.APIError{Status: 429, Body: `{"error":{"message":"Rate limit reached"}}`}})

	result := callTool(t, s, toolSearchDocs, map[string]any{"query": "anything"})
	assert.True(t, result.IsError)
	assert.Equal(t, `Error searching documentation: OpenAI API error: 429 {"error":{"message":"Rate limit reached"}}`, toolText(result))
}

func TestSearchDocs_NotOnSupabaseServer(t *testing.T) {
	s := setupSupabaseServer(&mockExecutor{})

	ctx := context.Background()
	session := server.NewInProcessSession(fmt.Sprintf("test-%d", sessionCounter.Add(1)), nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{"name": toolSearchDocs, "arguments": map[string]any{"query": "x"}},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)
	assert.Contains(t, string(respBytes), `"error"`)
}

// --- sanitizeError ---

func TestSanitizeError(t *testing.T) {
	logger := discardLogger()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "rejection",
			err:  &service.RejectedError{Verdict: domain.Verdict{Reason: "table not allowed: vault"}},
			want: "table not allowed: vault",
		},
		{
			name: "missing token",
			err:  fmt.Errorf("executing: %w", supabase.ErrMissingAccessToken),
			want: "Missing access token",
		},
		{
			name: "missing project",
			err:  supabase.ErrMissingProjectRef,
			want: "Missing project reference",
		},
		{
			name: "deadline",
			err:  fmt.Errorf("query: %w", context.DeadlineExceeded),
			want: "query timed out",
		},
		{
			name: "upstream timeout",
			err:  supabase.ErrUpstreamTimeout,
			want: "query timed out",
		},
		{
			name: "statement timeout",
			err:  &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"},
			want: "query timed out",
		},
		{
			name: "pg error",
			err:  &pgconn.PgError{Code: "42P01", Message: `relation "nope" does not exist`},
			want: `Error: relation "nope" does not exist (SQLSTATE 42P01)`,
		},
		{
			name: "openai api error",
			err:  fmt.Errorf("ranking documents: %w", &openai.APIError{Status: 401, Body: `{"error":{"message":"Incorrect API key provided"}}`}),
			want: `Error searching documentation: OpenAI API error: 401 {"error":{"message":"Incorrect API key provided"}}`,
		},
		{
			name: "empty query",
			err:  domain.ErrEmptyQuery,
			want: "empty query",
		},
		{
			name: "unknown",
			err:  errors.New("pool exhausted at 10.0.0.5"),
			want: "query failed: internal error; check server logs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeError(logger, tt.err, "query"))
		})
	}
}

// --- credentials ---

func TestCredentialsFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    port.Credentials
		present bool
	}{
		{
			name:    "bearer and project",
			headers: map[string]string{"Authorization": "Bearer sbp_123", ProjectRefHeader: " abcd "},
			want:    port.Credentials{AccessToken: "sbp_123", ProjectRef: "abcd"},
			present: true,
		},
		{
			name:    "lowercase scheme",
			headers: map[string]string{"Authorization": "bearer sbp_123"},
			want:    port.Credentials{AccessToken: "sbp_123"},
			present: true,
		},
		{
			name:    "basic auth ignored",
			headers: map[string]string{"Authorization": "Basic dXNlcjpwYXNz"},
		},
		{
			name: "no headers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			ctx := CredentialsFromRequest(context.Background(), r)
			creds, ok := port.CredentialsFromContext(ctx)
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, tt.want, creds)
		})
	}
}
