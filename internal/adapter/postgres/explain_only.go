package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/aituberkit/mcp-proxy/internal/core/port"
)

// planColumn is the column EXPLAIN reports through both pgx and the
// Management API.
const planColumn = "QUERY PLAN"

// ExplainOnlyExecutor returns query plans instead of data. Every statement is
// sent as EXPLAIN, and the one-row-per-line plan comes back as a single row
// {"query_plan": "<lines joined by newlines>"}. It decorates any
// QueryExecutor, including the Supabase Management API one.
type ExplainOnlyExecutor struct {
	inner port.QueryExecutor
}

func NewExplainOnlyExecutor(inner port.QueryExecutor) *ExplainOnlyExecutor {
	return &ExplainOnlyExecutor{inner: inner}
}

func (e *ExplainOnlyExecutor) Execute(ctx context.Context, sql string) ([]map[string]any, error) {
	sql = strings.TrimRight(strings.TrimSpace(sql), "; \t\n")
	if !isExplain(sql) {
		sql = "EXPLAIN " + sql
	}

	rows, err := e.inner.Execute(ctx, sql)
	if err != nil {
		return nil, err
	}
	return collapsePlan(rows), nil
}

// collapsePlan joins the plan lines. Rows without a plan column (EXPLAIN with
// FORMAT JSON, for instance) are returned unchanged.
func collapsePlan(rows []map[string]any) []map[string]any {
	if len(rows) == 0 {
		return rows
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		line, ok := row[planColumn]
		if !ok || len(row) != 1 {
			return rows
		}
		lines = append(lines, fmt.Sprint(line))
	}
	return []map[string]any{{"query_plan": strings.Join(lines, "\n")}}
}
