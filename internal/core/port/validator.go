package port

import "github.com/aituberkit/mcp-proxy/internal/core/domain"

// StatementValidator checks SQL text against the active policy.
type StatementValidator interface {
	Validate(sql string) domain.Verdict
	Policy() domain.Policy
}
