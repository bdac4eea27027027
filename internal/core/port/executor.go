package port

import "context"

// QueryExecutor runs an already-validated statement against a database backend
// and returns its rows keyed by column name.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) ([]map[string]any, error)
}
