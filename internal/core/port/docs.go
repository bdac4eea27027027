package port

import (
	"context"

	"github.com/aituberkit/mcp-proxy/internal/core/domain"
)

// DocumentStore serves the documentation index and file contents.
type DocumentStore interface {
	Index(ctx context.Context) ([]domain.DocEntry, error)
	Load(ctx context.Context, path string) (string, error)
}

// DocumentRanker picks up to limit index paths relevant to query.
type DocumentRanker interface {
	Rank(ctx context.Context, query string, entries []domain.DocEntry, limit int) ([]string, error)
}

// SelectionCache remembers ranker output per query. A miss returns ok=false
// and a nil error.
type SelectionCache interface {
	Get(ctx context.Context, query string) (paths []string, ok bool, err error)
	Set(ctx context.Context, query string, paths []string) error
}

// NoopSelectionCache never hits.
type NoopSelectionCache struct{}

func (NoopSelectionCache) Get(context.Context, string) ([]string, bool, error) { return nil, false, nil }
func (NoopSelectionCache) Set(context.Context, string, []string) error        { return nil }
