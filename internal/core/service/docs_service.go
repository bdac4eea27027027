package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aituberkit/mcp-proxy/internal/core/domain"
	"github.com/aituberkit/mcp-proxy/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DocsService answers documentation questions: the ranker picks files from
// the index and the store supplies their contents.
type DocsService struct {
	store      port.DocumentStore
	ranker     port.DocumentRanker
	cache      port.SelectionCache
	maxResults int
	logger     *slog.Logger
	tracer     trace.Tracer
	inst       port.Instrumentation
}

func NewDocsService(store port.DocumentStore, ranker port.DocumentRanker, cache port.SelectionCache, maxResults int, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *DocsService {
	if cache == nil {
		cache = port.NoopSelectionCache{}
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &DocsService{
		store:      store,
		ranker:     ranker,
		cache:      cache,
		maxResults: maxResults,
		logger:     logger,
		tracer:     tracer,
		inst:       inst,
	}
}

// Search returns the documents the ranker considers relevant to query, in
// ranker order. Selected paths that cannot be loaded are skipped;
// ErrNoDocuments is returned when nothing is left.
func (s *DocsService) Search(ctx context.Context, query string) ([]domain.Document, error) {
	ctx, span := s.tracer.Start(ctx, "DocsService.Search",
		trace.WithAttributes(attribute.String("docs.query", query)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		s.inst.RecordDocsSearchDuration(ctx, float64(time.Since(start).Milliseconds()))
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	paths, err := s.selectPaths(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	docs := make([]domain.Document, 0, len(paths))
	for _, p := range paths {
		if len(docs) == s.maxResults {
			break
		}
		content, err := s.store.Load(ctx, p)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping document",
				slog.String("docs.path", p),
				slog.String("error", err.Error()),
			)
			continue
		}
		docs = append(docs, domain.Document{Path: p, Content: content})
	}

	span.SetAttributes(attribute.Int("docs.results", len(docs)))
	if len(docs) == 0 {
		return nil, domain.ErrNoDocuments
	}
	return docs, nil
}

func (s *DocsService) selectPaths(ctx context.Context, query string) ([]string, error) {
	key := strings.ToLower(query)

	paths, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "docs cache read failed", slog.String("error", err.Error()))
	}
	if ok {
		s.logger.DebugContext(ctx, "docs cache hit", slog.String("docs.query", query))
		return paths, nil
	}

	entries, err := s.store.Index(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading docs index: %w", err)
	}

	paths, err = s.ranker.Rank(ctx, query, entries, s.maxResults)
	if err != nil {
		return nil, fmt.Errorf("ranking documents: %w", err)
	}

	if len(paths) > 0 {
		if err := s.cache.Set(ctx, key, paths); err != nil {
			s.logger.WarnContext(ctx, "docs cache write failed", slog.String("error", err.Error()))
		}
	}
	return paths, nil
}
