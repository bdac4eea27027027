package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aituberkit/mcp-proxy/internal/core/domain"
	"github.com/aituberkit/mcp-proxy/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type toolNameKey struct{}

// WithToolName returns a context carrying the MCP tool name for audit logging.
func WithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

func toolNameFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(toolNameKey{}).(string); ok {
		return v
	}
	return ""
}

// RejectedError is returned when the validator refuses a statement. Its
// message is the verdict reason, safe to show to the caller as is.
type RejectedError struct {
	Verdict domain.Verdict
}

func (e *RejectedError) Error() string { return e.Verdict.Reason }
func (e *RejectedError) Unwrap() error { return e.Verdict.Err }

// QueryResult is what an accepted statement produced.
type QueryResult struct {
	Rows      []map[string]any `json:"rows"`
	Warnings  []string         `json:"warnings,omitempty"`
	Truncated bool             `json:"truncated,omitempty"`
}

// QueryService gates statements through the validator and forwards accepted
// ones to the executor.
type QueryService struct {
	validator port.StatementValidator
	executor  port.QueryExecutor
	auditor   port.QueryAuditor
	logger    *slog.Logger
	tracer    trace.Tracer
	inst      port.Instrumentation
}

func NewQueryService(validator port.StatementValidator, executor port.QueryExecutor, auditor port.QueryAuditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *QueryService {
	if auditor == nil {
		auditor = port.NoopAuditor{}
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		validator: validator,
		executor:  executor,
		auditor:   auditor,
		logger:    logger,
		tracer:    tracer,
		inst:      inst,
	}
}

// Policy returns the policy statements are checked against.
func (s *QueryService) Policy() domain.Policy {
	return s.validator.Policy()
}

// Validate runs the validator without executing anything.
func (s *QueryService) Validate(ctx context.Context, sql string) domain.Verdict {
	verdict := s.validator.Validate(sql)
	s.logger.DebugContext(ctx, "statement validated",
		slog.String("db.statement", sql),
		slog.Bool("accepted", verdict.Accepted),
		slog.String("reason", verdict.Reason),
	)
	return verdict
}

// Execute validates sql and, if accepted, runs it. SELECT statements without
// their own LIMIT are wrapped so the database applies the policy ceiling, and
// rows beyond the ceiling are dropped in any case.
func (s *QueryService) Execute(ctx context.Context, sql string) (*QueryResult, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Execute",
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation.name", "query"),
			attribute.String("db.statement", sql),
		),
	)
	defer span.End()

	tool := toolNameFromCtx(ctx)
	verdict := s.validator.Validate(sql)
	if !verdict.Accepted {
		kind := RejectionKind(verdict.Err)
		s.logger.WarnContext(ctx, "query validation rejected",
			slog.String("db.operation.name", "query"),
			slog.String("db.statement", sql),
			slog.String("error.type", kind),
			slog.String("reason", verdict.Reason),
		)
		span.SetAttributes(attribute.String("validation.rejection", kind))
		span.SetStatus(codes.Error, verdict.Reason)
		s.inst.IncrementValidationRejections(ctx, kind)
		s.auditor.Record(ctx, port.AuditEntry{
			Tool:   tool,
			SQL:    sql,
			Reason: verdict.Reason,
		})
		return nil, &RejectedError{Verdict: verdict}
	}

	policy := s.validator.Policy()
	stmt := sql
	if domain.NeedsRowCeiling(verdict) {
		stmt = domain.ApplyRowCeiling(sql, policy.MaxResultRows)
	}

	start := time.Now()
	rows, err := s.executor.Execute(ctx, stmt)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	s.auditor.Record(ctx, port.AuditEntry{
		Tool:         tool,
		SQL:          sql,
		Accepted:     true,
		RowsReturned: len(rows),
		DurationMS:   durationMS,
		Err:          err,
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return nil, err
	}

	result := &QueryResult{Rows: rows, Warnings: verdict.Warnings}
	if policy.MaxResultRows > 0 && len(rows) > policy.MaxResultRows {
		result.Rows = rows[:policy.MaxResultRows]
		result.Truncated = true
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("result truncated to %d of %d rows", policy.MaxResultRows, len(rows)))
	}

	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(attribute.Int("db.response.rows", len(result.Rows)))
	masks := verdict.Masks
	if masks == nil {
		masks = policy.Masks
	}
	domain.MaskRows(result.Rows, masks)

	return result, nil
}

// RejectionKind maps a validation error to a short label for logs and metrics.
func RejectionKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyStatement):
		return "empty_statement"
	case errors.Is(err, domain.ErrForbiddenKeyword):
		return "forbidden_keyword"
	case errors.Is(err, domain.ErrOperationNotAllowed):
		return "operation_not_allowed"
	case errors.Is(err, domain.ErrTableNotAllowed):
		return "table_not_allowed"
	case errors.Is(err, domain.ErrColumnNotAllowed):
		return "column_not_allowed"
	case errors.Is(err, domain.ErrRowLimitExceeded):
		return "row_limit_exceeded"
	case errors.Is(err, domain.ErrMaskedColumnExposed):
		return "masked_column_exposed"
	default:
		return "validation_error"
	}
}
