package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Instruments holds pre-created OTel metric instruments. It satisfies
// port.Instrumentation.
type Instruments struct {
	QueryCount           metric.Int64Counter
	QueryDuration        metric.Float64Histogram
	QueryErrors          metric.Int64Counter
	ValidationRejections metric.Int64Counter
	ToolDuration         metric.Float64Histogram
	DocsSearchDuration   metric.Float64Histogram
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return newInstrumentsFromMeter(noop.NewMeterProvider().Meter(instrumentationName))
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// The API hands back noop instruments alongside any error.
	queryCount, _ := meter.Int64Counter("mcp_proxy.query.count",
		metric.WithDescription("SQL statements forwarded and completed"),
	)
	queryDuration, _ := meter.Float64Histogram("mcp_proxy.query.duration",
		metric.WithDescription("SQL execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("mcp_proxy.query.errors",
		metric.WithDescription("SQL statements that failed upstream"),
	)
	rejections, _ := meter.Int64Counter("mcp_proxy.validation.rejections",
		metric.WithDescription("SQL statements refused by the policy, by reason"),
	)
	toolDuration, _ := meter.Float64Histogram("mcp_proxy.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	docsDuration, _ := meter.Float64Histogram("mcp_proxy.docs.search.duration",
		metric.WithDescription("Documentation search duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		QueryCount:           queryCount,
		QueryDuration:        queryDuration,
		QueryErrors:          queryErrors,
		ValidationRejections: rejections,
		ToolDuration:         toolDuration,
		DocsSearchDuration:   docsDuration,
	}
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementQueryCount(ctx context.Context) {
	i.QueryCount.Add(ctx, 1)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context) {
	i.QueryErrors.Add(ctx, 1)
}

func (i *Instruments) IncrementValidationRejections(ctx context.Context, reason string) {
	i.ValidationRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}

func (i *Instruments) RecordDocsSearchDuration(ctx context.Context, ms float64) {
	i.DocsSearchDuration.Record(ctx, ms)
}
