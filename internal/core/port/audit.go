package port

import "context"

// AuditEntry is one SQL tool call, accepted or not.
type AuditEntry struct {
	Tool         string
	SQL          string
	Accepted     bool
	Reason       string
	RowsReturned int
	DurationMS   int64
	Err          error
}

// QueryAuditor records query audit events.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}

// NoopAuditor discards every entry.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, AuditEntry) {}
func (NoopAuditor) Close() error                       { return nil }
