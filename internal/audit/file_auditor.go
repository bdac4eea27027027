package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aituberkit/mcp-proxy/internal/core/port"
	"github.com/google/uuid"
)

// record is the NDJSON form of an audit entry.
type record struct {
	ID           string  `json:"id"`
	Timestamp    string  `json:"ts"`
	Tool         string  `json:"tool"`
	ProjectRef   string  `json:"project_ref,omitempty"`
	SQL          string  `json:"sql"`
	Accepted     bool    `json:"accepted"`
	Reason       string  `json:"reason,omitempty"`
	RowsReturned int     `json:"rows_returned"`
	DurationMS   int64   `json:"duration_ms"`
	Error        *string `json:"error"`
}

// FileAuditor writes one JSON object per SQL tool call. Rejected statements
// are recorded alongside executed ones.
type FileAuditor struct {
	mu  sync.Mutex
	out io.WriteCloser
	enc *json.Encoder
	now func() time.Time
}

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return NewWriterAuditor(f), nil
}

// NewWriterAuditor audits to w. Close closes w.
func NewWriterAuditor(w io.WriteCloser) *FileAuditor {
	return &FileAuditor{
		out: w,
		enc: json.NewEncoder(w),
		now: time.Now,
	}
}

func (a *FileAuditor) Record(ctx context.Context, entry port.AuditEntry) {
	rec := record{
		ID:           uuid.NewString(),
		Timestamp:    a.now().UTC().Format(time.RFC3339Nano),
		Tool:         entry.Tool,
		SQL:          entry.SQL,
		Accepted:     entry.Accepted,
		Reason:       entry.Reason,
		RowsReturned: entry.RowsReturned,
		DurationMS:   entry.DurationMS,
	}
	if creds, ok := port.CredentialsFromContext(ctx); ok {
		rec.ProjectRef = creds.ProjectRef
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		rec.Error = &s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(rec) // best-effort; audit I/O never fails a request
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out.Close()
}
