package domain

import (
	"fmt"
	"strings"
)

// ApplyRowCeiling wraps a statement so the database returns at most n rows.
// Trailing semicolons are dropped; they are not valid inside a subquery.
func ApplyRowCeiling(sql string, n int) string {
	body := strings.TrimRight(strings.TrimSpace(sql), "; \t\r\n")
	return fmt.Sprintf("SELECT * FROM (%s) AS _q LIMIT %d", body, n)
}

// NeedsRowCeiling reports whether an accepted statement should be wrapped by
// ApplyRowCeiling before it is forwarded.
func NeedsRowCeiling(v Verdict) bool {
	return v.Accepted && v.Verb == "SELECT" && !v.HasLimit
}
