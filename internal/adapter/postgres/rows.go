package postgres

import (
	"encoding/hex"
	"fmt"
	"net/netip"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// rowsToMaps collects every row keyed by column name, with values converted
// to the JSON shapes the Supabase Management API returns, so both query
// backends answer the supabase tool identically. An empty result is an empty
// slice, not nil, so it encodes as [].
func rowsToMaps(rows pgx.Rows) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	out := []map[string]any{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, fd := range fields {
			row[fd.Name] = jsonValue(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// jsonValue rewrites the pgx values that would otherwise encode as byte
// arrays or structs: uuid becomes its canonical text, bytea Postgres' \x hex
// form and inet/cidr their address notation.
func jsonValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return `\x` + hex.EncodeToString(t)
	case netip.Prefix:
		if t.IsSingleIP() {
			return t.Addr().String()
		}
		return t.String()
	case netip.Addr:
		return t.String()
	case []any:
		for i := range t {
			t[i] = jsonValue(t[i])
		}
		return t
	default:
		return v
	}
}
