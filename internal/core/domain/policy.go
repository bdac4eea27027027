package domain

import (
	"maps"
	"slices"
	"strings"
)

// Policy is the rule set a statement is validated against. It is built once at
// startup and treated as read-only afterwards.
type Policy struct {
	// AllowedOperations holds the permitted leading verbs (SELECT, ...).
	AllowedOperations []string
	// AllowedColumns maps a table to its permitted columns. An empty list means
	// every column of that table is readable; a missing table is not accessible.
	AllowedColumns map[string][]string
	// ForbiddenKeywords are rejected wherever they appear as a whole word.
	// Symbolic tokens such as "--" match as plain substrings.
	ForbiddenKeywords []string
	// MaxResultRows is the ceiling on rows a single statement may return.
	MaxResultRows int
	// AllowAllTables skips the table-access check.
	AllowAllTables bool
	// Masks maps a result column to the masking strategy applied to its values.
	Masks map[string]MaskType
}

// Override holds the optional fields of an operator policy. A nil field keeps
// the default; a set field replaces the default field entirely.
type Override struct {
	AllowedOperations []string
	AllowedColumns    map[string][]string
	ForbiddenKeywords []string
	MaxResultRows     *int
	AllowAllTables    *bool
	Masks             map[string]MaskType
}

// DefaultPolicy returns the locked-down baseline: SELECT only, no tables, and
// a blacklist of DDL/DML verbs, comment markers and catalog prefixes.
func DefaultPolicy() Policy {
	return Policy{
		AllowedOperations: []string{"SELECT"},
		AllowedColumns:    map[string][]string{},
		ForbiddenKeywords: []string{
			"DELETE",
			"DROP",
			"TRUNCATE",
			"INSERT",
			"UPDATE",
			"ALTER",
			"CREATE",
			"GRANT",
			"REVOKE",
			"EXEC",
			"EXECUTE",
			"CALL",
			"--",
			"/*",
			"*/",
			"UNION",
			"INFORMATION_SCHEMA",
			"pg_",
			"sys",
		},
		MaxResultRows: 1000,
	}
}

// Merge applies o on top of base field by field. Nested maps are replaced, not
// merged: setting AllowedColumns swaps out the whole table mapping.
func Merge(base Policy, o Override) Policy {
	out := Policy{
		AllowedOperations: slices.Clone(base.AllowedOperations),
		AllowedColumns:    maps.Clone(base.AllowedColumns),
		ForbiddenKeywords: slices.Clone(base.ForbiddenKeywords),
		MaxResultRows:     base.MaxResultRows,
		AllowAllTables:    base.AllowAllTables,
		Masks:             maps.Clone(base.Masks),
	}

	if o.AllowedOperations != nil {
		out.AllowedOperations = slices.Clone(o.AllowedOperations)
	}
	if o.AllowedColumns != nil {
		out.AllowedColumns = maps.Clone(o.AllowedColumns)
	}
	if o.ForbiddenKeywords != nil {
		out.ForbiddenKeywords = slices.Clone(o.ForbiddenKeywords)
	}
	if o.MaxResultRows != nil {
		out.MaxResultRows = *o.MaxResultRows
	}
	if o.AllowAllTables != nil {
		out.AllowAllTables = *o.AllowAllTables
	}
	if o.Masks != nil {
		out.Masks = maps.Clone(o.Masks)
	}

	return out
}

// Normalize returns a copy with verbs upper-cased and table, column and mask
// names lower-cased, so lookups can be done case-insensitively.
func (p Policy) Normalize() Policy {
	out := Policy{
		AllowedOperations: make([]string, 0, len(p.AllowedOperations)),
		AllowedColumns:    make(map[string][]string, len(p.AllowedColumns)),
		ForbiddenKeywords: slices.Clone(p.ForbiddenKeywords),
		MaxResultRows:     p.MaxResultRows,
		AllowAllTables:    p.AllowAllTables,
	}

	for _, op := range p.AllowedOperations {
		out.AllowedOperations = append(out.AllowedOperations, strings.ToUpper(strings.TrimSpace(op)))
	}

	for table, cols := range p.AllowedColumns {
		key := strings.ToLower(strings.TrimSpace(table))
		normalized := out.AllowedColumns[key]
		if normalized == nil {
			normalized = make([]string, 0, len(cols))
		}
		for _, c := range cols {
			normalized = append(normalized, strings.ToLower(strings.TrimSpace(c)))
		}
		out.AllowedColumns[key] = normalized
	}

	if len(p.Masks) > 0 {
		out.Masks = make(map[string]MaskType, len(p.Masks))
		for col, m := range p.Masks {
			out.Masks[strings.ToLower(strings.TrimSpace(col))] = m
		}
	}

	return out
}

// Tables returns the accessible table names in sorted order.
func (p Policy) Tables() []string {
	return slices.Sorted(maps.Keys(p.AllowedColumns))
}
