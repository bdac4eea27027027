package domain

import (
	"regexp"
	"strings"
)

// Extractor pulls the referenced tables and selected columns out of a
// statement. Names are returned lower-cased and de-duplicated.
type Extractor interface {
	Tables(sql string) ([]string, error)
	Columns(sql string) ([]string, error)
}

// LexicalExtractor scans the statement text with regular expressions. It does
// not resolve aliases, subqueries, CTEs or quoted identifiers, and only looks
// at the first identifier after FROM/JOIN.
type LexicalExtractor struct{}

var (
	fromTablePattern  = regexp.MustCompile(`(?i)\bFROM\s+([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)`)
	joinTablePattern  = regexp.MustCompile(`(?i)\bJOIN\s+([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)`)
	selectListPattern = regexp.MustCompile(`(?is)^SELECT\s+(.*?)\s+FROM\b`)
	columnAliasSuffix = regexp.MustCompile(`(?i)\s+AS\s+\w+$`)
)

// Tables returns FROM targets first, then JOIN targets. Schema-qualified names
// keep only their last segment.
func (LexicalExtractor) Tables(sql string) ([]string, error) {
	var tables []string
	for _, re := range []*regexp.Regexp{fromTablePattern, joinTablePattern} {
		for _, m := range re.FindAllStringSubmatch(sql, -1) {
			tables = appendUnique(tables, strings.ToLower(lastSegment(m[1])))
		}
	}
	return tables, nil
}

// Columns splits the top-level SELECT list on commas, strips a trailing
// "AS alias" and any qualification prefix. "*" and "t.*" come back as "*".
func (LexicalExtractor) Columns(sql string) ([]string, error) {
	m := selectListPattern.FindStringSubmatch(strings.TrimSpace(sql))
	if m == nil {
		return nil, nil
	}

	var columns []string
	for _, raw := range strings.Split(m[1], ",") {
		col := columnAliasSuffix.ReplaceAllString(strings.TrimSpace(raw), "")
		col = strings.ToLower(strings.TrimSpace(lastSegment(col)))
		if col == "" {
			continue
		}
		columns = appendUnique(columns, col)
	}
	return columns, nil
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
