package domain

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

var ErrParseFailed = errors.New("failed to parse SQL")

// ParserExtractor uses PostgreSQL's own parser instead of pattern matching.
// It sees tables inside subqueries, CTEs and quoted identifiers that the
// LexicalExtractor misses, and fails closed on statements it cannot parse.
type ParserExtractor struct{}

// Tables returns every relation referenced anywhere in the statement, in
// order of appearance. CTE names are not filtered out.
func (ParserExtractor) Tables(sql string) ([]string, error) {
	tree, err := parseTree(sql)
	if err != nil {
		return nil, err
	}

	var refs []located
	walkNodes(tree, func(key string, node map[string]any) {
		if key != "RangeVar" {
			return
		}
		if name, ok := node["relname"].(string); ok && name != "" {
			refs = append(refs, located{name: strings.ToLower(name), pos: nodeLocation(node)})
		}
	})
	return inSourceOrder(refs), nil
}

// Columns returns the column references of the first statement's top-level
// target list. Columns used inside expressions (count(id), lower(name)) are
// reported individually; "*" and "t.*" come back as "*".
func (ParserExtractor) Columns(sql string) ([]string, error) {
	tree, err := parseTree(sql)
	if err != nil {
		return nil, err
	}

	sel := firstSelect(tree)
	if sel == nil {
		return nil, nil
	}
	targets, _ := sel["targetList"].([]any)

	var refs []located
	for _, target := range targets {
		walkNodes(target, func(key string, node map[string]any) {
			if key != "ColumnRef" {
				return
			}
			if col := columnRefName(node); col != "" {
				refs = append(refs, located{name: col, pos: nodeLocation(node)})
			}
		})
	}
	return inSourceOrder(refs), nil
}

func parseTree(sql string) (map[string]any, error) {
	out, err := pg_query.ParseToJSON(sql)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	var tree map[string]any
	if err := json.Unmarshal([]byte(out), &tree); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return tree, nil
}

func firstSelect(tree map[string]any) map[string]any {
	stmts, _ := tree["stmts"].([]any)
	if len(stmts) == 0 {
		return nil
	}
	raw, _ := stmts[0].(map[string]any)
	stmt, _ := raw["stmt"].(map[string]any)
	sel, _ := stmt["SelectStmt"].(map[string]any)
	return sel
}

// columnRefName returns the last field of a ColumnRef: the bare column name,
// or "*" for a star reference.
func columnRefName(ref map[string]any) string {
	fields, _ := ref["fields"].([]any)
	if len(fields) == 0 {
		return ""
	}
	last, _ := fields[len(fields)-1].(map[string]any)
	if _, ok := last["A_Star"]; ok {
		return "*"
	}
	str, _ := last["String"].(map[string]any)
	name, _ := str["sval"].(string)
	return strings.ToLower(name)
}

// located is a name found in the parse tree with its byte offset in the
// statement.
type located struct {
	name string
	pos  int
}

func nodeLocation(node map[string]any) int {
	if f, ok := node["location"].(float64); ok {
		return int(f)
	}
	return 0
}

// inSourceOrder de-duplicates names, ordered by where they appear. Map
// iteration during the walk is unordered.
func inSourceOrder(refs []located) []string {
	slices.SortStableFunc(refs, func(a, b located) int {
		if a.pos != b.pos {
			return cmp.Compare(a.pos, b.pos)
		}
		return strings.Compare(a.name, b.name)
	})
	var names []string
	for _, r := range refs {
		names = appendUnique(names, r.name)
	}
	return names
}

// walkNodes visits every object in the parse tree. fn receives the node type
// name (the key wrapping the object) and the object itself.
func walkNodes(v any, fn func(key string, node map[string]any)) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if obj, ok := child.(map[string]any); ok {
				fn(k, obj)
			}
			walkNodes(child, fn)
		}
	case []any:
		for _, child := range t {
			walkNodes(child, fn)
		}
	}
}
