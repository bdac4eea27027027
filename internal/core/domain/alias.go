package domain

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

// ErrMaskedColumnExposed rejects statements that could return a masked
// column's values under a name the masks do not cover.
var ErrMaskedColumnExposed = errors.New("masked column exposed")

// resTarget is one select-list entry: its output alias (may be empty) and
// the expression producing it.
type resTarget struct {
	alias string
	val   map[string]any
}

// ResolveMasks returns the masks to apply to the result of sql, keyed by
// lower-cased output column name. Besides the policy's own masks, an alias of
// a masked column ("SELECT email AS e") is masked too, through any number of
// nested subqueries and CTEs.
//
// Statements whose output cannot be traced back to masked columns by name are
// rejected: masked columns inside expressions or FROM-clause functions,
// whole-row references (row_to_json(u)), column alias lists (AS s(a, b)) and
// set operations. A statement the parser rejects is refused as well.
func ResolveMasks(sql string, masks map[string]MaskType) (map[string]MaskType, error) {
	if len(masks) == 0 {
		return masks, nil
	}

	tree, err := parseTree(sql)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot resolve output columns: %w", ErrMaskedColumnExposed, err)
	}

	if err := checkMaskShape(tree); err != nil {
		return nil, err
	}

	var targets []resTarget
	walkNodes(tree, func(key string, node map[string]any) {
		if key != "ResTarget" {
			return
		}
		val, _ := node["val"].(map[string]any)
		if val == nil {
			return
		}
		alias, _ := node["name"].(string)
		targets = append(targets, resTarget{alias: strings.ToLower(alias), val: val})
	})

	out := maps.Clone(masks)
	for changed := true; changed; {
		changed = false
		for _, t := range targets {
			ref, ok := t.val["ColumnRef"].(map[string]any)
			if !ok || t.alias == "" {
				continue
			}
			m, masked := out[columnRefName(ref)]
			if _, seen := out[t.alias]; masked && !seen {
				out[t.alias] = m
				changed = true
			}
		}
	}

	for _, t := range targets {
		if _, ok := t.val["ColumnRef"]; ok {
			continue
		}
		if col := maskedRef(t.val, out); col != "" {
			return nil, fmt.Errorf("%w: %s is used in an expression", ErrMaskedColumnExposed, col)
		}
	}

	var fnErr error
	walkNodes(tree, func(key string, node map[string]any) {
		if key != "RangeFunction" || fnErr != nil {
			return
		}
		if col := maskedRef(node, out); col != "" {
			fnErr = fmt.Errorf("%w: %s is passed to a FROM-clause function", ErrMaskedColumnExposed, col)
		}
	})
	if fnErr != nil {
		return nil, fnErr
	}

	return out, nil
}

// checkMaskShape refuses constructs that rename or repackage columns in ways
// ResolveMasks cannot follow by name.
func checkMaskShape(tree map[string]any) error {
	relations := make(map[string]struct{})
	var err error

	walkNodes(tree, func(key string, node map[string]any) {
		switch key {
		case "RangeVar":
			if name, ok := node["relname"].(string); ok {
				relations[strings.ToLower(name)] = struct{}{}
			}
		case "CommonTableExpr":
			if name, ok := node["ctename"].(string); ok {
				relations[strings.ToLower(name)] = struct{}{}
			}
			if cols, _ := node["aliascolnames"].([]any); len(cols) > 0 && err == nil {
				err = fmt.Errorf("%w: column alias list on %v", ErrMaskedColumnExposed, node["ctename"])
			}
		case "alias":
			if name, ok := node["aliasname"].(string); ok {
				relations[strings.ToLower(name)] = struct{}{}
			}
			if cols, _ := node["colnames"].([]any); len(cols) > 0 && err == nil {
				err = fmt.Errorf("%w: column alias list on %v", ErrMaskedColumnExposed, node["aliasname"])
			}
		case "SelectStmt":
			op, _ := node["op"].(string)
			_, hasLeft := node["larg"]
			if (hasLeft || (op != "" && op != "SETOP_NONE")) && err == nil {
				err = fmt.Errorf("%w: set operations cannot be combined with masked columns", ErrMaskedColumnExposed)
			}
		}
	})
	if err != nil {
		return err
	}

	walkNodes(tree, func(key string, node map[string]any) {
		if key != "ColumnRef" || err != nil {
			return
		}
		fields, _ := node["fields"].([]any)
		if len(fields) != 1 {
			return
		}
		name := columnRefName(node)
		if _, ok := relations[name]; ok {
			err = fmt.Errorf("%w: whole-row reference to %s", ErrMaskedColumnExposed, name)
		}
	})
	return err
}

// maskedRef returns the first masked column referenced anywhere under node.
func maskedRef(node map[string]any, masks map[string]MaskType) string {
	var found string
	walkNodes(node, func(key string, n map[string]any) {
		if key != "ColumnRef" || found != "" {
			return
		}
		if col := columnRefName(n); col != "*" {
			if _, ok := masks[col]; ok {
				found = col
			}
		}
	})
	return found
}
