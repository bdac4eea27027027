package domain

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// MaskType is how a result column is obscured before it leaves the proxy.
type MaskType string

const (
	MaskRedact  MaskType = "redact"
	MaskHash    MaskType = "hash"
	MaskPartial MaskType = "partial"
	MaskNull    MaskType = "null"
)

// Valid reports whether m is a known strategy. The empty value means "no mask".
func (m MaskType) Valid() bool {
	switch m {
	case MaskRedact, MaskHash, MaskPartial, MaskNull, "":
		return true
	}
	return false
}

// ParseMaskType accepts a strategy name in any case.
func ParseMaskType(s string) (MaskType, error) {
	m := MaskType(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown mask type %q (expected redact, hash, partial or null)", s)
	}
	return m, nil
}

// ApplyMask returns the masked form of value. Hash and partial masks turn any
// value into its string form; nil stays nil.
func ApplyMask(value any, m MaskType) any {
	if value == nil {
		return nil
	}

	switch m {
	case MaskRedact:
		return "***"
	case MaskHash:
		sum := sha256.Sum256([]byte(fmt.Sprint(value)))
		return fmt.Sprintf("%x", sum)
	case MaskPartial:
		return revealTail(fmt.Sprint(value), 4)
	case MaskNull:
		return nil
	default:
		return value
	}
}

// revealTail keeps the last n runes and stars out the rest. Values of n runes
// or fewer are prefixed with "***" so their length is not exposed.
func revealTail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return "***" + s
	}
	hidden := len(runes) - n
	return strings.Repeat("*", hidden) + string(runes[hidden:])
}

// MaskRows masks result rows in place. Column names are matched
// case-insensitively and without table qualification; masks must be keyed by
// lower-cased column name, as Policy.Normalize produces.
func MaskRows(rows []map[string]any, masks map[string]MaskType) {
	if len(masks) == 0 {
		return
	}
	for _, row := range rows {
		for col, val := range row {
			if m, ok := masks[strings.ToLower(col)]; ok {
				row[col] = ApplyMask(val, m)
			}
		}
	}
}
