package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()
	p := DefaultPolicy()

	assert.Equal(t, []string{"SELECT"}, p.AllowedOperations)
	assert.Empty(t, p.AllowedColumns)
	assert.Equal(t, 1000, p.MaxResultRows)
	assert.False(t, p.AllowAllTables)
	assert.Contains(t, p.ForbiddenKeywords, "DROP")
	assert.Contains(t, p.ForbiddenKeywords, "--")
	assert.Contains(t, p.ForbiddenKeywords, "pg_")
}

func TestMerge_ReplacesWholeFields(t *testing.T) {
	t.Parallel()

	base := DefaultPolicy()
	base.AllowedColumns = map[string][]string{"users": {"id"}, "posts": {}}

	rows := 50
	all := true
	merged := Merge(base, Override{
		AllowedColumns: map[string][]string{"public_messages": {}},
		MaxResultRows:  &rows,
		AllowAllTables: &all,
	})

	assert.Equal(t, map[string][]string{"public_messages": {}}, merged.AllowedColumns)
	assert.Equal(t, 50, merged.MaxResultRows)
	assert.True(t, merged.AllowAllTables)
	assert.Equal(t, base.AllowedOperations, merged.AllowedOperations)
	assert.Equal(t, base.ForbiddenKeywords, merged.ForbiddenKeywords)
}

func TestMerge_EmptyOverrideKeepsBase(t *testing.T) {
	t.Parallel()
	base := DefaultPolicy()
	assert.Equal(t, base, Merge(base, Override{}))
}

func TestMerge_EmptySliceReplaces(t *testing.T) {
	t.Parallel()
	merged := Merge(DefaultPolicy(), Override{ForbiddenKeywords: []string{}})
	assert.Empty(t, merged.ForbiddenKeywords)
	assert.NotNil(t, merged.ForbiddenKeywords)
}

func TestMerge_DoesNotAlias(t *testing.T) {
	t.Parallel()

	o := Override{AllowedOperations: []string{"SELECT"}}
	merged := Merge(DefaultPolicy(), o)
	o.AllowedOperations[0] = "DELETE"

	assert.Equal(t, []string{"SELECT"}, merged.AllowedOperations)
}

func TestPolicy_Normalize(t *testing.T) {
	t.Parallel()

	p := Policy{
		AllowedOperations: []string{"select", " Explain"},
		AllowedColumns: map[string][]string{
			"Users":  {"ID", " Name "},
			"Orders": {},
		},
		MaxResultRows: 10,
		Masks:         map[string]MaskType{"Email": MaskRedact},
	}

	n := p.Normalize()
	assert.Equal(t, []string{"SELECT", "EXPLAIN"}, n.AllowedOperations)
	assert.Equal(t, map[string][]string{"users": {"id", "name"}, "orders": {}}, n.AllowedColumns)
	assert.Equal(t, map[string]MaskType{"email": MaskRedact}, n.Masks)
	assert.Equal(t, []string{"orders", "users"}, n.Tables())

	// The receiver is left untouched.
	assert.Equal(t, []string{"ID", " Name "}, p.AllowedColumns["Users"])
}
