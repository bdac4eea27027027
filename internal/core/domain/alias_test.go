package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMasks_Aliases(t *testing.T) {
	t.Parallel()

	masks := map[string]MaskType{"email": MaskRedact, "phone": MaskPartial}

	tests := []struct {
		name string
		sql  string
		want map[string]MaskType
	}{
		{
			name: "no alias",
			sql:  "SELECT id, email FROM users",
			want: masks,
		},
		{
			name: "star",
			sql:  "SELECT * FROM users",
			want: masks,
		},
		{
			name: "simple alias",
			sql:  "SELECT email AS e FROM users",
			want: map[string]MaskType{"email": MaskRedact, "phone": MaskPartial, "e": MaskRedact},
		},
		{
			name: "alias without AS",
			sql:  "SELECT phone contact FROM users",
			want: map[string]MaskType{"email": MaskRedact, "phone": MaskPartial, "contact": MaskPartial},
		},
		{
			name: "qualified and quoted",
			sql:  `SELECT u."Email" AS "Contact" FROM users u`,
			want: map[string]MaskType{"email": MaskRedact, "phone": MaskPartial, "contact": MaskRedact},
		},
		{
			name: "nested subqueries",
			sql:  "SELECT d FROM (SELECT c AS d FROM (SELECT email AS c FROM users) a) b",
			want: map[string]MaskType{"email": MaskRedact, "phone": MaskPartial, "c": MaskRedact, "d": MaskRedact},
		},
		{
			name: "cte",
			sql:  "WITH x AS (SELECT email AS contact FROM users) SELECT contact FROM x",
			want: map[string]MaskType{"email": MaskRedact, "phone": MaskPartial, "contact": MaskRedact},
		},
		{
			name: "masked column only filtered on",
			sql:  "SELECT id FROM users WHERE lower(email) = 'a@example.com' ORDER BY email",
			want: masks,
		},
		{
			name: "alias of unmasked column",
			sql:  "SELECT name AS n FROM users",
			want: masks,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveMasks(tt.sql, masks)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMasks_Rejects(t *testing.T) {
	t.Parallel()

	masks := map[string]MaskType{"email": MaskRedact}

	tests := []struct {
		name    string
		sql     string
		wantMsg string
	}{
		{"function", "SELECT lower(email) FROM users", "email is used in an expression"},
		{"cast with alias", "SELECT email::text AS e FROM users", "email is used in an expression"},
		{"concatenation", "SELECT name || email AS label FROM users", "email is used in an expression"},
		{"expression over alias", "SELECT upper(c) FROM (SELECT email AS c FROM users) s", "c is used in an expression"},
		{"scalar subquery", "SELECT (SELECT email FROM users LIMIT 1) AS x", "email is used in an expression"},
		{"whole row", "SELECT row_to_json(u) FROM users u", "whole-row reference to u"},
		{"bare table reference", "SELECT users FROM users", "whole-row reference to users"},
		{"subquery column list", "SELECT a FROM (SELECT email FROM users) s(a)", "column alias list"},
		{"cte column list", "WITH x(a) AS (SELECT email FROM users) SELECT a FROM x", "column alias list"},
		{"union", "SELECT name FROM users UNION SELECT email FROM users", "set operations"},
		{"from function", "SELECT * FROM users u, lower(u.email) AS l", "email is passed to a FROM-clause function"},
		{"unparseable", "SELEC email FROM users", "cannot resolve output columns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveMasks(tt.sql, masks)
			require.ErrorIs(t, err, ErrMaskedColumnExposed)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Nil(t, got)
		})
	}
}

func TestResolveMasks_NoMasksSkipsParsing(t *testing.T) {
	t.Parallel()

	got, err := ResolveMasks("not sql at all", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestValidate_MaskedAliases(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()
	p.AllowAllTables = true
	p.Masks = map[string]MaskType{"Email": MaskHash}
	v := NewStatementValidator(p)

	verdict := v.Validate("SELECT email AS e FROM users LIMIT 1")
	require.True(t, verdict.Accepted, verdict.Reason)
	assert.Equal(t, MaskHash, verdict.Masks["e"])
	assert.Equal(t, MaskHash, verdict.Masks["email"])

	verdict = v.Validate("SELECT md5(email) FROM users LIMIT 1")
	assert.False(t, verdict.Accepted)
	assert.ErrorIs(t, verdict.Err, ErrMaskedColumnExposed)
	assert.Equal(t, "SELECT", verdict.Verb)
}
