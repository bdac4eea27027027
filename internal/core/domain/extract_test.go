package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexicalExtractor_Tables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"single", "SELECT * FROM users", []string{"users"}},
		{"case folded", "select * from Public_Messages", []string{"public_messages"}},
		{"schema qualified", "SELECT * FROM public.my_tweets", []string{"my_tweets"}},
		{"join after from", "SELECT * FROM a JOIN b ON a.id = b.id LEFT JOIN c ON true", []string{"a", "b", "c"}},
		{"duplicates collapsed", "SELECT * FROM a JOIN a ON true", []string{"a"}},
		{"subquery sees inner from only", "SELECT * FROM (SELECT id FROM inner_t) s", []string{"inner_t"}},
		{"no from", "SELECT 1", nil},
		{"quoted identifier missed", `SELECT * FROM "users"`, nil},
		{"from inside word ignored", "SELECT fromage FROM cheese", []string{"cheese"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := LexicalExtractor{}.Tables(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLexicalExtractor_Columns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"plain", "SELECT id, name FROM users", []string{"id", "name"}},
		{"wildcard", "SELECT * FROM users", []string{"*"}},
		{"qualified wildcard", "SELECT u.* FROM users u", []string{"*"}},
		{"alias stripped", "SELECT id AS ident, Name as n FROM users", []string{"id", "name"}},
		{"qualifier stripped", "SELECT users.id, u.name FROM users u", []string{"id", "name"}},
		{"multi line", "SELECT\n  id,\n  name\nFROM users", []string{"id", "name"}},
		{"leading whitespace", "   SELECT id FROM users", []string{"id"}},
		{"expression kept whole", "SELECT count(*) FROM users", []string{"count(*)"}},
		{"no select list", "EXPLAIN SELECT id FROM users", nil},
		{"no from", "SELECT 1", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := LexicalExtractor{}.Columns(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeywordMatcher(t *testing.T) {
	t.Parallel()

	tests := []struct {
		keyword string
		sql     string
		want    bool
	}{
		{"CALL", "select caller from t", false},
		{"CALL", "CALL proc()", true},
		{"call", "select 1; Call proc()", true},
		{"--", "select 1--comment", true},
		{"/*", "select/*x*/1", true},
		{"*/", "select 1 */", true},
		{"*/", "select * from t", false},
		{"pg_", "select * from pg_ x", true},
		{"pg_", "select * from pg_tables", false},
		{"sys", "select sys.objects", true},
		{"sys", "select system", false},
		{"a.b", "select axb", false},
	}

	for _, tt := range tests {
		m := newKeywordMatcher(tt.keyword)
		assert.Equal(t, tt.want, m.matches(tt.sql), "%q in %q", tt.keyword, tt.sql)
	}
}

func TestCompileKeywords_SkipsBlank(t *testing.T) {
	t.Parallel()
	matchers := compileKeywords([]string{"", "  ", "DROP"})
	require.Len(t, matchers, 1)
	assert.Equal(t, "DROP", matchers[0].keyword)
}
