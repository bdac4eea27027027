package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskType_Valid(t *testing.T) {
	t.Parallel()
	for _, m := range []MaskType{"", MaskRedact, MaskHash, MaskPartial, MaskNull} {
		assert.True(t, m.Valid(), "expected %q to be valid", m)
	}
	for _, m := range []MaskType{"encrypt", "REDACT", "sha256"} {
		assert.False(t, m.Valid(), "expected %q to be invalid", m)
	}
}

func TestParseMaskType(t *testing.T) {
	t.Parallel()

	m, err := ParseMaskType(" Redact ")
	require.NoError(t, err)
	assert.Equal(t, MaskRedact, m)

	m, err = ParseMaskType("PARTIAL")
	require.NoError(t, err)
	assert.Equal(t, MaskPartial, m)

	_, err = ParseMaskType("encrypt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encrypt")
}

func TestApplyMask_Redact(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "***", ApplyMask("viewer@example.com", MaskRedact))
	assert.Equal(t, "***", ApplyMask(12345, MaskRedact))
	assert.Nil(t, ApplyMask(nil, MaskRedact))
}

func TestApplyMask_Hash(t *testing.T) {
	t.Parallel()
	h := ApplyMask("viewer@example.com", MaskHash)
	s, ok := h.(string)
	require.True(t, ok)
	assert.Len(t, s, 64)
	assert.Equal(t, h, ApplyMask("viewer@example.com", MaskHash))
	assert.NotEqual(t, h, ApplyMask("other@example.com", MaskHash))

	// Values are hashed through their printed form.
	assert.Equal(t, ApplyMask(42, MaskHash), ApplyMask("42", MaskHash))
}

func TestApplyMask_Partial(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "******7890", ApplyMask("1234567890", MaskPartial))
	assert.Equal(t, "***abcd", ApplyMask("abcd", MaskPartial))
	assert.Equal(t, "***", ApplyMask("", MaskPartial))
	assert.Equal(t, "*2345", ApplyMask(12345, MaskPartial))

	got, ok := ApplyMask("こんにちは世界です", MaskPartial).(string)
	require.True(t, ok)
	assert.Equal(t, "*****世界です", got)
	assert.True(t, strings.HasPrefix(got, "*****"))
}

func TestApplyMask_NullAndUnknown(t *testing.T) {
	t.Parallel()
	assert.Nil(t, ApplyMask("secret", MaskNull))
	assert.Equal(t, "keep", ApplyMask("keep", ""))
	assert.Equal(t, "keep", ApplyMask("keep", "unknown"))
}

func TestMaskRows(t *testing.T) {
	t.Parallel()
	rows := []map[string]any{
		{"id": 1, "Email": "alice@example.com", "content": "hello"},
		{"id": 2, "Email": nil, "content": "bye"},
	}

	MaskRows(rows, map[string]MaskType{"email": MaskRedact})

	assert.Equal(t, "***", rows[0]["Email"])
	assert.Nil(t, rows[1]["Email"])
	assert.Equal(t, "hello", rows[0]["content"])
	assert.Equal(t, 1, rows[0]["id"])
}

func TestMaskRows_NoMasks(t *testing.T) {
	t.Parallel()
	rows := []map[string]any{{"email": "alice@example.com"}}

	MaskRows(rows, nil)
	MaskRows(rows, map[string]MaskType{"ssn": MaskRedact})

	assert.Equal(t, "alice@example.com", rows[0]["email"])
}
