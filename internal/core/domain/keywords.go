package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// keywordMatcher finds one forbidden keyword in a statement, case-insensitively.
// Word boundaries are only asserted on edges that are identifier characters,
// so "CALL" does not match "caller" while "--" still matches "a--b".
type keywordMatcher struct {
	keyword string
	re      *regexp.Regexp
}

func newKeywordMatcher(keyword string) keywordMatcher {
	pattern := regexp.QuoteMeta(keyword)

	first, _ := utf8.DecodeRuneInString(keyword)
	last, _ := utf8.DecodeLastRuneInString(keyword)
	if isIdentRune(first) {
		pattern = `\b` + pattern
	}
	if isIdentRune(last) {
		pattern += `\b`
	}

	// QuoteMeta output always compiles.
	return keywordMatcher{
		keyword: keyword,
		re:      regexp.MustCompile(`(?i)` + pattern),
	}
}

func (m keywordMatcher) matches(sql string) bool {
	return m.re.MatchString(sql)
}

// compileKeywords skips blank entries; an empty keyword would otherwise match
// every statement.
func compileKeywords(keywords []string) []keywordMatcher {
	matchers := make([]keywordMatcher, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		matchers = append(matchers, newKeywordMatcher(kw))
	}
	return matchers
}

// isIdentRune mirrors the ASCII word class used by \b in RE2.
func isIdentRune(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
