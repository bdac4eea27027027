package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrEmptyStatement      = errors.New("empty statement")
	ErrForbiddenKeyword    = errors.New("forbidden keyword found")
	ErrOperationNotAllowed = errors.New("operation not allowed")
	ErrTableNotAllowed     = errors.New("table not allowed")
	ErrColumnNotAllowed    = errors.New("column not allowed")
	ErrRowLimitExceeded    = errors.New("row limit exceeded")
)

var limitPattern = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`)

// StatementValidator checks raw SQL text against a Policy. It holds no mutable
// state after construction and is safe for concurrent use.
type StatementValidator struct {
	policy     Policy
	keywords   []keywordMatcher
	operations map[string]struct{}
	columns    map[string]map[string]struct{}
	extractor  Extractor
}

// ValidatorOption configures a StatementValidator.
type ValidatorOption func(*StatementValidator)

// WithExtractor replaces the default LexicalExtractor.
func WithExtractor(e Extractor) ValidatorOption {
	return func(v *StatementValidator) {
		if e != nil {
			v.extractor = e
		}
	}
}

// NewStatementValidator normalizes the policy and precompiles its keyword
// matchers. The policy is not checked for consistency: an empty operation list
// simply rejects every statement.
func NewStatementValidator(policy Policy, opts ...ValidatorOption) *StatementValidator {
	p := policy.Normalize()

	v := &StatementValidator{
		policy:     p,
		keywords:   compileKeywords(p.ForbiddenKeywords),
		operations: make(map[string]struct{}, len(p.AllowedOperations)),
		columns:    make(map[string]map[string]struct{}, len(p.AllowedColumns)),
		extractor:  LexicalExtractor{},
	}
	for _, op := range p.AllowedOperations {
		v.operations[op] = struct{}{}
	}
	for table, cols := range p.AllowedColumns {
		set := make(map[string]struct{}, len(cols))
		for _, c := range cols {
			set[c] = struct{}{}
		}
		v.columns[table] = set
	}

	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Policy returns the normalized policy the validator enforces.
func (v *StatementValidator) Policy() Policy {
	return v.policy
}

// Validate runs the checks in order and stops at the first rejection:
// emptiness, forbidden keywords, operation, table access, column access, row
// limit. When the policy masks columns, the statement must also let every
// masked value be traced to an output column (see ResolveMasks). Only an
// accepted verdict carries warnings.
func (v *StatementValidator) Validate(sql string) Verdict {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return reject(ErrEmptyStatement)
	}

	if err := v.checkForbiddenKeywords(trimmed); err != nil {
		return reject(err)
	}

	verb, err := v.checkOperation(trimmed)
	if err != nil {
		verdict := reject(err)
		verdict.Verb = verb
		return verdict
	}

	tables, err := v.extractor.Tables(trimmed)
	if err != nil {
		return rejectVerb(fmt.Errorf("%w: unable to determine referenced tables: %w", ErrTableNotAllowed, err), verb)
	}

	if err := v.checkTableAccess(tables); err != nil {
		return rejectVerb(err, verb)
	}

	if err := v.checkColumnAccess(trimmed, tables); err != nil {
		return rejectVerb(err, verb)
	}

	limit, hasLimit, warnings, err := v.checkRowLimit(trimmed)
	if err != nil {
		return rejectVerb(err, verb)
	}

	masks, err := ResolveMasks(trimmed, v.policy.Masks)
	if err != nil {
		return rejectVerb(err, verb)
	}

	return Verdict{
		Accepted: true,
		Warnings: warnings,
		Verb:     verb,
		HasLimit: hasLimit,
		Limit:    limit,
		Masks:    masks,
	}
}

func rejectVerb(err error, verb string) Verdict {
	verdict := reject(err)
	verdict.Verb = verb
	return verdict
}

func (v *StatementValidator) checkForbiddenKeywords(sql string) error {
	for _, m := range v.keywords {
		if m.matches(sql) {
			return fmt.Errorf("%w: %s", ErrForbiddenKeyword, m.keyword)
		}
	}
	return nil
}

func (v *StatementValidator) checkOperation(sql string) (string, error) {
	verb := strings.Fields(strings.ToUpper(sql))[0]
	if _, ok := v.operations[verb]; !ok {
		return verb, fmt.Errorf("%w: %s (allowed operations: %s)",
			ErrOperationNotAllowed, verb, strings.Join(v.policy.AllowedOperations, ", "))
	}
	return verb, nil
}

func (v *StatementValidator) checkTableAccess(tables []string) error {
	if v.policy.AllowAllTables {
		return nil
	}
	for _, table := range tables {
		if _, ok := v.columns[table]; !ok {
			return fmt.Errorf("%w: %s (allowed tables: %s)",
				ErrTableNotAllowed, table, strings.Join(v.policy.Tables(), ", "))
		}
	}
	return nil
}

// checkColumnAccess lets "*" through unconditionally: a wildcard select cannot
// be restricted here and is left to the database.
func (v *StatementValidator) checkColumnAccess(sql string, tables []string) error {
	var columns []string
	extracted := false

	for _, table := range tables {
		allowed := v.columns[table]
		if len(allowed) == 0 {
			continue
		}

		if !extracted {
			cols, err := v.extractor.Columns(sql)
			if err != nil {
				return fmt.Errorf("%w: unable to determine selected columns: %w", ErrColumnNotAllowed, err)
			}
			columns = cols
			extracted = true
		}

		for _, col := range columns {
			if col == "*" {
				continue
			}
			if _, ok := allowed[col]; !ok {
				return fmt.Errorf("%w: %s on table %q (allowed columns: %s)",
					ErrColumnNotAllowed, col, table, strings.Join(v.policy.AllowedColumns[table], ", "))
			}
		}
	}
	return nil
}

func (v *StatementValidator) checkRowLimit(sql string) (limit int, hasLimit bool, warnings []string, err error) {
	m := limitPattern.FindStringSubmatch(sql)
	if m == nil {
		return 0, false, []string{
			fmt.Sprintf("no LIMIT clause specified; results are capped at %d rows", v.policy.MaxResultRows),
		}, nil
	}

	n, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0, true, nil, fmt.Errorf("%w: LIMIT %s is not a usable row count (maximum %d)",
			ErrRowLimitExceeded, m[1], v.policy.MaxResultRows)
	}
	if n > v.policy.MaxResultRows {
		return n, true, nil, fmt.Errorf("%w: LIMIT %d exceeds the maximum of %d rows",
			ErrRowLimitExceeded, n, v.policy.MaxResultRows)
	}
	return n, true, nil, nil
}
