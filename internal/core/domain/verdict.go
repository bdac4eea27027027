package domain

// Verdict is the outcome of validating one statement.
type Verdict struct {
	Accepted bool     `json:"accepted"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	// Verb is the leading keyword, upper-cased. Empty when the statement was
	// rejected before the operation check ran.
	Verb string `json:"verb,omitempty"`
	// HasLimit reports whether the statement carries its own LIMIT clause.
	HasLimit bool `json:"has_limit,omitempty"`
	Limit    int  `json:"limit,omitempty"`

	// Masks are the policy masks extended to output aliases, keyed by
	// lower-cased result column. Set only on accepted verdicts.
	Masks map[string]MaskType `json:"-"`

	// Err wraps one of the rejection sentinels. Nil when accepted.
	Err error `json:"-"`
}

func reject(err error) Verdict {
	return Verdict{Accepted: false, Reason: err.Error(), Err: err}
}
