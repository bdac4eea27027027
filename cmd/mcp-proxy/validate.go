package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aituberkit/mcp-proxy/internal/adapter/policy"
	"github.com/aituberkit/mcp-proxy/internal/config"
	"github.com/aituberkit/mcp-proxy/internal/core/domain"
	"github.com/spf13/cobra"
)

// errStatementRejected makes the process exit with status 2.
var errStatementRejected = errors.New("statement rejected")

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [flags] <sql | ->",
		Short: "Check a SQL statement against the policy and print the verdict",
		Long: `validate prints the verdict for a statement as JSON without executing it.
Pass "-" to read the statement from stdin. The exit status is 0 when the
statement is accepted and 2 when it is rejected.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policyFile, _ := cmd.Flags().GetString("policy-file")
			extractor, _ := cmd.Flags().GetString("sql-extractor")

			sql := strings.Join(args, " ")
			if sql == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				sql = string(raw)
			}
			return runValidate(cmd.OutOrStdout(), policyFile, extractor, sql)
		},
	}

	cmd.Flags().String("policy-file", os.Getenv("POLICY_FILE"), "path to the SQL policy YAML (env: POLICY_FILE)")
	cmd.Flags().String("sql-extractor", config.ExtractorLexical, "table/column extraction: lexical or parser")
	return cmd
}

func runValidate(out io.Writer, policyFile, extractor, sql string) error {
	pol, err := policy.Load(policyFile)
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}

	var opts []domain.ValidatorOption
	switch extractor {
	case config.ExtractorLexical:
	case config.ExtractorParser:
		opts = append(opts, domain.WithExtractor(domain.ParserExtractor{}))
	default:
		return fmt.Errorf("invalid --sql-extractor value %q: must be %q or %q", extractor, config.ExtractorLexical, config.ExtractorParser)
	}

	verdict := domain.NewStatementValidator(pol, opts...).Validate(sql)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(verdict); err != nil {
		return fmt.Errorf("writing verdict: %w", err)
	}
	if !verdict.Accepted {
		return errStatementRejected
	}
	return nil
}
