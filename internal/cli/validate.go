package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/corefin/payrun/internal/payroll"
	"github.com/corefin/payrun/internal/ruleset"
)

// validateOutput summarizes a ruleset validation result.
type validateOutput struct {
	Version      string `json:"version"`
	Currency     string `json:"currency"`
	Rounding     string `json:"rounding"`
	DerivedRules int    `json:"derived_rules"`
	LegacyRate   bool   `json:"legacy_employer_tax_rate"`
}

// NewValidateRulesetCommand creates the validate-ruleset command.
func NewValidateRulesetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-ruleset <version>",
		Short: "Validate a ruleset document",
		Long: `Load and validate the ruleset document for a version, without
touching any run. Exits non-zero when the document is missing or
invalid, printing every violation found.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(rootOpts, cmd)
			loader := ruleset.NewLoader(rootOpts.RulesetsDir, slog.Default())

			rs, err := loader.Load(args[0])
			if err != nil {
				code := payroll.CodeOf(err)
				if code == "" {
					return WrapExitError(ExitCommandError, "load ruleset", err)
				}
				f.Error(string(code), err.Error(), nil)
				return WrapExitError(ExitFailure, string(code), err)
			}

			return f.Success(validateOutput{
				Version:      rs.Version,
				Currency:     rs.Currency,
				Rounding:     string(rs.Rounding()),
				DerivedRules: len(rs.Policy.DerivedRules),
				LegacyRate:   rs.LegacyEmployerTaxRate() != nil,
			})
		},
	}
}
