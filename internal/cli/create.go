package cli

import (
	"github.com/spf13/cobra"

	"github.com/corefin/payrun/internal/lifecycle"
)

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	CompanyID      int
	PeriodStart    string
	PeriodEnd      string
	PayDate        string
	Currency       string
	RuleSetVersion string
	PolicyVersion  string
	PolicyHash     string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new draft payroll run",
		Long: `Create a new draft payroll run for a company and period.

Example:
  payrun create --period-start 2026-01-01 --period-end 2026-01-31 \
    --pay-date 2026-02-05 --currency NOK --ruleset-version v1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.CompanyID, "company", 1, "company id")
	cmd.Flags().StringVar(&opts.PeriodStart, "period-start", "", "period start (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.PeriodEnd, "period-end", "", "period end (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.PayDate, "pay-date", "", "pay date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Currency, "currency", "NOK", "run currency")
	cmd.Flags().StringVar(&opts.RuleSetVersion, "ruleset-version", "v1", "ruleset version to bind")
	cmd.Flags().StringVar(&opts.PolicyVersion, "policy-version", "", "policy version label (defaults to ruleset version)")
	cmd.Flags().StringVar(&opts.PolicyHash, "policy-hash", "", "policy document hash")
	cmd.MarkFlagRequired("period-start")
	cmd.MarkFlagRequired("period-end")
	cmd.MarkFlagRequired("pay-date")

	return cmd
}

func runCreate(opts *CreateOptions, cmd *cobra.Command) error {
	svc, _, cleanup, err := openService(opts.RootOptions)
	if err != nil {
		return err
	}
	defer cleanup()

	f := formatter(opts.RootOptions, cmd)
	run, err := svc.Create(cmd.Context(), actorFromOptions(opts.RootOptions), lifecycle.CreateParams{
		CompanyID:      opts.CompanyID,
		PeriodStart:    opts.PeriodStart,
		PeriodEnd:      opts.PeriodEnd,
		PayDate:        opts.PayDate,
		Currency:       opts.Currency,
		RuleSetVersion: opts.RuleSetVersion,
		PolicyVersion:  opts.PolicyVersion,
		PolicyHash:     opts.PolicyHash,
	})
	if err != nil {
		return reportDomainError(f, err)
	}
	return f.Success(run)
}
