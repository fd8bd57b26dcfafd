package cli

import (
	"github.com/spf13/cobra"

	"github.com/corefin/payrun/internal/lifecycle"
)

// ForkOptions holds flags for the fork command.
type ForkOptions struct {
	*RootOptions
	RuleSetVersion string
	PolicyVersion  string
	PolicyHash     string
}

// NewForkCommand creates the fork command.
func NewForkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ForkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fork <run-id>",
		Short: "Fork a run into a new draft",
		Long: `Create a new draft run from an existing one. The parent's inputs
carry over; derived results start fresh. This is the only way to
continue from a committed run, optionally under a new ruleset version.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := openService(opts.RootOptions)
			if err != nil {
				return err
			}
			defer cleanup()

			f := formatter(opts.RootOptions, cmd)
			run, err := svc.Fork(cmd.Context(), actorFromOptions(opts.RootOptions), args[0], lifecycle.ForkParams{
				RuleSetVersion: opts.RuleSetVersion,
				PolicyVersion:  opts.PolicyVersion,
				PolicyHash:     opts.PolicyHash,
			})
			if err != nil {
				return reportDomainError(f, err)
			}
			return f.Success(run)
		},
	}

	cmd.Flags().StringVar(&opts.RuleSetVersion, "ruleset-version", "", "ruleset version for the fork (defaults to the parent's)")
	cmd.Flags().StringVar(&opts.PolicyVersion, "policy-version", "", "policy version label for the fork")
	cmd.Flags().StringVar(&opts.PolicyHash, "policy-hash", "", "policy document hash for the fork")

	return cmd
}
