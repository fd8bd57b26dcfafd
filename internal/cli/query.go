package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show a run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := openService(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			f := formatter(rootOpts, cmd)
			run, err := svc.GetRun(cmd.Context(), args[0])
			if err != nil {
				return reportDomainError(f, err)
			}
			return f.Success(run)
		},
	}
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Limit int
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := openService(opts.RootOptions)
			if err != nil {
				return err
			}
			defer cleanup()

			f := formatter(opts.RootOptions, cmd)
			runs, err := svc.ListRuns(cmd.Context(), actorFromOptions(opts.RootOptions), opts.Limit)
			if err != nil {
				return reportDomainError(f, err)
			}
			return f.Success(runs)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum number of runs to return (0 for all)")
	return cmd
}

// NewVersionsCommand creates the versions command.
func NewVersionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <run-id> [version]",
		Short: "Show a run's version ledger",
		Long: `List the append-only version ledger of a run, or one entry when a
version number is given. Every state transition appended exactly one
entry; entries are never rewritten.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := openService(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			f := formatter(rootOpts, cmd)
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid version number", err)
				}
				v, err := svc.GetVersion(cmd.Context(), args[0], n)
				if err != nil {
					return reportDomainError(f, err)
				}
				return f.Success(v)
			}

			versions, err := svc.ListVersions(cmd.Context(), args[0])
			if err != nil {
				return reportDomainError(f, err)
			}
			return f.Success(versions)
		},
	}
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "reconcile <run-id>",
		Short:         "Summarize a run's control figures",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, cleanup, err := openService(rootOpts)
			if err != nil {
				return err
			}
			defer cleanup()

			f := formatter(rootOpts, cmd)
			rec, err := svc.Reconcile(cmd.Context(), args[0])
			if err != nil {
				return reportDomainError(f, err)
			}
			return f.Success(rec)
		},
	}
}
