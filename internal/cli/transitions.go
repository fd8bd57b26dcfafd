package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/corefin/payrun/internal/lifecycle"
	"github.com/corefin/payrun/internal/payroll"
)

// The calculate, approve, and commit commands share one shape: a run
// id in, a run out.
func newTransitionCommand(rootOpts *RootOptions, use, short, long string,
	op func(*lifecycle.Service, context.Context, lifecycle.ActorContext, string) (*payroll.Run, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use + " <run-id>",
		Short:         short,
		Long:          long,
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
			run, err := op(svc, cmd.Context(), actorFromOptions(rootOpts), args[0])
			if err != nil {
				return reportDomainError(f, err)
			}
			return f.Success(run)
		},
	}
}

// NewCalculateCommand creates the calculate command.
func NewCalculateCommand(rootOpts *RootOptions) *cobra.Command {
	return newTransitionCommand(rootOpts, "calculate",
		"Calculate derived lines and totals for a run",
		`Evaluate the run's ruleset against its input lines: derived lines,
totals, and the tax provider snapshot are stored and the run moves to
calculated. Repeatable while the run is draft or calculated.`,
		func(svc *lifecycle.Service, ctx context.Context, actor lifecycle.ActorContext, runID string) (*payroll.Run, error) {
			return svc.Calculate(ctx, actor, runID)
		})
}

// NewApproveCommand creates the approve command.
func NewApproveCommand(rootOpts *RootOptions) *cobra.Command {
	return newTransitionCommand(rootOpts, "approve",
		"Approve a calculated run",
		`Mark a calculated run as reviewed. Only the status changes; totals
and lines stay as calculated.`,
		func(svc *lifecycle.Service, ctx context.Context, actor lifecycle.ActorContext, runID string) (*payroll.Run, error) {
			return svc.Approve(ctx, actor, runID)
		})
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	return newTransitionCommand(rootOpts, "commit",
		"Commit an approved run (terminal)",
		`Freeze an approved run: compute the content checksum, sign the run
when signing keys are configured, and move to the terminal committed
state. Committed runs never change; continue with 'payrun fork'.`,
		func(svc *lifecycle.Service, ctx context.Context, actor lifecycle.ActorContext, runID string) (*payroll.Run, error) {
			return svc.Commit(ctx, actor, runID)
		})
}
