package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corefin/payrun/internal/payroll"
)

// AddInputsOptions holds flags for the add-inputs command.
type AddInputsOptions struct {
	*RootOptions
	Items string
	File  string
}

// NewAddInputsCommand creates the add-inputs command.
func NewAddInputsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddInputsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add-inputs <run-id>",
		Short: "Append input lines to a run",
		Long: `Append input lines to a draft or calculated run. The run returns
to draft and any previously calculated results are discarded.

Items are a JSON array of lines:
  payrun add-inputs <run-id> --items '[{"employee":"e1","line_type":"salary","amount":50000}]'

or read from a file:
  payrun add-inputs <run-id> --file january.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddInputs(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Items, "items", "", "input lines as a JSON array")
	cmd.Flags().StringVar(&opts.File, "file", "", "path to a JSON file holding the input lines")
	cmd.MarkFlagsMutuallyExclusive("items", "file")

	return cmd
}

func runAddInputs(opts *AddInputsOptions, runID string, cmd *cobra.Command) error {
	raw := []byte(opts.Items)
	if opts.File != "" {
		data, err := os.ReadFile(opts.File)
		if err != nil {
			return WrapExitError(ExitCommandError, "read items file", err)
		}
		raw = data
	}
	if len(raw) == 0 {
		return WrapExitError(ExitCommandError, "no input lines", fmt.Errorf("provide --items or --file"))
	}

	var items []payroll.Line
	if err := json.Unmarshal(raw, &items); err != nil {
		return WrapExitError(ExitCommandError, "invalid items JSON", err)
	}

	svc, _, cleanup, err := openService(opts.RootOptions)
	if err != nil {
		return err
	}
	defer cleanup()

	f := formatter(opts.RootOptions, cmd)
	run, err := svc.AddInputs(cmd.Context(), actorFromOptions(opts.RootOptions), runID, items)
	if err != nil {
		return reportDomainError(f, err)
	}
	return f.Success(run)
}
