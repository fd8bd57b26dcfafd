package cli

import (
	"github.com/spf13/cobra"
)

// verifyOutput pairs the verification verdict with run identity.
type verifyOutput struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	Checksum   string `json:"checksum,omitempty"`
	Valid      bool   `json:"valid"`
	KeyVersion string `json:"key_version,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <run-id>",
		Short: "Verify a run's signature",
		Long: `Check the run's stored signature against the configured signing
keys. The current key is tried first, then the previous one, so runs
committed before a key rotation still verify. Exits non-zero when the
signature is missing or does not match.`,
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
			run, res, err := svc.Verify(cmd.Context(), args[0])
			if err != nil {
				return reportDomainError(f, err)
			}

			out := verifyOutput{
				RunID:      run.ID,
				Status:     string(run.Status),
				Checksum:   run.Checksum,
				Valid:      res.Valid,
				KeyVersion: res.KeyVersion,
				Reason:     res.Reason,
			}
			if err := f.Success(out); err != nil {
				return err
			}
			if !res.Valid {
				return WrapExitError(ExitFailure, "signature "+res.Reason, nil)
			}
			return nil
		},
	}
}
