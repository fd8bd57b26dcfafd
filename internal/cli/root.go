// Package cli implements the payrun command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	DBPath      string
	RulesetsDir string

	OrgID          string
	Actor          string
	RequestID      string
	IdempotencyKey string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the payrun CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "payrun",
		Short: "payrun - embedded payroll run engine",
		Long:  "Deterministic payroll run lifecycle: draft, calculate, approve, commit, fork.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "payrun.db", "path to the SQLite database")
	cmd.PersistentFlags().StringVar(&opts.RulesetsDir, "rulesets", "rulesets", "directory holding ruleset documents")
	cmd.PersistentFlags().StringVar(&opts.OrgID, "org", "", "organization id for scoping and audit")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "", "acting user recorded on the audit trail")
	cmd.PersistentFlags().StringVar(&opts.RequestID, "request-id", "", "request correlation id")
	cmd.PersistentFlags().StringVar(&opts.IdempotencyKey, "idempotency-key", "", "idempotency key for safe retries")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewAddInputsCommand(opts))
	cmd.AddCommand(NewCalculateCommand(opts))
	cmd.AddCommand(NewApproveCommand(opts))
	cmd.AddCommand(NewCommitCommand(opts))
	cmd.AddCommand(NewForkCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewVersionsCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewValidateRulesetCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
