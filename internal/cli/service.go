package cli

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corefin/payrun/internal/integrity"
	"github.com/corefin/payrun/internal/lifecycle"
	"github.com/corefin/payrun/internal/ruleset"
	"github.com/corefin/payrun/internal/store"
)

// Environment variables for signing key material and environment
// detection. Keys never travel through flags; flags leak into shell
// history and process listings.
const (
	envKeyCurrent  = "PAYRUN_SIGNING_KEY_CURRENT"
	envKeyPrevious = "PAYRUN_SIGNING_KEY_PREVIOUS"
	envKeyVersion  = "PAYRUN_SIGNING_KEY_VERSION"
	envEnvironment = "PAYRUN_ENV"
)

// signerFromEnv builds the signer from the process environment.
func signerFromEnv() (*integrity.Signer, bool) {
	version := 1
	if raw := os.Getenv(envKeyVersion); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			version = v
		}
	}
	production := strings.EqualFold(os.Getenv(envEnvironment), "production")
	return &integrity.Signer{
		Keys: integrity.KeySet{
			Current:  os.Getenv(envKeyCurrent),
			Previous: os.Getenv(envKeyPrevious),
			Version:  version,
		},
	}, production
}

// openService wires the full service stack for one command run. The
// returned cleanup closes the store.
func openService(opts *RootOptions) (*lifecycle.Service, *store.Store, func(), error) {
	st, err := store.Open(opts.DBPath)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "open database", err)
	}

	signer, production := signerFromEnv()
	svc := lifecycle.NewService(lifecycle.Config{
		Repo:       st,
		Rulesets:   ruleset.NewLoader(opts.RulesetsDir, slog.Default()),
		Signer:     signer,
		Cache:      st,
		Production: production,
	})
	return svc, st, func() { st.Close() }, nil
}

// actorFromOptions maps global flags onto the service actor context.
func actorFromOptions(opts *RootOptions) lifecycle.ActorContext {
	return lifecycle.ActorContext{
		OrgID:          opts.OrgID,
		RequestID:      opts.RequestID,
		Actor:          opts.Actor,
		IdempotencyKey: opts.IdempotencyKey,
	}
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
