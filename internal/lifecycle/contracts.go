// Package lifecycle drives payroll runs through their state machine:
// draft -> calculated -> approved -> committed, with fork as the only
// continuation of a committed run. All persistence goes through the
// Repository contract so the service stays storage-agnostic.
package lifecycle

import (
	"context"

	"github.com/corefin/payrun/internal/payroll"
	"github.com/corefin/payrun/internal/ruleset"
)

// Transition bundles everything one state change persists atomically:
// the new run state, the appended version snapshot, and the audit
// event. Either all three land or none do.
//
// ExpectedVersion is the ledger version the run held when the service
// checked its preconditions (0 for a new run). The repository must
// re-verify it inside the same atomic unit that writes: a stale
// transition whose precondition read has been overtaken by a
// concurrent one fails with invalid_operation instead of landing.
type Transition struct {
	Run             *payroll.Run
	ExpectedVersion int
	Reason          string
	RequestID       string
	Actor           string
	Details         map[string]any
}

// Repository is the persistence contract for runs and their ledgers.
type Repository interface {
	// GetRun loads a run by id; not_found when absent.
	GetRun(ctx context.Context, id string) (*payroll.Run, error)

	// ApplyTransition persists the run state, appends the next version
	// snapshot (max existing + 1), and records the audit event in one
	// atomic unit. It sets Run.CurrentVersion to the appended number.
	// When the ledger has advanced past t.ExpectedVersion the whole
	// transition fails with invalid_operation and nothing is written.
	ApplyTransition(ctx context.Context, t Transition) error

	// ListRuns returns runs for an org, newest first. Empty org lists
	// all runs.
	ListRuns(ctx context.Context, orgID string, limit int) ([]*payroll.Run, error)

	// ListVersions returns a run's version ledger in ascending order.
	ListVersions(ctx context.Context, runID string) ([]*payroll.Version, error)

	// GetVersion returns one ledger entry; not_found when absent.
	GetVersion(ctx context.Context, runID string, version int) (*payroll.Version, error)
}

// CachedResponse is a replayed idempotent result.
type CachedResponse struct {
	RunID      string
	StatusCode int
	Body       []byte
}

// IdempotencyCache stores responses keyed by (key, endpoint,
// request hash). A hit replays the stored body without re-executing;
// a changed request under the same key replaces the stored entry.
type IdempotencyCache interface {
	Check(ctx context.Context, key, endpoint, requestHash string) (*CachedResponse, error)
	Store(ctx context.Context, key, endpoint, requestHash string, resp CachedResponse) error
}

// RulesetLoader resolves ruleset versions to validated documents.
type RulesetLoader interface {
	Load(version string) (*ruleset.RuleSet, error)
}
