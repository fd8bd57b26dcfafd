// Package tax defines the pluggable withholding provider interface and
// its registry. A provider is consulted during calculate only when the
// run carries no explicit withholding input; its decision is
// snapshotted onto the run so a committed run replays without calling
// the provider again.
package tax

import (
	"context"

	"github.com/corefin/payrun/internal/payroll"
	"github.com/corefin/payrun/internal/ruleset"
)

// Context carries everything a provider may base its decision on.
type Context struct {
	Run      *payroll.Run
	RuleSet  *ruleset.RuleSet
	Gross    float64
	Currency string
}

// Decision is the provider's verdict. Basis records the figures the
// amount was derived from, for audit.
type Decision struct {
	Provider          string         `json:"provider"`
	Version           string         `json:"version"`
	WithholdingAmount float64        `json:"withholding_amount"`
	Basis             map[string]any `json:"basis,omitempty"`
}

// Snapshot converts the decision into the persisted run snapshot form.
func (d Decision) Snapshot() *payroll.TaxSnapshot {
	return &payroll.TaxSnapshot{
		Provider:          d.Provider,
		Version:           d.Version,
		Basis:             d.Basis,
		WithholdingAmount: d.WithholdingAmount,
	}
}

// Provider calculates withholding for a run.
type Provider interface {
	// Name identifies the provider in snapshots and logs.
	Name() string

	// Calculate returns the withholding decision for the run. It must
	// be deterministic for a given Context.
	Calculate(ctx context.Context, tc Context) (Decision, error)
}
