package tax

import (
	"context"

	"github.com/corefin/payrun/internal/money"
)

// MockVersion is stamped on every mock decision.
const MockVersion = "mock-1"

// defaultRate applies when the ruleset does not configure a
// withholding rate.
const defaultRate = 0.25

// Mock is a deterministic flat-rate provider. It is the default
// provider and the only one shipped; real jurisdiction providers
// register themselves under their own names.
type Mock struct{}

// Name implements Provider.
func (Mock) Name() string { return "mock" }

// Calculate applies the ruleset's withholding_rate (default 0.25) to
// the gross, rounded per the ruleset's mode.
func (Mock) Calculate(_ context.Context, tc Context) (Decision, error) {
	rate := defaultRate
	if tc.RuleSet != nil && tc.RuleSet.Policy.WithholdingRate != nil {
		rate = *tc.RuleSet.Policy.WithholdingRate
	}

	rounding := money.RoundInteger
	if tc.RuleSet != nil {
		rounding = tc.RuleSet.Rounding()
	}

	return Decision{
		Provider:          "mock",
		Version:           MockVersion,
		WithholdingAmount: money.Round(tc.Gross*rate, rounding),
		Basis: map[string]any{
			"gross": tc.Gross,
			"rate":  rate,
		},
	}, nil
}
