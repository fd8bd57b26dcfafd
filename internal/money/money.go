// Package money implements the rounding rules shared by the rule
// engine and the run lifecycle.
package money

import (
	"math"

	"github.com/shopspring/decimal"
)

// Rounding selects how derived amounts and totals are rounded.
type Rounding string

const (
	// RoundInteger rounds to whole minor currency units (e.g. NOK).
	RoundInteger Rounding = "integer"

	// RoundTwoDecimals rounds to the nearest cent.
	RoundTwoDecimals Rounding = "two_decimals"
)

// Valid reports whether r is a recognized rounding mode.
func (r Rounding) Valid() bool {
	return r == RoundInteger || r == RoundTwoDecimals
}

// Round rounds v per the given mode using round-half-away-from-zero.
//
// The computation goes through decimal arithmetic so that binary-float
// artifacts (1000*0.141 = 140.99999999999997) cannot tip a half-way
// value the wrong way. Idempotent: rounding an already-rounded value
// is a no-op.
//
// Non-finite input returns 0; the callers validate amounts before any
// arithmetic, so this is a backstop, not a silent correction path.
func Round(v float64, mode Rounding) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	d := decimal.NewFromFloat(v)
	switch mode {
	case RoundTwoDecimals:
		d = d.Round(2)
	default:
		d = d.Round(0)
	}
	f, _ := d.Float64()
	return f
}
