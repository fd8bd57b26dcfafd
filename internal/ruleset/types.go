// Package ruleset loads and validates versioned payroll policy
// documents.
//
// A ruleset, once loaded, is immutable for the lifetime of any run
// referencing it. It is re-validated on every load and never mutated;
// callers that need a different policy load a different version.
package ruleset

import "github.com/corefin/payrun/internal/money"

// Derived rule types. This is a closed set: validation rejects
// anything else, and the engine fails hard if an unknown type slips
// through anyway.
const (
	RulePercentageOfGross            = "percentage_of_gross"
	RulePercentageOfGrossWithCap     = "percentage_of_gross_with_cap"
	RuleThresholdPiecewisePercentage = "threshold_piecewise_percentage"
	RulePerEmployeePercentageOfGross = "per_employee_percentage_of_gross"
)

// defaultNegativeLineTypes applies when a ruleset does not configure
// allow_negative_line_types.
var defaultNegativeLineTypes = []string{"withholding", "adjustment"}

// RuleSet is a versioned policy document.
type RuleSet struct {
	Version  string `json:"version"`
	Currency string `json:"currency"`

	// EmployerTaxRate is the legacy single-rate employer tax. It may
	// live at the root or under policy; when present it always fires
	// before the generic derived rules.
	EmployerTaxRate *float64 `json:"employer_tax_rate,omitempty"`

	Policy Policy `json:"policy,omitempty"`
}

// Policy holds the tunable parts of a ruleset.
type Policy struct {
	Rounding         money.Rounding    `json:"rounding,omitempty"`
	EmployerTaxRate  *float64          `json:"employer_tax_rate,omitempty"`
	WithholdingRate  *float64          `json:"withholding_rate,omitempty"`
	InputConstraints *InputConstraints `json:"input_constraints,omitempty"`
	DerivedRules     []DerivedRule     `json:"derived_rules,omitempty"`
}

// InputConstraints restricts what input lines a caller may submit.
type InputConstraints struct {
	// AllowedLineTypes is an allow-list; nil means any line type.
	AllowedLineTypes []string `json:"allowed_line_types,omitempty"`

	// AllowNegativeLineTypes lists line types that may carry negative
	// amounts; nil means the default set {withholding, adjustment}.
	AllowNegativeLineTypes []string `json:"allow_negative_line_types,omitempty"`
}

// DerivedRule is one rule specification. Which fields are meaningful
// depends on Type; Validate enforces the per-type requirements.
type DerivedRule struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	OutLineType string `json:"out_line_type"`

	Rate               float64            `json:"rate,omitempty"`
	CapAmount          float64            `json:"cap_amount,omitempty"`
	ThresholdAmount    float64            `json:"threshold_amount,omitempty"`
	RateBelow          float64            `json:"rate_below,omitempty"`
	RateAbove          float64            `json:"rate_above,omitempty"`
	RateByEmployeeType map[string]float64 `json:"rate_by_employee_type,omitempty"`
}

// Rounding returns the effective rounding mode (default integer).
func (rs *RuleSet) Rounding() money.Rounding {
	if rs.Policy.Rounding != "" {
		return rs.Policy.Rounding
	}
	return money.RoundInteger
}

// LegacyEmployerTaxRate resolves the legacy rate, root taking
// precedence over policy. Returns nil when neither is set.
func (rs *RuleSet) LegacyEmployerTaxRate() *float64 {
	if rs.EmployerTaxRate != nil {
		return rs.EmployerTaxRate
	}
	return rs.Policy.EmployerTaxRate
}

// AllowedLineTypes returns the input allow-list, or nil when any line
// type is accepted.
func (rs *RuleSet) AllowedLineTypes() []string {
	if rs.Policy.InputConstraints == nil {
		return nil
	}
	return rs.Policy.InputConstraints.AllowedLineTypes
}

// AllowsNegative reports whether lineType may carry a negative amount.
func (rs *RuleSet) AllowsNegative(lineType string) bool {
	allowed := defaultNegativeLineTypes
	if rs.Policy.InputConstraints != nil && rs.Policy.InputConstraints.AllowNegativeLineTypes != nil {
		allowed = rs.Policy.InputConstraints.AllowNegativeLineTypes
	}
	for _, t := range allowed {
		if t == lineType {
			return true
		}
	}
	return false
}
