package ruleset

import (
	"fmt"
	"strings"

	"github.com/corefin/payrun/internal/payroll"
)

// Ruleset validation error codes. These are stable identifiers;
// callers branch on them, messages are free text.
const (
	ErrMissingVersion         = "missing_ruleset_version"
	ErrMissingCurrency        = "missing_currency"
	ErrInvalidRounding        = "invalid_rounding"
	ErrInvalidAllowedTypes    = "invalid_allowed_line_types"
	ErrInvalidNegativeTypes   = "invalid_allow_negative_line_types"
	ErrInvalidEmployerTaxRate = "invalid_employer_tax_rate"
	ErrInvalidWithholdingRate = "invalid_withholding_rate"
	ErrInvalidDerivedRule     = "invalid_derived_rule"
	ErrUnsupportedRuleType    = "unsupported_rule_type"
	ErrSchemaViolation        = "invalid_ruleset_document"
)

// ValidationError is one schema or semantic failure in a ruleset
// document.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a decoded ruleset for semantic correctness. It
// returns all errors found rather than failing fast, so a bad document
// can be fixed in one round trip. An empty slice means the ruleset is
// safe to calculate with.
func Validate(rs *RuleSet) []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(rs.Version) == "" {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: "version is required and must be non-empty",
			Code:    ErrMissingVersion,
		})
	}

	if strings.TrimSpace(rs.Currency) == "" {
		errs = append(errs, ValidationError{
			Field:   "currency",
			Message: "currency is required and must be non-empty",
			Code:    ErrMissingCurrency,
		})
	}

	if rs.Policy.Rounding != "" && !rs.Policy.Rounding.Valid() {
		errs = append(errs, ValidationError{
			Field:   "policy.rounding",
			Message: fmt.Sprintf("invalid rounding %q, must be \"integer\" or \"two_decimals\"", rs.Policy.Rounding),
			Code:    ErrInvalidRounding,
		})
	}

	errs = append(errs, validateRates(rs)...)
	errs = append(errs, validateConstraints(rs.Policy.InputConstraints)...)

	for i, rule := range rs.Policy.DerivedRules {
		errs = append(errs, validateDerivedRule(i, rule)...)
	}

	return errs
}

func validateRates(rs *RuleSet) []ValidationError {
	var errs []ValidationError

	for _, c := range []struct {
		field string
		rate  *float64
	}{
		{"employer_tax_rate", rs.EmployerTaxRate},
		{"policy.employer_tax_rate", rs.Policy.EmployerTaxRate},
	} {
		if c.rate != nil && (*c.rate < 0 || *c.rate > 1) {
			errs = append(errs, ValidationError{
				Field:   c.field,
				Message: fmt.Sprintf("rate %v out of range [0, 1]", *c.rate),
				Code:    ErrInvalidEmployerTaxRate,
			})
		}
	}

	if r := rs.Policy.WithholdingRate; r != nil && (*r < 0 || *r > 1) {
		errs = append(errs, ValidationError{
			Field:   "policy.withholding_rate",
			Message: fmt.Sprintf("rate %v out of range [0, 1]", *r),
			Code:    ErrInvalidWithholdingRate,
		})
	}

	return errs
}

func validateConstraints(ic *InputConstraints) []ValidationError {
	if ic == nil {
		return nil
	}

	var errs []ValidationError
	for i, t := range ic.AllowedLineTypes {
		if strings.TrimSpace(t) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("policy.input_constraints.allowed_line_types[%d]", i),
				Message: "line type must be non-empty",
				Code:    ErrInvalidAllowedTypes,
			})
		}
	}
	for i, t := range ic.AllowNegativeLineTypes {
		if strings.TrimSpace(t) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("policy.input_constraints.allow_negative_line_types[%d]", i),
				Message: "line type must be non-empty",
				Code:    ErrInvalidNegativeTypes,
			})
		}
	}
	return errs
}

// validateDerivedRule enforces the per-type field requirements. An
// unrecognized type is reported rather than skipped: an unevaluated
// rule would silently understate a mandatory charge.
func validateDerivedRule(i int, rule DerivedRule) []ValidationError {
	path := func(f string) string {
		return fmt.Sprintf("policy.derived_rules[%d].%s", i, f)
	}

	var errs []ValidationError

	if strings.TrimSpace(rule.OutLineType) == "" {
		errs = append(errs, ValidationError{
			Field:   path("out_line_type"),
			Message: "out_line_type is required",
			Code:    ErrInvalidDerivedRule,
		})
	}

	rateInRange := func(field string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, ValidationError{
				Field:   path(field),
				Message: fmt.Sprintf("rate %v out of range [0, 1]", v),
				Code:    ErrInvalidDerivedRule,
			})
		}
	}

	switch rule.Type {
	case RulePercentageOfGross:
		rateInRange("rate", rule.Rate)

	case RulePercentageOfGrossWithCap:
		rateInRange("rate", rule.Rate)
		if rule.CapAmount < 0 {
			errs = append(errs, ValidationError{
				Field:   path("cap_amount"),
				Message: fmt.Sprintf("cap_amount %v must be >= 0", rule.CapAmount),
				Code:    ErrInvalidDerivedRule,
			})
		}

	case RuleThresholdPiecewisePercentage:
		rateInRange("rate_below", rule.RateBelow)
		rateInRange("rate_above", rule.RateAbove)
		if rule.ThresholdAmount < 0 {
			errs = append(errs, ValidationError{
				Field:   path("threshold_amount"),
				Message: fmt.Sprintf("threshold_amount %v must be >= 0", rule.ThresholdAmount),
				Code:    ErrInvalidDerivedRule,
			})
		}

	case RulePerEmployeePercentageOfGross:
		rateInRange("rate", rule.Rate)
		for et, r := range rule.RateByEmployeeType {
			rateInRange(fmt.Sprintf("rate_by_employee_type.%s", et), r)
		}

	default:
		errs = append(errs, ValidationError{
			Field:   path("type"),
			Message: fmt.Sprintf("unsupported rule type %q", rule.Type),
			Code:    ErrUnsupportedRuleType,
		})
	}

	return errs
}

// AsError collapses a validation result into a single structured error
// for callers that do not need the full list. Returns nil when the
// document is valid.
func AsError(version string, errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return payroll.NewFieldError(payroll.CodeRulesetInvalid, "ruleset "+version,
		strings.Join(msgs, "; "))
}
