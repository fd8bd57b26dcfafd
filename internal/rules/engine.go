// Package rules evaluates derived payroll lines from input lines and a
// ruleset. Evaluation is pure: same inputs and ruleset produce the
// same lines, in the same order, on every run.
package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/corefin/payrun/internal/money"
	"github.com/corefin/payrun/internal/payroll"
	"github.com/corefin/payrun/internal/ruleset"
)

// GrossTotal sums every input line that is not explicit withholding.
// Negative amounts (refunds, adjustments) reduce gross.
func GrossTotal(inputs []payroll.Line) float64 {
	var total float64
	for _, it := range inputs {
		if it.LineType == payroll.LineTypeWithholding {
			continue
		}
		total += it.Amount
	}
	return total
}

// WithholdingTotal sums the explicit withholding input lines.
func WithholdingTotal(inputs []payroll.Line) float64 {
	var total float64
	for _, it := range inputs {
		if it.LineType == payroll.LineTypeWithholding {
			total += it.Amount
		}
	}
	return total
}

// CalculateDerivedLines evaluates the ruleset against the inputs and
// returns the derived lines. Rule order is preserved: the legacy
// employer tax rate fires first when configured, then the generic
// rules in document order. Every amount is rounded per the ruleset's
// mode at emission, never re-rounded downstream.
//
// An unrecognized rule type aborts the whole calculation. Skipping it
// would understate a mandatory charge.
func CalculateDerivedLines(rs *ruleset.RuleSet, inputs []payroll.Line, now time.Time) ([]payroll.Line, error) {
	rounding := rs.Rounding()
	gross := GrossTotal(inputs)

	var derived []payroll.Line

	// Legacy single-rate employer tax. A zero rate emits nothing.
	if rate := rs.LegacyEmployerTaxRate(); rate != nil && *rate != 0 {
		derived = append(derived, payroll.Line{
			LineType:  payroll.LineTypeEmployerTax,
			Amount:    money.Round(gross**rate, rounding),
			CreatedAt: now,
		})
	}

	for _, r := range rs.Policy.DerivedRules {
		lines, err := evalRule(r, rounding, gross, inputs, now)
		if err != nil {
			return nil, err
		}
		derived = append(derived, lines...)
	}

	return derived, nil
}

func evalRule(r ruleset.DerivedRule, rounding money.Rounding, gross float64, inputs []payroll.Line, now time.Time) ([]payroll.Line, error) {
	switch r.Type {
	case ruleset.RulePercentageOfGross:
		return []payroll.Line{{
			LineType:  r.OutLineType,
			Amount:    money.Round(gross*r.Rate, rounding),
			Meta:      map[string]any{"rule": ruleName(r)},
			CreatedAt: now,
		}}, nil

	case ruleset.RulePercentageOfGrossWithCap:
		base := math.Min(gross, r.CapAmount)
		return []payroll.Line{{
			LineType:  r.OutLineType,
			Amount:    money.Round(base*r.Rate, rounding),
			Meta:      map[string]any{"rule": ruleName(r), "cap_amount": r.CapAmount},
			CreatedAt: now,
		}}, nil

	case ruleset.RuleThresholdPiecewisePercentage:
		below := math.Min(gross, r.ThresholdAmount)
		above := math.Max(0, gross-r.ThresholdAmount)
		amount := below*r.RateBelow + above*r.RateAbove
		return []payroll.Line{{
			LineType:  r.OutLineType,
			Amount:    money.Round(amount, rounding),
			Meta:      map[string]any{"rule": ruleName(r), "threshold_amount": r.ThresholdAmount},
			CreatedAt: now,
		}}, nil

	case ruleset.RulePerEmployeePercentageOfGross:
		return evalPerEmployee(r, rounding, inputs, now), nil

	default:
		return nil, payroll.NewError(payroll.CodeUnsupportedRuleType,
			fmt.Sprintf("unsupported derived rule type %q", r.Type))
	}
}

// employeeGross accumulates per-employee gross during grouping.
type employeeGross struct {
	gross        float64
	employeeType string
}

// evalPerEmployee groups non-withholding inputs by employee and emits
// one line per employee. Lines without an employee collapse into the
// "unknown" bucket. Output order is first appearance in the inputs,
// which keeps the result deterministic for a given input order.
func evalPerEmployee(r ruleset.DerivedRule, rounding money.Rounding, inputs []payroll.Line, now time.Time) []payroll.Line {
	byEmp := make(map[string]*employeeGross)
	var order []string

	for _, it := range inputs {
		if it.LineType == payroll.LineTypeWithholding {
			continue
		}
		emp := it.Employee
		if emp == "" {
			emp = "unknown"
		}
		acc, ok := byEmp[emp]
		if !ok {
			acc = &employeeGross{}
			byEmp[emp] = acc
			order = append(order, emp)
		}
		acc.gross += it.Amount
		if acc.employeeType == "" {
			if et, ok := it.Meta["employee_type"].(string); ok {
				acc.employeeType = et
			}
		}
	}

	lines := make([]payroll.Line, 0, len(order))
	for _, emp := range order {
		acc := byEmp[emp]
		et := acc.employeeType
		if et == "" {
			et = "default"
		}
		rate, ok := r.RateByEmployeeType[et]
		if !ok {
			// Unknown employee type falls back to the "default" bucket;
			// no default configured means no charge for that employee.
			rate = r.RateByEmployeeType["default"]
		}
		lines = append(lines, payroll.Line{
			Employee:  emp,
			LineType:  r.OutLineType,
			Amount:    money.Round(acc.gross*rate, rounding),
			Meta:      map[string]any{"rule": ruleName(r), "employee_type": et},
			CreatedAt: now,
		})
	}
	return lines
}

// ruleName returns the rule's name for line provenance; unnamed rules
// record nil, not the empty string.
func ruleName(r ruleset.DerivedRule) any {
	if r.Name == "" {
		return nil
	}
	return r.Name
}

// ValidateInputLine checks one caller-supplied input line against the
// ruleset's constraints.
func ValidateInputLine(rs *ruleset.RuleSet, line payroll.Line) error {
	if line.LineType == "" {
		return payroll.NewFieldError(payroll.CodeMissingLineType, "line_type", "line_type is required")
	}
	if allowed := rs.AllowedLineTypes(); allowed != nil {
		ok := false
		for _, t := range allowed {
			if t == line.LineType {
				ok = true
				break
			}
		}
		if !ok {
			return payroll.NewFieldError(payroll.CodeUnsupportedLineType, "line_type",
				fmt.Sprintf("line type %q is not allowed by the ruleset", line.LineType))
		}
	}
	if math.IsNaN(line.Amount) || math.IsInf(line.Amount, 0) {
		return payroll.NewFieldError(payroll.CodeInvalidAmount, "amount", "amount must be a finite number")
	}
	if line.Amount < 0 && !rs.AllowsNegative(line.LineType) {
		return payroll.NewFieldError(payroll.CodeNegativeNotAllowed, "amount",
			fmt.Sprintf("negative amounts are not allowed for line type %q", line.LineType))
	}
	return nil
}
