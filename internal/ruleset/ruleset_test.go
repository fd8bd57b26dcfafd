package ruleset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corefin/payrun/internal/money"
	"github.com/corefin/payrun/internal/payroll"
)

func rate(v float64) *float64 { return &v }

func validRuleSet() *RuleSet {
	return &RuleSet{
		Version:  "v1",
		Currency: "USD",
		Policy: Policy{
			Rounding:        money.RoundInteger,
			EmployerTaxRate: rate(0.141),
			DerivedRules: []DerivedRule{
				{
					Type:        RulePercentageOfGross,
					Name:        "pension",
					OutLineType: "pension",
					Rate:        0.05,
				},
			},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	assert.Empty(t, Validate(validRuleSet()))
}

func TestValidateCollectsAllErrors(t *testing.T) {
	rs := &RuleSet{
		Policy: Policy{
			Rounding:        money.Rounding("bankers"),
			EmployerTaxRate: rate(1.5),
		},
	}
	errs := Validate(rs)

	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	assert.Contains(t, codes, ErrMissingVersion)
	assert.Contains(t, codes, ErrMissingCurrency)
	assert.Contains(t, codes, ErrInvalidRounding)
	assert.Contains(t, codes, ErrInvalidEmployerTaxRate)
}

func TestValidateDerivedRules(t *testing.T) {
	tests := []struct {
		name string
		rule DerivedRule
		code string
	}{
		{
			name: "unsupported type",
			rule: DerivedRule{Type: "flat_amount", OutLineType: "x"},
			code: ErrUnsupportedRuleType,
		},
		{
			name: "missing out_line_type",
			rule: DerivedRule{Type: RulePercentageOfGross, Rate: 0.1},
			code: ErrInvalidDerivedRule,
		},
		{
			name: "rate above one",
			rule: DerivedRule{Type: RulePercentageOfGross, OutLineType: "x", Rate: 1.2},
			code: ErrInvalidDerivedRule,
		},
		{
			name: "negative cap",
			rule: DerivedRule{Type: RulePercentageOfGrossWithCap, OutLineType: "x", Rate: 0.1, CapAmount: -5},
			code: ErrInvalidDerivedRule,
		},
		{
			name: "bad employee type rate",
			rule: DerivedRule{
				Type:               RulePerEmployeePercentageOfGross,
				OutLineType:        "x",
				RateByEmployeeType: map[string]float64{"contractor": 2},
			},
			code: ErrInvalidDerivedRule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := validRuleSet()
			rs.Policy.DerivedRules = []DerivedRule{tt.rule}
			errs := Validate(rs)
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.code, errs[0].Code)
		})
	}
}

func TestRoundingDefault(t *testing.T) {
	rs := &RuleSet{Version: "v1", Currency: "USD"}
	assert.Equal(t, money.RoundInteger, rs.Rounding())

	rs.Policy.Rounding = money.RoundTwoDecimals
	assert.Equal(t, money.RoundTwoDecimals, rs.Rounding())
}

func TestLegacyEmployerTaxRatePrecedence(t *testing.T) {
	rs := &RuleSet{}
	assert.Nil(t, rs.LegacyEmployerTaxRate())

	rs.Policy.EmployerTaxRate = rate(0.1)
	require.NotNil(t, rs.LegacyEmployerTaxRate())
	assert.Equal(t, 0.1, *rs.LegacyEmployerTaxRate())

	// Root wins over policy when both are set.
	rs.EmployerTaxRate = rate(0.2)
	assert.Equal(t, 0.2, *rs.LegacyEmployerTaxRate())
}

func TestAllowsNegativeDefaults(t *testing.T) {
	rs := &RuleSet{}
	assert.True(t, rs.AllowsNegative("withholding"))
	assert.True(t, rs.AllowsNegative("adjustment"))
	assert.False(t, rs.AllowsNegative("salary"))

	rs.Policy.InputConstraints = &InputConstraints{
		AllowNegativeLineTypes: []string{"bonus"},
	}
	assert.True(t, rs.AllowsNegative("bonus"))
	assert.False(t, rs.AllowsNegative("withholding"))
}

func TestCheckSchema(t *testing.T) {
	doc := map[string]any{
		"version":  "v1",
		"currency": "USD",
		"policy": map[string]any{
			"rounding": "integer",
			"derived_rules": []any{
				map[string]any{
					"type":          "percentage_of_gross",
					"out_line_type": "pension",
					"rate":          0.05,
				},
			},
		},
	}
	assert.Empty(t, CheckSchema(doc))

	doc["employer_tax_rate"] = 3.0
	errs := CheckSchema(doc)
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrSchemaViolation, errs[0].Code)
}

func TestCheckSchemaRejectsBadRounding(t *testing.T) {
	doc := map[string]any{
		"version":  "v1",
		"currency": "USD",
		"policy":   map[string]any{"rounding": "bankers"},
	}
	assert.NotEmpty(t, CheckSchema(doc))
}

func writeRuleset(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoaderJSON(t *testing.T) {
	dir := t.TempDir()
	writeRuleset(t, dir, "v1.json", `{
		"version": "v1",
		"currency": "USD",
		"employer_tax_rate": 0.141,
		"policy": {"rounding": "integer"}
	}`)

	rs, err := NewLoader(dir, nil).Load("v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", rs.Version)
	assert.Equal(t, "USD", rs.Currency)
	require.NotNil(t, rs.LegacyEmployerTaxRate())
	assert.Equal(t, 0.141, *rs.LegacyEmployerTaxRate())
}

func TestLoaderYAML(t *testing.T) {
	dir := t.TempDir()
	writeRuleset(t, dir, "v2.yaml", `
version: v2
currency: EUR
policy:
  rounding: two_decimals
  withholding_rate: 0.3
  derived_rules:
    - type: percentage_of_gross_with_cap
      name: social
      out_line_type: social_security
      rate: 0.1
      cap_amount: 5000
`)

	rs, err := NewLoader(dir, nil).Load("v2")
	require.NoError(t, err)
	assert.Equal(t, money.RoundTwoDecimals, rs.Rounding())
	require.Len(t, rs.Policy.DerivedRules, 1)
	assert.Equal(t, RulePercentageOfGrossWithCap, rs.Policy.DerivedRules[0].Type)
	assert.Equal(t, 5000.0, rs.Policy.DerivedRules[0].CapAmount)
}

func TestLoaderNotFound(t *testing.T) {
	_, err := NewLoader(t.TempDir(), nil).Load("v9")
	require.Error(t, err)
	assert.Equal(t, payroll.CodeRulesetNotFound, payroll.CodeOf(err))
}

func TestLoaderRejectsInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	writeRuleset(t, dir, "v1.json", `{"currency": "USD"}`)

	_, err := NewLoader(dir, nil).Load("v1")
	require.Error(t, err)
	assert.Equal(t, payroll.CodeRulesetInvalid, payroll.CodeOf(err))
}

func TestLoaderRejectsUnsupportedRuleType(t *testing.T) {
	dir := t.TempDir()
	writeRuleset(t, dir, "v1.yaml", `
version: v1
currency: USD
policy:
  derived_rules:
    - type: flat_amount
      out_line_type: levy
`)

	_, err := NewLoader(dir, nil).Load("v1")
	require.Error(t, err)
	assert.Equal(t, payroll.CodeRulesetInvalid, payroll.CodeOf(err))
}
