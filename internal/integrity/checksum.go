// Package integrity computes run checksums and rotating-key HMAC
// signatures. Both operate on canonical JSON so that byte-identical
// payloads always yield the same digest, regardless of map iteration
// order or field insertion history.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/corefin/payrun/internal/canonical"
	"github.com/corefin/payrun/internal/payroll"
)

// checksumDomain separates run checksums from every other SHA-256 use
// in the system.
const checksumDomain = "payrun/checksum/v1"

// Checksum computes the content digest of a run's economic substance:
// identity of the period, the totals, the provider decisions, and
// every line. Volatile fields (timestamps, status, request metadata)
// are excluded so the digest is stable across replays.
func Checksum(run *payroll.Run) (string, error) {
	payload := checksumPayload(run)
	data, err := canonical.Marshal(payload)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(checksumDomain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func checksumPayload(run *payroll.Run) map[string]any {
	lines := make([]payroll.Line, 0, len(run.Inputs)+len(run.Derived))
	lines = append(lines, run.Inputs...)
	lines = append(lines, run.Derived...)
	sortLines(lines)

	lineMaps := make([]any, len(lines))
	for i, l := range lines {
		lineMaps[i] = lineMap(l)
	}

	return map[string]any{
		"company_id":       run.CompanyID,
		"period_start":     run.PeriodStart,
		"period_end":       run.PeriodEnd,
		"pay_date":         run.PayDate,
		"currency":         run.Currency,
		"rule_set_version": run.RuleSetVersion,
		"totals":           totalsMap(run.Totals),
		"providers":        providersMap(run.Providers),
		"lines":            lineMaps,
	}
}

// sortLines orders lines by (employee, line_type, amount) so the
// checksum does not depend on insertion order.
func sortLines(lines []payroll.Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if a.Employee != b.Employee {
			return a.Employee < b.Employee
		}
		if a.LineType != b.LineType {
			return a.LineType < b.LineType
		}
		return a.Amount < b.Amount
	})
}

// lineMap normalizes a line for hashing. Unattributed lines hash an
// explicit null employee, and timestamps are dropped.
func lineMap(l payroll.Line) map[string]any {
	m := map[string]any{
		"employee":  nil,
		"line_type": l.LineType,
		"amount":    l.Amount,
		"meta":      nil,
	}
	if l.Employee != "" {
		m["employee"] = l.Employee
	}
	if l.Meta != nil {
		m["meta"] = l.Meta
	}
	return m
}

func totalsMap(t payroll.Totals) map[string]any {
	return map[string]any{
		"gross_total":        t.GrossTotal,
		"withholding_total":  t.WithholdingTotal,
		"employer_tax_total": t.EmployerTaxTotal,
		"net_payable":        t.NetPayable,
	}
}

func providersMap(p payroll.Providers) map[string]any {
	m := map[string]any{}
	if p.Tax != nil {
		tax := map[string]any{
			"provider":           p.Tax.Provider,
			"version":            p.Tax.Version,
			"withholding_amount": p.Tax.WithholdingAmount,
		}
		if p.Tax.Basis != nil {
			tax["basis"] = p.Tax.Basis
		}
		m["tax"] = tax
	}
	return m
}
