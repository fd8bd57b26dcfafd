// Package payroll defines the run aggregate and its satellite records.
//
// A Run is one payroll computation for a company/period. It progresses
// draft -> calculated -> approved -> committed; committed is terminal
// and the only legal continuation is a fork. Every state-changing
// transition appends an immutable Version snapshot and an audit Event.
package payroll

import "time"

// Status is the run lifecycle state.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusCalculated Status = "calculated"
	StatusApproved   Status = "approved"
	StatusCommitted  Status = "committed"
)

// Valid reports whether s is a recognized lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusCalculated, StatusApproved, StatusCommitted:
		return true
	}
	return false
}

// Terminal reports whether the run can no longer be mutated.
// A committed run is frozen; the only continuation is a fork.
func (s Status) Terminal() bool {
	return s == StatusCommitted
}

// Transition reasons, recorded on version snapshots and audit events.
const (
	ReasonCreated     = "created"
	ReasonInputsAdded = "inputs_added"
	ReasonCalculated  = "calculated"
	ReasonApproved    = "approved"
	ReasonCommitted   = "committed"
	ReasonForked      = "forked"
)

// LineTypeWithholding is the input line type that carries explicit
// withholding. It is excluded from gross and summed separately.
const LineTypeWithholding = "withholding"

// LineTypeEmployerTax is the derived line type produced by the legacy
// employer tax rate.
const LineTypeEmployerTax = "employer_tax"

// Line is an elemental monetary fact. Input lines are caller-supplied;
// derived lines are engine-produced and carry rule provenance in Meta.
//
// Employee is empty for lines not attributed to a single employee; it
// serializes as null in checksum payloads.
type Line struct {
	Employee  string         `json:"employee,omitempty"`
	LineType  string         `json:"line_type"`
	Amount    float64        `json:"amount"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Totals holds the aggregate amounts of a run, rounded per the
// ruleset's mode. Invariant after a successful calculate:
// NetPayable == GrossTotal - WithholdingTotal.
type Totals struct {
	GrossTotal       float64 `json:"gross_total"`
	WithholdingTotal float64 `json:"withholding_total"`
	EmployerTaxTotal float64 `json:"employer_tax_total"`
	NetPayable       float64 `json:"net_payable"`
}

// TaxSnapshot records the withholding provider decision taken during
// calculate, for replay and audit.
type TaxSnapshot struct {
	Provider          string         `json:"provider"`
	Version           string         `json:"version"`
	Basis             map[string]any `json:"basis,omitempty"`
	WithholdingAmount float64        `json:"withholding_amount"`
}

// Providers snapshots every pluggable-provider decision on a run.
type Providers struct {
	Tax *TaxSnapshot `json:"tax,omitempty"`
}

// Run is the central aggregate.
//
// Once Status == committed, Inputs, Derived, Totals, and Checksum are
// frozen; no operation may mutate them.
type Run struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id,omitempty"`
	ParentRunID string `json:"parent_run_id,omitempty"`
	CompanyID   int    `json:"company_id"`

	PeriodStart string `json:"period_start"` // YYYY-MM-DD
	PeriodEnd   string `json:"period_end"`
	PayDate     string `json:"pay_date"`
	Currency    string `json:"currency"`

	RuleSetVersion string `json:"rule_set_version"`
	PolicyVersion  string `json:"policy_version,omitempty"`
	PolicyHash     string `json:"policy_hash,omitempty"`
	EngineVersion  string `json:"engine_version"`

	Status    Status    `json:"status"`
	Inputs    []Line    `json:"inputs"`
	Derived   []Line    `json:"derived"`
	Totals    Totals    `json:"totals"`
	Providers Providers `json:"providers"`

	Checksum         string `json:"checksum,omitempty"`
	Signature        string `json:"signature,omitempty"`
	SignatureVersion int    `json:"signature_version,omitempty"`

	CurrentVersion int       `json:"current_version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Version is one immutable entry of the append-only version ledger.
// Versions for a run are strictly increasing with no gaps; the ledger
// is never updated or deleted, only appended to.
type Version struct {
	RunID          string    `json:"run_id"`
	Version        int       `json:"version"`
	OrgID          string    `json:"org_id,omitempty"`
	Reason         string    `json:"reason"`
	RuleSetVersion string    `json:"rule_set_version,omitempty"`
	PolicyVersion  string    `json:"policy_version,omitempty"`
	PolicyHash     string    `json:"policy_hash,omitempty"`
	EngineVersion  string    `json:"engine_version,omitempty"`
	Status         Status    `json:"status"`
	Totals         Totals    `json:"totals"`
	Inputs         []Line    `json:"inputs"`
	Derived        []Line    `json:"derived"`
	Providers      Providers `json:"providers"`
	Checksum       string    `json:"checksum,omitempty"`
	Signature      string    `json:"signature,omitempty"`
	SignatureVer   int       `json:"signature_version,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Event is a lightweight audit trail entry recorded alongside every
// transition, independent of the version ledger.
type Event struct {
	OrgID     string         `json:"org_id,omitempty"`
	RunID     string         `json:"run_id"`
	Action    string         `json:"action"`
	RequestID string         `json:"request_id,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
