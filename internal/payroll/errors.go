package payroll

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code. Calling layers map
// codes to transport-specific responses; messages are for humans and
// carry no contract.
type Code string

const (
	// CodeInvalidOperation: the requested transition is not legal from
	// the run's current status. The run is left untouched.
	CodeInvalidOperation Code = "invalid_operation"

	// CodeNotFound: unknown run id or version.
	CodeNotFound Code = "not_found"

	// CodeRulesetNotFound: no ruleset document for the requested version.
	CodeRulesetNotFound Code = "ruleset_not_found"

	// CodeRulesetInvalid: the ruleset document failed validation.
	// Field-specific validation failures carry their own codes
	// (missing_ruleset_version, invalid_rounding, ...) built by the
	// ruleset package; this is the umbrella for structural failures.
	CodeRulesetInvalid Code = "ruleset_invalid"

	// CodeUnsupportedRuleType: a derived rule type outside the closed
	// set reached evaluation. Fail-closed - skipping it would
	// understate a mandatory charge.
	CodeUnsupportedRuleType Code = "unsupported_rule_type"

	// CodeSigningKeyMissing: no current signing key at commit time.
	// Fatal in production, warning-only otherwise.
	CodeSigningKeyMissing Code = "signing_key_missing"

	// Input validation codes.
	CodeInvalidItems        Code = "invalid_items"
	CodeMissingLineType     Code = "missing_line_type"
	CodeUnsupportedLineType Code = "unsupported_line_type"
	CodeInvalidAmount       Code = "invalid_amount"
	CodeNegativeNotAllowed  Code = "negative_not_allowed"
	CodeInvalidPeriodStart  Code = "invalid_period_start"
	CodeInvalidPeriodEnd    Code = "invalid_period_end"
	CodeInvalidPayDate      Code = "invalid_pay_date"
	CodeInvalidPeriodRange  Code = "invalid_period_range"
)

// Error is a structured error with a stable code.
// Field and RunID are optional context for diagnostics.
type Error struct {
	Code    Code
	Message string
	Field   string
	RunID   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.RunID != "" && e.Field != "":
		return fmt.Sprintf("%s: %s (run=%s, field=%s)", e.Code, e.Message, e.RunID, e.Field)
	case e.RunID != "":
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// NewError creates a structured error.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewFieldError creates a structured error naming the offending field.
func NewFieldError(code Code, field, message string) *Error {
	return &Error{Code: code, Message: message, Field: field}
}

// NewInvalidOperation reports a transition attempted from a disallowed
// status.
func NewInvalidOperation(runID string, from Status, op string) *Error {
	return &Error{
		Code:    CodeInvalidOperation,
		Message: fmt.Sprintf("cannot %s a %s run", op, from),
		RunID:   runID,
	}
}

// NewNotFound reports an unknown run id.
func NewNotFound(runID string) *Error {
	return &Error{Code: CodeNotFound, Message: "run not found", RunID: runID}
}

// CodeOf extracts the stable code from err, or "" if err is not a
// structured payroll error. Uses errors.As to handle wrapping.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsInvalidOperation reports whether err is a state-machine rejection.
func IsInvalidOperation(err error) bool { return IsCode(err, CodeInvalidOperation) }

// IsNotFound reports whether err is an unknown run or version.
func IsNotFound(err error) bool { return IsCode(err, CodeNotFound) }
