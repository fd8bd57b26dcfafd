package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/corefin/payrun/internal/canonical"
	"github.com/corefin/payrun/internal/payroll"
)

// signatureDomain separates run signatures from run checksums.
const signatureDomain = "payrun/signature/v1"

// KeySet holds the rotating HMAC key material. Current signs; Current
// and Previous both verify, so runs committed before a rotation stay
// verifiable for one rotation window.
type KeySet struct {
	Current  string
	Previous string
	Version  int
}

// Signer signs and verifies run payloads. A missing current key is
// reported as signing_key_missing; whether that is fatal is the
// caller's decision, not the signer's.
type Signer struct {
	Keys KeySet
}

// VerifyResult is the outcome of a signature check.
type VerifyResult struct {
	Valid bool `json:"valid"`

	// KeyVersion names the key that matched: the configured version
	// number for the current key, or "previous". Empty when invalid.
	KeyVersion string `json:"key_version,omitempty"`

	// Reason is set when invalid: "unsigned" or "mismatch".
	Reason string `json:"reason,omitempty"`
}

// signaturePayload is the signed subset of a run. Lines are covered
// transitively through the checksum.
func signaturePayload(run *payroll.Run) map[string]any {
	return map[string]any{
		"org_id":           orNil(run.OrgID),
		"run_id":           run.ID,
		"parent_run_id":    orNil(run.ParentRunID),
		"company_id":       run.CompanyID,
		"period_start":     run.PeriodStart,
		"period_end":       run.PeriodEnd,
		"pay_date":         run.PayDate,
		"currency":         run.Currency,
		"rule_set_version": run.RuleSetVersion,
		"policy_version":   orNil(run.PolicyVersion),
		"policy_hash":      orNil(run.PolicyHash),
		"engine_version":   orNil(run.EngineVersion),
		"status":           string(run.Status),
		"totals":           totalsMap(run.Totals),
		"providers":        providersMap(run.Providers),
		"checksum":         orNil(run.Checksum),
	}
}

func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func signHex(run *payroll.Run, key string) (string, error) {
	data, err := canonical.Marshal(signaturePayload(run))
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(signatureDomain))
	mac.Write([]byte{0x00})
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Sign computes the run's signature under the current key and returns
// it with the key version. A missing current key yields a
// signing_key_missing error; the caller decides whether that is fatal.
func (s *Signer) Sign(run *payroll.Run) (string, int, error) {
	if s.Keys.Current == "" {
		return "", 0, payroll.NewError(payroll.CodeSigningKeyMissing,
			"no current signing key configured")
	}
	sig, err := signHex(run, s.Keys.Current)
	if err != nil {
		return "", 0, err
	}
	return sig, s.Keys.Version, nil
}

// Verify checks the run's stored signature against the current key,
// then the previous one. Comparison is constant time.
func (s *Signer) Verify(run *payroll.Run) (VerifyResult, error) {
	if run.Signature == "" {
		return VerifyResult{Valid: false, Reason: "unsigned"}, nil
	}

	stored := []byte(run.Signature)
	if s.Keys.Current != "" {
		sig, err := signHex(run, s.Keys.Current)
		if err != nil {
			return VerifyResult{}, err
		}
		if hmac.Equal([]byte(sig), stored) {
			return VerifyResult{Valid: true, KeyVersion: versionString(s.Keys.Version)}, nil
		}
	}
	if s.Keys.Previous != "" {
		sig, err := signHex(run, s.Keys.Previous)
		if err != nil {
			return VerifyResult{}, err
		}
		if hmac.Equal([]byte(sig), stored) {
			return VerifyResult{Valid: true, KeyVersion: "previous"}, nil
		}
	}
	return VerifyResult{Valid: false, Reason: "mismatch"}, nil
}

// versionString names the current key in verify results. Key versions
// start at 1; an unset version still names the current key.
func versionString(v int) string {
	if v <= 0 {
		v = 1
	}
	return strconv.Itoa(v)
}
