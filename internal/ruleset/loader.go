package ruleset

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/corefin/payrun/internal/payroll"
)

// extensions are tried in order; the first file that exists wins.
var extensions = []string{".json", ".yaml", ".yml"}

// Loader resolves ruleset versions to documents on disk. A version
// "v1" maps to <dir>/v1.json, <dir>/v1.yaml, or <dir>/v1.yml.
type Loader struct {
	Dir    string
	Logger *slog.Logger
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{Dir: dir, Logger: logger}
}

// Load reads, schema-checks, and validates the ruleset for version.
// Every call re-reads from disk; loaded documents are never cached, so
// a ruleset edit is visible to the next calculate without restart.
func (l *Loader) Load(version string) (*RuleSet, error) {
	path, err := l.resolve(version)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset %s: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, payroll.NewFieldError(payroll.CodeRulesetInvalid, "ruleset "+version,
			fmt.Sprintf("parse %s: %v", filepath.Base(path), err))
	}

	if errs := CheckSchema(doc); len(errs) > 0 {
		return nil, AsError(version, errs)
	}

	rs, err := decode(doc)
	if err != nil {
		return nil, payroll.NewFieldError(payroll.CodeRulesetInvalid, "ruleset "+version, err.Error())
	}

	if errs := Validate(rs); len(errs) > 0 {
		return nil, AsError(version, errs)
	}

	if rs.Version != version {
		l.Logger.Warn("ruleset version mismatch",
			"requested", version, "document", rs.Version, "path", path)
	}
	l.warnLegacyOverlap(rs)

	return rs, nil
}

// resolve finds the document file for version.
func (l *Loader) resolve(version string) (string, error) {
	for _, ext := range extensions {
		path := filepath.Join(l.Dir, version+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", payroll.NewError(payroll.CodeRulesetNotFound,
		fmt.Sprintf("no ruleset document for version %q in %s", version, l.Dir))
}

// decode maps the raw document onto the typed ruleset. The document
// came through YAML, so a JSON round trip picks up the struct tags.
func decode(doc map[string]any) (*RuleSet, error) {
	buf, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var rs RuleSet
	if err := json.Unmarshal(buf, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

// warnLegacyOverlap flags a ruleset that configures both the legacy
// employer tax rate and a generic rule emitting employer_tax lines.
// Both fire, and both amounts land in the employer tax total; that is
// intentional but worth a log line when it happens.
func (l *Loader) warnLegacyOverlap(rs *RuleSet) {
	if rs.LegacyEmployerTaxRate() == nil {
		return
	}
	for _, rule := range rs.Policy.DerivedRules {
		if rule.OutLineType == payroll.LineTypeEmployerTax {
			l.Logger.Warn("legacy employer_tax_rate and a derived employer_tax rule are both configured; amounts are additive",
				"ruleset", rs.Version, "rule", rule.Name)
			return
		}
	}
}
