package lifecycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/corefin/payrun/internal/canonical"
	"github.com/corefin/payrun/internal/integrity"
	"github.com/corefin/payrun/internal/money"
	"github.com/corefin/payrun/internal/payroll"
	"github.com/corefin/payrun/internal/rules"
	"github.com/corefin/payrun/internal/tax"
)

// ActorContext identifies who is acting and carries the idempotency
// key for the request, when the caller supplies one.
type ActorContext struct {
	OrgID          string
	RequestID      string
	Actor          string
	IdempotencyKey string
}

// CreateParams are the caller-supplied fields of a new run. Zero
// values fall back to defaults: company 1, NOK, ruleset v1.
type CreateParams struct {
	CompanyID      int    `json:"company_id,omitempty"`
	PeriodStart    string `json:"period_start"`
	PeriodEnd      string `json:"period_end"`
	PayDate        string `json:"pay_date"`
	Currency       string `json:"currency,omitempty"`
	RuleSetVersion string `json:"rule_set_version,omitempty"`
	PolicyVersion  string `json:"policy_version,omitempty"`
	PolicyHash     string `json:"policy_hash,omitempty"`
}

// ForkParams optionally repoint a fork at a different policy.
type ForkParams struct {
	RuleSetVersion string `json:"rule_set_version,omitempty"`
	PolicyVersion  string `json:"policy_version,omitempty"`
	PolicyHash     string `json:"policy_hash,omitempty"`
}

// Reconciliation is a control-figure summary of a run.
type Reconciliation struct {
	ID          string         `json:"id"`
	CompanyID   int            `json:"company_id"`
	PeriodStart string         `json:"period_start"`
	PeriodEnd   string         `json:"period_end"`
	PayDate     string         `json:"pay_date"`
	Currency    string         `json:"currency"`
	Status      payroll.Status `json:"status"`
	Totals      payroll.Totals `json:"totals"`
	Checksum    string         `json:"checksum,omitempty"`
	Counts      LineCounts     `json:"counts"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// LineCounts breaks down line volume for reconciliation.
type LineCounts struct {
	Inputs     int `json:"inputs"`
	Derived    int `json:"derived"`
	TotalLines int `json:"total_lines"`
}

// Config wires a Service. Repo and Rulesets are required; the rest
// default to production implementations.
type Config struct {
	Repo       Repository
	Rulesets   RulesetLoader
	Providers  *tax.Registry
	Signer     *integrity.Signer
	Cache      IdempotencyCache
	IDs        IDGenerator
	Clock      func() time.Time
	Logger     *slog.Logger
	Production bool
}

// Service owns every run state transition. It is safe for concurrent
// use when its Repository is.
type Service struct {
	repo       Repository
	rulesets   RulesetLoader
	providers  *tax.Registry
	signer     *integrity.Signer
	cache      IdempotencyCache
	ids        IDGenerator
	clock      func() time.Time
	logger     *slog.Logger
	production bool
}

// NewService creates a service from cfg, filling in defaults.
func NewService(cfg Config) *Service {
	s := &Service{
		repo:       cfg.Repo,
		rulesets:   cfg.Rulesets,
		providers:  cfg.Providers,
		signer:     cfg.Signer,
		cache:      cfg.Cache,
		ids:        cfg.IDs,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		production: cfg.Production,
	}
	if s.providers == nil {
		s.providers = tax.NewRegistry()
	}
	if s.signer == nil {
		s.signer = &integrity.Signer{}
	}
	if s.ids == nil {
		s.ids = UUIDv7Generator{}
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// RequestHash fingerprints a request body for idempotency matching.
// The body is normalized through canonical JSON first, so two requests
// that differ only in field order hash the same.
func RequestHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", err
	}
	data, err := canonical.Marshal(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// withIdempotency replays a cached result for a repeated
// (key, endpoint, request) triple, and otherwise executes fn and
// stores its result. A reused key with a different request hash
// replaces the cached entry, per last-writer-wins.
func (s *Service) withIdempotency(ctx context.Context, actor ActorContext, endpoint string, body any, fn func() (*payroll.Run, error)) (*payroll.Run, error) {
	if actor.IdempotencyKey == "" || s.cache == nil {
		return fn()
	}

	hash, err := RequestHash(body)
	if err != nil {
		return nil, err
	}
	if cached, err := s.cache.Check(ctx, actor.IdempotencyKey, endpoint, hash); err == nil && cached != nil {
		var run payroll.Run
		if err := json.Unmarshal(cached.Body, &run); err == nil {
			s.logger.Info("idempotent replay",
				"endpoint", endpoint, "key", actor.IdempotencyKey, "run_id", run.ID)
			return &run, nil
		}
	}

	run, err := fn()
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Store(ctx, actor.IdempotencyKey, endpoint, hash, CachedResponse{
		RunID:      run.ID,
		StatusCode: 200,
		Body:       raw,
	}); err != nil {
		s.logger.Warn("idempotency store failed", "endpoint", endpoint, "error", err)
	}
	return run, nil
}

// Create starts a new draft run and appends version 1 of its ledger.
func (s *Service) Create(ctx context.Context, actor ActorContext, params CreateParams) (*payroll.Run, error) {
	return s.withIdempotency(ctx, actor, "create", params, func() (*payroll.Run, error) {
		if err := validateDates(params.PeriodStart, params.PeriodEnd, params.PayDate); err != nil {
			return nil, err
		}

		now := s.clock()
		run := &payroll.Run{
			ID:             s.ids.Generate(),
			OrgID:          actor.OrgID,
			CompanyID:      defaultInt(params.CompanyID, 1),
			PeriodStart:    params.PeriodStart,
			PeriodEnd:      params.PeriodEnd,
			PayDate:        params.PayDate,
			Currency:       defaultStr(params.Currency, "NOK"),
			RuleSetVersion: defaultStr(params.RuleSetVersion, "v1"),
			PolicyVersion:  defaultStr(params.PolicyVersion, defaultStr(params.RuleSetVersion, "v1")),
			PolicyHash:     params.PolicyHash,
			EngineVersion:  payroll.EngineVersion,
			Status:         payroll.StatusDraft,
			Inputs:         []payroll.Line{},
			Derived:        []payroll.Line{},
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := s.apply(ctx, actor, run, payroll.ReasonCreated, nil); err != nil {
			return nil, err
		}
		s.logger.Info("run created", "run_id", run.ID, "company_id", run.CompanyID,
			"period_start", run.PeriodStart, "period_end", run.PeriodEnd)
		return run, nil
	})
}

// addInputsBody pairs the run with the items for idempotency hashing.
type addInputsBody struct {
	RunID string         `json:"run_id"`
	Items []payroll.Line `json:"items"`
}

// AddInputs appends input lines and drops any stale derived state.
// The run returns to draft: previously calculated results are void
// once the inputs change.
func (s *Service) AddInputs(ctx context.Context, actor ActorContext, runID string, items []payroll.Line) (*payroll.Run, error) {
	return s.withIdempotency(ctx, actor, "add_inputs", addInputsBody{RunID: runID, Items: items}, func() (*payroll.Run, error) {
		run, err := s.repo.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Status != payroll.StatusDraft && run.Status != payroll.StatusCalculated {
			return nil, payroll.NewInvalidOperation(run.ID, run.Status, "add inputs to")
		}
		if len(items) == 0 {
			return nil, payroll.NewFieldError(payroll.CodeInvalidItems, "items", "at least one input line is required")
		}

		rs, err := s.rulesets.Load(run.RuleSetVersion)
		if err != nil {
			return nil, err
		}

		// Stamp a copy; the caller's slice stays untouched.
		now := s.clock()
		lines := make([]payroll.Line, len(items))
		copy(lines, items)
		for i := range lines {
			if err := rules.ValidateInputLine(rs, lines[i]); err != nil {
				return nil, err
			}
			lines[i].CreatedAt = now
		}

		run.Inputs = append(run.Inputs, lines...)
		run.Derived = []payroll.Line{}
		run.Totals = payroll.Totals{}
		run.Providers = payroll.Providers{}
		run.Checksum = ""
		run.Status = payroll.StatusDraft
		run.UpdatedAt = now

		if err := s.apply(ctx, actor, run, payroll.ReasonInputsAdded, map[string]any{"count": len(items)}); err != nil {
			return nil, err
		}
		return run, nil
	})
}

type runBody struct {
	RunID string `json:"run_id"`
}

// Calculate evaluates the ruleset against the run's inputs and stores
// derived lines and totals. When no explicit withholding input exists,
// the configured tax provider supplies the withholding amount and its
// decision is snapshotted for replay.
func (s *Service) Calculate(ctx context.Context, actor ActorContext, runID string) (*payroll.Run, error) {
	return s.withIdempotency(ctx, actor, "calculate", runBody{RunID: runID}, func() (*payroll.Run, error) {
		run, err := s.repo.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Status != payroll.StatusDraft && run.Status != payroll.StatusCalculated {
			return nil, payroll.NewInvalidOperation(run.ID, run.Status, "calculate")
		}

		rs, err := s.rulesets.Load(run.RuleSetVersion)
		if err != nil {
			return nil, err
		}
		rounding := rs.Rounding()

		gross := rules.GrossTotal(run.Inputs)
		withholding := rules.WithholdingTotal(run.Inputs)

		now := s.clock()
		var decision *tax.Decision
		if withholding == 0 {
			provider, err := s.providers.Resolve("")
			if err != nil {
				return nil, err
			}
			d, err := provider.Calculate(ctx, tax.Context{
				Run:      run,
				RuleSet:  rs,
				Gross:    gross,
				Currency: run.Currency,
			})
			if err != nil {
				return nil, fmt.Errorf("tax provider %s: %w", provider.Name(), err)
			}
			decision = &d
			withholding = d.WithholdingAmount
		}

		derived, err := rules.CalculateDerivedLines(rs, run.Inputs, now)
		if err != nil {
			return nil, err
		}
		if decision != nil && withholding > 0 {
			derived = append(derived, payroll.Line{
				LineType: payroll.LineTypeWithholding,
				Amount:   withholding,
				Meta: map[string]any{
					"provider": decision.Provider,
					"version":  decision.Version,
					"basis":    decision.Basis,
				},
				CreatedAt: now,
			})
		}

		var employerTax float64
		for _, d := range derived {
			if d.LineType == payroll.LineTypeEmployerTax {
				employerTax += d.Amount
			}
		}

		run.Derived = derived
		run.Totals = payroll.Totals{
			GrossTotal:       money.Round(gross, rounding),
			WithholdingTotal: money.Round(withholding, rounding),
			EmployerTaxTotal: money.Round(employerTax, rounding),
			NetPayable:       money.Round(gross-withholding, rounding),
		}
		if decision != nil {
			run.Providers.Tax = decision.Snapshot()
		}
		run.Status = payroll.StatusCalculated
		run.UpdatedAt = now

		if err := s.apply(ctx, actor, run, payroll.ReasonCalculated, nil); err != nil {
			return nil, err
		}
		s.logger.Info("run calculated", "run_id", run.ID,
			"gross", run.Totals.GrossTotal, "net", run.Totals.NetPayable)
		return run, nil
	})
}

// Approve marks a calculated run as reviewed. Totals and lines are
// untouched; only the status advances.
func (s *Service) Approve(ctx context.Context, actor ActorContext, runID string) (*payroll.Run, error) {
	return s.withIdempotency(ctx, actor, "approve", runBody{RunID: runID}, func() (*payroll.Run, error) {
		run, err := s.repo.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Status != payroll.StatusCalculated {
			return nil, payroll.NewInvalidOperation(run.ID, run.Status, "approve")
		}
		run.Status = payroll.StatusApproved
		run.UpdatedAt = s.clock()

		if err := s.apply(ctx, actor, run, payroll.ReasonApproved, nil); err != nil {
			return nil, err
		}
		return run, nil
	})
}

// Commit freezes an approved run: computes the content checksum,
// signs the payload when key material is available, and moves to the
// terminal committed state. A missing signing key is fatal in
// production and a logged warning otherwise.
func (s *Service) Commit(ctx context.Context, actor ActorContext, runID string) (*payroll.Run, error) {
	return s.withIdempotency(ctx, actor, "commit", runBody{RunID: runID}, func() (*payroll.Run, error) {
		run, err := s.repo.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.Status != payroll.StatusApproved {
			return nil, payroll.NewInvalidOperation(run.ID, run.Status, "commit")
		}

		checksum, err := integrity.Checksum(run)
		if err != nil {
			return nil, err
		}
		run.Checksum = checksum
		run.Status = payroll.StatusCommitted

		sig, keyVersion, err := s.signer.Sign(run)
		switch {
		case err == nil:
			run.Signature = sig
			run.SignatureVersion = keyVersion
		case payroll.IsCode(err, payroll.CodeSigningKeyMissing) && !s.production:
			s.logger.Warn("committing unsigned run: no signing key configured", "run_id", run.ID)
		default:
			return nil, err
		}

		run.UpdatedAt = s.clock()
		if err := s.apply(ctx, actor, run, payroll.ReasonCommitted, nil); err != nil {
			return nil, err
		}
		s.logger.Info("run committed", "run_id", run.ID,
			"checksum", run.Checksum, "signed", run.Signature != "")
		return run, nil
	})
}

type forkBody struct {
	ParentRunID string     `json:"parent_run_id"`
	Params      ForkParams `json:"params"`
}

// Fork creates a new draft run from an existing one. The parent's
// inputs are carried over; derived state, totals, and integrity fields
// start fresh. This is the only continuation of a committed run.
func (s *Service) Fork(ctx context.Context, actor ActorContext, parentRunID string, params ForkParams) (*payroll.Run, error) {
	return s.withIdempotency(ctx, actor, "fork", forkBody{ParentRunID: parentRunID, Params: params}, func() (*payroll.Run, error) {
		parent, err := s.repo.GetRun(ctx, parentRunID)
		if err != nil {
			return nil, err
		}

		now := s.clock()
		inputs := make([]payroll.Line, len(parent.Inputs))
		copy(inputs, parent.Inputs)

		run := &payroll.Run{
			ID:             s.ids.Generate(),
			OrgID:          parent.OrgID,
			ParentRunID:    parent.ID,
			CompanyID:      parent.CompanyID,
			PeriodStart:    parent.PeriodStart,
			PeriodEnd:      parent.PeriodEnd,
			PayDate:        parent.PayDate,
			Currency:       parent.Currency,
			RuleSetVersion: defaultStr(params.RuleSetVersion, parent.RuleSetVersion),
			PolicyVersion:  defaultStr(params.PolicyVersion, defaultStr(params.RuleSetVersion, parent.PolicyVersion)),
			PolicyHash:     defaultStr(params.PolicyHash, parent.PolicyHash),
			EngineVersion:  payroll.EngineVersion,
			Status:         payroll.StatusDraft,
			Inputs:         inputs,
			Derived:        []payroll.Line{},
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := s.apply(ctx, actor, run, payroll.ReasonForked, map[string]any{"parent_run_id": parent.ID}); err != nil {
			return nil, err
		}
		s.logger.Info("run forked", "run_id", run.ID, "parent_run_id", parent.ID)
		return run, nil
	})
}

// Verify checks the stored signature of a run against the configured
// key set.
func (s *Service) Verify(ctx context.Context, runID string) (*payroll.Run, integrity.VerifyResult, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, integrity.VerifyResult{}, err
	}
	res, err := s.signer.Verify(run)
	if err != nil {
		return nil, integrity.VerifyResult{}, err
	}
	return run, res, nil
}

// Reconcile summarizes a run's control figures.
func (s *Service) Reconcile(ctx context.Context, runID string) (*Reconciliation, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &Reconciliation{
		ID:          run.ID,
		CompanyID:   run.CompanyID,
		PeriodStart: run.PeriodStart,
		PeriodEnd:   run.PeriodEnd,
		PayDate:     run.PayDate,
		Currency:    run.Currency,
		Status:      run.Status,
		Totals:      run.Totals,
		Checksum:    run.Checksum,
		Counts: LineCounts{
			Inputs:     len(run.Inputs),
			Derived:    len(run.Derived),
			TotalLines: len(run.Inputs) + len(run.Derived),
		},
		UpdatedAt: run.UpdatedAt,
	}, nil
}

// GetRun loads a run by id.
func (s *Service) GetRun(ctx context.Context, runID string) (*payroll.Run, error) {
	return s.repo.GetRun(ctx, runID)
}

// ListRuns lists runs for the actor's org, newest first.
func (s *Service) ListRuns(ctx context.Context, actor ActorContext, limit int) ([]*payroll.Run, error) {
	return s.repo.ListRuns(ctx, actor.OrgID, limit)
}

// ListVersions returns a run's full version ledger.
func (s *Service) ListVersions(ctx context.Context, runID string) ([]*payroll.Version, error) {
	return s.repo.ListVersions(ctx, runID)
}

// GetVersion returns one ledger entry.
func (s *Service) GetVersion(ctx context.Context, runID string, version int) (*payroll.Version, error) {
	return s.repo.GetVersion(ctx, runID, version)
}

// apply persists one transition atomically. The run's CurrentVersion
// still reflects the precondition read at this point; passing it as
// ExpectedVersion lets the repository reject a write whose read has
// been overtaken by a concurrent transition.
func (s *Service) apply(ctx context.Context, actor ActorContext, run *payroll.Run, reason string, details map[string]any) error {
	return s.repo.ApplyTransition(ctx, Transition{
		Run:             run,
		ExpectedVersion: run.CurrentVersion,
		Reason:          reason,
		RequestID:       actor.RequestID,
		Actor:           actor.Actor,
		Details:         details,
	})
}

// validateDates enforces YYYY-MM-DD and an ordered period.
func validateDates(periodStart, periodEnd, payDate string) error {
	start, err := parseDate(periodStart)
	if err != nil {
		return payroll.NewFieldError(payroll.CodeInvalidPeriodStart, "period_start", "must be a YYYY-MM-DD date")
	}
	end, err := parseDate(periodEnd)
	if err != nil {
		return payroll.NewFieldError(payroll.CodeInvalidPeriodEnd, "period_end", "must be a YYYY-MM-DD date")
	}
	if _, err := parseDate(payDate); err != nil {
		return payroll.NewFieldError(payroll.CodeInvalidPayDate, "pay_date", "must be a YYYY-MM-DD date")
	}
	if end.Before(start) {
		return payroll.NewFieldError(payroll.CodeInvalidPeriodRange, "period_end", "period_end must not precede period_start")
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
