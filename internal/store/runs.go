package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/corefin/payrun/internal/lifecycle"
	"github.com/corefin/payrun/internal/payroll"
)

const runColumns = `id, org_id, parent_run_id, company_id,
	period_start, period_end, pay_date, currency,
	rule_set_version, policy_version, policy_hash, engine_version,
	status, inputs, derived, totals, providers,
	checksum, signature, signature_version, current_version,
	created_at, updated_at`

// GetRun loads a run by id. Returns a not_found payroll error when
// the id is unknown.
func (s *Store) GetRun(ctx context.Context, id string) (*payroll.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.NewNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

// ApplyTransition persists one state change atomically: upsert the
// run, append the next ledger version (max existing + 1), and record
// the audit event. Run.CurrentVersion is set to the appended number
// before the upsert so the stored row and the ledger agree.
//
// The ledger head is re-checked against t.ExpectedVersion inside the
// transaction. A transition whose precondition read has been overtaken
// by a concurrent write fails with invalid_operation and writes
// nothing; in particular a stale write can never reopen a committed
// run.
func (s *Store) ApplyTransition(ctx context.Context, t lifecycle.Transition) error {
	run := t.Run

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply transition: begin tx: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM run_versions WHERE run_id = ?`,
		run.ID).Scan(&next); err != nil {
		return fmt.Errorf("apply transition: next version: %w", err)
	}
	if next != t.ExpectedVersion+1 {
		return &payroll.Error{
			Code:    payroll.CodeInvalidOperation,
			Message: fmt.Sprintf("run changed concurrently: ledger at version %d, transition read version %d", next-1, t.ExpectedVersion),
			RunID:   run.ID,
		}
	}
	run.CurrentVersion = next

	if err := upsertRun(ctx, tx, run); err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}
	if err := insertVersion(ctx, tx, run, next, t); err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}
	if err := insertEvent(ctx, tx, run, t); err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply transition: commit: %w", err)
	}
	return nil
}

func upsertRun(ctx context.Context, tx *sql.Tx, run *payroll.Run) error {
	inputs, err := marshalLines(run.Inputs)
	if err != nil {
		return err
	}
	derived, err := marshalLines(run.Derived)
	if err != nil {
		return err
	}
	totals, err := marshalTotals(run.Totals)
	if err != nil {
		return err
	}
	providers, err := marshalProviders(run.Providers)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			rule_set_version = excluded.rule_set_version,
			policy_version = excluded.policy_version,
			policy_hash = excluded.policy_hash,
			engine_version = excluded.engine_version,
			inputs = excluded.inputs,
			derived = excluded.derived,
			totals = excluded.totals,
			providers = excluded.providers,
			checksum = excluded.checksum,
			signature = excluded.signature,
			signature_version = excluded.signature_version,
			current_version = excluded.current_version,
			updated_at = excluded.updated_at
	`,
		run.ID, run.OrgID, run.ParentRunID, run.CompanyID,
		run.PeriodStart, run.PeriodEnd, run.PayDate, run.Currency,
		run.RuleSetVersion, run.PolicyVersion, run.PolicyHash, run.EngineVersion,
		string(run.Status), inputs, derived, totals, providers,
		run.Checksum, run.Signature, run.SignatureVersion, run.CurrentVersion,
		formatTime(run.CreatedAt), formatTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// insertVersion appends a ledger row. ON CONFLICT DO NOTHING keeps a
// replayed transition from overwriting history; the ledger is
// append-only.
func insertVersion(ctx context.Context, tx *sql.Tx, run *payroll.Run, version int, t lifecycle.Transition) error {
	inputs, err := marshalLines(run.Inputs)
	if err != nil {
		return err
	}
	derived, err := marshalLines(run.Derived)
	if err != nil {
		return err
	}
	totals, err := marshalTotals(run.Totals)
	if err != nil {
		return err
	}
	providers, err := marshalProviders(run.Providers)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_versions
		(run_id, version, org_id, reason, rule_set_version, policy_version,
		 policy_hash, engine_version, status, totals, inputs, derived,
		 providers, checksum, signature, signature_version, request_id,
		 actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, version) DO NOTHING
	`,
		run.ID, version, run.OrgID, t.Reason, run.RuleSetVersion, run.PolicyVersion,
		run.PolicyHash, run.EngineVersion, string(run.Status), totals, inputs, derived,
		providers, run.Checksum, run.Signature, run.SignatureVersion, t.RequestID,
		t.Actor, formatTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, run *payroll.Run, t lifecycle.Transition) error {
	details, err := marshalDetails(t.Details)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_events (org_id, run_id, action, request_id, actor, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.OrgID, run.ID, t.Reason, t.RequestID, t.Actor, details, formatTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first. Empty orgID lists across orgs;
// limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, orgID string, limit int) ([]*payroll.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := []any{}
	if orgID != "" {
		query += ` WHERE org_id = ?`
		args = append(args, orgID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*payroll.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListVersions returns a run's ledger in ascending version order.
func (s *Store) ListVersions(ctx context.Context, runID string) ([]*payroll.Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, version, org_id, reason, rule_set_version, policy_version,
		       policy_hash, engine_version, status, totals, inputs, derived,
		       providers, checksum, signature, signature_version, request_id,
		       actor, created_at
		FROM run_versions WHERE run_id = ?
		ORDER BY version ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []*payroll.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("list versions: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// GetVersion returns one ledger entry.
func (s *Store) GetVersion(ctx context.Context, runID string, version int) (*payroll.Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, version, org_id, reason, rule_set_version, policy_version,
		       policy_hash, engine_version, status, totals, inputs, derived,
		       providers, checksum, signature, signature_version, request_id,
		       actor, created_at
		FROM run_versions WHERE run_id = ? AND version = ?
	`, runID, version)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.NewNotFound(runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get version %s/%d: %w", runID, version, err)
	}
	return v, nil
}

// ListEvents returns a run's audit trail in insertion order.
func (s *Store) ListEvents(ctx context.Context, runID string) ([]payroll.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT org_id, run_id, action, request_id, actor, details, created_at
		FROM run_events WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []payroll.Event
	for rows.Next() {
		var e payroll.Event
		var details, createdAt string
		if err := rows.Scan(&e.OrgID, &e.RunID, &e.Action, &e.RequestID, &e.Actor, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		if details != "" && details != "{}" {
			if err := unmarshalDetails(details, &e.Details); err != nil {
				return nil, fmt.Errorf("list events: %w", err)
			}
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		e.CreatedAt = t
		events = append(events, e)
	}
	return events, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*payroll.Run, error) {
	var run payroll.Run
	var status, inputs, derived, totals, providers, createdAt, updatedAt string

	if err := sc.Scan(
		&run.ID, &run.OrgID, &run.ParentRunID, &run.CompanyID,
		&run.PeriodStart, &run.PeriodEnd, &run.PayDate, &run.Currency,
		&run.RuleSetVersion, &run.PolicyVersion, &run.PolicyHash, &run.EngineVersion,
		&status, &inputs, &derived, &totals, &providers,
		&run.Checksum, &run.Signature, &run.SignatureVersion, &run.CurrentVersion,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	run.Status = payroll.Status(status)
	var err error
	if run.Inputs, err = unmarshalLines(inputs); err != nil {
		return nil, err
	}
	if run.Derived, err = unmarshalLines(derived); err != nil {
		return nil, err
	}
	if run.Totals, err = unmarshalTotals(totals); err != nil {
		return nil, err
	}
	if run.Providers, err = unmarshalProviders(providers); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if run.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &run, nil
}

func scanVersion(sc scanner) (*payroll.Version, error) {
	var v payroll.Version
	var status, totals, inputs, derived, providers, createdAt string

	if err := sc.Scan(
		&v.RunID, &v.Version, &v.OrgID, &v.Reason, &v.RuleSetVersion, &v.PolicyVersion,
		&v.PolicyHash, &v.EngineVersion, &status, &totals, &inputs, &derived,
		&providers, &v.Checksum, &v.Signature, &v.SignatureVer, &v.RequestID,
		&v.Actor, &createdAt,
	); err != nil {
		return nil, err
	}

	v.Status = payroll.Status(status)
	var err error
	if v.Totals, err = unmarshalTotals(totals); err != nil {
		return nil, err
	}
	if v.Inputs, err = unmarshalLines(inputs); err != nil {
		return nil, err
	}
	if v.Derived, err = unmarshalLines(derived); err != nil {
		return nil, err
	}
	if v.Providers, err = unmarshalProviders(providers); err != nil {
		return nil, err
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &v, nil
}
