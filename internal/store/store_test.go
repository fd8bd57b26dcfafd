package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corefin/payrun/internal/lifecycle"
	"github.com/corefin/payrun/internal/payroll"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "payrun.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id string) *payroll.Run {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return &payroll.Run{
		ID:             id,
		OrgID:          "org-1",
		CompanyID:      1,
		PeriodStart:    "2026-01-01",
		PeriodEnd:      "2026-01-31",
		PayDate:        "2026-02-05",
		Currency:       "NOK",
		RuleSetVersion: "v1",
		PolicyVersion:  "v1",
		EngineVersion:  payroll.EngineVersion,
		Status:         payroll.StatusDraft,
		Inputs:         []payroll.Line{},
		Derived:        []payroll.Line{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func apply(t *testing.T, s *Store, run *payroll.Run, reason string) {
	t.Helper()
	require.NoError(t, s.ApplyTransition(context.Background(), lifecycle.Transition{
		Run:             run,
		ExpectedVersion: run.CurrentVersion,
		Reason:          reason,
		RequestID:       "req-1",
		Actor:           "tester",
	}))
}

func TestOpenIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payrun.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestRunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := testRun("run-1")
	run.Inputs = []payroll.Line{
		{Employee: "e1", LineType: "salary", Amount: 1000, Meta: map[string]any{"employee_type": "contractor"}, CreatedAt: run.CreatedAt},
	}
	run.Derived = []payroll.Line{
		{LineType: "employer_tax", Amount: 141, CreatedAt: run.CreatedAt},
	}
	run.Totals = payroll.Totals{GrossTotal: 1000, WithholdingTotal: 250, EmployerTaxTotal: 141, NetPayable: 750}
	run.Providers = payroll.Providers{Tax: &payroll.TaxSnapshot{Provider: "mock", Version: "mock-1", WithholdingAmount: 250}}
	apply(t, s, run, payroll.ReasonCreated)

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.Status, got.Status)
	assert.Equal(t, run.Totals, got.Totals)
	require.Len(t, got.Inputs, 1)
	assert.Equal(t, "e1", got.Inputs[0].Employee)
	assert.Equal(t, "contractor", got.Inputs[0].Meta["employee_type"])
	require.NotNil(t, got.Providers.Tax)
	assert.Equal(t, "mock", got.Providers.Tax.Provider)
	assert.Equal(t, run.CreatedAt, got.CreatedAt)
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, payroll.IsNotFound(err))
}

func TestVersionLedgerMonotonic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := testRun("run-1")
	apply(t, s, run, payroll.ReasonCreated)
	assert.Equal(t, 1, run.CurrentVersion)

	run.Status = payroll.StatusCalculated
	run.Totals = payroll.Totals{GrossTotal: 1000, NetPayable: 1000}
	apply(t, s, run, payroll.ReasonCalculated)
	assert.Equal(t, 2, run.CurrentVersion)

	run.Status = payroll.StatusApproved
	apply(t, s, run, payroll.ReasonApproved)
	assert.Equal(t, 3, run.CurrentVersion)

	versions, err := s.ListVersions(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i, v := range versions {
		assert.Equal(t, i+1, v.Version)
	}
	assert.Equal(t, payroll.ReasonCreated, versions[0].Reason)
	assert.Equal(t, payroll.ReasonCalculated, versions[1].Reason)
	assert.Equal(t, payroll.ReasonApproved, versions[2].Reason)

	// Snapshots are frozen: version 1 predates the totals.
	assert.Equal(t, payroll.Totals{}, versions[0].Totals)
	assert.Equal(t, 1000.0, versions[1].Totals.GrossTotal)

	v2, err := s.GetVersion(ctx, "run-1", 2)
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusCalculated, v2.Status)
	assert.Equal(t, "req-1", v2.RequestID)
	assert.Equal(t, "tester", v2.Actor)

	_, err = s.GetVersion(ctx, "run-1", 9)
	assert.True(t, payroll.IsNotFound(err))
}

func TestApplyTransitionRejectsStaleRead(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := testRun("run-1")
	apply(t, s, run, payroll.ReasonCreated)
	run.Status = payroll.StatusCommitted
	run.Checksum = "abc123"
	apply(t, s, run, payroll.ReasonCommitted)

	// A transition whose precondition read predates the ledger head
	// writes nothing: the committed state survives.
	stale := testRun("run-1")
	stale.CurrentVersion = 1
	err := s.ApplyTransition(ctx, lifecycle.Transition{
		Run: stale, ExpectedVersion: 1, Reason: payroll.ReasonInputsAdded,
	})
	require.Error(t, err)
	assert.True(t, payroll.IsInvalidOperation(err))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, payroll.StatusCommitted, got.Status)
	assert.Equal(t, "abc123", got.Checksum)

	versions, err := s.ListVersions(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testRun("run-a")
	apply(t, s, a, payroll.ReasonCreated)

	b := testRun("run-b")
	b.OrgID = "org-2"
	b.CreatedAt = b.CreatedAt.Add(time.Hour)
	b.UpdatedAt = b.CreatedAt
	apply(t, s, b, payroll.ReasonCreated)

	all, err := s.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "run-b", all[0].ID) // newest first

	scoped, err := s.ListRuns(ctx, "org-1", 0)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "run-a", scoped[0].ID)

	limited, err := s.ListRuns(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestListEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := testRun("run-1")
	require.NoError(t, s.ApplyTransition(ctx, lifecycle.Transition{
		Run: run, Reason: payroll.ReasonCreated, Actor: "tester",
	}))
	run.Status = payroll.StatusDraft
	require.NoError(t, s.ApplyTransition(ctx, lifecycle.Transition{
		Run: run, ExpectedVersion: run.CurrentVersion,
		Reason: payroll.ReasonInputsAdded, Actor: "tester",
		Details: map[string]any{"count": 2},
	}))

	events, err := s.ListEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, payroll.ReasonCreated, events[0].Action)
	assert.Equal(t, payroll.ReasonInputsAdded, events[1].Action)
	assert.Equal(t, 2.0, events[1].Details["count"]) // JSON numbers decode as float64
}

func TestIdempotencyCache(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	hit, err := s.Check(ctx, "key-1", "create", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, hit)

	require.NoError(t, s.Store(ctx, "key-1", "create", "hash-a", lifecycle.CachedResponse{
		RunID: "run-1", StatusCode: 200, Body: []byte(`{"id":"run-1"}`),
	}))

	hit, err = s.Check(ctx, "key-1", "create", "hash-a")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "run-1", hit.RunID)
	assert.JSONEq(t, `{"id":"run-1"}`, string(hit.Body))

	// Same key, different hash: no hit.
	hit, err = s.Check(ctx, "key-1", "create", "hash-b")
	require.NoError(t, err)
	assert.Nil(t, hit)

	// Same key, different endpoint: separate entry.
	hit, err = s.Check(ctx, "key-1", "commit", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, hit)

	// Replacing under the same key drops the old hash.
	require.NoError(t, s.Store(ctx, "key-1", "create", "hash-b", lifecycle.CachedResponse{
		RunID: "run-2", StatusCode: 200, Body: []byte(`{"id":"run-2"}`),
	}))
	hit, err = s.Check(ctx, "key-1", "create", "hash-b")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, "run-2", hit.RunID)

	hit, err = s.Check(ctx, "key-1", "create", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestStoreSatisfiesLifecycleContracts(t *testing.T) {
	var _ lifecycle.Repository = (*Store)(nil)
	var _ lifecycle.IdempotencyCache = (*Store)(nil)
}
