package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"sketchreel/internal/ledger"
	"sketchreel/internal/testsupport"
)

func TestRecordAndLastAttempt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	exitCode := 3
	started := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	id, err := store.Record(ctx, ledger.Attempt{
		CycleID:      "cycle-1",
		InputName:    "dog.png",
		Outcome:      ledger.OutcomeFailed,
		Reason:       "exit_status",
		ExitCode:     &exitCode,
		ErrorMessage: "exit status 3",
		StartedAt:    started,
		FinishedAt:   started.Add(42 * time.Second),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected attempt ID to be assigned")
	}

	last, err := store.LastAttempt(ctx, "dog.png")
	if err != nil {
		t.Fatalf("LastAttempt failed: %v", err)
	}
	if last == nil || last.ID != id {
		t.Fatalf("unexpected last attempt: %#v", last)
	}
	if last.ExitCode == nil || *last.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %v", last.ExitCode)
	}
	if last.Reason != "exit_status" || last.ErrorMessage != "exit status 3" {
		t.Fatalf("unexpected failure detail: %#v", last)
	}
	if last.Duration() != 42*time.Second {
		t.Fatalf("expected 42s duration, got %s", last.Duration())
	}

	missing, err := store.LastAttempt(ctx, "cat.png")
	if err != nil {
		t.Fatalf("LastAttempt failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown input, got %#v", missing)
	}
}

func TestRecordRequiresInputAndOutcome(t *testing.T) {
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if _, err := store.Record(ctx, ledger.Attempt{Outcome: ledger.OutcomeFailed}); err == nil {
		t.Fatal("expected error without input name")
	}
	if _, err := store.Record(ctx, ledger.Attempt{InputName: "dog.png"}); err == nil {
		t.Fatal("expected error without outcome")
	}
}

func TestFailuresResetOnSuccessAndDeadLetter(t *testing.T) {
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	steps := []struct {
		outcome ledger.Outcome
		want    int
	}{
		{ledger.OutcomeFailed, 1},
		{ledger.OutcomeFailed, 2},
		{ledger.OutcomeSucceeded, 0},
		{ledger.OutcomeFailed, 1},
		{ledger.OutcomeDeadLettered, 0},
		{ledger.OutcomeFailed, 1},
	}
	for i, step := range steps {
		testsupport.RecordAttempt(t, store, "dog.png", step.outcome, base.Add(time.Duration(i)*time.Minute))
		got, err := store.Failures(ctx, "dog.png")
		if err != nil {
			t.Fatalf("Failures failed: %v", err)
		}
		if got != step.want {
			t.Fatalf("step %d (%s): expected %d failures, got %d", i, step.outcome, step.want, got)
		}
	}

	testsupport.RecordAttempt(t, store, "cat.png", ledger.OutcomeFailed, base)
	if got, _ := store.Failures(ctx, "dog.png"); got != 1 {
		t.Fatalf("failures for other inputs must not leak, got %d", got)
	}
}

func TestRecentOrderingAndSummary(t *testing.T) {
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	testsupport.RecordAttempt(t, store, "a.png", ledger.OutcomeSucceeded, base)
	testsupport.RecordAttempt(t, store, "b.png", ledger.OutcomeFailed, base.Add(time.Minute))
	testsupport.RecordAttempt(t, store, "b.png", ledger.OutcomeFailed, base.Add(2*time.Minute))
	lastID := testsupport.RecordAttempt(t, store, "c.png", ledger.OutcomeDeadLettered, base.Add(3*time.Minute))

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != lastID || recent[1].InputName != "b.png" {
		t.Fatalf("unexpected recent attempts: %#v", recent)
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.Total != 4 || summary.Inputs != 3 {
		t.Fatalf("unexpected totals: %+v", summary)
	}
	if summary.Counts[ledger.OutcomeFailed] != 2 || summary.Counts[ledger.OutcomeSucceeded] != 1 || summary.Counts[ledger.OutcomeDeadLettered] != 1 {
		t.Fatalf("unexpected counts: %+v", summary.Counts)
	}
	if !summary.LastFinished.Equal(base.Add(3 * time.Minute).UTC().Truncate(time.Nanosecond)) {
		t.Fatalf("unexpected last finished: %s", summary.LastFinished)
	}
	if summary.LastCycleID != "test-cycle" {
		t.Fatalf("unexpected last cycle id: %q", summary.LastCycleID)
	}
}

func TestSummaryEmptyLedger(t *testing.T) {
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	summary, err := store.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.Total != 0 || !summary.LastFinished.IsZero() {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}

func TestForgetAndPrune(t *testing.T) {
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now()

	testsupport.RecordAttempt(t, store, "old.png", ledger.OutcomeSucceeded, now.Add(-48*time.Hour))
	testsupport.RecordAttempt(t, store, "dog.png", ledger.OutcomeFailed, now)
	testsupport.RecordAttempt(t, store, "dog.png", ledger.OutcomeFailed, now)

	removed, err := store.Forget(ctx, "dog.png")
	if err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 rows removed, got %d", removed)
	}
	if got, _ := store.Failures(ctx, "dog.png"); got != 0 {
		t.Fatalf("expected failures reset, got %d", got)
	}

	pruned, err := store.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 row pruned, got %d", pruned)
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	testsupport.RecordAttempt(t, store, "dog.png", ledger.OutcomeFailed, time.Now())
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenLedger(t, cfg)
	if got, _ := reopened.Failures(context.Background(), "dog.png"); got != 1 {
		t.Fatalf("expected history to survive reopen, got %d", got)
	}
}

func TestSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", cfg.LedgerPath())
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := ledger.Open(cfg); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
