package testsupport

import (
	"context"
	"testing"
	"time"

	"sketchreel/internal/config"
	"sketchreel/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RecordAttempt appends an attempt finishing at finished for tests.
func RecordAttempt(t testing.TB, store *ledger.Store, input string, outcome ledger.Outcome, finished time.Time) int64 {
	t.Helper()

	id, err := store.Record(context.Background(), ledger.Attempt{
		CycleID:    "test-cycle",
		InputName:  input,
		Outcome:    outcome,
		StartedAt:  finished.Add(-time.Second),
		FinishedAt: finished,
	})
	if err != nil {
		t.Fatalf("store.Record: %v", err)
	}
	return id
}
