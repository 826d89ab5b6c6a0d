package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sketchreel/internal/ledger"
	"sketchreel/internal/pipeline"
	"sketchreel/internal/testsupport"
)

type fakeCycles struct {
	report pipeline.CycleReport
	ok     bool
	count  int
}

func (f fakeCycles) LastCycle() (pipeline.CycleReport, bool) { return f.report, f.ok }
func (f fakeCycles) Cycles() int                             { return f.count }

type failingLedger struct{}

func (failingLedger) Summary(context.Context) (ledger.Summary, error) {
	return ledger.Summary{}, errors.New("disk gone")
}

func (failingLedger) Recent(context.Context, int) ([]ledger.Attempt, error) {
	return nil, errors.New("disk gone")
}

func get(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, NewRouter(Deps{Token: "secret"}), "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body Health
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Service != "sketchreel" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestStatusReportsCycleAndLedger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testsupport.RecordAttempt(t, store, "dog.png", ledger.OutcomeSucceeded, finished)
	testsupport.RecordAttempt(t, store, "cat.png", ledger.OutcomeFailed, finished)

	cycles := fakeCycles{ok: true, count: 4, report: pipeline.CycleReport{
		ID:        "c-4",
		StartedAt: finished,
		Inputs:    2,
		Succeeded: []string{"dog.png"},
	}}
	router := NewRouter(Deps{Cycles: cycles, Ledger: store, Remote: "dir /remote"})

	rec := get(t, router, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body Status
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Cycles != 4 || body.LastCycle == nil || body.LastCycle.ID != "c-4" {
		t.Fatalf("unexpected cycle info: %+v", body)
	}
	if len(body.LastCycle.Failed) != 0 || body.LastCycle.Failed == nil {
		t.Fatalf("expected empty failed list, got %#v", body.LastCycle.Failed)
	}
	if body.Ledger.Attempts != 2 || body.Ledger.Outcomes["failed"] != 1 {
		t.Fatalf("unexpected ledger summary: %+v", body.Ledger)
	}
	if body.Remote != "dir /remote" {
		t.Fatalf("unexpected remote: %q", body.Remote)
	}
}

func TestAttemptsLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		testsupport.RecordAttempt(t, store, "cat.png", ledger.OutcomeFailed, base.Add(time.Duration(i)*time.Minute))
	}
	router := NewRouter(Deps{Ledger: store})

	rec := get(t, router, "/api/attempts?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rows []Attempt
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 || rows[0].ID < rows[1].ID {
		t.Fatalf("expected two newest rows, got %+v", rows)
	}
	if rows[0].DurationSecs != 1 {
		t.Fatalf("unexpected duration: %d", rows[0].DurationSecs)
	}

	if rec := get(t, router, "/api/attempts?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestLedgerErrorsAre500(t *testing.T) {
	router := NewRouter(Deps{Ledger: failingLedger{}})
	if rec := get(t, router, "/api/status", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec := get(t, router, "/api/attempts", ""); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	router := NewRouter(Deps{Token: "secret"})
	if rec := get(t, router, "/api/status", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := get(t, router, "/api/status", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
	if rec := get(t, router, "/api/status", "secret"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	if rec := get(t, NewRouter(Deps{}), "/api/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
