package api

import (
	"time"

	"sketchreel/internal/ledger"
	"sketchreel/internal/pipeline"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Health is the /api/health body.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Status is the /api/status body.
type Status struct {
	StartedAt string        `json:"startedAt"`
	Uptime    string        `json:"uptime"`
	Remote    string        `json:"remote"`
	Cycles    int           `json:"cycles"`
	LastCycle *Cycle        `json:"lastCycle,omitempty"`
	Ledger    LedgerSummary `json:"ledger"`
}

// Cycle mirrors pipeline.CycleReport.
type Cycle struct {
	ID           string   `json:"id"`
	StartedAt    string   `json:"startedAt"`
	FinishedAt   string   `json:"finishedAt"`
	Inputs       int      `json:"inputs"`
	Converted    int      `json:"converted"`
	Succeeded    []string `json:"succeeded"`
	Failed       []string `json:"failed"`
	Deferred     []string `json:"deferred"`
	Skipped      []string `json:"skipped"`
	DeadLettered []string `json:"deadLettered"`
	Error        string   `json:"error,omitempty"`
}

// LedgerSummary mirrors ledger.Summary.
type LedgerSummary struct {
	Attempts     int            `json:"attempts"`
	Inputs       int            `json:"inputs"`
	Outcomes     map[string]int `json:"outcomes"`
	LastFinished string         `json:"lastFinished,omitempty"`
	LastCycleID  string         `json:"lastCycleId,omitempty"`
}

// Attempt is one ledger row.
type Attempt struct {
	ID           int64  `json:"id"`
	CycleID      string `json:"cycleId"`
	Input        string `json:"input"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason,omitempty"`
	ExitCode     *int   `json:"exitCode,omitempty"`
	Artifact     string `json:"artifact,omitempty"`
	Error        string `json:"error,omitempty"`
	StartedAt    string `json:"startedAt"`
	FinishedAt   string `json:"finishedAt"`
	DurationSecs int64  `json:"durationSeconds"`
}

// FromCycleReport converts a pipeline report.
func FromCycleReport(r pipeline.CycleReport) Cycle {
	return Cycle{
		ID:           r.ID,
		StartedAt:    formatTime(r.StartedAt),
		FinishedAt:   formatTime(r.FinishedAt),
		Inputs:       r.Inputs,
		Converted:    r.Converted,
		Succeeded:    nonNil(r.Succeeded),
		Failed:       nonNil(r.Failed),
		Deferred:     nonNil(r.Deferred),
		Skipped:      nonNil(r.Skipped),
		DeadLettered: nonNil(r.DeadLettered),
		Error:        r.Error,
	}
}

// FromSummary converts a ledger summary.
func FromSummary(s ledger.Summary) LedgerSummary {
	outcomes := make(map[string]int, len(s.Counts))
	for outcome, count := range s.Counts {
		outcomes[string(outcome)] = count
	}
	return LedgerSummary{
		Attempts:     s.Total,
		Inputs:       s.Inputs,
		Outcomes:     outcomes,
		LastFinished: formatTime(s.LastFinished),
		LastCycleID:  s.LastCycleID,
	}
}

// FromAttempt converts a ledger row.
func FromAttempt(a ledger.Attempt) Attempt {
	return Attempt{
		ID:           a.ID,
		CycleID:      a.CycleID,
		Input:        a.InputName,
		Outcome:      string(a.Outcome),
		Reason:       a.Reason,
		ExitCode:     a.ExitCode,
		Artifact:     a.ArtifactPath,
		Error:        a.ErrorMessage,
		StartedAt:    formatTime(a.StartedAt),
		FinishedAt:   formatTime(a.FinishedAt),
		DurationSecs: int64(a.Duration().Seconds()),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
