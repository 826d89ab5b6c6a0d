package ledger

import "time"

// Outcome is the recorded result of one attempt.
type Outcome string

const (
	OutcomeSucceeded    Outcome = "succeeded"
	OutcomeFailed       Outcome = "failed"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// Attempt is one job invocation (or dead-letter decision) for an input.
type Attempt struct {
	ID           int64
	CycleID      string
	InputName    string
	Outcome      Outcome
	Reason       string
	ExitCode     *int
	ArtifactPath string
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns how long the attempt ran.
func (a Attempt) Duration() time.Duration {
	if a.StartedAt.IsZero() || a.FinishedAt.IsZero() {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// Summary aggregates the ledger for status reporting.
type Summary struct {
	Total        int
	Inputs       int
	Counts       map[Outcome]int
	LastFinished time.Time
	LastCycleID  string
}
