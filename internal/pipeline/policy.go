package pipeline

import (
	"math"
	"time"

	"sketchreel/internal/config"
)

// Decision is what the retry policy says to do with an input this cycle.
type Decision int

const (
	// DecisionRun invokes the job.
	DecisionRun Decision = iota
	// DecisionWait leaves the input alone until its backoff expires.
	DecisionWait
	// DecisionDeadLetter quarantines the input; it will not be retried.
	DecisionDeadLetter
)

func (d Decision) String() string {
	switch d {
	case DecisionRun:
		return "run"
	case DecisionWait:
		return "wait"
	case DecisionDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// Policy is the per-input retry policy. The zero value retries every cycle
// forever, which is the historical behaviour of the watch loop.
type Policy struct {
	// MaxAttempts dead-letters an input after this many consecutive
	// failures; zero means unbounded.
	MaxAttempts int
	// BaseDelay is the wait after the first failure; zero retries on the
	// very next cycle.
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// PolicyFromConfig builds the policy described by the [retry] section.
func PolicyFromConfig(cfg *config.Config) Policy {
	if cfg == nil {
		return Policy{}
	}
	return Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelaySeconds) * time.Second,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelaySeconds) * time.Second,
		Multiplier:  cfg.Retry.Multiplier,
	}
}

// Exhausted reports whether failures has reached the attempt ceiling.
func (p Policy) Exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures >= p.MaxAttempts
}

// Delay returns the backoff after the given number of consecutive failures:
// BaseDelay * Multiplier^(failures-1), capped at MaxDelay.
func (p Policy) Delay(failures int) time.Duration {
	if failures <= 0 || p.BaseDelay <= 0 {
		return 0
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(multiplier, float64(failures-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Decide returns the action for an input with the given consecutive failure
// count whose last attempt finished at lastAttempt. For DecisionWait the
// remaining backoff is returned as well.
func (p Policy) Decide(failures int, lastAttempt, now time.Time) (Decision, time.Duration) {
	if p.Exhausted(failures) {
		return DecisionDeadLetter, 0
	}
	delay := p.Delay(failures)
	if delay == 0 || lastAttempt.IsZero() {
		return DecisionRun, 0
	}
	next := lastAttempt.Add(delay)
	if now.Before(next) {
		return DecisionWait, next.Sub(now)
	}
	return DecisionRun, 0
}
