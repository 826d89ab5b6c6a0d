// Package logging assembles structured slog loggers and formatting helpers used
// across sketchreel.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so loop code can automatically
// tag log lines with the cycle ID and the input being animated. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
