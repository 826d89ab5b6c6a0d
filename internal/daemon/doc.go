// Package daemon coordinates the long-running sketchreel process.
//
// It wires configuration, the attempt ledger, and the watch loop into a
// single lifecycle with flock-based locking so two instances never race
// over the same input directory, and serves the optional status API for
// as long as the loop runs.
//
// Keep orchestration logic here: the cycle itself lives in
// internal/pipeline while the daemon focuses on startup, shutdown, and the
// surfaces that observe a running loop.
package daemon
