// Package ledger persists the history of job attempts in SQLite.
//
// The watch loop itself keeps no state between cycles; the ledger exists so
// the retry policy can count consecutive failures per input and so the status
// command and HTTP API can report what happened. Attempts are keyed by input
// file name. A success or a dead-letter row resets the failure streak.
package ledger
