// Package logs reads the daemon's log file for `sketchreel logs`.
//
// Last returns the final N lines with bounded memory; Follow then streams
// appended lines from the returned offset until the context ends, picking
// up from the start when the file is rotated underneath it.
package logs
