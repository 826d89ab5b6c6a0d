// Package main hosts the sketchreel CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the long-running watch loop, one-shot
// cycles and single-drawing jobs, ledger inspection and requeueing, clip
// stitching, the TorchServe helper, Drive authorisation, and configuration
// scaffolding. It centralizes configuration resolution and logger setup so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
