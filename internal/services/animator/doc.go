// Package animator runs the external animation tool that turns one character
// drawing into an animated clip.
//
// The tool is an opaque black box. Its entire contract is captured by
// Contract: the command line (optional wrapper such as xvfb-run, the command,
// fixed prefix arguments, then `<input> <output-dir>`), the working
// directory, environment variables to strip, and the name of the artifact it
// is expected to write. Runner executes one invocation and classifies the
// failure with the markers from the services package; deciding whether an
// invocation succeeded also requires checking the artifact, which is the job
// package's responsibility.
package animator
