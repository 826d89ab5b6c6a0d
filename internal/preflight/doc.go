// Package preflight provides readiness checks for the external programs,
// remotes and filesystem paths sketchreel depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before entering the watch loop and refuses to
//     start when a directory is unusable or the remote is misconfigured.
//   - The CLI "sketchreel check" command prints every check, including
//     optional binaries and the model server.
package preflight
