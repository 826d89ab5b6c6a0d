// Package fileutil holds the small file moves the pipeline relies on:
// atomic copies for uploads to mounted remotes, cross-device moves into the
// quarantine directory, and collision-free destination names.
package fileutil
