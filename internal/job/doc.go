// Package job runs the external animation tool for a single input image.
//
// A job succeeds only when the tool exits zero AND the expected artifact
// exists in the per-input output directory; the artifact is then renamed to
// `<output_root>/<stem><canonical_ext>`. Failures leave every file in place
// and carry a Reason (start_failed, exit_status, missing_artifact,
// rename_failed, timeout, canceled) so callers can record why. Deleting the
// input after success is the watch loop's job, not this package's.
package job
