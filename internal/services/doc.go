// Package services defines shared utilities consumed by the watch loop and the
// external tool integrations living in its subpackages.
//
// Key responsibilities:
//   - Context helpers that stamp cycle IDs and input names for logging.
//   - Structured error markers plus the Wrap helper so callers can tell a
//     misbehaving external tool from a misconfiguration or a timeout.
//
// Each subpackage wraps exactly one external program or API (rclone, the
// Drive API, the animation tool, ffmpeg, TorchServe) behind a small client
// whose command construction is testable.
package services
