// Package rclone mediates access to the rclone CLI used for one-directional
// folder sync against a cloud remote.
//
// Pull maps to `rclone copy <remote> <local> --drive-skip-gdocs
// --ignore-existing`; Push maps to `rclone copy <local> <remote>`. Transfer
// semantics (skip-existing, what counts as changed) belong to rclone itself;
// this package only builds the argument list and classifies the exit.
package rclone
