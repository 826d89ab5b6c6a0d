// Package stitch assembles finished clips into one video.
//
// Clips are collected from the output directory by a glob matched against
// each file's path relative to that directory, ordered by name, written to
// an ffmpeg concat list and joined. When a music file is configured and
// present, a second file `<final>_with_music.mp4` is muxed from the result.
package stitch
