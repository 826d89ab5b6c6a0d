// Package ffmpeg wraps the ffmpeg and ffprobe binaries used to assemble
// finished clips into a single video.
//
// Key types:
//   - Client: builds fixed argument lists for concat, audio mux and probe
//   - ProbeResult: the container/stream subset of ffprobe's JSON output
//
// The client never interprets media itself; every operation is a single
// subprocess whose non-zero exit is reported as services.ErrExternalTool.
package ffmpeg
